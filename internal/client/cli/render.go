package cli

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/dmitrijs2005/gophadmin/internal/client/models"
	"github.com/dmitrijs2005/gophadmin/internal/client/session"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	dimStyle   = lipgloss.NewStyle().Faint(true)
	labelStyle = lipgloss.NewStyle().Width(14).Faint(true)
)

func (a *App) println(s string) {
	fmt.Fprintln(a.out, s)
}

func (a *App) ok(format string, args ...any) {
	a.println(okStyle.Render(fmt.Sprintf(format, args...)))
}

func (a *App) hint(format string, args ...any) {
	a.println(dimStyle.Render(fmt.Sprintf(format, args...)))
}

// reportedError marks an error already shown to the user.
type reportedError struct {
	err error
}

func (e reportedError) Error() string { return e.err.Error() }
func (e reportedError) Unwrap() error { return e.err }

// fail prints err and returns it marked as reported.
func (a *App) fail(err error) error {
	a.println(errStyle.Render(userMessage(err)))
	return reportedError{err: err}
}

// userMessage turns an error from the session layer into a line for the
// terminal.
func userMessage(err error) string {
	var se *session.Error
	switch {
	case errors.As(err, &se) && se.Message != "":
		return se.Message
	case errors.Is(err, session.ErrBusy):
		return "Another request is in progress"
	case errors.Is(err, session.ErrSessionChanged):
		return "Session changed, request discarded"
	case errors.Is(err, session.ErrInvalidPhase):
		return "Not available right now: " + err.Error()
	default:
		return err.Error()
	}
}

func renderIdentity(id *models.Identity) string {
	var b strings.Builder

	name, ok := id.FullName()
	if !ok {
		name = id.Email
	}
	if initials, ok := id.Initials(); ok {
		name = fmt.Sprintf("%s (%s)", name, initials)
	}
	b.WriteString(titleStyle.Render(name))
	b.WriteString("\n")

	row := func(label, value string) {
		if value == "" {
			return
		}
		b.WriteString(labelStyle.Render(label))
		b.WriteString(value)
		b.WriteString("\n")
	}

	row("Email", id.Email)
	row("Job title", id.JobTitle)
	row("System role", id.SystemRole)
	row("Roles", strings.Join(id.FunctionalRoles, ", "))
	row("Authorities", strings.Join(id.GrantedAuthorities, ", "))
	if id.OnboardedAt != "" {
		row("Onboarded", onboardedDate(id.OnboardedAt))
	}
	if !id.IsActive {
		row("Status", "inactive")
	}

	addr := id.Address
	parts := make([]string, 0, 5)
	for _, p := range []string{addr.Address, addr.City, addr.USAStateType, addr.ZipCode, addr.Country} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	row("Address", strings.Join(parts, ", "))

	return strings.TrimRight(b.String(), "\n")
}

func renderState(st session.State, remaining string) string {
	var b strings.Builder
	b.WriteString(labelStyle.Render("Phase"))
	b.WriteString(st.Phase.String())
	b.WriteString("\n")
	if st.Phase == session.PhaseAuthenticated {
		b.WriteString(labelStyle.Render("Profile"))
		b.WriteString(st.UserLoading.String())
		b.WriteString("\n")
	}
	if st.Phase == session.PhasePendingVerification {
		b.WriteString(labelStyle.Render("Resend"))
		b.WriteString(remaining)
		b.WriteString("\n")
	}
	if st.Err != nil {
		b.WriteString(labelStyle.Render("Last error"))
		b.WriteString(st.Err.Message)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// onboardedDate shortens an RFC 3339 timestamp to its date and leaves any
// other form untouched.
func onboardedDate(v string) string {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.Format(time.DateOnly)
	}
	return v
}
