// Package guard decides whether a view may be shown for the current session
// phase.
package guard

import (
	"github.com/dmitrijs2005/gophadmin/internal/client/session"
)

// Action is what the caller should do with the requested view.
type Action int

const (
	// Wait means the phase is not known yet. Render a placeholder, do not
	// redirect.
	Wait Action = iota
	Render
	Redirect
)

func (a Action) String() string {
	switch a {
	case Render:
		return "render"
	case Redirect:
		return "redirect"
	default:
		return "wait"
	}
}

// Decision is the outcome of a guard check. For redirects, From holds the
// requested path so the caller can return to it afterwards.
type Decision struct {
	Action   Action
	Location string
	From     string
}

// PhaseSource is the part of the session a guard reads.
type PhaseSource interface {
	Phase() session.Phase
}

type Guard interface {
	Check(path string) Decision
}

const (
	DefaultLoginPath = "/login"
	DefaultHomePath  = "/"
)

// RequireAuth admits authenticated sessions and sends everyone else to
// LoginPath.
type RequireAuth struct {
	Session   PhaseSource
	LoginPath string
}

func (g RequireAuth) Check(path string) Decision {
	switch g.Session.Phase() {
	case session.PhaseInitializing:
		return Decision{Action: Wait}
	case session.PhaseAuthenticated:
		return Decision{Action: Render}
	default:
		loc := g.LoginPath
		if loc == "" {
			loc = DefaultLoginPath
		}
		return Decision{Action: Redirect, Location: loc, From: path}
	}
}

// NoRequireAuth admits sessions that are not authenticated, such as the
// login and code screens, and sends authenticated ones to HomePath.
type NoRequireAuth struct {
	Session  PhaseSource
	HomePath string
}

func (g NoRequireAuth) Check(path string) Decision {
	switch g.Session.Phase() {
	case session.PhaseInitializing:
		return Decision{Action: Wait}
	case session.PhaseAuthenticated:
		loc := g.HomePath
		if loc == "" {
			loc = DefaultHomePath
		}
		return Decision{Action: Redirect, Location: loc, From: path}
	default:
		return Decision{Action: Render}
	}
}
