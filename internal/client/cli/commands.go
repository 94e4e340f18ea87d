package cli

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/dmitrijs2005/gophadmin/internal/client/session"
	"github.com/dmitrijs2005/gophadmin/internal/common"
)

const codePrompt = `Enter the 6-digit code ("resend" for a new one, empty to stop)`

// Login asks for the password (and the email when empty), signs in and then
// prompts for the one-time code.
func (a *App) Login(ctx context.Context, email string) error {
	var err error
	if email == "" {
		email, err = a.prompt.Line("Email")
		if err != nil {
			return err
		}
	}

	pw, err := a.prompt.Secret("Password")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(pw)

	if err := a.session.Login(ctx, email, string(pw)); err != nil {
		return a.fail(err)
	}
	a.ok("A verification code was sent to %s", email)

	return a.promptCode(ctx)
}

// promptCode reads codes until one is accepted, the user gives up with an
// empty line or the session leaves verification.
func (a *App) promptCode(ctx context.Context) error {
	for {
		code, err := a.prompt.Line(codePrompt)
		if err != nil {
			return err
		}

		switch code {
		case "":
			a.hint("Run 'verify <code>' when the code arrives, or 'cancel' to start over")
			return nil
		case "resend":
			_ = a.Resend(ctx)
			continue
		}

		err = a.Verify(ctx, code)
		if err == nil || a.session.Phase() != session.PhasePendingVerification {
			return err
		}
	}
}

// Verify submits a one-time code. While verification is pending an empty
// code starts the interactive prompt.
func (a *App) Verify(ctx context.Context, code string) error {
	if code == "" && a.session.Phase() == session.PhasePendingVerification {
		return a.promptCode(ctx)
	}
	if err := a.session.VerifyCode(ctx, code); err != nil {
		return a.fail(err)
	}
	a.ok("Signed in")
	return nil
}

// Resend requests another code if the countdown allows it.
func (a *App) Resend(ctx context.Context) error {
	err := a.session.ResendCode(ctx)
	switch {
	case errors.Is(err, session.ErrResendThrottled):
		a.hint("You can request a new code %s", a.resendStatus())
		return reportedError{err: err}
	case err != nil:
		return a.fail(err)
	}
	a.ok("A new code was sent")
	return nil
}

func (a *App) Cancel(ctx context.Context) error {
	if err := a.session.Cancel(ctx); err != nil {
		return a.fail(err)
	}
	a.ok("Verification canceled")
	return nil
}

func (a *App) Logout(ctx context.Context) error {
	if err := a.session.Logout(ctx); err != nil {
		return a.fail(err)
	}
	a.ok("Signed out")
	return nil
}

// WhoAmI prints the signed-in user, loading the profile first if needed.
func (a *App) WhoAmI(ctx context.Context) error {
	if err := a.session.Bootstrap(ctx); err != nil {
		return a.fail(err)
	}
	id, ok := a.session.Identity()
	if !ok {
		// signed out while loading
		err := fmt.Errorf("%w: profile not loaded", session.ErrSessionChanged)
		return a.fail(err)
	}
	a.println(renderIdentity(id))
	return nil
}

func (a *App) Status(context.Context) error {
	a.println(renderState(a.session.State(), a.resendStatus()))
	return nil
}

func (a *App) Refresh(ctx context.Context) error {
	if err := a.session.Refresh(ctx); err != nil {
		return a.fail(err)
	}
	a.ok("Session refreshed")
	return nil
}

func (a *App) resendStatus() string {
	t := a.session.Throttle()
	if t.CanResend() {
		return "now"
	}
	return fmt.Sprintf("in %ds", int(math.Ceil(t.Remaining().Seconds())))
}
