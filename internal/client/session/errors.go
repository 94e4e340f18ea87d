package session

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/gophadmin/internal/client/client"
)

// Kind classifies failures the user can see.
type Kind int

const (
	KindInvalidCredentials Kind = iota + 1
	KindInvalidOrExpiredCode
	KindResendThrottled
	KindProfileFetchFailed
	KindSessionExpired
	KindNetwork
)

func (k Kind) String() string {
	switch k {
	case KindInvalidCredentials:
		return "invalid_credentials"
	case KindInvalidOrExpiredCode:
		return "invalid_or_expired_code"
	case KindResendThrottled:
		return "resend_throttled"
	case KindProfileFetchFailed:
		return "profile_fetch_failed"
	case KindSessionExpired:
		return "session_expired"
	case KindNetwork:
		return "network"
	default:
		return "unknown"
	}
}

var (
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrInvalidOrExpiredCode = errors.New("invalid or expired code")
	ErrResendThrottled      = errors.New("resend throttled")
	ErrProfileFetchFailed   = errors.New("profile fetch failed")
	ErrSessionExpired       = errors.New("session expired")
	ErrNetwork              = errors.New("network or server error")

	// ErrBusy rejects a phase-changing call while another one is in flight.
	ErrBusy = errors.New("session: another operation is in progress")
	// ErrSessionChanged is returned when the phase moved (logout, cancel)
	// while the call waited on the network. Its result was discarded.
	ErrSessionChanged = errors.New("session: changed while the operation was in flight")
	ErrInvalidPhase   = errors.New("session: operation not allowed in current phase")
	ErrClosed         = errors.New("session: manager closed")
)

var kindSentinels = map[Kind]error{
	KindInvalidCredentials:   ErrInvalidCredentials,
	KindInvalidOrExpiredCode: ErrInvalidOrExpiredCode,
	KindResendThrottled:      ErrResendThrottled,
	KindProfileFetchFailed:   ErrProfileFetchFailed,
	KindSessionExpired:       ErrSessionExpired,
	KindNetwork:              ErrNetwork,
}

const (
	msgInvalidCredentials = "Invalid email or password"
	msgInvalidCode        = "Invalid or expired code"
	msgCodeFormat         = "Code must be exactly 6 characters"
	msgPreAuthExpired     = "Verification timed out, sign in again"
	msgProfileFailed      = "Failed to load user profile"
	msgSessionExpired     = "Session expired, sign in again"
	msgResendFailed       = "Failed to resend code"
	msgRefreshFailed      = "Failed to refresh session"
	msgUnavailable        = "Server is unavailable, try again later"
	msgTooManyRequests    = "Too many attempts, try again later"
	msgCanceled           = "Request canceled"
	msgUnexpected         = "Unexpected server response"
	msgStorage            = "Failed to save session"
)

// Error is a classified session failure. Message is meant for display.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	s := e.Op + ": " + e.Message
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel of e's Kind.
func (e *Error) Is(target error) bool {
	s, ok := kindSentinels[e.Kind]
	return ok && s == target
}

// classify turns an API failure into an Error of kind. The server's message
// wins; otherwise unauthorized responses get fallback.
func classify(op string, kind Kind, fallback string, err error) *Error {
	msg := client.ServerMessage(err)
	if msg == "" {
		switch {
		case errors.Is(err, client.ErrUnauthorized):
			msg = fallback
		case errors.Is(err, client.ErrUnavailable):
			msg = msgUnavailable
		case errors.Is(err, client.ErrTooManyRequests):
			msg = msgTooManyRequests
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			msg = msgCanceled
		default:
			msg = msgUnexpected
		}
	}
	return &Error{Kind: kind, Op: op, Message: msg, Err: err}
}
