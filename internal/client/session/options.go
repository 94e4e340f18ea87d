package session

import (
	"time"

	"github.com/dmitrijs2005/gophadmin/internal/client/throttle"
	"github.com/dmitrijs2005/gophadmin/internal/logging"
)

type Option func(*Manager)

func WithLogger(l logging.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// WithClock replaces time.Now when checking access token expiry on Init.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithThrottle sets the resend gate. The manager never ticks it; the owner
// runs throttle.Run alongside the UI.
func WithThrottle(t *throttle.Throttle) Option {
	return func(m *Manager) {
		if t != nil {
			m.throttle = t
		}
	}
}

// WithObserver registers fn to receive a State after every change. Observers
// run on the goroutine that made the change, after the manager's lock is
// released, so they may call back into the manager.
func WithObserver(fn func(State)) Option {
	return func(m *Manager) {
		if fn != nil {
			m.observers = append(m.observers, fn)
		}
	}
}

// WithAutoBootstrap controls whether entering PhaseAuthenticated starts the
// identity bootstrap in the background. Enabled by default.
func WithAutoBootstrap(enabled bool) Option {
	return func(m *Manager) {
		m.autoBootstrap = enabled
	}
}
