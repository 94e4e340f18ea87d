// Package throttle implements the countdown gate in front of the "resend
// code" action.
//
// The gate is advisory: it stops this client from asking for another code
// while the countdown runs, the server applies its own limit.
package throttle

import (
	"context"
	"errors"
	"sync"
	"time"
)

const (
	DefaultWindow = 30 * time.Second
	DefaultStep   = time.Second
)

var ErrThrottled = errors.New("resend throttled")

// Throttle counts down from window to zero in steps. A fresh Throttle is
// open: the first resend is allowed immediately.
type Throttle struct {
	mu        sync.Mutex
	window    time.Duration
	step      time.Duration
	remaining time.Duration
}

// New returns an open throttle. Non-positive arguments fall back to
// DefaultWindow and DefaultStep.
func New(window, step time.Duration) *Throttle {
	if window <= 0 {
		window = DefaultWindow
	}
	if step <= 0 {
		step = DefaultStep
	}
	return &Throttle{window: window, step: step}
}

func (t *Throttle) Window() time.Duration { return t.window }
func (t *Throttle) Step() time.Duration   { return t.step }

// CanResend reports whether the countdown has reached zero.
func (t *Throttle) CanResend() bool {
	return t.Remaining() == 0
}

func (t *Throttle) Remaining() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remaining
}

// Tick advances the countdown by one step, stopping at zero.
func (t *Throttle) Tick() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.remaining -= t.step
	if t.remaining < 0 {
		t.remaining = 0
	}
}

// Reset opens the gate.
func (t *Throttle) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.remaining = 0
}

// Resend calls send unless the countdown is running, in which case it
// returns ErrThrottled and leaves the countdown untouched. The countdown is
// restarted before send runs and stays running if send fails.
func (t *Throttle) Resend(ctx context.Context, send func(ctx context.Context) error) error {
	t.mu.Lock()
	if t.remaining > 0 {
		t.mu.Unlock()
		return ErrThrottled
	}
	t.remaining = t.window
	t.mu.Unlock()

	return send(ctx)
}

// Run ticks once per step until ctx is done.
func (t *Throttle) Run(ctx context.Context) {
	ticker := time.NewTicker(t.step)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Tick()
		}
	}
}
