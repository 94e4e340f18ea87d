package session

import (
	"context"
	"errors"
	"strconv"

	"github.com/dmitrijs2005/gophadmin/internal/client/client"
	"github.com/dmitrijs2005/gophadmin/internal/client/models"
)

// Bootstrap loads the identity of the current authenticated session:
// authorities first, then the profile. Concurrent callers share one fetch.
// It returns nil at once if the identity is already loaded.
//
// A failure leaves the phase alone and records a KindProfileFetchFailed
// error; the caller retries or logs out. If the session changes while the
// fetch is in flight the result is dropped and ErrSessionChanged returned.
func (m *Manager) Bootstrap(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.phase != PhaseAuthenticated {
		phase := m.phase
		m.mu.Unlock()
		return phaseError(opBootstrap, phase)
	}
	if m.identity != nil {
		m.mu.Unlock()
		return nil
	}
	epoch := m.epoch
	m.mu.Unlock()

	ch := m.boot.DoChan(strconv.FormatUint(epoch, 10), func() (any, error) {
		return nil, m.bootstrap(epoch)
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) bootstrap(epoch uint64) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.epoch != epoch {
		m.mu.Unlock()
		return ErrSessionChanged
	}
	// the flight may outlive its caller, Close must still wait for it
	m.wg.Add(1)
	defer m.wg.Done()

	if m.identity != nil {
		m.mu.Unlock()
		return nil
	}
	// cancelled by the next phase change or by Close
	ctx, cancel := context.WithCancel(m.baseCtx)
	defer cancel()
	m.bootCancel = cancel
	m.loading = LoadingInProgress
	if m.lastErr != nil && m.lastErr.Kind == KindProfileFetchFailed {
		m.lastErr = nil
	}
	st := m.snapshotLocked()
	m.mu.Unlock()
	m.notify(st)

	authorities, err := m.api.FetchCurrentUserAuthorities(ctx)
	var profile *models.Profile
	if err == nil {
		profile, err = m.api.FetchCurrentUserProfile(ctx)
	}
	if err == nil && profile == nil {
		err = client.ErrBadResponse
	}

	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		m.log.Debug(ctx, "discarding stale bootstrap result")
		return ErrSessionChanged
	}
	m.bootCancel = nil
	m.loading = LoadingDone

	if err != nil {
		e := classify(opBootstrap, KindProfileFetchFailed, msgProfileFailed, err)
		m.lastErr = e
		st := m.snapshotLocked()
		m.mu.Unlock()

		m.log.Warn(ctx, "bootstrap failed", "error", err)
		m.notify(st)
		return e
	}

	m.identity = models.NewIdentity(*profile, authorities)
	st = m.snapshotLocked()
	m.mu.Unlock()

	m.log.Info(ctx, "identity loaded", "user_id", profile.ID, "authorities", len(authorities))
	m.notify(st)
	return nil
}

// scheduleBootstrapLocked starts Bootstrap in the background. Must be called
// with m.mu held so Close cannot miss the goroutine.
func (m *Manager) scheduleBootstrapLocked() {
	if m.closed {
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		err := m.Bootstrap(m.baseCtx)
		switch {
		case err == nil,
			errors.Is(err, ErrSessionChanged),
			errors.Is(err, ErrInvalidPhase),
			errors.Is(err, ErrClosed),
			errors.Is(err, context.Canceled):
		default:
			m.log.Debug(m.baseCtx, "background bootstrap ended", "error", err)
		}
	}()
}
