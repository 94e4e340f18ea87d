// Package session owns the client's authentication state: the phase
// machine, its token side effects and the identity bootstrap.
//
// A Manager is created once per process, initialized with Init and torn down
// with Close. Phase-changing calls are serialized: a second Login, VerifyCode
// or Refresh while one waits on the network fails with ErrBusy. Logout and
// Cancel are always accepted; they start a new epoch, and results of calls
// begun in an older epoch are discarded with ErrSessionChanged.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dmitrijs2005/gophadmin/internal/client/client"
	"github.com/dmitrijs2005/gophadmin/internal/client/models"
	"github.com/dmitrijs2005/gophadmin/internal/client/throttle"
	"github.com/dmitrijs2005/gophadmin/internal/client/tokens"
	"github.com/dmitrijs2005/gophadmin/internal/logging"
)

const (
	opInit       = "init"
	opLogin      = "login"
	opVerifyCode = "verify_code"
	opResendCode = "resend_code"
	opCancel     = "cancel"
	opLogout     = "logout"
	opRefresh    = "refresh"
	opBootstrap  = "bootstrap"
)

type Manager struct {
	api      client.Client
	store    tokens.Store
	throttle *throttle.Throttle
	log      logging.Logger
	now      func() time.Time

	observers     []func(State)
	autoBootstrap bool

	mu         sync.Mutex
	phase      Phase
	identity   *models.Identity
	loading    UserLoading
	busy       bool
	lastErr    *Error
	epoch      uint64
	bootCancel context.CancelFunc
	closed     bool

	boot       singleflight.Group
	wg         sync.WaitGroup
	baseCtx    context.Context
	baseCancel context.CancelFunc
}

// NewManager returns a manager in PhaseInitializing. store must only be
// written through the manager.
func NewManager(api client.Client, store tokens.Store, opts ...Option) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		api:           api,
		store:         store,
		throttle:      throttle.New(throttle.DefaultWindow, throttle.DefaultStep),
		log:           logging.Nop(),
		now:           time.Now,
		autoBootstrap: true,
		phase:         PhaseInitializing,
		baseCtx:       ctx,
		baseCancel:    cancel,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns a snapshot of the session.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Manager) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// Identity returns the loaded identity. ok is false until a bootstrap of the
// current authenticated session has completed.
func (m *Manager) Identity() (id *models.Identity, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.identity, m.identity != nil
}

func (m *Manager) Throttle() *throttle.Throttle {
	return m.throttle
}

// Init reconciles the token store on startup. A complete token pair resumes
// the authenticated session, a live pre-auth token resumes verification,
// anything else starts unauthenticated. An access token whose exp has passed
// is refreshed once; a rejected refresh, or a refreshed pair that cannot be
// saved, ends the session.
func (m *Manager) Init(ctx context.Context) error {
	epoch, err := m.begin(opInit, PhaseInitializing)
	if err != nil {
		return err
	}

	next, pair, expired, err := m.reconcile(ctx)
	if err != nil {
		m.mu.Lock()
		if m.epoch == epoch {
			m.setPhaseLocked(PhaseUnauthenticated)
			m.busy = false
		}
		st := m.snapshotLocked()
		m.mu.Unlock()
		m.notify(st)
		return fmt.Errorf("read token store: %w", err)
	}

	var refreshed *models.TokenPair
	var refreshErr error
	if expired {
		m.log.Info(ctx, "stored access token expired, refreshing")
		refreshed, refreshErr = m.api.RefreshTokens(ctx, pair.RefreshToken)
	}

	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		return ErrSessionChanged
	}

	var result error
	switch {
	case next != PhaseAuthenticated:
	case refreshErr != nil && errors.Is(refreshErr, client.ErrUnauthorized):
		m.log.Info(ctx, "refresh rejected on startup, signing out")
		_ = m.store.ClearTokens(ctx)
		next = PhaseUnauthenticated
		m.lastErr = classify(opInit, KindSessionExpired, msgSessionExpired, refreshErr)
		result = m.lastErr
	case refreshErr != nil:
		// keep the old pair, the server decides on the next request
		m.log.Warn(ctx, "refresh on startup failed", "error", refreshErr)
	case refreshed != nil:
		if err := m.store.SetTokens(ctx, *refreshed); err != nil {
			// the server already consumed the stored refresh token
			m.log.Error(ctx, "failed to persist refreshed tokens", "error", err)
			_ = m.store.ClearTokens(ctx)
			next = PhaseUnauthenticated
			m.lastErr = &Error{Kind: KindNetwork, Op: opInit, Message: msgStorage, Err: err}
			result = m.lastErr
		}
	}

	m.setPhaseLocked(next)
	m.busy = false
	boot := next == PhaseAuthenticated && m.autoBootstrap
	if boot {
		m.scheduleBootstrapLocked()
	}
	st := m.snapshotLocked()
	m.mu.Unlock()

	m.log.Info(ctx, "session initialized", "phase", next)
	m.notify(st)
	return result
}

// reconcile reads the store and picks the startup phase, dropping leftovers
// that cannot coexist with it.
func (m *Manager) reconcile(ctx context.Context) (next Phase, pair models.TokenPair, expired bool, err error) {
	pair, ok, err := m.store.Tokens(ctx)
	if err != nil {
		return PhaseUnauthenticated, pair, false, err
	}
	if ok {
		if err := m.store.ClearPreAuthToken(ctx); err != nil {
			return PhaseUnauthenticated, pair, false, err
		}
		return PhaseAuthenticated, pair, tokens.Expired(pair.AccessToken, m.now()), nil
	}
	if pair.AccessToken != "" || pair.RefreshToken != "" {
		m.log.Warn(ctx, "dropping incomplete token pair")
		if err := m.store.ClearTokens(ctx); err != nil {
			return PhaseUnauthenticated, pair, false, err
		}
	}

	pre, err := m.store.PreAuthToken(ctx)
	if err != nil {
		return PhaseUnauthenticated, pair, false, err
	}
	if pre != "" {
		m.throttle.Reset()
		return PhasePendingVerification, pair, false, nil
	}
	// an expired pre-auth token may still sit in the store
	if err := m.store.ClearPreAuthToken(ctx); err != nil {
		return PhaseUnauthenticated, pair, false, err
	}
	return PhaseUnauthenticated, pair, false, nil
}

// Login checks credentials locally, then against the server. On success the
// pre-auth token is stored and the session waits for the one-time code.
func (m *Manager) Login(ctx context.Context, email, password string) error {
	epoch, err := m.begin(opLogin, PhaseUnauthenticated)
	if err != nil {
		return err
	}

	creds := models.Credentials{Email: strings.TrimSpace(email), Password: password}
	if err := creds.Validate(); err != nil {
		return m.fail(epoch, &Error{Kind: KindInvalidCredentials, Op: opLogin, Message: err.Error(), Err: err})
	}

	grant, err := m.api.Login(ctx, creds)
	if err != nil {
		return m.fail(epoch, classify(opLogin, KindInvalidCredentials, msgInvalidCredentials, err))
	}

	return m.apply(ctx, epoch, opLogin, KindInvalidCredentials, func(ctx context.Context) error {
		if err := m.store.ClearTokens(ctx); err != nil {
			return err
		}
		if err := m.store.SetPreAuthToken(ctx, grant.Token, grant.ExpiresIn); err != nil {
			return err
		}
		m.throttle.Reset()
		m.setPhaseLocked(PhasePendingVerification)
		return nil
	})
}

// VerifyCode exchanges the pre-auth token and code for a token pair. On
// failure the session stays in PhasePendingVerification, except when the
// pre-auth token has already expired locally.
func (m *Manager) VerifyCode(ctx context.Context, code string) error {
	epoch, err := m.begin(opVerifyCode, PhasePendingVerification)
	if err != nil {
		return err
	}

	if err := models.ValidateCode(code); err != nil {
		return m.fail(epoch, &Error{Kind: KindInvalidOrExpiredCode, Op: opVerifyCode, Message: msgCodeFormat, Err: err})
	}

	pre, err := m.store.PreAuthToken(ctx)
	if err != nil {
		return m.fail(epoch, &Error{Kind: KindInvalidOrExpiredCode, Op: opVerifyCode, Message: msgStorage, Err: err})
	}
	if pre == "" {
		return m.expirePreAuth(ctx, epoch, opVerifyCode)
	}

	pair, err := m.api.VerifyCode(ctx, pre, code)
	if err != nil {
		return m.fail(epoch, classify(opVerifyCode, KindInvalidOrExpiredCode, msgInvalidCode, err))
	}

	return m.apply(ctx, epoch, opVerifyCode, KindInvalidOrExpiredCode, func(ctx context.Context) error {
		if err := m.store.SetTokens(ctx, *pair); err != nil {
			return err
		}
		if err := m.store.ClearPreAuthToken(ctx); err != nil {
			if rbErr := m.store.ClearTokens(ctx); rbErr != nil {
				return errors.Join(err, rbErr)
			}
			return err
		}
		m.setPhaseLocked(PhaseAuthenticated)
		if m.autoBootstrap {
			m.scheduleBootstrapLocked()
		}
		return nil
	})
}

// ResendCode asks the server for another code unless the throttle is
// counting down. A throttled call returns an Error of KindResendThrottled
// and is not recorded in State.Err.
func (m *Manager) ResendCode(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.phase != PhasePendingVerification {
		phase := m.phase
		m.mu.Unlock()
		return phaseError(opResendCode, phase)
	}
	epoch := m.epoch
	m.mu.Unlock()

	if !m.throttle.CanResend() {
		return &Error{Kind: KindResendThrottled, Op: opResendCode, Err: throttle.ErrThrottled}
	}

	pre, err := m.store.PreAuthToken(ctx)
	if err != nil {
		return m.record(epoch, &Error{Kind: KindNetwork, Op: opResendCode, Message: msgStorage, Err: err})
	}
	if pre == "" {
		return m.expirePreAuth(ctx, epoch, opResendCode)
	}

	err = m.throttle.Resend(ctx, func(ctx context.Context) error {
		return m.api.ResendCode(ctx, pre)
	})
	switch {
	case errors.Is(err, throttle.ErrThrottled):
		return &Error{Kind: KindResendThrottled, Op: opResendCode, Err: err}
	case errors.Is(err, client.ErrUnauthorized):
		return m.record(epoch, classify(opResendCode, KindInvalidOrExpiredCode, msgInvalidCode, err))
	case err != nil:
		return m.record(epoch, classify(opResendCode, KindNetwork, msgResendFailed, err))
	}

	m.log.Info(ctx, "verification code resent")
	_ = m.record(epoch, nil)
	return nil
}

// Cancel abandons verification and discards the pre-auth token.
func (m *Manager) Cancel(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.phase != PhasePendingVerification {
		phase := m.phase
		m.mu.Unlock()
		return phaseError(opCancel, phase)
	}
	if err := m.store.ClearPreAuthToken(ctx); err != nil {
		m.mu.Unlock()
		return fmt.Errorf("%s: clear pre-auth token: %w", opCancel, err)
	}
	m.setPhaseLocked(PhaseUnauthenticated)
	m.busy = false
	m.lastErr = nil
	st := m.snapshotLocked()
	m.mu.Unlock()

	m.log.Info(ctx, "verification canceled")
	m.notify(st)
	return nil
}

// Logout clears every token, the identity and the last error, and cancels an
// in-flight bootstrap. It is accepted in any phase and is idempotent. The
// in-memory session is signed out even if the store fails; the error is
// returned so the caller can retry.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	err := errors.Join(m.store.ClearTokens(ctx), m.store.ClearPreAuthToken(ctx))
	m.setPhaseLocked(PhaseUnauthenticated)
	m.busy = false
	m.lastErr = nil
	m.throttle.Reset()
	st := m.snapshotLocked()
	m.mu.Unlock()

	m.log.Info(ctx, "logged out")
	m.notify(st)
	if err != nil {
		return fmt.Errorf("%s: %w", opLogout, err)
	}
	return nil
}

// Refresh rotates the token pair. A refresh token rejected by the server
// ends the session.
func (m *Manager) Refresh(ctx context.Context) error {
	epoch, err := m.begin(opRefresh, PhaseAuthenticated)
	if err != nil {
		return err
	}

	refresh, err := m.store.RefreshToken(ctx)
	if err != nil {
		return m.fail(epoch, &Error{Kind: KindNetwork, Op: opRefresh, Message: msgStorage, Err: err})
	}
	if refresh == "" {
		return m.expireSession(ctx, epoch, &Error{Kind: KindSessionExpired, Op: opRefresh, Message: msgSessionExpired})
	}

	pair, err := m.api.RefreshTokens(ctx, refresh)
	if errors.Is(err, client.ErrUnauthorized) {
		return m.expireSession(ctx, epoch, classify(opRefresh, KindSessionExpired, msgSessionExpired, err))
	}
	if err != nil {
		return m.fail(epoch, classify(opRefresh, KindNetwork, msgRefreshFailed, err))
	}

	return m.apply(ctx, epoch, opRefresh, KindNetwork, func(ctx context.Context) error {
		return m.store.SetTokens(ctx, *pair)
	})
}

// Close cancels background work and waits for it. The manager rejects
// further calls with ErrClosed.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.baseCancel()
	m.mu.Unlock()

	m.wg.Wait()
	return nil
}

// begin marks the start of a phase-changing call and captures its epoch.
func (m *Manager) begin(op string, want Phase) (uint64, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return 0, ErrClosed
	}
	if m.busy {
		m.mu.Unlock()
		return 0, ErrBusy
	}
	if m.phase != want {
		phase := m.phase
		m.mu.Unlock()
		return 0, phaseError(op, phase)
	}
	m.busy = true
	m.lastErr = nil
	epoch := m.epoch
	st := m.snapshotLocked()
	m.mu.Unlock()

	m.notify(st)
	return epoch, nil
}

// apply runs fn under the lock if the epoch is unchanged. fn performs the
// store writes and the phase change; if it fails the phase is left alone.
func (m *Manager) apply(ctx context.Context, epoch uint64, op string, kind Kind, fn func(ctx context.Context) error) error {
	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		m.log.Debug(ctx, "discarding stale result", "op", op)
		return ErrSessionChanged
	}

	var result error
	if err := fn(ctx); err != nil {
		m.log.Error(ctx, "failed to persist session", "op", op, "error", err)
		m.lastErr = &Error{Kind: kind, Op: op, Message: msgStorage, Err: err}
		result = m.lastErr
	}
	m.busy = false
	phase := m.phase
	st := m.snapshotLocked()
	m.mu.Unlock()

	if result == nil {
		m.log.Info(ctx, "session updated", "op", op, "phase", phase)
	}
	m.notify(st)
	return result
}

// fail ends a phase-changing call with e, unless the call went stale.
func (m *Manager) fail(epoch uint64, e *Error) error {
	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		return fmt.Errorf("%w: %w", ErrSessionChanged, e)
	}
	m.busy = false
	m.lastErr = e
	st := m.snapshotLocked()
	m.mu.Unlock()

	m.log.Info(m.baseCtx, "operation failed", "op", e.Op, "kind", e.Kind, "error", e.Err)
	m.notify(st)
	return e
}

// record sets or clears the last error without touching busy. Used by
// calls that do not change the phase.
func (m *Manager) record(epoch uint64, e *Error) error {
	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		if e == nil {
			return nil
		}
		return fmt.Errorf("%w: %w", ErrSessionChanged, e)
	}
	m.lastErr = e
	st := m.snapshotLocked()
	m.mu.Unlock()

	m.notify(st)
	if e == nil {
		return nil
	}
	return e
}

// expirePreAuth drops a pre-auth token that expired before use and returns
// the session to PhaseUnauthenticated.
func (m *Manager) expirePreAuth(ctx context.Context, epoch uint64, op string) error {
	return m.expire(ctx, epoch, &Error{
		Kind:    KindInvalidOrExpiredCode,
		Op:      op,
		Message: msgPreAuthExpired,
		Err:     ErrSessionExpired,
	}, false)
}

// expireSession signs out after the server rejected the refresh token.
func (m *Manager) expireSession(ctx context.Context, epoch uint64, e *Error) error {
	return m.expire(ctx, epoch, e, true)
}

func (m *Manager) expire(ctx context.Context, epoch uint64, e *Error, pair bool) error {
	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		return fmt.Errorf("%w: %w", ErrSessionChanged, e)
	}
	var err error
	if pair {
		err = m.store.ClearTokens(ctx)
	}
	err = errors.Join(err, m.store.ClearPreAuthToken(ctx))
	if err != nil {
		m.log.Warn(ctx, "failed to clear expired tokens", "op", e.Op, "error", err)
	}
	m.setPhaseLocked(PhaseUnauthenticated)
	m.busy = false
	m.lastErr = e
	st := m.snapshotLocked()
	m.mu.Unlock()

	m.log.Info(ctx, "session expired", "op", e.Op)
	m.notify(st)
	return e
}

// setPhaseLocked moves to p and starts a new epoch. The identity belongs to
// one authenticated entry, so it is dropped on every change.
func (m *Manager) setPhaseLocked(p Phase) {
	m.phase = p
	m.epoch++
	if m.bootCancel != nil {
		m.bootCancel()
		m.bootCancel = nil
	}
	m.identity = nil
	m.loading = LoadingUnknown
}

func (m *Manager) snapshotLocked() State {
	return State{
		Phase:       m.phase,
		Identity:    m.identity,
		UserLoading: m.loading,
		Busy:        m.busy,
		Err:         m.lastErr,
	}
}

func (m *Manager) notify(st State) {
	for _, fn := range m.observers {
		fn(st)
	}
}

func phaseError(op string, phase Phase) error {
	return fmt.Errorf("%w: %s while %s", ErrInvalidPhase, op, phase)
}
