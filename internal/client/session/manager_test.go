package session

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/dmitrijs2005/gophadmin/internal/client/client"
	"github.com/dmitrijs2005/gophadmin/internal/client/models"
	"github.com/dmitrijs2005/gophadmin/internal/client/throttle"
	"github.com/dmitrijs2005/gophadmin/internal/client/tokens"
	"github.com/dmitrijs2005/gophadmin/internal/mocks"
)

type fixture struct {
	api   *mocks.MockClient
	store *tokens.MemoryStore
	m     *Manager
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	f := &fixture{
		api:   mocks.NewMockClient(ctrl),
		store: tokens.NewMemoryStore(),
	}
	f.m = NewManager(f.api, f.store, append([]Option{WithAutoBootstrap(false)}, opts...)...)
	t.Cleanup(func() { _ = f.m.Close() })
	return f
}

// initUnauthenticated brings an empty fixture to PhaseUnauthenticated.
func (f *fixture) initUnauthenticated(t *testing.T) {
	t.Helper()
	require.NoError(t, f.m.Init(context.Background()))
	require.Equal(t, PhaseUnauthenticated, f.m.Phase())
}

// pending brings the fixture to PhasePendingVerification with pre-auth "S1".
func (f *fixture) pending(t *testing.T) {
	t.Helper()
	f.initUnauthenticated(t)
	f.api.EXPECT().Login(gomock.Any(), gomock.Any()).
		Return(&models.PreAuthGrant{Token: "S1", ExpiresIn: 5 * time.Minute}, nil)
	require.NoError(t, f.m.Login(context.Background(), "user@x.com", "pw"))
	require.Equal(t, PhasePendingVerification, f.m.Phase())
}

// authenticated starts the fixture from a stored pair.
func (f *fixture) authenticated(t *testing.T) {
	t.Helper()
	require.NoError(t, f.store.SetTokens(context.Background(), models.TokenPair{AccessToken: "A1", RefreshToken: "R1"}))
	require.NoError(t, f.m.Init(context.Background()))
	require.Equal(t, PhaseAuthenticated, f.m.Phase())
}

func unauthorized(msg string) error {
	return &client.APIError{Status: http.StatusUnauthorized, Message: msg}
}

func janeDoe() *models.Profile {
	return &models.Profile{ID: "u-1", Email: "user@x.com", FirstName: "Jane", LastName: "Doe"}
}

func TestNewManager_StartsInitializing(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, PhaseInitializing, f.m.Phase())

	err := f.m.Login(context.Background(), "user@x.com", "pw")
	assert.ErrorIs(t, err, ErrInvalidPhase)
}

func TestInit_StoredPairResumesWithoutLogin(t *testing.T) {
	f := newFixture(t)
	f.authenticated(t)

	st := f.m.State()
	assert.Equal(t, LoadingUnknown, st.UserLoading)
	assert.Nil(t, st.Identity)
	assert.False(t, st.Busy)
}

func TestInit_StoredPairClearsLeftoverPreAuth(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.SetPreAuthToken(ctx, "S0", time.Minute))
	f.authenticated(t)

	pre, err := f.store.PreAuthToken(ctx)
	require.NoError(t, err)
	assert.Empty(t, pre)
}

func TestInit_PreAuthResumesVerification(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.SetPreAuthToken(context.Background(), "S1", time.Minute))

	require.NoError(t, f.m.Init(context.Background()))
	assert.Equal(t, PhasePendingVerification, f.m.Phase())
}

func TestInit_OnlyOnce(t *testing.T) {
	f := newFixture(t)
	f.initUnauthenticated(t)
	assert.ErrorIs(t, f.m.Init(context.Background()), ErrInvalidPhase)
}

func expiredJWT(t *testing.T, now time.Time) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "u-1",
		ExpiresAt: jwt.NewNumericDate(now.Add(-time.Minute)),
	}).SignedString([]byte("k"))
	require.NoError(t, err)
	return s
}

func TestInit_ExpiredAccessTokenIsRefreshed(t *testing.T) {
	now := time.Now()
	f := newFixture(t, WithClock(func() time.Time { return now }))
	ctx := context.Background()
	require.NoError(t, f.store.SetTokens(ctx, models.TokenPair{AccessToken: expiredJWT(t, now), RefreshToken: "R1"}))

	f.api.EXPECT().RefreshTokens(gomock.Any(), "R1").
		Return(&models.TokenPair{AccessToken: "A2", RefreshToken: "R2"}, nil)

	require.NoError(t, f.m.Init(ctx))
	assert.Equal(t, PhaseAuthenticated, f.m.Phase())

	pair, ok, err := f.store.Tokens(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, models.TokenPair{AccessToken: "A2", RefreshToken: "R2"}, pair)
}

func TestInit_RejectedRefreshSignsOut(t *testing.T) {
	now := time.Now()
	f := newFixture(t, WithClock(func() time.Time { return now }))
	ctx := context.Background()
	require.NoError(t, f.store.SetTokens(ctx, models.TokenPair{AccessToken: expiredJWT(t, now), RefreshToken: "R1"}))

	f.api.EXPECT().RefreshTokens(gomock.Any(), "R1").Return(nil, unauthorized(""))

	err := f.m.Init(ctx)
	require.ErrorIs(t, err, ErrSessionExpired)
	assert.Equal(t, PhaseUnauthenticated, f.m.Phase())

	_, ok, err := f.store.Tokens(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInit_UnsavedRefreshEndsSession(t *testing.T) {
	now := time.Now()
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	api := mocks.NewMockClient(ctrl)
	mem := tokens.NewMemoryStore()
	require.NoError(t, mem.SetTokens(ctx, models.TokenPair{AccessToken: expiredJWT(t, now), RefreshToken: "R1"}))

	m := NewManager(api, &failingStore{MemoryStore: mem, setTokensErr: errors.New("disk full")}, WithAutoBootstrap(false), WithClock(func() time.Time { return now }))
	t.Cleanup(func() { _ = m.Close() })

	api.EXPECT().RefreshTokens(gomock.Any(), "R1").
		Return(&models.TokenPair{AccessToken: "A2", RefreshToken: "R2"}, nil)

	err := m.Init(ctx)
	var se *Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, opInit, se.Op)
	assert.ErrorContains(t, err, "disk full")
	assert.Equal(t, PhaseUnauthenticated, m.Phase())
	assert.Same(t, se, m.State().Err)

	_, ok, err := mem.Tokens(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "the consumed pair is not kept")
}

func TestInit_RefreshUnreachableKeepsSession(t *testing.T) {
	now := time.Now()
	f := newFixture(t, WithClock(func() time.Time { return now }))
	ctx := context.Background()
	require.NoError(t, f.store.SetTokens(ctx, models.TokenPair{AccessToken: expiredJWT(t, now), RefreshToken: "R1"}))

	f.api.EXPECT().RefreshTokens(gomock.Any(), "R1").Return(nil, client.ErrUnavailable)

	require.NoError(t, f.m.Init(ctx))
	assert.Equal(t, PhaseAuthenticated, f.m.Phase())
}

func TestLogin_Success(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.initUnauthenticated(t)
	// leftovers of an older session
	require.NoError(t, f.store.SetTokens(ctx, models.TokenPair{AccessToken: "old", RefreshToken: "old"}))

	f.api.EXPECT().Login(gomock.Any(), models.Credentials{Email: "user@x.com", Password: "pw"}).
		Return(&models.PreAuthGrant{Token: "S1", ExpiresIn: 5 * time.Minute}, nil)

	require.NoError(t, f.m.Login(ctx, " user@x.com ", "pw"))

	st := f.m.State()
	assert.Equal(t, PhasePendingVerification, st.Phase)
	assert.Nil(t, st.Err)
	assert.False(t, st.Busy)

	pre, err := f.store.PreAuthToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "S1", pre)

	_, ok, err := f.store.Tokens(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "previous tokens must be cleared")
}

func TestLogin_RejectedStaysUnauthenticated(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		message string
	}{
		{"fallback message", unauthorized(""), "Invalid email or password"},
		{"server message wins", unauthorized("Account is locked"), "Account is locked"},
		{"transport failure", client.ErrUnavailable, "Server is unavailable, try again later"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			f.initUnauthenticated(t)
			f.api.EXPECT().Login(gomock.Any(), gomock.Any()).Return(nil, tc.err)

			err := f.m.Login(ctx, "user@x.com", "pw")
			require.ErrorIs(t, err, ErrInvalidCredentials)
			require.ErrorIs(t, err, tc.err)

			st := f.m.State()
			assert.Equal(t, PhaseUnauthenticated, st.Phase)
			require.NotNil(t, st.Err)
			assert.Equal(t, tc.message, st.Err.Message)
			assert.Equal(t, KindInvalidCredentials, st.Err.Kind)

			pre, err := f.store.PreAuthToken(ctx)
			require.NoError(t, err)
			assert.Empty(t, pre)
		})
	}
}

func TestLogin_InvalidInputMakesNoCall(t *testing.T) {
	f := newFixture(t)
	f.initUnauthenticated(t)

	err := f.m.Login(context.Background(), "not-an-email", "pw")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	err = f.m.Login(context.Background(), "user@x.com", "")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Equal(t, PhaseUnauthenticated, f.m.Phase())
}

func TestLogin_SecondCallWhileInFlightIsBusy(t *testing.T) {
	f := newFixture(t)
	f.initUnauthenticated(t)

	entered := make(chan struct{})
	release := make(chan struct{})
	f.api.EXPECT().Login(gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, models.Credentials) (*models.PreAuthGrant, error) {
			close(entered)
			<-release
			return &models.PreAuthGrant{Token: "S1", ExpiresIn: time.Minute}, nil
		})

	done := make(chan error, 1)
	go func() { done <- f.m.Login(context.Background(), "user@x.com", "pw") }()
	<-entered

	assert.True(t, f.m.State().Busy)
	assert.ErrorIs(t, f.m.Login(context.Background(), "user@x.com", "pw"), ErrBusy)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, PhasePendingVerification, f.m.Phase())
}

func TestLogin_LogoutWhileInFlightDiscardsResult(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.initUnauthenticated(t)

	entered := make(chan struct{})
	release := make(chan struct{})
	f.api.EXPECT().Login(gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, models.Credentials) (*models.PreAuthGrant, error) {
			close(entered)
			<-release
			return &models.PreAuthGrant{Token: "S1", ExpiresIn: time.Minute}, nil
		})

	done := make(chan error, 1)
	go func() { done <- f.m.Login(ctx, "user@x.com", "pw") }()
	<-entered

	require.NoError(t, f.m.Logout(ctx))
	close(release)

	require.ErrorIs(t, <-done, ErrSessionChanged)
	assert.Equal(t, PhaseUnauthenticated, f.m.Phase())
	pre, err := f.store.PreAuthToken(ctx)
	require.NoError(t, err)
	assert.Empty(t, pre)
}

func TestVerifyCode_Scenario(t *testing.T) {
	f := newFixture(t, WithAutoBootstrap(true))
	ctx := context.Background()
	f.pending(t)

	f.api.EXPECT().VerifyCode(gomock.Any(), "S1", "000000").Return(nil, &client.APIError{Status: http.StatusBadRequest})
	err := f.m.VerifyCode(ctx, "000000")
	require.ErrorIs(t, err, ErrInvalidOrExpiredCode)

	st := f.m.State()
	assert.Equal(t, PhasePendingVerification, st.Phase)
	require.NotNil(t, st.Err)
	assert.Equal(t, "Invalid or expired code", st.Err.Message)

	gomock.InOrder(
		f.api.EXPECT().VerifyCode(gomock.Any(), "S1", "123456").
			Return(&models.TokenPair{AccessToken: "A1", RefreshToken: "R1"}, nil),
		f.api.EXPECT().FetchCurrentUserAuthorities(gomock.Any()).Return([]string{"users.read"}, nil),
		f.api.EXPECT().FetchCurrentUserProfile(gomock.Any()).Return(janeDoe(), nil),
	)
	require.NoError(t, f.m.VerifyCode(ctx, "123456"))
	assert.Equal(t, PhaseAuthenticated, f.m.Phase())

	pair, ok, err := f.store.Tokens(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "A1", pair.AccessToken)
	pre, err := f.store.PreAuthToken(ctx)
	require.NoError(t, err)
	assert.Empty(t, pre)

	// joins the background bootstrap or returns at once if it finished
	require.NoError(t, f.m.Bootstrap(ctx))

	id, ok := f.m.Identity()
	require.True(t, ok)
	name, ok := id.FullName()
	require.True(t, ok)
	assert.Equal(t, "Jane Doe", name)
	assert.True(t, id.HasAuthority("users.read"))
	assert.Equal(t, LoadingDone, f.m.State().UserLoading)
}

func TestVerifyCode_WrongLengthMakesNoCall(t *testing.T) {
	f := newFixture(t)
	f.pending(t)

	for _, code := range []string{"", "12345", "1234567"} {
		err := f.m.VerifyCode(context.Background(), code)
		require.ErrorIs(t, err, ErrInvalidOrExpiredCode, code)
	}
	assert.Equal(t, PhasePendingVerification, f.m.Phase())
}

func TestVerifyCode_ExpiredPreAuthReturnsToLogin(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	ctrl := gomock.NewController(t)
	api := mocks.NewMockClient(ctrl)
	store := tokens.NewMemoryStore(tokens.WithClock(clock))
	m := NewManager(api, store, WithAutoBootstrap(false))
	t.Cleanup(func() { _ = m.Close() })

	ctx := context.Background()
	require.NoError(t, store.SetPreAuthToken(ctx, "S1", time.Minute))
	require.NoError(t, m.Init(ctx))
	require.Equal(t, PhasePendingVerification, m.Phase())

	now = now.Add(2 * time.Minute)
	err := m.VerifyCode(ctx, "123456")
	require.ErrorIs(t, err, ErrInvalidOrExpiredCode)
	assert.Equal(t, PhaseUnauthenticated, m.Phase())
}

type failingStore struct {
	*tokens.MemoryStore
	clearPreAuthErr error
	setTokensErr    error
}

func (s *failingStore) SetTokens(ctx context.Context, pair models.TokenPair) error {
	if s.setTokensErr != nil {
		return s.setTokensErr
	}
	return s.MemoryStore.SetTokens(ctx, pair)
}

func (s *failingStore) ClearPreAuthToken(ctx context.Context) error {
	if s.clearPreAuthErr != nil {
		return s.clearPreAuthErr
	}
	return s.MemoryStore.ClearPreAuthToken(ctx)
}

func TestVerifyCode_StoreFailureRollsBackPair(t *testing.T) {
	ctrl := gomock.NewController(t)
	api := mocks.NewMockClient(ctrl)
	store := &failingStore{MemoryStore: tokens.NewMemoryStore()}
	m := NewManager(api, store, WithAutoBootstrap(false))
	t.Cleanup(func() { _ = m.Close() })
	ctx := context.Background()

	require.NoError(t, store.SetPreAuthToken(ctx, "S1", time.Minute))
	require.NoError(t, m.Init(ctx))

	store.clearPreAuthErr = errors.New("disk full")
	api.EXPECT().VerifyCode(gomock.Any(), "S1", "123456").
		Return(&models.TokenPair{AccessToken: "A1", RefreshToken: "R1"}, nil)

	err := m.VerifyCode(ctx, "123456")
	require.Error(t, err)
	assert.Equal(t, PhasePendingVerification, m.Phase())

	_, ok, err := store.Tokens(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "pair must not outlive a failed transition")
}

func TestResendCode_Throttled(t *testing.T) {
	th := throttle.New(30*time.Second, time.Second)
	f := newFixture(t, WithThrottle(th))
	ctx := context.Background()
	f.pending(t)
	require.True(t, th.CanResend(), "entering verification opens the gate")

	f.api.EXPECT().ResendCode(gomock.Any(), "S1").Return(nil).Times(1)

	require.NoError(t, f.m.ResendCode(ctx))
	th.Tick()
	remaining := th.Remaining()

	err := f.m.ResendCode(ctx)
	require.ErrorIs(t, err, ErrResendThrottled)
	assert.Equal(t, remaining, th.Remaining(), "countdown must not restart")
	assert.Nil(t, f.m.State().Err, "throttled resends are not surfaced")
	assert.Equal(t, PhasePendingVerification, f.m.Phase())
}

func TestResendCode_ServerErrorIsRecorded(t *testing.T) {
	f := newFixture(t)
	f.pending(t)

	f.api.EXPECT().ResendCode(gomock.Any(), "S1").
		Return(&client.APIError{Status: http.StatusTooManyRequests, Message: "Slow down"})

	err := f.m.ResendCode(context.Background())
	require.ErrorIs(t, err, ErrNetwork)
	require.NotNil(t, f.m.State().Err)
	assert.Equal(t, "Slow down", f.m.State().Err.Message)
}

func TestResendCode_WrongPhase(t *testing.T) {
	f := newFixture(t)
	f.initUnauthenticated(t)
	assert.ErrorIs(t, f.m.ResendCode(context.Background()), ErrInvalidPhase)
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.pending(t)

	require.NoError(t, f.m.Cancel(ctx))
	assert.Equal(t, PhaseUnauthenticated, f.m.Phase())

	pre, err := f.store.PreAuthToken(ctx)
	require.NoError(t, err)
	assert.Empty(t, pre)

	assert.ErrorIs(t, f.m.Cancel(ctx), ErrInvalidPhase)
}

func TestLogout_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.authenticated(t)

	require.NoError(t, f.m.Logout(ctx))
	first := f.m.State()
	require.NoError(t, f.m.Logout(ctx))
	second := f.m.State()

	assert.Equal(t, first, second)
	assert.Equal(t, PhaseUnauthenticated, second.Phase)
	assert.Nil(t, second.Identity)

	_, ok, err := f.store.Tokens(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLogout_DiscardsInFlightBootstrap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.authenticated(t)

	entered := make(chan struct{})
	release := make(chan struct{})
	f.api.EXPECT().FetchCurrentUserAuthorities(gomock.Any()).
		DoAndReturn(func(ctx context.Context) ([]string, error) {
			close(entered)
			<-release
			return []string{"users.read"}, nil
		})
	f.api.EXPECT().FetchCurrentUserProfile(gomock.Any()).Return(janeDoe(), nil).AnyTimes()

	done := make(chan error, 1)
	go func() { done <- f.m.Bootstrap(ctx) }()
	<-entered
	assert.Equal(t, LoadingInProgress, f.m.State().UserLoading)

	require.NoError(t, f.m.Logout(ctx))
	close(release)

	require.ErrorIs(t, <-done, ErrSessionChanged)
	_, ok := f.m.Identity()
	assert.False(t, ok)
	assert.Equal(t, PhaseUnauthenticated, f.m.Phase())
}

func TestBootstrap_FailureKeepsPhase(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.authenticated(t)

	f.api.EXPECT().FetchCurrentUserAuthorities(gomock.Any()).Return([]string{"users.read"}, nil)
	f.api.EXPECT().FetchCurrentUserProfile(gomock.Any()).Return(nil, client.ErrUnavailable)

	err := f.m.Bootstrap(ctx)
	require.ErrorIs(t, err, ErrProfileFetchFailed)

	st := f.m.State()
	assert.Equal(t, PhaseAuthenticated, st.Phase)
	assert.Equal(t, LoadingDone, st.UserLoading)
	assert.Nil(t, st.Identity)
	require.NotNil(t, st.Err)
	assert.Equal(t, KindProfileFetchFailed, st.Err.Kind)

	// a retry may succeed
	f.api.EXPECT().FetchCurrentUserAuthorities(gomock.Any()).Return(nil, nil)
	f.api.EXPECT().FetchCurrentUserProfile(gomock.Any()).Return(janeDoe(), nil)
	require.NoError(t, f.m.Bootstrap(ctx))
	assert.Nil(t, f.m.State().Err)

	// loaded identity is not fetched again
	require.NoError(t, f.m.Bootstrap(ctx))
}

func TestBootstrap_ConcurrentCallersShareOneFetch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.authenticated(t)

	release := make(chan struct{})
	f.api.EXPECT().FetchCurrentUserAuthorities(gomock.Any()).
		DoAndReturn(func(context.Context) ([]string, error) {
			<-release
			return []string{}, nil
		}).Times(1)
	f.api.EXPECT().FetchCurrentUserProfile(gomock.Any()).Return(janeDoe(), nil).Times(1)

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = f.m.Bootstrap(ctx)
		}(i)
	}
	assert.Eventually(t, func() bool {
		return f.m.State().UserLoading == LoadingInProgress
	}, time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
}

func TestRefresh(t *testing.T) {
	t.Run("rotates pair", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		f.authenticated(t)

		f.api.EXPECT().RefreshTokens(gomock.Any(), "R1").
			Return(&models.TokenPair{AccessToken: "A2", RefreshToken: "R2"}, nil)
		require.NoError(t, f.m.Refresh(ctx))

		pair, ok, err := f.store.Tokens(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "R2", pair.RefreshToken)
		assert.Equal(t, PhaseAuthenticated, f.m.Phase())
	})

	t.Run("rejected refresh signs out", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		f.authenticated(t)

		f.api.EXPECT().RefreshTokens(gomock.Any(), "R1").Return(nil, unauthorized("Refresh token revoked"))
		err := f.m.Refresh(ctx)
		require.ErrorIs(t, err, ErrSessionExpired)
		assert.Equal(t, PhaseUnauthenticated, f.m.Phase())
		assert.Equal(t, "Refresh token revoked", f.m.State().Err.Message)

		_, ok, err := f.store.Tokens(ctx)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("network failure keeps session", func(t *testing.T) {
		f := newFixture(t)
		f.authenticated(t)

		f.api.EXPECT().RefreshTokens(gomock.Any(), "R1").Return(nil, client.ErrUnavailable)
		require.ErrorIs(t, f.m.Refresh(context.Background()), ErrNetwork)
		assert.Equal(t, PhaseAuthenticated, f.m.Phase())
	})
}

func TestObserver_SeesTransitions(t *testing.T) {
	var (
		mu     sync.Mutex
		phases []Phase
		busy   bool
	)
	f := newFixture(t, WithObserver(func(st State) {
		mu.Lock()
		defer mu.Unlock()
		if len(phases) == 0 || phases[len(phases)-1] != st.Phase {
			phases = append(phases, st.Phase)
		}
		busy = busy || st.Busy
	}))
	f.pending(t)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []Phase{PhaseInitializing, PhaseUnauthenticated, PhasePendingVerification}, phases)
	assert.True(t, busy, "observers see the loading flag")
}

func TestClose_RejectsFurtherCalls(t *testing.T) {
	f := newFixture(t)
	f.initUnauthenticated(t)

	require.NoError(t, f.m.Close())
	require.NoError(t, f.m.Close())
	assert.ErrorIs(t, f.m.Login(context.Background(), "user@x.com", "pw"), ErrClosed)
	assert.ErrorIs(t, f.m.Logout(context.Background()), ErrClosed)
}

func TestClose_WaitsForBackgroundBootstrap(t *testing.T) {
	f := newFixture(t, WithAutoBootstrap(true))
	ctx := context.Background()
	require.NoError(t, f.store.SetTokens(ctx, models.TokenPair{AccessToken: "A1", RefreshToken: "R1"}))

	f.api.EXPECT().FetchCurrentUserAuthorities(gomock.Any()).
		DoAndReturn(func(ctx context.Context) ([]string, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}).AnyTimes()

	require.NoError(t, f.m.Init(ctx))
	assert.Eventually(t, func() bool {
		return f.m.State().UserLoading == LoadingInProgress
	}, time.Second, time.Millisecond)

	closed := make(chan struct{})
	go func() {
		_ = f.m.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("Close did not return")
	}
}
