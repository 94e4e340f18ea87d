package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/dmitrijs2005/gophadmin/internal/common"
	"github.com/dmitrijs2005/gophadmin/internal/logging"
	"github.com/dmitrijs2005/gophadmin/internal/server/auth"
	"github.com/dmitrijs2005/gophadmin/internal/server/config"
	"github.com/dmitrijs2005/gophadmin/internal/server/models"
	"github.com/dmitrijs2005/gophadmin/internal/server/repositories/codes"
	"github.com/dmitrijs2005/gophadmin/internal/server/repositories/repomanager"
)

type captureSender struct {
	mu    sync.Mutex
	codes []string
	err   error
}

func (c *captureSender) SendCode(_ context.Context, _ *models.User, code string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.codes = append(c.codes, code)
	return nil
}

func (c *captureSender) last(t *testing.T) string {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	require.NotEmpty(t, c.codes, "no code was sent")
	return c.codes[len(c.codes)-1]
}

type fixture struct {
	svc    *AuthService
	repos  *repomanager.MemoryRepositoryManager
	sender *captureSender
	clock  time.Time
	user   *models.User
}

func (f *fixture) advance(d time.Duration) { f.clock = f.clock.Add(d) }

func newFixture(t *testing.T) *fixture {
	t.Helper()

	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.BcryptCost = bcrypt.MinCost

	f := &fixture{
		repos:  repomanager.NewMemoryRepositoryManager(),
		sender: &captureSender{},
		clock:  time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	hash, err := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.MinCost)
	require.NoError(t, err)
	f.user, err = f.repos.Users().Create(context.Background(), &models.User{
		Email:        "jane@acme.io",
		PasswordHash: string(hash),
		FirstName:    "Jane",
		LastName:     "Doe",
		IsActive:     true,
		Authorities:  []string{"USER_READ"},
	})
	require.NoError(t, err)

	f.svc, err = NewAuthService(f.repos, codes.NewMemoryRepository(), f.sender, cfg, logging.Nop())
	require.NoError(t, err)
	f.svc.now = func() time.Time { return f.clock }
	return f
}

func (f *fixture) login(t *testing.T) *PreAuth {
	t.Helper()
	pre, err := f.svc.Login(context.Background(), "jane@acme.io", "password")
	require.NoError(t, err)
	return pre
}

func TestLogin_IssuesPreAuthTokenAndCode(t *testing.T) {
	f := newFixture(t)

	pre, err := f.svc.Login(context.Background(), "JANE@acme.io", "password")
	require.NoError(t, err)

	assert.Equal(t, 5*time.Minute, pre.ExpiresIn)
	claims, err := auth.ParseToken(pre.Token, auth.PurposePreAuth, []byte("secretKey"), f.clock)
	require.NoError(t, err)
	assert.Equal(t, f.user.ID, claims.Subject)
	assert.Len(t, f.sender.last(t), common.CodeLength)
}

func TestLogin_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Login(ctx, "jane@acme.io", "wrong")
	assert.ErrorIs(t, err, common.ErrorUnauthorized)

	_, err = f.svc.Login(ctx, "nobody@acme.io", "password")
	assert.ErrorIs(t, err, common.ErrorUnauthorized)

	hash, _ := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.MinCost)
	_, err = f.repos.Users().Create(ctx, &models.User{Email: "off@acme.io", PasswordHash: string(hash)})
	require.NoError(t, err)
	_, err = f.svc.Login(ctx, "off@acme.io", "password")
	assert.ErrorIs(t, err, common.ErrorUnauthorized)

	assert.Empty(t, f.sender.codes)
}

func TestLogin_SendFailure(t *testing.T) {
	f := newFixture(t)
	f.sender.err = errors.New("smtp down")

	_, err := f.svc.Login(context.Background(), "jane@acme.io", "password")
	assert.ErrorIs(t, err, common.ErrorInternal)
}

func TestVerifyCode_Success(t *testing.T) {
	f := newFixture(t)
	pre := f.login(t)

	pair, err := f.svc.VerifyCode(context.Background(), pre.Token, f.sender.last(t))
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)

	userID, err := f.svc.AuthenticateAccess(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, f.user.ID, userID)

	_, err = f.svc.AuthenticateAccess(pre.Token)
	assert.Error(t, err, "pre-auth token must not grant access")
}

func TestVerifyCode_SingleUse(t *testing.T) {
	f := newFixture(t)
	pre := f.login(t)
	code := f.sender.last(t)

	_, err := f.svc.VerifyCode(context.Background(), pre.Token, code)
	require.NoError(t, err)

	_, err = f.svc.VerifyCode(context.Background(), pre.Token, code)
	assert.ErrorIs(t, err, common.ErrInvalidCode)
}

func TestVerifyCode_WrongCodeAndAttemptLimit(t *testing.T) {
	f := newFixture(t)
	pre := f.login(t)
	code := f.sender.last(t)
	ctx := context.Background()

	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}

	for i := 0; i < 4; i++ {
		_, err := f.svc.VerifyCode(ctx, pre.Token, wrong)
		require.ErrorIs(t, err, common.ErrInvalidCode)
	}
	_, err := f.svc.VerifyCode(ctx, pre.Token, code)
	require.NoError(t, err, "fewer than max attempts keeps the code")

	pre = f.login(t)
	code = f.sender.last(t)
	for i := 0; i < 5; i++ {
		_, err := f.svc.VerifyCode(ctx, pre.Token, wrong)
		require.ErrorIs(t, err, common.ErrInvalidCode)
	}
	_, err = f.svc.VerifyCode(ctx, pre.Token, code)
	assert.ErrorIs(t, err, common.ErrInvalidCode, "code is dropped after max attempts")
}

func TestVerifyCode_Expired(t *testing.T) {
	f := newFixture(t)
	pre := f.login(t)
	code := f.sender.last(t)

	f.advance(5*time.Minute + time.Second)
	_, err := f.svc.VerifyCode(context.Background(), pre.Token, code)
	assert.ErrorIs(t, err, common.ErrInvalidCode)
}

func TestVerifyCode_BadToken(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	_, err := f.svc.VerifyCode(context.Background(), "garbage", f.sender.last(t))
	assert.ErrorIs(t, err, common.ErrInvalidCode)
}

func TestResendCode(t *testing.T) {
	f := newFixture(t)
	pre := f.login(t)
	first := f.sender.last(t)
	ctx := context.Background()

	err := f.svc.ResendCode(ctx, pre.Token)
	assert.ErrorIs(t, err, common.ErrResendTooSoon)
	assert.Len(t, f.sender.codes, 1)

	f.advance(30 * time.Second)
	require.NoError(t, f.svc.ResendCode(ctx, pre.Token))
	require.Len(t, f.sender.codes, 2)
	second := f.sender.last(t)

	if first != second {
		_, err = f.svc.VerifyCode(ctx, pre.Token, first)
		assert.ErrorIs(t, err, common.ErrInvalidCode, "old code is replaced")
	}
	_, err = f.svc.VerifyCode(ctx, pre.Token, second)
	require.NoError(t, err)

	err = f.svc.ResendCode(ctx, pre.Token)
	assert.ErrorIs(t, err, common.ErrInvalidCode, "no pending code after sign-in")
}

func TestRefresh_RotatesAndRejectsReplay(t *testing.T) {
	f := newFixture(t)
	pre := f.login(t)
	ctx := context.Background()

	pair, err := f.svc.VerifyCode(ctx, pre.Token, f.sender.last(t))
	require.NoError(t, err)

	next, err := f.svc.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, pair.RefreshToken, next.RefreshToken)

	_, err = f.svc.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, common.ErrorUnauthorized)

	_, err = f.svc.Refresh(ctx, next.RefreshToken)
	assert.NoError(t, err)
}

func TestRefresh_StoresDigestOnly(t *testing.T) {
	f := newFixture(t)
	pre := f.login(t)
	ctx := context.Background()

	pair, err := f.svc.VerifyCode(ctx, pre.Token, f.sender.last(t))
	require.NoError(t, err)

	_, err = f.repos.RefreshTokens().Take(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, common.ErrorNotFound)
	rt, err := f.repos.RefreshTokens().Take(ctx, tokenDigest(pair.RefreshToken))
	require.NoError(t, err)
	assert.Equal(t, f.user.ID, rt.UserID)
}

func TestRefresh_Expired(t *testing.T) {
	f := newFixture(t)
	pre := f.login(t)
	ctx := context.Background()

	pair, err := f.svc.VerifyCode(ctx, pre.Token, f.sender.last(t))
	require.NoError(t, err)

	f.advance(24 * time.Hour)
	_, err = f.svc.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, common.ErrRefreshTokenExpired)

	// the expired token was consumed
	_, err = f.svc.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, common.ErrorUnauthorized)
}

func TestRefresh_ConcurrentOnlyOneWins(t *testing.T) {
	f := newFixture(t)
	pre := f.login(t)
	ctx := context.Background()

	pair, err := f.svc.VerifyCode(ctx, pre.Token, f.sender.last(t))
	require.NoError(t, err)

	const n = 8
	var wg sync.WaitGroup
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Refresh(ctx, pair.RefreshToken)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	ok := 0
	for err := range results {
		if err == nil {
			ok++
		} else {
			assert.ErrorIs(t, err, common.ErrorUnauthorized)
		}
	}
	assert.Equal(t, 1, ok)
}

func TestCurrentUserAndAuthorities(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	u, err := f.svc.CurrentUser(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, "Jane", u.FirstName)

	auths, err := f.svc.Authorities(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"USER_READ"}, auths)

	_, err = f.svc.CurrentUser(ctx, "missing")
	assert.ErrorIs(t, err, common.ErrorUnauthorized)
}

func TestAuthenticateAccess_Expired(t *testing.T) {
	f := newFixture(t)
	pre := f.login(t)

	pair, err := f.svc.VerifyCode(context.Background(), pre.Token, f.sender.last(t))
	require.NoError(t, err)

	f.advance(16 * time.Minute)
	_, err = f.svc.AuthenticateAccess(pair.AccessToken)
	assert.ErrorIs(t, err, common.ErrTokenExpired)
}
