// Package services implements the two-step sign-in flow of the auth server:
// password check, one-time code, then an access/refresh token pair.
package services

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/dmitrijs2005/gophadmin/internal/common"
	"github.com/dmitrijs2005/gophadmin/internal/logging"
	"github.com/dmitrijs2005/gophadmin/internal/server/auth"
	"github.com/dmitrijs2005/gophadmin/internal/server/config"
	"github.com/dmitrijs2005/gophadmin/internal/server/models"
	"github.com/dmitrijs2005/gophadmin/internal/server/repositories/codes"
	"github.com/dmitrijs2005/gophadmin/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/gophadmin/internal/server/repositories/repomanager"
)

// PreAuth is the result of a successful password check.
type PreAuth struct {
	Token     string
	ExpiresIn time.Duration
}

type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// CodeSender delivers one-time codes to users.
type CodeSender interface {
	SendCode(ctx context.Context, user *models.User, code string) error
}

// LogCodeSender writes codes to the server log. Development only.
type LogCodeSender struct {
	log logging.Logger
}

func NewLogCodeSender(log logging.Logger) *LogCodeSender {
	return &LogCodeSender{log: log}
}

func (s *LogCodeSender) SendCode(ctx context.Context, user *models.User, code string) error {
	s.log.Info(ctx, "verification code issued", "email", user.Email, "code", code)
	return nil
}

type AuthService struct {
	repos  repomanager.RepositoryManager
	codes  codes.Repository
	sender CodeSender
	log    logging.Logger
	now    func() time.Time

	jwtSecret      []byte
	preAuthTTL     time.Duration
	accessTTL      time.Duration
	refreshTTL     time.Duration
	codeTTL        time.Duration
	resendInterval time.Duration
	maxAttempts    int

	// dummyHash keeps the response time of unknown emails close to that of
	// wrong passwords.
	dummyHash []byte

	// codeMu serializes code checks so a code is accepted at most once.
	codeMu sync.Mutex
}

func NewAuthService(m repomanager.RepositoryManager, c codes.Repository, sender CodeSender, cfg *config.Config, log logging.Logger) (*AuthService, error) {
	dummy, err := bcrypt.GenerateFromPassword([]byte("not a password"), cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("prepare dummy hash: %w", err)
	}
	return &AuthService{
		repos:          m,
		codes:          c,
		sender:         sender,
		log:            log,
		now:            time.Now,
		jwtSecret:      []byte(cfg.SecretKey),
		preAuthTTL:     cfg.PreAuthTokenValidityDuration,
		accessTTL:      cfg.AccessTokenValidityDuration,
		refreshTTL:     cfg.RefreshTokenValidityDuration,
		codeTTL:        cfg.CodeValidityDuration,
		resendInterval: cfg.ResendInterval,
		maxAttempts:    cfg.MaxCodeAttempts,
		dummyHash:      dummy,
	}, nil
}

// Login checks the password and sends a one-time code. Unknown emails, wrong
// passwords and inactive accounts all return common.ErrorUnauthorized.
func (s *AuthService) Login(ctx context.Context, email, password string) (*PreAuth, error) {
	user, err := s.repos.Users().GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
			return nil, common.ErrorUnauthorized
		}
		return nil, s.internal(ctx, "user lookup failed", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return nil, common.ErrorUnauthorized
		}
		return nil, s.internal(ctx, "password check failed", err)
	}
	if !user.IsActive {
		return nil, common.ErrorUnauthorized
	}

	now := s.now()
	token, claims, err := auth.GenerateToken(user.ID, auth.PurposePreAuth, s.jwtSecret, now, s.preAuthTTL)
	if err != nil {
		return nil, s.internal(ctx, "pre-auth token generation failed", err)
	}

	if err := s.issueCode(ctx, claims, user, now); err != nil {
		return nil, err
	}

	s.log.Info(ctx, "password accepted, code sent", "user_id", user.ID)
	return &PreAuth{Token: token, ExpiresIn: s.preAuthTTL}, nil
}

// VerifyCode exchanges a pre-auth token and its code for a token pair. Every
// failure, expired token included, is common.ErrInvalidCode. A code is
// dropped once used or after too many wrong attempts.
func (s *AuthService) VerifyCode(ctx context.Context, preAuthToken, code string) (*TokenPair, error) {
	now := s.now()
	claims, err := auth.ParseToken(preAuthToken, auth.PurposePreAuth, s.jwtSecret, now)
	if err != nil {
		return nil, common.ErrInvalidCode
	}

	s.codeMu.Lock()
	defer s.codeMu.Unlock()

	oc, err := s.pendingCode(ctx, claims.ID)
	if err != nil {
		return nil, err
	}

	if now.After(oc.ExpiresAt) {
		_ = s.codes.Delete(ctx, oc.SessionID)
		return nil, common.ErrInvalidCode
	}

	if subtle.ConstantTimeCompare([]byte(oc.Code), []byte(code)) != 1 {
		oc.Attempts++
		if oc.Attempts >= s.maxAttempts {
			s.log.Warn(ctx, "code attempts exhausted", "user_id", oc.UserID)
			_ = s.codes.Delete(ctx, oc.SessionID)
		} else if err := s.codes.Put(ctx, oc); err != nil {
			return nil, s.internal(ctx, "code update failed", err)
		}
		return nil, common.ErrInvalidCode
	}

	if err := s.codes.Delete(ctx, oc.SessionID); err != nil {
		return nil, s.internal(ctx, "code delete failed", err)
	}

	user, err := s.activeUser(ctx, claims.Subject)
	if err != nil {
		return nil, err
	}

	var pair *TokenPair
	err = s.repos.WithTx(ctx, func(ctx context.Context, tokens refreshtokens.Repository) error {
		pair, err = s.issuePair(ctx, tokens, user.ID, now)
		return err
	})
	if err != nil {
		return nil, s.internal(ctx, "token pair issue failed", err)
	}

	s.log.Info(ctx, "code accepted", "user_id", user.ID)
	return pair, nil
}

// ResendCode replaces the pending code of a pre-auth session. It returns
// common.ErrResendTooSoon within the resend interval of the previous send.
func (s *AuthService) ResendCode(ctx context.Context, preAuthToken string) error {
	now := s.now()
	claims, err := auth.ParseToken(preAuthToken, auth.PurposePreAuth, s.jwtSecret, now)
	if err != nil {
		return common.ErrInvalidCode
	}

	s.codeMu.Lock()
	defer s.codeMu.Unlock()

	oc, err := s.pendingCode(ctx, claims.ID)
	if err != nil {
		return err
	}
	if now.Sub(oc.SentAt) < s.resendInterval {
		return common.ErrResendTooSoon
	}

	user, err := s.activeUser(ctx, claims.Subject)
	if err != nil {
		return err
	}
	return s.issueCode(ctx, claims, user, now)
}

// Refresh rotates a refresh token. The presented token is consumed, so a
// replayed token returns common.ErrorUnauthorized.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	now := s.now()
	digest := tokenDigest(refreshToken)

	var (
		pair    *TokenPair
		expired bool
	)
	err := s.repos.WithTx(ctx, func(ctx context.Context, tokens refreshtokens.Repository) error {
		rt, err := tokens.Take(ctx, digest)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrorUnauthorized
			}
			return err
		}
		if rt.ExpiredAt(now) {
			// commit the removal, an expired token is never redeemable
			expired = true
			return nil
		}

		user, err := s.activeUser(ctx, rt.UserID)
		if err != nil {
			return err
		}

		pair, err = s.issuePair(ctx, tokens, user.ID, now)
		return err
	})
	switch {
	case err == nil && expired:
		return nil, common.ErrRefreshTokenExpired
	case err == nil:
		return pair, nil
	case errors.Is(err, common.ErrorUnauthorized):
		return nil, err
	}
	return nil, s.internal(ctx, "refresh failed", err)
}

// AuthenticateAccess returns the user ID carried by a valid access token.
func (s *AuthService) AuthenticateAccess(token string) (string, error) {
	claims, err := auth.ParseToken(token, auth.PurposeAccess, s.jwtSecret, s.now())
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

func (s *AuthService) CurrentUser(ctx context.Context, userID string) (*models.User, error) {
	return s.activeUser(ctx, userID)
}

// Authorities returns the granted permission identifiers of a user, never
// nil.
func (s *AuthService) Authorities(ctx context.Context, userID string) ([]string, error) {
	user, err := s.activeUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.Authorities == nil {
		return []string{}, nil
	}
	return user.Authorities, nil
}

func (s *AuthService) pendingCode(ctx context.Context, sessionID string) (*models.OneTimeCode, error) {
	oc, err := s.codes.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrInvalidCode
		}
		return nil, s.internal(ctx, "code lookup failed", err)
	}
	return oc, nil
}

func (s *AuthService) issueCode(ctx context.Context, claims *auth.Claims, user *models.User, now time.Time) error {
	code, err := common.MakeNumericCode(common.CodeLength)
	if err != nil {
		return s.internal(ctx, "code generation failed", err)
	}

	expires := now.Add(s.codeTTL)
	if claims.ExpiresAt != nil && claims.ExpiresAt.Before(expires) {
		expires = claims.ExpiresAt.Time
	}

	oc := &models.OneTimeCode{
		SessionID: claims.ID,
		UserID:    user.ID,
		Code:      code,
		ExpiresAt: expires,
		SentAt:    now,
	}
	if err := s.codes.Put(ctx, oc); err != nil {
		return s.internal(ctx, "code store failed", err)
	}
	if err := s.sender.SendCode(ctx, user, code); err != nil {
		return s.internal(ctx, "code delivery failed", err)
	}
	return nil
}

func (s *AuthService) activeUser(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.repos.Users().GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		return nil, s.internal(ctx, "user lookup failed", err)
	}
	if !user.IsActive {
		return nil, common.ErrorUnauthorized
	}
	return user, nil
}

func (s *AuthService) issuePair(ctx context.Context, tokens refreshtokens.Repository, userID string, now time.Time) (*TokenPair, error) {
	access, _, err := auth.GenerateToken(userID, auth.PurposeAccess, s.jwtSecret, now, s.accessTTL)
	if err != nil {
		return nil, fmt.Errorf("generate access token: %w", err)
	}

	refresh, err := common.MakeRandHexString(32)
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}

	err = tokens.Create(ctx, &models.RefreshToken{
		Digest:    tokenDigest(refresh),
		UserID:    userID,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.refreshTTL),
	})
	if err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (s *AuthService) internal(ctx context.Context, msg string, err error) error {
	s.log.Error(ctx, msg, "error", err)
	return fmt.Errorf("%w: %s", common.ErrorInternal, msg)
}

func tokenDigest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
