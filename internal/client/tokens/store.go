// Package tokens persists the session's tokens: the short-lived pre-auth
// token issued after the password check and the access/refresh pair issued
// after code verification.
//
// The session manager is the only writer. Other components, such as the HTTP
// client attaching the Authorization header, only read.
package tokens

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/gophadmin/internal/client/models"
	"github.com/dmitrijs2005/gophadmin/internal/cryptox"
)

// Logical keys shared by every medium.
const (
	KeyPreAuthToken     = "pre_auth_token"
	KeyPreAuthExpiresAt = "pre_auth_expires_at"
	KeyAccessToken      = "access_token"
	KeyRefreshToken     = "refresh_token"
)

var (
	ErrIncompletePair = errors.New("token pair must contain both access and refresh tokens")
	ErrInvalidTTL     = errors.New("pre-auth token ttl must be positive")
	ErrEmptyToken     = errors.New("token must not be empty")
)

// Store is the token persistence contract.
//
// Missing values read as "" with a nil error. PreAuthToken also reads as ""
// once its ttl has elapsed; expiry is evaluated on read, nothing runs in the
// background. SetTokens and Tokens operate on both halves of the pair at once
// so a reader never observes one without the other.
type Store interface {
	SetPreAuthToken(ctx context.Context, token string, ttl time.Duration) error
	PreAuthToken(ctx context.Context) (string, error)
	ClearPreAuthToken(ctx context.Context) error

	SetTokens(ctx context.Context, pair models.TokenPair) error
	AccessToken(ctx context.Context) (string, error)
	RefreshToken(ctx context.Context) (string, error)
	Tokens(ctx context.Context) (models.TokenPair, bool, error)
	ClearTokens(ctx context.Context) error
}

// Option configures a Store implementation.
type Option func(*options)

type options struct {
	now     func() time.Time
	sealKey []byte
	prefix  string
}

func newOptions(opts []Option) options {
	o := options{now: time.Now, prefix: "gophadmin:"}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithClock replaces time.Now for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithSealKey encrypts values at rest with AES-GCM. The key must be
// cryptox.KeySize bytes, see cryptox.DeriveKey. Ignored by MemoryStore.
func WithSealKey(key []byte) Option {
	return func(o *options) {
		o.sealKey = key
	}
}

// WithKeyPrefix namespaces Redis keys. Ignored by other media.
func WithKeyPrefix(prefix string) Option {
	return func(o *options) {
		o.prefix = prefix
	}
}

func (o options) seal(v string) ([]byte, error) {
	if o.sealKey == nil {
		return []byte(v), nil
	}
	return cryptox.Seal([]byte(v), o.sealKey)
}

func (o options) open(b []byte) (string, error) {
	if b == nil {
		return "", nil
	}
	if o.sealKey == nil {
		return string(b), nil
	}
	plain, err := cryptox.Open(b, o.sealKey)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

func validatePreAuth(token string, ttl time.Duration) error {
	if token == "" {
		return ErrEmptyToken
	}
	if ttl <= 0 {
		return ErrInvalidTTL
	}
	return nil
}
