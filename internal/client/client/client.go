package client

import (
	"context"

	"github.com/dmitrijs2005/gophadmin/internal/client/models"
)

// Client is the authentication API used by the session manager.
type Client interface {
	Login(ctx context.Context, creds models.Credentials) (*models.PreAuthGrant, error)
	VerifyCode(ctx context.Context, preAuthToken, code string) (*models.TokenPair, error)
	ResendCode(ctx context.Context, preAuthToken string) error
	RefreshTokens(ctx context.Context, refreshToken string) (*models.TokenPair, error)
	FetchCurrentUserProfile(ctx context.Context) (*models.Profile, error)
	FetchCurrentUserAuthorities(ctx context.Context) ([]string, error)
	Close() error
}

// AccessTokenReader is the read side of the token store used to authorize
// profile requests.
type AccessTokenReader interface {
	AccessToken(ctx context.Context) (string, error)
}
