// Package refreshtokens stores issued refresh tokens by their digest.
package refreshtokens

import (
	"context"

	"github.com/dmitrijs2005/gophadmin/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, token *models.RefreshToken) error

	// Take removes the record and returns it, so a token is redeemed at most
	// once even under concurrent callers. A missing digest yields
	// common.ErrorNotFound.
	Take(ctx context.Context, digest string) (*models.RefreshToken, error)
}
