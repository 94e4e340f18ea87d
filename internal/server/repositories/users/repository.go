// Package users stores admin console accounts.
package users

import (
	"context"

	"github.com/dmitrijs2005/gophadmin/internal/server/models"
)

// Repository looks up accounts. Lookups of a missing account return
// common.ErrorNotFound.
type Repository interface {
	// Create inserts user and fills its ID. An existing email is left as is
	// and reported with common.ErrorAlreadyExists.
	Create(ctx context.Context, user *models.User) (*models.User, error)
	// GetByEmail matches the email case-insensitively.
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
}
