// Package repomanager hands out the repositories of one storage backend and
// runs refresh token rotation atomically on it.
package repomanager

import (
	"context"

	"github.com/dmitrijs2005/gophadmin/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/gophadmin/internal/server/repositories/users"
)

type RepositoryManager interface {
	RunMigrations(ctx context.Context) error
	Users() users.Repository
	RefreshTokens() refreshtokens.Repository
	// WithTx runs fn with a refresh token repository whose writes commit
	// together or not at all.
	WithTx(ctx context.Context, fn func(ctx context.Context, tokens refreshtokens.Repository) error) error
	Close() error
}
