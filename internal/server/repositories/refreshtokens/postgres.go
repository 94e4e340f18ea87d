package refreshtokens

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gophadmin/internal/common"
	"github.com/dmitrijs2005/gophadmin/internal/dbx"
	"github.com/dmitrijs2005/gophadmin/internal/server/models"
)

const (
	insertToken = `INSERT INTO refresh_tokens (digest, user_id, issued_at, expires_at) VALUES ($1, $2, $3, $4)`
	takeToken   = `DELETE FROM refresh_tokens WHERE digest = $1 RETURNING user_id, issued_at, expires_at`
)

// PostgresRepository runs on a *sql.DB or, through dbx.WithTx, a *sql.Tx.
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, t *models.RefreshToken) error {
	if _, err := r.db.ExecContext(ctx, insertToken, t.Digest, t.UserID, t.IssuedAt, t.ExpiresAt); err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}
	return nil
}

// Take is a single DELETE ... RETURNING; Postgres row locking lets only one
// of two racing statements see the row.
func (r *PostgresRepository) Take(ctx context.Context, digest string) (*models.RefreshToken, error) {
	t := &models.RefreshToken{Digest: digest}
	err := r.db.QueryRowContext(ctx, takeToken, digest).Scan(&t.UserID, &t.IssuedAt, &t.ExpiresAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, common.ErrorNotFound
	case err != nil:
		return nil, fmt.Errorf("take refresh token: %w", err)
	}
	return t, nil
}
