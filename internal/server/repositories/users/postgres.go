package users

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gophadmin/internal/common"
	"github.com/dmitrijs2005/gophadmin/internal/dbx"
	"github.com/dmitrijs2005/gophadmin/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const userColumns = `id, email, password_hash, first_name, last_name, job_title, is_active,
		 onboarded_at, system_role, functional_roles, authorities, address, created_at`

func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	roles, err := json.Marshal(nonNil(user.FunctionalRoles))
	if err != nil {
		return nil, err
	}
	authorities, err := json.Marshal(nonNil(user.Authorities))
	if err != nil {
		return nil, err
	}
	address, err := json.Marshal(user.Address)
	if err != nil {
		return nil, err
	}

	query :=
		`INSERT INTO users (email, password_hash, first_name, last_name, job_title, is_active,
		 onboarded_at, system_role, functional_roles, authorities, address)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT ((lower(email))) DO NOTHING
		 RETURNING id, created_at`

	err = r.db.QueryRowContext(ctx, query,
		user.Email, user.PasswordHash, user.FirstName, user.LastName, user.JobTitle, user.IsActive,
		user.OnboardedAt, user.SystemRole, roles, authorities, address,
	).Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorAlreadyExists
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users
		 WHERE lower(email) = lower($1)`
	return r.get(ctx, query, email)
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users
		 WHERE id = $1`
	return r.get(ctx, query, id)
}

func (r *PostgresRepository) get(ctx context.Context, query string, arg any) (*models.User, error) {
	var (
		user                       models.User
		onboarded                  sql.NullTime
		roles, authorities, address []byte
	)

	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID, &user.Email, &user.PasswordHash, &user.FirstName, &user.LastName, &user.JobTitle,
		&user.IsActive, &onboarded, &user.SystemRole, &roles, &authorities, &address, &user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	if onboarded.Valid {
		t := onboarded.Time
		user.OnboardedAt = &t
	}
	if err := unmarshalColumns(
		column{"functional_roles", roles, &user.FunctionalRoles},
		column{"authorities", authorities, &user.Authorities},
		column{"address", address, &user.Address},
	); err != nil {
		return nil, err
	}

	return &user, nil
}

type column struct {
	name string
	data []byte
	dst  any
}

func unmarshalColumns(cols ...column) error {
	for _, c := range cols {
		if len(c.data) == 0 {
			continue
		}
		if err := json.Unmarshal(c.data, c.dst); err != nil {
			return fmt.Errorf("decode %s: %w", c.name, err)
		}
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
