package tokens

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/dmitrijs2005/gophadmin/internal/client/migrations"
	"github.com/dmitrijs2005/gophadmin/internal/client/models"
	"github.com/dmitrijs2005/gophadmin/internal/client/repositories/metadata"
)

// OpenSQLite opens the local database and applies the embedded migrations.
// Use "file:<name>?mode=memory&cache=shared" for a throwaway database.
func OpenSQLite(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// single writer, avoids SQLITE_BUSY between pooled connections
	db.SetMaxOpenConns(1)

	p, err := goose.NewProvider(goose.DialectSQLite3, db, migrations.Migrations)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("goose provider: %w", err)
	}
	if _, err := p.Up(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return db, nil
}

// SQLiteStore keeps tokens in the metadata table so a session survives a
// restart of the CLI.
type SQLiteStore struct {
	db *sql.DB
	o  options
}

var _ Store = (*SQLiteStore)(nil)

func NewSQLiteStore(db *sql.DB, opts ...Option) *SQLiteStore {
	return &SQLiteStore{db: db, o: newOptions(opts)}
}

func (s *SQLiteStore) SetPreAuthToken(ctx context.Context, token string, ttl time.Duration) error {
	if err := validatePreAuth(token, ttl); err != nil {
		return err
	}
	sealed, err := s.o.seal(token)
	if err != nil {
		return err
	}
	expires := strconv.FormatInt(s.o.now().Add(ttl).UnixNano(), 10)

	return s.repo().SetMany(ctx, map[string][]byte{
		KeyPreAuthToken:     sealed,
		KeyPreAuthExpiresAt: []byte(expires),
	})
}

func (s *SQLiteStore) PreAuthToken(ctx context.Context) (string, error) {
	vals, err := s.repo().GetMany(ctx, KeyPreAuthToken, KeyPreAuthExpiresAt)
	if err != nil {
		return "", err
	}
	raw, rawExp := vals[KeyPreAuthToken], vals[KeyPreAuthExpiresAt]
	if raw == nil || rawExp == nil {
		return "", nil
	}

	nanos, err := strconv.ParseInt(string(rawExp), 10, 64)
	if err != nil {
		return "", fmt.Errorf("parse %s: %w", KeyPreAuthExpiresAt, err)
	}
	if !s.o.now().Before(time.Unix(0, nanos)) {
		return "", nil
	}
	return s.o.open(raw)
}

func (s *SQLiteStore) ClearPreAuthToken(ctx context.Context) error {
	return s.repo().Delete(ctx, KeyPreAuthToken, KeyPreAuthExpiresAt)
}

func (s *SQLiteStore) SetTokens(ctx context.Context, pair models.TokenPair) error {
	if !pair.Complete() {
		return ErrIncompletePair
	}
	access, err := s.o.seal(pair.AccessToken)
	if err != nil {
		return err
	}
	refresh, err := s.o.seal(pair.RefreshToken)
	if err != nil {
		return err
	}

	return s.repo().SetMany(ctx, map[string][]byte{
		KeyAccessToken:  access,
		KeyRefreshToken: refresh,
	})
}

func (s *SQLiteStore) AccessToken(ctx context.Context) (string, error) {
	return s.get(ctx, KeyAccessToken)
}

func (s *SQLiteStore) RefreshToken(ctx context.Context) (string, error) {
	return s.get(ctx, KeyRefreshToken)
}

func (s *SQLiteStore) Tokens(ctx context.Context) (models.TokenPair, bool, error) {
	vals, err := s.repo().GetMany(ctx, KeyAccessToken, KeyRefreshToken)
	if err != nil {
		return models.TokenPair{}, false, err
	}

	var pair models.TokenPair
	if pair.AccessToken, err = s.o.open(vals[KeyAccessToken]); err != nil {
		return models.TokenPair{}, false, err
	}
	if pair.RefreshToken, err = s.o.open(vals[KeyRefreshToken]); err != nil {
		return models.TokenPair{}, false, err
	}
	return pair, pair.Complete(), nil
}

func (s *SQLiteStore) ClearTokens(ctx context.Context) error {
	return s.repo().Delete(ctx, KeyAccessToken, KeyRefreshToken)
}

func (s *SQLiteStore) get(ctx context.Context, key string) (string, error) {
	raw, err := s.repo().Get(ctx, key)
	if err != nil {
		return "", err
	}
	return s.o.open(raw)
}

func (s *SQLiteStore) repo() *metadata.SQLiteRepository {
	return metadata.NewSQLiteRepository(s.db)
}
