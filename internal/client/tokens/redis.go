package tokens

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrijs2005/gophadmin/internal/client/models"
)

// RedisStore shares a session between processes through Redis. The pre-auth
// token is written with a Redis ttl and its expiry is checked again on read.
type RedisStore struct {
	client redis.UniversalClient
	o      options
}

var _ Store = (*RedisStore)(nil)

type preAuthRecord struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func NewRedisStore(client redis.UniversalClient, opts ...Option) *RedisStore {
	return &RedisStore{client: client, o: newOptions(opts)}
}

func (s *RedisStore) key(name string) string {
	return s.o.prefix + name
}

func (s *RedisStore) SetPreAuthToken(ctx context.Context, token string, ttl time.Duration) error {
	if err := validatePreAuth(token, ttl); err != nil {
		return err
	}
	sealed, err := s.encode(token)
	if err != nil {
		return err
	}
	data, err := json.Marshal(preAuthRecord{Token: sealed, ExpiresAt: s.o.now().Add(ttl)})
	if err != nil {
		return fmt.Errorf("marshal pre-auth token: %w", err)
	}
	if err := s.client.Set(ctx, s.key(KeyPreAuthToken), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set pre-auth token: %w", err)
	}
	return nil
}

func (s *RedisStore) PreAuthToken(ctx context.Context) (string, error) {
	data, err := s.client.Get(ctx, s.key(KeyPreAuthToken)).Bytes()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("redis get pre-auth token: %w", err)
	}

	var rec preAuthRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return "", fmt.Errorf("unmarshal pre-auth token: %w", err)
	}
	if !s.o.now().Before(rec.ExpiresAt) {
		return "", nil
	}
	return s.decode(rec.Token)
}

func (s *RedisStore) ClearPreAuthToken(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key(KeyPreAuthToken)).Err(); err != nil {
		return fmt.Errorf("redis del pre-auth token: %w", err)
	}
	return nil
}

func (s *RedisStore) SetTokens(ctx context.Context, pair models.TokenPair) error {
	if !pair.Complete() {
		return ErrIncompletePair
	}
	access, err := s.encode(pair.AccessToken)
	if err != nil {
		return err
	}
	refresh, err := s.encode(pair.RefreshToken)
	if err != nil {
		return err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.MSet(ctx, s.key(KeyAccessToken), access, s.key(KeyRefreshToken), refresh)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis set tokens: %w", err)
	}
	return nil
}

func (s *RedisStore) AccessToken(ctx context.Context) (string, error) {
	return s.get(ctx, KeyAccessToken)
}

func (s *RedisStore) RefreshToken(ctx context.Context) (string, error) {
	return s.get(ctx, KeyRefreshToken)
}

func (s *RedisStore) Tokens(ctx context.Context) (models.TokenPair, bool, error) {
	vals, err := s.client.MGet(ctx, s.key(KeyAccessToken), s.key(KeyRefreshToken)).Result()
	if err != nil {
		return models.TokenPair{}, false, fmt.Errorf("redis get tokens: %w", err)
	}

	var pair models.TokenPair
	for i, dst := range []*string{&pair.AccessToken, &pair.RefreshToken} {
		raw, ok := vals[i].(string)
		if !ok {
			continue
		}
		if *dst, err = s.decode(raw); err != nil {
			return models.TokenPair{}, false, err
		}
	}
	return pair, pair.Complete(), nil
}

func (s *RedisStore) ClearTokens(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key(KeyAccessToken), s.key(KeyRefreshToken)).Err(); err != nil {
		return fmt.Errorf("redis del tokens: %w", err)
	}
	return nil
}

func (s *RedisStore) get(ctx context.Context, name string) (string, error) {
	raw, err := s.client.Get(ctx, s.key(name)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("redis get %s: %w", name, err)
	}
	return s.decode(raw)
}

// Sealed values are base64 so they stay printable in redis-cli.
func (s *RedisStore) encode(v string) (string, error) {
	if s.o.sealKey == nil {
		return v, nil
	}
	sealed, err := s.o.seal(v)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (s *RedisStore) decode(v string) (string, error) {
	if s.o.sealKey == nil {
		return v, nil
	}
	sealed, err := base64.StdEncoding.DecodeString(v)
	if err != nil {
		return "", fmt.Errorf("decode sealed token: %w", err)
	}
	return s.o.open(sealed)
}
