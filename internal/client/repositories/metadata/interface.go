// Package metadata is the client's local key/value table. Token stores keep
// session tokens and their expiry here.
package metadata

import (
	"context"
)

// Repository reads and writes opaque values by key. A missing key reads as
// nil with no error.
type Repository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	GetMany(ctx context.Context, keys ...string) (map[string][]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	SetMany(ctx context.Context, values map[string][]byte) error
	Delete(ctx context.Context, keys ...string) error
}
