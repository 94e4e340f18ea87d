package tokens

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophadmin/internal/client/models"
)

// MemoryStore keeps tokens in process memory. Nothing survives a restart.
type MemoryStore struct {
	mu sync.RWMutex

	preAuth        string
	preAuthExpires time.Time
	pair           models.TokenPair

	now func() time.Time
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore(opts ...Option) *MemoryStore {
	o := newOptions(opts)
	return &MemoryStore{now: o.now}
}

func (s *MemoryStore) SetPreAuthToken(_ context.Context, token string, ttl time.Duration) error {
	if err := validatePreAuth(token, ttl); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.preAuth = token
	s.preAuthExpires = s.now().Add(ttl)
	return nil
}

func (s *MemoryStore) PreAuthToken(context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.preAuth == "" || !s.now().Before(s.preAuthExpires) {
		return "", nil
	}
	return s.preAuth, nil
}

func (s *MemoryStore) ClearPreAuthToken(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.preAuth = ""
	s.preAuthExpires = time.Time{}
	return nil
}

func (s *MemoryStore) SetTokens(_ context.Context, pair models.TokenPair) error {
	if !pair.Complete() {
		return ErrIncompletePair
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pair = pair
	return nil
}

func (s *MemoryStore) AccessToken(context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pair.AccessToken, nil
}

func (s *MemoryStore) RefreshToken(context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pair.RefreshToken, nil
}

func (s *MemoryStore) Tokens(context.Context) (models.TokenPair, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pair, s.pair.Complete(), nil
}

func (s *MemoryStore) ClearTokens(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pair = models.TokenPair{}
	return nil
}
