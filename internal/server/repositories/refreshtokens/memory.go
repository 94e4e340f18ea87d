package refreshtokens

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/gophadmin/internal/common"
	"github.com/dmitrijs2005/gophadmin/internal/server/models"
)

type MemoryRepository struct {
	mu     sync.Mutex
	byHash map[string]models.RefreshToken
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byHash: make(map[string]models.RefreshToken)}
}

func (r *MemoryRepository) Create(_ context.Context, token *models.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byHash[token.Digest] = *token
	return nil
}

func (r *MemoryRepository) Take(_ context.Context, digest string) (*models.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.byHash[digest]
	if !ok {
		return nil, common.ErrorNotFound
	}
	delete(r.byHash, digest)
	return &t, nil
}
