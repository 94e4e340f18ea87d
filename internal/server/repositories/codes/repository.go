// Package codes keeps the one-time codes of pending pre-auth sessions.
package codes

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/gophadmin/internal/common"
	"github.com/dmitrijs2005/gophadmin/internal/server/models"
)

type Repository interface {
	// Put stores code under its SessionID, replacing any earlier code.
	Put(ctx context.Context, code *models.OneTimeCode) error
	// Get returns common.ErrorNotFound for an unknown session.
	Get(ctx context.Context, sessionID string) (*models.OneTimeCode, error)
	Delete(ctx context.Context, sessionID string) error
}

// MemoryRepository keeps codes in process memory. Codes live only as long
// as their pre-auth token, so a restart simply sends users back to login.
type MemoryRepository struct {
	mu    sync.Mutex
	codes map[string]models.OneTimeCode
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{codes: make(map[string]models.OneTimeCode)}
}

func (r *MemoryRepository) Put(_ context.Context, code *models.OneTimeCode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codes[code.SessionID] = *code
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, sessionID string) (*models.OneTimeCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.codes[sessionID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &c, nil
}

func (r *MemoryRepository) Delete(_ context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.codes, sessionID)
	return nil
}
