package repomanager

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/gophadmin/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/gophadmin/internal/server/repositories/users"
)

// MemoryRepositoryManager serves in-process repositories. WithTx holds a lock
// instead of a transaction; fn must not fail halfway through a rotation.
type MemoryRepositoryManager struct {
	users         *users.MemoryRepository
	refreshTokens *refreshtokens.MemoryRepository

	txMu sync.Mutex
}

func NewMemoryRepositoryManager() *MemoryRepositoryManager {
	return &MemoryRepositoryManager{
		users:         users.NewMemoryRepository(),
		refreshTokens: refreshtokens.NewMemoryRepository(),
	}
}

func (m *MemoryRepositoryManager) RunMigrations(context.Context) error { return nil }

func (m *MemoryRepositoryManager) Users() users.Repository { return m.users }

func (m *MemoryRepositoryManager) RefreshTokens() refreshtokens.Repository { return m.refreshTokens }

func (m *MemoryRepositoryManager) WithTx(ctx context.Context, fn func(ctx context.Context, tokens refreshtokens.Repository) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	return fn(ctx, m.refreshTokens)
}

func (m *MemoryRepositoryManager) Close() error { return nil }
