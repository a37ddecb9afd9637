package repomanager

import (
	"context"

	"github.com/dmitrijs2005/taskhub/internal/server/repositories/users"
)

// MemoryRepositoryManager serves the "memory" storage mode. Data lives as
// long as the process.
type MemoryRepositoryManager struct {
	repo *users.MemoryRepository
}

func NewMemoryRepositoryManager() *MemoryRepositoryManager {
	return &MemoryRepositoryManager{repo: users.NewMemoryRepository()}
}

func (m *MemoryRepositoryManager) Users() users.Repository {
	return m.repo
}

func (m *MemoryRepositoryManager) WithTx(ctx context.Context, fn func(ctx context.Context, repo users.Repository) error) error {
	return m.repo.WithTx(ctx, fn)
}

// RunMigrations is a no-op; there is no schema.
func (m *MemoryRepositoryManager) RunMigrations(context.Context) error { return nil }

func (m *MemoryRepositoryManager) Close() error { return nil }
