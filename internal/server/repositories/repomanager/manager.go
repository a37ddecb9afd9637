package repomanager

import (
	"context"

	"github.com/dmitrijs2005/taskhub/internal/server/repositories/users"
)

// RepositoryManager hands out the user store and owns its lifecycle.
type RepositoryManager interface {
	RunMigrations(ctx context.Context) error
	Users() users.Repository
	// WithTx runs fn against a transactional view of the user store. The
	// changes fn makes are discarded if it returns an error.
	WithTx(ctx context.Context, fn func(ctx context.Context, repo users.Repository) error) error
	Close() error
}
