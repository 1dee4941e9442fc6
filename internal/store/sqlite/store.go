package sqlite

import (
	"github.com/flowlane/agentd/internal/db"
)

// Repository implements store.Store over an internal/db.Pool, following the
// writer/reader split the pool enforces: writes go through pool.Writer(),
// reads through pool.Reader().
type Repository struct {
	pool *db.Pool
}

// NewRepository wraps an already-opened connection pool.
func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}
