package server

import (
	"context"
	"fmt"

	"github.com/ragstack/ragserve/internal/store"
)

// StorePinger probes the SQLite store with a lightweight query. It satisfies
// the Pinger interface and is used by GET /api/ready.
type StorePinger struct {
	store *store.Store
}

// NewStorePinger constructs a StorePinger for the given store.
func NewStorePinger(st *store.Store) *StorePinger {
	return &StorePinger{store: st}
}

// Name returns the dependency label used in readiness responses.
func (p *StorePinger) Name() string { return "sqlite" }

// Ping verifies the store connection is alive.
func (p *StorePinger) Ping(ctx context.Context) error {
	if err := p.store.Ping(ctx); err != nil {
		return fmt.Errorf("store ping failed: %w", err)
	}
	return nil
}
