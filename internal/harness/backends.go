package harness

import (
	"context"

	"github.com/roach88/folio/internal/adapter"
	"github.com/roach88/folio/internal/docstore"
	"github.com/roach88/folio/internal/schema"
	"github.com/roach88/folio/internal/sqlstore"
)

// Backend opens a fresh, empty store for one scenario run. The returned
// close function releases it.
type Backend struct {
	Name string
	Open func(ctx context.Context, cfg *schema.Config, opts ...adapter.Option) (adapter.Operations, func() error, error)
}

// SQLite is the relational backend over an in-memory SQLite database.
func SQLite() Backend {
	return Backend{
		Name: "sqlite",
		Open: func(ctx context.Context, cfg *schema.Config, opts ...adapter.Option) (adapter.Operations, func() error, error) {
			s, err := sqlstore.OpenSQLite(":memory:", cfg)
			if err != nil {
				return nil, nil, err
			}
			return adapter.New(s, cfg, opts...), s.Close, nil
		},
	}
}

// Memory is the document backend over the embedded BSON store.
func Memory() Backend {
	return Backend{
		Name: "memory",
		Open: func(ctx context.Context, cfg *schema.Config, opts ...adapter.Option) (adapter.Operations, func() error, error) {
			s := docstore.New(docstore.NewMemory(), cfg)
			return adapter.New(s, cfg, opts...), func() error { return s.Close(context.Background()) }, nil
		},
	}
}

// DefaultBackends are the backends that need no external server.
func DefaultBackends() []Backend {
	return []Backend{SQLite(), Memory()}
}
