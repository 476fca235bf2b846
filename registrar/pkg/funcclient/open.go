package funcclient

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/derar-alhussein/agents-workshop/warehouse/pkg/clickhouse"
	"github.com/derar-alhussein/agents-workshop/warehouse/pkg/postgres"
)

const (
	RegistryClickHouse = "clickhouse"
	RegistryPostgres   = "postgres"
)

// OpenStore returns the store for registry kind. The Postgres registry is
// migrated before use; the returned close function releases its pool.
func OpenStore(ctx context.Context, log *slog.Logger, kind string, ch clickhouse.Client, pgCfg postgres.Config) (Store, func(), error) {
	switch kind {
	case "", RegistryClickHouse:
		store, err := NewClickHouseStore(ch)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	case RegistryPostgres:
		if err := postgres.RunMigrations(ctx, log, pgCfg); err != nil {
			return nil, nil, err
		}
		pool, err := postgres.NewPool(ctx, log, pgCfg)
		if err != nil {
			return nil, nil, err
		}
		store, err := NewPostgresStore(pool)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		return store, pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown registry %q: expected %s or %s", kind, RegistryClickHouse, RegistryPostgres)
	}
}
