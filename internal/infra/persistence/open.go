// Package persistence selects the report metadata backend.
package persistence

import (
	"context"
	"fmt"

	"rocklandcensus/internal/infra/persistence/memory"
	"rocklandcensus/internal/infra/persistence/postgres"
	"rocklandcensus/internal/infra/persistence/sqlite"
	"rocklandcensus/internal/reports"
)

// Driver names.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config selects a backend and its connection details.
type Config struct {
	Driver      string
	SQLitePath  string
	PostgresDSN string
}

// Open returns the configured store. An empty driver selects memory.
func Open(ctx context.Context, cfg Config) (reports.Store, error) {
	switch cfg.Driver {
	case "", DriverMemory:
		return memory.NewStore(), nil
	case DriverSQLite:
		return sqlite.NewStore(ctx, cfg.SQLitePath)
	case DriverPostgres:
		return postgres.NewStore(ctx, cfg.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown report store driver %q", cfg.Driver)
	}
}
