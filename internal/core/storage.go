// Package core wires the record store backends and the cross-cutting
// decorators (metrics) that sit between them and the HTTP handlers.
package core

import (
	"context"
	"fmt"

	"qitp/internal/infra/persistence/memory"
	"qitp/internal/infra/persistence/postgres"
	"qitp/internal/infra/persistence/sqlite"
	"qitp/pkg/domain"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // process-lifetime only (default)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// Store is the record store handed to handlers, plus lifecycle control.
type Store interface {
	domain.StateStore
	Close() error
}

// StorageConfig selects a backend.
type StorageConfig struct {
	Driver      string `mapstructure:"driver"`
	SQLitePath  string `mapstructure:"sqlite_path"`
	PostgresDSN string `mapstructure:"postgres_dsn"`
}

// OpenStore constructs the configured backend. An empty driver selects memory.
func OpenStore(ctx context.Context, cfg StorageConfig, opts ...memory.Option) (Store, error) {
	switch StorageDriver(cfg.Driver) {
	case "", StorageMemory:
		return memory.NewStore(opts...), nil
	case StorageSQLite:
		return sqlite.NewStore(ctx, cfg.SQLitePath, opts...)
	case StoragePostgres:
		return postgres.NewStore(ctx, cfg.PostgresDSN, opts...)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
