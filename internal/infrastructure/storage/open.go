package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"PerspectiveLens/internal/config"
	"PerspectiveLens/internal/ports"
)

const DriverMemory = "memory"

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Open resolves the configured backend for rate-limit state.
func Open(ctx context.Context, cfg config.StorageConfig) (ports.KeyValueStore, io.Closer, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", DriverMemory:
		return NewMemoryStore(), nopCloser{}, nil
	case DriverSQLite, DriverPostgres:
		if cfg.DSN == "" {
			return nil, nil, fmt.Errorf("storage driver %s requires a dsn", driver)
		}
		repo, err := OpenSQL(ctx, driver, cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		return repo, repo, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
