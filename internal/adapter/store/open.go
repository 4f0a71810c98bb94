package store

import (
	"fmt"
	"log/slog"
	"time"

	"neurodb/config"
	"neurodb/internal/port"
)

// Store is a record substrate that also tracks its schema.
type Store interface {
	port.RecordStore
	Versioned
	Path() string
}

var (
	_ Store = (*BoltStore)(nil)
	_ Store = (*SQLiteStore)(nil)
)

// Open opens the backend selected by cfg under dir, creating the data
// directory when the default location is used.
func Open(cfg *config.Config, dir string, logger *slog.Logger) (Store, error) {
	if cfg.Store.Path == "" {
		if err := config.EnsureDataDir(dir); err != nil {
			return nil, fmt.Errorf("failed to create data dir: %w", err)
		}
	}
	path := cfg.StorePath(dir)
	timeout := time.Duration(cfg.Store.LockTimeoutSecs) * time.Second

	switch cfg.Store.Backend {
	case config.BackendSQLite:
		return NewSQLiteStore(path, SQLiteOptions{BusyTimeout: timeout, Logger: logger})
	case config.BackendBolt, "":
		return NewBoltStore(path, BoltOptions{LockTimeout: timeout, Logger: logger})
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", cfg.Store.Backend)
	}
}
