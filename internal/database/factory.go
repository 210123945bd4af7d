package database

import (
	"fmt"
	"os"
	"path/filepath"

	"phofmit/internal/config"
	"phofmit/internal/phofmit"
)

// NewDatabaseFromConfig opens the cache database selected by the config type.
func NewDatabaseFromConfig(cfg config.CacheConfig, hostID string, clock phofmit.Clock) (*SQLiteDatabase, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite cache")
		}
		if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
		return NewSQLiteDatabase(filepath.Join(cfg.DataDir, hostID+".db"), clock)
	case "memory":
		return NewSQLiteDatabase(":memory:", clock)
	default:
		return nil, fmt.Errorf("unknown cache type: %s", cfg.Type)
	}
}
