package database

import (
	"context"
	"fmt"

	"go-guardian/internal/config"
	"go-guardian/internal/logging"
)

// OpenStorage opens the backend selected by cfg.Driver.
func OpenStorage(ctx context.Context, cfg config.StorageConfig) (config.Storage, error) {
	switch cfg.Driver {
	case "sqlite", "":
		db, err := Open(ctx, cfg.Path)
		if err != nil {
			return nil, err
		}
		logging.Info("[DB] SQLite storage at %s", cfg.Path)
		return db, nil
	case "redis":
		rs, err := OpenRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, err
		}
		logging.Info("[DB] Redis storage at %s db %d", cfg.RedisAddr, cfg.RedisDB)
		return rs, nil
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
}
