package store

import (
	"context"
	"fmt"

	"github.com/legalai/legal-assistant/internal/config"
	"go.uber.org/zap"
)

// Open connects the Repository selected by cfg.Driver. The schema (or, for
// MongoDB, the indexes) is applied as part of opening.
func Open(ctx context.Context, cfg config.DBConfig, logger *zap.Logger) (Repository, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		return NewSQLite(cfg.Path, logger)
	case config.DriverPostgres:
		return NewPostgres(ctx, cfg.URL, logger)
	case config.DriverMongo:
		return NewMongo(ctx, cfg.URL, cfg.Name, logger)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}
