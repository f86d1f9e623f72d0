package factory

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/bondedhq/link-server/internal/config"
	storepkg "github.com/bondedhq/link-server/internal/store"
	storepg "github.com/bondedhq/link-server/internal/store/postgres"
	storelite "github.com/bondedhq/link-server/internal/store/sqlite"
)

// NewStore returns a store.Store for the configured driver.
// Opens the connection synchronously since health checks need it immediately,
// then launches an async bootstrap check for fast startup.
func NewStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (storepkg.Store, error) {
	switch cfg.DBDriver {
	case "postgres":
		db, err := storepg.Open(cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		go func() {
			bootstrapTimeout := time.Duration(cfg.BootstrapTimeoutSeconds) * time.Second
			bootstrapCtx, cancel := context.WithTimeout(ctx, bootstrapTimeout)
			defer cancel()
			if err := storepg.Bootstrap(bootstrapCtx, db); err != nil {
				log.Warn().Err(err).Str("driver", cfg.DBDriver).Msg("store bootstrap check failed")
			} else {
				log.Debug().Str("driver", cfg.DBDriver).Msg("store bootstrap check completed")
			}
		}()
		return storepg.NewWithDB(db), nil
	case "sqlite":
		// sqlite bootstraps inline; the schema must exist before first use
		return storelite.New(cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unknown DB_DRIVER: %s", cfg.DBDriver)
	}
}
