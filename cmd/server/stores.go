package main

import (
	"context"
	"fmt"

	"github.com/makkenzo/entitlement-service/internal/config"
	"github.com/makkenzo/entitlement-service/internal/domain/apikey"
	"github.com/makkenzo/entitlement-service/internal/domain/license"
	"github.com/makkenzo/entitlement-service/internal/domain/trial"
	"github.com/makkenzo/entitlement-service/internal/domain/webhook"
	"github.com/makkenzo/entitlement-service/internal/storage/memstorage"
	"github.com/makkenzo/entitlement-service/internal/storage/postgres"
	"go.uber.org/zap"
)

type stores struct {
	licenses license.Repository
	trials   trial.Repository
	events   webhook.Repository
	apiKeys  apikey.Repository
	ping     func(ctx context.Context) error
	close    func()
}

func (s *stores) Close() {
	if s.close != nil {
		s.close()
	}
}

// openStores selects the persistence driver. "memory" keeps everything in process
// and is meant for local development.
func openStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*stores, error) {
	switch cfg.Database.Driver {
	case "memory":
		logger.Warn("Using in-memory storage; data is lost on restart")
		return &stores{
			licenses: memstorage.NewLicenseRepository(),
			trials:   memstorage.NewTrialRepository(),
			events:   memstorage.NewWebhookRepository(),
			apiKeys:  memstorage.NewAPIKeyRepository(),
		}, nil
	case "", "postgres":
		pool, err := postgres.NewPgxPool(ctx, &cfg.Database, logger)
		if err != nil {
			return nil, err
		}
		if cfg.Database.AutoMigrate {
			if err := postgres.Migrate(pool, logger); err != nil {
				pool.Close()
				return nil, err
			}
		}
		return &stores{
			licenses: postgres.NewLicenseRepository(pool, logger),
			trials:   postgres.NewTrialRepository(pool, logger),
			events:   postgres.NewWebhookRepository(pool, logger),
			apiKeys:  postgres.NewAPIKeyRepository(pool, logger),
			ping:     pool.Ping,
			close:    pool.Close,
		}, nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
}
