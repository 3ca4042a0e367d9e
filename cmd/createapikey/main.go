package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/makkenzo/entitlement-service/internal/config"
	"github.com/makkenzo/entitlement-service/internal/service"
	"github.com/makkenzo/entitlement-service/internal/storage/postgres"
	"github.com/makkenzo/entitlement-service/pkg/logger"
)

// createapikey bootstraps the first admin API key straight into the database.
func main() {
	configPath := flag.String("config", "./configs/config.dev.yaml", "Path to configuration file")
	description := flag.String("description", "Bootstrap admin key", "Description stored with the key")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.Database.Driver == "memory" {
		log.Fatal("createapikey needs the postgres driver; keys in the memory driver do not outlive the process")
	}

	appLogger, err := logger.NewZapLogger("warn", cfg.Log.Format)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer appLogger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := postgres.NewPgxPool(ctx, &cfg.Database, appLogger)
	if err != nil {
		log.Fatalf("Unable to connect to database: %v", err)
	}
	defer pool.Close()

	if cfg.Database.AutoMigrate {
		if err := postgres.Migrate(pool, appLogger); err != nil {
			log.Fatalf("Failed to migrate database: %v", err)
		}
	}

	apiKeys := service.NewAPIKeyService(postgres.NewAPIKeyRepository(pool, appLogger), appLogger)
	created, err := apiKeys.CreateAPIKey(ctx, *description)
	if err != nil {
		log.Fatalf("Failed to create API key: %v", err)
	}

	fmt.Printf("Generated API Key (SAVE THIS securely, it is not shown again):\n%s\n\n", created.FullKey)
	fmt.Printf("ID:     %s\n", created.ID)
	fmt.Printf("Prefix: %s\n", created.Prefix)
}
