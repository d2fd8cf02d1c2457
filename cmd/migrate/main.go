package main

import (
	"context"
	"fmt"
	"os"

	"truek-settlement/config"
	pgStorage "truek-settlement/internal/adapter/storage/postgres"
	"truek-settlement/pkg/logger"
)

// Applies the embedded schema migrations and exits.
func main() {
	cfg, err := config.Load(os.Getenv("TRK_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)
	ctx := context.Background()

	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	applied, err := pgStorage.Migrate(ctx, pool, log)
	if err != nil {
		log.Error().Err(err).Int("applied", applied).Msg("Migration failed")
		pool.Close()
		os.Exit(1)
	}

	log.Info().Int("applied", applied).Msg("Migrations complete")
}
