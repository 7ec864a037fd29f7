package main

import (
	"context"

	"github.com/rs/zerolog/log"

	"stealthcompany.com/patientrecords/internal/backend"
	"stealthcompany.com/patientrecords/internal/orchestrator"
	"stealthcompany.com/patientrecords/internal/seed"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("patientrecords service failed")
	}
}

// run imports SEED_SOURCE when set, then serves the API
func run() error {
	cfg, err := orchestrator.Bootstrap("patientrecords")
	if err != nil {
		return err
	}

	log.Info().Msg("Starting patientrecords service")

	ctx, cancel := orchestrator.NewSignalHandler().HandleSignals(context.Background())
	defer cancel()

	store, err := backend.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close document store")
		}
	}()

	sm := orchestrator.NewServiceManager(cfg, store)

	if cfg.SeedSource != "" {
		result, err := sm.RunSeed(ctx, cfg.SeedSource)
		switch {
		case seed.IsLocked(err):
			log.Warn().Err(err).Msg("Seed already running elsewhere, skipping")
		case err != nil:
			return err
		default:
			log.Info().
				Int("stored", result.Stored+result.Generated).
				Int("failed", result.Failed).
				Msg("Seed service completed successfully")
		}
	}

	return sm.RunAPI(ctx)
}
