package main

import (
	"context"

	"github.com/rs/zerolog/log"

	"stealthcompany.com/patientrecords/internal/backend"
	"stealthcompany.com/patientrecords/internal/orchestrator"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("API service failed")
	}
}

func run() error {
	cfg, err := orchestrator.Bootstrap("patientrecords-api")
	if err != nil {
		return err
	}

	log.Info().Msg("Starting patientrecords-api service")

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

	return orchestrator.NewServiceManager(cfg, store).RunAPI(ctx)
}
