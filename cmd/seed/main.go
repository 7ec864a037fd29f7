package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"stealthcompany.com/patientrecords/internal/backend"
	"stealthcompany.com/patientrecords/internal/orchestrator"
	"stealthcompany.com/patientrecords/internal/seed"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		source     string
		chunkSize  int
		collection string
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Import patient records into the document store",
		Long: `Reads a JSON array of patient objects from a local file or an http(s) URL
and writes them into the patients collection in batched chunks. Each record is
keyed by its id; records without an id get a generated key.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := orchestrator.Bootstrap("patientrecords-seed")
			if err != nil {
				return err
			}

			if source == "" {
				source = cfg.SeedSource
			}
			if source == "" {
				return fmt.Errorf("no source given: pass --source or set SEED_SOURCE")
			}
			if cmd.Flags().Changed("chunk-size") {
				cfg.SeedChunkSize = chunkSize
			}
			if cmd.Flags().Changed("collection") {
				cfg.PatientsCollection = collection
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, cancel := orchestrator.NewSignalHandler().HandleSignals(context.Background())
			defer cancel()

			store, err := backend.Open(ctx, cfg)
			if err != nil {
				return fmt.Errorf("open document store: %w", err)
			}
			defer func() {
				if err := store.Close(); err != nil {
					log.Error().Err(err).Msg("Failed to close document store")
				}
			}()

			result, err := orchestrator.NewServiceManager(cfg, store).RunSeed(ctx, source)
			if err != nil {
				if seed.IsLocked(err) {
					log.Error().Err(err).Msg("Another seed run is in progress")
				} else {
					log.Error().Err(err).Msg("Failed to seed patients")
				}
				return err
			}

			log.Info().
				Int("total", result.Total).
				Int("stored", result.Stored).
				Int("generated", result.Generated).
				Int("failed", result.Failed).
				Msg("Patient seeding completed successfully")
			return nil
		},
	}

	cmd.Flags().StringVarP(&source, "source", "s", "", "path or http(s) URL of the patients JSON file (default $SEED_SOURCE)")
	cmd.Flags().IntVar(&chunkSize, "chunk-size", seed.DefaultChunkSize, "documents per batched write")
	cmd.Flags().StringVar(&collection, "collection", "", "target collection (default $PATIENTS_COLLECTION)")

	return cmd
}
