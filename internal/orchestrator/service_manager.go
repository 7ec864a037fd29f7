package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"stealthcompany.com/patientrecords/internal/api"
	"stealthcompany.com/patientrecords/internal/backend"
	"stealthcompany.com/patientrecords/internal/config"
	"stealthcompany.com/patientrecords/internal/dal"
	"stealthcompany.com/patientrecords/internal/metrics"
	"stealthcompany.com/patientrecords/internal/seed"
	"stealthcompany.com/patientrecords/pkg/zerolog_config"
)

// Bootstrap loads configuration and installs the logger and metrics for a
// process named app
func Bootstrap(app string) (*config.Config, error) {
	config.LoadDotEnv()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	zerolog_config.SetAppPrefix(app)
	if err := zerolog_config.StartupWithEnv(cfg.ElasticsearchURL, app, cfg.LogLevel); err != nil {
		return nil, fmt.Errorf("start logger: %w", err)
	}

	metrics.Configure(cfg.EnableBusinessMetrics, cfg.EnableSystemMetrics)
	return cfg, nil
}

// ServiceManager owns the open store and runs the seed and API services on it
type ServiceManager struct {
	cfg      *config.Config
	store    backend.Backend
	patients *dal.PatientModel
}

// NewServiceManager creates a service manager over an open backend
func NewServiceManager(cfg *config.Config, store backend.Backend) *ServiceManager {
	return &ServiceManager{
		cfg:      cfg,
		store:    store,
		patients: dal.NewPatientModel(store, cfg.PatientsCollection),
	}
}

// RunSeed imports the records at source into the patients collection
func (sm *ServiceManager) RunSeed(ctx context.Context, source string) (seed.Result, error) {
	log.Info().Str("source", source).Msg("Starting seed service...")

	seeder := seed.NewSeeder(
		sm.store,
		sm.store,
		seed.NewSource(sm.cfg.SeedFetchTimeout),
		sm.patients.Collection(),
		sm.cfg.SeedChunkSize,
	)
	return seeder.Run(ctx, source)
}

// Handler returns the API router
func (sm *ServiceManager) Handler() http.Handler {
	return api.SetupRoutes(sm.patients, dal.NewSeedStatusModel(sm.store, sm.patients.Collection()))
}

// RunAPI serves the API on the configured port until ctx is cancelled
func (sm *ServiceManager) RunAPI(ctx context.Context) error {
	ln, err := net.Listen("tcp", ":"+sm.cfg.APIPort)
	if err != nil {
		return fmt.Errorf("listen on port %s: %w", sm.cfg.APIPort, err)
	}
	return sm.Serve(ctx, ln)
}

// Serve serves the API on ln until ctx is cancelled, then drains in-flight
// requests for at most the configured shutdown timeout
func (sm *ServiceManager) Serve(ctx context.Context, ln net.Listener) error {
	backend.EnsureIndexes(ctx, sm.store, sm.patients.Collection())

	metrics.RegisterSystemCollectors()

	server := &http.Server{
		Handler:           sm.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", ln.Addr().String()).
			Msg("API Server starting")
		serveErr <- server.Serve(ln)
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	log.Info().Dur("timeout", sm.cfg.ShutdownTimeout).Msg("Shutting down API server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), sm.cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info().Msg("API server stopped")
	return nil
}
