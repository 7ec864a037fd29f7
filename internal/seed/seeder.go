package seed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"stealthcompany.com/patientrecords/internal/dal"
	"stealthcompany.com/patientrecords/internal/metrics"
)

const (
	// DefaultChunkSize is the number of documents committed per batched write
	DefaultChunkSize = 500
	lockTTL          = time.Hour
)

// Loader yields the records to import from a location
type Loader interface {
	Load(ctx context.Context, location string) ([]map[string]interface{}, error)
}

// Result summarizes a seed run
type Result struct {
	Total     int
	Stored    int
	Generated int
	Failed    int
}

// Seeder imports patient records into a collection in batched chunks
type Seeder struct {
	store      dal.DocumentStore
	locker     dal.Locker
	status     *dal.SeedStatusModel
	loader     Loader
	collection string
	chunkSize  int
}

// NewSeeder creates a seeder. A non-positive chunkSize selects DefaultChunkSize.
func NewSeeder(store dal.DocumentStore, locker dal.Locker, loader Loader, collection string, chunkSize int) *Seeder {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if collection == "" {
		collection = dal.PatientsCollection
	}
	return &Seeder{
		store:      store,
		locker:     locker,
		status:     dal.NewSeedStatusModel(store, collection),
		loader:     loader,
		collection: collection,
		chunkSize:  chunkSize,
	}
}

func (s *Seeder) lockName() string {
	return "seed:" + s.collection
}

// Run holds the seed lock for the collection while loading and importing
// the records at location
func (s *Seeder) Run(ctx context.Context, location string) (result Result, err error) {
	startTime := time.Now()
	defer func() {
		metrics.RecordSeedRun(sourceKind(location), startTime, result.Stored+result.Generated, result.Failed, err)
	}()

	log.Info().Str("collection", s.collection).Msg("Locking collection for seeding")
	if err := s.locker.Lock(ctx, s.lockName(), lockTTL); err != nil {
		return Result{}, fmt.Errorf("failed to lock %s: %w", s.collection, err)
	}
	defer func() {
		log.Info().Str("collection", s.collection).Msg("Unlocking collection after seeding")
		if unlockErr := s.locker.Unlock(context.WithoutCancel(ctx), s.lockName()); unlockErr != nil {
			log.Error().Err(unlockErr).Msg("Failed to unlock collection")
		}
	}()

	s.setStatus(ctx, dal.SeedStatus{
		StartedAt: startTime.UTC(),
		Message:   "Patient seeding started",
		Source:    location,
	})
	defer func() {
		completedAt := time.Now().UTC()
		status := dal.SeedStatus{
			Ready:       err == nil,
			StartedAt:   startTime.UTC(),
			CompletedAt: &completedAt,
			Message:     "Patient seeding completed successfully",
			Source:      location,
			Stored:      result.Stored + result.Generated,
			Failed:      result.Failed,
		}
		if err != nil {
			status.Message = err.Error()
		}
		s.setStatus(context.WithoutCancel(ctx), status)
	}()

	records, err := s.loader.Load(ctx, location)
	if err != nil {
		return Result{}, err
	}

	return s.Import(ctx, records)
}

// setStatus records progress in the status document. Failures are logged only.
func (s *Seeder) setStatus(ctx context.Context, status dal.SeedStatus) {
	if err := s.status.Set(ctx, status); err != nil {
		log.Warn().Err(err).Msg("Failed to update seed status")
	}
}

// Import writes records in chunks keyed by their id rendered as a string.
// Records without an id are stored under a generated key. The first failed
// chunk aborts the import.
func (s *Seeder) Import(ctx context.Context, records []map[string]interface{}) (Result, error) {
	result := Result{Total: len(records)}
	chunk := make([]dal.Document, 0, s.chunkSize)

	flush := func() error {
		if len(chunk) == 0 {
			return nil
		}
		err := s.store.SetMany(ctx, s.collection, chunk)
		metrics.RecordSeedChunk(err)
		if err != nil {
			result.Failed += len(chunk)
			return fmt.Errorf("failed to write chunk: %w", err)
		}
		result.Stored += len(chunk)
		chunk = chunk[:0]

		log.Info().
			Str("collection", s.collection).
			Int("imported", result.Stored+result.Generated).
			Int("total", result.Total).
			Msg("Progress update")
		return nil
	}

	for i, record := range records {
		key, err := dal.KeyFromValue(record["id"])
		if err != nil {
			log.Warn().
				Err(err).
				Int("index", i).
				Msg("Skipping record with invalid id")
			result.Failed++
			continue
		}

		if key == "" {
			if _, err := s.store.Add(ctx, s.collection, record); err != nil {
				result.Failed++
				return result, fmt.Errorf("failed to add record %d: %w", i, err)
			}
			result.Generated++
			continue
		}

		data := make(map[string]interface{}, len(record))
		for k, v := range record {
			data[k] = v
		}
		data["id"] = key

		chunk = append(chunk, dal.Document{ID: key, Data: data})
		if len(chunk) == s.chunkSize {
			if err := flush(); err != nil {
				return result, err
			}
		}
	}
	if err := flush(); err != nil {
		return result, err
	}

	log.Info().
		Str("collection", s.collection).
		Int("total", result.Total).
		Int("stored", result.Stored).
		Int("generated", result.Generated).
		Int("failed", result.Failed).
		Msg("Completed seeding")

	return result, nil
}

// IsLocked reports whether err means another seed run holds the lock
func IsLocked(err error) bool {
	return errors.Is(err, dal.ErrLocked)
}

func sourceKind(location string) string {
	if IsRemote(location) {
		return "url"
	}
	return "file"
}
