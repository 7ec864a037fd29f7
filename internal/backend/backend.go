package backend

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"stealthcompany.com/patientrecords/internal/config"
	"stealthcompany.com/patientrecords/internal/couchbase"
	"stealthcompany.com/patientrecords/internal/dal"
	"stealthcompany.com/patientrecords/internal/mongodb"
)

// Backend is an open document store that can also guard exclusive work
type Backend interface {
	dal.DocumentStore
	dal.Locker
	Close() error
}

// Indexer is implemented by backends that need secondary indexes created
type Indexer interface {
	EnsureIndexes(ctx context.Context, collection string) error
}

var (
	_ Backend = (*dal.MemoryStore)(nil)
	_ Backend = (*couchbase.Store)(nil)
	_ Backend = (*mongodb.Store)(nil)
	_ Indexer = (*couchbase.Store)(nil)
	_ Indexer = (*mongodb.Store)(nil)
)

// Open connects to the backend selected by STORE_DRIVER
func Open(ctx context.Context, cfg *config.Config) (Backend, error) {
	log.Info().Str("driver", cfg.StoreDriver).Msg("Opening document store")

	switch cfg.StoreDriver {
	case config.DriverCouchbase:
		conn, err := couchbase.NewConnectionManager(couchbase.Options{
			URL:      cfg.CouchbaseURL,
			Username: cfg.CouchbaseUsername,
			Password: cfg.CouchbasePassword,
			Bucket:   cfg.CouchbaseBucket,
			Scope:    cfg.CouchbaseScope,
		})
		if err != nil {
			return nil, err
		}
		return couchbase.NewStore(conn), nil
	case config.DriverMongo:
		store, err := mongodb.Connect(ctx, mongodb.Options{
			URI:      cfg.MongoURI,
			Database: cfg.MongoDatabase,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.DriverMemory:
		return dal.NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}

// EnsureIndexes creates indexes when the backend supports them. Failures are
// logged and ignored since queries still work without indexes on some backends.
func EnsureIndexes(ctx context.Context, b Backend, collection string) {
	indexer, ok := b.(Indexer)
	if !ok {
		return
	}
	if err := indexer.EnsureIndexes(ctx, collection); err != nil {
		log.Warn().Err(err).Str("collection", collection).Msg("Failed to ensure indexes")
	}
}
