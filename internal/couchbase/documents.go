package couchbase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/couchbase/gocb/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"stealthcompany.com/patientrecords/internal/dal"
	"stealthcompany.com/patientrecords/internal/metrics"
)

const (
	backendName       = "couchbase"
	maxReplaceRetries = 5
)

// Store implements dal.DocumentStore and dal.Locker on a Couchbase scope
type Store struct {
	conn *ConnectionManager
}

// NewStore creates a store over an open connection
func NewStore(conn *ConnectionManager) *Store {
	return &Store{conn: conn}
}

// Close closes the underlying cluster connection
func (s *Store) Close() error {
	return s.conn.Close()
}

// Get retrieves a document by key
func (s *Store) Get(ctx context.Context, collection, key string) (doc dal.Document, err error) {
	defer func(start time.Time) { metrics.RecordStoreOperation(backendName, "get", start, err) }(time.Now())

	res, err := s.conn.Collection(collection).Get(key, &gocb.GetOptions{Context: ctx})
	if err != nil {
		if errors.Is(err, gocb.ErrDocumentNotFound) {
			return dal.Document{}, fmt.Errorf("get %s/%s: %w", collection, key, dal.ErrDocumentNotFound)
		}
		return dal.Document{}, fmt.Errorf("failed to get document %s: %w", key, err)
	}

	var data map[string]interface{}
	if err := res.Content(&data); err != nil {
		return dal.Document{}, fmt.Errorf("failed to parse document content: %w", err)
	}
	return dal.Document{ID: key, Data: data}, nil
}

// Query runs a SQL++ select over the collection
func (s *Store) Query(ctx context.Context, collection string, filters ...dal.Filter) (docs []dal.Document, err error) {
	defer func(start time.Time) { metrics.RecordStoreOperation(backendName, "query", start, err) }(time.Now())

	keyspace, err := s.conn.Keyspace(collection)
	if err != nil {
		return nil, err
	}
	stmt, params, err := BuildSelect(keyspace, filters)
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str("query", stmt).
		Msg("Querying documents")

	rows, err := s.conn.GetCluster().Query(stmt, &gocb.QueryOptions{
		Context:         ctx,
		NamedParameters: params,
	})
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	defer rows.Close()

	docs = []dal.Document{}
	for rows.Next() {
		var row QueryRow
		if err := rows.Row(&row); err != nil {
			log.Warn().Err(err).Msg("Failed to decode query row")
			continue
		}
		docs = append(docs, dal.Document{ID: row.ID, Data: row.Resource})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}

	return docs, nil
}

// Set creates or overwrites a document
func (s *Store) Set(ctx context.Context, collection, key string, doc map[string]interface{}) (err error) {
	defer func(start time.Time) { metrics.RecordStoreOperation(backendName, "set", start, err) }(time.Now())

	if _, err := s.conn.Collection(collection).Upsert(key, doc, &gocb.UpsertOptions{Context: ctx}); err != nil {
		return fmt.Errorf("failed to upsert document %s: %w", key, err)
	}
	return nil
}

// Update merges top-level fields into an existing document. The read and
// write are tied by CAS and retried when another writer wins the race.
func (s *Store) Update(ctx context.Context, collection, key string, partial map[string]interface{}) (err error) {
	defer func(start time.Time) { metrics.RecordStoreOperation(backendName, "update", start, err) }(time.Now())

	col := s.conn.Collection(collection)
	for attempt := 0; attempt < maxReplaceRetries; attempt++ {
		res, err := col.Get(key, &gocb.GetOptions{Context: ctx})
		if err != nil {
			if errors.Is(err, gocb.ErrDocumentNotFound) {
				return fmt.Errorf("update %s/%s: %w", collection, key, dal.ErrDocumentNotFound)
			}
			return fmt.Errorf("failed to get document %s: %w", key, err)
		}

		var data map[string]interface{}
		if err := res.Content(&data); err != nil {
			return fmt.Errorf("failed to parse document content: %w", err)
		}
		if data == nil {
			data = map[string]interface{}{}
		}
		for k, v := range partial {
			data[k] = v
		}

		_, err = col.Replace(key, data, &gocb.ReplaceOptions{Cas: res.Cas(), Context: ctx})
		if err == nil {
			return nil
		}
		if errors.Is(err, gocb.ErrDocumentNotFound) {
			return fmt.Errorf("update %s/%s: %w", collection, key, dal.ErrDocumentNotFound)
		}
		if !errors.Is(err, gocb.ErrCasMismatch) {
			return fmt.Errorf("failed to replace document %s: %w", key, err)
		}

		log.Debug().
			Str("id", key).
			Int("attempt", attempt+1).
			Msg("CAS mismatch on update, retrying")
	}

	return fmt.Errorf("failed to update document %s: %w", key, gocb.ErrCasMismatch)
}

// Add inserts a document under a generated key
func (s *Store) Add(ctx context.Context, collection string, doc map[string]interface{}) (key string, err error) {
	defer func(start time.Time) { metrics.RecordStoreOperation(backendName, "add", start, err) }(time.Now())

	key = uuid.NewString()
	if _, err := s.conn.Collection(collection).Insert(key, doc, &gocb.InsertOptions{Context: ctx}); err != nil {
		return "", fmt.Errorf("failed to insert document %s: %w", key, err)
	}
	return key, nil
}

// SetMany upserts a batch of documents with a single bulk request
func (s *Store) SetMany(ctx context.Context, collection string, docs []dal.Document) (err error) {
	defer func(start time.Time) { metrics.RecordStoreOperation(backendName, "set_many", start, err) }(time.Now())

	if len(docs) == 0 {
		return nil
	}

	ops := make([]gocb.BulkOp, 0, len(docs))
	for _, doc := range docs {
		ops = append(ops, &gocb.UpsertOp{ID: doc.ID, Value: doc.Data})
	}

	if err := s.conn.Collection(collection).Do(ops, nil); err != nil {
		return fmt.Errorf("bulk upsert into %s: %w", collection, err)
	}

	var failed []error
	for _, op := range ops {
		if upsert, ok := op.(*gocb.UpsertOp); ok && upsert.Err != nil {
			failed = append(failed, fmt.Errorf("document %s: %w", upsert.ID, upsert.Err))
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("bulk upsert into %s: %d of %d failed: %w", collection, len(failed), len(docs), errors.Join(failed...))
	}

	return nil
}

// EnsureIndexes creates the secondary indexes used by the patient queries
func (s *Store) EnsureIndexes(ctx context.Context, collection string) error {
	keyspace, err := s.conn.Keyspace(collection)
	if err != nil {
		return err
	}

	for _, stmt := range indexStatements(keyspace, collection) {
		if _, err := s.conn.GetCluster().Query(stmt, &gocb.QueryOptions{Context: ctx}); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
		log.Info().Str("query", stmt).Msg("Index ensured")
	}
	return nil
}
