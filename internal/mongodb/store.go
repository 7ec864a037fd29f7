package mongodb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"stealthcompany.com/patientrecords/internal/dal"
	"stealthcompany.com/patientrecords/internal/metrics"
)

const (
	backendName     = "mongo"
	locksCollection = "locks"
)

// Options identifies the server and database to connect to
type Options struct {
	URI      string
	Database string
}

// Store implements dal.DocumentStore and dal.Locker on a MongoDB database.
// Document keys are stored in _id.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// Connect opens a client and verifies the primary is reachable
func Connect(ctx context.Context, opts Options) (*Store, error) {
	log.Info().
		Str("database", opts.Database).
		Msg("Creating MongoDB connection")

	clientOpts := options.Client().
		ApplyURI(opts.URI).
		SetBSONOptions(&options.BSONOptions{DefaultDocumentM: true})

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	log.Info().Msg("MongoDB connection created successfully")
	return &Store{client: client, db: client.Database(opts.Database)}, nil
}

// Close disconnects the client
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func toDocument(key string, raw bson.M) dal.Document {
	data := make(map[string]interface{}, len(raw))
	for k, v := range raw {
		if k == "_id" {
			continue
		}
		data[k] = v
	}
	return dal.Document{ID: key, Data: data}
}

func withoutID(doc map[string]interface{}) bson.M {
	out := make(bson.M, len(doc))
	for k, v := range doc {
		if k == "_id" {
			continue
		}
		out[k] = bsonValue(v)
	}
	return out
}

// bsonValue converts decoded JSON numbers to BSON numbers. bson would
// otherwise write a json.Number as its string form.
func bsonValue(v interface{}) interface{} {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case map[string]interface{}:
		out := make(bson.M, len(t))
		for k, inner := range t {
			out[k] = bsonValue(inner)
		}
		return out
	case []interface{}:
		out := make(bson.A, len(t))
		for i, inner := range t {
			out[i] = bsonValue(inner)
		}
		return out
	default:
		return v
	}
}

// Get retrieves a document by key
func (s *Store) Get(ctx context.Context, collection, key string) (doc dal.Document, err error) {
	defer func(start time.Time) { metrics.RecordStoreOperation(backendName, "get", start, err) }(time.Now())

	var raw bson.M
	err = s.db.Collection(collection).FindOne(ctx, bson.D{{Key: "_id", Value: key}}).Decode(&raw)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return dal.Document{}, fmt.Errorf("get %s/%s: %w", collection, key, dal.ErrDocumentNotFound)
		}
		return dal.Document{}, fmt.Errorf("failed to get document %s: %w", key, err)
	}
	return toDocument(key, raw), nil
}

// Query returns documents matching every filter
func (s *Store) Query(ctx context.Context, collection string, filters ...dal.Filter) (docs []dal.Document, err error) {
	defer func(start time.Time) { metrics.RecordStoreOperation(backendName, "query", start, err) }(time.Now())

	filter, err := BuildFilter(filters)
	if err != nil {
		return nil, err
	}

	cursor, err := s.db.Collection(collection).Find(ctx, filter, options.Find().SetSort(BuildSort(filters)))
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	defer cursor.Close(ctx)

	docs = []dal.Document{}
	for cursor.Next(ctx) {
		var raw bson.M
		if err := cursor.Decode(&raw); err != nil {
			log.Warn().Err(err).Msg("Failed to decode query row")
			continue
		}
		key, ok := raw["_id"].(string)
		if !ok {
			key = fmt.Sprint(raw["_id"])
		}
		docs = append(docs, toDocument(key, raw))
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}

	return docs, nil
}

// Set creates or overwrites a document
func (s *Store) Set(ctx context.Context, collection, key string, doc map[string]interface{}) (err error) {
	defer func(start time.Time) { metrics.RecordStoreOperation(backendName, "set", start, err) }(time.Now())

	_, err = s.db.Collection(collection).ReplaceOne(ctx,
		bson.D{{Key: "_id", Value: key}},
		withoutID(doc),
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert document %s: %w", key, err)
	}
	return nil
}

// Update merges top-level fields into an existing document
func (s *Store) Update(ctx context.Context, collection, key string, partial map[string]interface{}) (err error) {
	defer func(start time.Time) { metrics.RecordStoreOperation(backendName, "update", start, err) }(time.Now())

	fields := withoutID(partial)
	if len(fields) == 0 {
		_, err = s.Get(ctx, collection, key)
		return err
	}

	res, err := s.db.Collection(collection).UpdateOne(ctx,
		bson.D{{Key: "_id", Value: key}},
		bson.D{{Key: "$set", Value: fields}},
	)
	if err != nil {
		return fmt.Errorf("failed to update document %s: %w", key, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("update %s/%s: %w", collection, key, dal.ErrDocumentNotFound)
	}
	return nil
}

// Add inserts a document under a generated key
func (s *Store) Add(ctx context.Context, collection string, doc map[string]interface{}) (key string, err error) {
	defer func(start time.Time) { metrics.RecordStoreOperation(backendName, "add", start, err) }(time.Now())

	key = uuid.NewString()
	fields := withoutID(doc)
	fields["_id"] = key
	if _, err := s.db.Collection(collection).InsertOne(ctx, fields); err != nil {
		return "", fmt.Errorf("failed to insert document %s: %w", key, err)
	}
	return key, nil
}

// SetMany upserts a batch of documents with one unordered bulk write
func (s *Store) SetMany(ctx context.Context, collection string, docs []dal.Document) (err error) {
	defer func(start time.Time) { metrics.RecordStoreOperation(backendName, "set_many", start, err) }(time.Now())

	if len(docs) == 0 {
		return nil
	}

	models := make([]mongo.WriteModel, 0, len(docs))
	for _, doc := range docs {
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.D{{Key: "_id", Value: doc.ID}}).
			SetReplacement(withoutID(doc.Data)).
			SetUpsert(true))
	}

	if _, err := s.db.Collection(collection).BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false)); err != nil {
		return fmt.Errorf("bulk upsert into %s: %w", collection, err)
	}
	return nil
}

// EnsureIndexes creates the secondary indexes used by the patient queries
func (s *Store) EnsureIndexes(ctx context.Context, collection string) error {
	_, err := s.db.Collection(collection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "name", Value: 1}, {Key: "dob", Value: 1}}},
		{Keys: bson.D{{Key: "name", Value: 1}, {Key: "DOB", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	log.Info().Str("collection", collection).Msg("Indexes ensured")
	return nil
}

// Lock acquires a named lock by inserting a lock document. A lock whose
// expiry has passed is cleared and the insert retried once.
func (s *Store) Lock(ctx context.Context, name string, ttl time.Duration) error {
	locks := s.db.Collection(locksCollection)
	now := time.Now().UTC()
	lockDoc := bson.D{
		{Key: "_id", Value: name},
		{Key: "lockedAt", Value: now},
		{Key: "expiresAt", Value: now.Add(ttl)},
	}

	for attempt := 0; attempt < 2; attempt++ {
		_, err := locks.InsertOne(ctx, lockDoc)
		if err == nil {
			log.Info().Str("lock", name).Dur("ttl", ttl).Msg("Lock acquired")
			return nil
		}
		if !mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("failed to create lock document: %w", err)
		}

		res, err := locks.DeleteOne(ctx, bson.D{
			{Key: "_id", Value: name},
			{Key: "expiresAt", Value: bson.D{{Key: "$lt", Value: now}}},
		})
		if err != nil {
			return fmt.Errorf("failed to clear expired lock: %w", err)
		}
		if res.DeletedCount == 0 {
			break
		}
	}

	return fmt.Errorf("lock %s: %w", name, dal.ErrLocked)
}

// Unlock removes the lock document
func (s *Store) Unlock(ctx context.Context, name string) error {
	if _, err := s.db.Collection(locksCollection).DeleteOne(ctx, bson.D{{Key: "_id", Value: name}}); err != nil {
		return fmt.Errorf("failed to remove lock document: %w", err)
	}
	log.Info().Str("lock", name).Msg("Lock released")
	return nil
}
