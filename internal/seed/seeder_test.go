package seed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stealthcompany.com/patientrecords/internal/dal"
)

// countingStore records the size of every batched write
type countingStore struct {
	*dal.MemoryStore
	batches []int
	failAt  int
}

func (c *countingStore) SetMany(ctx context.Context, collection string, docs []dal.Document) error {
	c.batches = append(c.batches, len(docs))
	if c.failAt > 0 && len(c.batches) == c.failAt {
		return errors.New("batch rejected")
	}
	return c.MemoryStore.SetMany(ctx, collection, docs)
}

type staticLoader []map[string]interface{}

func (l staticLoader) Load(ctx context.Context, location string) ([]map[string]interface{}, error) {
	return l, nil
}

func makeRecords(n int) []map[string]interface{} {
	records := make([]map[string]interface{}, 0, n)
	for i := 1; i <= n; i++ {
		records = append(records, map[string]interface{}{
			"id":   json.Number(fmt.Sprint(i)),
			"name": fmt.Sprintf("Patient %d", i),
			"dob":  "1990-01-01",
		})
	}
	return records
}

func TestSeeder_ImportChunks(t *testing.T) {
	ctx := context.Background()
	store := &countingStore{MemoryStore: dal.NewMemoryStore()}
	seeder := NewSeeder(store, store, staticLoader(makeRecords(1203)), "", 0)

	result, err := seeder.Run(ctx, "patients.json")
	require.NoError(t, err)

	assert.Equal(t, Result{Total: 1203, Stored: 1203}, result)
	assert.Equal(t, []int{500, 500, 203}, store.batches)

	doc, err := store.Get(ctx, dal.PatientsCollection, "1203")
	require.NoError(t, err)
	assert.Equal(t, "Patient 1203", doc.Data["name"])
	assert.Equal(t, "1203", doc.Data["id"])

	status, err := dal.NewSeedStatusModel(store, "").Get(ctx)
	require.NoError(t, err)
	assert.True(t, status.Ready)
	assert.Equal(t, 1203, status.Stored)
	assert.Equal(t, "patients.json", status.Source)
	assert.NotNil(t, status.CompletedAt)
}

type failingLoader struct{}

func (failingLoader) Load(ctx context.Context, location string) ([]map[string]interface{}, error) {
	return nil, errors.New("source unreachable")
}

func TestSeeder_RecordsFailedStatus(t *testing.T) {
	ctx := context.Background()
	store := dal.NewMemoryStore()
	seeder := NewSeeder(store, store, failingLoader{}, "patients", 10)

	_, err := seeder.Run(ctx, "https://example.com/patients.json")
	require.Error(t, err)

	status, err := dal.NewSeedStatusModel(store, "patients").Get(ctx)
	require.NoError(t, err)
	assert.False(t, status.Ready)
	assert.Equal(t, "source unreachable", status.Message)
}

func TestSeeder_GeneratedAndInvalidKeys(t *testing.T) {
	ctx := context.Background()
	store := &countingStore{MemoryStore: dal.NewMemoryStore()}
	seeder := NewSeeder(store, store, nil, "patients", 2)

	result, err := seeder.Import(ctx, []map[string]interface{}{
		{"id": "a", "name": "A"},
		{"name": "No ID"},
		{"id": true, "name": "Bad ID"},
		{"id": dal.SeedStatusKey, "name": "Reserved"},
		{"id": "b", "name": "B"},
		{"id": "c", "name": "C"},
	})
	require.NoError(t, err)

	assert.Equal(t, Result{Total: 6, Stored: 3, Generated: 1, Failed: 2}, result)
	assert.Equal(t, []int{2, 1}, store.batches)

	docs, err := store.Query(ctx, "patients", dal.Where("name", dal.OpEqual, "No ID"))
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Len(t, docs[0].ID, 36)
}

func TestSeeder_ChunkFailureAborts(t *testing.T) {
	ctx := context.Background()
	store := &countingStore{MemoryStore: dal.NewMemoryStore(), failAt: 2}
	seeder := NewSeeder(store, store, nil, "patients", 10)

	result, err := seeder.Import(ctx, makeRecords(35))
	require.Error(t, err)

	assert.Equal(t, 10, result.Stored)
	assert.Equal(t, 10, result.Failed)
	assert.Equal(t, []int{10, 10}, store.batches)
}

func TestSeeder_RefusesWhenLocked(t *testing.T) {
	ctx := context.Background()
	store := dal.NewMemoryStore()
	require.NoError(t, store.Lock(ctx, "seed:patients", time.Minute))

	seeder := NewSeeder(store, store, staticLoader(makeRecords(1)), "patients", 10)
	_, err := seeder.Run(ctx, "patients.json")

	require.Error(t, err)
	assert.True(t, IsLocked(err))

	_, err = store.Get(ctx, "patients", "1")
	assert.True(t, errors.Is(err, dal.ErrDocumentNotFound))
}

func TestSeeder_ReleasesLock(t *testing.T) {
	ctx := context.Background()
	store := dal.NewMemoryStore()
	seeder := NewSeeder(store, store, staticLoader(makeRecords(3)), "patients", 10)

	_, err := seeder.Run(ctx, "patients.json")
	require.NoError(t, err)

	_, err = seeder.Run(ctx, "patients.json")
	assert.NoError(t, err)
}

func TestSource_LoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "patients.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{"id": 12345678901234567890, "name": "Big"},
		{"id": "x1", "name": "Str"}
	]`), 0o600))

	records, err := NewSource(time.Second).Load(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, records, 2)

	key, err := dal.KeyFromValue(records[0]["id"])
	require.NoError(t, err)
	assert.Equal(t, "12345678901234567890", key)
}

func TestSource_LoadURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/patients.json" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id": 1, "name": "Remote"}]`))
	}))
	defer server.Close()

	src := NewSource(time.Second)

	records, err := src.Load(context.Background(), server.URL+"/patients.json")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Remote", records[0]["name"])

	_, err = src.Load(context.Background(), server.URL+"/missing.json")
	assert.Error(t, err)
}

func TestSource_Errors(t *testing.T) {
	src := NewSource(time.Second)

	_, err := src.Load(context.Background(), filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "object.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"id": 1}`), 0o600))
	_, err = src.Load(context.Background(), path)
	assert.Error(t, err)
}

func TestIsRemote(t *testing.T) {
	assert.True(t, IsRemote("https://example.com/patients.json"))
	assert.True(t, IsRemote("http://localhost/patients.json"))
	assert.False(t, IsRemote("./patients.json"))
}
