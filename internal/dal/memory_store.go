package dal

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is a process-local DocumentStore. Documents are round-tripped
// through JSON on every write so readers observe the same value shapes a
// networked store would return.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]map[string]interface{}
	locks       map[string]time.Time
	now         func() time.Time
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]map[string]map[string]interface{}),
		locks:       make(map[string]time.Time),
		now:         time.Now,
	}
}

func (ms *MemoryStore) collection(name string) map[string]map[string]interface{} {
	col, ok := ms.collections[name]
	if !ok {
		col = make(map[string]map[string]interface{})
		ms.collections[name] = col
	}
	return col
}

func cloneDocument(doc map[string]interface{}) (map[string]interface{}, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	if out == nil {
		out = map[string]interface{}{}
	}
	return out, nil
}

// Get retrieves a document by key
func (ms *MemoryStore) Get(ctx context.Context, collection, key string) (Document, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	data, ok := ms.collections[collection][key]
	if !ok {
		return Document{}, fmt.Errorf("get %s/%s: %w", collection, key, ErrDocumentNotFound)
	}
	clone, err := cloneDocument(data)
	if err != nil {
		return Document{}, err
	}
	return Document{ID: key, Data: clone}, nil
}

// Query scans the collection and returns documents matching every filter
func (ms *MemoryStore) Query(ctx context.Context, collection string, filters ...Filter) ([]Document, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	results := []Document{}
	for key, data := range ms.collections[collection] {
		if !matchesAll(data, filters) {
			continue
		}
		clone, err := cloneDocument(data)
		if err != nil {
			return nil, err
		}
		results = append(results, Document{ID: key, Data: clone})
	}

	orderField := rangeField(filters)
	sort.Slice(results, func(i, j int) bool {
		if orderField != "" {
			a, _ := results[i].Data[orderField].(string)
			b, _ := results[j].Data[orderField].(string)
			if a != b {
				return a < b
			}
		}
		return results[i].ID < results[j].ID
	})

	return results, nil
}

// Set creates or overwrites a document
func (ms *MemoryStore) Set(ctx context.Context, collection, key string, doc map[string]interface{}) error {
	clone, err := cloneDocument(doc)
	if err != nil {
		return err
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.collection(collection)[key] = clone
	return nil
}

// Update merges top-level fields into an existing document
func (ms *MemoryStore) Update(ctx context.Context, collection, key string, partial map[string]interface{}) error {
	clone, err := cloneDocument(partial)
	if err != nil {
		return err
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	existing, ok := ms.collections[collection][key]
	if !ok {
		return fmt.Errorf("update %s/%s: %w", collection, key, ErrDocumentNotFound)
	}
	for k, v := range clone {
		existing[k] = v
	}
	return nil
}

// Add stores a document under a generated key
func (ms *MemoryStore) Add(ctx context.Context, collection string, doc map[string]interface{}) (string, error) {
	key := uuid.NewString()
	if err := ms.Set(ctx, collection, key, doc); err != nil {
		return "", err
	}
	return key, nil
}

// SetMany upserts a batch of documents
func (ms *MemoryStore) SetMany(ctx context.Context, collection string, docs []Document) error {
	clones := make([]Document, 0, len(docs))
	for _, doc := range docs {
		clone, err := cloneDocument(doc.Data)
		if err != nil {
			return fmt.Errorf("document %s: %w", doc.ID, err)
		}
		clones = append(clones, Document{ID: doc.ID, Data: clone})
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()
	col := ms.collection(collection)
	for _, doc := range clones {
		col[doc.ID] = doc.Data
	}
	return nil
}

// Lock acquires a named lock until ttl elapses or Unlock is called
func (ms *MemoryStore) Lock(ctx context.Context, name string, ttl time.Duration) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if expiresAt, held := ms.locks[name]; held && ms.now().Before(expiresAt) {
		return fmt.Errorf("lock %s: %w", name, ErrLocked)
	}
	ms.locks[name] = ms.now().Add(ttl)
	return nil
}

// Unlock releases a named lock
func (ms *MemoryStore) Unlock(ctx context.Context, name string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	delete(ms.locks, name)
	return nil
}

// Close is a no-op kept for parity with networked stores
func (ms *MemoryStore) Close() error {
	return nil
}

func rangeField(filters []Filter) string {
	for _, f := range filters {
		if f.Op.IsRange() && len(f.Fields) > 0 {
			return f.Fields[0]
		}
	}
	return ""
}

func matchesAll(data map[string]interface{}, filters []Filter) bool {
	for _, f := range filters {
		if !matches(data, f) {
			return false
		}
	}
	return true
}

func matches(data map[string]interface{}, f Filter) bool {
	for _, field := range f.Fields {
		value, ok := data[field]
		if !ok {
			continue
		}
		if compare(value, f.Op, f.Value) {
			return true
		}
	}
	return false
}

func compare(stored interface{}, op Operator, want interface{}) bool {
	switch op {
	case OpEqual:
		return reflect.DeepEqual(stored, want)
	case OpGreaterOrEqual, OpLess:
		s, ok1 := stored.(string)
		w, ok2 := want.(string)
		if !ok1 || !ok2 {
			return false
		}
		if op == OpGreaterOrEqual {
			return s >= w
		}
		return s < w
	}
	return false
}
