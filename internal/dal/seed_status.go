package dal

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// SystemKeyPrefix marks keys reserved for service documents kept in the
// patients collection. Patient ids may not use it.
const SystemKeyPrefix = "_system/"

// SeedStatusKey is the document key of the seed status. The document has no
// name field, so patient queries never match it.
const SeedStatusKey = SystemKeyPrefix + "seed_status"

// IsSystemKey reports whether key is reserved for a service document
func IsSystemKey(key string) bool {
	return strings.HasPrefix(key, SystemKeyPrefix)
}

// SeedStatus represents the seed status document
type SeedStatus struct {
	Ready       bool       `json:"ready"`
	StartedAt   time.Time  `json:"startedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	Message     string     `json:"message"`
	Source      string     `json:"source"`
	Stored      int        `json:"stored"`
	Failed      int        `json:"failed"`
}

// SeedStatusModel reads and writes the seed status document
type SeedStatusModel struct {
	store      DocumentStore
	collection string
}

// NewSeedStatusModel creates a new seed status model
func NewSeedStatusModel(store DocumentStore, collection string) *SeedStatusModel {
	if collection == "" {
		collection = PatientsCollection
	}
	return &SeedStatusModel{
		store:      store,
		collection: collection,
	}
}

// Get retrieves the seed status. ErrDocumentNotFound means no seed has run.
func (m *SeedStatusModel) Get(ctx context.Context) (*SeedStatus, error) {
	doc, err := m.store.Get(ctx, m.collection, SeedStatusKey)
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(doc.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode seed status: %w", err)
	}
	var status SeedStatus
	if err := json.Unmarshal(raw, &status); err != nil {
		return nil, fmt.Errorf("failed to parse seed status: %w", err)
	}
	return &status, nil
}

// Set overwrites the seed status
func (m *SeedStatusModel) Set(ctx context.Context, status SeedStatus) error {
	raw, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to encode seed status: %w", err)
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("failed to encode seed status: %w", err)
	}

	if err := m.store.Set(ctx, m.collection, SeedStatusKey, doc); err != nil {
		return fmt.Errorf("failed to set seed status: %w", err)
	}
	return nil
}
