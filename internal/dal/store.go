package dal

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrDocumentNotFound is returned when no document exists for a key
	ErrDocumentNotFound = errors.New("document not found")
	// ErrLocked is returned when a lock document is already held
	ErrLocked = errors.New("lock already held")
)

// Operator is a comparison used by a query filter
type Operator string

const (
	OpEqual          Operator = "=="
	OpGreaterOrEqual Operator = ">="
	OpLess           Operator = "<"
)

// IsRange reports whether the operator compares by ordering rather than equality
func (o Operator) IsRange() bool {
	return o == OpGreaterOrEqual || o == OpLess
}

// Filter restricts a query to documents where at least one of Fields
// satisfies Op against Value
type Filter struct {
	Fields []string
	Op     Operator
	Value  interface{}
}

// Where builds a single-field filter
func Where(field string, op Operator, value interface{}) Filter {
	return Filter{Fields: []string{field}, Op: op, Value: value}
}

// WhereAny builds a filter matched by any of the given field spellings
func WhereAny(fields []string, op Operator, value interface{}) Filter {
	return Filter{Fields: fields, Op: op, Value: value}
}

// Document is a stored document together with its key
type Document struct {
	ID   string
	Data map[string]interface{}
}

// WithID returns the document body with its key injected as "id".
// The key wins over any stored id field.
func (d Document) WithID() map[string]interface{} {
	out := make(map[string]interface{}, len(d.Data)+1)
	for k, v := range d.Data {
		out[k] = v
	}
	out["id"] = d.ID
	return out
}

// DocumentStore is the document database capability used by the service.
//
// Query returns the conjunction of all filters, ordered by the first field
// used in a range filter and then by key.
type DocumentStore interface {
	Get(ctx context.Context, collection, key string) (Document, error)
	Query(ctx context.Context, collection string, filters ...Filter) ([]Document, error)
	Set(ctx context.Context, collection, key string, doc map[string]interface{}) error
	Update(ctx context.Context, collection, key string, partial map[string]interface{}) error
	Add(ctx context.Context, collection string, doc map[string]interface{}) (string, error)
	SetMany(ctx context.Context, collection string, docs []Document) error
}

// Locker guards exclusive operations such as bulk imports
type Locker interface {
	Lock(ctx context.Context, name string, ttl time.Duration) error
	Unlock(ctx context.Context, name string) error
}
