package dal

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
)

// PatientsCollection is the default collection holding patient documents
const PatientsCollection = "patients"

// PrefixSentinel is appended to a prefix to form the exclusive upper bound of
// a prefix range. U+10FFFF is the highest code point, so every string that
// starts with the prefix sorts below prefix+PrefixSentinel.
const PrefixSentinel = string(utf8.MaxRune)

// DOBFields lists the accepted spellings of the date-of-birth field
var DOBFields = []string{"dob", "DOB"}

// PatientModel handles patient-specific database operations
type PatientModel struct {
	store      DocumentStore
	collection string
	now        func() time.Time
}

// NewPatientModel creates a new patient model over the given store
func NewPatientModel(store DocumentStore, collection string) *PatientModel {
	if collection == "" {
		collection = PatientsCollection
	}
	return &PatientModel{
		store:      store,
		collection: collection,
		now:        time.Now,
	}
}

// Collection returns the collection name the model reads and writes
func (pm *PatientModel) Collection() string {
	return pm.collection
}

// GetByID retrieves a patient by document key. Reserved system keys are
// reported as not found.
func (pm *PatientModel) GetByID(ctx context.Context, id string) (Document, error) {
	log.Debug().
		Str("id", id).
		Msg("Getting patient by ID")

	if IsSystemKey(id) {
		return Document{}, fmt.Errorf("get %s/%s: %w", pm.collection, id, ErrDocumentNotFound)
	}
	return pm.store.Get(ctx, pm.collection, id)
}

// SearchByNameAndDOB returns patients whose name and date of birth both match exactly
func (pm *PatientModel) SearchByNameAndDOB(ctx context.Context, name, dob string) ([]Document, error) {
	log.Debug().
		Str("name", name).
		Str("dob", dob).
		Msg("Searching patients by name and dob")

	return pm.store.Query(ctx, pm.collection,
		Where("name", OpEqual, name),
		WhereAny(DOBFields, OpEqual, dob),
	)
}

// SearchByNamePrefix returns patients whose name starts with prefix (case-sensitive)
func (pm *PatientModel) SearchByNamePrefix(ctx context.Context, prefix string) ([]Document, error) {
	log.Debug().
		Str("prefix", prefix).
		Msg("Searching patients by name prefix")

	return pm.store.Query(ctx, pm.collection, NamePrefixFilters(prefix)...)
}

// NamePrefixFilters builds the half-open range [prefix, prefix+sentinel) on name
func NamePrefixFilters(prefix string) []Filter {
	return []Filter{
		Where("name", OpGreaterOrEqual, prefix),
		Where("name", OpLess, prefix+PrefixSentinel),
	}
}

// Save writes a normalized patient under its id, overwriting any existing document
func (pm *PatientModel) Save(ctx context.Context, patient *Patient) error {
	doc, err := patient.ToDocument()
	if err != nil {
		return err
	}

	if err := pm.store.Set(ctx, pm.collection, patient.ID, doc); err != nil {
		return fmt.Errorf("failed to save patient %s: %w", patient.ID, err)
	}

	log.Info().
		Str("id", patient.ID).
		Msg("Patient saved")
	return nil
}

// Update merges fields into an existing patient. The id field is never
// written and last_record_update defaults to the current time. Reserved
// system keys are reported as not found.
func (pm *PatientModel) Update(ctx context.Context, id string, fields map[string]interface{}) error {
	if IsSystemKey(id) {
		return fmt.Errorf("failed to update patient %s: %w", id, ErrDocumentNotFound)
	}

	partial := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		if k == "id" {
			continue
		}
		partial[k] = v
	}
	if _, ok := partial["last_record_update"]; !ok {
		partial["last_record_update"] = pm.now().UTC().Format(time.RFC3339)
	}

	if err := pm.store.Update(ctx, pm.collection, id, partial); err != nil {
		return fmt.Errorf("failed to update patient %s: %w", id, err)
	}

	log.Info().
		Str("id", id).
		Int("fields", len(partial)).
		Msg("Patient updated")
	return nil
}

// Now returns the model clock, used to stamp new records
func (pm *PatientModel) Now() time.Time {
	return pm.now()
}

// SetClock replaces the model clock
func (pm *PatientModel) SetClock(now func() time.Time) {
	pm.now = now
}
