package dal

import (
	"context"
	"errors"
	"math/rand"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestModel(t *testing.T) (*PatientModel, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	pm := NewPatientModel(store, "")
	pm.SetClock(func() time.Time { return testNow })
	return pm, store
}

func TestNewPatientModel_DefaultCollection(t *testing.T) {
	pm, _ := newTestModel(t)
	assert.Equal(t, "patients", pm.Collection())

	assert.Equal(t, "people", NewPatientModel(NewMemoryStore(), "people").Collection())
}

func TestPatientModel_SaveAndGet(t *testing.T) {
	ctx := context.Background()
	pm, _ := newTestModel(t)

	p, err := ParsePatient([]byte(`{"id":"1","name":"A","dob":"2000-01-01"}`), pm.Now())
	require.NoError(t, err)
	require.NoError(t, pm.Save(ctx, p))

	doc, err := pm.GetByID(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "A", doc.Data["name"])
	assert.Equal(t, "1", doc.WithID()["id"])
}

func TestPatientModel_Update(t *testing.T) {
	ctx := context.Background()
	pm, store := newTestModel(t)
	require.NoError(t, store.Set(ctx, "patients", "1", map[string]interface{}{"id": "1", "name": "A"}))

	fields := map[string]interface{}{"id": "2", "phone_number": "555"}
	require.NoError(t, pm.Update(ctx, "1", fields))

	doc, err := store.Get(ctx, "patients", "1")
	require.NoError(t, err)
	assert.Equal(t, "1", doc.Data["id"])
	assert.Equal(t, "555", doc.Data["phone_number"])
	assert.Equal(t, "2025-06-01T10:00:00Z", doc.Data["last_record_update"])

	// caller's map is not modified
	assert.Equal(t, "2", fields["id"])

	err = pm.Update(ctx, "missing", map[string]interface{}{"name": "X"})
	assert.True(t, errors.Is(err, ErrDocumentNotFound))
}

func TestPatientModel_HidesSystemDocuments(t *testing.T) {
	ctx := context.Background()
	pm, store := newTestModel(t)
	require.NoError(t, NewSeedStatusModel(store, "").Set(ctx, SeedStatus{Ready: true}))

	_, err := pm.GetByID(ctx, SeedStatusKey)
	assert.True(t, errors.Is(err, ErrDocumentNotFound))

	err = pm.Update(ctx, SeedStatusKey, map[string]interface{}{"ready": false})
	assert.True(t, errors.Is(err, ErrDocumentNotFound))

	status, err := NewSeedStatusModel(store, "").Get(ctx)
	require.NoError(t, err)
	assert.True(t, status.Ready)

	_, err = ParsePatient([]byte(`{"id":"_system/seed_status","name":"A","dob":"2000-01-01"}`), testNow)
	assert.True(t, errors.Is(err, ErrInvalidPatient))
}

func TestPatientModel_SearchByNameAndDOB(t *testing.T) {
	ctx := context.Background()
	pm, store := newTestModel(t)
	require.NoError(t, store.SetMany(ctx, "patients", []Document{
		{ID: "1", Data: map[string]interface{}{"name": "Ahmed", "dob": "1990-01-01"}},
		{ID: "2", Data: map[string]interface{}{"name": "Ahmed", "DOB": "1990-01-01"}},
		{ID: "3", Data: map[string]interface{}{"name": "Ahmed", "dob": "1990-01-02"}},
		{ID: "4", Data: map[string]interface{}{"name": "Ahmed Ali", "dob": "1990-01-01"}},
	}))

	docs, err := pm.SearchByNameAndDOB(ctx, "Ahmed", "1990-01-01")
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, ids(docs))

	docs, err = pm.SearchByNameAndDOB(ctx, "Nobody", "1990-01-01")
	require.NoError(t, err)
	assert.Empty(t, docs)
}

// The prefix range must select exactly the names sharing the prefix,
// whatever else is stored.
func TestPatientModel_SearchByNamePrefix_MatchesHasPrefix(t *testing.T) {
	ctx := context.Background()
	alphabet := []string{"M", "a", "r", "Mar", "z", "é", "\uFFFF", "\U0010FFFD", " ", "~"}
	prefixes := []string{"Mar", "M", "Ma", "é", "~", "\uFFFF"}

	rng := rand.New(rand.NewSource(1))
	for round := 0; round < 25; round++ {
		pm, store := newTestModel(t)

		var names []string
		for i := 0; i < 30; i++ {
			var sb strings.Builder
			for n := rng.Intn(4) + 1; n > 0; n-- {
				sb.WriteString(alphabet[rng.Intn(len(alphabet))])
			}
			names = append(names, sb.String())
		}
		names = append(names, prefixes...)

		for i, name := range names {
			key := string(rune('A'+i%26)) + strings.Repeat("x", i/26) + "-" + string(rune('0'+i%10))
			require.NoError(t, store.Set(ctx, "patients", key, map[string]interface{}{"name": name}))
		}

		for _, prefix := range prefixes {
			docs, err := pm.SearchByNamePrefix(ctx, prefix)
			require.NoError(t, err)

			var got []string
			for _, d := range docs {
				got = append(got, d.Data["name"].(string))
			}

			var want []string
			for _, name := range names {
				if strings.HasPrefix(name, prefix) {
					want = append(want, name)
				}
			}
			sort.Strings(want)

			assert.Equal(t, want, got, "prefix %q round %d", prefix, round)
		}
	}
}
