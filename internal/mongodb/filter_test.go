package mongodb

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"stealthcompany.com/patientrecords/internal/dal"
)

func TestBuildFilter_NameAndDOB(t *testing.T) {
	filter, err := BuildFilter([]dal.Filter{
		dal.Where("name", dal.OpEqual, "Ahmed"),
		dal.WhereAny(dal.DOBFields, dal.OpEqual, "1990-01-01"),
	})
	require.NoError(t, err)

	want := bson.D{{Key: "$and", Value: bson.A{
		bson.D{{Key: "name", Value: bson.D{{Key: "$eq", Value: "Ahmed"}}}},
		bson.D{{Key: "$or", Value: bson.A{
			bson.D{{Key: "dob", Value: bson.D{{Key: "$eq", Value: "1990-01-01"}}}},
			bson.D{{Key: "DOB", Value: bson.D{{Key: "$eq", Value: "1990-01-01"}}}},
		}}},
	}}}
	assert.Equal(t, want, filter)
}

func TestBuildFilter_NamePrefix(t *testing.T) {
	filter, err := BuildFilter(dal.NamePrefixFilters("Fa"))
	require.NoError(t, err)

	want := bson.D{{Key: "$and", Value: bson.A{
		bson.D{{Key: "name", Value: bson.D{{Key: "$gte", Value: "Fa"}}}},
		bson.D{{Key: "name", Value: bson.D{{Key: "$lt", Value: "Fa" + dal.PrefixSentinel}}}},
	}}}
	assert.Equal(t, want, filter)
	assert.Equal(t, bson.D{{Key: "name", Value: 1}, {Key: "_id", Value: 1}}, BuildSort(dal.NamePrefixFilters("Fa")))
}

func TestBuildFilter_Empty(t *testing.T) {
	filter, err := BuildFilter(nil)
	require.NoError(t, err)
	assert.Equal(t, bson.D{}, filter)
	assert.Equal(t, bson.D{{Key: "_id", Value: 1}}, BuildSort(nil))
}

func TestBuildFilter_RejectsBadInput(t *testing.T) {
	_, err := BuildFilter([]dal.Filter{dal.Where("name", dal.Operator("!="), "x")})
	assert.Error(t, err)

	_, err = BuildFilter([]dal.Filter{{Op: dal.OpEqual}})
	assert.Error(t, err)
}

func TestWithoutID(t *testing.T) {
	out := withoutID(map[string]interface{}{"_id": "x", "name": "Ahmed"})
	assert.Equal(t, bson.M{"name": "Ahmed"}, out)

	doc := toDocument("123", bson.M{"_id": "123", "name": "Ahmed"})
	assert.Equal(t, "123", doc.ID)
	assert.Equal(t, map[string]interface{}{"name": "Ahmed"}, doc.Data)
}

func TestWithoutID_ConvertsJSONNumbers(t *testing.T) {
	doc := withoutID(map[string]interface{}{
		"_id":                       "ignored",
		"number_of_previous_visits": json.Number("3"),
		"weight":                    json.Number("71.5"),
		"address":                   map[string]interface{}{"floor": json.Number("2")},
		"allergies":                 []interface{}{"Penicillin", json.Number("7")},
		"name":                      "Ahmed",
	})

	assert.NotContains(t, doc, "_id")
	assert.Equal(t, int64(3), doc["number_of_previous_visits"])
	assert.Equal(t, 71.5, doc["weight"])
	assert.Equal(t, bson.M{"floor": int64(2)}, doc["address"])
	assert.Equal(t, bson.A{"Penicillin", int64(7)}, doc["allergies"])
	assert.Equal(t, "Ahmed", doc["name"])
}
