package dal

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// ErrInvalidPatient marks a patient payload that fails presence checks
var ErrInvalidPatient = errors.New("invalid patient")

const unknownValue = "Unknown"

// patientField is one attribute of the normalized patient document. aliases
// are older spellings read when the canonical key is absent.
type patientField struct {
	key     string
	aliases []string
	def     func(now time.Time) interface{}
}

func constant(v interface{}) func(time.Time) interface{} {
	return func(time.Time) interface{} { return v }
}

func emptyList(time.Time) interface{} { return []interface{}{} }

var patientFields = []patientField{
	{key: "address", def: constant(nil)},
	{key: "phone_number", def: constant(nil)},
	{key: "gender", def: constant(unknownValue)},
	{key: "blood_type", def: constant(unknownValue)},
	{key: "allergies", def: emptyList},
	{key: "chronic_conditions", def: emptyList},
	{key: "current_medications", def: emptyList},
	{key: "do_not_resuscitate", def: constant(false)},
	{key: "number_of_previous_visits", def: constant(json.Number("0"))},
	{key: "number_of_previous_admissions", def: constant(json.Number("0"))},
	{key: "date_of_last_admission", def: constant(nil)},
	{key: "last_diagnosis", def: constant("")},
	{key: "notes", aliases: []string{"patient_notes"}, def: constant("")},
	{key: "last_record_update", def: func(now time.Time) interface{} {
		return now.UTC().Format(time.RFC3339)
	}},
}

// Patient is the normalized document written by AddPatient. Values other
// than the key are kept exactly as the client sent them.
type Patient struct {
	ID     string
	fields map[string]interface{}
}

// ParsePatient decodes a JSON object into a normalized Patient. id, name and
// dob (or DOB) must be present; every other known attribute falls back to
// its default when absent or null. Unknown attributes are dropped.
func ParsePatient(body []byte, now time.Time) (*Patient, error) {
	in, err := decodeJSONObject(body)
	if err != nil {
		return nil, err
	}

	id, err := KeyFromValue(in["id"])
	if err != nil {
		return nil, err
	}

	name, hasName := lookup(in, "name")
	dob, hasDOB := lookup(in, DOBFields...)

	var missing []string
	if id == "" {
		missing = append(missing, "id")
	}
	if !hasName {
		missing = append(missing, "name")
	}
	if !hasDOB {
		missing = append(missing, "dob")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing required fields: %s", ErrInvalidPatient, strings.Join(missing, ", "))
	}

	doc := make(map[string]interface{}, len(patientFields)+3)
	doc["id"] = id
	doc["name"] = name
	doc["dob"] = dob
	for _, f := range patientFields {
		if v, ok := lookup(in, append([]string{f.key}, f.aliases...)...); ok {
			doc[f.key] = v
			continue
		}
		doc[f.key] = f.def(now)
	}

	return &Patient{ID: id, fields: doc}, nil
}

// Get returns one attribute of the normalized document
func (p *Patient) Get(key string) interface{} {
	return p.fields[key]
}

// ToDocument returns the map form written to the store
func (p *Patient) ToDocument() (map[string]interface{}, error) {
	doc := make(map[string]interface{}, len(p.fields))
	for k, v := range p.fields {
		doc[k] = v
	}
	return doc, nil
}

// lookup returns the first of keys holding a usable value. null and blank
// strings count as absent.
func lookup(in map[string]interface{}, keys ...string) (interface{}, bool) {
	for _, k := range keys {
		v, ok := in[k]
		if !ok || v == nil {
			continue
		}
		if s, isString := v.(string); isString && strings.TrimSpace(s) == "" {
			continue
		}
		return v, true
	}
	return nil, false
}

func decodeJSONObject(body []byte) (map[string]interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var in map[string]interface{}
	if err := dec.Decode(&in); err != nil || in == nil {
		return nil, fmt.Errorf("%w: body must be a JSON object", ErrInvalidPatient)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: body must be a JSON object", ErrInvalidPatient)
	}
	return in, nil
}

// DocumentKey renders a raw JSON id (string or number) as a document key.
// An absent or null id yields an empty key.
func DocumentKey(raw json.RawMessage) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return "", nil
	}

	var s string
	if err := json.Unmarshal(trimmed, &s); err == nil {
		return strings.TrimSpace(s), nil
	}

	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	if err := dec.Decode(&n); err == nil {
		return n.String(), nil
	}

	return "", fmt.Errorf("%w: id must be a string or a number", ErrInvalidPatient)
}

// KeyFromValue renders an already-decoded patient id as a document key.
// Reserved system keys are rejected.
func KeyFromValue(v interface{}) (string, error) {
	if v == nil {
		return "", nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPatient, err)
	}
	key, err := DocumentKey(raw)
	if err != nil {
		return "", err
	}
	if IsSystemKey(key) {
		return "", fmt.Errorf("%w: id must not start with %q", ErrInvalidPatient, SystemKeyPrefix)
	}
	return key, nil
}
