package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"stealthcompany.com/patientrecords/internal/dal"
	"stealthcompany.com/patientrecords/internal/metrics"
)

func logRequest(r *http.Request, operation string) {
	log.Info().
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Str("remote_addr", r.RemoteAddr).
		Str("operation", operation).
		Msg("Patient endpoint called")
}

// GetPatientHandler returns a fixed sample patient
func GetPatientHandler(w http.ResponseWriter, r *http.Request) {
	logRequest(r, opGetPatient)
	metrics.RecordPatientOperation(opGetPatient, resultSuccess)
	writeJSON(w, http.StatusOK, samplePatients[0])
}

// ListPatientsHandler returns the fixed sample list
func ListPatientsHandler(w http.ResponseWriter, r *http.Request) {
	logRequest(r, opListPatients)
	metrics.RecordPatientOperation(opListPatients, resultSuccess)
	writeJSON(w, http.StatusOK, samplePatients)
}

// HealthHandler reports that the process is serving
func HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// SeedStatusHandler reports the outcome of the last seed run
func SeedStatusHandler(seedStatus *dal.SeedStatusModel) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, err := seedStatus.Get(r.Context())
		if err != nil {
			if errors.Is(err, dal.ErrDocumentNotFound) {
				writeError(w, r, opSeedStatus, NotFoundError("No seed has run"))
				return
			}
			writeError(w, r, opSeedStatus, StoreError(err))
			return
		}
		writeJSON(w, http.StatusOK, status)
	}
}

// GetPatientWithIDHandler handles GET /getPatientWithID?id=
func GetPatientWithIDHandler(patients *dal.PatientModel) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logRequest(r, opGetPatientByID)

		id := strings.TrimSpace(r.URL.Query().Get("id"))
		if id == "" {
			writeError(w, r, opGetPatientByID, ValidationError(`Missing "id" query parameter`))
			return
		}

		doc, err := patients.GetByID(r.Context(), id)
		if err != nil {
			writeError(w, r, opGetPatientByID, err)
			return
		}

		metrics.RecordPatientOperation(opGetPatientByID, resultSuccess)
		writeJSON(w, http.StatusOK, doc.WithID())
	}
}

// SearchPatientsByNameAndDOBHandler handles GET /searchPatientsByNameAndDOB?name=&dob=
func SearchPatientsByNameAndDOBHandler(patients *dal.PatientModel) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logRequest(r, opSearchNameDOB)

		query := r.URL.Query()
		name := query.Get("name")
		dob := query.Get("dob")
		if dob == "" {
			dob = query.Get("DOB")
		}
		if name == "" || dob == "" {
			writeError(w, r, opSearchNameDOB, ValidationError(`Missing "name" or "dob" query parameters`))
			return
		}

		docs, err := patients.SearchByNameAndDOB(r.Context(), name, dob)
		if err != nil {
			writeError(w, r, opSearchNameDOB, StoreError(err))
			return
		}
		if len(docs) == 0 {
			writeError(w, r, opSearchNameDOB, NotFoundError("No matching patients found"))
			return
		}

		metrics.RecordPatientOperation(opSearchNameDOB, resultSuccess)
		writeJSON(w, http.StatusOK, withIDs(docs))
	}
}

// PartialSearchUsingPatientNameHandler handles GET /partialSearchUsingPatientName?name=
func PartialSearchUsingPatientNameHandler(patients *dal.PatientModel) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logRequest(r, opSearchPrefix)

		name := r.URL.Query().Get("name")
		if name == "" {
			writeError(w, r, opSearchPrefix, ValidationError(`Missing "name" query parameter`))
			return
		}

		docs, err := patients.SearchByNamePrefix(r.Context(), name)
		if err != nil {
			writeError(w, r, opSearchPrefix, StoreError(err))
			return
		}

		metrics.RecordPatientOperation(opSearchPrefix, resultSuccess)
		writeJSON(w, http.StatusOK, withIDs(docs))
	}
}

// AddPatientHandler handles POST /addPatient. Existing documents with the
// same id are overwritten.
func AddPatientHandler(patients *dal.PatientModel) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logRequest(r, opAddPatient)

		if r.Method != http.MethodPost {
			writeError(w, r, opAddPatient, MethodNotAllowedError())
			return
		}

		body, err := readBody(w, r)
		if err != nil {
			writeError(w, r, opAddPatient, err)
			return
		}

		patient, err := dal.ParsePatient(body, patients.Now())
		if err != nil {
			writeError(w, r, opAddPatient, ValidationError(strings.TrimPrefix(err.Error(), dal.ErrInvalidPatient.Error()+": ")))
			return
		}

		if err := patients.Save(r.Context(), patient); err != nil {
			writeError(w, r, opAddPatient, StoreError(err))
			return
		}

		metrics.RecordPatientOperation(opAddPatient, resultSuccess)
		writeJSON(w, http.StatusCreated, MessageResponse{
			Message: "Patient added successfully",
			ID:      patient.ID,
		})
	}
}

// UpdatePatientHandler handles POST /updatePatient. The id comes from the
// query string, falling back to the body.
func UpdatePatientHandler(patients *dal.PatientModel) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logRequest(r, opUpdatePatient)

		if r.Method != http.MethodPost {
			writeError(w, r, opUpdatePatient, MethodNotAllowedError())
			return
		}

		body, err := readBody(w, r)
		if err != nil {
			writeError(w, r, opUpdatePatient, err)
			return
		}

		fields, err := decodeObject(body)
		if err != nil {
			writeError(w, r, opUpdatePatient, err)
			return
		}

		id := strings.TrimSpace(r.URL.Query().Get("id"))
		if id == "" {
			id, err = dal.KeyFromValue(fields["id"])
			if err != nil {
				writeError(w, r, opUpdatePatient, ValidationError(`"id" must be a string or a number`))
				return
			}
		}
		if id == "" {
			writeError(w, r, opUpdatePatient, ValidationError(`Missing "id"`))
			return
		}

		if err := patients.Update(r.Context(), id, fields); err != nil {
			if errors.Is(err, dal.ErrDocumentNotFound) {
				writeError(w, r, opUpdatePatient, NotFoundError("Patient not found"))
				return
			}
			writeError(w, r, opUpdatePatient, StoreError(err))
			return
		}

		metrics.RecordPatientOperation(opUpdatePatient, resultSuccess)
		writeJSON(w, http.StatusOK, MessageResponse{
			Message: "Patient updated successfully",
			ID:      id,
		})
	}
}

func withIDs(docs []dal.Document) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.WithID())
	}
	return out
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, ValidationError(fmt.Sprintf("Failed to read request body: %v", err))
	}
	return body, nil
}

// decodeObject decodes a JSON object body, keeping numbers exact. An empty
// body decodes to an empty object.
func decodeObject(body []byte) (map[string]interface{}, error) {
	fields := map[string]interface{}{}
	if len(bytes.TrimSpace(body)) == 0 {
		return fields, nil
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&fields); err != nil {
		return nil, ValidationError("Invalid JSON format")
	}
	if fields == nil {
		return nil, ValidationError("Invalid JSON format")
	}
	// a second value or trailing text makes the body invalid
	if _, err := dec.Token(); err != io.EOF {
		return nil, ValidationError("Invalid JSON format")
	}
	return fields, nil
}
