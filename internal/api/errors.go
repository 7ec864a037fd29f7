package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"stealthcompany.com/patientrecords/internal/dal"
	"stealthcompany.com/patientrecords/internal/metrics"
)

// HTTPError is an error that carries the status code it maps to
type HTTPError struct {
	Status  int
	Message string
	Err     error
}

func (e *HTTPError) Error() string {
	return e.Message
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}

// ValidationError is a missing or malformed request parameter (400)
func ValidationError(message string) *HTTPError {
	return &HTTPError{Status: http.StatusBadRequest, Message: message}
}

// NotFoundError means no document matched the request (404)
func NotFoundError(message string) *HTTPError {
	return &HTTPError{Status: http.StatusNotFound, Message: message}
}

// MethodNotAllowedError rejects a request with the wrong HTTP verb (405)
func MethodNotAllowedError() *HTTPError {
	return &HTTPError{Status: http.StatusMethodNotAllowed, Message: "Method not allowed"}
}

// StoreError wraps a failure of the document store (500). The message is the
// underlying error text.
func StoreError(err error) *HTTPError {
	return &HTTPError{Status: http.StatusInternalServerError, Message: err.Error(), Err: err}
}

// classify maps any error onto an HTTPError
func classify(err error) *HTTPError {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr
	}
	if errors.Is(err, dal.ErrDocumentNotFound) {
		return &HTTPError{Status: http.StatusNotFound, Message: "Patient not found", Err: err}
	}
	if errors.Is(err, dal.ErrInvalidPatient) {
		return &HTTPError{Status: http.StatusBadRequest, Message: err.Error(), Err: err}
	}
	return StoreError(err)
}

func resultFor(status int) string {
	switch status {
	case http.StatusBadRequest:
		return resultInvalid
	case http.StatusNotFound:
		return resultNotFound
	case http.StatusMethodNotAllowed:
		return resultBadMethod
	}
	return resultStoreFailed
}

// writeJSON writes v as the JSON response body
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

// writeError maps err to a status, logs it and writes {"error": message}
func writeError(w http.ResponseWriter, r *http.Request, operation string, err error) {
	httpErr := classify(err)

	event := log.Warn()
	if httpErr.Status >= http.StatusInternalServerError {
		event = log.Error()
	}
	event.
		Err(err).
		Str("operation", operation).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Int("status", httpErr.Status).
		Msg("Request failed")

	metrics.RecordPatientOperation(operation, resultFor(httpErr.Status))
	writeJSON(w, httpErr.Status, ErrorResponse{Error: httpErr.Message})
}
