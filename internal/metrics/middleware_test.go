package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsMiddleware_LabelsByRouteTemplate(t *testing.T) {
	Configure(true, false)
	defer Configure(false, false)

	router := mux.NewRouter()
	router.Use(MetricsMiddleware)
	router.HandleFunc("/getPatient", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}).Methods("GET")

	before := 0.0
	if HTTPRequestsTotal != nil {
		before = testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/getPatient", "404"))
	}

	req := httptest.NewRequest(http.MethodGet, "/getPatient?id=123", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	require.NotNil(t, HTTPRequestsTotal)
	assert.Equal(t, before+1, testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/getPatient", "404")))
}

func TestResponseWriter_DefaultsToOK(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec, statusCode: http.StatusOK}

	_, err := rw.Write([]byte("ok"))
	require.NoError(t, err)
	rw.WriteHeader(http.StatusTeapot)

	assert.Equal(t, http.StatusOK, rw.statusCode)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRecorders_NoopWhenDisabled(t *testing.T) {
	Configure(false, false)

	assert.NotPanics(t, func() {
		RecordHTTPRequest("GET", "/health", http.StatusOK, time.Millisecond)
		RecordPatientOperation("getPatient", "success")
		RecordStoreOperation("memory", "get", time.Now(), nil)
		RecordSeedRun("file", time.Now(), 1, 0, nil)
	})
}

func TestHandler_ExposesStoreMetrics(t *testing.T) {
	Configure(true, false)
	defer Configure(false, false)

	RecordStoreOperation("memory", "query", time.Now(), nil)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "store_operations_total"))
}

func TestRegisterSystemCollectors(t *testing.T) {
	Configure(false, true)
	defer Configure(false, false)

	RegisterSystemCollectors()
	RegisterSystemCollectors()

	families, err := Registry().Gather()
	require.NoError(t, err)

	names := map[string]bool{}
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	assert.True(t, names["go_goroutines"])
	assert.True(t, names["system_memory_usage_bytes"])
}
