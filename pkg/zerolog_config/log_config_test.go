package zerolog_config

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, ParseLevel("debug"))
	assert.Equal(t, zerolog.WarnLevel, ParseLevel(" WARN "))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel(""))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("verbose"))
}

func TestStartupWithEnv_RequiresIndex(t *testing.T) {
	assert.Error(t, StartupWithEnv("", "", "info"))
}

func TestNewLogger_ConsoleOnly(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "", "patientrecords-api")

	logger.Info().Str("id", "123").Msg("Patient saved")

	assert.Contains(t, buf.String(), "Patient saved")
	assert.Contains(t, buf.String(), "123")
}

func TestElasticsearchWriter_PostsDocuments(t *testing.T) {
	var gotPath string
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	w := ElasticsearchWriter{URL: server.URL + "/patientrecords-api"}
	n, err := w.Write([]byte(`{"message":"hello"}`))
	require.NoError(t, err)

	assert.Equal(t, len(`{"message":"hello"}`), n)
	assert.Equal(t, "/patientrecords-api/_doc", gotPath)
	assert.JSONEq(t, `{"message":"hello"}`, string(gotBody))
}

func TestElasticsearchWriter_ReportsErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	_, err := ElasticsearchWriter{URL: server.URL}.Write([]byte(`{}`))
	assert.Error(t, err)
}
