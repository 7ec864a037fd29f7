package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stealthcompany.com/patientrecords/internal/config"
	"stealthcompany.com/patientrecords/internal/dal"
)

func testConfig() *config.Config {
	return &config.Config{
		StoreDriver:        config.DriverMemory,
		PatientsCollection: "patients",
		SeedChunkSize:      2,
		SeedFetchTimeout:   time.Second,
		ShutdownTimeout:    time.Second,
	}
}

func TestServiceManager_SeedThenServe(t *testing.T) {
	path := filepath.Join(t.TempDir(), "patients.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{"id": 1, "name": "Ahmed", "dob": "1990-01-01"},
		{"id": "2", "name": "Fatima", "dob": "1995-05-05"},
		{"id": 3, "name": "Mariam", "dob": "1985-07-12"}
	]`), 0o600))

	sm := NewServiceManager(testConfig(), dal.NewMemoryStore())

	result, err := sm.RunSeed(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Stored)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sm.Serve(ctx, ln) }()

	resp, err := http.Get(fmt.Sprintf("http://%s/getPatientWithID?id=3", ln.Addr()))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "Mariam", body["name"])
	assert.Equal(t, "3", body["id"])

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestSignalHandler_ParentCancel(t *testing.T) {
	parent, cancelParent := context.WithCancel(context.Background())
	ctx, cancel := NewSignalHandler().HandleSignals(parent)
	defer cancel()

	cancelParent()

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context not cancelled with parent")
	}
}
