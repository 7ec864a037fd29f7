package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.APIPort)
	assert.Equal(t, DriverCouchbase, cfg.StoreDriver)
	assert.Equal(t, "patients", cfg.PatientsCollection)
	assert.Equal(t, "_default", cfg.CouchbaseScope)
	assert.Equal(t, 500, cfg.SeedChunkSize)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 60*time.Second, cfg.SeedFetchTimeout)
	assert.Empty(t, cfg.SeedSource)
	assert.False(t, cfg.EnableBusinessMetrics)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("API_PORT", "9090")
	t.Setenv("STORE_DRIVER", " Memory ")
	t.Setenv("SEED_CHUNK_SIZE", "50")
	t.Setenv("SHUTDOWN_TIMEOUT", "5s")
	t.Setenv("ENABLE_BUSINESS_METRICS", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.APIPort)
	assert.Equal(t, DriverMemory, cfg.StoreDriver)
	assert.Equal(t, 50, cfg.SeedChunkSize)
	assert.Equal(t, 5*time.Second, cfg.ShutdownTimeout)
	assert.True(t, cfg.EnableBusinessMetrics)
}

func TestLoad_RejectsUnknownDriver(t *testing.T) {
	t.Setenv("STORE_DRIVER", "firestore")

	_, err := Load()
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	valid := Config{
		StoreDriver:        DriverMemory,
		PatientsCollection: "patients",
		SeedChunkSize:      500,
		ShutdownTimeout:    time.Second,
		SeedFetchTimeout:   time.Second,
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}, wantErr: false},
		{name: "empty collection", mutate: func(c *Config) { c.PatientsCollection = "" }, wantErr: true},
		{name: "zero chunk size", mutate: func(c *Config) { c.SeedChunkSize = 0 }, wantErr: true},
		{name: "zero shutdown timeout", mutate: func(c *Config) { c.ShutdownTimeout = 0 }, wantErr: true},
		{name: "zero fetch timeout", mutate: func(c *Config) { c.SeedFetchTimeout = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
