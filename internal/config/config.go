package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const (
	DriverCouchbase = "couchbase"
	DriverMongo     = "mongo"
	DriverMemory    = "memory"
)

// Config holds the process configuration read from the environment
type Config struct {
	APIPort          string        `mapstructure:"API_PORT"`
	LogLevel         string        `mapstructure:"LOG_LEVEL"`
	ElasticsearchURL string        `mapstructure:"ELASTICSEARCH_URL"`
	StoreDriver      string        `mapstructure:"STORE_DRIVER"`
	ShutdownTimeout  time.Duration `mapstructure:"SHUTDOWN_TIMEOUT"`

	CouchbaseURL      string `mapstructure:"COUCHBASE_URL"`
	CouchbaseUsername string `mapstructure:"COUCHBASE_USERNAME"`
	CouchbasePassword string `mapstructure:"COUCHBASE_PASSWORD"`
	CouchbaseBucket   string `mapstructure:"COUCHBASE_BUCKET"`
	CouchbaseScope    string `mapstructure:"COUCHBASE_SCOPE"`

	MongoURI      string `mapstructure:"MONGO_URI"`
	MongoDatabase string `mapstructure:"MONGO_DATABASE"`

	PatientsCollection string        `mapstructure:"PATIENTS_COLLECTION"`
	SeedSource         string        `mapstructure:"SEED_SOURCE"`
	SeedChunkSize      int           `mapstructure:"SEED_CHUNK_SIZE"`
	SeedFetchTimeout   time.Duration `mapstructure:"SEED_FETCH_TIMEOUT"`

	EnableBusinessMetrics bool `mapstructure:"ENABLE_BUSINESS_METRICS"`
	EnableSystemMetrics   bool `mapstructure:"ENABLE_SYSTEM_METRICS"`
}

var defaults = map[string]interface{}{
	"API_PORT":                "8080",
	"LOG_LEVEL":               "info",
	"ELASTICSEARCH_URL":       "",
	"STORE_DRIVER":            DriverCouchbase,
	"SHUTDOWN_TIMEOUT":        "30s",
	"COUCHBASE_URL":           "couchbase://patientrecords-db",
	"COUCHBASE_USERNAME":      "patientrecords_user",
	"COUCHBASE_PASSWORD":      "password",
	"COUCHBASE_BUCKET":        "patientrecords",
	"COUCHBASE_SCOPE":         "_default",
	"MONGO_URI":               "mongodb://localhost:27017",
	"MONGO_DATABASE":          "patientrecords",
	"PATIENTS_COLLECTION":     "patients",
	"SEED_SOURCE":             "",
	"SEED_CHUNK_SIZE":         500,
	"SEED_FETCH_TIMEOUT":      "60s",
	"ENABLE_BUSINESS_METRICS": false,
	"ENABLE_SYSTEM_METRICS":   false,
}

// LoadDotEnv loads a .env file from the parent directory, falling back to the
// current directory. Missing files are not an error.
func LoadDotEnv() {
	err := godotenv.Load("../.env")
	if err != nil {
		log.Info().Msg("Not found .env file in parent directory, trying current directory")
		err = godotenv.Load(".env")
		if err != nil {
			log.Info().Msg("Not found .env file in current directory, assuming environment variables are set")
		}
	}
}

// Load reads the configuration from environment variables
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
		// Bind explicitly so Unmarshal picks up environment overrides
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration can be used to start a process
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case DriverCouchbase, DriverMongo, DriverMemory:
	default:
		return fmt.Errorf("STORE_DRIVER must be %q, %q or %q, got %q", DriverCouchbase, DriverMongo, DriverMemory, c.StoreDriver)
	}

	if c.PatientsCollection == "" {
		return fmt.Errorf("PATIENTS_COLLECTION must not be empty")
	}
	if c.SeedChunkSize <= 0 {
		return fmt.Errorf("SEED_CHUNK_SIZE must be positive, got %d", c.SeedChunkSize)
	}
	if c.SeedFetchTimeout <= 0 {
		return fmt.Errorf("SEED_FETCH_TIMEOUT must be positive, got %s", c.SeedFetchTimeout)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("SHUTDOWN_TIMEOUT must be positive, got %s", c.ShutdownTimeout)
	}

	return nil
}
