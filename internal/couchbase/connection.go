package couchbase

import (
	"fmt"
	"strings"
	"time"

	"github.com/couchbase/gocb/v2"
	"github.com/rs/zerolog/log"
)

// Options identifies the cluster, credentials and keyspace to connect to
type Options struct {
	URL      string
	Username string
	Password string
	Bucket   string
	Scope    string
}

// ConnectionManager handles Couchbase cluster and bucket connections
type ConnectionManager struct {
	cluster    *gocb.Cluster
	bucket     *gocb.Bucket
	bucketName string
	scopeName  string
}

// ConnectionString normalizes a configured URL into a gocb connection string.
// Bare hosts and http:// URLs are rewritten to the couchbase:// scheme.
func ConnectionString(url string) string {
	switch {
	case strings.HasPrefix(url, "couchbase://"), strings.HasPrefix(url, "couchbases://"):
		return url
	case strings.HasPrefix(url, "http://"):
		return "couchbase://" + strings.TrimPrefix(url, "http://")
	default:
		return "couchbase://" + url
	}
}

// NewConnectionManager connects to the cluster and waits until the key-value
// and query services of the bucket are ready
func NewConnectionManager(opts Options) (*ConnectionManager, error) {
	connectionString := ConnectionString(opts.URL)
	scope := opts.Scope
	if scope == "" {
		scope = "_default"
	}

	log.Info().
		Str("url", connectionString).
		Str("bucket", opts.Bucket).
		Str("scope", scope).
		Msg("Creating Couchbase connection")

	cluster, err := gocb.Connect(connectionString, gocb.ClusterOptions{
		Authenticator: gocb.PasswordAuthenticator{
			Username: opts.Username,
			Password: opts.Password,
		},
		TimeoutsConfig: gocb.TimeoutsConfig{
			KVTimeout:    5 * time.Second,
			QueryTimeout: 30 * time.Second,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to cluster: %w", err)
	}

	bucket := cluster.Bucket(opts.Bucket)
	err = bucket.WaitUntilReady(30*time.Second, &gocb.WaitUntilReadyOptions{
		ServiceTypes: []gocb.ServiceType{gocb.ServiceTypeKeyValue, gocb.ServiceTypeQuery},
	})
	if err != nil {
		_ = cluster.Close(nil)
		return nil, fmt.Errorf("bucket %q is not accessible: %w", opts.Bucket, err)
	}

	log.Info().Msg("Couchbase connection created successfully")
	return &ConnectionManager{
		cluster:    cluster,
		bucket:     bucket,
		bucketName: opts.Bucket,
		scopeName:  scope,
	}, nil
}

// Close closes the Couchbase connection
func (cm *ConnectionManager) Close() error {
	if cm.cluster == nil {
		return nil
	}
	return cm.cluster.Close(nil)
}

// Collection returns a collection handle within the configured scope
func (cm *ConnectionManager) Collection(name string) *gocb.Collection {
	return cm.bucket.Scope(cm.scopeName).Collection(name)
}

// Keyspace returns the escaped bucket.scope.collection path for SQL++
func (cm *ConnectionManager) Keyspace(collection string) (string, error) {
	return Keyspace(cm.bucketName, cm.scopeName, collection)
}

// GetCluster returns the cluster instance
func (cm *ConnectionManager) GetCluster() *gocb.Cluster {
	return cm.cluster
}

// GetBucket returns the bucket instance
func (cm *ConnectionManager) GetBucket() *gocb.Bucket {
	return cm.bucket
}
