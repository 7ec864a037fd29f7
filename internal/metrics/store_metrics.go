package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Document store metrics
	StoreOperationsTotal   *prometheus.CounterVec
	StoreOperationDuration *prometheus.HistogramVec

	// Seed metrics
	SeedRecordsTotal      *prometheus.CounterVec
	SeedDuration          *prometheus.HistogramVec
	SeedChunksTotal       *prometheus.CounterVec
	SourceRequestsTotal   *prometheus.CounterVec
	SourceRequestDuration *prometheus.HistogramVec

	storeMetricsOnce sync.Once
)

func initializeStoreMetrics() {
	storeMetricsOnce.Do(func() {
		StoreOperationsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "store_operations_total",
				Help: "Total number of document store operations",
			},
			[]string{"backend", "operation", "status"},
		)

		StoreOperationDuration = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "store_operation_duration_seconds",
				Help:    "Duration of document store operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"backend", "operation"},
		)

		SeedRecordsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "seed_records_total",
				Help: "Total number of patient records processed by the seeder",
			},
			[]string{"source", "status"}, // "stored", "failed"
		)

		SeedDuration = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "seed_duration_seconds",
				Help:    "Duration of seed runs in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
			},
			[]string{"source", "status"},
		)

		SeedChunksTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "seed_chunks_total",
				Help: "Total number of chunks committed by the seeder",
			},
			[]string{"status"},
		)

		SourceRequestsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "seed_source_requests_total",
				Help: "Total number of remote seed source requests",
			},
			[]string{"status_code"},
		)

		SourceRequestDuration = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "seed_source_request_duration_seconds",
				Help:    "Duration of remote seed source requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"status_code"},
		)

		GetInstance().registry.MustRegister(
			StoreOperationsTotal,
			StoreOperationDuration,
			SeedRecordsTotal,
			SeedDuration,
			SeedChunksTotal,
			SourceRequestsTotal,
			SourceRequestDuration,
		)
	})
}

// StatusFor maps an operation error to a metric status label
func StatusFor(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RecordStoreOperation records a document store operation
func RecordStoreOperation(backend, operation string, start time.Time, err error) {
	if !businessEnabled() {
		return
	}
	initializeStoreMetrics()

	StoreOperationsTotal.WithLabelValues(backend, operation, StatusFor(err)).Inc()
	StoreOperationDuration.WithLabelValues(backend, operation).Observe(time.Since(start).Seconds())
}

// RecordSeedChunk records a committed or failed seed chunk
func RecordSeedChunk(err error) {
	if !businessEnabled() {
		return
	}
	initializeStoreMetrics()

	SeedChunksTotal.WithLabelValues(StatusFor(err)).Inc()
}

// RecordSeedRun records the outcome of a seed run
func RecordSeedRun(source string, start time.Time, stored, failed int, err error) {
	if !businessEnabled() {
		return
	}
	initializeStoreMetrics()

	SeedRecordsTotal.WithLabelValues(source, "stored").Add(float64(stored))
	SeedRecordsTotal.WithLabelValues(source, "failed").Add(float64(failed))
	SeedDuration.WithLabelValues(source, StatusFor(err)).Observe(time.Since(start).Seconds())
}

// RecordSourceRequest records a remote seed source fetch
func RecordSourceRequest(statusCode int, start time.Time) {
	if !businessEnabled() {
		return
	}
	initializeStoreMetrics()

	code := strconv.Itoa(statusCode)
	SourceRequestsTotal.WithLabelValues(code).Inc()
	SourceRequestDuration.WithLabelValues(code).Observe(time.Since(start).Seconds())
}
