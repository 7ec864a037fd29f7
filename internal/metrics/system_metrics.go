package metrics

import (
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// MetricsManager owns the registry every service metric is registered with
// and the switches set by Configure
type MetricsManager struct {
	registry *prometheus.Registry

	businessEnabled atomic.Bool
	systemEnabled   atomic.Bool

	systemOnce sync.Once
}

var (
	instance *MetricsManager
	once     sync.Once
)

// GetInstance returns the singleton instance of MetricsManager
func GetInstance() *MetricsManager {
	once.Do(func() {
		instance = &MetricsManager{
			registry: prometheus.NewRegistry(),
		}
	})
	return instance
}

// Configure switches business (HTTP, store, seed) and system metrics on or off
func Configure(business, system bool) {
	mm := GetInstance()
	mm.businessEnabled.Store(business)
	mm.systemEnabled.Store(system)
}

func businessEnabled() bool {
	return GetInstance().businessEnabled.Load()
}

// Registry returns the registry all service metrics are registered with
func Registry() *prometheus.Registry {
	return GetInstance().registry
}

// Handler serves the service registry in the Prometheus exposition format
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry(), promhttp.HandlerOpts{})
}

// RegisterSystemCollectors adds host, process and Go runtime collectors when
// system metrics are enabled. Values are sampled at scrape time. Only the
// first call registers anything.
func RegisterSystemCollectors() {
	mm := GetInstance()
	if !mm.systemEnabled.Load() {
		return
	}

	mm.systemOnce.Do(func() {
		mm.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			newHostCollector(),
		)
		log.Info().Msg("System metrics enabled")
	})
}

// hostCollector reports host CPU and memory usage read through gopsutil
type hostCollector struct {
	cpuUsage    *prometheus.Desc
	memoryUsage *prometheus.Desc
}

func newHostCollector() *hostCollector {
	return &hostCollector{
		cpuUsage: prometheus.NewDesc(
			"system_cpu_usage_percent",
			"Current CPU usage percentage",
			[]string{"core"}, nil,
		),
		memoryUsage: prometheus.NewDesc(
			"system_memory_usage_bytes",
			"Current memory usage in bytes",
			[]string{"type"}, nil,
		),
	}
}

func (c *hostCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.cpuUsage
	ch <- c.memoryUsage
}

func (c *hostCollector) Collect(ch chan<- prometheus.Metric) {
	if percentages, err := cpu.Percent(0, true); err == nil {
		for i, p := range percentages {
			ch <- prometheus.MustNewConstMetric(c.cpuUsage, prometheus.GaugeValue, p, fmt.Sprintf("cpu%d", i))
		}
	} else {
		log.Debug().Err(err).Msg("Failed to read CPU usage")
	}

	vm, err := mem.VirtualMemory()
	if err != nil {
		log.Debug().Err(err).Msg("Failed to read memory usage")
		return
	}
	for kind, v := range map[string]uint64{
		"total":     vm.Total,
		"available": vm.Available,
		"used":      vm.Used,
		"free":      vm.Free,
	} {
		ch <- prometheus.MustNewConstMetric(c.memoryUsage, prometheus.GaugeValue, float64(v), kind)
	}
}
