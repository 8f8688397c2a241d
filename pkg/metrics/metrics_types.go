package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds all metrics of a pipeline run. A nil *Registry is valid and
// records nothing, so components can take one optionally.
type Registry struct {
	// Build metrics
	BuildNodesTotal        *prometheus.GaugeVec
	BuildEdgesTotal        *prometheus.CounterVec
	BuildEdgesSkipped      *prometheus.CounterVec
	BuildWarningsTotal     *prometheus.CounterVec
	BuildRoomsTotal        *prometheus.CounterVec
	BuildAppointmentsTotal prometheus.Counter

	// Analysis metrics
	AnnotatedEdgesTotal    *prometheus.CounterVec
	PathPairsTotal         *prometheus.CounterVec
	PathAccumulatorWrites  *prometheus.CounterVec
	PathAccumulatorLatency prometheus.Histogram
	StageDuration          *prometheus.HistogramVec
	GraphNodes             *prometheus.GaugeVec
	GraphEdges             *prometheus.GaugeVec

	// Export metrics
	ExportRowsTotal   *prometheus.CounterVec
	ExportErrorsTotal *prometheus.CounterVec

	// System metrics
	RunElapsedSeconds  prometheus.Gauge
	ProcessMemoryBytes *prometheus.GaugeVec
	GCCycles           prometheus.Gauge

	registry *prometheus.Registry
	mu       sync.RWMutex
}

var (
	defaultRegistry *Registry
	once            sync.Once
)

// DefaultRegistry returns the process-wide metrics registry
func DefaultRegistry() *Registry {
	once.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// NewRegistry creates a new metrics registry with all metrics initialized
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),
	}

	r.initBuildMetrics()
	r.initAnalysisMetrics()
	r.initExportMetrics()
	r.initSystemMetrics()

	return r
}

// GetPrometheusRegistry returns the underlying Prometheus registry
func (r *Registry) GetPrometheusRegistry() *prometheus.Registry {
	return r.registry
}
