package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Memory areas reported by vre_process_memory_bytes.
const (
	MemoryHeapAlloc  = "heap_alloc"
	MemoryHeapInuse  = "heap_inuse"
	MemoryStackInuse = "stack_inuse"
	MemorySys        = "sys"
)

// initSystemMetrics registers the process gauges refreshed on every scrape.
// The registry is private, so the Go collector's series are not exported and
// these cover what a long betweenness pass needs watching.
func (r *Registry) initSystemMetrics() {
	factory := promauto.With(r.registry)

	r.RunElapsedSeconds = factory.NewGauge(prometheus.GaugeOpts{
		Name: "vre_run_elapsed_seconds",
		Help: "Seconds since the pipeline run started",
	})
	r.ProcessMemoryBytes = factory.NewGaugeVec(prometheus.GaugeOpts{
		Name: "vre_process_memory_bytes",
		Help: "Memory held by the process, by runtime area",
	}, []string{"area"})
	r.GCCycles = factory.NewGauge(prometheus.GaugeOpts{
		Name: "vre_gc_cycles",
		Help: "Completed garbage collection cycles",
	})
}
