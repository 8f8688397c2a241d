package metrics

import (
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RecordNodes sets the node gauge for one node type
func (r *Registry) RecordNodes(nodeType string, n int) {
	if r == nil {
		return
	}
	r.BuildNodesTotal.WithLabelValues(nodeType).Set(float64(n))
}

// RecordEdgeCreated counts one created edge
func (r *Registry) RecordEdgeCreated(edgeType string) {
	if r == nil {
		return
	}
	r.BuildEdgesTotal.WithLabelValues(edgeType).Inc()
}

// RecordEdgeSkipped counts one candidate edge that was not created
func (r *Registry) RecordEdgeSkipped(edgeType, reason string) {
	if r == nil {
		return
	}
	r.BuildEdgesSkipped.WithLabelValues(edgeType, reason).Inc()
}

// RecordWarning counts skipped input records
func (r *Registry) RecordWarning(reason string, n int) {
	if r == nil || n == 0 {
		return
	}
	r.BuildWarningsTotal.WithLabelValues(reason).Add(float64(n))
}

// RecordRoom counts a stay's room resolution
func (r *Registry) RecordRoom(hasID bool) {
	if r == nil {
		return
	}
	label := "false"
	if hasID {
		label = "true"
	}
	r.BuildRoomsTotal.WithLabelValues(label).Inc()
}

// RecordAppointment counts a processed appointment
func (r *Registry) RecordAppointment() {
	if r == nil {
		return
	}
	r.BuildAppointmentsTotal.Inc()
}

// RecordAnnotation adds the label counts of one annotation pass
func (r *Registry) RecordAnnotation(infected, clean, failed int) {
	if r == nil {
		return
	}
	r.AnnotatedEdgesTotal.WithLabelValues("infected").Add(float64(infected))
	r.AnnotatedEdgesTotal.WithLabelValues("clean").Add(float64(clean))
	r.AnnotatedEdgesTotal.WithLabelValues("failed").Add(float64(failed))
}

// RecordPairs counts n visited node pairs. Outcome is one of "counted",
// "disconnected" or "too_long".
func (r *Registry) RecordPairs(outcome string, n int) {
	if r == nil || n == 0 {
		return
	}
	r.PathPairsTotal.WithLabelValues(outcome).Add(float64(n))
}

// RecordAccumulatorWrite records one per-node statistic update
func (r *Registry) RecordAccumulatorWrite(backend string, err error, duration time.Duration) {
	if r == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	r.PathAccumulatorWrites.WithLabelValues(backend, status).Inc()
	r.PathAccumulatorLatency.Observe(duration.Seconds())
}

// ObserveStage records how long a pipeline stage took
func (r *Registry) ObserveStage(stage string, duration time.Duration) {
	if r == nil {
		return
	}
	r.StageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordGraph sets the size gauges of an analysed snapshot
func (r *Registry) RecordGraph(snapshot string, nodes, edges int) {
	if r == nil {
		return
	}
	r.GraphNodes.WithLabelValues(snapshot).Set(float64(nodes))
	r.GraphEdges.WithLabelValues(snapshot).Set(float64(edges))
}

// RecordExport records the outcome of writing one table to one sink
func (r *Registry) RecordExport(sink, table string, rows int, err error) {
	if r == nil {
		return
	}
	if err != nil {
		r.ExportErrorsTotal.WithLabelValues(sink).Inc()
		return
	}
	r.ExportRowsTotal.WithLabelValues(sink, table).Add(float64(rows))
}

// UpdateSystemMetrics refreshes the process gauges for a run that began at
// startTime.
func (r *Registry) UpdateSystemMetrics(startTime time.Time) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	r.RunElapsedSeconds.Set(time.Since(startTime).Seconds())
	for area, v := range map[string]uint64{
		MemoryHeapAlloc:  m.HeapAlloc,
		MemoryHeapInuse:  m.HeapInuse,
		MemoryStackInuse: m.StackInuse,
		MemorySys:        m.Sys,
	} {
		r.ProcessMemoryBytes.WithLabelValues(area).Set(float64(v))
	}
	r.GCCycles.Set(float64(m.NumGC))
}

// Handler serves the registry in the Prometheus exposition format
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
