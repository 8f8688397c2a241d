package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initAnalysisMetrics() {
	r.AnnotatedEdgesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "vre_annotated_edges_total",
			Help: "Edges labelled by infection annotation, by label",
		},
		[]string{"label"},
	)

	r.PathPairsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "vre_path_pairs_total",
			Help: "Node pairs visited by the shortest path pass, by outcome",
		},
		[]string{"outcome"},
	)

	r.PathAccumulatorWrites = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "vre_path_accumulator_writes_total",
			Help: "Per-node path statistic updates, by backend and status",
		},
		[]string{"backend", "status"},
	)

	r.PathAccumulatorLatency = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vre_path_accumulator_write_seconds",
			Help:    "Latency of a single durable path statistic update",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		},
	)

	r.StageDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vre_stage_duration_seconds",
			Help:    "Duration of pipeline stages",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
		},
		[]string{"stage"},
	)

	r.GraphNodes = promauto.With(r.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vre_graph_nodes",
			Help: "Nodes in the analysed graph, by snapshot",
		},
		[]string{"snapshot"},
	)

	r.GraphEdges = promauto.With(r.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vre_graph_edges",
			Help: "Edges in the analysed graph, by snapshot",
		},
		[]string{"snapshot"},
	)
}
