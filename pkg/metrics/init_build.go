package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initBuildMetrics() {
	r.BuildNodesTotal = promauto.With(r.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vre_build_nodes",
			Help: "Nodes registered by the last graph build, by node type",
		},
		[]string{"node_type"},
	)

	r.BuildEdgesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "vre_build_edges_created_total",
			Help: "Edges created while building contact graphs, by edge type",
		},
		[]string{"edge_type"},
	)

	r.BuildEdgesSkipped = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "vre_build_edges_skipped_total",
			Help: "Candidate edges not created, by edge type and reason",
		},
		[]string{"edge_type", "reason"},
	)

	r.BuildWarningsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "vre_build_warnings_total",
			Help: "Input records skipped during the build, by reason",
		},
		[]string{"reason"},
	)

	r.BuildRoomsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "vre_build_rooms_total",
			Help: "Rooms seen while processing stays, by whether the stay named a room",
		},
		[]string{"has_id"},
	)

	r.BuildAppointmentsTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "vre_build_appointments_total",
			Help: "Appointments processed while building contact graphs",
		},
	)
}
