package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initExportMetrics() {
	r.ExportRowsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "vre_export_rows_total",
			Help: "Metric rows written, by sink and table",
		},
		[]string{"sink", "table"},
	)

	r.ExportErrorsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "vre_export_errors_total",
			Help: "Failed table exports, by sink",
		},
		[]string{"sink"},
	)
}
