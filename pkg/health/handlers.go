package health

import (
	"encoding/json"
	"net/http"
)

// Handler serves probe p as JSON. Liveness answers 503 only when a check is
// unhealthy; readiness answers 200 only when every check is healthy.
func (m *Monitor) Handler(p Probe) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		report := m.Evaluate(p)

		code := http.StatusOK
		switch {
		case report.Status == StatusUnhealthy:
			code = http.StatusServiceUnavailable
		case p == Readiness && report.Status != StatusHealthy:
			code = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(report)
	})
}

// Register mounts /healthz and /readyz on mux.
func (m *Monitor) Register(mux *http.ServeMux) {
	mux.Handle("/healthz", m.Handler(Liveness))
	mux.Handle("/readyz", m.Handler(Readiness))
}
