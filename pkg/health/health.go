// Package health answers liveness and readiness probes for an analysis run.
package health

import (
	"sort"
	"sync"
	"time"
)

// Status represents the outcome of a check.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

var severity = map[Status]int{StatusHealthy: 0, StatusDegraded: 1, StatusUnhealthy: 2}

func worse(a, b Status) Status {
	if severity[b] > severity[a] {
		return b
	}
	return a
}

// Probe selects the set of checks a request evaluates.
type Probe int

const (
	// Liveness fails only when the run itself failed.
	Liveness Probe = iota
	// Readiness passes once the results are available.
	Readiness
)

func (p Probe) String() string {
	if p == Readiness {
		return "readiness"
	}
	return "liveness"
}

// Check is the outcome of one registered check.
type Check struct {
	Name    string         `json:"name"`
	Status  Status         `json:"status"`
	Message string         `json:"message,omitempty"`
	Details map[string]any `json:"details,omitempty"`
	TookMS  float64        `json:"took_ms"`
}

// CheckFunc performs one check.
type CheckFunc func() Check

// Report is the body of a probe response. Checks are ordered by name.
type Report struct {
	Probe   string    `json:"probe"`
	Status  Status    `json:"status"`
	At      time.Time `json:"at"`
	Elapsed float64   `json:"elapsed_seconds"`
	Checks  []Check   `json:"checks"`
}

// Monitor evaluates the checks registered for each probe.
type Monitor struct {
	mu      sync.RWMutex
	checks  map[Probe]map[string]CheckFunc
	started time.Time
	now     func() time.Time
}

// NewMonitor creates a monitor for a run that began at started.
func NewMonitor(started time.Time) *Monitor {
	return &Monitor{
		checks: map[Probe]map[string]CheckFunc{
			Liveness:  {},
			Readiness: {},
		},
		started: started,
		now:     time.Now,
	}
}

// Add registers fn under name for probe p, replacing an earlier check of
// the same name.
func (m *Monitor) Add(p Probe, name string, fn CheckFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checks[p][name] = fn
}

// Evaluate runs every check of probe p. The report status is the worst
// check status; a probe without checks is healthy.
func (m *Monitor) Evaluate(p Probe) Report {
	m.mu.RLock()
	names := make([]string, 0, len(m.checks[p]))
	fns := make(map[string]CheckFunc, len(m.checks[p]))
	for name, fn := range m.checks[p] {
		names = append(names, name)
		fns[name] = fn
	}
	m.mu.RUnlock()
	sort.Strings(names)

	at := m.now()
	report := Report{
		Probe:   p.String(),
		Status:  StatusHealthy,
		At:      at,
		Elapsed: at.Sub(m.started).Seconds(),
		Checks:  make([]Check, 0, len(names)),
	}
	for _, name := range names {
		start := time.Now()
		check := fns[name]()
		check.Name = name
		check.TookMS = float64(time.Since(start).Microseconds()) / 1000
		report.Status = worse(report.Status, check.Status)
		report.Checks = append(report.Checks, check)
	}
	return report
}
