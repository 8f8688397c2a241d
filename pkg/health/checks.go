package health

import (
	"fmt"
	"math"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/dd0wney/cluso-vre/pkg/pipeline"
)

// RunCheck reports the pipeline run. It turns unhealthy once the analysis
// failed and degraded when tables were produced but an export failed.
func RunCheck(status func() pipeline.Status) CheckFunc {
	return func() Check {
		s := status()
		check := Check{
			Details: map[string]any{
				"stage":     s.Stage,
				"snapshots": s.Snapshots,
				"completed": s.Completed,
				"finished":  s.Finished,
			},
		}
		if !s.Snapshot.IsZero() {
			check.Details["snapshot"] = s.Snapshot.Format(time.RFC3339)
		}
		if s.Total > 0 {
			check.Details["pairs_done"] = s.Done
			check.Details["pairs_total"] = s.Total
		}

		switch {
		case s.Failed:
			check.Status, check.Message = StatusUnhealthy, s.Err.Error()
		case s.Err != nil:
			check.Status, check.Message = StatusDegraded, s.Err.Error()
		case s.Finished:
			check.Status, check.Message = StatusHealthy, "run finished"
		case s.Stage == "":
			check.Status, check.Message = StatusHealthy, "waiting for dataset"
		default:
			check.Status, check.Message = StatusHealthy, fmt.Sprintf("running %s", s.Stage)
		}
		return check
	}
}

// ResultsCheck passes once the run finished with every table exported.
func ResultsCheck(status func() pipeline.Status) CheckFunc {
	return func() Check {
		s := status()
		if s.Finished && s.Err == nil {
			return Check{Status: StatusHealthy, Message: fmt.Sprintf("%d snapshots written", s.Completed)}
		}
		return Check{Status: StatusUnhealthy, Message: "results not available"}
	}
}

// HeapCheck degrades when the live heap passes 90% of the soft memory limit.
// Exact-mode betweenness on a large graph is the usual cause. Without a
// limit the check only reports the heap size.
func HeapCheck(read func() (heap uint64, limit int64)) CheckFunc {
	return func() Check {
		heap, limit := read()
		check := Check{
			Status:  StatusHealthy,
			Details: map[string]any{"heap_bytes": heap},
		}
		if limit <= 0 || limit == math.MaxInt64 {
			check.Message = "no memory limit set"
			return check
		}
		used := float64(heap) / float64(limit)
		check.Details["limit_bytes"] = limit
		check.Details["limit_used"] = used
		if used > 0.9 {
			check.Status = StatusDegraded
			check.Message = "heap close to memory limit"
		}
		return check
	}
}

// RuntimeHeap reads the live heap and the GOMEMLIMIT soft limit.
func RuntimeHeap() (heap uint64, limit int64) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return m.HeapAlloc, debug.SetMemoryLimit(-1)
}
