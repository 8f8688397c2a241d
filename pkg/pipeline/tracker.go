package pipeline

import (
	"sync"
	"time"
)

// Status is a point-in-time view of a run.
type Status struct {
	Started  time.Time
	Stage    string
	Snapshot time.Time
	// Done and Total count pairs of the latest shortest path pass.
	Done  int
	Total int
	// Snapshots is the number of snapshots to analyse, Completed how many
	// are finished.
	Snapshots int
	Completed int
	Finished  bool
	// Err is the error the run ended with. Failed is false when the run
	// produced results and only an export failed.
	Err    error
	Failed bool
}

// Tracker records the progress of a run for concurrent readers. A nil
// Tracker ignores updates.
type Tracker struct {
	mu sync.RWMutex
	s  Status
}

// NewTracker returns an idle tracker.
func NewTracker() *Tracker { return &Tracker{} }

// Status returns a copy of the current status.
func (t *Tracker) Status() Status {
	if t == nil {
		return Status{}
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.s
}

func (t *Tracker) update(fn func(s *Status)) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(&t.s)
}

func (t *Tracker) start(snapshots int) {
	t.update(func(s *Status) {
		*s = Status{Started: time.Now(), Stage: StageBuild, Snapshots: snapshots}
	})
}

func (t *Tracker) stage(name string, at time.Time) {
	t.update(func(s *Status) {
		s.Stage = name
		s.Snapshot = at
		if name == StageBetweenness {
			s.Done, s.Total = 0, 0
		}
	})
}

func (t *Tracker) progress(done, total int) {
	t.update(func(s *Status) { s.Done, s.Total = done, total })
}

func (t *Tracker) snapshotDone() {
	t.update(func(s *Status) { s.Completed++ })
}

func (t *Tracker) finish(err error, failed bool) {
	t.update(func(s *Status) {
		s.Finished = true
		s.Stage = ""
		s.Err = err
		s.Failed = failed
	})
}
