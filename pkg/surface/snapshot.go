package surface

import (
	"fmt"
	"sort"
	"time"

	"github.com/dd0wney/cluso-vre/pkg/logging"
)

// Trim returns a copy of the graph holding only edges that ended at or
// before asOf. Nodes are kept even when they lose all their edges.
func (g *Graph) Trim(asOf time.Time) (*Graph, error) {
	if err := g.Begin(OpTrim); err != nil {
		return nil, err
	}
	if asOf.After(g.snapshotAt) {
		return nil, fmt.Errorf("trim to %s: graph built at %s: %w",
			asOf.Format(time.RFC3339), g.snapshotAt.Format(time.RFC3339), ErrSnapshotInFuture)
	}

	c := g.Clone()
	before := c.EdgeCount()
	c.compact(
		func(int) bool { return true },
		func(e *Edge) bool { return !e.To.After(asOf) },
	)
	c.snapshotAt = asOf
	c.Complete(OpTrim)
	g.logger.Debug("graph trimmed",
		logging.Snapshot(asOf),
		logging.Int("edges_before", before),
		logging.Int("edges_after", c.EdgeCount()))
	return c, nil
}

// CreateModelSnapshots trims the graph at each timestamp, prunes nodes left
// without edges, and returns the snapshots in chronological order with the untrimmed graph last. Every
// timestamp must be at or before the graph's snapshot time.
func (g *Graph) CreateModelSnapshots(timestamps []time.Time) ([]*Graph, error) {
	if err := g.Begin(OpCreateSnapshots); err != nil {
		return nil, err
	}
	ordered := append([]time.Time(nil), timestamps...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Before(ordered[j]) })
	for _, ts := range ordered {
		if ts.After(g.snapshotAt) {
			return nil, fmt.Errorf("snapshot at %s: graph built at %s: %w",
				ts.Format(time.RFC3339), g.snapshotAt.Format(time.RFC3339), ErrSnapshotInFuture)
		}
	}

	snapshots := make([]*Graph, 0, len(ordered)+1)
	for _, ts := range ordered {
		s, err := g.Trim(ts)
		if err != nil {
			return nil, err
		}
		s.RemoveIsolatedNodes()
		snapshots = append(snapshots, s)
	}
	snapshots = append(snapshots, g)
	g.logger.Info("model snapshots created", logging.Count(len(snapshots)))
	return snapshots, nil
}
