package algorithms

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dd0wney/cluso-vre/pkg/logging"
	"github.com/dd0wney/cluso-vre/pkg/metrics"
	"github.com/dd0wney/cluso-vre/pkg/parallel"
	"github.com/dd0wney/cluso-vre/pkg/surface"
)

// DefaultProgressEvery is how many node pairs pass between progress reports.
const DefaultProgressEvery = 100

const (
	pairCounted      = "counted"
	pairDisconnected = "disconnected"
	pairTooLong      = "too_long"
)

// PathStatsOptions configures UpdateShortestPathStatistics.
type PathStatsOptions struct {
	// FocusNodes restricts the pair enumeration. Empty means every node.
	FocusNodes []string

	// Approximate keeps statistics in memory and, with MaxPathLength > 0,
	// skips pairs whose shortest path has more than MaxPathLength nodes.
	// Exact mode writes every statistic to the graph's node store.
	Approximate   bool
	MaxPathLength int

	// Workers is the number of source nodes processed concurrently.
	// Statistics are always written by a single goroutine.
	Workers int

	ProgressEvery int
	Progress      func(done, total int)

	Logger  logging.Logger
	Metrics *metrics.Registry
}

// PathStatsReport summarizes one statistics pass.
type PathStatsReport struct {
	Mode         string
	Focus        int
	Pairs        int
	Counted      int
	Disconnected int
	TooLong      int
	Writes       int
	Duration     time.Duration
}

// PairKey names the statistic a node holds for the pair (u, v). The ids are
// sorted so both orientations share a key.
func PairKey(u, v string) string {
	if v < u {
		u, v = v, u
	}
	return "SP-" + u + "-" + v
}

type pairEntry struct {
	node int
	key  string
	stat surface.PairStat
}

// sourceBatch carries every pair whose first focus node is one source.
type sourceBatch struct {
	pairs, counted, disconnected, tooLong int
	entries                               []pairEntry
}

// backendNamer is implemented by node stores that label their metrics.
type backendNamer interface {
	Backend() string
}

// UpdateShortestPathStatistics enumerates every unordered pair of focus nodes
// and records, for each node lying strictly inside a shortest path of the
// pair, how many of the pair's shortest paths pass through it.
//
// Exact mode requires the graph's node files to have been written; without
// them a precondition error is returned before any state changes.
func UpdateShortestPathStatistics(ctx context.Context, g *surface.Graph, opts PathStatsOptions) (*PathStatsReport, error) {
	logger := logging.OrNop(opts.Logger).With(logging.Component("betweenness"))

	op := surface.OpPathStatsExact
	mode := "exact"
	if opts.Approximate {
		op = surface.OpPathStatsApproximate
		mode = "approximate"
	}
	if err := g.Begin(op); err != nil {
		return nil, err
	}

	var put func(pairEntry) error
	if opts.Approximate {
		put = func(e pairEntry) error {
			g.SetPairStat(e.node, e.key, e.stat)
			return nil
		}
	} else {
		store := g.Store()
		if store == nil {
			return nil, &surface.PreconditionError{Op: op.Name, Required: surface.PhaseNodeFilesWritten, Current: g.Phases()}
		}
		backend := "store"
		if named, ok := store.(backendNamer); ok {
			backend = named.Backend()
		}
		put = func(e pairEntry) error {
			start := time.Now()
			err := store.PutStat(g.NodeAt(e.node).ID, e.key, e.stat)
			opts.Metrics.RecordAccumulatorWrite(backend, err, time.Since(start))
			if err != nil {
				return fmt.Errorf("record %s: %w", e.key, err)
			}
			return nil
		}
	}

	focus, err := focusIndices(g, opts.FocusNodes)
	if err != nil {
		return nil, err
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}
	every := opts.ProgressEvery
	if every <= 0 {
		every = DefaultProgressEvery
	}

	report := &PathStatsReport{Mode: mode, Focus: len(focus)}
	total := len(focus) * (len(focus) - 1) / 2
	logger.Info("updating shortest path statistics",
		logging.String("mode", mode),
		logging.Int("focus_nodes", len(focus)),
		logging.Int("pairs", total),
		logging.Int("max_path_length", opts.MaxPathLength),
		logging.Int("workers", workers))

	start := time.Now()
	neighbors := adjacencyLists(g)
	batches := make(chan sourceBatch, workers)
	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		defer close(batches)
		return parallel.ForEach(egCtx, workers, len(focus), func(ctx context.Context, i int) error {
			b := accumulateSource(g, neighbors, focus, i, opts)
			select {
			case batches <- b:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}, parallel.WithLogger(logger))
	})

	eg.Go(func() error {
		for b := range batches {
			if err := egCtx.Err(); err != nil {
				return err
			}
			for _, e := range b.entries {
				if err := put(e); err != nil {
					return err
				}
				report.Writes++
			}

			before := report.Pairs
			report.Pairs += b.pairs
			report.Counted += b.counted
			report.Disconnected += b.disconnected
			report.TooLong += b.tooLong
			opts.Metrics.RecordPairs(pairCounted, b.counted)
			opts.Metrics.RecordPairs(pairDisconnected, b.disconnected)
			opts.Metrics.RecordPairs(pairTooLong, b.tooLong)

			if report.Pairs/every > before/every {
				logger.Info("shortest path progress", logging.Progress(report.Pairs, total))
			}
			if opts.Progress != nil {
				opts.Progress(report.Pairs, total)
			}
		}
		return nil
	})

	err = eg.Wait()
	report.Duration = time.Since(start)
	opts.Metrics.ObserveStage("path_statistics", report.Duration)
	if err != nil {
		logger.Error("shortest path statistics aborted",
			logging.Error(err),
			logging.Progress(report.Pairs, total))
		return report, err
	}

	g.Complete(op)
	logger.Info("shortest path statistics updated",
		logging.Int("pairs", report.Pairs),
		logging.Int("counted", report.Counted),
		logging.Int("disconnected", report.Disconnected),
		logging.Int("too_long", report.TooLong),
		logging.Int("writes", report.Writes),
		logging.Latency(report.Duration))
	return report, nil
}

// accumulateSource handles every pair (focus[i], focus[j]) with j > i using a
// single breadth-first search from focus[i]. For a target v the number of
// shortest paths through w is sigma(w) times the number of shortest w-v
// paths, which is gathered by walking the predecessor DAG back from v one
// distance level at a time.
func accumulateSource(g *surface.Graph, neighbors [][]int, focus []int, i int, opts PathStatsOptions) sourceBatch {
	u := focus[i]
	tree := newPathTree(g, neighbors, u)
	uid := g.NodeAt(u).ID

	back := make([]float64, g.NodeCount())
	var b sourceBatch
	for _, v := range focus[i+1:] {
		b.pairs++
		d := tree.dist[v]
		if d < 0 {
			b.disconnected++
			continue
		}
		if opts.Approximate && opts.MaxPathLength > 0 && d+1 > opts.MaxPathLength {
			b.tooLong++
			continue
		}
		b.counted++

		key := PairKey(uid, g.NodeAt(v).ID)
		total := tree.sigma[v]
		back[v] = 1
		touched := []int{v}
		frontier := []int{v}
		for level := d; level > 1; level-- {
			var next []int
			for _, w := range frontier {
				for _, p := range tree.preds[w] {
					if back[p] == 0 {
						next = append(next, p)
						touched = append(touched, p)
					}
					back[p] += back[w]
				}
			}
			for _, w := range next {
				b.entries = append(b.entries, pairEntry{
					node: w,
					key:  key,
					stat: surface.PairStat{Through: tree.sigma[w] * back[w], Total: total},
				})
			}
			frontier = next
		}
		for _, w := range touched {
			back[w] = 0
		}
	}
	return b
}

// NodeScore is a per-node centrality value.
type NodeScore struct {
	NodeID     string
	Kind       surface.NodeKind
	RiskStatus string
	Score      float64
}

// NodeBetweenness sums, for every node, Through/Total over all pair
// statistics recorded for it in memory or in the attached node store. Nodes
// that lie on no recorded shortest path score 0.
func NodeBetweenness(g *surface.Graph) ([]NodeScore, error) {
	if err := g.Begin(surface.OpNodeBetweenness); err != nil {
		return nil, err
	}

	store := g.Store()
	out := make([]NodeScore, 0, g.NodeCount())
	for _, n := range g.Nodes() {
		stats := n.PairStats()
		if store != nil {
			err := store.Stats(n.ID, func(key string, stat surface.PairStat) error {
				if _, ok := stats[key]; !ok {
					stats[key] = stat
				}
				return nil
			})
			if err != nil {
				return nil, fmt.Errorf("read statistics of %s: %w", n.ID, err)
			}
		}

		score := 0.0
		for _, s := range stats {
			score += s.Fraction()
		}
		out = append(out, NodeScore{
			NodeID:     n.ID,
			Kind:       n.Kind(),
			RiskStatus: RiskStatus(n),
			Score:      score,
		})
	}
	return out, nil
}

// SortScores orders scores highest first, ties by node id.
func SortScores(scores []NodeScore) {
	sort.SliceStable(scores, func(i, j int) bool {
		if scores[i].Score != scores[j].Score {
			return scores[i].Score > scores[j].Score
		}
		return scores[i].NodeID < scores[j].NodeID
	})
}
