package algorithms

import (
	"context"
	"fmt"

	"github.com/dd0wney/cluso-vre/pkg/logging"
	"github.com/dd0wney/cluso-vre/pkg/surface"
)

// pathTree holds the breadth-first shortest-path DAG rooted at one source.
// Parallel edges collapse: two nodes are adjacent or they are not.
type pathTree struct {
	source int
	dist   []int     // -1 when unreachable
	sigma  []float64 // number of shortest paths from source
	preds  [][]int
	order  []int // nodes in non-decreasing distance
}

func newPathTree(g *surface.Graph, neighbors [][]int, source int) *pathTree {
	n := g.NodeCount()
	t := &pathTree{
		source: source,
		dist:   make([]int, n),
		sigma:  make([]float64, n),
		preds:  make([][]int, n),
		order:  make([]int, 0, n),
	}
	for i := range t.dist {
		t.dist[i] = -1
	}
	t.dist[source] = 0
	t.sigma[source] = 1

	queue := []int{source}
	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		t.order = append(t.order, v)

		for _, w := range neighbors[v] {
			if t.dist[w] < 0 {
				t.dist[w] = t.dist[v] + 1
				queue = append(queue, w)
			}
			if t.dist[w] == t.dist[v]+1 {
				t.sigma[w] += t.sigma[v]
				t.preds[w] = append(t.preds[w], v)
			}
		}
	}
	return t
}

// adjacencyLists materializes the distinct neighbors of every node once so
// repeated traversals do not rebuild them.
func adjacencyLists(g *surface.Graph) [][]int {
	out := make([][]int, g.NodeCount())
	for i := range out {
		out[i] = g.Neighbors(i)
	}
	return out
}

// focusIndices resolves focus ids to node indices, preserving order and
// dropping duplicates. An empty focus list selects every node.
func focusIndices(g *surface.Graph, focus []string) ([]int, error) {
	if len(focus) == 0 {
		out := make([]int, g.NodeCount())
		for i := range out {
			out[i] = i
		}
		return out, nil
	}
	out := make([]int, 0, len(focus))
	seen := make(map[int]struct{}, len(focus))
	for _, id := range focus {
		idx, ok := g.IndexOf(id)
		if !ok {
			return nil, fmt.Errorf("focus node %q: %w", id, surface.ErrNodeNotFound)
		}
		if _, dup := seen[idx]; dup {
			continue
		}
		seen[idx] = struct{}{}
		out = append(out, idx)
	}
	return out, nil
}

// PathLength is one row of the shortest path length overview. Length counts
// the nodes on a shortest path, endpoints included.
type PathLength struct {
	Source string
	Target string
	Length int
}

// ShortestPathLengths lists the shortest path length of every connected
// unordered pair of focus nodes. Disconnected pairs are omitted.
func ShortestPathLengths(ctx context.Context, g *surface.Graph, focus []string, logger logging.Logger) ([]PathLength, error) {
	logger = logging.OrNop(logger)
	idx, err := focusIndices(g, focus)
	if err != nil {
		return nil, err
	}

	neighbors := adjacencyLists(g)
	total := len(idx) * (len(idx) - 1) / 2
	timer := logging.StartTimer(logger, "shortest path lengths computed", logging.Count(total))

	var out []PathLength
	done := 0
	for i, u := range idx {
		if err := ctx.Err(); err != nil {
			timer.EndError(err)
			return nil, err
		}
		tree := newPathTree(g, neighbors, u)
		for _, v := range idx[i+1:] {
			done++
			if tree.dist[v] < 0 {
				continue
			}
			out = append(out, PathLength{
				Source: g.NodeAt(u).ID,
				Target: g.NodeAt(v).ID,
				Length: tree.dist[v] + 1,
			})
		}
		logger.Debug("path length source finished", logging.NodeID(g.NodeAt(u).ID), logging.Progress(done, total))
	}
	timer.End(logging.Int("connected_pairs", len(out)))
	return out, nil
}
