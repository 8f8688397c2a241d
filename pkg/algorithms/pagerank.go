package algorithms

import (
	"container/heap"
	"math"

	"github.com/dd0wney/cluso-vre/pkg/surface"
)

// PageRankOptions configures PageRank algorithm
type PageRankOptions struct {
	DampingFactor float64 // Usually 0.85
	MaxIterations int
	Tolerance     float64 // Convergence threshold, per node
}

// DefaultPageRankOptions returns default PageRank configuration
func DefaultPageRankOptions() PageRankOptions {
	return PageRankOptions{
		DampingFactor: 0.85,
		MaxIterations: 100,
		Tolerance:     1e-6,
	}
}

// PageRankResult contains PageRank scores for all nodes
type PageRankResult struct {
	Scores     []NodeScore // In node order
	Iterations int
	Converged  bool
	// Personalized is false when the graph held no positive patient and
	// teleports were spread over every node.
	Personalized bool
}

// InfectionPageRank runs PageRank over the undirected contact multigraph with
// teleport mass placed on VRE-positive patients. Parallel edges weight the
// walk: a node with two stays in a room is twice as likely to step there.
func InfectionPageRank(g *surface.Graph, opts PageRankOptions) *PageRankResult {
	n := g.NodeCount()
	if n == 0 {
		return &PageRankResult{Converged: true}
	}

	personal := make([]float64, n)
	positives := 0
	for i, node := range g.Nodes() {
		if p, ok := node.Patient(); ok && p.Positive() {
			personal[i] = 1
			positives++
		}
	}
	if positives == 0 {
		for i := range personal {
			personal[i] = 1.0 / float64(n)
		}
	} else {
		for i := range personal {
			personal[i] /= float64(positives)
		}
	}

	scores := make([]float64, n)
	for i := range scores {
		scores[i] = 1.0 / float64(n)
	}
	next := make([]float64, n)

	converged := false
	iterations := 0
	for iterations < opts.MaxIterations {
		iterations++

		dangling := 0.0
		for i := range next {
			next[i] = 0
			if g.Degree(i) == 0 {
				dangling += scores[i]
			}
		}
		for i := 0; i < n; i++ {
			deg := g.Degree(i)
			if deg == 0 {
				continue
			}
			share := opts.DampingFactor * scores[i] / float64(deg)
			for _, eid := range g.Incident(i) {
				next[g.Edge(eid).Other(i)] += share
			}
		}
		for i := range next {
			next[i] += (opts.DampingFactor*dangling + 1 - opts.DampingFactor) * personal[i]
		}

		diff := 0.0
		for i := range next {
			diff += math.Abs(next[i] - scores[i])
		}
		scores, next = next, scores
		if diff < float64(n)*opts.Tolerance {
			converged = true
			break
		}
	}

	out := make([]NodeScore, n)
	for i, node := range g.Nodes() {
		out[i] = NodeScore{
			NodeID:     node.ID,
			Kind:       node.Kind(),
			RiskStatus: RiskStatus(node),
			Score:      scores[i],
		}
	}
	return &PageRankResult{
		Scores:       out,
		Iterations:   iterations,
		Converged:    converged,
		Personalized: positives > 0,
	}
}

// scoreHeap implements a min-heap of NodeScore by score.
// Keeping at most k elements with the minimum at the root finds the top k
// in O(n log k).
type scoreHeap []NodeScore

func (h scoreHeap) Len() int { return len(h) }
func (h scoreHeap) Less(i, j int) bool { return less(h[i], h[j]) }
func (h scoreHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *scoreHeap) Push(x any) {
	*h = append(*h, x.(NodeScore))
}

func (h *scoreHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[0 : n-1]
	return x
}

// TopScores returns the k highest scores, highest first, without sorting
// the input.
func TopScores(scores []NodeScore, k int) []NodeScore {
	if k <= 0 {
		return nil
	}

	h := make(scoreHeap, 0, k)
	for _, s := range scores {
		if h.Len() < k {
			heap.Push(&h, s)
		} else if less(h[0], s) {
			heap.Pop(&h)
			heap.Push(&h, s)
		}
	}

	result := make([]NodeScore, h.Len())
	for i := h.Len() - 1; i >= 0; i-- {
		result[i] = heap.Pop(&h).(NodeScore)
	}
	return result
}

// less reports whether a ranks below b.
func less(a, b NodeScore) bool {
	if a.Score != b.Score {
		return a.Score < b.Score
	}
	return a.NodeID > b.NodeID
}
