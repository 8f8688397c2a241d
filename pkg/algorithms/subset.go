package algorithms

import (
	"context"

	"github.com/dd0wney/cluso-vre/pkg/logging"
	"github.com/dd0wney/cluso-vre/pkg/surface"
)

// SubsetBetweenness computes betweenness restricted to shortest paths that
// start at a VRE-positive patient and end at any patient. Scores are
// unnormalized and halved, since each undirected path between two positive
// patients is discovered from both ends.
func SubsetBetweenness(ctx context.Context, g *surface.Graph, logger logging.Logger) ([]NodeScore, error) {
	logger = logging.OrNop(logger)
	n := g.NodeCount()

	var sources []int
	target := make([]bool, n)
	for i, node := range g.Nodes() {
		p, ok := node.Patient()
		if !ok {
			continue
		}
		target[i] = true
		if p.Positive() {
			sources = append(sources, i)
		}
	}

	timer := logging.StartTimer(logger, "subset betweenness computed",
		logging.Int("sources", len(sources)))

	neighbors := adjacencyLists(g)
	betweenness := make([]float64, n)
	delta := make([]float64, n)
	for _, s := range sources {
		if err := ctx.Err(); err != nil {
			timer.EndError(err)
			return nil, err
		}
		tree := newPathTree(g, neighbors, s)

		for _, w := range tree.order {
			delta[w] = 0
		}
		for i := len(tree.order) - 1; i >= 0; i-- {
			w := tree.order[i]
			coeff := delta[w] / tree.sigma[w]
			if target[w] && w != s {
				coeff = (delta[w] + 1) / tree.sigma[w]
			}
			for _, v := range tree.preds[w] {
				delta[v] += tree.sigma[v] * coeff
			}
			if w != s {
				betweenness[w] += delta[w]
			}
		}
	}

	out := make([]NodeScore, n)
	for i, node := range g.Nodes() {
		out[i] = NodeScore{
			NodeID:     node.ID,
			Kind:       node.Kind(),
			RiskStatus: RiskStatus(node),
			Score:      betweenness[i] / 2,
		}
	}
	timer.End()
	return out, nil
}
