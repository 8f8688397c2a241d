package surface

import (
	"sort"

	"github.com/dd0wney/cluso-vre/pkg/logging"
)

// Inspection is a structural summary of a graph.
type Inspection struct {
	Nodes         int
	Edges         int
	NodesByKind   map[NodeKind]int
	EdgesByKind   map[EdgeKind]int
	EdgesByOrigin map[Origin]int
	Isolated      int
	Positive      int
	InfectedEdges int
	Phases        Phase
}

// Inspect counts nodes and edges by kind.
func (g *Graph) Inspect() Inspection {
	ins := Inspection{
		Nodes:         len(g.nodes),
		Edges:         len(g.edges),
		NodesByKind:   make(map[NodeKind]int),
		EdgesByKind:   make(map[EdgeKind]int),
		EdgesByOrigin: make(map[Origin]int),
		Phases:        g.phases,
	}
	for i, n := range g.nodes {
		ins.NodesByKind[n.Kind()]++
		if len(g.adjacency[i]) == 0 {
			ins.Isolated++
		}
		if isPositive(n) {
			ins.Positive++
		}
	}
	for _, e := range g.edges {
		ins.EdgesByKind[e.Kind]++
		ins.EdgesByOrigin[e.Origin]++
		if e.Infected() {
			ins.InfectedEdges++
		}
	}
	return ins
}

// Log writes the summary as a single structured entry.
func (ins Inspection) Log(logger logging.Logger) {
	nodes := make(map[string]int, len(ins.NodesByKind))
	for k, v := range ins.NodesByKind {
		nodes[k.String()] = v
	}
	edges := make(map[string]int, len(ins.EdgesByKind))
	for k, v := range ins.EdgesByKind {
		edges[k.String()] = v
	}
	logging.OrNop(logger).Info("graph inspected",
		logging.Int("nodes", ins.Nodes),
		logging.Int("edges", ins.Edges),
		logging.Any("nodes_by_type", nodes),
		logging.Any("edges_by_type", edges),
		logging.Int("isolated", ins.Isolated),
		logging.Int("positive_patients", ins.Positive),
		logging.Int("infected_edges", ins.InfectedEdges),
		logging.String("phases", ins.Phases.String()))
}

// EdgeKindsPresent lists the edge kinds with at least one edge, by name.
func (ins Inspection) EdgeKindsPresent() []EdgeKind {
	kinds := make([]EdgeKind, 0, len(ins.EdgesByKind))
	for k := range ins.EdgesByKind {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i].String() < kinds[j].String() })
	return kinds
}
