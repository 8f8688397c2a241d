package surface

import (
	"fmt"
	"time"

	"github.com/dd0wney/cluso-vre/pkg/logging"
)

// Graph is an undirected multigraph stored as an arena: nodes and edges live
// in slices and are addressed by index, with an id-to-index map for lookups.
// A Graph is not safe for concurrent mutation; concurrent reads are fine.
type Graph struct {
	nodes     []*Node
	index     map[string]int
	edges     []*Edge
	adjacency [][]EdgeID

	registry   *Registry
	snapshotAt time.Time
	phases     Phase
	warnings   Warnings
	store      NodeStore
	logger     logging.Logger
}

// Option configures a Graph.
type Option func(*Graph)

// WithLogger sets the logger used to report refused nodes and edges.
func WithLogger(logger logging.Logger) Option {
	return func(g *Graph) {
		g.logger = logging.OrNop(logger).With(logging.Component("surface"))
	}
}

// NewGraph returns an empty, unbuilt graph.
func NewGraph(opts ...Option) *Graph {
	g := &Graph{
		index:    make(map[string]int),
		registry: NewRegistry(),
		warnings: newWarnings(),
		logger:   logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Logger returns the graph's logger.
func (g *Graph) Logger() logging.Logger { return g.logger }

// SnapshotAt returns the cutoff the graph was built at. ok is false for a
// graph that was never built.
func (g *Graph) SnapshotAt() (t time.Time, ok bool) {
	return g.snapshotAt, g.phases.Has(PhaseBuilt)
}

// MarkBuilt records the snapshot cutoff and sets PhaseBuilt.
func (g *Graph) MarkBuilt(at time.Time) {
	g.snapshotAt = at
	g.phases |= PhaseBuilt
}

// Phases returns the set of completed phases.
func (g *Graph) Phases() Phase { return g.phases }

// Begin checks that the graph satisfies op's preconditions.
func (g *Graph) Begin(op Operation) error {
	for _, req := range op.Requires {
		if !g.phases.Has(req) {
			return &PreconditionError{Op: op.Name, Required: req, Current: g.phases}
		}
	}
	return nil
}

// Complete records op's effect on the phase set.
func (g *Graph) Complete(op Operation) {
	g.phases &^= op.Invalidates
	g.phases |= op.Produces
}

// AddNode registers id with the given attributes. Adding an id that exists
// with the same kind replaces its attributes. Empty ids and ids already
// registered under another kind are refused and counted in Warnings.
func (g *Graph) AddNode(id string, attrs Attributes) bool {
	if attrs == nil {
		g.logger.Warn("node refused: no attributes", logging.NodeID(id))
		return false
	}
	kind := attrs.Kind()
	if id == "" {
		g.warnings.EmptyIDs[kind]++
		g.logger.Warn("node refused: empty identifier", logging.NodeKind(kind.String()))
		return false
	}
	if idx, ok := g.index[id]; ok {
		existing := g.nodes[idx]
		if existing.Kind() != kind {
			g.warnings.KindConflicts++
			g.logger.Warn("node refused: identifier registered under another kind",
				logging.NodeID(id),
				logging.NodeKind(kind.String()),
				logging.String("registered_as", existing.Kind().String()))
			return false
		}
		existing.Attrs = attrs
		return true
	}

	g.index[id] = len(g.nodes)
	g.nodes = append(g.nodes, &Node{ID: id, Attrs: attrs})
	g.adjacency = append(g.adjacency, nil)
	g.registry.add(id, kind)
	return true
}

// UpdateNodeAttributes replaces the attributes of an existing node. The new
// attributes must have the node's kind.
func (g *Graph) UpdateNodeAttributes(id string, attrs Attributes) error {
	idx, ok := g.index[id]
	if !ok {
		return ErrNodeNotFound
	}
	if attrs == nil {
		return ErrMissingAttributes
	}
	if g.nodes[idx].Kind() != attrs.Kind() {
		g.warnings.KindConflicts++
		return fmt.Errorf("update %s to %s attributes: %w", id, attrs.Kind(), ErrKindConflict)
	}
	g.nodes[idx].Attrs = attrs
	return nil
}

// AddEdge connects two registered nodes. Parallel edges are allowed; self
// loops and unknown endpoints are refused and counted in Warnings.
func (g *Graph) AddEdge(u, v string, from, to time.Time, origin Origin) (EdgeID, bool) {
	ui, uok := g.index[u]
	vi, vok := g.index[v]
	if !uok || !vok {
		g.warnings.DanglingEdges++
		g.logger.Warn("edge refused: unknown endpoint", logging.Pair(u, v))
		return -1, false
	}
	if ui == vi {
		g.warnings.SelfLoops++
		g.logger.Warn("edge refused: self loop", logging.NodeID(u))
		return -1, false
	}

	id := EdgeID(len(g.edges))
	g.edges = append(g.edges, &Edge{
		ID:     id,
		Source: ui,
		Target: vi,
		From:   from,
		To:     to,
		Kind:   EdgeKindOf(g.nodes[ui].Kind(), g.nodes[vi].Kind()),
		Origin: origin,
	})
	g.adjacency[ui] = append(g.adjacency[ui], id)
	g.adjacency[vi] = append(g.adjacency[vi], id)
	return id, true
}

// Node looks a node up by identifier.
func (g *Graph) Node(id string) (*Node, bool) {
	idx, ok := g.index[id]
	if !ok {
		return nil, false
	}
	return g.nodes[idx], true
}

// IndexOf returns the arena index of id.
func (g *Graph) IndexOf(id string) (int, bool) {
	idx, ok := g.index[id]
	return idx, ok
}

// NodeAt returns the node at arena index idx.
func (g *Graph) NodeAt(idx int) *Node { return g.nodes[idx] }

// Nodes returns the node arena. Callers must not modify the slice.
func (g *Graph) Nodes() []*Node { return g.nodes }

// Edges returns the edge arena. Callers must not modify the slice.
func (g *Graph) Edges() []*Edge { return g.edges }

// Edge returns the edge with the given id.
func (g *Graph) Edge(id EdgeID) *Edge { return g.edges[id] }

func (g *Graph) NodeCount() int { return len(g.nodes) }
func (g *Graph) EdgeCount() int { return len(g.edges) }

// Incident returns the ids of edges touching the node at idx.
func (g *Graph) Incident(idx int) []EdgeID { return g.adjacency[idx] }

// Degree counts incident edges, parallel edges included.
func (g *Graph) Degree(idx int) int { return len(g.adjacency[idx]) }

// Neighbors returns the distinct neighbor indices of the node at idx in
// order of first appearance.
func (g *Graph) Neighbors(idx int) []int {
	seen := make(map[int]struct{}, len(g.adjacency[idx]))
	out := make([]int, 0, len(g.adjacency[idx]))
	for _, eid := range g.adjacency[idx] {
		other := g.edges[eid].Other(idx)
		if _, ok := seen[other]; ok {
			continue
		}
		seen[other] = struct{}{}
		out = append(out, other)
	}
	return out
}

// Registry returns the node-kind registry.
func (g *Graph) Registry() *Registry { return g.registry }

// Warnings returns a copy of the refusal counters.
func (g *Graph) Warnings() Warnings { return g.warnings.clone() }

// SetPairStat records an in-memory path statistic on the node at idx.
func (g *Graph) SetPairStat(idx int, key string, stat PairStat) {
	n := g.nodes[idx]
	if n.pairStats == nil {
		n.pairStats = make(map[string]PairStat)
	}
	n.pairStats[key] = stat
}

// ClearPairStats drops all in-memory path statistics.
func (g *Graph) ClearPairStats() {
	for _, n := range g.nodes {
		n.pairStats = nil
	}
}

// Store returns the node store attached by WriteNodeFiles, if any.
func (g *Graph) Store() NodeStore { return g.store }

// Clone returns a deep copy. The attached node store and path statistics
// are not carried over.
func (g *Graph) Clone() *Graph {
	c := &Graph{
		nodes:      make([]*Node, len(g.nodes)),
		index:      make(map[string]int, len(g.index)),
		edges:      make([]*Edge, len(g.edges)),
		adjacency:  make([][]EdgeID, len(g.adjacency)),
		registry:   NewRegistry(),
		snapshotAt: g.snapshotAt,
		phases:     g.phases &^ (PhaseNodeFilesWritten | PhasePathStatsAccumulated),
		warnings:   g.warnings.clone(),
		logger:     g.logger,
	}
	for i, n := range g.nodes {
		c.nodes[i] = n.clone()
		c.index[n.ID] = i
		c.registry.add(n.ID, n.Kind())
	}
	for i, e := range g.edges {
		ec := *e
		c.edges[i] = &ec
	}
	for i, adj := range g.adjacency {
		c.adjacency[i] = append([]EdgeID(nil), adj...)
	}
	return c
}

// compact rebuilds the arena keeping only the selected nodes and edges.
// Edges whose endpoints are dropped are dropped with them.
func (g *Graph) compact(keepNode func(idx int) bool, keepEdge func(e *Edge) bool) {
	remap := make([]int, len(g.nodes))
	nodes := make([]*Node, 0, len(g.nodes))
	index := make(map[string]int, len(g.nodes))
	for i, n := range g.nodes {
		if !keepNode(i) {
			remap[i] = -1
			g.registry.remove(n.ID)
			continue
		}
		remap[i] = len(nodes)
		index[n.ID] = len(nodes)
		nodes = append(nodes, n)
	}

	edges := make([]*Edge, 0, len(g.edges))
	adjacency := make([][]EdgeID, len(nodes))
	for _, e := range g.edges {
		src, dst := remap[e.Source], remap[e.Target]
		if src < 0 || dst < 0 || !keepEdge(e) {
			continue
		}
		e.ID = EdgeID(len(edges))
		e.Source, e.Target = src, dst
		edges = append(edges, e)
		adjacency[src] = append(adjacency[src], e.ID)
		adjacency[dst] = append(adjacency[dst], e.ID)
	}

	g.nodes, g.index, g.edges, g.adjacency = nodes, index, edges, adjacency
}

// RemoveIsolatedNodes drops every node without incident edges and returns
// how many were removed.
func (g *Graph) RemoveIsolatedNodes() int {
	before := len(g.nodes)
	g.compact(
		func(idx int) bool { return len(g.adjacency[idx]) > 0 },
		func(*Edge) bool { return true },
	)
	removed := before - len(g.nodes)
	if removed > 0 {
		g.ClearPairStats()
		g.Complete(OpRemoveIsolated)
	}
	g.logger.Info("isolated nodes removed", logging.Count(removed))
	return removed
}
