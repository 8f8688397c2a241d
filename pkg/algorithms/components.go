package algorithms

import (
	"container/list"
	"sort"

	"github.com/dd0wney/cluso-vre/pkg/surface"
)

// Component is a maximal set of nodes joined by contact edges.
type Component struct {
	ID    int
	Nodes []string
	Size  int
	// Positive counts VRE-positive patients in the component.
	Positive int
}

// ComponentsResult lists the connected components, largest first.
type ComponentsResult struct {
	Components    []*Component
	NodeComponent map[string]int
}

// Connected reports whether the graph forms a single component.
func (r *ComponentsResult) Connected() bool {
	return len(r.Components) <= 1
}

// ReachablePairs counts unordered node pairs that lie in the same component,
// the pairs a shortest path pass can actually connect.
func (r *ComponentsResult) ReachablePairs() int {
	n := 0
	for _, c := range r.Components {
		n += c.Size * (c.Size - 1) / 2
	}
	return n
}

// ConnectedComponents finds all connected components in the graph
func ConnectedComponents(g *surface.Graph) *ComponentsResult {
	visited := make([]bool, g.NodeCount())
	components := make([]*Component, 0)

	for start := range visited {
		if visited[start] {
			continue
		}

		component := &Component{}
		queue := list.New()
		queue.PushBack(start)
		visited[start] = true

		for queue.Len() > 0 {
			idx, ok := queue.Remove(queue.Front()).(int)
			if !ok {
				continue
			}
			node := g.NodeAt(idx)
			component.Nodes = append(component.Nodes, node.ID)
			if p, ok := node.Patient(); ok && p.Positive() {
				component.Positive++
			}

			for _, eid := range g.Incident(idx) {
				other := g.Edge(eid).Other(idx)
				if !visited[other] {
					visited[other] = true
					queue.PushBack(other)
				}
			}
		}

		component.Size = len(component.Nodes)
		components = append(components, component)
	}

	sort.SliceStable(components, func(i, j int) bool {
		return components[i].Size > components[j].Size
	})
	nodeComponent := make(map[string]int, g.NodeCount())
	for id, c := range components {
		c.ID = id
		for _, n := range c.Nodes {
			nodeComponent[n] = id
		}
	}

	return &ComponentsResult{
		Components:    components,
		NodeComponent: nodeComponent,
	}
}
