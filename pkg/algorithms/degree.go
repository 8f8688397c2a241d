package algorithms

import (
	"sort"

	"github.com/dd0wney/cluso-vre/pkg/surface"
)

// DegreeRatio is the share of a node's considered edges that carry infection.
type DegreeRatio struct {
	NodeID     string
	Kind       surface.NodeKind
	RiskStatus string
	// Ratio is Infected/Considered. It is meaningless when Defined is false.
	Ratio      float64
	Defined    bool
	Infected   int
	Considered int
	// Total is the node's full degree, parallel edges included.
	Total int
}

// PatientDegreeRatio computes, for every node, the fraction of its
// patient-touching edges that are infected. Nodes without such edges are
// reported with Defined == false.
func PatientDegreeRatio(g *surface.Graph) ([]DegreeRatio, error) {
	return degreeRatios(g, surface.OpPatientDegreeRatio, func(e *surface.Edge) bool {
		return e.Kind.Involves(surface.KindPatient)
	})
}

// TotalDegreeRatio computes, for every node, the fraction of all its
// incident edges that are infected.
func TotalDegreeRatio(g *surface.Graph) ([]DegreeRatio, error) {
	return degreeRatios(g, surface.OpTotalDegreeRatio, func(*surface.Edge) bool { return true })
}

func degreeRatios(g *surface.Graph, op surface.Operation, consider func(*surface.Edge) bool) ([]DegreeRatio, error) {
	if err := g.Begin(op); err != nil {
		return nil, err
	}

	out := make([]DegreeRatio, 0, g.NodeCount())
	for idx, n := range g.Nodes() {
		r := DegreeRatio{
			NodeID:     n.ID,
			Kind:       n.Kind(),
			RiskStatus: RiskStatus(n),
			Total:      g.Degree(idx),
		}
		for _, eid := range g.Incident(idx) {
			e := g.Edge(eid)
			if !consider(e) {
				continue
			}
			r.Considered++
			if e.Infected() {
				r.Infected++
			}
		}
		if r.Considered > 0 {
			r.Defined = true
			r.Ratio = float64(r.Infected) / float64(r.Considered)
		}
		out = append(out, r)
	}
	return out, nil
}

// SortDegreeRatios orders records by ratio, highest first. Undefined ratios
// go last; ties are broken by node id.
func SortDegreeRatios(records []DegreeRatio) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if a.Defined != b.Defined {
			return a.Defined
		}
		if a.Ratio != b.Ratio {
			return a.Ratio > b.Ratio
		}
		return a.NodeID < b.NodeID
	})
}

// RiskStatus returns the VRE status of a patient node and "neg" for every
// other node.
func RiskStatus(n *surface.Node) string {
	if p, ok := n.Patient(); ok && p.Positive() {
		return string(surface.StatusPositive)
	}
	return string(surface.StatusNegative)
}
