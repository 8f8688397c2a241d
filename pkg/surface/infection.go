package surface

import (
	"fmt"
	"time"

	"github.com/dd0wney/cluso-vre/pkg/logging"
)

// AnnotationReport counts the labels assigned by Annotate.
type AnnotationReport struct {
	Infected int
	Clean    int
	// Failed counts edges whose endpoints could not be classified; they are
	// labelled clean.
	Failed int
}

// Annotate labels every edge infected when either endpoint is a VRE
// positive patient, and clean otherwise.
func (g *Graph) Annotate() AnnotationReport {
	var report AnnotationReport
	for _, e := range g.edges {
		infected, err := g.classify(e)
		if err != nil {
			report.Failed++
			g.logger.Warn("edge infection status unknown, labelled clean",
				logging.Pair(g.nodes[e.Source].ID, g.nodes[e.Target].ID),
				logging.Error(err))
		}
		if infected {
			e.Infection = LabelInfected
			report.Infected++
		} else {
			e.Infection = LabelClean
			report.Clean++
		}
	}
	g.Complete(OpAnnotate)
	g.logger.Info("edges annotated",
		logging.Int("infected", report.Infected),
		logging.Int("clean", report.Clean),
		logging.Int("failed", report.Failed))
	return report
}

func (g *Graph) classify(e *Edge) (bool, error) {
	src, dst := g.nodes[e.Source], g.nodes[e.Target]
	for _, n := range [2]*Node{src, dst} {
		if n.Attrs == nil {
			return false, &ClassificationError{Source: src.ID, Target: dst.ID, Cause: ErrMissingAttributes}
		}
		if !g.registry.IsOfKind(n.ID, n.Kind()) {
			return false, &ClassificationError{
				Source: src.ID, Target: dst.ID,
				Cause: fmt.Errorf("%s: %w", n.ID, ErrKindConflict),
			}
		}
	}
	return isPositive(src) || isPositive(dst), nil
}

func isPositive(n *Node) bool {
	p, ok := n.Patient()
	return ok && p.Positive()
}

// PropagationOptions controls infection propagation beyond direct contact.
type PropagationOptions struct {
	// Distance is the number of propagation rounds. Values below 1 are
	// treated as 1.
	Distance int
	// ForwardInTime only lets a node expose its neighbor over a contact that
	// ended after the node was itself colonized.
	ForwardInTime bool
	// ColonizationLead moves the colonization of positive patients before
	// their first positive screening.
	ColonizationLead time.Duration
}

// PropagationReport summarizes a Propagate run.
type PropagationReport struct {
	Sources  int
	Exposed  int
	Infected int
	Clean    int
}

type exposureCandidate struct {
	node   int
	source int
	at     time.Time
}

// Propagate spreads infection in rounds. In every round an edge is labelled
// infected when either endpoint is a positive patient or was exposed in an
// earlier round, and the endpoints of infected edges become exposed. With
// ForwardInTime set, a node only exposes its neighbor when it was colonized
// before the contact ended, and the neighbor's colonization time becomes the
// contact's end. One round without ForwardInTime is equivalent to Annotate.
func (g *Graph) Propagate(opts PropagationOptions) PropagationReport {
	if opts.Distance < 1 {
		opts.Distance = 1
	}
	var report PropagationReport

	// colonized[i] is set for positive patients and exposed nodes; at[i] is
	// the colonization time, zero when unknown.
	colonized := make([]bool, len(g.nodes))
	at := make([]time.Time, len(g.nodes))
	for i, n := range g.nodes {
		n.Exposure = nil
		if p, ok := n.Patient(); ok && p.Positive() {
			colonized[i] = true
			if !p.InfectionDate.IsZero() {
				at[i] = p.InfectionDate.Add(-opts.ColonizationLead)
			}
			report.Sources++
		}
	}

	for round := 1; round <= opts.Distance; round++ {
		var candidates []exposureCandidate
		for _, e := range g.edges {
			if !colonized[e.Source] && !colonized[e.Target] {
				e.Infection = LabelClean
				continue
			}
			e.Infection = LabelInfected
			for _, dir := range [2][2]int{{e.Source, e.Target}, {e.Target, e.Source}} {
				from, to := dir[0], dir[1]
				if !colonized[from] {
					continue
				}
				if opts.ForwardInTime && !at[from].IsZero() && !at[from].Before(e.To) {
					continue
				}
				var when time.Time
				if opts.ForwardInTime {
					when = e.To
				}
				candidates = append(candidates, exposureCandidate{node: to, source: from, at: when})
			}
		}

		// Exposures apply after the round so infection travels one hop per round.
		for _, c := range candidates {
			if colonized[c.node] && g.nodes[c.node].Exposure == nil {
				// positive patient
				continue
			}
			n := g.nodes[c.node]
			if !colonized[c.node] {
				colonized[c.node] = true
				at[c.node] = c.at
				n.Exposure = &Exposure{Source: g.nodes[c.source].ID, Distance: round, At: c.at}
				continue
			}
			if opts.ForwardInTime && c.at.Before(at[c.node]) {
				at[c.node] = c.at
				n.Exposure.At = c.at
			}
		}
	}

	for _, n := range g.nodes {
		if n.Exposure != nil {
			report.Exposed++
		}
	}
	for _, e := range g.edges {
		if e.Infected() {
			report.Infected++
		} else {
			report.Clean++
		}
	}
	g.Complete(OpAnnotate)
	g.logger.Info("infection propagated",
		logging.Int("sources", report.Sources),
		logging.Int("exposed", report.Exposed),
		logging.Int("infected_edges", report.Infected),
		logging.Int("distance", opts.Distance),
		logging.Bool("forward_in_time", opts.ForwardInTime))
	return report
}
