package surface

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrPrecondition      = errors.New("precondition not met")
	ErrNodeFilesMissing  = errors.New("node files have not been written")
	ErrPathStatsMissing  = errors.New("shortest path statistics have not been accumulated")
	ErrInfectionMissing  = errors.New("edge infection labels have not been applied")
	ErrSnapshotNotBuilt  = errors.New("graph has not been built")
	ErrSnapshotInFuture  = errors.New("requested time is after the graph snapshot")
	ErrUnknownEndpoint   = errors.New("edge endpoint is not a node of the graph")
	ErrMissingAttributes = errors.New("node attributes are missing")
	ErrNodeNotFound      = errors.New("node not found")
	ErrKindConflict      = errors.New("identifier is registered under another node kind")
)

// PreconditionError reports an operation invoked before the graph reached
// the phase it depends on.
type PreconditionError struct {
	Op       string
	Required Phase
	Current  Phase
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s: requires %s (graph has %s): %v", e.Op, e.Required, e.Current, e.cause())
}

// Unwrap exposes both ErrPrecondition and the phase-specific sentinel.
func (e *PreconditionError) Unwrap() []error {
	return []error{ErrPrecondition, e.cause()}
}

func (e *PreconditionError) cause() error {
	switch e.Required {
	case PhaseBuilt:
		return ErrSnapshotNotBuilt
	case PhaseInfectionApplied:
		return ErrInfectionMissing
	case PhaseNodeFilesWritten:
		return ErrNodeFilesMissing
	case PhasePathStatsAccumulated:
		return ErrPathStatsMissing
	default:
		return ErrPrecondition
	}
}

// ClassificationError is returned when an edge's endpoints cannot be
// inspected for infection status.
type ClassificationError struct {
	Source, Target string
	Cause          error
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("classify edge %s-%s: %v", e.Source, e.Target, e.Cause)
}

func (e *ClassificationError) Unwrap() error { return e.Cause }

// Phase is a set of completed pipeline steps.
type Phase uint8

const (
	PhaseBuilt Phase = 1 << iota
	PhaseInfectionApplied
	PhaseNodeFilesWritten
	PhasePathStatsAccumulated
)

var phaseNames = []struct {
	p    Phase
	name string
}{
	{PhaseBuilt, "built"},
	{PhaseInfectionApplied, "infection_applied"},
	{PhaseNodeFilesWritten, "node_files_written"},
	{PhasePathStatsAccumulated, "path_stats_accumulated"},
}

func (p Phase) String() string {
	if p == 0 {
		return "none"
	}
	var parts []string
	for _, n := range phaseNames {
		if p&n.p != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// Has reports whether every phase in q is set in p.
func (p Phase) Has(q Phase) bool { return p&q == q }

// Operation declares which phases an operation needs and which it completes.
type Operation struct {
	Name     string
	Requires []Phase
	Produces Phase
	// Invalidates are cleared when the operation completes.
	Invalidates Phase
}

var (
	OpAnnotate = Operation{
		Name:     "annotate_infection",
		Produces: PhaseInfectionApplied,
	}
	OpWriteNodeFiles = Operation{
		Name:     "write_node_files",
		Produces: PhaseNodeFilesWritten,
	}
	OpPathStatsExact = Operation{
		Name:     "update_shortest_path_statistics",
		Requires: []Phase{PhaseNodeFilesWritten},
		Produces: PhasePathStatsAccumulated,
	}
	OpPathStatsApproximate = Operation{
		Name:     "update_shortest_path_statistics_approximate",
		Produces: PhasePathStatsAccumulated,
	}
	OpNodeBetweenness = Operation{
		Name:     "node_betweenness",
		Requires: []Phase{PhasePathStatsAccumulated},
	}
	OpPatientDegreeRatio = Operation{
		Name:     "patient_degree_ratio",
		Requires: []Phase{PhaseInfectionApplied},
	}
	OpTotalDegreeRatio = Operation{
		Name:     "total_degree_ratio",
		Requires: []Phase{PhaseInfectionApplied},
	}
	OpCreateSnapshots = Operation{
		Name:     "create_model_snapshots",
		Requires: []Phase{PhaseBuilt},
	}
	OpTrim = Operation{
		Name:        "trim",
		Requires:    []Phase{PhaseBuilt},
		Invalidates: PhaseNodeFilesWritten | PhasePathStatsAccumulated,
	}
	OpRemoveIsolated = Operation{
		Name:        "remove_isolated_nodes",
		Invalidates: PhaseNodeFilesWritten | PhasePathStatsAccumulated,
	}
)

// IsPrecondition reports whether err was caused by calling an operation out
// of order.
func IsPrecondition(err error) bool {
	return errors.Is(err, ErrPrecondition)
}
