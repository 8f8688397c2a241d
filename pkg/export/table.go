// Package export renders analysis results as tables and ships them to sinks:
// CSV files, PostgreSQL and S3.
package export

import (
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/dd0wney/cluso-vre/pkg/algorithms"
	"github.com/dd0wney/cluso-vre/pkg/surface"
)

// ColumnType is the SQL-facing type of a column.
type ColumnType int

const (
	Text ColumnType = iota
	Integer
	Float
)

// Column describes one table column.
type Column struct {
	Name string
	Type ColumnType
}

// Table is a named, ordered set of rows. A nil cell is a missing value.
type Table struct {
	Name    string
	Columns []Column
	Rows    [][]any
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.Rows) }

// ColumnNames returns the display names of the columns.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Table names.
const (
	TablePatientDegreeRatio = "patient_degree_ratio"
	TableTotalDegreeRatio   = "total_degree_ratio"
	TableInfectionDegree    = "infection_degree"
	TableNodeBetweenness    = "node_betweenness"
	TablePathLengths        = "shortest_path_lengths"
	TablePageRank           = "pagerank_centrality"
	TableSubsetBetweenness  = "subset_betweenness"
)

// PatientDegreeRatioTable lists patient degree ratios, highest first.
// Nodes without patient edges carry a missing ratio.
func PatientDegreeRatioTable(records []algorithms.DegreeRatio) *Table {
	records = append([]algorithms.DegreeRatio(nil), records...)
	algorithms.SortDegreeRatios(records)

	t := &Table{
		Name: TablePatientDegreeRatio,
		Columns: []Column{
			{"Node ID", Text},
			{"Node Type", Text},
			{"Degree Ratio", Float},
			{"Number of Infected Edges", Integer},
			{"Total Patient Edges", Integer},
			{"Total Edges", Integer},
		},
	}
	for _, r := range records {
		t.Rows = append(t.Rows, []any{r.NodeID, r.Kind.String(), ratio(r), r.Infected, r.Considered, r.Total})
	}
	return t
}

// TotalDegreeRatioTable lists total degree ratios, highest first.
func TotalDegreeRatioTable(records []algorithms.DegreeRatio) *Table {
	records = append([]algorithms.DegreeRatio(nil), records...)
	algorithms.SortDegreeRatios(records)

	t := &Table{
		Name: TableTotalDegreeRatio,
		Columns: []Column{
			{"Node ID", Text},
			{"Node Type", Text},
			{"Total Degree Ratio", Float},
			{"Number of Infected Edges", Integer},
			{"Total Edges", Integer},
		},
	}
	for _, r := range records {
		t.Rows = append(t.Rows, []any{r.NodeID, r.Kind.String(), ratio(r), r.Infected, r.Considered})
	}
	return t
}

// InfectionDegreeTable is the total degree ratio with each node's risk status.
func InfectionDegreeTable(records []algorithms.DegreeRatio) *Table {
	records = append([]algorithms.DegreeRatio(nil), records...)
	algorithms.SortDegreeRatios(records)

	t := &Table{
		Name: TableInfectionDegree,
		Columns: []Column{
			{"Node ID", Text},
			{"Node Type", Text},
			{"Risk Status", Text},
			{"Total Degree Ratio", Float},
			{"Number of Infected Edges", Integer},
			{"Total Edges", Integer},
		},
	}
	for _, r := range records {
		t.Rows = append(t.Rows, []any{r.NodeID, r.Kind.String(), r.RiskStatus, ratio(r), r.Infected, r.Considered})
	}
	return t
}

// NodeBetweennessTable lists betweenness scores, highest first.
func NodeBetweennessTable(scores []algorithms.NodeScore) *Table {
	scores = append([]algorithms.NodeScore(nil), scores...)
	algorithms.SortScores(scores)

	t := &Table{
		Name: TableNodeBetweenness,
		Columns: []Column{
			{"Node ID", Text},
			{"Node Type", Text},
			{"Betweenness Score", Float},
		},
	}
	for _, s := range scores {
		t.Rows = append(t.Rows, []any{s.NodeID, s.Kind.String(), s.Score})
	}
	return t
}

// CentralityTable lists a centrality with risk status, highest first. It is
// used for the PageRank and subset betweenness outputs.
func CentralityTable(name string, scores []algorithms.NodeScore) *Table {
	scores = append([]algorithms.NodeScore(nil), scores...)
	algorithms.SortScores(scores)

	t := &Table{
		Name: name,
		Columns: []Column{
			{"Node ID", Text},
			{"Node Type", Text},
			{"Risk Status", Text},
			{"Centrality", Float},
		},
	}
	for _, s := range scores {
		t.Rows = append(t.Rows, []any{s.NodeID, s.Kind.String(), s.RiskStatus, s.Score})
	}
	return t
}

// PathLengthTable lists the shortest path length of connected pairs.
func PathLengthTable(rows []algorithms.PathLength) *Table {
	t := &Table{
		Name: TablePathLengths,
		Columns: []Column{
			{"Node 1 ID", Text},
			{"Node 2 ID", Text},
			{"Path lengths", Integer},
		},
	}
	for _, r := range rows {
		t.Rows = append(t.Rows, []any{r.Source, r.Target, r.Length})
	}
	return t
}

func ratio(r algorithms.DegreeRatio) any {
	if !r.Defined {
		return nil
	}
	return r.Ratio
}

// FormatCell renders a cell for text outputs. Missing values render as
// surface.NullValue.
func FormatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return surface.NullValue
	case string:
		return x
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.UTC().Format(time.RFC3339)
	default:
		return surface.NullValue
	}
}

// SQLName turns a display column name into a snake_case identifier:
// "Number of Infected Edges" becomes "number_of_infected_edges".
func SQLName(name string) string {
	var b strings.Builder
	underscore := false
	for _, r := range strings.TrimSpace(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
			underscore = false
			continue
		}
		if !underscore && b.Len() > 0 {
			b.WriteByte('_')
			underscore = true
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}
