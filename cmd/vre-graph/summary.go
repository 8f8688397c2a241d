package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/dd0wney/cluso-vre/pkg/algorithms"
	"github.com/dd0wney/cluso-vre/pkg/pipeline"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF00FF")).
			MarginLeft(2)

	boxStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#00FFFF")).
			Padding(0, 2).
			MarginRight(2)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000")).
			Bold(true)

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#00FF00")).
		Bold(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			MarginTop(1).
			MarginLeft(2)
)

func count(n int) string { return humanize.Comma(int64(n)) }

func row(label, value string) string {
	return fmt.Sprintf("%s %s", labelStyle.Render(fmt.Sprintf("%-18s", label)), value)
}

// renderSummary formats a finished run for the terminal.
func renderSummary(r *pipeline.Result) string {
	var graph []string
	graph = append(graph,
		titleStyle.Render("Graph"),
		row("run", r.Run.ID.String()),
		row("patients", count(r.Build.Patients)),
		row("nodes", count(r.Inspection.Nodes)),
		row("edges", count(r.Inspection.Edges)),
		row("positive patients", count(r.Inspection.Positive)),
		row("isolated removed", count(r.Removed)),
		row("edges skipped", count(r.Build.TotalSkipped())),
	)
	if r.Components != nil {
		graph = append(graph, row("components", count(len(r.Components.Components))))
	}

	kinds := make([]string, 0, len(r.Inspection.EdgesByKind))
	for k, n := range r.Inspection.EdgesByKind {
		kinds = append(kinds, row(k.String(), count(n)))
	}
	sort.Strings(kinds)
	edges := append([]string{titleStyle.Render("Edges by kind")}, kinds...)

	top := lipgloss.JoinHorizontal(lipgloss.Top,
		boxStyle.Render(strings.Join(graph, "\n")),
		boxStyle.Render(strings.Join(edges, "\n")))

	var snaps []string
	for _, s := range r.Snapshots {
		snaps = append(snaps, renderSnapshot(s))
	}

	status := okStyle.Render(fmt.Sprintf("done in %s", r.Duration.Round(time.Millisecond)))
	return lipgloss.JoinVertical(lipgloss.Left, top, strings.Join(snaps, "\n"), "  "+status)
}

func renderSnapshot(s *pipeline.SnapshotResult) string {
	lines := []string{
		titleStyle.Render("Snapshot " + s.At.Format(time.RFC3339)),
		row("nodes / edges", count(s.Nodes)+" / "+count(s.Edges)),
		row("infected edges", count(s.Propagation.Infected)),
		row("exposed nodes", count(s.Propagation.Exposed)),
	}
	if s.PathStats != nil {
		lines = append(lines,
			row("pairs", fmt.Sprintf("%s (%s mode, %s)", count(s.PathStats.Pairs), s.PathStats.Mode,
				s.PathStats.Duration.Round(time.Millisecond))),
			row("disconnected", count(s.PathStats.Disconnected)),
		)
		if s.PathStats.TooLong > 0 {
			lines = append(lines, row("too long", count(s.PathStats.TooLong)))
		}
	}
	if s.PageRank != nil {
		lines = append(lines, labelStyle.Render("top pagerank"))
		for i, score := range algorithms.TopScores(s.PageRank.Scores, 5) {
			lines = append(lines, fmt.Sprintf("  %d. %-16s %-8s %.6f", i+1, score.NodeID, score.Kind, score.Score))
		}
	}
	lines = append(lines, row("tables", count(len(s.Tables))))
	if s.ExportErr != nil {
		lines = append(lines, errorStyle.Render("export: "+s.ExportErr.Error()))
	}
	return boxStyle.Render(strings.Join(lines, "\n"))
}
