package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"

	"github.com/dd0wney/cluso-vre/pkg/pipeline"
)

type progressMsg struct {
	at          time.Time
	done, total int
}

type doneMsg struct {
	result *pipeline.Result
	err    error
}

type tickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// progressModel shows the shortest path pass of the snapshot currently being
// analysed.
type progressModel struct {
	bar       progress.Model
	cancel    context.CancelFunc
	snapshot  time.Time
	done      int
	total     int
	snapshots int
	started   time.Time
	now       time.Time
	result    *pipeline.Result
	err       error
	quitting  bool
}

func newProgressModel(cancel context.CancelFunc) progressModel {
	now := time.Now()
	return progressModel{
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(50)),
		cancel:  cancel,
		started: now,
		now:     now,
	}
}

func (m progressModel) Init() tea.Cmd {
	return tickCmd()
}

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			m.err = context.Canceled
			m.cancel()
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.bar.Width = min(msg.Width-4, 80)
		return m, nil
	case tickMsg:
		m.now = time.Time(msg)
		return m, tickCmd()
	case progressMsg:
		if !msg.at.Equal(m.snapshot) {
			m.snapshots++
			m.snapshot = msg.at
		}
		m.done, m.total = msg.done, msg.total
		if m.total == 0 {
			return m, nil
		}
		return m, m.bar.SetPercent(float64(m.done) / float64(m.total))
	case doneMsg:
		m.result, m.err = msg.result, msg.err
		m.quitting = true
		return m, tea.Quit
	case progress.FrameMsg:
		bar, cmd := m.bar.Update(msg)
		m.bar = bar.(progress.Model)
		return m, cmd
	}
	return m, nil
}

func (m progressModel) View() string {
	if m.quitting {
		return ""
	}
	var s strings.Builder
	s.WriteString(titleStyle.Render("VRE contact graph"))
	s.WriteString("\n\n")
	if m.total == 0 {
		s.WriteString(labelStyle.Render("  building graph and computing degree ratios..."))
	} else {
		fmt.Fprintf(&s, "  snapshot %s (#%d)\n\n", m.snapshot.Format(time.RFC3339), m.snapshots)
		s.WriteString("  " + m.bar.View() + "\n\n")
		fmt.Fprintf(&s, "  %s / %s pairs", humanize.Comma(int64(m.done)), humanize.Comma(int64(m.total)))
	}
	fmt.Fprintf(&s, "\n  elapsed %s\n", m.now.Sub(m.started).Round(time.Second))
	s.WriteString(helpStyle.Render("q: cancel"))
	return s.String()
}
