// Command vre-graph builds the hospital contact graph from a dataset export,
// computes the infection metrics and writes the result tables.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/dd0wney/cluso-vre/pkg/config"
	"github.com/dd0wney/cluso-vre/pkg/logging"
	"github.com/dd0wney/cluso-vre/pkg/metrics"
	"github.com/dd0wney/cluso-vre/pkg/pipeline"
	"github.com/dd0wney/cluso-vre/pkg/server"
)

type flags struct {
	configPath  string
	dataset     string
	output      string
	snapshot    string
	approximate bool
	maxPath     int
	workers     int
	store       string
	noBetween   bool
	logLevel    string
	metricsAddr string
	tui         bool
}

func parseFlags(args []string) (*flags, *flag.FlagSet, error) {
	f := &flags{}
	fs := flag.NewFlagSet("vre-graph", flag.ContinueOnError)
	fs.StringVar(&f.configPath, "config", "", "YAML configuration file")
	fs.StringVar(&f.dataset, "dataset", "", "Dataset export (JSON)")
	fs.StringVar(&f.output, "output", "", "Output directory")
	fs.StringVar(&f.snapshot, "snapshot", "", "Snapshot time (RFC 3339, default now)")
	fs.BoolVar(&f.approximate, "approximate", false, "Keep path statistics in memory")
	fs.IntVar(&f.maxPath, "max-path-length", 0, "Skip pairs whose shortest path has more nodes (approximate mode)")
	fs.IntVar(&f.workers, "workers", 0, "Source nodes processed concurrently")
	fs.StringVar(&f.store, "store", "", "Node store for exact mode: files or badger")
	fs.BoolVar(&f.noBetween, "no-betweenness", false, "Skip the betweenness pass")
	fs.StringVar(&f.logLevel, "log-level", "", "debug, info, warn or error")
	fs.StringVar(&f.metricsAddr, "metrics", "", "Serve Prometheus metrics on this address")
	fs.BoolVar(&f.tui, "tui", false, "Show live progress")
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	return f, fs, nil
}

// loadConfig reads the config file, if any, and applies the flags that were
// set explicitly.
func loadConfig(f *flags, fs *flag.FlagSet) (*config.Config, error) {
	cfg := config.Default()
	if f.configPath != "" {
		loaded, err := config.Load(f.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	var err error
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "dataset":
			cfg.DatasetPath = f.dataset
		case "output":
			cfg.OutputDir = f.output
		case "snapshot":
			var ts config.Time
			ts, err = config.ParseTime(f.snapshot)
			cfg.SnapshotAt = ts
		case "approximate":
			cfg.Betweenness.Approximate = f.approximate
		case "max-path-length":
			cfg.Betweenness.MaxPathLength = f.maxPath
		case "workers":
			cfg.Betweenness.Workers = f.workers
		case "store":
			cfg.Betweenness.Store = f.store
		case "no-betweenness":
			cfg.Betweenness.Enabled = !f.noBetween
		case "log-level":
			cfg.LogLevel = f.logLevel
		case "metrics":
			cfg.MetricsAddr = f.metricsAddr
		}
	})
	if err != nil {
		return nil, err
	}
	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" && !flagSet(fs, "log-level") {
		cfg.LogLevel = lvl
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func flagSet(fs *flag.FlagSet, name string) bool {
	set := false
	fs.Visit(func(fl *flag.Flag) {
		if fl.Name == name {
			set = true
		}
	})
	return set
}

func main() {
	f, fs, err := parseFlags(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}
	cfg, err := loadConfig(f, fs)
	if err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("configuration: "+err.Error()))
		os.Exit(2)
	}
	if err := run(cfg, f.tui); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render(err.Error()))
		os.Exit(1)
	}
}

func run(cfg *config.Config, tui bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return err
	}

	// The progress view owns the terminal; logs go to a file instead.
	var logOut io.Writer = os.Stderr
	if tui {
		logFile, err := os.Create(filepath.Join(cfg.OutputDir, "vre-graph.log"))
		if err != nil {
			return err
		}
		defer logFile.Close()
		logOut = logFile
	}
	logger := logging.NewJSONLogger(logOut, cfg.Level())
	logging.SetDefaultLogger(logger)

	reg := metrics.DefaultRegistry()
	tracker := pipeline.NewTracker()
	started := time.Now()
	if cfg.MetricsAddr != "" {
		srvCtx, stopServer := context.WithCancel(context.Background())
		srv := server.NewStatusServer(cfg.MetricsAddr, server.StatusHandler(reg, tracker, started), logger)
		served := make(chan struct{})
		go func() {
			defer close(served)
			if err := srv.ListenAndServe(srvCtx); err != nil {
				logger.Error("status server failed", logging.Error(err))
			}
		}()
		defer func() {
			stopServer()
			<-served
		}()
	}

	opts := []pipeline.Option{pipeline.WithLogger(logger), pipeline.WithMetrics(reg), pipeline.WithTracker(tracker)}

	if !tui {
		p, err := pipeline.New(cfg, opts...)
		if err != nil {
			return err
		}
		result, err := p.Run(ctx)
		if result != nil {
			fmt.Println(renderSummary(result))
		}
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	prog := tea.NewProgram(newProgressModel(cancel))
	opts = append(opts, pipeline.WithProgress(func(at time.Time, done, total int) {
		prog.Send(progressMsg{at: at, done: done, total: total})
	}))
	p, err := pipeline.New(cfg, opts...)
	if err != nil {
		return err
	}
	go func() {
		result, err := p.Run(ctx)
		prog.Send(doneMsg{result: result, err: err})
	}()

	final, err := prog.Run()
	if err != nil {
		return err
	}
	m := final.(progressModel)
	if m.result != nil {
		fmt.Println(renderSummary(m.result))
	}
	return m.err
}
