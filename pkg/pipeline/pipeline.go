// Package pipeline runs a full analysis: load the dataset, build the contact
// graph, annotate infection, compute the metrics for every snapshot and
// export the tables.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/dd0wney/cluso-vre/pkg/accumulator"
	"github.com/dd0wney/cluso-vre/pkg/algorithms"
	"github.com/dd0wney/cluso-vre/pkg/builder"
	"github.com/dd0wney/cluso-vre/pkg/config"
	"github.com/dd0wney/cluso-vre/pkg/dataset"
	"github.com/dd0wney/cluso-vre/pkg/export"
	"github.com/dd0wney/cluso-vre/pkg/logging"
	"github.com/dd0wney/cluso-vre/pkg/metrics"
	"github.com/dd0wney/cluso-vre/pkg/surface"
)

// Stage names used in logs and the stage duration histogram.
const (
	StageLoad        = "load"
	StageBuild       = "build"
	StageAnnotate    = "annotate"
	StageDegree      = "degree_ratio"
	StagePathLengths = "path_lengths"
	StagePageRank    = "pagerank"
	StageSubset      = "subset_betweenness"
	StageBetweenness = "betweenness"
	StageExport      = "export"
)

// Pipeline runs the configured analysis.
type Pipeline struct {
	cfg      *config.Config
	logger   logging.Logger
	metrics  *metrics.Registry
	progress func(snapshot time.Time, done, total int)
	sinks    []export.Sink
	tracker  *Tracker
	now      func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(logger logging.Logger) Option {
	return func(p *Pipeline) { p.logger = logger }
}

// WithMetrics records stage durations and counters in reg.
func WithMetrics(reg *metrics.Registry) Option {
	return func(p *Pipeline) { p.metrics = reg }
}

// WithProgress is called after each batch of pairs of the betweenness pass.
func WithProgress(fn func(snapshot time.Time, done, total int)) Option {
	return func(p *Pipeline) { p.progress = fn }
}

// WithSinks replaces the sinks derived from the export configuration.
func WithSinks(sinks ...export.Sink) Option {
	return func(p *Pipeline) { p.sinks = sinks }
}

// WithTracker publishes the run's progress to t.
func WithTracker(t *Tracker) Option {
	return func(p *Pipeline) { p.tracker = t }
}

// WithClock sets the time source used when no snapshot time is configured.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// New returns a pipeline for cfg.
func New(cfg *config.Config, opts ...Option) (*Pipeline, error) {
	if cfg == nil {
		return nil, errors.New("pipeline: nil config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	p := &Pipeline{cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = logging.OrNop(p.logger).With(logging.Component("pipeline"))
	return p, nil
}

// Result collects the reports of one run.
type Result struct {
	Run        export.RunInfo
	Load       dataset.LoadReport
	Build      *builder.Report
	Inspection surface.Inspection
	Components *algorithms.ComponentsResult
	Removed    int
	Snapshots  []*SnapshotResult
	Duration   time.Duration
}

// SnapshotResult holds the outputs computed for one snapshot.
type SnapshotResult struct {
	At          time.Time
	Nodes       int
	Edges       int
	Propagation surface.PropagationReport
	PathStats   *algorithms.PathStatsReport
	PageRank    *algorithms.PageRankResult
	Tables      []*export.Table
	// ExportErr is set when a sink failed; the other sinks still ran.
	ExportErr error
}

// Table returns the table called name, or nil.
func (s *SnapshotResult) Table(name string) *export.Table {
	for _, t := range s.Tables {
		if t.Name == name {
			return t
		}
	}
	return nil
}

// Run loads the configured dataset and analyses it.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	p.tracker.stage(StageLoad, time.Time{})
	ds, report, err := dataset.LoadFile(p.cfg.DatasetPath, p.logger)
	if err != nil {
		p.tracker.finish(err, true)
		return nil, err
	}
	p.metrics.ObserveStage(StageLoad, time.Since(start))
	result, err := p.RunDataset(ctx, ds)
	if result != nil {
		result.Load = report
	}
	return result, err
}

// RunDataset analyses an already loaded dataset. Export failures do not stop
// the run; they are returned joined once every snapshot has been analysed.
func (p *Pipeline) RunDataset(ctx context.Context, ds *dataset.Dataset) (*Result, error) {
	snapshots := len(p.cfg.Snapshots) + 1
	p.tracker.start(snapshots)
	result, err := p.runDataset(ctx, ds)
	p.tracker.finish(err, err != nil && (result == nil || len(result.Snapshots) < snapshots))
	return result, err
}

func (p *Pipeline) runDataset(ctx context.Context, ds *dataset.Dataset) (*Result, error) {
	start := time.Now()
	snapshotAt := p.cfg.Snapshot(p.now())
	result := &Result{Run: export.NewRunInfo(snapshotAt)}
	logger := p.logger.With(logging.String("run_id", result.Run.ID.String()))
	logger.Info("pipeline started",
		logging.Snapshot(snapshotAt),
		logging.Int("patients", len(ds.Patients)),
		logging.Int("snapshots", len(p.cfg.Snapshots)+1))

	g, err := p.build(ds, snapshotAt, result)
	if err != nil {
		return nil, err
	}

	graphs := []*surface.Graph{g}
	if len(p.cfg.Snapshots) > 0 {
		graphs, err = g.CreateModelSnapshots(p.cfg.SnapshotTimes())
		if err != nil {
			return nil, err
		}
	}

	exporter, err := p.exporter(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := exporter.Close(); err != nil {
			logger.Warn("closing sinks failed", logging.Error(err))
		}
	}()

	var exportErrs []error
	for _, sg := range graphs {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		at, _ := sg.SnapshotAt()
		run := result.Run
		run.SnapshotAt = at

		snap, err := p.analyse(ctx, sg, run)
		if err != nil {
			return result, fmt.Errorf("snapshot %s: %w", at.Format(time.RFC3339), err)
		}
		p.tracker.stage(StageExport, at)
		exportStart := time.Now()
		snap.ExportErr = exporter.Export(ctx, run, snap.Tables...)
		p.metrics.ObserveStage(StageExport, time.Since(exportStart))
		if snap.ExportErr != nil {
			exportErrs = append(exportErrs, snap.ExportErr)
		}
		result.Snapshots = append(result.Snapshots, snap)
		p.tracker.snapshotDone()
	}

	result.Duration = time.Since(start)
	logger.Info("pipeline finished",
		logging.Int("snapshots", len(result.Snapshots)),
		logging.Int("export_failures", len(exportErrs)),
		logging.Latency(result.Duration))
	return result, errors.Join(exportErrs...)
}

func (p *Pipeline) build(ds *dataset.Dataset, snapshotAt time.Time, result *Result) (*surface.Graph, error) {
	kinds, err := p.cfg.EdgeKindList()
	if err != nil {
		return nil, err
	}
	start := time.Now()
	b, err := builder.New(builder.Options{
		SubsetMode:  p.cfg.SubsetMode,
		SnapshotAt:  snapshotAt,
		WindowStart: p.cfg.WindowStart.Time,
		EdgeKinds:   kinds,
		Classifier:  p.cfg.Classifier(),
		Logger:      p.logger,
		Metrics:     p.metrics,
	})
	if err != nil {
		return nil, err
	}
	g, report := b.Build(ds)
	p.metrics.ObserveStage(StageBuild, time.Since(start))
	result.Build = report

	result.Inspection = g.Inspect()
	result.Inspection.Log(p.logger)
	result.Components = algorithms.ConnectedComponents(g)
	p.logger.Info("connected components",
		logging.Count(len(result.Components.Components)),
		logging.Int("reachable_pairs", result.Components.ReachablePairs()))

	result.Removed = g.RemoveIsolatedNodes()
	return g, nil
}

func (p *Pipeline) analyse(ctx context.Context, g *surface.Graph, run export.RunInfo) (*SnapshotResult, error) {
	logger := p.logger.With(logging.Snapshot(run.SnapshotAt))
	snap := &SnapshotResult{At: run.SnapshotAt, Nodes: g.NodeCount(), Edges: g.EdgeCount()}
	p.metrics.RecordGraph(run.Label(), snap.Nodes, snap.Edges)

	stage := func(name string, fn func() error) error {
		p.tracker.stage(name, run.SnapshotAt)
		start := time.Now()
		err := fn()
		p.metrics.ObserveStage(name, time.Since(start))
		if err != nil {
			logger.Error("stage failed", logging.Stage(name), logging.Error(err))
		}
		return err
	}

	if err := stage(StageAnnotate, func() error {
		snap.Propagation = g.Propagate(surface.PropagationOptions{
			Distance:         p.cfg.Infection.Distance,
			ForwardInTime:    p.cfg.Infection.ForwardInTime,
			ColonizationLead: p.cfg.Infection.ColonizationLead.Std(),
		})
		p.metrics.RecordAnnotation(snap.Propagation.Infected, snap.Propagation.Clean, 0)
		return nil
	}); err != nil {
		return nil, err
	}

	if err := stage(StageDegree, func() error {
		patient, err := algorithms.PatientDegreeRatio(g)
		if err != nil {
			return err
		}
		total, err := algorithms.TotalDegreeRatio(g)
		if err != nil {
			return err
		}
		snap.Tables = append(snap.Tables,
			export.PatientDegreeRatioTable(patient),
			export.TotalDegreeRatioTable(total),
			export.InfectionDegreeTable(total))
		return nil
	}); err != nil {
		return nil, err
	}

	focus, ok := presentFocus(g, p.cfg.Betweenness.FocusNodes)
	if !ok {
		logger.Warn("no focus node present in snapshot, path metrics skipped",
			logging.Count(len(p.cfg.Betweenness.FocusNodes)))
	}

	if p.cfg.Centrality.PathLengths && ok {
		if err := stage(StagePathLengths, func() error {
			lengths, err := algorithms.ShortestPathLengths(ctx, g, focus, p.logger)
			if err != nil {
				return err
			}
			snap.Tables = append(snap.Tables, export.PathLengthTable(lengths))
			return nil
		}); err != nil {
			return nil, err
		}
	}

	if p.cfg.Centrality.PageRank {
		if err := stage(StagePageRank, func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			opts := algorithms.DefaultPageRankOptions()
			opts.DampingFactor = p.cfg.Centrality.Damping
			snap.PageRank = algorithms.InfectionPageRank(g, opts)
			if !snap.PageRank.Converged {
				logger.Warn("pagerank did not converge", logging.Int("iterations", snap.PageRank.Iterations))
			}
			snap.Tables = append(snap.Tables, export.CentralityTable(export.TablePageRank, snap.PageRank.Scores))
			return nil
		}); err != nil {
			return nil, err
		}
	}

	if p.cfg.Centrality.SubsetBetweenness {
		if err := stage(StageSubset, func() error {
			scores, err := algorithms.SubsetBetweenness(ctx, g, p.logger)
			if err != nil {
				return err
			}
			snap.Tables = append(snap.Tables, export.CentralityTable(export.TableSubsetBetweenness, scores))
			return nil
		}); err != nil {
			return nil, err
		}
	}

	if p.cfg.Betweenness.Enabled && ok {
		if err := stage(StageBetweenness, func() error {
			return p.betweenness(ctx, g, run, focus, snap)
		}); err != nil {
			return nil, err
		}
	}
	return snap, nil
}

// betweenness runs the shortest path statistics pass. Exact mode opens a
// node store under the output directory, one per run and snapshot.
func (p *Pipeline) betweenness(ctx context.Context, g *surface.Graph, run export.RunInfo, focus []string, snap *SnapshotResult) error {
	bc := p.cfg.Betweenness
	if !bc.Approximate {
		store, err := accumulator.Open(accumulator.Options{
			Backend:  bc.Store,
			Dir:      filepath.Join(p.cfg.OutputDir, "nodes", run.ID.String(), run.Label()),
			Compress: bc.Compress,
			Logger:   p.logger,
		})
		if err != nil {
			return err
		}
		defer store.Close()
		if err := g.WriteNodeFiles(store); err != nil {
			return err
		}
	}

	opts := algorithms.PathStatsOptions{
		FocusNodes:    focus,
		Approximate:   bc.Approximate,
		MaxPathLength: bc.MaxPathLength,
		Workers:       bc.Workers,
		ProgressEvery: bc.ProgressEvery,
		Logger:        p.logger,
		Metrics:       p.metrics,
	}
	opts.Progress = func(done, total int) {
		p.tracker.progress(done, total)
		if p.progress != nil {
			p.progress(run.SnapshotAt, done, total)
		}
	}
	report, err := algorithms.UpdateShortestPathStatistics(ctx, g, opts)
	if err != nil {
		return err
	}
	snap.PathStats = report

	scores, err := algorithms.NodeBetweenness(g)
	if err != nil {
		return err
	}
	snap.Tables = append(snap.Tables, export.NodeBetweennessTable(scores))
	return nil
}

// presentFocus drops focus ids the graph does not hold; earlier snapshots
// prune nodes that had no contact yet. ok is false when a focus was
// configured and none of it is present.
func presentFocus(g *surface.Graph, focus []string) (present []string, ok bool) {
	if len(focus) == 0 {
		return nil, true
	}
	for _, id := range focus {
		if _, found := g.IndexOf(id); found {
			present = append(present, id)
		}
	}
	return present, len(present) > 0
}

// exporter builds the configured sinks: CSV under the output directory, and
// PostgreSQL and S3 when configured.
func (p *Pipeline) exporter(ctx context.Context) (*export.Exporter, error) {
	if p.sinks != nil {
		return export.NewExporter(p.logger, p.metrics, p.sinks...), nil
	}

	sep, err := export.ParseSeparator(p.cfg.Export.CSVSeparator)
	if err != nil {
		return nil, err
	}
	csvSink, err := export.NewCSVSink(p.cfg.OutputDir, sep)
	if err != nil {
		return nil, err
	}
	sinks := []export.Sink{csvSink}

	if url := p.cfg.Export.PostgresURL; url != "" {
		pg, err := export.NewPostgresSink(ctx, url)
		if err != nil {
			closeAll(sinks)
			return nil, err
		}
		sinks = append(sinks, pg)
	}
	if s3cfg := p.cfg.Export.S3; s3cfg.Bucket != "" {
		opts := export.S3Options{
			Bucket:   s3cfg.Bucket,
			Region:   s3cfg.Region,
			Endpoint: s3cfg.Endpoint,
			Prefix:   s3cfg.Prefix,
		}
		client, err := export.NewS3Client(ctx, opts)
		if err != nil {
			closeAll(sinks)
			return nil, err
		}
		sinks = append(sinks, export.NewS3Sink(client, opts, sep))
	}
	return export.NewExporter(p.logger, p.metrics, sinks...), nil
}

func closeAll(sinks []export.Sink) {
	for _, s := range sinks {
		_ = s.Close()
	}
}
