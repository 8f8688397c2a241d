package export

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dd0wney/cluso-vre/pkg/logging"
	"github.com/dd0wney/cluso-vre/pkg/metrics"
)

// RunInfo identifies the pipeline run and snapshot a set of tables belongs to.
type RunInfo struct {
	ID         uuid.UUID
	SnapshotAt time.Time
}

// NewRunInfo stamps a fresh run id.
func NewRunInfo(snapshotAt time.Time) RunInfo {
	return RunInfo{ID: uuid.New(), SnapshotAt: snapshotAt}
}

// Label names the snapshot in file names and object keys.
func (r RunInfo) Label() string {
	return r.SnapshotAt.UTC().Format("2006-01-02T150405Z")
}

// Sink receives finished tables.
type Sink interface {
	Name() string
	Export(ctx context.Context, run RunInfo, table *Table) error
	Close() error
}

// Exporter fans tables out to every configured sink.
type Exporter struct {
	sinks   []Sink
	logger  logging.Logger
	metrics *metrics.Registry
}

// NewExporter returns an exporter over sinks. A nil registry disables metrics.
func NewExporter(logger logging.Logger, reg *metrics.Registry, sinks ...Sink) *Exporter {
	return &Exporter{
		sinks:   sinks,
		logger:  logging.OrNop(logger).With(logging.Component("export")),
		metrics: reg,
	}
}

// Sinks returns the configured sinks.
func (e *Exporter) Sinks() []Sink { return e.sinks }

// Export writes every table to every sink. A failing sink does not stop the
// others; all failures are returned joined.
func (e *Exporter) Export(ctx context.Context, run RunInfo, tables ...*Table) error {
	var errs []error
	for _, sink := range e.sinks {
		for _, table := range tables {
			if err := ctx.Err(); err != nil {
				return errors.Join(append(errs, err)...)
			}
			start := time.Now()
			err := sink.Export(ctx, run, table)
			e.metrics.RecordExport(sink.Name(), table.Name, table.Len(), err)
			if err != nil {
				e.logger.Error("table export failed",
					logging.String("sink", sink.Name()),
					logging.String("table", table.Name),
					logging.Error(err))
				errs = append(errs, fmt.Errorf("%s %s: %w", sink.Name(), table.Name, err))
				continue
			}
			e.logger.Info("table exported",
				logging.String("sink", sink.Name()),
				logging.String("table", table.Name),
				logging.Int("rows", table.Len()),
				logging.Snapshot(run.SnapshotAt),
				logging.Latency(time.Since(start)))
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink.
func (e *Exporter) Close() error {
	var errs []error
	for _, sink := range e.sinks {
		if err := sink.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", sink.Name(), err))
		}
	}
	return errors.Join(errs...)
}
