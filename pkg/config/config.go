// Package config loads the pipeline configuration from YAML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/dd0wney/cluso-vre/pkg/accumulator"
	"github.com/dd0wney/cluso-vre/pkg/algorithms"
	"github.com/dd0wney/cluso-vre/pkg/builder"
	"github.com/dd0wney/cluso-vre/pkg/logging"
	"github.com/dd0wney/cluso-vre/pkg/surface"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterValidation("edgekind", func(fl validator.FieldLevel) bool {
		_, err := surface.ParseEdgeKind(fl.Field().String())
		return err == nil
	})
	validate.RegisterValidation("loglevel", func(fl validator.FieldLevel) bool {
		_, err := logging.LookupLevel(fl.Field().String())
		return err == nil
	})
}

// Config is the full pipeline configuration.
type Config struct {
	DatasetPath string `yaml:"dataset_path" validate:"required"`
	OutputDir   string `yaml:"output_dir" validate:"required"`
	SnapshotAt  Time   `yaml:"snapshot_at"`
	// Snapshots are earlier cut-offs analysed in addition to SnapshotAt.
	Snapshots   []Time `yaml:"snapshots"`
	WindowStart Time   `yaml:"window_start"`
	SubsetMode  string `yaml:"subset_mode" validate:"oneof=relevant_case"`

	EdgeKinds     []string `yaml:"edge_kinds" validate:"omitempty,max=6,dive,edgekind"`
	PositiveCodes []string `yaml:"positive_codes" validate:"dive,required"`
	NegativeCodes []string `yaml:"negative_codes" validate:"dive,required"`

	Infection   InfectionConfig   `yaml:"infection"`
	Betweenness BetweennessConfig `yaml:"betweenness"`
	Centrality  CentralityConfig  `yaml:"centrality"`
	Export      ExportConfig      `yaml:"export"`

	LogLevel    string `yaml:"log_level" validate:"loglevel"`
	MetricsAddr string `yaml:"metrics_addr" validate:"omitempty,hostname_port"`
}

// InfectionConfig controls edge annotation.
type InfectionConfig struct {
	Distance         int      `yaml:"distance" validate:"min=1,max=10"`
	ForwardInTime    bool     `yaml:"forward_in_time"`
	ColonizationLead Duration `yaml:"colonization_lead" validate:"min=0"`
}

// BetweennessConfig controls the shortest path statistics pass.
type BetweennessConfig struct {
	Enabled       bool     `yaml:"enabled"`
	Approximate   bool     `yaml:"approximate"`
	MaxPathLength int      `yaml:"max_path_length" validate:"min=0"`
	FocusNodes    []string `yaml:"focus_nodes" validate:"dive,required"`
	Store         string   `yaml:"store" validate:"oneof=files badger"`
	Compress      bool     `yaml:"compress"`
	Workers       int      `yaml:"workers" validate:"min=1,max=1024"`
	ProgressEvery int      `yaml:"progress_every" validate:"min=1"`
}

// CentralityConfig toggles the supplementary metrics.
type CentralityConfig struct {
	PathLengths       bool    `yaml:"path_lengths"`
	PageRank          bool    `yaml:"pagerank"`
	SubsetBetweenness bool    `yaml:"subset_betweenness"`
	Damping           float64 `yaml:"damping" validate:"gt=0,lt=1"`
}

// ExportConfig lists the sinks tables are written to. CSV is always on.
type ExportConfig struct {
	CSVSeparator string   `yaml:"csv_separator" validate:"max=2"`
	PostgresURL  string   `yaml:"postgres_url" validate:"omitempty,url"`
	S3           S3Config `yaml:"s3"`
}

// S3Config names the bucket CSV exports are uploaded to. An empty bucket
// disables the upload.
type S3Config struct {
	Bucket   string `yaml:"bucket"`
	Region   string `yaml:"region" validate:"required_with=Bucket"`
	Endpoint string `yaml:"endpoint" validate:"omitempty,url"`
	Prefix   string `yaml:"prefix"`
}

// Default returns the configuration used for keys a file leaves out.
func Default() *Config {
	return &Config{
		OutputDir:  "output",
		SubsetMode: builder.SubsetRelevantCase,
		Infection: InfectionConfig{
			Distance: 1,
		},
		Betweenness: BetweennessConfig{
			Enabled:       true,
			Store:         accumulator.BackendFiles,
			Workers:       1,
			ProgressEvery: algorithms.DefaultProgressEvery,
		},
		Centrality: CentralityConfig{
			PathLengths:       true,
			PageRank:          true,
			SubsetBetweenness: true,
			Damping:           algorithms.DefaultPageRankOptions().DampingFactor,
		},
		Export: ExportConfig{
			CSVSeparator: ",",
		},
		LogLevel: "info",
	}
}

// Load reads path over the defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result. Unknown
// keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks struct tags and cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return formatValidationError(err)
	}
	snapshot := c.Snapshot(time.Now())
	for _, ts := range c.Snapshots {
		if ts.Time.After(snapshot) {
			return fmt.Errorf("Snapshots: %s is after snapshot_at %s",
				ts.Time.Format(time.RFC3339), snapshot.Format(time.RFC3339))
		}
	}
	if !c.WindowStart.IsZero() && !c.WindowStart.Before(snapshot) {
		return fmt.Errorf("WindowStart: must be before snapshot_at")
	}
	if _, err := c.EdgeKindList(); err != nil {
		return err
	}
	return nil
}

// Snapshot returns the configured snapshot time, or now when unset.
func (c *Config) Snapshot(now time.Time) time.Time {
	if c.SnapshotAt.IsZero() {
		return now
	}
	return c.SnapshotAt.Time
}

// SnapshotTimes returns the additional snapshot cut-offs.
func (c *Config) SnapshotTimes() []time.Time {
	out := make([]time.Time, len(c.Snapshots))
	for i, ts := range c.Snapshots {
		out[i] = ts.Time
	}
	return out
}

// EdgeKindList parses the enabled edge kinds. Empty means all six.
func (c *Config) EdgeKindList() ([]surface.EdgeKind, error) {
	kinds := make([]surface.EdgeKind, 0, len(c.EdgeKinds))
	seen := make(map[surface.EdgeKind]bool, len(c.EdgeKinds))
	for _, name := range c.EdgeKinds {
		k, err := surface.ParseEdgeKind(name)
		if err != nil {
			return nil, fmt.Errorf("EdgeKinds: %w", err)
		}
		if !seen[k] {
			seen[k] = true
			kinds = append(kinds, k)
		}
	}
	return kinds, nil
}

// Classifier builds the screening classifier from the code lists.
func (c *Config) Classifier() surface.ScreeningClassifier {
	return surface.NewScreeningClassifier(c.PositiveCodes, c.NegativeCodes)
}

// Level returns the configured log level.
func (c *Config) Level() logging.Level {
	return logging.ParseLevel(c.LogLevel)
}

func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err
	}

	for _, e := range validationErrs {
		field := e.Namespace()
		if i := strings.IndexByte(field, '.'); i >= 0 {
			field = field[i+1:]
		}
		switch e.Tag() {
		case "required":
			return fmt.Errorf("%s: field is required", field)
		case "min":
			return fmt.Errorf("%s: must be at least %s", field, e.Param())
		case "max":
			return fmt.Errorf("%s: must not exceed %s", field, e.Param())
		case "oneof":
			return fmt.Errorf("%s: must be one of [%s], got %q", field, e.Param(), fmt.Sprint(e.Value()))
		case "edgekind":
			return fmt.Errorf("%s: unknown edge kind %q", field, fmt.Sprint(e.Value()))
		default:
			return fmt.Errorf("%s: validation failed (%s)", field, e.Tag())
		}
	}
	return err
}

// Time is an RFC 3339 timestamp. Dates without a time of day are accepted.
type Time struct {
	time.Time
}

var timeLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"}

// ParseTime parses s with the accepted layouts.
func ParseTime(s string) (Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Time{t}, nil
		}
	}
	return Time{}, fmt.Errorf("invalid timestamp %q", s)
}

func (t *Time) UnmarshalYAML(node *yaml.Node) error {
	if node.Value == "" {
		*t = Time{}
		return nil
	}
	parsed, err := ParseTime(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*t = parsed
	return nil
}

func (t Time) MarshalYAML() (any, error) {
	if t.IsZero() {
		return "", nil
	}
	return t.Format(time.RFC3339), nil
}

// Duration accepts Go duration strings plus a day suffix, e.g. "2d".
type Duration time.Duration

// ParseDuration parses s as a Go duration or a whole number of days.
func ParseDuration(s string) (Duration, error) {
	s = strings.TrimSpace(s)
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		return Duration(time.Duration(n) * 24 * time.Hour), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return Duration(d), nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := ParseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = parsed
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }
