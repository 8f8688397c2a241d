package export

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/cluso-vre/pkg/algorithms"
	"github.com/dd0wney/cluso-vre/pkg/metrics"
	"github.com/dd0wney/cluso-vre/pkg/surface"
)

var run = RunInfo{
	ID:         uuid.MustParse("7b0c6f0e-7f5c-4a53-9a1d-2f0e5c3b8a11"),
	SnapshotAt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
}

func degreeRecords() []algorithms.DegreeRatio {
	return []algorithms.DegreeRatio{
		{NodeID: "D1", Kind: surface.KindDevice, RiskStatus: "neg", Total: 1},
		{NodeID: "R1", Kind: surface.KindRoom, RiskStatus: "neg", Ratio: 2.0 / 3.0, Defined: true, Infected: 2, Considered: 3, Total: 4},
		{NodeID: "X1", Kind: surface.KindPatient, RiskStatus: "pos", Ratio: 1, Defined: true, Infected: 1, Considered: 1, Total: 1},
	}
}

func TestPatientDegreeRatioTable(t *testing.T) {
	table := PatientDegreeRatioTable(degreeRecords())

	assert.Equal(t, []string{"Node ID", "Node Type", "Degree Ratio", "Number of Infected Edges", "Total Patient Edges", "Total Edges"}, table.ColumnNames())
	require.Equal(t, 3, table.Len())
	assert.Equal(t, []any{"X1", "Patient", 1.0, 1, 1, 1}, table.Rows[0])
	assert.Equal(t, []any{"R1", "Room", 2.0 / 3.0, 2, 3, 4}, table.Rows[1])
	assert.Equal(t, []any{"D1", "Device", nil, 0, 0, 1}, table.Rows[2])
}

func TestTotalDegreeRatioTable(t *testing.T) {
	table := TotalDegreeRatioTable(degreeRecords())
	assert.Equal(t, []string{"Node ID", "Node Type", "Total Degree Ratio", "Number of Infected Edges", "Total Edges"}, table.ColumnNames())
	assert.Equal(t, "X1", table.Rows[0][0])

	infection := InfectionDegreeTable(degreeRecords())
	assert.Equal(t, "Risk Status", infection.Columns[2].Name)
	assert.Equal(t, "pos", infection.Rows[0][2])
}

func TestNodeBetweennessTable(t *testing.T) {
	scores := []algorithms.NodeScore{
		{NodeID: "P1", Kind: surface.KindPatient, Score: 0},
		{NodeID: "R1", Kind: surface.KindRoom, Score: 2.5},
	}
	table := NodeBetweennessTable(scores)

	assert.Equal(t, []string{"Node ID", "Node Type", "Betweenness Score"}, table.ColumnNames())
	assert.Equal(t, []any{"R1", "Room", 2.5}, table.Rows[0])
	assert.Equal(t, "P1", scores[0].NodeID, "input is not reordered")
}

func TestWriteCSV(t *testing.T) {
	var b strings.Builder
	require.NoError(t, WriteCSV(&b, PatientDegreeRatioTable(degreeRecords()), ';'))

	lines := strings.Split(strings.TrimSpace(b.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "Node ID;Node Type;Degree Ratio;Number of Infected Edges;Total Patient Edges;Total Edges", lines[0])
	assert.Equal(t, "X1;Patient;1;1;1;1", lines[1])
	assert.Equal(t, "D1;Device;NULL;0;0;1", lines[3])
}

func TestParseSeparator(t *testing.T) {
	tests := []struct {
		in      string
		want    rune
		wantErr bool
	}{
		{"", ',', false},
		{",", ',', false},
		{";", ';', false},
		{`\t`, '\t', false},
		{"ab", 0, true},
		{`"`, 0, true},
	}
	for _, tt := range tests {
		got, err := ParseSeparator(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestSQLName(t *testing.T) {
	assert.Equal(t, "number_of_infected_edges", SQLName("Number of Infected Edges"))
	assert.Equal(t, "node_1_id", SQLName("Node 1 ID"))
	assert.Equal(t, "degree_ratio", SQLName(" Degree Ratio "))
}

func TestCreateTableSQL(t *testing.T) {
	ddl := CreateTableSQL(NodeBetweennessTable(nil))
	assert.Contains(t, ddl, `CREATE TABLE IF NOT EXISTS "vre_node_betweenness"`)
	assert.Contains(t, ddl, `"betweenness_score" DOUBLE PRECISION`)
	assert.Contains(t, ddl, `"node_id" TEXT`)
	assert.Contains(t, ddl, "run_id UUID NOT NULL")

	assert.Equal(t, []string{"run_id", "snapshot_at", "node_id", "node_type", "betweenness_score"},
		CopyColumns(NodeBetweennessTable(nil)))
}

func TestCSVSink(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewCSVSink(dir, 0)
	require.NoError(t, err)

	table := NodeBetweennessTable([]algorithms.NodeScore{{NodeID: "R1", Kind: surface.KindRoom, Score: 1}})
	require.NoError(t, sink.Export(context.Background(), run, table))

	path := sink.Path(run, table)
	assert.True(t, strings.HasSuffix(path, "2024-03-01T120000Z_node_betweenness.csv"), path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Node ID,Node Type,Betweenness Score\nR1,Room,1\n", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

type fakePutter struct {
	keys   []string
	bodies []string
	err    error
}

func (f *fakePutter) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.keys = append(f.keys, *in.Key)
	f.bodies = append(f.bodies, string(body))
	return &s3.PutObjectOutput{}, nil
}

func TestS3Sink(t *testing.T) {
	putter := &fakePutter{}
	sink := NewS3Sink(putter, S3Options{Bucket: "exports", Prefix: "vre/runs"}, ',')

	table := PathLengthTable([]algorithms.PathLength{{Source: "P1", Target: "P2", Length: 3}})
	require.NoError(t, sink.Export(context.Background(), run, table))

	require.Len(t, putter.keys, 1)
	assert.Equal(t, "vre/runs/7b0c6f0e-7f5c-4a53-9a1d-2f0e5c3b8a11/2024-03-01T120000Z_shortest_path_lengths.csv", putter.keys[0])
	assert.Equal(t, "Node 1 ID,Node 2 ID,Path lengths\nP1,P2,3\n", putter.bodies[0])
}

type failingSink struct{ err error }

func (f failingSink) Name() string                                  { return "broken" }
func (f failingSink) Export(context.Context, RunInfo, *Table) error { return f.err }
func (f failingSink) Close() error                                  { return nil }

func TestExporter_ContinuesPastFailingSink(t *testing.T) {
	boom := errors.New("connection refused")
	putter := &fakePutter{}
	reg := metrics.NewRegistry()
	exp := NewExporter(nil, reg, failingSink{boom}, NewS3Sink(putter, S3Options{Bucket: "b"}, ','))

	tables := []*Table{
		NodeBetweennessTable(nil),
		TotalDegreeRatioTable(degreeRecords()),
	}
	err := exp.Export(context.Background(), run, tables...)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Len(t, putter.keys, 2, "healthy sink still receives every table")
	require.NoError(t, exp.Close())
}

func TestPostgresSink_Integration(t *testing.T) {
	url := os.Getenv("VRE_TEST_POSTGRES_URL")
	if url == "" {
		t.Skip("VRE_TEST_POSTGRES_URL not set")
	}
	ctx := context.Background()
	sink, err := NewPostgresSink(ctx, url)
	require.NoError(t, err)
	defer sink.Close()

	table := PatientDegreeRatioTable(degreeRecords())
	require.NoError(t, sink.Export(ctx, run, table))
	require.NoError(t, sink.Export(ctx, run, table), "re-export replaces rows")

	var n int
	require.NoError(t, sink.pool.QueryRow(ctx,
		`SELECT count(*) FROM "vre_patient_degree_ratio" WHERE run_id = $1`, run.ID).Scan(&n))
	assert.Equal(t, 3, n)
}
