package accumulator

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/cluso-vre/pkg/algorithms"
	"github.com/dd0wney/cluso-vre/pkg/surface"
)

// loader is implemented by every store in this package.
type loader interface {
	surface.NodeStore
	Load(nodeID string) (surface.NodeDocument, error)
}

var backends = []struct {
	name string
	open func(t *testing.T) loader
}{
	{"files", func(t *testing.T) loader {
		s, err := NewFileStore(t.TempDir(), FileOptions{})
		require.NoError(t, err)
		return s
	}},
	{"files compressed", func(t *testing.T) loader {
		s, err := NewFileStore(t.TempDir(), FileOptions{Compress: true})
		require.NoError(t, err)
		return s
	}},
	{"badger in memory", func(t *testing.T) loader {
		s, err := NewBadgerStore(BadgerOptions{InMemory: true})
		require.NoError(t, err)
		return s
	}},
	{"badger on disk", func(t *testing.T) loader {
		s, err := NewBadgerStore(BadgerOptions{Dir: t.TempDir()})
		require.NoError(t, err)
		return s
	}},
}

func doc(id string) surface.NodeDocument {
	return surface.NodeDocument{
		ID:         id,
		Kind:       surface.KindRoom,
		Attributes: json.RawMessage(`{"ward":"W1"}`),
	}
}

func collect(t *testing.T, s surface.NodeStore, id string) map[string]surface.PairStat {
	t.Helper()
	out := make(map[string]surface.PairStat)
	require.NoError(t, s.Stats(id, func(k string, v surface.PairStat) error {
		out[k] = v
		return nil
	}))
	return out
}

func TestStores(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			t.Run("round trip", func(t *testing.T) {
				s := b.open(t)
				defer s.Close()

				require.NoError(t, s.PutNode(doc("R1")))
				require.NoError(t, s.PutStat("R1", "SP-A-B", surface.PairStat{Through: 1, Total: 2}))
				require.NoError(t, s.PutStat("R1", "SP-A-C", surface.PairStat{Through: 3, Total: 3}))
				require.NoError(t, s.PutStat("R1", "SP-A-B", surface.PairStat{Through: 2, Total: 2}))

				assert.Equal(t, map[string]surface.PairStat{
					"SP-A-B": {Through: 2, Total: 2},
					"SP-A-C": {Through: 3, Total: 3},
				}, collect(t, s, "R1"))

				loaded, err := s.Load("R1")
				require.NoError(t, err)
				assert.Equal(t, "R1", loaded.ID)
				assert.Equal(t, surface.KindRoom, loaded.Kind)
				assert.JSONEq(t, `{"ward":"W1"}`, string(loaded.Attributes))
				assert.Len(t, loaded.Stats, 2)
			})

			t.Run("put node resets statistics", func(t *testing.T) {
				s := b.open(t)
				defer s.Close()

				require.NoError(t, s.PutNode(doc("R1")))
				require.NoError(t, s.PutStat("R1", "SP-A-B", surface.PairStat{Through: 1, Total: 1}))
				require.NoError(t, s.PutNode(doc("R1")))
				assert.Empty(t, collect(t, s, "R1"))
			})

			t.Run("statistics are per node", func(t *testing.T) {
				s := b.open(t)
				defer s.Close()

				require.NoError(t, s.PutNode(doc("a")))
				require.NoError(t, s.PutNode(doc("ab")))
				require.NoError(t, s.PutStat("ab", "SP-x-y", surface.PairStat{Through: 1, Total: 1}))
				assert.Empty(t, collect(t, s, "a"))
				assert.Len(t, collect(t, s, "ab"), 1)
			})

			t.Run("missing document", func(t *testing.T) {
				s := b.open(t)
				defer s.Close()

				err := s.PutStat("ghost", "SP-A-B", surface.PairStat{Through: 1, Total: 1})
				require.Error(t, err)
				assert.True(t, IsNoDocument(err))
				var se *StoreError
				require.True(t, errors.As(err, &se))
				assert.Equal(t, "ghost", se.NodeID)
				assert.Equal(t, "SP-A-B", se.Key)
			})

			t.Run("closed store", func(t *testing.T) {
				s := b.open(t)
				require.NoError(t, s.Close())
				err := s.PutNode(doc("R1"))
				assert.ErrorIs(t, err, ErrStoreClosed)
			})

			t.Run("ids with path separators", func(t *testing.T) {
				s := b.open(t)
				defer s.Close()

				require.NoError(t, s.PutNode(doc("BH N 125/2")))
				require.NoError(t, s.PutStat("BH N 125/2", "SP-A-B", surface.PairStat{Through: 1, Total: 1}))
				assert.Len(t, collect(t, s, "BH N 125/2"), 1)
			})
		})
	}
}

func TestFileName(t *testing.T) {
	tests := []struct {
		id         string
		compressed bool
		want       string
	}{
		{"R1", false, "R1.json"},
		{"BH N 125/2", false, "BH N 125%2F2.json"},
		{`a\b`, true, "a%5Cb.json.sz"},
		{"..", false, "%2E%2E.json"},
		{"R@1", false, "R@1.json"},
		{"R%2F1", false, "R%252F1.json"},
	}
	for _, tt := range tests {
		if got := FileName(tt.id, tt.compressed); got != tt.want {
			t.Errorf("FileName(%q, %v) = %q, want %q", tt.id, tt.compressed, got, tt.want)
		}
	}
}

func TestFileName_Injective(t *testing.T) {
	ids := []string{"R/1", "R@1", "R%2F1", "R\\1", "R%5C1", ".", "..", "%2E", "@.", "@..", "R\x001", "R%001"}
	seen := make(map[string]string, len(ids))
	for _, id := range ids {
		name := FileName(id, false)
		if other, ok := seen[name]; ok {
			t.Errorf("ids %q and %q share file %q", other, id, name)
		}
		seen[name] = id
	}
}

func TestFileStore_SimilarIDsKeepSeparateDocuments(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir, FileOptions{})
	require.NoError(t, err)

	require.NoError(t, s.PutNode(doc("R/1")))
	require.NoError(t, s.PutNode(doc("R@1")))
	require.NoError(t, s.PutStat("R/1", "SP-P-R@1", surface.PairStat{Through: 1, Total: 1}))
	require.NoError(t, s.PutStat("R@1", "SP-P-R/1", surface.PairStat{Through: 1, Total: 2}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestFileStore_DocumentLayout(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir, FileOptions{})
	require.NoError(t, err)

	require.NoError(t, s.PutNode(doc("W1/R1")))
	require.NoError(t, s.PutStat("W1/R1", "SP-A-B", surface.PairStat{Through: 1, Total: 4}))

	raw, err := os.ReadFile(filepath.Join(dir, "W1%2FR1.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"W1/R1","type":"Room","attributes":{"ward":"W1"},"bw_stats":{"SP-A-B":[1,4]}}`, string(raw))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files left behind")
}

func TestFileStore_CorruptDocument(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir, FileOptions{})
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "R1.json"), []byte("{not json"), 0o644))
	err = s.PutStat("R1", "SP-A-B", surface.PairStat{Through: 1, Total: 1})
	assert.ErrorIs(t, err, ErrCorruptDocument)
}

func TestOpen(t *testing.T) {
	s, err := Open(Options{Backend: "files", Dir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, s)

	s, err = Open(Options{Backend: "badger", InMemory: true})
	require.NoError(t, err)
	assert.IsType(t, &BadgerStore{}, s)
	require.NoError(t, s.Close())

	_, err = Open(Options{Backend: "redis"})
	assert.ErrorIs(t, err, ErrUnknownBackend)
}

// The exact statistics pass over either store must agree with the
// in-memory pass.
func TestExactBetweennessOverStores(t *testing.T) {
	build := func() *surface.Graph {
		g := surface.NewGraph()
		epoch := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		g.MarkBuilt(epoch.Add(100 * time.Hour))
		c := surface.NewScreeningClassifier(nil, nil)
		for _, id := range []string{"P1", "P2", "P3"} {
			g.AddNode(id, c.PatientAttributes(nil))
		}
		// Room ids that a lossy file-name escape would fold together.
		for _, id := range []string{"R/1", "R@1"} {
			g.AddNode(id, surface.RoomAttributes{WardID: "W1"})
		}
		g.AddNode("D1/x", surface.DeviceAttributes{Name: "pump"})
		for i, e := range [][2]string{{"P1", "R/1"}, {"P2", "R/1"}, {"P2", "R@1"}, {"P3", "R@1"}, {"P1", "D1/x"}, {"P3", "D1/x"}} {
			from := epoch.Add(time.Duration(i) * time.Hour)
			g.AddEdge(e[0], e[1], from, from.Add(time.Hour), surface.OriginStay)
		}
		return g
	}

	reference := build()
	_, err := algorithms.UpdateShortestPathStatistics(context.Background(), reference, algorithms.PathStatsOptions{Approximate: true})
	require.NoError(t, err)
	want, err := algorithms.NodeBetweenness(reference)
	require.NoError(t, err)

	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t)
			defer s.Close()

			g := build()
			require.NoError(t, g.WriteNodeFiles(s))
			_, err := algorithms.UpdateShortestPathStatistics(context.Background(), g, algorithms.PathStatsOptions{Workers: 2})
			require.NoError(t, err)

			got, err := algorithms.NodeBetweenness(g)
			require.NoError(t, err)
			require.Len(t, got, len(want))
			for i := range want {
				assert.Equal(t, want[i].NodeID, got[i].NodeID)
				assert.InDelta(t, want[i].Score, got[i].Score, 1e-9, want[i].NodeID)
			}
		})
	}
}
