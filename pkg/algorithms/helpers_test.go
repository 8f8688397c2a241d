package algorithms

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dd0wney/cluso-vre/pkg/surface"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

var classifier = surface.NewScreeningClassifier(nil, nil)

func positive() surface.PatientAttributes {
	return classifier.PatientAttributes([]surface.RiskEntry{{Date: epoch, Result: "32"}})
}

func negative() surface.PatientAttributes {
	return classifier.PatientAttributes([]surface.RiskEntry{{Date: epoch, Result: "nn"}})
}

func roomAttrs() surface.RoomAttributes {
	return surface.RoomAttributes{BuildingID: surface.NullValue, WardID: "W1", RoomID: surface.NullValue}
}

// testGraph builds a graph from "A-B" edge specs. Node kinds come from the
// first letter of the id: P (negative patient), X (positive patient),
// R (room), D (device), E (employee).
func testGraph(t testing.TB, edges ...string) *surface.Graph {
	t.Helper()
	g := surface.NewGraph()
	g.MarkBuilt(epoch.Add(1000 * time.Hour))
	for i, pair := range edges {
		u, v, ok := strings.Cut(pair, "-")
		require.True(t, ok, "bad edge pair %q", pair)
		addNode(t, g, u)
		addNode(t, g, v)
		from := epoch.Add(time.Duration(i) * time.Hour)
		_, ok = g.AddEdge(u, v, from, from.Add(time.Hour), surface.OriginStay)
		require.True(t, ok, "edge %s refused", pair)
	}
	return g
}

func addNode(t testing.TB, g *surface.Graph, id string) {
	t.Helper()
	if _, ok := g.Node(id); ok {
		return
	}
	var attrs surface.Attributes
	switch id[0] {
	case 'P':
		attrs = negative()
	case 'X':
		attrs = positive()
	case 'R':
		attrs = roomAttrs()
	case 'D':
		attrs = surface.DeviceAttributes{Name: id}
	case 'E':
		attrs = surface.EmployeeAttributes{}
	default:
		t.Fatalf("unknown node prefix in %q", id)
	}
	require.True(t, g.AddNode(id, attrs))
}

func scoresByID(scores []NodeScore) map[string]float64 {
	out := make(map[string]float64, len(scores))
	for _, s := range scores {
		out[s.NodeID] = s.Score
	}
	return out
}

// memStore is an in-memory surface.NodeStore.
type memStore struct {
	mu   sync.Mutex
	docs map[string]surface.NodeDocument
	puts int
	fail error
}

func newMemStore() *memStore {
	return &memStore{docs: make(map[string]surface.NodeDocument)}
}

func (s *memStore) Backend() string { return "memory" }

func (s *memStore) PutNode(doc surface.NodeDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc.Stats = nil
	s.docs[doc.ID] = doc
	return nil
}

func (s *memStore) PutStat(nodeID, key string, stat surface.PairStat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	doc, ok := s.docs[nodeID]
	if !ok {
		return fmt.Errorf("no document for %s", nodeID)
	}
	if doc.Stats == nil {
		doc.Stats = make(map[string]surface.PairStat)
	}
	doc.Stats[key] = stat
	s.docs[nodeID] = doc
	s.puts++
	return nil
}

func (s *memStore) Stats(nodeID string, fn func(string, surface.PairStat) error) error {
	s.mu.Lock()
	doc := s.docs[nodeID]
	keys := make([]string, 0, len(doc.Stats))
	for k := range doc.Stats {
		keys = append(keys, k)
	}
	s.mu.Unlock()
	sort.Strings(keys)
	for _, k := range keys {
		if err := fn(k, doc.Stats[k]); err != nil {
			return err
		}
	}
	return nil
}

func (s *memStore) Close() error { return nil }
