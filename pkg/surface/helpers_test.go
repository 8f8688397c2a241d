package surface

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func hour(h int) time.Time { return epoch.Add(time.Duration(h) * time.Hour) }

func positivePatient(date time.Time) PatientAttributes {
	return NewScreeningClassifier(nil, nil).PatientAttributes([]RiskEntry{{Date: date, Result: "32"}})
}

func negativePatient() PatientAttributes {
	return NewScreeningClassifier(nil, nil).PatientAttributes([]RiskEntry{{Date: epoch, Result: "nn"}})
}

func room(ward string) RoomAttributes {
	return RoomAttributes{BuildingID: NullValue, WardID: ward, RoomID: NullValue}
}

// builtGraph returns an empty graph marked as built at hour 1000.
func builtGraph(t *testing.T) *Graph {
	t.Helper()
	g := NewGraph()
	g.MarkBuilt(hour(1000))
	return g
}

func mustEdge(t *testing.T, g *Graph, u, v string, from, to time.Time) EdgeID {
	t.Helper()
	id, ok := g.AddEdge(u, v, from, to, OriginStay)
	require.True(t, ok, "edge %s-%s refused", u, v)
	return id
}
