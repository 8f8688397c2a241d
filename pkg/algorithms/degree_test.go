package algorithms

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/cluso-vre/pkg/surface"
)

func ratiosByID(records []DegreeRatio) map[string]DegreeRatio {
	out := make(map[string]DegreeRatio, len(records))
	for _, r := range records {
		out[r.NodeID] = r
	}
	return out
}

func TestDegreeRatio_RequiresAnnotation(t *testing.T) {
	g := testGraph(t, "X1-R1")

	_, err := PatientDegreeRatio(g)
	require.Error(t, err)
	assert.True(t, surface.IsPrecondition(err))
	assert.True(t, errors.Is(err, surface.ErrInfectionMissing))

	_, err = TotalDegreeRatio(g)
	assert.True(t, surface.IsPrecondition(err))
}

func TestPatientDegreeRatio_RoomWithTwoOfThreeInfected(t *testing.T) {
	g := testGraph(t, "X1-R1", "X2-R1", "P3-R1", "D1-R1")
	g.Annotate()

	records, err := PatientDegreeRatio(g)
	require.NoError(t, err)
	byID := ratiosByID(records)

	r1 := byID["R1"]
	assert.True(t, r1.Defined)
	assert.InDelta(t, 2.0/3.0, r1.Ratio, 1e-12)
	assert.Equal(t, 2, r1.Infected)
	assert.Equal(t, 3, r1.Considered)
	assert.Equal(t, 4, r1.Total)
	assert.Equal(t, surface.KindRoom, r1.Kind)

	d1 := byID["D1"]
	assert.False(t, d1.Defined, "device with no patient edges has no ratio")
	assert.Equal(t, 0, d1.Considered)
	assert.Equal(t, 1, d1.Total)

	x1 := byID["X1"]
	assert.Equal(t, 1.0, x1.Ratio)
	assert.Equal(t, "pos", x1.RiskStatus)
	assert.Equal(t, "neg", byID["P3"].RiskStatus)
}

func TestTotalDegreeRatio_CountsAllEdges(t *testing.T) {
	g := testGraph(t, "X1-R1", "X2-R1", "P3-R1", "D1-R1")
	g.Annotate()

	records, err := TotalDegreeRatio(g)
	require.NoError(t, err)
	byID := ratiosByID(records)

	assert.InDelta(t, 0.5, byID["R1"].Ratio, 1e-12)
	assert.Equal(t, 4, byID["R1"].Considered)
	assert.True(t, byID["D1"].Defined)
	assert.Equal(t, 0.0, byID["D1"].Ratio)
}

func TestDegreeRatio_ParallelEdgesCountSeparately(t *testing.T) {
	g := testGraph(t, "X1-R1", "X1-R1", "P2-R1")
	g.Annotate()

	records, err := PatientDegreeRatio(g)
	require.NoError(t, err)
	r1 := ratiosByID(records)["R1"]
	assert.Equal(t, 2, r1.Infected)
	assert.Equal(t, 3, r1.Considered)
}

func TestSortDegreeRatios(t *testing.T) {
	records := []DegreeRatio{
		{NodeID: "b", Ratio: 0.5, Defined: true},
		{NodeID: "u"},
		{NodeID: "a", Ratio: 0.5, Defined: true},
		{NodeID: "c", Ratio: 1, Defined: true},
	}
	SortDegreeRatios(records)

	var order []string
	for _, r := range records {
		order = append(order, r.NodeID)
	}
	assert.Equal(t, []string{"c", "a", "b", "u"}, order)
}
