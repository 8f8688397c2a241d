package surface

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScreeningClassifier(t *testing.T) {
	def := NewScreeningClassifier(nil, nil)
	assert.True(t, def.IsPositive("32"))
	assert.True(t, def.IsPositive("pos"))
	assert.False(t, def.IsPositive("nn"))
	assert.False(t, def.IsPositive(" NN "))
	assert.False(t, def.IsPositive(""))

	explicit := NewScreeningClassifier([]string{"32"}, nil)
	assert.True(t, explicit.IsPositive("32"))
	assert.False(t, explicit.IsPositive("31"))
}

func TestScreeningClassifier_PatientAttributes(t *testing.T) {
	c := NewScreeningClassifier(nil, nil)
	attrs := c.PatientAttributes([]RiskEntry{
		{Date: hour(48), Result: "32"},
		{Date: hour(0), Result: "nn"},
		{Date: hour(24), Result: "32"},
	})
	assert.Equal(t, StatusPositive, attrs.VREStatus)
	assert.Equal(t, hour(24), attrs.InfectionDate)
	assert.Equal(t, hour(0), attrs.RiskHistory[0].Date)

	none := c.PatientAttributes(nil)
	assert.Equal(t, StatusNegative, none.VREStatus)
	assert.True(t, none.InfectionDate.IsZero())
}

func TestAnnotate_PositiveAndNegativePatients(t *testing.T) {
	g := builtGraph(t)
	require.True(t, g.AddNode("A", positivePatient(hour(0))))
	require.True(t, g.AddNode("B", negativePatient()))
	require.True(t, g.AddNode("Room1", room("W1")))
	require.True(t, g.AddNode("D1", DeviceAttributes{Name: "Monitor"}))

	ea := mustEdge(t, g, "A", "Room1", hour(1), hour(2))
	eb := mustEdge(t, g, "B", "Room1", hour(1), hour(2))
	ed := mustEdge(t, g, "D1", "Room1", hour(1), hour(2))

	report := g.Annotate()

	assert.True(t, g.Edge(ea).Infected())
	assert.False(t, g.Edge(eb).Infected())
	assert.False(t, g.Edge(ed).Infected())
	assert.Equal(t, AnnotationReport{Infected: 1, Clean: 2}, report)
	assert.True(t, g.Phases().Has(PhaseInfectionApplied))

	for _, e := range g.Edges() {
		assert.NotEqual(t, LabelUnset, e.Infection)
	}
}

func TestAnnotate_UnclassifiableEdgeIsClean(t *testing.T) {
	g := builtGraph(t)
	require.True(t, g.AddNode("A", positivePatient(hour(0))))
	require.True(t, g.AddNode("R1", room("W1")))
	eid := mustEdge(t, g, "A", "R1", hour(1), hour(2))

	// Simulate an endpoint that fell out of the registry.
	g.registry.remove("A")

	report := g.Annotate()
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, LabelClean, g.Edge(eid).Infection)
}

func TestPropagate_DistanceTwo(t *testing.T) {
	g := builtGraph(t)
	require.True(t, g.AddNode("A", positivePatient(hour(0))))
	require.True(t, g.AddNode("R1", room("W1")))
	require.True(t, g.AddNode("B", negativePatient()))
	require.True(t, g.AddNode("R2", room("W2")))
	require.True(t, g.AddNode("C", negativePatient()))

	e1 := mustEdge(t, g, "A", "R1", hour(1), hour(2))
	e2 := mustEdge(t, g, "B", "R1", hour(3), hour(4))
	e3 := mustEdge(t, g, "B", "R2", hour(5), hour(6))
	e4 := mustEdge(t, g, "C", "R2", hour(7), hour(8))

	report := g.Propagate(PropagationOptions{Distance: 2})
	assert.True(t, g.Edge(e1).Infected())
	assert.True(t, g.Edge(e2).Infected())
	assert.False(t, g.Edge(e3).Infected())
	assert.False(t, g.Edge(e4).Infected())
	assert.Equal(t, 1, report.Sources)
	assert.Equal(t, 2, report.Exposed)

	b, _ := g.Node("B")
	require.NotNil(t, b.Exposure)
	assert.Equal(t, "R1", b.Exposure.Source)
	assert.Equal(t, 2, b.Exposure.Distance)
}

func TestPropagate_DistanceOneMatchesAnnotate(t *testing.T) {
	build := func() *Graph {
		g := builtGraph(t)
		require.True(t, g.AddNode("A", positivePatient(hour(0))))
		require.True(t, g.AddNode("B", negativePatient()))
		require.True(t, g.AddNode("R1", room("W1")))
		require.True(t, g.AddNode("E1", EmployeeAttributes{}))
		mustEdge(t, g, "A", "R1", hour(1), hour(2))
		mustEdge(t, g, "B", "R1", hour(1), hour(2))
		mustEdge(t, g, "A", "E1", hour(1), hour(2))
		mustEdge(t, g, "E1", "R1", hour(1), hour(2))
		return g
	}

	annotated := build()
	annotated.Annotate()
	propagated := build()
	propagated.Propagate(PropagationOptions{Distance: 1})

	for i, e := range annotated.Edges() {
		assert.Equal(t, e.Infection, propagated.Edges()[i].Infection, "edge %d", i)
	}
}

func TestPropagate_ForwardInTime(t *testing.T) {
	build := func(withLate bool) *Graph {
		g := builtGraph(t)
		require.True(t, g.AddNode("A", positivePatient(hour(10))))
		require.True(t, g.AddNode("R1", room("W1")))
		require.True(t, g.AddNode("B", negativePatient()))
		mustEdge(t, g, "A", "R1", hour(0), hour(5))
		mustEdge(t, g, "A", "R1", hour(12), hour(14))
		// B left the room before A's contamination reached it.
		mustEdge(t, g, "B", "R1", hour(11), hour(12))
		if withLate {
			mustEdge(t, g, "B", "R1", hour(15), hour(16))
		}
		return g
	}

	g := build(true)
	g.Propagate(PropagationOptions{Distance: 2, ForwardInTime: true})
	r1, _ := g.Node("R1")
	require.NotNil(t, r1.Exposure)
	assert.Equal(t, hour(14), r1.Exposure.At)
	b, _ := g.Node("B")
	require.NotNil(t, b.Exposure)
	assert.Equal(t, hour(16), b.Exposure.At)
	assert.Equal(t, 2, b.Exposure.Distance)

	g = build(false)
	g.Propagate(PropagationOptions{Distance: 2, ForwardInTime: true})
	b, _ = g.Node("B")
	assert.Nil(t, b.Exposure, "contact ended before the room was colonized")

	g = build(false)
	g.Propagate(PropagationOptions{Distance: 2})
	b, _ = g.Node("B")
	assert.NotNil(t, b.Exposure, "without time ordering every contact spreads")

	g = build(false)
	g.Propagate(PropagationOptions{Distance: 1, ForwardInTime: true, ColonizationLead: 12 * time.Hour})
	r1, _ = g.Node("R1")
	require.NotNil(t, r1.Exposure)
	assert.Equal(t, hour(5), r1.Exposure.At, "lead pulls the earlier stay in")
}
