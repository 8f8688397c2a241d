// Package builder turns a patient dataset into a contact graph.
package builder

import (
	"fmt"
	"time"

	"github.com/dd0wney/cluso-vre/pkg/dataset"
	"github.com/dd0wney/cluso-vre/pkg/logging"
	"github.com/dd0wney/cluso-vre/pkg/metrics"
	"github.com/dd0wney/cluso-vre/pkg/surface"
)

// SubsetRelevantCase includes every patient the dataset provides. Filtering
// to relevant cases happens upstream.
const SubsetRelevantCase = "relevant_case"

// Skip reasons reported per edge kind.
const (
	SkipAfterSnapshot = "after_snapshot"
	SkipBeforeWindow  = "before_window"
	SkipRefused       = "refused"
	SkipMissingTime   = "missing_time"
)

// Options configures a Builder.
type Options struct {
	SubsetMode string
	SnapshotAt time.Time
	// WindowStart drops edges that began before it. Zero keeps everything.
	WindowStart time.Time
	// EdgeKinds restricts the edge kinds materialized. Empty means all.
	EdgeKinds []surface.EdgeKind
	// Patients restricts the build to the listed patient ids. Empty means all.
	Patients   []string
	Classifier surface.ScreeningClassifier
	Logger     logging.Logger
	Metrics    *metrics.Registry
}

// Report holds the diagnostic counters of one build.
type Report struct {
	Patients          int
	PatientsFiltered  int
	EmptyPatientIDs   int
	RoomsWithID       int
	RoomsWithoutID    int
	Stays             int
	Appointments      int
	MissingReferences int
	EdgesCreated      map[surface.EdgeKind]int
	EdgesSkipped      map[surface.EdgeKind]map[string]int
	Warnings          surface.Warnings
}

func newReport() *Report {
	return &Report{
		EdgesCreated: make(map[surface.EdgeKind]int),
		EdgesSkipped: make(map[surface.EdgeKind]map[string]int),
	}
}

// TotalEdges sums created edges over all kinds.
func (r *Report) TotalEdges() int {
	n := 0
	for _, c := range r.EdgesCreated {
		n += c
	}
	return n
}

// TotalSkipped sums skipped edges over all kinds and reasons.
func (r *Report) TotalSkipped() int {
	n := 0
	for _, reasons := range r.EdgesSkipped {
		for _, c := range reasons {
			n += c
		}
	}
	return n
}

func (r *Report) skip(kind surface.EdgeKind, reason string) {
	if r.EdgesSkipped[kind] == nil {
		r.EdgesSkipped[kind] = make(map[string]int)
	}
	r.EdgesSkipped[kind][reason]++
}

// Builder builds contact graphs from datasets.
type Builder struct {
	opts     Options
	enabled  map[surface.EdgeKind]bool
	patients map[string]struct{}
	logger   logging.Logger
}

// New validates opts and returns a Builder.
func New(opts Options) (*Builder, error) {
	if opts.SubsetMode == "" {
		opts.SubsetMode = SubsetRelevantCase
	}
	if opts.SubsetMode != SubsetRelevantCase {
		return nil, fmt.Errorf("unsupported subset mode %q", opts.SubsetMode)
	}
	if opts.SnapshotAt.IsZero() {
		return nil, fmt.Errorf("snapshot time is required")
	}
	if !opts.WindowStart.IsZero() && !opts.WindowStart.Before(opts.SnapshotAt) {
		return nil, fmt.Errorf("window start %s is not before snapshot %s",
			opts.WindowStart.Format(time.RFC3339), opts.SnapshotAt.Format(time.RFC3339))
	}
	if opts.Classifier.IsZero() {
		opts.Classifier = surface.NewScreeningClassifier(nil, nil)
	}

	kinds := opts.EdgeKinds
	if len(kinds) == 0 {
		kinds = surface.CanonicalEdgeKinds()
	}
	enabled := make(map[surface.EdgeKind]bool, len(kinds))
	for _, k := range kinds {
		enabled[k] = true
	}

	var patients map[string]struct{}
	if len(opts.Patients) > 0 {
		patients = make(map[string]struct{}, len(opts.Patients))
		for _, id := range opts.Patients {
			patients[id] = struct{}{}
		}
	}

	return &Builder{
		opts:     opts,
		enabled:  enabled,
		patients: patients,
		logger:   logging.OrNop(opts.Logger).With(logging.Component("builder")),
	}, nil
}

// Build constructs the graph for ds. Malformed or missing data is skipped
// and counted in the report; Build only fails on an unusable Builder.
func (b *Builder) Build(ds *dataset.Dataset) (*surface.Graph, *Report) {
	timer := logging.StartTimer(b.logger, "graph built", logging.Snapshot(b.opts.SnapshotAt))
	g := surface.NewGraph(surface.WithLogger(b.logger))
	report := newReport()

	for _, id := range ds.PatientIDs() {
		p := ds.Patients[id]
		if b.patients != nil {
			if _, ok := b.patients[p.ID]; !ok {
				report.PatientsFiltered++
				continue
			}
		}
		if p.ID == "" {
			report.EmptyPatientIDs++
			b.logger.Warn("patient skipped: empty identifier")
			continue
		}
		report.Patients++
		b.addPatient(g, ds, p, report)
	}

	g.MarkBuilt(b.opts.SnapshotAt)
	report.Warnings = g.Warnings()
	b.record(g, report)
	timer.End(
		logging.Int("patients", report.Patients),
		logging.Int("nodes", g.NodeCount()),
		logging.Int("edges", g.EdgeCount()),
		logging.Int("edges_skipped", report.TotalSkipped()),
		logging.Int("rooms_with_id", report.RoomsWithID),
		logging.Int("rooms_without_id", report.RoomsWithoutID),
		logging.Int("missing_references", report.MissingReferences))
	if w := report.Warnings.Total(); w > 0 {
		b.logger.Warn("inputs refused while building", logging.Count(w),
			logging.Int("kind_conflicts", report.Warnings.KindConflicts),
			logging.Int("dangling_edges", report.Warnings.DanglingEdges),
			logging.Int("self_loops", report.Warnings.SelfLoops))
	}
	return g, report
}

// Build is a convenience wrapper around New and Builder.Build.
func Build(ds *dataset.Dataset, opts Options) (*surface.Graph, *Report, error) {
	b, err := New(opts)
	if err != nil {
		return nil, nil, err
	}
	g, report := b.Build(ds)
	return g, report, nil
}

func (b *Builder) addPatient(g *surface.Graph, ds *dataset.Dataset, p *dataset.Patient, report *Report) {
	history := make([]surface.RiskEntry, 0, len(p.Risks))
	for _, r := range p.Risks {
		history = append(history, surface.RiskEntry{Date: r.Date, Result: r.Result})
	}
	if !g.AddNode(p.ID, b.opts.Classifier.PatientAttributes(history)) {
		// Counted by the graph as a kind conflict.
		return
	}

	for _, stay := range p.Stays {
		report.Stays++
		roomID := b.addStayRoom(g, ds, stay, report)
		b.connect(g, report, p.ID, roomID, stay.From, stay.To, surface.OriginStay)
	}

	for _, app := range p.Appointments {
		report.Appointments++
		b.opts.Metrics.RecordAppointment()
		b.addAppointment(g, ds, p.ID, app, report)
	}
}

// addStayRoom registers the stay's room and returns its node id. Stays
// without a room go to the shared unknown room.
func (b *Builder) addStayRoom(g *surface.Graph, ds *dataset.Dataset, stay *dataset.Stay, report *Report) string {
	if stay.RoomID == "" {
		report.RoomsWithoutID++
		b.opts.Metrics.RecordRoom(false)
		if _, ok := g.Node(surface.UnknownRoomID); !ok {
			g.AddNode(surface.UnknownRoomID, surface.RoomAttributes{
				BuildingID: surface.NullValue,
				WardID:     surface.NullValue,
				RoomID:     surface.NullValue,
			})
		}
		return surface.UnknownRoomID
	}

	report.RoomsWithID++
	b.opts.Metrics.RecordRoom(true)
	attrs := surface.RoomAttributes{
		BuildingID: buildingID(ds, stay.RoomID),
		WardID:     orNull(stay.WardName()),
		RoomID:     surface.NullValue,
	}
	if stay.Room != nil {
		attrs.RoomID = orNull(stay.Room.JoinedIDs())
		attrs.Description = stay.Room.Description
	}
	g.AddNode(stay.RoomID, attrs)
	return stay.RoomID
}

func (b *Builder) addAppointment(g *surface.Graph, ds *dataset.Dataset, patientID string, app *dataset.Appointment, report *Report) {
	from, to := app.Date, app.End()
	participants := map[surface.NodeKind][]string{
		surface.KindPatient: {patientID},
	}

	for _, d := range app.Devices {
		if d == nil {
			report.MissingReferences++
			continue
		}
		if g.AddNode(d.ID, surface.DeviceAttributes{Name: d.Name}) {
			participants[surface.KindDevice] = append(participants[surface.KindDevice], d.ID)
		}
	}
	for _, e := range app.Employees {
		if e == nil {
			report.MissingReferences++
			continue
		}
		if g.AddNode(e.ID, surface.EmployeeAttributes{}) {
			participants[surface.KindEmployee] = append(participants[surface.KindEmployee], e.ID)
		}
	}
	for _, r := range app.Rooms {
		if r == nil {
			report.MissingReferences++
			continue
		}
		attrs := surface.RoomAttributes{
			BuildingID:  buildingID(ds, r.ID),
			WardID:      orNull(r.WardName),
			RoomID:      orNull(r.JoinedIDs()),
			Description: r.Description,
		}
		if g.AddNode(r.ID, attrs) {
			participants[surface.KindRoom] = append(participants[surface.KindRoom], r.ID)
		}
	}

	// One edge per participant pair of every enabled kind.
	for _, kind := range surface.CanonicalEdgeKinds() {
		if !b.enabled[kind] {
			continue
		}
		first, second := kind.Endpoints()
		for _, u := range participants[first] {
			for _, v := range participants[second] {
				b.connect(g, report, u, v, from, to, surface.OriginAppointment)
			}
		}
	}
}

// connect creates an edge when its kind is enabled and it lies inside the
// build window.
func (b *Builder) connect(g *surface.Graph, report *Report, u, v string, from, to time.Time, origin surface.Origin) {
	un, uok := g.Node(u)
	vn, vok := g.Node(v)
	if !uok || !vok {
		// Let the graph count the dangling edge.
		g.AddEdge(u, v, from, to, origin)
		return
	}
	kind := surface.EdgeKindOf(un.Kind(), vn.Kind())
	if !b.enabled[kind] {
		return
	}
	if from.IsZero() || to.IsZero() || to.Before(from) {
		report.skip(kind, SkipMissingTime)
		b.opts.Metrics.RecordEdgeSkipped(kind.String(), SkipMissingTime)
		return
	}
	if !to.Before(b.opts.SnapshotAt) {
		report.skip(kind, SkipAfterSnapshot)
		b.opts.Metrics.RecordEdgeSkipped(kind.String(), SkipAfterSnapshot)
		return
	}
	if !b.opts.WindowStart.IsZero() && from.Before(b.opts.WindowStart) {
		report.skip(kind, SkipBeforeWindow)
		b.opts.Metrics.RecordEdgeSkipped(kind.String(), SkipBeforeWindow)
		return
	}
	if _, ok := g.AddEdge(u, v, from, to, origin); !ok {
		report.skip(kind, SkipRefused)
		b.opts.Metrics.RecordEdgeSkipped(kind.String(), SkipRefused)
		return
	}
	report.EdgesCreated[kind]++
	b.opts.Metrics.RecordEdgeCreated(kind.String())
}

func (b *Builder) record(g *surface.Graph, report *Report) {
	if b.opts.Metrics == nil {
		return
	}
	for _, k := range surface.NodeKinds() {
		b.opts.Metrics.RecordNodes(k.String(), g.Registry().Len(k))
	}
	b.opts.Metrics.RecordWarning("missing_reference", report.MissingReferences)
	b.opts.Metrics.RecordWarning("empty_patient_id", report.EmptyPatientIDs)
	b.opts.Metrics.RecordWarning("kind_conflict", report.Warnings.KindConflicts)
	b.opts.Metrics.RecordWarning("dangling_edge", report.Warnings.DanglingEdges)
	b.opts.Metrics.RecordWarning("self_loop", report.Warnings.SelfLoops)
	var empty int
	for _, n := range report.Warnings.EmptyIDs {
		empty += n
	}
	b.opts.Metrics.RecordWarning("empty_node_id", empty)
}

func buildingID(ds *dataset.Dataset, roomID string) string {
	if room, ok := ds.Rooms[roomID]; ok && room.BuildingID != "" {
		return room.BuildingID
	}
	return surface.NullValue
}

func orNull(s string) string {
	if s == "" {
		return surface.NullValue
	}
	return s
}
