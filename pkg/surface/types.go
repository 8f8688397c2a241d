// Package surface models the contact network of a hospital as a typed,
// time-stamped multigraph. Nodes are patients, rooms, devices and employees;
// every edge records one co-location (a stay or an appointment) between two
// of them together with its time window.
package surface

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// NullValue marks an attribute the source data did not provide.
const NullValue = "NULL"

// UnknownRoomID is the sentinel room that receives stays without a room.
const UnknownRoomID = "Room_Unknown"

// NodeKind is the type tag of a node.
type NodeKind uint8

const (
	KindPatient NodeKind = iota
	KindRoom
	KindDevice
	KindEmployee
	kindCount
)

var kindNames = [kindCount]string{
	KindPatient:  "Patient",
	KindRoom:     "Room",
	KindDevice:   "Device",
	KindEmployee: "Employee",
}

func (k NodeKind) String() string {
	if k >= kindCount {
		return fmt.Sprintf("NodeKind(%d)", uint8(k))
	}
	return kindNames[k]
}

// MarshalText encodes the kind by name.
func (k NodeKind) MarshalText() ([]byte, error) {
	if k >= kindCount {
		return nil, fmt.Errorf("invalid node kind %d", uint8(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind name as written by MarshalText.
func (k *NodeKind) UnmarshalText(b []byte) error {
	parsed, err := ParseNodeKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseNodeKind resolves a node kind by name, case-insensitively.
func ParseNodeKind(s string) (NodeKind, error) {
	for k, name := range kindNames {
		if strings.EqualFold(name, strings.TrimSpace(s)) {
			return NodeKind(k), nil
		}
	}
	return 0, fmt.Errorf("unknown node kind %q", s)
}

// NodeKinds lists all node kinds in declaration order.
func NodeKinds() []NodeKind {
	kinds := make([]NodeKind, 0, kindCount)
	for k := NodeKind(0); k < kindCount; k++ {
		kinds = append(kinds, k)
	}
	return kinds
}

// VREStatus is a patient's derived screening status.
type VREStatus string

const (
	StatusNegative VREStatus = "neg"
	StatusPositive VREStatus = "pos"
)

// Attributes is the kind-specific payload of a node. The concrete types are
// PatientAttributes, RoomAttributes, DeviceAttributes and EmployeeAttributes.
type Attributes interface {
	Kind() NodeKind
	clone() Attributes
}

// RiskEntry is one screening result of a patient.
type RiskEntry struct {
	Date   time.Time `json:"date"`
	Result string    `json:"result"`
}

// PatientAttributes holds the screening history and derived VRE status.
type PatientAttributes struct {
	RiskHistory   []RiskEntry `json:"risk_history"`
	VREStatus     VREStatus   `json:"vre_status"`
	InfectionDate time.Time   `json:"infection_date,omitempty"`
}

func (PatientAttributes) Kind() NodeKind { return KindPatient }

func (a PatientAttributes) clone() Attributes {
	a.RiskHistory = append([]RiskEntry(nil), a.RiskHistory...)
	return a
}

// Positive reports whether the patient screened VRE positive.
func (a PatientAttributes) Positive() bool { return a.VREStatus == StatusPositive }

// RoomAttributes locates a room. Missing values hold NullValue.
type RoomAttributes struct {
	BuildingID  string `json:"building_id"`
	WardID      string `json:"ward_id"`
	RoomID      string `json:"room_id"`
	Description string `json:"description,omitempty"`
}

func (RoomAttributes) Kind() NodeKind      { return KindRoom }
func (a RoomAttributes) clone() Attributes { return a }

// DeviceAttributes describes a medical device.
type DeviceAttributes struct {
	Name string `json:"name"`
}

func (DeviceAttributes) Kind() NodeKind      { return KindDevice }
func (a DeviceAttributes) clone() Attributes { return a }

// EmployeeAttributes carries no data beyond the employee's identifier.
type EmployeeAttributes struct{}

func (EmployeeAttributes) Kind() NodeKind      { return KindEmployee }
func (a EmployeeAttributes) clone() Attributes { return a }

// PairStat is the contribution of one (source, target) pair to a node:
// Through shortest paths pass the node, out of Total shortest paths.
type PairStat struct {
	Through float64
	Total   float64
}

// Fraction returns Through/Total, or 0 for an empty pair.
func (s PairStat) Fraction() float64 {
	if s.Total == 0 {
		return 0
	}
	return s.Through / s.Total
}

// MarshalJSON encodes the stat as a [through, total] pair.
func (s PairStat) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{s.Through, s.Total})
}

func (s *PairStat) UnmarshalJSON(b []byte) error {
	var pair [2]float64
	if err := json.Unmarshal(b, &pair); err != nil {
		return err
	}
	s.Through, s.Total = pair[0], pair[1]
	return nil
}

// Node is a vertex of the contact graph.
type Node struct {
	ID    string
	Attrs Attributes

	// Exposure is set by Propagate for nodes reached from a positive patient.
	Exposure *Exposure

	pairStats map[string]PairStat
}

// Kind returns the node's type tag.
func (n *Node) Kind() NodeKind { return n.Attrs.Kind() }

// Patient returns the patient payload when the node is a patient.
func (n *Node) Patient() (PatientAttributes, bool) {
	a, ok := n.Attrs.(PatientAttributes)
	return a, ok
}

// Room returns the room payload when the node is a room.
func (n *Node) Room() (RoomAttributes, bool) {
	a, ok := n.Attrs.(RoomAttributes)
	return a, ok
}

// PairStats returns a copy of the in-memory shortest-path statistics.
func (n *Node) PairStats() map[string]PairStat {
	out := make(map[string]PairStat, len(n.pairStats))
	for k, v := range n.pairStats {
		out[k] = v
	}
	return out
}

func (n *Node) clone() *Node {
	c := &Node{ID: n.ID, Attrs: n.Attrs.clone()}
	if n.Exposure != nil {
		e := *n.Exposure
		c.Exposure = &e
	}
	return c
}

// EdgeKind is the unordered pair of node kinds an edge connects. The zero
// value is not a valid kind; build one with EdgeKindOf.
type EdgeKind struct {
	first, second NodeKind
	valid         bool
}

// EdgeKindOf returns the canonical kind for an edge between a and b. The
// endpoints are ordered by kind name, so EdgeKindOf(a, b) == EdgeKindOf(b, a).
func EdgeKindOf(a, b NodeKind) EdgeKind {
	if a.String() > b.String() {
		a, b = b, a
	}
	return EdgeKind{first: a, second: b, valid: true}
}

// String renders the kind as "<First>-<Second>", e.g. "Device-Patient".
func (k EdgeKind) String() string {
	if !k.valid {
		return "Unknown"
	}
	return k.first.String() + "-" + k.second.String()
}

// Endpoints returns the two node kinds in canonical order.
func (k EdgeKind) Endpoints() (NodeKind, NodeKind) { return k.first, k.second }

// Involves reports whether either endpoint has the given kind.
func (k EdgeKind) Involves(kind NodeKind) bool {
	return k.valid && (k.first == kind || k.second == kind)
}

func (k EdgeKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *EdgeKind) UnmarshalText(b []byte) error {
	parsed, err := ParseEdgeKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseEdgeKind accepts "A-B" in either order and returns the canonical kind.
func ParseEdgeKind(s string) (EdgeKind, error) {
	left, right, ok := strings.Cut(strings.TrimSpace(s), "-")
	if !ok {
		return EdgeKind{}, fmt.Errorf("invalid edge kind %q: expected <Kind>-<Kind>", s)
	}
	a, err := ParseNodeKind(left)
	if err != nil {
		return EdgeKind{}, fmt.Errorf("invalid edge kind %q: %w", s, err)
	}
	b, err := ParseNodeKind(right)
	if err != nil {
		return EdgeKind{}, fmt.Errorf("invalid edge kind %q: %w", s, err)
	}
	if a == b {
		return EdgeKind{}, fmt.Errorf("invalid edge kind %q: endpoints must differ", s)
	}
	return EdgeKindOf(a, b), nil
}

// CanonicalEdgeKinds returns every edge kind between two distinct node
// kinds, sorted by name.
func CanonicalEdgeKinds() []EdgeKind {
	var kinds []EdgeKind
	all := NodeKinds()
	for i, a := range all {
		for _, b := range all[i+1:] {
			kinds = append(kinds, EdgeKindOf(a, b))
		}
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i].String() < kinds[j].String() })
	return kinds
}

// Origin names the kind of record an edge was derived from.
type Origin string

const (
	OriginStay        Origin = "Stay"
	OriginAppointment Origin = "Appointment"
)

// Label is the infection annotation of an edge.
type Label uint8

const (
	LabelUnset Label = iota
	LabelClean
	LabelInfected
)

func (l Label) String() string {
	switch l {
	case LabelClean:
		return "clean"
	case LabelInfected:
		return "infected"
	default:
		return "unset"
	}
}

// EdgeID is the stable identifier of an edge within one graph.
type EdgeID int

// Edge is one co-location event between two nodes.
type Edge struct {
	ID        EdgeID
	Source    int
	Target    int
	From      time.Time
	To        time.Time
	Kind      EdgeKind
	Origin    Origin
	Infection Label
}

// Infected reports whether the edge was labelled infected by Annotate.
func (e *Edge) Infected() bool { return e.Infection == LabelInfected }

// Other returns the endpoint opposite idx.
func (e *Edge) Other(idx int) int {
	if e.Source == idx {
		return e.Target
	}
	return e.Source
}

// Exposure records how a node was reached from a positive patient.
type Exposure struct {
	Source   string    `json:"source"`
	Distance int       `json:"distance"`
	At       time.Time `json:"at"`
}
