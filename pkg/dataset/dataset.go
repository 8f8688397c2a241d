// Package dataset holds the patient dataset the contact graph is built from
// and loads it from its JSON export.
package dataset

import (
	"sort"
	"strings"
	"time"
)

// Dataset is the set of entity tables keyed by identifier.
type Dataset struct {
	Patients  map[string]*Patient
	Rooms     map[string]*Room
	Devices   map[string]*Device
	Employees map[string]*Employee
}

// New returns an empty dataset.
func New() *Dataset {
	return &Dataset{
		Patients:  make(map[string]*Patient),
		Rooms:     make(map[string]*Room),
		Devices:   make(map[string]*Device),
		Employees: make(map[string]*Employee),
	}
}

// PatientIDs returns the patient identifiers in sorted order.
func (d *Dataset) PatientIDs() []string {
	ids := make([]string, 0, len(d.Patients))
	for id := range d.Patients {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Screening is one risk screening result.
type Screening struct {
	Date   time.Time
	Result string
}

// Patient is a patient with their screening history, stays and appointments.
type Patient struct {
	ID           string
	Risks        []Screening
	Stays        []*Stay
	Appointments []*Appointment
}

// Ward is the ward a stay took place on.
type Ward struct {
	Name string
}

// Stay is a patient's stay in a room. RoomID is empty when the source record
// had no room.
type Stay struct {
	RoomID string
	Ward   *Ward
	From   time.Time
	To     time.Time
	Room   *Room
}

// WardName returns the ward name or "" when unknown.
func (s *Stay) WardName() string {
	if s.Ward == nil {
		return ""
	}
	return s.Ward.Name
}

// Appointment is a scheduled appointment with the devices, employees and
// rooms involved. Nil entries stand for references that did not resolve.
type Appointment struct {
	ID              string
	Date            time.Time
	DurationMinutes float64
	Devices         []*Device
	Employees       []*Employee
	Rooms           []*Room
}

// End returns the start time plus the duration.
func (a *Appointment) End() time.Time {
	return a.Date.Add(time.Duration(a.DurationMinutes * float64(time.Minute)))
}

// ExternalID is a room identifier in one of the hospital's source systems.
type ExternalID struct {
	ID     string
	System string
}

// Room is a physical room.
type Room struct {
	ID          string
	IDs         []ExternalID
	WardName    string
	BuildingID  string
	Description string
}

// JoinedIDs renders the external ids as "<id>_<system>" joined by "@", or
// "" when the room has none.
func (r *Room) JoinedIDs() string {
	if r == nil || len(r.IDs) == 0 {
		return ""
	}
	parts := make([]string, 0, len(r.IDs))
	for _, id := range r.IDs {
		parts = append(parts, id.ID+"_"+id.System)
	}
	return strings.Join(parts, "@")
}

// AddID appends an external id unless the same id is already present.
func (r *Room) AddID(id, system string) {
	for _, existing := range r.IDs {
		if existing.ID == id {
			return
		}
	}
	r.IDs = append(r.IDs, ExternalID{ID: id, System: system})
}

// Device is a medical device.
type Device struct {
	ID   string
	Name string
}

// Employee is a member of staff.
type Employee struct {
	ID string
}
