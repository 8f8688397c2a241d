package dataset

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/exp/mmap"

	"github.com/dd0wney/cluso-vre/pkg/logging"
)

// timeLayouts are tried in order when decoding timestamps.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.0000",
	"2006-01-02",
}

// Timestamp decodes the date formats found in hospital exports. Text in
// none of the known layouts decodes without error and keeps the raw value
// in Malformed, so one bad cell does not fail the whole export.
type Timestamp struct {
	time.Time
	Malformed string
}

// Valid reports whether the timestamp was empty or parsed.
func (t Timestamp) Valid() bool { return t.Malformed == "" }

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	t.Time, t.Malformed = time.Time{}, ""
	if string(b) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		t.Malformed = string(b)
		return nil
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	t.Malformed = s
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte(`""`), nil
	}
	return json.Marshal(t.Format(time.RFC3339))
}

type fileExternalID struct {
	ID     string `json:"id"`
	System string `json:"system"`
}

type fileRoom struct {
	ID          string           `json:"id"`
	Ward        string           `json:"ward"`
	BuildingID  string           `json:"building_id"`
	Description string           `json:"description"`
	IDs         []fileExternalID `json:"ids"`
}

type fileDevice struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type fileEmployee struct {
	ID string `json:"id"`
}

type fileRisk struct {
	Date   Timestamp `json:"date"`
	Result string    `json:"result"`
}

type fileStay struct {
	RoomID string    `json:"room_id"`
	Ward   string    `json:"ward"`
	From   Timestamp `json:"from"`
	To     Timestamp `json:"to"`
}

type fileAppointment struct {
	ID          string    `json:"id"`
	Date        Timestamp `json:"date"`
	Duration    float64   `json:"duration_in_mins"`
	DeviceIDs   []string  `json:"device_ids"`
	EmployeeIDs []string  `json:"employee_ids"`
	RoomIDs     []string  `json:"room_ids"`
}

type filePatient struct {
	ID           string            `json:"id"`
	Risks        []fileRisk        `json:"risks"`
	Stays        []fileStay        `json:"stays"`
	Appointments []fileAppointment `json:"appointments"`
}

type fileDataset struct {
	Patients  []filePatient  `json:"patients"`
	Rooms     []fileRoom     `json:"rooms"`
	Devices   []fileDevice   `json:"devices"`
	Employees []fileEmployee `json:"employees"`
}

// LoadReport counts records the loader could not link.
type LoadReport struct {
	Patients     int
	Rooms        int
	Devices      int
	Employees    int
	Stays        int
	Appointments int
	// UnresolvedReferences counts appointment references to unknown entities.
	UnresolvedReferences int
	// DuplicateIDs counts table rows whose id was already loaded; the later
	// row wins.
	DuplicateIDs int
	// MalformedRecords counts screenings, stays and appointments dropped
	// for an unparseable timestamp.
	MalformedRecords int
}

// LoadFile memory-maps path and decodes it as a dataset export.
func LoadFile(path string, logger logging.Logger) (*Dataset, LoadReport, error) {
	reader, err := mmap.Open(path)
	if err != nil {
		return nil, LoadReport{}, fmt.Errorf("open dataset %s: %w", path, err)
	}
	defer reader.Close()

	ds, report, err := Load(io.NewSectionReader(reader, 0, int64(reader.Len())), logger)
	if err != nil {
		return nil, report, fmt.Errorf("load dataset %s: %w", path, err)
	}
	return ds, report, nil
}

// Load decodes a dataset export and links appointments and stays to the
// entity tables.
func Load(r io.Reader, logger logging.Logger) (*Dataset, LoadReport, error) {
	logger = logging.OrNop(logger).With(logging.Component("dataset"))
	timer := logging.StartTimer(logger, "dataset loaded")

	var raw fileDataset
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		timer.EndError(err)
		return nil, LoadReport{}, fmt.Errorf("decode: %w", err)
	}

	ds := New()
	var report LoadReport

	for _, fr := range raw.Rooms {
		if _, dup := ds.Rooms[fr.ID]; dup {
			report.DuplicateIDs++
		}
		room := &Room{ID: fr.ID, WardName: fr.Ward, BuildingID: fr.BuildingID, Description: fr.Description}
		for _, id := range fr.IDs {
			room.AddID(id.ID, id.System)
		}
		ds.Rooms[fr.ID] = room
	}
	for _, fd := range raw.Devices {
		if _, dup := ds.Devices[fd.ID]; dup {
			report.DuplicateIDs++
		}
		ds.Devices[fd.ID] = &Device{ID: fd.ID, Name: fd.Name}
	}
	for _, fe := range raw.Employees {
		if _, dup := ds.Employees[fe.ID]; dup {
			report.DuplicateIDs++
		}
		ds.Employees[fe.ID] = &Employee{ID: fe.ID}
	}

	for _, fp := range raw.Patients {
		if _, dup := ds.Patients[fp.ID]; dup {
			report.DuplicateIDs++
		}
		p := &Patient{ID: fp.ID}
		for _, risk := range fp.Risks {
			if !risk.Date.Valid() {
				report.malformed(logger, "screening", fp.ID, risk.Date.Malformed)
				continue
			}
			p.Risks = append(p.Risks, Screening{Date: risk.Date.Time, Result: risk.Result})
		}
		for _, fs := range fp.Stays {
			if !fs.From.Valid() || !fs.To.Valid() {
				report.malformed(logger, "stay", fp.ID, fs.From.Malformed+fs.To.Malformed)
				continue
			}
			stay := &Stay{RoomID: fs.RoomID, From: fs.From.Time, To: fs.To.Time}
			if fs.Ward != "" {
				stay.Ward = &Ward{Name: fs.Ward}
			}
			if fs.RoomID != "" {
				stay.Room = ds.Rooms[fs.RoomID]
			}
			p.Stays = append(p.Stays, stay)
			report.Stays++
		}
		for _, fa := range fp.Appointments {
			if !fa.Date.Valid() {
				report.malformed(logger, "appointment", fp.ID, fa.Date.Malformed)
				continue
			}
			app := &Appointment{ID: fa.ID, Date: fa.Date.Time, DurationMinutes: fa.Duration}
			for _, id := range fa.DeviceIDs {
				d, ok := ds.Devices[id]
				if !ok {
					report.UnresolvedReferences++
					logger.Debug("appointment device not found", logging.String("appointment_id", fa.ID), logging.NodeID(id))
				}
				app.Devices = append(app.Devices, d)
			}
			for _, id := range fa.EmployeeIDs {
				e, ok := ds.Employees[id]
				if !ok {
					report.UnresolvedReferences++
					logger.Debug("appointment employee not found", logging.String("appointment_id", fa.ID), logging.NodeID(id))
				}
				app.Employees = append(app.Employees, e)
			}
			for _, id := range fa.RoomIDs {
				room, ok := ds.Rooms[id]
				if !ok {
					// Appointment rooms are real even when the room table
					// lacks them; the builder falls back to unknown location.
					room = &Room{ID: id}
				}
				app.Rooms = append(app.Rooms, room)
			}
			p.Appointments = append(p.Appointments, app)
			report.Appointments++
		}
		ds.Patients[fp.ID] = p
	}

	report.Patients = len(ds.Patients)
	report.Rooms = len(ds.Rooms)
	report.Devices = len(ds.Devices)
	report.Employees = len(ds.Employees)
	timer.End(
		logging.Int("patients", report.Patients),
		logging.Int("rooms", report.Rooms),
		logging.Int("stays", report.Stays),
		logging.Int("appointments", report.Appointments),
		logging.Int("unresolved_references", report.UnresolvedReferences),
		logging.Int("malformed_records", report.MalformedRecords))
	return ds, report, nil
}

func (r *LoadReport) malformed(logger logging.Logger, record, patientID, value string) {
	r.MalformedRecords++
	logger.Warn("skipping record with unrecognized timestamp",
		logging.String("record", record),
		logging.NodeID(patientID),
		logging.String("value", value))
}
