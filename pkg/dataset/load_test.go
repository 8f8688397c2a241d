package dataset

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFile(t *testing.T) {
	ds, report, err := LoadFile("testdata/ward.json", nil)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Patients)
	assert.Equal(t, 3, report.Rooms)
	assert.Equal(t, 4, report.Stays)
	assert.Equal(t, 3, report.Appointments)
	assert.Equal(t, 1, report.UnresolvedReferences)
	assert.Equal(t, []string{"PAT1", "PAT2"}, ds.PatientIDs())

	p1 := ds.Patients["PAT1"]
	require.Len(t, p1.Risks, 2)
	assert.Equal(t, time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), p1.Risks[0].Date)

	stay := p1.Stays[0]
	assert.Equal(t, "W1", stay.WardName())
	require.NotNil(t, stay.Room)
	assert.Equal(t, "101_SAP@A-101_WAVE", stay.Room.JoinedIDs())

	app := p1.Appointments[0]
	assert.Equal(t, time.Date(2024, 1, 2, 10, 30, 0, 0, time.UTC), app.End())
	require.Len(t, app.Employees, 2)
	assert.NotNil(t, app.Employees[0])
	assert.Nil(t, app.Employees[1], "unresolved employee stays as a nil slot")

	p2 := ds.Patients["PAT2"]
	assert.Empty(t, p2.Stays[1].RoomID)
	assert.Nil(t, p2.Stays[1].Room)
}

func TestLoad_InvalidTimestampSkipsRecord(t *testing.T) {
	ds, report, err := Load(strings.NewReader(`{"patients":[
		{"id":"P1","stays":[{"room_id":"R","from":"2020-01-01","to":"2020-01-03"}]},
		{"id":"P2",
		 "risks":[{"date":"yesterday","result":"nn"},{"date":"2020-01-02","result":"32"}],
		 "stays":[{"room_id":"R","from":"2020-01-01","to":"01/02/2020"}],
		 "appointments":[{"id":"A","date":20200101,"duration_in_mins":30}]}
	]}`), nil)
	require.NoError(t, err)

	assert.Equal(t, 3, report.MalformedRecords)
	assert.Equal(t, 2, report.Patients)
	assert.Equal(t, 1, report.Stays)
	assert.Equal(t, 0, report.Appointments)
	require.Contains(t, ds.Patients, "P1")
	assert.Len(t, ds.Patients["P1"].Stays, 1)

	p2 := ds.Patients["P2"]
	require.NotNil(t, p2)
	assert.Empty(t, p2.Stays)
	assert.Empty(t, p2.Appointments)
	require.Len(t, p2.Risks, 1)
	assert.Equal(t, "32", p2.Risks[0].Result)
}

func TestTimestamp_Malformed(t *testing.T) {
	var ts Timestamp
	require.NoError(t, ts.UnmarshalJSON([]byte(`"31.12.2020"`)))
	assert.False(t, ts.Valid())
	assert.Equal(t, "31.12.2020", ts.Malformed)

	require.NoError(t, ts.UnmarshalJSON([]byte(`""`)))
	assert.True(t, ts.Valid())
	assert.True(t, ts.IsZero())
}

func TestLoad_MissingFile(t *testing.T) {
	_, _, err := LoadFile("testdata/does-not-exist.json", nil)
	assert.Error(t, err)
}

func TestLoad_DuplicateIDs(t *testing.T) {
	_, report, err := Load(strings.NewReader(`{"devices":[{"id":"D","name":"a"},{"id":"D","name":"b"}]}`), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, report.DuplicateIDs)
	assert.Equal(t, 1, report.Devices)
}

func TestRoomAddID_Deduplicates(t *testing.T) {
	r := &Room{ID: "R"}
	r.AddID("1", "SAP")
	r.AddID("1", "WAVE")
	r.AddID("2", "WAVE")
	assert.Equal(t, "1_SAP@2_WAVE", r.JoinedIDs())
	assert.Equal(t, "", (&Room{}).JoinedIDs())
}
