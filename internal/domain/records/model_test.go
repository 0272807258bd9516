package records

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

// The dentalData document shape is an on-disk contract shared with
// earlier deployments; field names must stay exactly as they were.
func TestClinicDataWireFormat(t *testing.T) {
	data := ClinicData{
		Patients: []Patient{{
			ID: "p1", Name: "John Doe", DOB: "1990-05-10",
			Contact: "1234567890", HealthInfo: "No allergies",
		}},
		Incidents: []Incident{{
			ID: "i1", PatientID: "p1", Title: "Toothache",
			Description: "Upper molar pain", Comments: "Sensitive to cold",
			AppointmentDate: time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC),
			Cost:            80, Status: StatusCompleted,
			Files: []Attachment{{Name: "xray.png", URL: "blob:x", Kind: AttachmentImage}},
		}},
	}

	b, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	doc := string(b)
	for _, field := range []string{
		`"patients"`, `"incidents"`, `"id"`, `"name"`, `"dob"`, `"contact"`,
		`"healthInfo"`, `"patientId"`, `"title"`, `"description"`, `"comments"`,
		`"appointmentDate"`, `"cost"`, `"status"`, `"files"`, `"url"`, `"kind"`,
	} {
		if !strings.Contains(doc, field) {
			t.Errorf("document is missing field %s: %s", field, doc)
		}
	}
	if strings.Contains(doc, `"email"`) {
		t.Errorf("empty patient email should be omitted: %s", doc)
	}
}

func TestClinicDataRoundTrip(t *testing.T) {
	raw := `{
		"patients":[{"id":"p1","name":"John Doe","dob":"1990-05-10","contact":"1234567890","healthInfo":"No allergies"}],
		"incidents":[{"id":"i1","patientId":"p1","title":"Toothache","description":"Upper molar pain","comments":"Sensitive to cold","appointmentDate":"2026-01-02T10:00:00Z","cost":80,"status":"Completed","files":[]}]
	}`
	var data ClinicData
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(data.Patients) != 1 || data.Patients[0].HealthInfo != "No allergies" {
		t.Fatalf("patients = %+v", data.Patients)
	}
	inc := data.Incidents[0]
	if inc.PatientID != "p1" || inc.Status != StatusCompleted || inc.Cost != 80 {
		t.Fatalf("incident = %+v", inc)
	}
	if !inc.AppointmentDate.Equal(time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("appointmentDate = %v", inc.AppointmentDate)
	}
}
