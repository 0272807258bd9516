package records

import "time"

// Status is the lifecycle state of an incident.
type Status string

const (
	StatusScheduled  Status = "Scheduled"
	StatusInProgress Status = "InProgress"
	StatusCompleted  Status = "Completed"
	StatusCancelled  Status = "Cancelled"
)

// AttachmentKind distinguishes previewable images from other files.
type AttachmentKind string

const (
	AttachmentImage AttachmentKind = "image"
	AttachmentFile  AttachmentKind = "file"
)

// Attachment is an opaque file reference recorded against an incident.
// The store never interprets the content behind URL.
type Attachment struct {
	Name string         `json:"name"`
	URL  string         `json:"url"`
	Kind AttachmentKind `json:"kind"`
}

// Patient maps to an entry of dentalData.patients. Email is set only for
// patients who registered a portal login; it is left empty for patients
// the clinic entered directly.
type Patient struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	DOB        string `json:"dob"`
	Contact    string `json:"contact"`
	HealthInfo string `json:"healthInfo"`
	Email      string `json:"email,omitempty"`
}

// Incident is an appointment/treatment event tied to a patient. It maps
// to an entry of dentalData.incidents.
type Incident struct {
	ID              string       `json:"id"`
	PatientID       string       `json:"patientId"`
	Title           string       `json:"title"`
	Description     string       `json:"description"`
	Comments        string       `json:"comments"`
	AppointmentDate time.Time    `json:"appointmentDate"`
	Cost            float64      `json:"cost"`
	Status          Status       `json:"status"`
	Files           []Attachment `json:"files"`
}

// ClinicData is the whole dentalData document, persisted as one
// snapshot on every mutation.
type ClinicData struct {
	Patients  []Patient  `json:"patients"`
	Incidents []Incident `json:"incidents"`
}

// PatientUpdate merges set fields over an existing patient. Nil fields
// are left untouched.
type PatientUpdate struct {
	Name       *string
	DOB        *string
	Contact    *string
	HealthInfo *string
	Email      *string
}

// IncidentUpdate is the direct-edit form: set fields overwrite the
// stored ones field by field.
type IncidentUpdate struct {
	PatientID       *string
	Title           *string
	Description     *string
	Comments        *string
	AppointmentDate *time.Time
	Cost            *float64
	Status          *Status
	Files           *[]Attachment
}

// ManageRequest records a follow-up charge against an existing visit:
// Files are appended to the stored list, Cost is added to the stored
// cost, and Status must be set explicitly to Scheduled or Completed.
type ManageRequest struct {
	Title           *string
	Description     *string
	Comments        *string
	AppointmentDate *time.Time
	Cost            float64
	Files           []Attachment
	Status          Status
}

// Stats is the dashboard KPI summary.
type Stats struct {
	Patients  int     `json:"patients"`
	Upcoming  int     `json:"upcoming"`
	Completed int     `json:"completed"`
	Pending   int     `json:"pending"`
	Revenue   float64 `json:"revenue"`
}
