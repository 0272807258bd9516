package integration

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/dental/dental/internal/domain/auth"
	"github.com/dental/dental/internal/domain/records"
	"github.com/dental/dental/internal/platform/snapshot"
)

// clinic wires both services over one store the way cmd/dental does.
type clinic struct {
	store snapshot.Store
	recs  *records.Service
	auth  *auth.Service
}

func openClinic(t *testing.T, store snapshot.Store) *clinic {
	t.Helper()
	ctx := context.Background()

	recs := records.NewService(records.NewRepository(store), zerolog.Nop())
	authSvc := auth.NewService(auth.NewRepository(store), zerolog.Nop(),
		auth.WithPatientDirectory(recs))
	recs.BindCredentials(authSvc)

	if err := recs.EnsureSeeded(ctx, time.Now()); err != nil {
		t.Fatalf("seed records: %v", err)
	}
	if err := authSvc.EnsureSeeded(ctx, records.SeedPatientID); err != nil {
		t.Fatalf("seed credentials: %v", err)
	}
	if _, err := authSvc.Restore(ctx); err != nil {
		t.Fatalf("restore session: %v", err)
	}
	return &clinic{store: store, recs: recs, auth: authSvc}
}

func newFileClinic(t *testing.T) *clinic {
	t.Helper()
	store, err := snapshot.NewFile(t.TempDir())
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return openClinic(t, store)
}

func TestFirstRunSeedsWellKnownData(t *testing.T) {
	c := newFileClinic(t)
	ctx := context.Background()

	sess, err := c.auth.Login(ctx, auth.SeedAdminEmail, "admin123")
	if err != nil {
		t.Fatalf("seeded admin login: %v", err)
	}
	if !sess.IsAdmin() {
		t.Fatalf("seeded admin role = %q", sess.User.Role)
	}

	patients, err := c.recs.ListPatients(ctx)
	if err != nil {
		t.Fatalf("ListPatients: %v", err)
	}
	if len(patients) != 1 || patients[0].ID != records.SeedPatientID || patients[0].Name != "John Doe" {
		t.Fatalf("seed patients = %+v", patients)
	}
	incidents, err := c.recs.ListIncidents(ctx)
	if err != nil {
		t.Fatalf("ListIncidents: %v", err)
	}
	if len(incidents) != 1 || incidents[0].Title != "Toothache" || incidents[0].Cost != 80 {
		t.Fatalf("seed incidents = %+v", incidents)
	}
}

func TestSessionSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := snapshot.NewFile(dir)
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	c := openClinic(t, store)
	if _, err := c.auth.Login(ctx, auth.SeedPatientEmail, "patient123"); err != nil {
		t.Fatalf("login: %v", err)
	}
	store.Close()

	// A fresh process over the same directory restores the login.
	store2, err := snapshot.NewFile(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer store2.Close()
	c2 := openClinic(t, store2)
	sess := c2.auth.Current()
	if sess == nil || sess.User.Email != auth.SeedPatientEmail {
		t.Fatalf("restored session = %+v", sess)
	}

	if err := c2.auth.Logout(ctx); err != nil {
		t.Fatalf("logout: %v", err)
	}
	store2.Close()

	store3, err := snapshot.NewFile(dir)
	if err != nil {
		t.Fatalf("reopen after logout: %v", err)
	}
	defer store3.Close()
	c3 := openClinic(t, store3)
	if c3.auth.Current() != nil {
		t.Fatal("session survived logout across reopen")
	}
}

func TestPatientSignupAndPortalView(t *testing.T) {
	c := newFileClinic(t)
	ctx := context.Background()

	// Self-registration: patient record plus portal credential.
	patientID, err := c.recs.AddPatient(ctx, records.Patient{
		Name: "Jane Roe", DOB: "1985-02-14", Contact: "555", Email: "jane@example.com",
	})
	if err != nil {
		t.Fatalf("AddPatient: %v", err)
	}
	if _, err := c.auth.SignUp(ctx, "jane@example.com", "hunter2", patientID); err != nil {
		t.Fatalf("SignUp: %v", err)
	}

	// The email is now taken on both sides, in any case.
	if _, err := c.recs.AddPatient(ctx, records.Patient{Name: "Dup", Email: "JANE@EXAMPLE.COM"}); !errors.Is(err, records.ErrDuplicateEmail) {
		t.Fatalf("patient with credential email: want ErrDuplicateEmail, got %v", err)
	}
	if _, err := c.auth.Register(ctx, "Jane@Example.com", "pw", auth.RoleAdmin, ""); !errors.Is(err, auth.ErrDuplicateEmail) {
		t.Fatalf("credential with credential email: want ErrDuplicateEmail, got %v", err)
	}

	sess, err := c.auth.Login(ctx, "jane@example.com", "hunter2")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	mine, err := c.recs.ListIncidentsByPatient(ctx, sess.User.PatientID)
	if err != nil {
		t.Fatalf("ListIncidentsByPatient: %v", err)
	}
	if len(mine) != 0 {
		t.Fatalf("fresh patient already has %d incidents", len(mine))
	}
}

func TestAppointmentLifecycle(t *testing.T) {
	c := newFileClinic(t)
	ctx := context.Background()
	now := time.Now()

	// Book yesterday's visit directly against the seed patient, then
	// read through the status rule: it must come back Completed.
	id, err := c.recs.AddIncident(ctx, records.Incident{
		PatientID:       records.SeedPatientID,
		Title:           "Follow-up",
		AppointmentDate: now.Add(-24 * time.Hour),
		Status:          records.StatusScheduled,
		Files:           []records.Attachment{},
	})
	if err != nil {
		t.Fatalf("AddIncident: %v", err)
	}
	if _, err := c.recs.SweepOverdue(ctx, now); err != nil {
		t.Fatalf("SweepOverdue: %v", err)
	}
	inc, err := c.recs.GetIncident(ctx, id)
	if err != nil {
		t.Fatalf("GetIncident: %v", err)
	}
	if inc.Status != records.StatusCompleted {
		t.Fatalf("overdue status = %q, want Completed", inc.Status)
	}

	// Record a follow-up charge against the completed visit.
	err = c.recs.ManageIncident(ctx, id, records.ManageRequest{
		Cost:   35,
		Files:  []records.Attachment{{Name: "invoice.pdf", URL: "blob:inv", Kind: records.AttachmentFile}},
		Status: records.StatusCompleted,
	})
	if err != nil {
		t.Fatalf("ManageIncident: %v", err)
	}
	inc, _ = c.recs.GetIncident(ctx, id)
	if inc.Cost != 35 || len(inc.Files) != 1 {
		t.Fatalf("managed incident = %+v", inc)
	}

	// Deleting the patient takes every incident with it.
	if err := c.recs.DeletePatient(ctx, records.SeedPatientID); err != nil {
		t.Fatalf("DeletePatient: %v", err)
	}
	left, err := c.recs.ListIncidents(ctx)
	if err != nil {
		t.Fatalf("ListIncidents: %v", err)
	}
	if len(left) != 0 {
		t.Fatalf("%d incidents survived the cascade", len(left))
	}
}

func TestTwoHandlesLoseNoWrites(t *testing.T) {
	dir := t.TempDir()
	store1, err := snapshot.NewFile(dir)
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	defer store1.Close()
	store2, err := snapshot.NewFile(dir)
	if err != nil {
		t.Fatalf("NewFile second handle: %v", err)
	}
	defer store2.Close()

	c1 := openClinic(t, store1)
	c2 := openClinic(t, store2)
	ctx := context.Background()

	// Both "tabs" write; the services re-read on conflict, so neither
	// write is lost.
	if _, err := c1.recs.AddPatient(ctx, records.Patient{Name: "From tab one"}); err != nil {
		t.Fatalf("tab one AddPatient: %v", err)
	}
	if _, err := c2.recs.AddPatient(ctx, records.Patient{Name: "From tab two"}); err != nil {
		t.Fatalf("tab two AddPatient: %v", err)
	}

	patients, err := c1.recs.ListPatients(ctx)
	if err != nil {
		t.Fatalf("ListPatients: %v", err)
	}
	if len(patients) != 3 {
		t.Fatalf("patients = %d, want 3 (seed + one per tab)", len(patients))
	}
}
