package records

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Service owns the patients and incidents collections. Every mutation
// reads the latest snapshot, applies the change, and writes the whole
// snapshot back; uniqueness and referential checks run before the
// write, so a rejected operation leaves the store untouched.
type Service struct {
	repo   Repository
	emails EmailChecker
	log    zerolog.Logger
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{repo: repo, log: logger}
}

// BindCredentials wires the credential store in so patient emails are
// also checked against logins. Bound after construction because the
// auth service itself is built around this service.
func (s *Service) BindCredentials(c EmailChecker) { s.emails = c }

// errNoChange lets a mutation report that the snapshot came out
// identical, skipping the write.
var errNoChange = errors.New("records: no change")

// mutate runs fn against the freshest snapshot and persists the result.
// A stale write is retried once from a re-read; under the single-writer
// model a second conflict means a genuinely concurrent process and is
// surfaced to the caller.
func (s *Service) mutate(ctx context.Context, fn func(*ClinicData) error) error {
	for attempt := 0; ; attempt++ {
		data, version, err := s.repo.Load(ctx)
		if err != nil {
			return err
		}
		if err := fn(data); err != nil {
			if errors.Is(err, errNoChange) {
				return nil
			}
			return err
		}
		if _, err := s.repo.Save(ctx, data, version); err != nil {
			if errors.Is(err, ErrStaleSnapshot) && attempt == 0 {
				s.log.Warn().Msg("stale snapshot, retrying mutation")
				continue
			}
			return err
		}
		return nil
	}
}

func (s *Service) emailTaken(ctx context.Context, data *ClinicData, email, excludePatientID string) (bool, error) {
	if email == "" {
		return false, nil
	}
	for _, p := range data.Patients {
		if p.ID != excludePatientID && strings.EqualFold(p.Email, email) {
			return true, nil
		}
	}
	if s.emails != nil {
		return s.emails.EmailInUse(ctx, email)
	}
	return false, nil
}

// AddPatient assigns a fresh id and appends the patient. Email, when
// present, must be unused across patients and credentials.
func (s *Service) AddPatient(ctx context.Context, p Patient) (string, error) {
	p.ID = uuid.NewString()
	err := s.mutate(ctx, func(data *ClinicData) error {
		taken, err := s.emailTaken(ctx, data, p.Email, "")
		if err != nil {
			return err
		}
		if taken {
			return ErrDuplicateEmail
		}
		data.Patients = append(data.Patients, p)
		return nil
	})
	if err != nil {
		return "", err
	}
	s.log.Info().Str("patient_id", p.ID).Msg("patient added")
	return p.ID, nil
}

// UpdatePatient merges the set fields over the stored patient.
func (s *Service) UpdatePatient(ctx context.Context, id string, upd PatientUpdate) error {
	err := s.mutate(ctx, func(data *ClinicData) error {
		for i := range data.Patients {
			if data.Patients[i].ID != id {
				continue
			}
			p := &data.Patients[i]
			if upd.Email != nil && !strings.EqualFold(*upd.Email, p.Email) {
				taken, err := s.emailTaken(ctx, data, *upd.Email, id)
				if err != nil {
					return err
				}
				if taken {
					return ErrDuplicateEmail
				}
			}
			if upd.Name != nil {
				p.Name = *upd.Name
			}
			if upd.DOB != nil {
				p.DOB = *upd.DOB
			}
			if upd.Contact != nil {
				p.Contact = *upd.Contact
			}
			if upd.HealthInfo != nil {
				p.HealthInfo = *upd.HealthInfo
			}
			if upd.Email != nil {
				p.Email = *upd.Email
			}
			return nil
		}
		return ErrNotFound
	})
	if err == nil {
		s.log.Info().Str("patient_id", id).Msg("patient updated")
	}
	return err
}

// DeletePatient removes the patient and every incident referencing it
// in a single snapshot write.
func (s *Service) DeletePatient(ctx context.Context, id string) error {
	err := s.mutate(ctx, func(data *ClinicData) error {
		patients := data.Patients[:0]
		found := false
		for _, p := range data.Patients {
			if p.ID == id {
				found = true
				continue
			}
			patients = append(patients, p)
		}
		if !found {
			return ErrNotFound
		}
		data.Patients = patients

		incidents := data.Incidents[:0]
		for _, inc := range data.Incidents {
			if inc.PatientID != id {
				incidents = append(incidents, inc)
			}
		}
		data.Incidents = incidents
		return nil
	})
	if err == nil {
		s.log.Info().Str("patient_id", id).Msg("patient deleted with incidents")
	}
	return err
}

// AddIncident assigns a fresh id and appends the incident. The patient
// must exist and the cost must not be negative. An empty status
// defaults to Scheduled.
func (s *Service) AddIncident(ctx context.Context, inc Incident) (string, error) {
	if inc.Cost < 0 {
		return "", ErrNegativeCost
	}
	inc.ID = uuid.NewString()
	if inc.Status == "" {
		inc.Status = StatusScheduled
	}
	if inc.Files == nil {
		inc.Files = []Attachment{}
	}
	err := s.mutate(ctx, func(data *ClinicData) error {
		if !hasPatient(data, inc.PatientID) {
			return ErrUnknownPatient
		}
		data.Incidents = append(data.Incidents, inc)
		return nil
	})
	if err != nil {
		return "", err
	}
	s.log.Info().Str("incident_id", inc.ID).Str("patient_id", inc.PatientID).Msg("incident added")
	return inc.ID, nil
}

// UpdateIncident is the direct-edit path: set fields overwrite the
// stored record field by field.
func (s *Service) UpdateIncident(ctx context.Context, id string, upd IncidentUpdate) error {
	if upd.Cost != nil && *upd.Cost < 0 {
		return ErrNegativeCost
	}
	err := s.mutate(ctx, func(data *ClinicData) error {
		inc := findIncident(data, id)
		if inc == nil {
			return ErrNotFound
		}
		if upd.PatientID != nil && *upd.PatientID != inc.PatientID {
			if !hasPatient(data, *upd.PatientID) {
				return ErrUnknownPatient
			}
			inc.PatientID = *upd.PatientID
		}
		if upd.Title != nil {
			inc.Title = *upd.Title
		}
		if upd.Description != nil {
			inc.Description = *upd.Description
		}
		if upd.Comments != nil {
			inc.Comments = *upd.Comments
		}
		if upd.AppointmentDate != nil {
			inc.AppointmentDate = *upd.AppointmentDate
		}
		if upd.Cost != nil {
			inc.Cost = *upd.Cost
		}
		if upd.Status != nil {
			inc.Status = *upd.Status
		}
		if upd.Files != nil {
			inc.Files = *upd.Files
		}
		return nil
	})
	if err == nil {
		s.log.Info().Str("incident_id", id).Msg("incident updated")
	}
	return err
}

// ManageIncident records a follow-up charge against an existing visit:
// the request's attachments are appended, its cost is added, and the
// status is set to the caller's explicit choice of Scheduled or
// Completed. This never replaces the stored attachments or cost; use
// UpdateIncident to correct fields.
func (s *Service) ManageIncident(ctx context.Context, id string, req ManageRequest) error {
	if req.Status != StatusScheduled && req.Status != StatusCompleted {
		return ErrInvalidStatus
	}
	if req.Cost < 0 {
		return ErrNegativeCost
	}
	err := s.mutate(ctx, func(data *ClinicData) error {
		inc := findIncident(data, id)
		if inc == nil {
			return ErrNotFound
		}
		if req.Title != nil {
			inc.Title = *req.Title
		}
		if req.Description != nil {
			inc.Description = *req.Description
		}
		if req.Comments != nil {
			inc.Comments = *req.Comments
		}
		if req.AppointmentDate != nil {
			inc.AppointmentDate = *req.AppointmentDate
		}
		inc.Cost += req.Cost
		inc.Files = append(inc.Files, req.Files...)
		inc.Status = req.Status
		return nil
	})
	if err == nil {
		s.log.Info().Str("incident_id", id).Float64("added_cost", req.Cost).Msg("incident managed")
	}
	return err
}

// DeleteIncident removes one incident. No cascade.
func (s *Service) DeleteIncident(ctx context.Context, id string) error {
	err := s.mutate(ctx, func(data *ClinicData) error {
		incidents := data.Incidents[:0]
		found := false
		for _, inc := range data.Incidents {
			if inc.ID == id {
				found = true
				continue
			}
			incidents = append(incidents, inc)
		}
		if !found {
			return ErrNotFound
		}
		data.Incidents = incidents
		return nil
	})
	if err == nil {
		s.log.Info().Str("incident_id", id).Msg("incident deleted")
	}
	return err
}

// SweepOverdue transitions every overdue Scheduled incident to
// Completed and reports how many changed. Zero changes skip the write
// entirely, which keeps repeated sweeps idempotent on the stored
// snapshot.
func (s *Service) SweepOverdue(ctx context.Context, now time.Time) (int, error) {
	changed := 0
	err := s.mutate(ctx, func(data *ClinicData) error {
		changed = 0
		for _, id := range OverdueScheduled(data.Incidents, now) {
			if inc := findIncident(data, id); inc != nil {
				inc.Status = StatusCompleted
				changed++
			}
		}
		if changed == 0 {
			return errNoChange
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if changed > 0 {
		s.log.Info().Int("count", changed).Msg("overdue incidents completed")
	}
	return changed, nil
}

func (s *Service) ListPatients(ctx context.Context) ([]Patient, error) {
	data, _, err := s.repo.Load(ctx)
	if err != nil {
		return nil, err
	}
	return data.Patients, nil
}

func (s *Service) GetPatient(ctx context.Context, id string) (*Patient, error) {
	data, _, err := s.repo.Load(ctx)
	if err != nil {
		return nil, err
	}
	for i := range data.Patients {
		if data.Patients[i].ID == id {
			return &data.Patients[i], nil
		}
	}
	return nil, ErrNotFound
}

func (s *Service) ListIncidents(ctx context.Context) ([]Incident, error) {
	data, _, err := s.repo.Load(ctx)
	if err != nil {
		return nil, err
	}
	return data.Incidents, nil
}

func (s *Service) ListIncidentsByPatient(ctx context.Context, patientID string) ([]Incident, error) {
	data, _, err := s.repo.Load(ctx)
	if err != nil {
		return nil, err
	}
	var out []Incident
	for _, inc := range data.Incidents {
		if inc.PatientID == patientID {
			out = append(out, inc)
		}
	}
	return out, nil
}

func (s *Service) GetIncident(ctx context.Context, id string) (*Incident, error) {
	data, _, err := s.repo.Load(ctx)
	if err != nil {
		return nil, err
	}
	if inc := findIncident(data, id); inc != nil {
		return inc, nil
	}
	return nil, ErrNotFound
}

// PatientExists implements the directory lookup the auth service uses
// to validate patient-role credentials.
func (s *Service) PatientExists(ctx context.Context, id string) (bool, error) {
	data, _, err := s.repo.Load(ctx)
	if err != nil {
		return false, err
	}
	return hasPatient(data, id), nil
}

// EmailInUse reports whether any patient already uses the email,
// case-insensitively. The auth service consults this before
// registering a credential.
func (s *Service) EmailInUse(ctx context.Context, email string) (bool, error) {
	data, _, err := s.repo.Load(ctx)
	if err != nil {
		return false, err
	}
	for _, p := range data.Patients {
		if p.Email != "" && strings.EqualFold(p.Email, email) {
			return true, nil
		}
	}
	return false, nil
}

// Stats summarises the dashboard KPIs: patient count, upcoming
// scheduled visits, completed and pending treatment counts, and
// revenue as the summed cost of completed incidents.
func (s *Service) Stats(ctx context.Context, now time.Time) (Stats, error) {
	data, _, err := s.repo.Load(ctx)
	if err != nil {
		return Stats{}, err
	}
	st := Stats{Patients: len(data.Patients)}
	for _, inc := range data.Incidents {
		switch inc.Status {
		case StatusCompleted:
			st.Completed++
			st.Revenue += inc.Cost
		default:
			st.Pending++
		}
		if inc.Status == StatusScheduled && inc.AppointmentDate.After(now) {
			st.Upcoming++
		}
	}
	return st, nil
}

func hasPatient(data *ClinicData, id string) bool {
	for _, p := range data.Patients {
		if p.ID == id {
			return true
		}
	}
	return false
}

func findIncident(data *ClinicData, id string) *Incident {
	for i := range data.Incidents {
		if data.Incidents[i].ID == id {
			return &data.Incidents[i]
		}
	}
	return nil
}
