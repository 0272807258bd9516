package records

import (
	"context"
	"errors"
	"time"
)

// Well-known seed ids referenced by the seeded patient credential.
const (
	SeedPatientID  = "p1"
	seedIncidentID = "i1"
)

func seedData(now time.Time) *ClinicData {
	return &ClinicData{
		Patients: []Patient{
			{
				ID:         SeedPatientID,
				Name:       "John Doe",
				DOB:        "1990-05-10",
				Contact:    "1234567890",
				HealthInfo: "No allergies",
			},
		},
		Incidents: []Incident{
			{
				ID:              seedIncidentID,
				PatientID:       SeedPatientID,
				Title:           "Toothache",
				Description:     "Upper molar pain",
				Comments:        "Sensitive to cold",
				AppointmentDate: now,
				Cost:            80,
				Status:          StatusCompleted,
				Files:           []Attachment{},
			},
		},
	}
}

// EnsureSeeded writes the sample patient and incident when no
// dentalData entry exists yet. Existing data is never overwritten; a
// concurrent first run losing the create race is treated as seeded.
func (s *Service) EnsureSeeded(ctx context.Context, now time.Time) error {
	_, version, err := s.repo.Load(ctx)
	if err != nil {
		return err
	}
	if version != 0 {
		return nil
	}
	if _, err := s.repo.Save(ctx, seedData(now), 0); err != nil {
		if errors.Is(err, ErrStaleSnapshot) {
			return nil
		}
		return err
	}
	s.log.Info().Msg("seeded clinic data")
	return nil
}
