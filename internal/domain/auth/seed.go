package auth

import (
	"context"
	"errors"
)

// Seeded credentials, fixed by the persisted-data contract. Their
// emails are permanently reserved against patient self-registration.
const (
	SeedAdminEmail      = "admin@entnt.in"
	seedAdminPassword   = "admin123"
	SeedPatientEmail    = "patient@entnt.in"
	seedPatientPassword = "patient123"
)

var reservedEmails = []string{SeedAdminEmail, SeedPatientEmail}

func seedUsers(patientID string) []Credential {
	return []Credential{
		{ID: "1", Role: RoleAdmin, Email: SeedAdminEmail, Password: seedAdminPassword},
		{ID: "2", Role: RolePatient, Email: SeedPatientEmail, Password: seedPatientPassword, PatientID: patientID},
	}
}

// EnsureSeeded writes the two well-known credentials when no users
// entry exists yet. Existing credentials are never overwritten; losing
// the create race to a concurrent first run counts as seeded.
func (s *Service) EnsureSeeded(ctx context.Context, seedPatientID string) error {
	_, version, err := s.repo.LoadUsers(ctx)
	if err != nil {
		return err
	}
	if version != 0 {
		return nil
	}
	if _, err := s.repo.SaveUsers(ctx, seedUsers(seedPatientID), 0); err != nil {
		if errors.Is(err, ErrStaleSnapshot) {
			return nil
		}
		return err
	}
	s.log.Info().Msg("seeded credentials")
	return nil
}
