package auth

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Service owns the login credentials and the process-wide session
// state. The session is restored explicitly on startup, set only by
// Login, and cleared only by Logout.
type Service struct {
	repo     Repository
	patients PatientDirectory
	log      zerolog.Logger

	mu      sync.RWMutex
	session *Session
}

// Option configures a Service.
type Option func(*Service)

// WithPatientDirectory wires the records service in so patient-role
// credentials are validated against existing patients.
func WithPatientDirectory(d PatientDirectory) Option {
	return func(s *Service) { s.patients = d }
}

func NewService(repo Repository, logger zerolog.Logger, opts ...Option) *Service {
	s := &Service{repo: repo, log: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Restore loads the persisted currentUser entry, if any, into the
// in-memory session. Called once at startup.
func (s *Service) Restore(ctx context.Context) (*Session, error) {
	c, err := s.repo.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if c == nil {
		s.session = nil
		return nil, nil
	}
	s.session = &Session{User: *c}
	return s.session, nil
}

// Current returns the active session, or nil when nobody is logged in.
func (s *Service) Current() *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session
}

// Login matches email and password exactly, case-sensitively, against
// the stored credentials. On success the session is set and persisted;
// on failure nothing changes.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	users, _, err := s.repo.LoadUsers(ctx)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		if u.Email != email || u.Password != password {
			continue
		}
		if err := s.repo.SetCurrentUser(ctx, u); err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.session = &Session{User: u}
		s.mu.Unlock()
		s.log.Info().Str("role", string(u.Role)).Msg("login")
		return s.Current(), nil
	}
	s.log.Warn().Str("email", email).Msg("login rejected")
	return nil, ErrInvalidCredentials
}

// Logout clears the session and its persisted entry. Logging out while
// already logged out is not an error.
func (s *Service) Logout(ctx context.Context) error {
	if err := s.repo.ClearCurrentUser(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	s.session = nil
	s.mu.Unlock()
	s.log.Info().Msg("logout")
	return nil
}

// Register appends a new credential and persists the whole collection.
// The email must be unused, case-insensitively, among credentials and
// patients; a Patient-role credential must reference an existing
// patient.
func (s *Service) Register(ctx context.Context, email, password string, role Role, patientID string) (string, error) {
	if role != RoleAdmin && role != RolePatient {
		return "", ErrInvalidRole
	}
	if role == RolePatient {
		if patientID == "" {
			return "", ErrUnknownPatient
		}
		if s.patients != nil {
			ok, err := s.patients.PatientExists(ctx, patientID)
			if err != nil {
				return "", err
			}
			if !ok {
				return "", ErrUnknownPatient
			}
		}
	}
	id := uuid.NewString()
	for attempt := 0; ; attempt++ {
		users, version, err := s.repo.LoadUsers(ctx)
		if err != nil {
			return "", err
		}
		for _, u := range users {
			if strings.EqualFold(u.Email, email) {
				return "", ErrDuplicateEmail
			}
		}
		c := Credential{ID: id, Email: email, Password: password, Role: role}
		if role == RolePatient {
			c.PatientID = patientID
		}
		if _, err := s.repo.SaveUsers(ctx, append(users, c), version); err != nil {
			if errors.Is(err, ErrStaleSnapshot) && attempt == 0 {
				s.log.Warn().Msg("stale users snapshot, retrying registration")
				continue
			}
			return "", err
		}
		s.log.Info().Str("role", string(role)).Msg("credential registered")
		return id, nil
	}
}

// SignUp is the patient self-registration path: the two seeded login
// emails stay reserved forever, regardless of case, even if their
// credentials were removed.
func (s *Service) SignUp(ctx context.Context, email, password, patientID string) (string, error) {
	for _, reserved := range reservedEmails {
		if strings.EqualFold(email, reserved) {
			return "", ErrDuplicateEmail
		}
	}
	return s.Register(ctx, email, password, RolePatient, patientID)
}

// EmailInUse reports whether any credential already uses the email,
// case-insensitively. The records service consults this before
// creating a patient with an email.
func (s *Service) EmailInUse(ctx context.Context, email string) (bool, error) {
	users, _, err := s.repo.LoadUsers(ctx)
	if err != nil {
		return false, err
	}
	for _, u := range users {
		if strings.EqualFold(u.Email, email) {
			return true, nil
		}
	}
	return false, nil
}
