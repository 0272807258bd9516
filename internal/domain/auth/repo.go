package auth

import (
	"context"
	"errors"
)

var (
	// ErrInvalidCredentials is returned by Login when no credential
	// matches the email/password pair exactly. No state changes.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrDuplicateEmail rejects a registration whose email is already
	// taken case-insensitively, or reserved by the seeded logins.
	ErrDuplicateEmail = errors.New("auth: email already registered")
	// ErrUnknownPatient rejects a patient-role credential whose
	// patientId does not resolve.
	ErrUnknownPatient = errors.New("auth: unknown patient")
	// ErrInvalidRole rejects roles outside Admin/Patient.
	ErrInvalidRole = errors.New("auth: invalid role")
	// ErrStaleSnapshot means another writer persisted a newer users
	// snapshot between our read and write.
	ErrStaleSnapshot = errors.New("auth: stale snapshot")
)

// Repository persists the credential collection and the single
// currentUser entry. SaveUsers writes the whole collection; there are
// no partial writes. CurrentUser returns nil without error when nobody
// is logged in.
type Repository interface {
	LoadUsers(ctx context.Context) ([]Credential, uint64, error)
	SaveUsers(ctx context.Context, users []Credential, expected uint64) (uint64, error)
	CurrentUser(ctx context.Context) (*Credential, error)
	SetCurrentUser(ctx context.Context, c Credential) error
	ClearCurrentUser(ctx context.Context) error
}

// PatientDirectory resolves patient ids; the records service plugs in
// here so patient-role credentials always reference a real patient.
type PatientDirectory interface {
	PatientExists(ctx context.Context, id string) (bool, error)
}
