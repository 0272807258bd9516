package records

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned for updates or deletes against an unknown
	// id. The stored collections are left unchanged.
	ErrNotFound = errors.New("records: not found")
	// ErrDuplicateEmail rejects a patient whose email is already taken,
	// case-insensitively, by another patient or a login credential.
	ErrDuplicateEmail = errors.New("records: email already registered")
	// ErrUnknownPatient rejects an incident whose patientId does not
	// resolve to an existing patient.
	ErrUnknownPatient = errors.New("records: unknown patient")
	// ErrNegativeCost rejects a negative incident cost.
	ErrNegativeCost = errors.New("records: cost must not be negative")
	// ErrInvalidStatus rejects a manage request whose status is neither
	// Scheduled nor Completed.
	ErrInvalidStatus = errors.New("records: invalid status for manage")
	// ErrStaleSnapshot means another writer persisted a newer snapshot
	// between our read and write.
	ErrStaleSnapshot = errors.New("records: stale snapshot")
)

// Repository loads and saves the whole clinic data snapshot. Load on an
// empty store returns an empty document with version 0; saving against
// version 0 creates the entry. Save returns ErrStaleSnapshot when the
// expected version no longer matches.
type Repository interface {
	Load(ctx context.Context) (*ClinicData, uint64, error)
	Save(ctx context.Context, data *ClinicData, expected uint64) (uint64, error)
}

// EmailChecker reports whether an email is already taken elsewhere.
// The auth service plugs in here so patient and credential emails stay
// unique across both collections.
type EmailChecker interface {
	EmailInUse(ctx context.Context, email string) (bool, error)
}
