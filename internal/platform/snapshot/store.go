// Package snapshot provides the durable named-document store backing the
// clinic data layer. Every entry is a whole JSON document written
// atomically under a well-known key; a monotonically increasing version
// per entry gives optimistic concurrency across independent processes
// sharing the same storage location.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
)

// Well-known entry keys. Their names and document shapes are part of the
// on-disk contract and must not change.
const (
	KeyUsers       = "users"
	KeyDentalData  = "dentalData"
	KeyCurrentUser = "currentUser"
)

var (
	// ErrNotFound is returned by Load when no entry exists under the key.
	ErrNotFound = errors.New("snapshot: entry not found")
	// ErrConflict is returned by Save when the expected version does not
	// match the stored one. The caller should re-read and retry.
	ErrConflict = errors.New("snapshot: version conflict")
)

// Entry is a stored document together with its current version.
type Entry struct {
	Doc     json.RawMessage
	Version uint64
}

// Store is the durable snapshot store. Save with expected version 0
// creates the entry; any other expected version must equal the stored
// version or the write is rejected with ErrConflict. Delete of an absent
// entry is a no-op.
type Store interface {
	Load(ctx context.Context, key string) (Entry, error)
	Save(ctx context.Context, key string, doc json.RawMessage, expected uint64) (uint64, error)
	Delete(ctx context.Context, key string) error
	Close() error
}
