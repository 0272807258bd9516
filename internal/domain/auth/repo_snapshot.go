package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dental/dental/internal/platform/snapshot"
)

type snapshotRepo struct {
	store snapshot.Store
}

// NewRepository returns a Repository persisting the users and
// currentUser entries in the given snapshot store.
func NewRepository(store snapshot.Store) Repository {
	return &snapshotRepo{store: store}
}

func (r *snapshotRepo) LoadUsers(ctx context.Context) ([]Credential, uint64, error) {
	entry, err := r.store.Load(ctx, snapshot.KeyUsers)
	if errors.Is(err, snapshot.ErrNotFound) {
		return []Credential{}, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("load users: %w", err)
	}
	var users []Credential
	if err := json.Unmarshal(entry.Doc, &users); err != nil {
		return nil, 0, fmt.Errorf("decode users: %w", err)
	}
	return users, entry.Version, nil
}

func (r *snapshotRepo) SaveUsers(ctx context.Context, users []Credential, expected uint64) (uint64, error) {
	doc, err := json.Marshal(users)
	if err != nil {
		return 0, fmt.Errorf("encode users: %w", err)
	}
	version, err := r.store.Save(ctx, snapshot.KeyUsers, doc, expected)
	if errors.Is(err, snapshot.ErrConflict) {
		return 0, ErrStaleSnapshot
	}
	if err != nil {
		return 0, fmt.Errorf("save users: %w", err)
	}
	return version, nil
}

func (r *snapshotRepo) CurrentUser(ctx context.Context) (*Credential, error) {
	entry, err := r.store.Load(ctx, snapshot.KeyCurrentUser)
	if errors.Is(err, snapshot.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load currentUser: %w", err)
	}
	var c Credential
	if err := json.Unmarshal(entry.Doc, &c); err != nil {
		return nil, fmt.Errorf("decode currentUser: %w", err)
	}
	return &c, nil
}

// SetCurrentUser always wins: a new login replaces whatever session was
// persisted, so the write is retried against the current version until
// it lands.
func (r *snapshotRepo) SetCurrentUser(ctx context.Context, c Credential) error {
	doc, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode currentUser: %w", err)
	}
	for {
		version := uint64(0)
		entry, err := r.store.Load(ctx, snapshot.KeyCurrentUser)
		if err == nil {
			version = entry.Version
		} else if !errors.Is(err, snapshot.ErrNotFound) {
			return fmt.Errorf("load currentUser: %w", err)
		}
		_, err = r.store.Save(ctx, snapshot.KeyCurrentUser, doc, version)
		if errors.Is(err, snapshot.ErrConflict) {
			continue
		}
		if err != nil {
			return fmt.Errorf("save currentUser: %w", err)
		}
		return nil
	}
}

func (r *snapshotRepo) ClearCurrentUser(ctx context.Context) error {
	if err := r.store.Delete(ctx, snapshot.KeyCurrentUser); err != nil {
		return fmt.Errorf("clear currentUser: %w", err)
	}
	return nil
}
