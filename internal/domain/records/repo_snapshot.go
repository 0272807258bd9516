package records

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

// NewRepository returns a Repository persisting the dentalData entry in
// the given snapshot store.
func NewRepository(store snapshot.Store) Repository {
	return &snapshotRepo{store: store}
}

func (r *snapshotRepo) Load(ctx context.Context) (*ClinicData, uint64, error) {
	entry, err := r.store.Load(ctx, snapshot.KeyDentalData)
	if errors.Is(err, snapshot.ErrNotFound) {
		return &ClinicData{Patients: []Patient{}, Incidents: []Incident{}}, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("load dentalData: %w", err)
	}
	var data ClinicData
	if err := json.Unmarshal(entry.Doc, &data); err != nil {
		return nil, 0, fmt.Errorf("decode dentalData: %w", err)
	}
	if data.Patients == nil {
		data.Patients = []Patient{}
	}
	if data.Incidents == nil {
		data.Incidents = []Incident{}
	}
	return &data, entry.Version, nil
}

func (r *snapshotRepo) Save(ctx context.Context, data *ClinicData, expected uint64) (uint64, error) {
	doc, err := json.Marshal(data)
	if err != nil {
		return 0, fmt.Errorf("encode dentalData: %w", err)
	}
	version, err := r.store.Save(ctx, snapshot.KeyDentalData, doc, expected)
	if errors.Is(err, snapshot.ErrConflict) {
		return 0, ErrStaleSnapshot
	}
	if err != nil {
		return 0, fmt.Errorf("save dentalData: %w", err)
	}
	return version, nil
}
