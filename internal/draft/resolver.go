package draft

import (
	"context"

	"casebook/api/internal/record"
)

// Resolver arbitrates the "resume vs. start fresh" choice at intake time.
// It only ever reports an existing draft; presenting the choice is the
// caller's job, and declining to resume leaves the old draft untouched so an
// abandon-by-mistake stays recoverable.
type Resolver struct {
	store Store
}

func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// CheckExistingDraft returns the clinician's most recently updated
// unsubmitted draft, or nil when there is none to offer.
func (r *Resolver) CheckExistingDraft(ctx context.Context, clinicianEmail string) (*record.CaseRecord, error) {
	rec, err := r.store.FindByClinicianEmail(ctx, clinicianEmail)
	if err == ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}
