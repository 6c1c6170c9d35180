// Package draft provides draft persistence for case records: a key-value
// store keyed by case id, the debounced synchronizer that feeds it, and the
// recovery resolver that offers unsubmitted drafts back to a clinician.
package draft

import (
	"context"
	"errors"

	"casebook/api/internal/record"
)

var (
	// ErrNotFound is returned when no draft exists for the key.
	ErrNotFound = errors.New("draft: not found")
	// ErrAlreadySubmitted is returned for draft-mutating writes against a
	// record whose submission already completed. The transition is one-way.
	ErrAlreadySubmitted = errors.New("draft: record already submitted")
	// ErrPersistenceUnavailable wraps a Redis command failure that is not a
	// missing key, so the HTTP layer can answer 503 instead of 500.
	ErrPersistenceUnavailable = errors.New("draft: persistence unavailable")
)

// Store is the draft persistence contract. Put is a full-record upsert;
// merging partial updates happens in the Synchronizer, never here.
//
// Implementations must guarantee read-your-writes within a process, keep
// LastUpdated monotonically non-decreasing per case id (an older concurrent
// write is dropped, not applied), and refuse to flip IsSubmitted back.
type Store interface {
	Get(ctx context.Context, caseID string) (*record.CaseRecord, error)
	Put(ctx context.Context, rec *record.CaseRecord) error
	// FindByClinicianEmail returns the most recently updated unsubmitted
	// record for the email, or ErrNotFound.
	FindByClinicianEmail(ctx context.Context, email string) (*record.CaseRecord, error)
	MarkSubmitted(ctx context.Context, caseID string) error
	ListUnsubmitted(ctx context.Context) ([]*record.CaseRecord, error)
	ListIDs(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, caseID string) error
	Ping(ctx context.Context) error
}
