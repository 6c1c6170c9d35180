package draft

import (
	"context"
	"sync"
	"time"

	"casebook/api/internal/record"
)

// MemoryStore is the degraded mode used when the durable backend is
// unreachable: drafts survive only for the process lifetime, but every
// mutation keeps working instead of failing.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*record.CaseRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*record.CaseRecord)}
}

func (s *MemoryStore) Get(ctx context.Context, caseID string) (*record.CaseRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[caseID]
	if !ok {
		return nil, ErrNotFound
	}
	out := rec.Clone()
	out.Normalize()
	return out, nil
}

func (s *MemoryStore) Put(ctx context.Context, rec *record.CaseRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.records[rec.CaseID]; ok {
		if existing.IsSubmitted && !rec.IsSubmitted {
			return ErrAlreadySubmitted
		}
		if existing.LastUpdated.After(rec.LastUpdated) {
			return nil
		}
	}
	s.records[rec.CaseID] = rec.Clone()
	return nil
}

func (s *MemoryStore) FindByClinicianEmail(ctx context.Context, email string) (*record.CaseRecord, error) {
	drafts, err := s.ListUnsubmitted(ctx)
	if err != nil {
		return nil, err
	}
	return latestForEmail(drafts, email)
}

func (s *MemoryStore) MarkSubmitted(ctx context.Context, caseID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[caseID]
	if !ok {
		return ErrNotFound
	}
	if rec.IsSubmitted {
		return nil
	}
	rec.IsSubmitted = true
	rec.Form.Status = record.StatusSubmitted
	rec.LastUpdated = time.Now().UTC()
	return nil
}

func (s *MemoryStore) ListUnsubmitted(ctx context.Context) ([]*record.CaseRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	drafts := make([]*record.CaseRecord, 0, len(s.records))
	for _, rec := range s.records {
		if !rec.IsSubmitted {
			out := rec.Clone()
			out.Normalize()
			drafts = append(drafts, out)
		}
	}
	return drafts, nil
}

func (s *MemoryStore) ListIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *MemoryStore) Delete(ctx context.Context, caseID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, caseID)
	return nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}
