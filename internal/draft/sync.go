package draft

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"casebook/api/internal/record"
)

// FlushHook runs after a record has been durably written, with the record
// that was persisted. Used for the snapshot journal and search indexing.
type FlushHook func(rec *record.CaseRecord)

// Synchronizer sits between in-memory case state and the Store. Rapid
// partial updates are merged into a per-case working copy immediately and
// persisted at most once per debounce window; the write is skipped entirely
// when the serialized record is unchanged.
//
// All timer and counter state lives on the instance, so tests and multiple
// UI sessions never interfere through shared module state.
type Synchronizer struct {
	store Store
	delay time.Duration
	hooks []FlushHook

	mu      sync.Mutex
	entries map[string]*syncEntry
	closed  bool
}

type syncEntry struct {
	working     *record.CaseRecord
	timer       *time.Timer
	lastWritten []byte
}

const flushTimeout = 5 * time.Second

// NewSynchronizer creates a synchronizer writing through to store after
// delay of debounce quiet time.
func NewSynchronizer(store Store, delay time.Duration, hooks ...FlushHook) *Synchronizer {
	return &Synchronizer{
		store:   store,
		delay:   delay,
		hooks:   hooks,
		entries: make(map[string]*syncEntry),
	}
}

// Track seeds the working copy for a case, typically right after the record
// was created or restored. The seed itself is not written back.
func (s *Synchronizer) Track(rec *record.CaseRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, _ := json.Marshal(rec)
	s.entries[rec.CaseID] = &syncEntry{working: rec.Clone(), lastWritten: raw}
}

// Schedule merges the patch into the case's working copy immediately and
// arms (or re-arms) the debounce timer. Calls within one window coalesce
// into a single Put. The merged record is returned so reads stay fresh.
func (s *Synchronizer) Schedule(ctx context.Context, caseID string, patch record.Patch) (*record.CaseRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[caseID]
	if !ok {
		rec, err := s.store.Get(ctx, caseID)
		if err != nil {
			return nil, err
		}
		entry = &syncEntry{working: rec}
		s.entries[caseID] = entry
	}
	if entry.working.IsSubmitted {
		return nil, ErrAlreadySubmitted
	}

	merged, err := entry.working.Merge(patch)
	if err != nil {
		return nil, err
	}
	entry.working = merged

	if entry.timer != nil {
		entry.timer.Stop()
	}
	entry.timer = time.AfterFunc(s.delay, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if err := s.flushLocked(caseID); err != nil {
			log.Printf("draft: debounced flush %s: %v", caseID, err)
		}
	})

	return merged.Clone(), nil
}

// Working returns the current in-memory record for the case, which may be
// ahead of what is persisted.
func (s *Synchronizer) Working(caseID string) (*record.CaseRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[caseID]
	if !ok {
		return nil, false
	}
	return entry.working.Clone(), true
}

// Snapshot returns an isolated copy for the submission pipeline. Later
// flushes cannot mutate what the pipeline reads.
func (s *Synchronizer) Snapshot(caseID string) (*record.CaseRecord, bool) {
	return s.Working(caseID)
}

// Flush forces the pending write for one case, bypassing the timer. The
// navigation-away and unmount paths call this so a pending timer is never
// silently dropped.
func (s *Synchronizer) Flush(ctx context.Context, caseID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked(caseID)
}

// Close flushes every tracked case and stops all timers. The synchronizer
// must not be used afterwards.
func (s *Synchronizer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	var firstErr error
	for caseID := range s.entries {
		if err := s.flushLocked(caseID); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *Synchronizer) flushLocked(caseID string) error {
	entry, ok := s.entries[caseID]
	if !ok {
		return nil
	}
	if entry.timer != nil {
		entry.timer.Stop()
		entry.timer = nil
	}

	raw, err := json.Marshal(entry.working)
	if err != nil {
		return err
	}
	if bytes.Equal(raw, entry.lastWritten) {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	if err := s.store.Put(ctx, entry.working); err != nil {
		return err
	}
	entry.lastWritten = raw

	for _, hook := range s.hooks {
		hook(entry.working.Clone())
	}
	return nil
}
