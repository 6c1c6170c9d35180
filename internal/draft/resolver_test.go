package draft

import (
	"context"
	"testing"
	"time"

	"casebook/api/internal/record"
)

func TestCheckExistingDraftNoneFound(t *testing.T) {
	resolver := NewResolver(NewMemoryStore())

	rec, err := resolver.CheckExistingDraft(context.Background(), "ks@example.com")
	if err != nil {
		t.Fatalf("CheckExistingDraft failed: %v", err)
	}
	if rec != nil {
		t.Errorf("expected no draft offered, got %+v", rec)
	}
}

func TestCheckExistingDraftOffersNewest(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	older := record.New("KS-JD-001", record.ClinicianInfo{Email: "ks@example.com"})
	older.LastUpdated = time.Now().UTC().Add(-time.Hour)
	newer := record.New("KS-TB-001", record.ClinicianInfo{Email: "ks@example.com"})
	newer.LastUpdated = time.Now().UTC()
	if err := store.Put(ctx, older); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := store.Put(ctx, newer); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	resolver := NewResolver(store)
	rec, err := resolver.CheckExistingDraft(ctx, "ks@example.com")
	if err != nil {
		t.Fatalf("CheckExistingDraft failed: %v", err)
	}
	if rec == nil || rec.CaseID != "KS-TB-001" {
		t.Errorf("expected newest draft KS-TB-001, got %+v", rec)
	}
}

func TestCheckExistingDraftLeavesDraftUntouched(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	rec := record.New("KS-JD-001", record.ClinicianInfo{Email: "ks@example.com"})
	rec.Form.Concerns = "verbatim state"
	if err := store.Put(ctx, rec); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	resolver := NewResolver(store)
	offered, err := resolver.CheckExistingDraft(ctx, "ks@example.com")
	if err != nil {
		t.Fatalf("CheckExistingDraft failed: %v", err)
	}
	// The offered record carries the stored state unchanged; checking never
	// mutates or discards anything.
	if offered.Form.Concerns != "verbatim state" {
		t.Errorf("expected stored state back, got %q", offered.Form.Concerns)
	}
	stored, err := store.Get(ctx, "KS-JD-001")
	if err != nil {
		t.Fatalf("draft disappeared after check: %v", err)
	}
	if stored.Form.Concerns != "verbatim state" {
		t.Error("check mutated the stored draft")
	}
}
