package search

import (
	"context"
	"testing"

	"casebook/api/internal/record"
)

func TestDocFromRecord(t *testing.T) {
	rec := record.New("KS-JD-001", record.ClinicianInfo{
		Name:       "Kevin Smith",
		Email:      "ks@example.com",
		Clinic:     "Riverside Pediatrics",
		ChildFirst: "Jane",
		ChildLast:  "Doe",
	})
	doc := DocFromRecord(rec)

	if doc.CaseID != "KS-JD-001" {
		t.Errorf("expected case id carried, got %q", doc.CaseID)
	}
	if doc.ChildName != "Jane Doe" {
		t.Errorf("expected child name joined, got %q", doc.ChildName)
	}
	if doc.Status != record.StatusDraft {
		t.Errorf("expected draft status, got %q", doc.Status)
	}
	if doc.UpdatedAt == 0 {
		t.Error("expected a non-zero updatedAt")
	}
}

func TestDocIDStaysInAllowedCharset(t *testing.T) {
	got := docID("KS/JD 001@x")
	for _, r := range got {
		ok := r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_'
		if !ok {
			t.Errorf("docID emitted disallowed rune %q in %q", r, got)
		}
	}
}

func TestSearchEmptyQuery(t *testing.T) {
	svc := NewService(nil, nil)
	docs, err := svc.Search(context.Background(), "   ", 10)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(docs) != 0 {
		t.Errorf("empty query must return no results, got %d", len(docs))
	}
}

func TestSearchWithoutBackends(t *testing.T) {
	svc := NewService(nil, nil)
	docs, err := svc.Search(context.Background(), "jane", 10)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(docs) != 0 {
		t.Errorf("expected empty result without backends, got %d", len(docs))
	}
}

func TestIndexWithoutMeiliIsNoOp(t *testing.T) {
	svc := NewService(nil, nil)
	// Must not panic or block.
	svc.Index(record.New("KS-JD-001", record.ClinicianInfo{}))
}
