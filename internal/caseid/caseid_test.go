package caseid

import (
	"errors"
	"testing"
)

func TestGenerateFromInitials(t *testing.T) {
	id, err := Generate("Kevin Smith", "Jane Doe", nil)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if id != "KS-JD-001" {
		t.Errorf("expected KS-JD-001, got %s", id)
	}
}

func TestGenerateIncrementsOnCollision(t *testing.T) {
	existing := map[string]bool{
		"KS-JD-001": true,
		"KS-JD-002": true,
	}
	id, err := Generate("Kevin Smith", "Jane Doe", existing)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if id != "KS-JD-003" {
		t.Errorf("expected KS-JD-003, got %s", id)
	}
}

func TestGenerateSingleWordNames(t *testing.T) {
	id, err := Generate("Cher", "Madonna", nil)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if id != "C-M-001" {
		t.Errorf("expected C-M-001, got %s", id)
	}
}

func TestGenerateLowercasesAreUppercased(t *testing.T) {
	id, err := Generate("kevin smith", "jane doe", nil)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if id != "KS-JD-001" {
		t.Errorf("expected KS-JD-001, got %s", id)
	}
}

func TestGenerateEmptyNameRejected(t *testing.T) {
	if _, err := Generate("", "Jane Doe", nil); !errors.Is(err, ErrInvalidIdentityInput) {
		t.Errorf("expected ErrInvalidIdentityInput, got %v", err)
	}
	if _, err := Generate("Kevin Smith", "   ", nil); !errors.Is(err, ErrInvalidIdentityInput) {
		t.Errorf("expected ErrInvalidIdentityInput, got %v", err)
	}
}

func TestGenerateSkipsNonLetterTokens(t *testing.T) {
	id, err := Generate("(Dr) Kevin Smith", "Jane Doe", nil)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	// "(Dr)" starts with a non-letter and contributes nothing.
	if id != "KS-JD-001" {
		t.Errorf("expected KS-JD-001, got %s", id)
	}
}
