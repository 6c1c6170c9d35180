package draft

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"casebook/api/internal/record"
)

func setupTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	store, err := NewRedisStore("redis://"+s.Addr(), time.Hour)
	if err != nil {
		t.Fatalf("failed to create redis store: %v", err)
	}
	return store, s
}

func TestRedisStorePutAndGet(t *testing.T) {
	store, s := setupTestStore(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()
	rec := record.New("KS-JD-001", record.ClinicianInfo{Name: "Kevin Smith", Email: "ks@example.com"})
	if err := store.Put(ctx, rec); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := store.Get(ctx, "KS-JD-001")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.CaseID != "KS-JD-001" {
		t.Errorf("expected case id KS-JD-001, got %s", got.CaseID)
	}
	if got.Clinician.Email != "ks@example.com" {
		t.Errorf("expected clinician email preserved, got %s", got.Clinician.Email)
	}
}

func TestRedisStoreGetMissing(t *testing.T) {
	store, s := setupTestStore(t)
	defer store.Close()
	defer s.Close()

	if _, err := store.Get(context.Background(), "NO-SUCH-001"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRedisStorePutDropsStaleWrite(t *testing.T) {
	store, s := setupTestStore(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()
	newer := record.New("KS-JD-001", record.ClinicianInfo{})
	newer.Form.Concerns = "newer"
	newer.LastUpdated = time.Now().UTC()
	if err := store.Put(ctx, newer); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	stale := newer.Clone()
	stale.Form.Concerns = "stale"
	stale.LastUpdated = newer.LastUpdated.Add(-time.Minute)
	if err := store.Put(ctx, stale); err != nil {
		t.Fatalf("stale Put must be a silent no-op, got %v", err)
	}

	got, err := store.Get(ctx, "KS-JD-001")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Form.Concerns != "newer" {
		t.Errorf("stale write clobbered newer record: %q", got.Form.Concerns)
	}
}

func TestRedisStoreSubmittedIsOneWay(t *testing.T) {
	store, s := setupTestStore(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()
	rec := record.New("KS-JD-001", record.ClinicianInfo{})
	if err := store.Put(ctx, rec); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := store.MarkSubmitted(ctx, "KS-JD-001"); err != nil {
		t.Fatalf("MarkSubmitted failed: %v", err)
	}

	got, err := store.Get(ctx, "KS-JD-001")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !got.IsSubmitted || got.Form.Status != record.StatusSubmitted {
		t.Errorf("expected submitted record, got submitted=%v status=%q", got.IsSubmitted, got.Form.Status)
	}

	// A later draft write must not un-submit the case.
	unsubmitted := got.Clone()
	unsubmitted.IsSubmitted = false
	unsubmitted.LastUpdated = time.Now().UTC().Add(time.Minute)
	if err := store.Put(ctx, unsubmitted); !errors.Is(err, ErrAlreadySubmitted) {
		t.Errorf("expected ErrAlreadySubmitted, got %v", err)
	}

	// MarkSubmitted is idempotent.
	if err := store.MarkSubmitted(ctx, "KS-JD-001"); err != nil {
		t.Errorf("repeat MarkSubmitted failed: %v", err)
	}
}

func TestRedisStoreFindByClinicianEmail(t *testing.T) {
	store, s := setupTestStore(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()
	older := record.New("KS-JD-001", record.ClinicianInfo{Email: "ks@example.com"})
	older.LastUpdated = time.Now().UTC().Add(-time.Hour)
	newer := record.New("KS-TB-001", record.ClinicianInfo{Email: "KS@Example.COM"})
	newer.LastUpdated = time.Now().UTC()
	other := record.New("AB-CD-001", record.ClinicianInfo{Email: "ab@example.com"})

	for _, rec := range []*record.CaseRecord{older, newer, other} {
		if err := store.Put(ctx, rec); err != nil {
			t.Fatalf("Put %s failed: %v", rec.CaseID, err)
		}
	}

	got, err := store.FindByClinicianEmail(ctx, "ks@example.com")
	if err != nil {
		t.Fatalf("FindByClinicianEmail failed: %v", err)
	}
	// Case-insensitive match, newest draft wins.
	if got.CaseID != "KS-TB-001" {
		t.Errorf("expected newest draft KS-TB-001, got %s", got.CaseID)
	}

	if _, err := store.FindByClinicianEmail(ctx, "nobody@example.com"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown email, got %v", err)
	}
}

func TestRedisStoreFindSkipsSubmitted(t *testing.T) {
	store, s := setupTestStore(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()
	rec := record.New("KS-JD-001", record.ClinicianInfo{Email: "ks@example.com"})
	if err := store.Put(ctx, rec); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := store.MarkSubmitted(ctx, "KS-JD-001"); err != nil {
		t.Fatalf("MarkSubmitted failed: %v", err)
	}

	if _, err := store.FindByClinicianEmail(ctx, "ks@example.com"); !errors.Is(err, ErrNotFound) {
		t.Errorf("submitted cases must not be offered for resume, got %v", err)
	}
}

func TestRedisStoreListIDs(t *testing.T) {
	store, s := setupTestStore(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()
	for _, id := range []string{"KS-JD-001", "KS-JD-002", "AB-CD-001"} {
		if err := store.Put(ctx, record.New(id, record.ClinicianInfo{})); err != nil {
			t.Fatalf("Put %s failed: %v", id, err)
		}
	}

	ids, err := store.ListIDs(ctx)
	if err != nil {
		t.Fatalf("ListIDs failed: %v", err)
	}
	if len(ids) != 3 {
		t.Errorf("expected 3 ids, got %d: %v", len(ids), ids)
	}
	seen := map[string]bool{}
	for _, id := range ids {
		seen[id] = true
	}
	for _, want := range []string{"KS-JD-001", "KS-JD-002", "AB-CD-001"} {
		if !seen[want] {
			t.Errorf("missing id %s in %v", want, ids)
		}
	}
}

func TestRedisStoreRetentionTTLSet(t *testing.T) {
	s := miniredis.RunT(t)
	defer s.Close()
	store, err := NewRedisStore("redis://"+s.Addr(), time.Hour)
	if err != nil {
		t.Fatalf("failed to create redis store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.Put(ctx, record.New("KS-JD-001", record.ClinicianInfo{})); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	ttl := s.TTL("case:KS-JD-001")
	if ttl <= 0 || ttl > time.Hour {
		t.Errorf("expected retention TTL within (0, 1h], got %v", ttl)
	}

	s.FastForward(2 * time.Hour)
	if _, err := store.Get(ctx, "KS-JD-001"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected draft expired after retention, got %v", err)
	}
}

func TestRedisStoreDelete(t *testing.T) {
	store, s := setupTestStore(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()
	if err := store.Put(ctx, record.New("KS-JD-001", record.ClinicianInfo{})); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := store.Delete(ctx, "KS-JD-001"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Get(ctx, "KS-JD-001"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestRedisStoreDownSignalsUnavailable(t *testing.T) {
	store, s := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	if err := store.Put(ctx, record.New("KS-JD-001", record.ClinicianInfo{})); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	s.Close()

	if _, err := store.Get(ctx, "KS-JD-001"); !errors.Is(err, ErrPersistenceUnavailable) {
		t.Errorf("Get against a down backend must wrap ErrPersistenceUnavailable, got %v", err)
	}
	if err := store.Put(ctx, record.New("KS-JD-002", record.ClinicianInfo{})); !errors.Is(err, ErrPersistenceUnavailable) {
		t.Errorf("Put against a down backend must wrap ErrPersistenceUnavailable, got %v", err)
	}
	if _, err := store.ListIDs(ctx); !errors.Is(err, ErrPersistenceUnavailable) {
		t.Errorf("ListIDs against a down backend must wrap ErrPersistenceUnavailable, got %v", err)
	}
}
