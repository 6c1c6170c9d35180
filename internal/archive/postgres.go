package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"casebook/api/internal/record"
)

// Case is one archived (submitted) case row. The full record is kept as
// JSONB; the flat columns exist for lookup and the search fallback.
type Case struct {
	CaseID         string
	ClinicianName  string
	ClinicianEmail string
	Clinic         string
	ChildName      string
	RowID          string
	ReportURL      string
	SubmittedAt    time.Time
}

var ErrNotFound = errors.New("archive: case not found")

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) DB() *sql.DB {
	return s.db
}

// InsertCase archives a submitted record. Idempotent on case id: a repeated
// archive of the same case is a no-op, never a duplicate row.
func (s *Store) InsertCase(ctx context.Context, rec *record.CaseRecord, rowID, reportURL string) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record %s: %w", rec.CaseID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO cases (case_id, clinician_name, clinician_email, clinic, child_name, row_id, report_url, record)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (case_id) DO NOTHING
	`, rec.CaseID, rec.Clinician.Name, rec.Clinician.Email, rec.Clinician.Clinic,
		rec.Clinician.ChildFirst+" "+rec.Clinician.ChildLast, rowID, reportURL, raw)
	if err != nil {
		return fmt.Errorf("insert case %s: %w", rec.CaseID, err)
	}
	return nil
}

func (s *Store) GetCase(ctx context.Context, caseID string) (Case, *record.CaseRecord, error) {
	var item Case
	var raw []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT case_id, clinician_name, clinician_email, clinic, child_name, row_id, report_url, record, submitted_at
		FROM cases
		WHERE case_id=$1
	`, caseID).Scan(&item.CaseID, &item.ClinicianName, &item.ClinicianEmail, &item.Clinic,
		&item.ChildName, &item.RowID, &item.ReportURL, &raw, &item.SubmittedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Case{}, nil, ErrNotFound
	}
	if err != nil {
		return Case{}, nil, fmt.Errorf("get case %s: %w", caseID, err)
	}

	var rec record.CaseRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Case{}, nil, fmt.Errorf("unmarshal case %s: %w", caseID, err)
	}
	rec.Normalize()
	return item, &rec, nil
}

// ListCaseIDs returns every archived case id. Seeded into the identifier
// generator's existing-id set so a submitted id is never minted again.
func (s *Store) ListCaseIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT case_id FROM cases`)
	if err != nil {
		return nil, fmt.Errorf("list case ids: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan case id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate case ids: %w", err)
	}
	return ids, nil
}

// SearchCases is the Postgres fallback behind the search service: a plain
// ILIKE match over the flat columns, most recent first.
func (s *Store) SearchCases(ctx context.Context, query string, limit int) ([]Case, error) {
	if limit <= 0 {
		limit = 20
	}
	pattern := "%" + query + "%"
	rows, err := s.db.QueryContext(ctx, `
		SELECT case_id, clinician_name, clinician_email, clinic, child_name, row_id, report_url, submitted_at
		FROM cases
		WHERE case_id ILIKE $1 OR clinician_name ILIKE $1 OR clinician_email ILIKE $1 OR child_name ILIKE $1
		ORDER BY submitted_at DESC
		LIMIT $2
	`, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("search cases: %w", err)
	}
	defer rows.Close()

	items := make([]Case, 0)
	for rows.Next() {
		var item Case
		if err := rows.Scan(&item.CaseID, &item.ClinicianName, &item.ClinicianEmail, &item.Clinic,
			&item.ChildName, &item.RowID, &item.ReportURL, &item.SubmittedAt); err != nil {
			return nil, fmt.Errorf("scan case: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cases: %w", err)
	}
	return items, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
