// Package search finds cases by id, clinician or child name. Meilisearch is
// the primary backend; when it is unconfigured or unhealthy the service
// falls back to a plain Postgres match over the archive.
package search

import (
	"context"
	"log"
	"strings"

	"casebook/api/internal/archive"
	"casebook/api/internal/record"
)

// Doc is the indexed projection of a case.
type Doc struct {
	ID             string `json:"id"`
	CaseID         string `json:"caseId"`
	ClinicianName  string `json:"clinicianName"`
	ClinicianEmail string `json:"clinicianEmail"`
	Clinic         string `json:"clinic"`
	ChildName      string `json:"childName"`
	Status         string `json:"status"`
	UpdatedAt      int64  `json:"updatedAt"`
}

// Service fronts the two backends.
type Service struct {
	meili    *Meili
	fallback *archive.Store
}

// NewService accepts a nil meili client; the service then serves from the
// fallback only.
func NewService(meili *Meili, fallback *archive.Store) *Service {
	return &Service{meili: meili, fallback: fallback}
}

// Index pushes the case into Meilisearch. Indexing is best-effort: a down
// search backend never blocks a draft write or a submission.
func (s *Service) Index(rec *record.CaseRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	doc := DocFromRecord(rec)
	if err := s.meili.IndexCase(doc); err != nil {
		log.Printf("search: index case %s: %v", rec.CaseID, err)
	}
}

func (s *Service) Search(ctx context.Context, query string, limit int) ([]Doc, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []Doc{}, nil
	}
	if s.meili != nil && s.meili.Healthy() {
		docs, err := s.meili.Search(query, limit)
		if err == nil {
			return docs, nil
		}
		log.Printf("search: meilisearch query failed, using fallback: %v", err)
	}
	if s.fallback == nil {
		return []Doc{}, nil
	}
	cases, err := s.fallback.SearchCases(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	docs := make([]Doc, 0, len(cases))
	for _, c := range cases {
		docs = append(docs, Doc{
			ID:             docID(c.CaseID),
			CaseID:         c.CaseID,
			ClinicianName:  c.ClinicianName,
			ClinicianEmail: c.ClinicianEmail,
			Clinic:         c.Clinic,
			ChildName:      c.ChildName,
			Status:         record.StatusSubmitted,
			UpdatedAt:      c.SubmittedAt.Unix(),
		})
	}
	return docs, nil
}

// DocFromRecord projects a case record into its indexed form.
func DocFromRecord(rec *record.CaseRecord) Doc {
	return Doc{
		ID:             docID(rec.CaseID),
		CaseID:         rec.CaseID,
		ClinicianName:  rec.Clinician.Name,
		ClinicianEmail: rec.Clinician.Email,
		Clinic:         rec.Clinician.Clinic,
		ChildName:      strings.TrimSpace(rec.Clinician.ChildFirst + " " + rec.Clinician.ChildLast),
		Status:         rec.Form.Status,
		UpdatedAt:      rec.LastUpdated.Unix(),
	}
}

// docID keeps the Meilisearch primary key within its allowed charset.
func docID(caseID string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, caseID)
}
