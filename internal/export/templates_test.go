package export

import (
	"strings"
	"testing"

	"casebook/api/internal/record"
)

func summaryFixture() *record.CaseRecord {
	rec := record.New("KS-JD-001", record.ClinicianInfo{
		Name:       "Kevin Smith",
		Clinic:     "Riverside Pediatrics",
		ChildFirst: "Jane",
		ChildLast:  "Doe",
	})
	rec.Sensory.Domains["visual"] = record.DomainRating{
		Score:        4,
		Observations: []string{"seeks deep pressure"},
	}
	rec.Timeline.Milestones["walking"] = record.Milestone{AgeMonths: 13}
	rec.Timeline.Milestones["firstWords"] = record.Milestone{AgeMonths: 18, Note: "single words"}
	rec.Recompute()
	return rec
}

func TestSummaryDataProjection(t *testing.T) {
	data := SummaryData(summaryFixture())

	if data.CaseID != "KS-JD-001" {
		t.Errorf("expected case id carried over, got %q", data.CaseID)
	}
	if data.ChildName != "Jane Doe" {
		t.Errorf("expected child name joined, got %q", data.ChildName)
	}
	if len(data.Sections) != 3 {
		t.Fatalf("expected 3 sections, got %d", len(data.Sections))
	}

	sensory := data.Sections[0]
	if sensory.Title != "Sensory Profile" {
		t.Errorf("unexpected first section: %q", sensory.Title)
	}
	if len(sensory.Domains) != len(record.SensoryDomains) {
		t.Errorf("expected all %d sensory domains, got %d", len(record.SensoryDomains), len(sensory.Domains))
	}
	// Domains keep canonical order, not map order.
	if sensory.Domains[0].Label != "visual" {
		t.Errorf("expected visual first, got %q", sensory.Domains[0].Label)
	}
	if sensory.Domains[0].Width != 80 {
		t.Errorf("expected score 4 to render as 80%% width, got %d", sensory.Domains[0].Width)
	}
}

func TestSummaryDataMilestonesSortedByAge(t *testing.T) {
	data := SummaryData(summaryFixture())

	if len(data.Milestones) != 2 {
		t.Fatalf("expected 2 milestones, got %d", len(data.Milestones))
	}
	if data.Milestones[0].Label != "walking" || data.Milestones[1].Label != "firstWords" {
		t.Errorf("expected milestones sorted by age, got %+v", data.Milestones)
	}
}

func TestRenderSummaryHTML(t *testing.T) {
	html, err := RenderSummaryHTML(SummaryData(summaryFixture()))
	if err != nil {
		t.Fatalf("RenderSummaryHTML failed: %v", err)
	}

	for _, want := range []string{
		"Jane Doe",
		"Case KS-JD-001",
		"Riverside Pediatrics",
		"seeks deep pressure",
		"width: 80%",
		"18mo",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("rendered summary missing %q", want)
		}
	}
}

func TestSanitizeFilename(t *testing.T) {
	got := sanitizeFilename("KS/JD:001 summary?")
	if strings.ContainsAny(got, `/\:*?"<>|`) {
		t.Errorf("sanitized filename still has reserved characters: %q", got)
	}
}
