package submit

import (
	"testing"
	"time"

	"casebook/api/internal/record"
)

func flattenedFixture() *record.CaseRecord {
	rec := record.New("KS-JD-001", record.ClinicianInfo{
		Name:       "Kevin Smith",
		Email:      "ks@example.com",
		Clinic:     "Riverside Pediatrics",
		ChildFirst: "Jane",
		ChildLast:  "Doe",
		ChildDOB:   "2021-03-14",
	})
	rec.Form.ReasonForReferral = "speech delay"
	rec.Form.Referrals["speechTherapy"] = true
	rec.Sensory.Domains["visual"] = record.DomainRating{
		Score:        4,
		Observations: []string{"seeks deep pressure", "lines up toys"},
	}
	rec.Sensory.Notes = "sensory seeking profile"
	rec.Timeline.Milestones["firstWords"] = record.Milestone{AgeMonths: 18, Note: "single words only"}
	rec.Timeline.Milestones["walking"] = record.Milestone{AgeMonths: 13}
	rec.Log.Entries = []record.LogEntry{
		{Tool: "ADOS-2", Summary: "module 1 administered", At: time.Date(2026, 8, 12, 10, 0, 0, 0, time.UTC)},
	}
	rec.Recompute()
	return rec
}

func TestFlattenIdentityAndFormFields(t *testing.T) {
	wire := Flatten(flattenedFixture())

	expect := map[string]string{
		"caseId":            "KS-JD-001",
		"clinicianName":     "Kevin Smith",
		"clinicianEmail":    "ks@example.com",
		"clinic":            "Riverside Pediatrics",
		"childFirstName":    "Jane",
		"childLastName":     "Doe",
		"childDob":          "2021-03-14",
		"status":            record.StatusDraft,
		"reasonForReferral": "speech delay",
	}
	for key, want := range expect {
		if got := wire[key]; got != want {
			t.Errorf("%s: expected %q, got %q", key, want, got)
		}
	}
}

func TestFlattenDomainsAreAddressable(t *testing.T) {
	wire := Flatten(flattenedFixture())

	if got := wire["sensory_visual_score"]; got != "4" {
		t.Errorf("expected sensory_visual_score=4, got %q", got)
	}
	if got := wire["sensory_visual_observations"]; got != "seeks deep pressure; lines up toys" {
		t.Errorf("unexpected observations join: %q", got)
	}
	if got := wire["sensory_notes"]; got != "sensory seeking profile" {
		t.Errorf("expected section notes key, got %q", got)
	}
	if got := wire["sensory_complete"]; got != "false" {
		t.Errorf("expected sensory_complete=false, got %q", got)
	}
	// Unrated domains still appear with a zero score.
	if got := wire["social_eyeContact_score"]; got != "0" {
		t.Errorf("expected social_eyeContact_score=0, got %q", got)
	}
	// Empty observation lists produce no key at all.
	if _, ok := wire["social_eyeContact_observations"]; ok {
		t.Error("empty observations must not emit a key")
	}
}

func TestFlattenTimelineAndLog(t *testing.T) {
	wire := Flatten(flattenedFixture())

	if got := wire["timeline_firstWords_ageMonths"]; got != "18" {
		t.Errorf("expected timeline_firstWords_ageMonths=18, got %q", got)
	}
	if got := wire["timeline_firstWords_note"]; got != "single words only" {
		t.Errorf("unexpected milestone note: %q", got)
	}
	if _, ok := wire["timeline_walking_note"]; ok {
		t.Error("milestone without a note must not emit a note key")
	}
	if got := wire["log_1_tool"]; got != "ADOS-2" {
		t.Errorf("expected log_1_tool=ADOS-2, got %q", got)
	}
	if got := wire["log_1_at"]; got != "2026-08-12T10:00:00Z" {
		t.Errorf("expected RFC3339 timestamp, got %q", got)
	}
}

func TestFlattenReferralsAndProgress(t *testing.T) {
	wire := Flatten(flattenedFixture())

	if got := wire["referral_speechTherapy"]; got != "true" {
		t.Errorf("expected referral_speechTherapy=true, got %q", got)
	}
	if _, ok := wire["progress_"+record.SectionSensory]; !ok {
		t.Error("expected per-section progress keys")
	}
	if _, ok := wire["progressOverall"]; !ok {
		t.Error("expected progressOverall key")
	}
}
