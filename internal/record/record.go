// Package record defines the CaseRecord, the unit of persistence for one
// child-assessment case, and the derivations over it.
package record

import (
	"encoding/json"
	"time"
)

// SchemaVersion is bumped whenever the persisted shape changes. Older drafts
// are normalized on read, never rejected.
const SchemaVersion = 2

const (
	StatusDraft     = "draft"
	StatusSubmitted = "submitted"
)

// Section names, used as keys in Progress.Sections and in the wire shape.
const (
	SectionSensory  = "sensoryProfile"
	SectionSocial   = "socialCommunication"
	SectionBehavior = "behaviorInterests"
	SectionTimeline = "milestoneTimeline"
	SectionLog      = "assessmentLog"
)

// DomainRating is one rated domain inside an assessment section.
// Score 0 means not yet rated; rated values are 1..5.
type DomainRating struct {
	Score        int      `json:"score"`
	Observations []string `json:"observations"`
}

// AssessmentSection holds per-domain ratings plus clinician notes.
type AssessmentSection struct {
	Domains  map[string]DomainRating `json:"domains"`
	Notes    string                  `json:"notes"`
	Complete bool                    `json:"complete"`
}

// Milestone is one placed marker on the developmental timeline.
type Milestone struct {
	AgeMonths int    `json:"ageMonths"`
	Note      string `json:"note,omitempty"`
}

// TimelineSection is the milestone timeline, keyed by milestone label.
type TimelineSection struct {
	Milestones map[string]Milestone `json:"milestones"`
	Complete   bool                 `json:"complete"`
}

// LogEntry records one assessment instrument administered during the case.
type LogEntry struct {
	Tool    string    `json:"tool"`
	Summary string    `json:"summary"`
	At      time.Time `json:"at"`
}

// LogSection is the running log of assessments performed.
type LogSection struct {
	Entries  []LogEntry `json:"entries"`
	Complete bool       `json:"complete"`
}

// ClinicianInfo identifies the clinician and the child under assessment.
type ClinicianInfo struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Clinic     string `json:"clinic"`
	ChildFirst string `json:"childFirstName"`
	ChildLast  string `json:"childLastName"`
	ChildDOB   string `json:"childDob"`
}

// FormAnswers holds the non-sectioned intake answers.
type FormAnswers struct {
	Status            string          `json:"status"`
	ReasonForReferral string          `json:"reasonForReferral"`
	Strengths         string          `json:"strengths"`
	Concerns          string          `json:"concerns"`
	Referrals         map[string]bool `json:"referrals"`
	DiagnosisCode     string          `json:"diagnosisCode"`
	DiagnosisSummary  string          `json:"diagnosisSummary"`
}

// Progress is derived, never authoritative: Recompute rebuilds it from the
// section contents on every write and on every read of an older draft.
type Progress struct {
	Sections map[string]int `json:"sections"`
	Overall  int            `json:"overall"`
}

// CaseRecord is the full persisted state for one assessment case.
type CaseRecord struct {
	SchemaVersion int               `json:"schemaVersion"`
	CaseID        string            `json:"caseId"`
	Clinician     ClinicianInfo     `json:"clinicianInfo"`
	Form          FormAnswers       `json:"formAnswers"`
	Sensory       AssessmentSection `json:"sensoryProfile"`
	Social        AssessmentSection `json:"socialCommunication"`
	Behavior      AssessmentSection `json:"behaviorInterests"`
	Timeline      TimelineSection   `json:"milestoneTimeline"`
	Log           LogSection        `json:"assessmentLog"`
	Progress      Progress          `json:"progress"`
	LastUpdated   time.Time         `json:"lastUpdated"`
	IsSubmitted   bool              `json:"isSubmitted"`
}

// SensoryDomains lists the rated domains of the sensory profile, in wire order.
var SensoryDomains = []string{"visual", "auditory", "tactile", "vestibular", "smellTaste", "proprioception"}

// SocialDomains lists the rated domains of the social-communication profile.
var SocialDomains = []string{"eyeContact", "jointAttention", "sharedEnjoyment", "socialReciprocity", "nonverbalCommunication"}

// BehaviorDomains lists the rated domains of the behavior/interests profile.
var BehaviorDomains = []string{"repetitiveMovements", "routinesRituals", "restrictedInterests", "sensoryInterests"}

// TimelineMilestones lists the canonical milestone labels offered by the
// timeline; progress is the share of them placed.
var TimelineMilestones = []string{"firstSmile", "sitting", "firstWords", "walking", "twoWordPhrases", "pretendPlay"}

// New creates a draft CaseRecord with every section initialized to its
// unrated default shape.
func New(caseID string, clinician ClinicianInfo) *CaseRecord {
	r := &CaseRecord{
		SchemaVersion: SchemaVersion,
		CaseID:        caseID,
		Clinician:     clinician,
		Form: FormAnswers{
			Status:    StatusDraft,
			Referrals: map[string]bool{},
		},
		Sensory:     AssessmentSection{Domains: defaultDomains(SensoryDomains)},
		Social:      AssessmentSection{Domains: defaultDomains(SocialDomains)},
		Behavior:    AssessmentSection{Domains: defaultDomains(BehaviorDomains)},
		Timeline:    TimelineSection{Milestones: map[string]Milestone{}},
		Log:         LogSection{Entries: []LogEntry{}},
		LastUpdated: time.Now().UTC(),
	}
	r.Recompute()
	return r
}

func defaultDomains(names []string) map[string]DomainRating {
	domains := make(map[string]DomainRating, len(names))
	for _, name := range names {
		domains[name] = DomainRating{Observations: []string{}}
	}
	return domains
}

// Recompute re-derives every section's progress and the aggregate from the
// current domain values. Progress is never trusted from storage.
func (r *CaseRecord) Recompute() {
	sections := map[string]int{
		SectionSensory:  sectionPercent(r.Sensory),
		SectionSocial:   sectionPercent(r.Social),
		SectionBehavior: sectionPercent(r.Behavior),
		SectionTimeline: timelinePercent(r.Timeline),
		SectionLog:      logPercent(r.Log),
	}
	total := 0
	for _, pct := range sections {
		total += pct
	}
	r.Progress = Progress{
		Sections: sections,
		Overall:  total / len(sections),
	}
}

func sectionPercent(s AssessmentSection) int {
	if s.Complete {
		return 100
	}
	if len(s.Domains) == 0 {
		return 0
	}
	rated := 0
	for _, d := range s.Domains {
		if d.Score > 0 {
			rated++
		}
	}
	return rated * 100 / len(s.Domains)
}

func timelinePercent(t TimelineSection) int {
	if t.Complete {
		return 100
	}
	placed := len(t.Milestones)
	if placed >= len(TimelineMilestones) {
		return 100
	}
	return placed * 100 / len(TimelineMilestones)
}

func logPercent(l LogSection) int {
	if l.Complete || len(l.Entries) > 0 {
		return 100
	}
	return 0
}

// Clone returns a deep copy. The submission pipeline snapshots the record at
// pipeline start so a later synchronizer flush cannot mutate what it reads.
func (r *CaseRecord) Clone() *CaseRecord {
	raw, err := json.Marshal(r)
	if err != nil {
		// The record is built from JSON-safe types only.
		panic("record: clone marshal: " + err.Error())
	}
	var out CaseRecord
	if err := json.Unmarshal(raw, &out); err != nil {
		panic("record: clone unmarshal: " + err.Error())
	}
	return &out
}
