package submit

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"casebook/api/internal/record"
)

// Flatten serializes the nested case record into the flat key/value wire
// shape the spreadsheet API expects. Every domain score and observation
// list gets its own addressable key so the remote side can render and query
// fields directly instead of unpacking opaque JSON.
func Flatten(rec *record.CaseRecord) map[string]string {
	wire := map[string]string{
		"caseId":            rec.CaseID,
		"clinicianName":     rec.Clinician.Name,
		"clinicianEmail":    rec.Clinician.Email,
		"clinic":            rec.Clinician.Clinic,
		"childFirstName":    rec.Clinician.ChildFirst,
		"childLastName":     rec.Clinician.ChildLast,
		"childDob":          rec.Clinician.ChildDOB,
		"status":            rec.Form.Status,
		"reasonForReferral": rec.Form.ReasonForReferral,
		"strengths":         rec.Form.Strengths,
		"concerns":          rec.Form.Concerns,
		"diagnosisCode":     rec.Form.DiagnosisCode,
		"diagnosisSummary":  rec.Form.DiagnosisSummary,
		"progressOverall":   strconv.Itoa(rec.Progress.Overall),
		"lastUpdated":       rec.LastUpdated.UTC().Format(time.RFC3339),
	}

	for name, checked := range rec.Form.Referrals {
		wire["referral_"+name] = strconv.FormatBool(checked)
	}

	flattenSection(wire, "sensory", rec.Sensory)
	flattenSection(wire, "social", rec.Social)
	flattenSection(wire, "behavior", rec.Behavior)

	for label, m := range rec.Timeline.Milestones {
		wire["timeline_"+label+"_ageMonths"] = strconv.Itoa(m.AgeMonths)
		if m.Note != "" {
			wire["timeline_"+label+"_note"] = m.Note
		}
	}

	for i, entry := range rec.Log.Entries {
		prefix := fmt.Sprintf("log_%d_", i+1)
		wire[prefix+"tool"] = entry.Tool
		wire[prefix+"summary"] = entry.Summary
		wire[prefix+"at"] = entry.At.UTC().Format(time.RFC3339)
	}

	for section, pct := range rec.Progress.Sections {
		wire["progress_"+section] = strconv.Itoa(pct)
	}

	return wire
}

func flattenSection(wire map[string]string, prefix string, s record.AssessmentSection) {
	for domain, rating := range s.Domains {
		key := prefix + "_" + domain
		wire[key+"_score"] = strconv.Itoa(rating.Score)
		if len(rating.Observations) > 0 {
			wire[key+"_observations"] = strings.Join(rating.Observations, "; ")
		}
	}
	if s.Notes != "" {
		wire[prefix+"_notes"] = s.Notes
	}
	wire[prefix+"_complete"] = strconv.FormatBool(s.Complete)
}
