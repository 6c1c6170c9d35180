package record

// Normalize fills defaults for fields that drafts persisted under an older
// schema version lack, then re-derives progress. Readers must treat an
// absent field as "use default", never as an error, so every load path runs
// through here.
func (r *CaseRecord) Normalize() {
	if r.Form.Status == "" {
		r.Form.Status = StatusDraft
	}
	if r.IsSubmitted {
		r.Form.Status = StatusSubmitted
	}
	if r.Form.Referrals == nil {
		r.Form.Referrals = map[string]bool{}
	}

	normalizeSection(&r.Sensory, SensoryDomains)
	normalizeSection(&r.Social, SocialDomains)
	normalizeSection(&r.Behavior, BehaviorDomains)

	if r.Timeline.Milestones == nil {
		r.Timeline.Milestones = map[string]Milestone{}
	}
	if r.Log.Entries == nil {
		r.Log.Entries = []LogEntry{}
	}

	r.SchemaVersion = SchemaVersion
	r.Recompute()
}

func normalizeSection(s *AssessmentSection, names []string) {
	if s.Domains == nil {
		s.Domains = make(map[string]DomainRating, len(names))
	}
	for _, name := range names {
		d, ok := s.Domains[name]
		if !ok {
			s.Domains[name] = DomainRating{Observations: []string{}}
			continue
		}
		if d.Observations == nil {
			d.Observations = []string{}
			s.Domains[name] = d
		}
	}
}
