package export

import (
	"bytes"
	"html/template"
	"sort"

	"casebook/api/internal/record"
)

var summaryTemplate = template.Must(template.New("summary").Parse(summaryHTML))

// TemplateData holds data for the assessment summary rendering.
type TemplateData struct {
	CaseID     string
	ChildName  string
	Clinician  string
	Clinic     string
	Sections   []TemplateSection
	Milestones []TemplateMilestone
	Overall    int
}

// TemplateSection is one profile rendered as a bar group.
type TemplateSection struct {
	Title   string
	Domains []TemplateDomain
}

// TemplateDomain is one scored domain bar; Width is Score scaled to percent.
type TemplateDomain struct {
	Label        string
	Score        int
	Width        int
	Observations []string
}

// TemplateMilestone is one placed timeline marker.
type TemplateMilestone struct {
	Label     string
	AgeMonths int
	Note      string
}

// SummaryData projects a case record into template form, with domains and
// milestones in stable sorted order.
func SummaryData(rec *record.CaseRecord) TemplateData {
	data := TemplateData{
		CaseID:    rec.CaseID,
		ChildName: rec.Clinician.ChildFirst + " " + rec.Clinician.ChildLast,
		Clinician: rec.Clinician.Name,
		Clinic:    rec.Clinician.Clinic,
		Overall:   rec.Progress.Overall,
		Sections: []TemplateSection{
			sectionData("Sensory Profile", rec.Sensory, record.SensoryDomains),
			sectionData("Social Communication", rec.Social, record.SocialDomains),
			sectionData("Behavior & Interests", rec.Behavior, record.BehaviorDomains),
		},
	}

	labels := make([]string, 0, len(rec.Timeline.Milestones))
	for label := range rec.Timeline.Milestones {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool {
		return rec.Timeline.Milestones[labels[i]].AgeMonths < rec.Timeline.Milestones[labels[j]].AgeMonths
	})
	for _, label := range labels {
		m := rec.Timeline.Milestones[label]
		data.Milestones = append(data.Milestones, TemplateMilestone{
			Label:     label,
			AgeMonths: m.AgeMonths,
			Note:      m.Note,
		})
	}
	return data
}

func sectionData(title string, s record.AssessmentSection, order []string) TemplateSection {
	section := TemplateSection{Title: title}
	for _, name := range order {
		d := s.Domains[name]
		section.Domains = append(section.Domains, TemplateDomain{
			Label:        name,
			Score:        d.Score,
			Width:        d.Score * 20,
			Observations: d.Observations,
		})
	}
	return section
}

// RenderSummaryHTML renders the summary page fed to headless Chrome.
func RenderSummaryHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := summaryTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const summaryHTML = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>Assessment Summary {{.CaseID}}</title>
  <style>
    body { font-family: Arial, sans-serif; max-width: 760px; margin: 1.5rem auto; color: #222; }
    h1 { font-size: 1.4rem; border-bottom: 2px solid #2c7a7b; padding-bottom: 0.4rem; }
    .meta { color: #666; font-size: 0.85em; margin-bottom: 1.2rem; }
    .section { margin: 1rem 0; }
    .section h2 { font-size: 1.05rem; margin-bottom: 0.4rem; }
    .bar-row { display: flex; align-items: center; margin: 0.2rem 0; }
    .bar-label { width: 200px; font-size: 0.85em; }
    .bar-track { flex: 1; background: #eee; border-radius: 3px; height: 14px; }
    .bar-fill { background: #2c7a7b; border-radius: 3px; height: 14px; }
    .obs { color: #555; font-size: 0.78em; margin-left: 200px; }
    .timeline { border-left: 3px solid #2c7a7b; margin: 0.6rem 0 0.6rem 6px; padding-left: 14px; }
    .milestone { font-size: 0.85em; margin: 0.25rem 0; }
    .milestone b { color: #2c7a7b; }
  </style>
</head>
<body>
  <h1>Assessment Summary — {{.ChildName}}</h1>
  <div class="meta">Case {{.CaseID}} | {{.Clinician}}, {{.Clinic}} | Overall progress {{.Overall}}%</div>
  {{range .Sections}}
  <div class="section">
    <h2>{{.Title}}</h2>
    {{range .Domains}}
    <div class="bar-row">
      <div class="bar-label">{{.Label}}</div>
      <div class="bar-track"><div class="bar-fill" style="width: {{.Width}}%"></div></div>
    </div>
    {{range .Observations}}<div class="obs">&#8226; {{.}}</div>{{end}}
    {{end}}
  </div>
  {{end}}
  {{if .Milestones}}
  <div class="section">
    <h2>Milestone Timeline</h2>
    <div class="timeline">
      {{range .Milestones}}
      <div class="milestone"><b>{{.AgeMonths}}mo</b> {{.Label}}{{if .Note}} — {{.Note}}{{end}}</div>
      {{end}}
    </div>
  </div>
  {{end}}
</body>
</html>`
