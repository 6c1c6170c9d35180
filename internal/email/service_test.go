package email

import (
	"strings"
	"testing"
)

func TestIsConfigured(t *testing.T) {
	unconfigured := NewService(Config{})
	if unconfigured.IsConfigured() {
		t.Error("empty config must report unconfigured")
	}

	configured := NewService(Config{
		Host: "smtp.example.com",
		Port: "587",
		From: "noreply@example.com",
	})
	if !configured.IsConfigured() {
		t.Error("host, port and from must be enough to configure")
	}
}

func TestSendHTMLEmailUnconfigured(t *testing.T) {
	svc := NewService(Config{})
	if err := svc.SendHTMLEmail([]string{"ks@example.com"}, "subject", "<p>hi</p>"); err == nil {
		t.Error("expected an error when SMTP is not configured")
	}
}

func TestReportReadyTemplateRenders(t *testing.T) {
	html, err := renderTemplate(reportReadyTemplate, ReportReadyData{
		AppName:       "Casebook",
		ClinicianName: "Kevin Smith",
		CaseID:        "KS-JD-001",
		ReportURL:     "https://docs.example.com/report-42",
	})
	if err != nil {
		t.Fatalf("renderTemplate failed: %v", err)
	}

	for _, want := range []string{
		"Hello Kevin Smith",
		"KS-JD-001",
		`href="https://docs.example.com/report-42"`,
		"Casebook",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("rendered email missing %q", want)
		}
	}
}

func TestReportReadyTemplateEscapesHTML(t *testing.T) {
	html, err := renderTemplate(reportReadyTemplate, ReportReadyData{
		AppName:       "Casebook",
		ClinicianName: "<script>alert(1)</script>",
		CaseID:        "KS-JD-001",
	})
	if err != nil {
		t.Fatalf("renderTemplate failed: %v", err)
	}
	if strings.Contains(html, "<script>alert(1)</script>") {
		t.Error("template must escape clinician-supplied values")
	}
}
