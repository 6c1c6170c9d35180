package submit

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"casebook/api/internal/record"
	"casebook/api/internal/util"
)

// Stage is one sequential unit of the submission pipeline.
type Stage string

const (
	StageValidating       Stage = "validating"
	StageTransforming     Stage = "transforming"
	StageSubmittingRecord Stage = "submittingRecord"
	StageTemplate         Stage = "templateStage"
	StageAnalysis         Stage = "analysisStage"
	StageReport           Stage = "reportStage"
	StageComplete         Stage = "complete"
	StageErrored          Stage = "error"
)

// stagePercent gives the coarse determinate progress reported when a stage
// begins.
var stagePercent = map[Stage]int{
	StageValidating:       5,
	StageTransforming:     15,
	StageSubmittingRecord: 30,
	StageTemplate:         50,
	StageAnalysis:         70,
	StageReport:           90,
	StageComplete:         100,
}

// ErrSequenceIntegrity marks a stage attempted without its predecessor's
// success. Unreachable by construction; seeing it is a programming error.
var ErrSequenceIntegrity = errors.New("submit: stage sequence violated")

// ValidationError lists the mandatory identity fields that were empty.
// User-correctable and terminal; no network call happens after it.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "missing required fields: " + strings.Join(e.Fields, ", ")
}

// StageError names the stage a submission died in, so support can tell
// which remote dependency failed.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// ProgressFunc receives stage transitions for a determinate progress UI.
type ProgressFunc func(stage Stage, percent int)

// ChartRenderer rasterizes the record's chart/timeline visuals to an
// embeddable image. Optional; rendering failures never fail a submission.
type ChartRenderer interface {
	RenderChartPNG(ctx context.Context, rec *record.CaseRecord) ([]byte, error)
}

// ArtifactStore uploads rendered visuals and returns a fetchable URL.
type ArtifactStore interface {
	UploadChart(ctx context.Context, caseID string, png []byte) (string, error)
}

// Outcome is what a completed pipeline run exposes to the caller.
type Outcome struct {
	RowID       string `json:"rowId"`
	ReportURL   string `json:"reportUrl,omitempty"`
	EmailStatus string `json:"emailStatus,omitempty"`
}

// Pipeline runs the submission state machine over a snapshot of a case
// record. A pipeline value is stateless across runs; per-run state lives on
// the stack so concurrent cases cannot interfere.
type Pipeline struct {
	client      *Client
	maxAttempts int
	baseDelay   time.Duration
	renderer    ChartRenderer
	artifacts   ArtifactStore
}

// NewPipeline wires a pipeline. renderer and artifacts may be nil, which
// disables chart embedding.
func NewPipeline(client *Client, maxAttempts int, baseDelay time.Duration, renderer ChartRenderer, artifacts ArtifactStore) *Pipeline {
	return &Pipeline{
		client:      client,
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		renderer:    renderer,
		artifacts:   artifacts,
	}
}

// Run executes validating → transforming → submittingRecord → templateStage
// → analysisStage → reportStage → complete against the given snapshot.
// The record must be a snapshot taken at pipeline start: Run never re-reads
// live state, so a synchronizer flush racing the run cannot tear it.
//
// A failure in any stage stops the run; later stages are never attempted
// with incomplete upstream state. There is no cancellation between stages;
// once started the run goes to completion or terminal error.
func (p *Pipeline) Run(ctx context.Context, rec *record.CaseRecord, progress ProgressFunc) (Outcome, error) {
	if progress == nil {
		progress = func(Stage, int) {}
	}
	report := func(stage Stage) {
		progress(stage, stagePercent[stage])
	}

	// validating
	report(StageValidating)
	if fields := missingIdentityFields(rec); len(fields) > 0 {
		return Outcome{}, &StageError{Stage: StageValidating, Err: &ValidationError{Fields: fields}}
	}

	// transforming
	report(StageTransforming)
	wire := Flatten(rec)
	wire["submissionNonce"] = util.NewID("sub")
	p.attachChart(ctx, rec, wire)

	// submittingRecord
	report(StageSubmittingRecord)
	var rowID string
	err := RetryWithBackoff(ctx, p.maxAttempts, p.baseDelay, func(ctx context.Context) error {
		id, err := p.client.SubmitRecord(ctx, wire)
		if err != nil {
			return err
		}
		rowID = id
		return nil
	})
	if err != nil {
		return Outcome{}, &StageError{Stage: StageSubmittingRecord, Err: err}
	}

	outcome := Outcome{RowID: rowID}
	stages := []struct {
		stage Stage
		url   string
	}{
		{StageTemplate, p.client.cfg.TemplateURL},
		{StageAnalysis, p.client.cfg.AnalysisURL},
		{StageReport, p.client.cfg.ReportURL},
	}
	done := map[Stage]bool{StageSubmittingRecord: true}
	previous := StageSubmittingRecord
	for _, step := range stages {
		if !done[previous] {
			return Outcome{}, &StageError{Stage: step.stage, Err: ErrSequenceIntegrity}
		}
		report(step.stage)
		var result StageResult
		err := RetryWithBackoff(ctx, p.maxAttempts, p.baseDelay, func(ctx context.Context) error {
			res, err := p.client.RunStage(ctx, step.url, rec.CaseID)
			if err != nil {
				return err
			}
			result = res
			return nil
		})
		if err != nil {
			return Outcome{}, &StageError{Stage: step.stage, Err: err}
		}
		if result.Progress != nil {
			if result.Progress.Details.DocumentURL != "" {
				outcome.ReportURL = result.Progress.Details.DocumentURL
			}
			if result.Progress.Details.EmailStatus != "" {
				outcome.EmailStatus = result.Progress.Details.EmailStatus
			}
		}
		done[step.stage] = true
		previous = step.stage
	}

	report(StageComplete)
	return outcome, nil
}

// attachChart rasterizes and uploads the chart visuals when both
// collaborators are wired. Failures are logged and the submission continues
// without the embed.
func (p *Pipeline) attachChart(ctx context.Context, rec *record.CaseRecord, wire map[string]string) {
	if p.renderer == nil || p.artifacts == nil {
		return
	}
	png, err := p.renderer.RenderChartPNG(ctx, rec)
	if err != nil {
		log.Printf("submit: chart render for %s skipped: %v", rec.CaseID, err)
		return
	}
	url, err := p.artifacts.UploadChart(ctx, rec.CaseID, png)
	if err != nil {
		log.Printf("submit: chart upload for %s skipped: %v", rec.CaseID, err)
		return
	}
	wire["chartImageUrl"] = url
}

func missingIdentityFields(rec *record.CaseRecord) []string {
	var missing []string
	if strings.TrimSpace(rec.CaseID) == "" {
		missing = append(missing, "caseId")
	}
	if strings.TrimSpace(rec.Clinician.Name) == "" {
		missing = append(missing, "clinicianName")
	}
	if strings.TrimSpace(rec.Clinician.Email) == "" {
		missing = append(missing, "clinicianEmail")
	}
	if strings.TrimSpace(rec.Clinician.Clinic) == "" {
		missing = append(missing, "clinic")
	}
	return missing
}
