package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"casebook/api/internal/archive"
	"casebook/api/internal/auth"
	"casebook/api/internal/caseid"
	"casebook/api/internal/config"
	"casebook/api/internal/draft"
	"casebook/api/internal/email"
	"casebook/api/internal/export"
	"casebook/api/internal/journal"
	"casebook/api/internal/record"
	"casebook/api/internal/search"
	"casebook/api/internal/submit"
	"casebook/api/internal/util"
)

// Session is an authenticated clinician.
type Session struct {
	Token     string
	Name      string
	Email     string
	Clinic    string
	ExpiresAt time.Time
}

// CreateCaseInput is the intake identity form.
type CreateCaseInput struct {
	ClinicianName string `json:"clinicianName"`
	Email         string `json:"email"`
	Clinic        string `json:"clinic"`
	ChildFirst    string `json:"childFirstName"`
	ChildLast     string `json:"childLastName"`
	ChildDOB      string `json:"childDob"`
	// ForceNew skips the existing-draft offer and mints a new case id. The
	// old draft is left untouched.
	ForceNew bool `json:"forceNew"`
}

// CreateCaseResult either carries the new case or the existing draft the
// clinician must explicitly choose to resume or abandon.
type CreateCaseResult struct {
	Created       *record.CaseRecord
	ExistingDraft *record.CaseRecord
}

// SubmissionStatus is the polled progress of a pipeline run.
type SubmissionStatus struct {
	Stage     submit.Stage    `json:"stage"`
	Percent   int             `json:"percent"`
	Running   bool            `json:"running"`
	Error     string          `json:"error,omitempty"`
	Outcome   *submit.Outcome `json:"outcome,omitempty"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Service wires the draft, submission and supporting subsystems together.
type Service struct {
	cfg      config.Config
	drafts   draft.Store
	sync     *draft.Synchronizer
	resolver *draft.Resolver
	pipeline *submit.Pipeline
	archive  *archive.Store
	search   *search.Service
	exporter *export.Service
	emailSvc *email.Service
	journal  *journal.Service

	// degraded is set when the durable draft backend was unreachable at
	// startup and drafts live in memory only.
	degraded bool

	subMu       sync.Mutex
	submissions map[string]*SubmissionStatus
}

// Options carries the optional collaborators; any of them may be nil.
type Options struct {
	Pipeline *submit.Pipeline
	Archive  *archive.Store
	Search   *search.Service
	Exporter *export.Service
	Email    *email.Service
	Journal  *journal.Service
	Degraded bool
}

func New(cfg config.Config, drafts draft.Store, sync *draft.Synchronizer, opts Options) *Service {
	return &Service{
		cfg:         cfg,
		drafts:      drafts,
		sync:        sync,
		resolver:    draft.NewResolver(drafts),
		pipeline:    opts.Pipeline,
		archive:     opts.Archive,
		search:      opts.Search,
		exporter:    opts.Exporter,
		emailSvc:    opts.Email,
		journal:     opts.Journal,
		degraded:    opts.Degraded,
		submissions: make(map[string]*SubmissionStatus),
	}
}

// PersistenceDegraded reports whether drafts are held in memory only.
func (s *Service) PersistenceDegraded() bool {
	return s.degraded
}

func (s *Service) Ping(ctx context.Context) error {
	return s.drafts.Ping(ctx)
}

func (s *Service) PingArchive(ctx context.Context) error {
	if s.archive == nil {
		return nil
	}
	return s.archive.Ping(ctx)
}

// Login verifies the clinic passcode and issues a session token.
func (s *Service) Login(name, emailAddr, clinic, passcode string) (Session, error) {
	name = strings.TrimSpace(name)
	emailAddr = strings.TrimSpace(emailAddr)
	if name == "" || emailAddr == "" {
		return Session{}, domainError(http.StatusBadRequest, "INVALID_IDENTITY", "Name and email are required", nil)
	}
	if err := auth.VerifyPasscode(s.cfg.ClinicPasscodeHash, passcode); err != nil {
		return Session{}, domainError(http.StatusUnauthorized, "INVALID_PASSCODE", "Invalid clinic passcode", nil)
	}

	expiresAt := time.Now().Add(s.cfg.SessionTTL)
	token, err := auth.IssueToken([]byte(s.cfg.SessionSecret), auth.Claims{
		Email:  emailAddr,
		Name:   name,
		Clinic: clinic,
		JTI:    util.NewID(""),
		Exp:    expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, fmt.Errorf("issue token: %w", err)
	}
	return Session{
		Token:     token,
		Name:      name,
		Email:     emailAddr,
		Clinic:    clinic,
		ExpiresAt: expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.SessionSecret), token)
	if err != nil {
		return Session{}, err
	}
	return Session{
		Token:     token,
		Name:      claims.Name,
		Email:     claims.Email,
		Clinic:    claims.Clinic,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

// CreateCase mints a case id and creates the draft. Unless ForceNew is set,
// an existing unsubmitted draft for the clinician email is returned instead
// so the caller can present the resume-or-start-fresh choice; nothing is
// resumed and nothing is discarded silently.
func (s *Service) CreateCase(ctx context.Context, in CreateCaseInput) (CreateCaseResult, error) {
	if !in.ForceNew {
		existing, err := s.resolver.CheckExistingDraft(ctx, in.Email)
		if err != nil {
			return CreateCaseResult{}, fmt.Errorf("check existing draft: %w", err)
		}
		if existing != nil {
			return CreateCaseResult{ExistingDraft: existing}, nil
		}
	}

	existingIDs, err := s.existingCaseIDs(ctx)
	if err != nil {
		return CreateCaseResult{}, err
	}

	childName := strings.TrimSpace(in.ChildFirst + " " + in.ChildLast)
	id, err := caseid.Generate(in.ClinicianName, childName, existingIDs)
	if errors.Is(err, caseid.ErrInvalidIdentityInput) {
		return CreateCaseResult{}, domainError(http.StatusBadRequest, "INVALID_IDENTITY", "Clinician and child names are required to mint a case id", nil)
	}
	if err != nil {
		return CreateCaseResult{}, err
	}

	rec := record.New(id, record.ClinicianInfo{
		Name:       strings.TrimSpace(in.ClinicianName),
		Email:      strings.TrimSpace(in.Email),
		Clinic:     strings.TrimSpace(in.Clinic),
		ChildFirst: strings.TrimSpace(in.ChildFirst),
		ChildLast:  strings.TrimSpace(in.ChildLast),
		ChildDOB:   strings.TrimSpace(in.ChildDOB),
	})
	if err := s.drafts.Put(ctx, rec); err != nil {
		return CreateCaseResult{}, fmt.Errorf("persist new case: %w", err)
	}
	s.sync.Track(rec)
	if s.search != nil {
		s.search.Index(rec)
	}
	return CreateCaseResult{Created: rec}, nil
}

// existingCaseIDs unions live draft ids with archived (submitted) ids so a
// submitted case id is never minted twice, even after its draft expired.
func (s *Service) existingCaseIDs(ctx context.Context) (map[string]bool, error) {
	ids := make(map[string]bool)
	draftIDs, err := s.drafts.ListIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list draft ids: %w", err)
	}
	for _, id := range draftIDs {
		ids[id] = true
	}
	if s.archive != nil {
		archivedIDs, err := s.archive.ListCaseIDs(ctx)
		if err != nil {
			return nil, fmt.Errorf("list archived ids: %w", err)
		}
		for _, id := range archivedIDs {
			ids[id] = true
		}
	}
	return ids, nil
}

// GetCase prefers the synchronizer's working copy, which may be ahead of
// the persisted draft, so reads are always fresh.
func (s *Service) GetCase(ctx context.Context, caseID string) (*record.CaseRecord, error) {
	if rec, ok := s.sync.Working(caseID); ok {
		return rec, nil
	}
	rec, err := s.drafts.Get(ctx, caseID)
	if err != nil {
		return nil, err
	}
	s.sync.Track(rec)
	return rec, nil
}

// ScheduleUpdate routes a partial update through the debounced synchronizer.
func (s *Service) ScheduleUpdate(ctx context.Context, caseID string, patch record.Patch) (*record.CaseRecord, error) {
	return s.sync.Schedule(ctx, caseID, patch)
}

// FlushCase forces the pending debounced write, used by the client's
// navigation-away hook.
func (s *Service) FlushCase(ctx context.Context, caseID string) error {
	return s.sync.Flush(ctx, caseID)
}

// CheckExistingDraft is the recovery resolver query at intake time.
func (s *Service) CheckExistingDraft(ctx context.Context, emailAddr string) (*record.CaseRecord, error) {
	return s.resolver.CheckExistingDraft(ctx, emailAddr)
}

// ResumeCase loads a draft into the synchronizer after the clinician
// explicitly chose to resume it.
func (s *Service) ResumeCase(ctx context.Context, caseID string) (*record.CaseRecord, error) {
	rec, err := s.drafts.Get(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if rec.IsSubmitted {
		return nil, draft.ErrAlreadySubmitted
	}
	s.sync.Track(rec)
	return rec, nil
}

// DeleteDraft discards a draft after an explicit clear; never called as a
// side effect of starting fresh.
func (s *Service) DeleteDraft(ctx context.Context, caseID string) error {
	return s.drafts.Delete(ctx, caseID)
}

// SubmitCase flushes pending writes, snapshots the record and runs the
// submission pipeline to completion. Stage progress is recorded for the
// status endpoint while the run is in flight.
func (s *Service) SubmitCase(ctx context.Context, caseID string) (submit.Outcome, error) {
	if s.pipeline == nil {
		return submit.Outcome{}, domainError(http.StatusServiceUnavailable, "SUBMISSION_UNAVAILABLE", "Remote submission endpoints are not configured", nil)
	}

	if !s.beginSubmission(caseID) {
		return submit.Outcome{}, domainError(http.StatusConflict, "SUBMISSION_IN_PROGRESS", "A submission for this case is already running", nil)
	}
	defer s.endSubmission(caseID)

	// Pending edits must reach the store before the snapshot is taken.
	if err := s.sync.Flush(ctx, caseID); err != nil {
		return submit.Outcome{}, fmt.Errorf("flush before submit: %w", err)
	}

	rec, ok := s.sync.Snapshot(caseID)
	if !ok {
		stored, err := s.drafts.Get(ctx, caseID)
		if err != nil {
			return submit.Outcome{}, err
		}
		rec = stored
	}
	if rec.IsSubmitted {
		return submit.Outcome{}, draft.ErrAlreadySubmitted
	}

	outcome, err := s.pipeline.Run(ctx, rec, func(stage submit.Stage, percent int) {
		s.recordProgress(caseID, stage, percent, nil, "")
	})
	if err != nil {
		s.recordProgress(caseID, submit.StageErrored, 0, nil, err.Error())
		return submit.Outcome{}, err
	}

	if err := s.drafts.MarkSubmitted(ctx, caseID); err != nil {
		// The remote side already has the record; surface but keep going.
		log.Printf("app: mark submitted %s: %v", caseID, err)
	}
	s.finalizeSubmission(ctx, rec, outcome)
	// The working copy must reflect the submitted state so later edits are
	// rejected instead of queued.
	s.sync.Track(rec)
	s.recordProgress(caseID, submit.StageComplete, 100, &outcome, "")
	return outcome, nil
}

// finalizeSubmission archives, indexes and notifies. Each step is
// best-effort: the submission itself already succeeded remotely, so local
// bookkeeping failures are logged, never propagated.
func (s *Service) finalizeSubmission(ctx context.Context, rec *record.CaseRecord, outcome submit.Outcome) {
	rec.IsSubmitted = true
	rec.Form.Status = record.StatusSubmitted

	if s.archive != nil {
		if err := s.archive.InsertCase(ctx, rec, outcome.RowID, outcome.ReportURL); err != nil {
			log.Printf("app: archive case %s: %v", rec.CaseID, err)
		}
	}
	if s.search != nil {
		s.search.Index(rec)
	}
	if s.journal != nil {
		if err := s.journal.Append(rec); err != nil {
			log.Printf("app: journal final snapshot %s: %v", rec.CaseID, err)
		}
	}
	if s.emailSvc != nil && s.emailSvc.IsConfigured() && outcome.ReportURL != "" {
		if err := s.emailSvc.SendReportReadyEmail(rec.Clinician.Email, rec.Clinician.Name, rec.CaseID, outcome.ReportURL); err != nil {
			// Report link still reaches the clinician through the UI.
			log.Printf("app: report email for %s: %v", rec.CaseID, err)
		}
	}
}

func (s *Service) beginSubmission(caseID string) bool {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if status, ok := s.submissions[caseID]; ok && status.Running {
		return false
	}
	s.submissions[caseID] = &SubmissionStatus{
		Stage:     submit.StageValidating,
		Running:   true,
		UpdatedAt: time.Now().UTC(),
	}
	return true
}

func (s *Service) endSubmission(caseID string) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if status, ok := s.submissions[caseID]; ok {
		status.Running = false
	}
}

func (s *Service) recordProgress(caseID string, stage submit.Stage, percent int, outcome *submit.Outcome, errMsg string) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	status, ok := s.submissions[caseID]
	if !ok {
		status = &SubmissionStatus{}
		s.submissions[caseID] = status
	}
	status.Stage = stage
	status.Percent = percent
	status.Outcome = outcome
	status.Error = errMsg
	status.UpdatedAt = time.Now().UTC()
}

// SubmissionProgress returns the latest recorded pipeline progress.
func (s *Service) SubmissionProgress(caseID string) (SubmissionStatus, bool) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	status, ok := s.submissions[caseID]
	if !ok {
		return SubmissionStatus{}, false
	}
	return *status, true
}

// SearchCases queries the case search service.
func (s *Service) SearchCases(ctx context.Context, query string, limit int) ([]search.Doc, error) {
	if s.search == nil {
		return []search.Doc{}, nil
	}
	return s.search.Search(ctx, query, limit)
}

// JournalSnapshots lists the draft snapshot history for a case.
func (s *Service) JournalSnapshots(caseID string) ([]journal.Snapshot, error) {
	if s.journal == nil {
		return []journal.Snapshot{}, nil
	}
	return s.journal.Snapshots(caseID)
}

// RenderSummaryPDF produces the printable assessment summary.
func (s *Service) RenderSummaryPDF(ctx context.Context, caseID string) (*export.Result, error) {
	if s.exporter == nil {
		return nil, export.ErrChromeMissing
	}
	rec, err := s.GetCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	return s.exporter.RenderSummaryPDF(ctx, rec)
}

// Close flushes pending draft writes on shutdown.
func (s *Service) Close() error {
	return s.sync.Close()
}
