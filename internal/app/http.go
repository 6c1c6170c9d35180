package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"casebook/api/internal/draft"
	"casebook/api/internal/export"
	"casebook/api/internal/record"
	"casebook/api/internal/submit"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		s.handleReady(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/session/login" {
		s.handleLogin(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/session" {
		token := bearerToken(r)
		if token == "" {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
			return
		}
		session, err := s.service.SessionFromToken(token)
		if err != nil {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"authenticated": true,
			"name":          session.Name,
			"email":         session.Email,
			"clinic":        session.Clinic,
		})
		return
	}

	// Everything below requires a session.
	session, err := s.requireSession(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Sign in required", nil)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/drafts" {
		s.handleCheckDraft(w, r, session)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/cases" {
		s.handleCreateCase(w, r, session)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/cases/search" {
		s.handleSearch(w, r)
		return
	}

	if caseID, tail, ok := caseRoute(r.URL.Path); ok {
		switch {
		case tail == "" && r.Method == http.MethodGet:
			s.handleGetCase(w, r, caseID)
			return
		case tail == "" && r.Method == http.MethodPatch:
			s.handleScheduleUpdate(w, r, caseID)
			return
		case tail == "" && r.Method == http.MethodDelete:
			s.handleDeleteDraft(w, r, caseID)
			return
		case tail == "flush" && r.Method == http.MethodPost:
			s.handleFlush(w, r, caseID)
			return
		case tail == "resume" && r.Method == http.MethodPost:
			s.handleResume(w, r, caseID)
			return
		case tail == "submit" && r.Method == http.MethodPost:
			s.handleSubmit(w, r, caseID)
			return
		case tail == "submission" && r.Method == http.MethodGet:
			s.handleSubmissionStatus(w, caseID)
			return
		case tail == "journal" && r.Method == http.MethodGet:
			s.handleJournal(w, caseID)
			return
		case tail == "summary.pdf" && r.Method == http.MethodGet:
			s.handleSummaryPDF(w, r, caseID)
			return
		}
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Unknown route", nil)
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{
		"draftStore": map[string]any{"status": "ok"},
		"archive":    map[string]any{"status": "ok"},
	}

	if s.service.PersistenceDegraded() {
		checks["draftStore"] = map[string]any{"status": "degraded", "mode": "in-memory"}
	} else if err := s.service.Ping(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["draftStore"] = map[string]any{"status": "error", "error": err.Error()}
	}

	if err := s.service.PingArchive(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["archive"] = map[string]any{"status": "error", "error": err.Error()}
	}

	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

func (s *HTTPServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Clinic   string `json:"clinic"`
		Passcode string `json:"passcode"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	session, err := s.service.Login(body.Name, body.Email, body.Clinic, body.Passcode)
	if err != nil {
		s.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":     session.Token,
		"name":      session.Name,
		"email":     session.Email,
		"clinic":    session.Clinic,
		"expiresAt": session.ExpiresAt.Unix(),
	})
}

func (s *HTTPServer) handleCheckDraft(w http.ResponseWriter, r *http.Request, session Session) {
	emailAddr := strings.TrimSpace(r.URL.Query().Get("email"))
	if emailAddr == "" {
		emailAddr = session.Email
	}
	rec, err := s.service.CheckExistingDraft(r.Context(), emailAddr)
	if err != nil {
		s.respondError(w, err)
		return
	}
	if rec == nil {
		writeJSON(w, http.StatusOK, map[string]any{"draft": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"draft": rec})
}

func (s *HTTPServer) handleCreateCase(w http.ResponseWriter, r *http.Request, session Session) {
	var body CreateCaseInput
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if body.ClinicianName == "" {
		body.ClinicianName = session.Name
	}
	if body.Email == "" {
		body.Email = session.Email
	}
	if body.Clinic == "" {
		body.Clinic = session.Clinic
	}

	result, err := s.service.CreateCase(r.Context(), body)
	if err != nil {
		s.respondError(w, err)
		return
	}
	if result.ExistingDraft != nil {
		// The clinician must choose: resume, or retry with forceNew.
		writeJSON(w, http.StatusConflict, map[string]any{
			"existingDraft": result.ExistingDraft,
		})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"case": result.Created})
}

func (s *HTTPServer) handleGetCase(w http.ResponseWriter, r *http.Request, caseID string) {
	rec, err := s.service.GetCase(r.Context(), caseID)
	if err != nil {
		s.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"case": rec})
}

func (s *HTTPServer) handleScheduleUpdate(w http.ResponseWriter, r *http.Request, caseID string) {
	var patch record.Patch
	if err := decodeBody(r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	rec, err := s.service.ScheduleUpdate(r.Context(), caseID, patch)
	if err != nil {
		s.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"case": rec})
}

func (s *HTTPServer) handleDeleteDraft(w http.ResponseWriter, r *http.Request, caseID string) {
	if err := s.service.DeleteDraft(r.Context(), caseID); err != nil {
		s.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleFlush(w http.ResponseWriter, r *http.Request, caseID string) {
	if err := s.service.FlushCase(r.Context(), caseID); err != nil {
		s.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleResume(w http.ResponseWriter, r *http.Request, caseID string) {
	rec, err := s.service.ResumeCase(r.Context(), caseID)
	if err != nil {
		s.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"case": rec})
}

func (s *HTTPServer) handleSubmit(w http.ResponseWriter, r *http.Request, caseID string) {
	outcome, err := s.service.SubmitCase(r.Context(), caseID)
	if err != nil {
		s.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"outcome": outcome,
	})
}

func (s *HTTPServer) handleSubmissionStatus(w http.ResponseWriter, caseID string) {
	status, ok := s.service.SubmissionProgress(caseID)
	if !ok {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "No submission recorded for case", nil)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *HTTPServer) handleJournal(w http.ResponseWriter, caseID string) {
	snapshots, err := s.service.JournalSnapshots(caseID)
	if err != nil {
		s.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"snapshots": snapshots})
}

func (s *HTTPServer) handleSummaryPDF(w http.ResponseWriter, r *http.Request, caseID string) {
	result, err := s.service.RenderSummaryPDF(r.Context(), caseID)
	if err != nil {
		if errors.Is(err, export.ErrChromeMissing) {
			writeError(w, http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "PDF rendering is not available", nil)
			return
		}
		s.respondError(w, err)
		return
	}
	w.Header().Set("Content-Type", result.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	docs, err := s.service.SearchCases(r.Context(), query, limit)
	if err != nil {
		s.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": docs})
}

func (s *HTTPServer) requireSession(r *http.Request) (Session, error) {
	token := bearerToken(r)
	if token == "" {
		return Session{}, errors.New("missing bearer token")
	}
	return s.service.SessionFromToken(token)
}

// respondError maps service errors onto the JSON error envelope.
func (s *HTTPServer) respondError(w http.ResponseWriter, err error) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		writeError(w, domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details)
		return
	}

	var validationErr *submit.ValidationError
	if errors.As(err, &validationErr) {
		writeError(w, http.StatusBadRequest, "VALIDATION_FAILED", "Required submission fields are missing", map[string]any{
			"fields": validationErr.Fields,
		})
		return
	}

	var stageErr *submit.StageError
	if errors.As(err, &stageErr) {
		writeError(w, http.StatusBadGateway, "SUBMISSION_FAILED", stageErr.Error(), map[string]any{
			"stage": string(stageErr.Stage),
		})
		return
	}

	switch {
	case errors.Is(err, draft.ErrNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Case not found", nil)
	case errors.Is(err, draft.ErrAlreadySubmitted):
		writeError(w, http.StatusConflict, "ALREADY_SUBMITTED", "The case was already submitted and can no longer change", nil)
	case errors.Is(err, draft.ErrPersistenceUnavailable):
		writeError(w, http.StatusServiceUnavailable, "PERSISTENCE_UNAVAILABLE", "Draft storage is unavailable", nil)
	default:
		log.Printf("app: internal error: %v", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "Internal error", nil)
	}
}

// caseRoute splits /api/cases/{id}[/tail] and rejects empty ids.
func caseRoute(path string) (caseID, tail string, ok bool) {
	const prefix = "/api/cases/"
	if !strings.HasPrefix(path, prefix) {
		return "", "", false
	}
	rest := strings.TrimPrefix(path, prefix)
	if rest == "" {
		return "", "", false
	}
	parts := strings.SplitN(rest, "/", 2)
	caseID = parts[0]
	if len(parts) == 2 {
		tail = parts[1]
	}
	return caseID, tail, caseID != ""
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

func setCORSHeaders(header http.Header, origin string) {
	header.Set("Access-Control-Allow-Origin", origin)
	header.Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
	header.Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID")
}

func randomRequestID() string {
	bytes := make([]byte, 8)
	_, _ = rand.Read(bytes)
	return hex.EncodeToString(bytes)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}
