// ABOUTME: REST API for autopilot sessions, leads and compliance checks
// ABOUTME: Thin JSON layer over the session controller plus /metrics and /healthz
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/harperreed/leadpilot/autopilot"
	"github.com/harperreed/leadpilot/db"
	"github.com/harperreed/leadpilot/models"
	"github.com/harperreed/leadpilot/oracle"
)

const maxBodyBytes = 1 << 20

// LeadDirectory is the lead listing and creation surface.
type LeadDirectory interface {
	List(ctx context.Context, filter db.LeadFilter) ([]models.Lead, error)
	Create(ctx context.Context, lead *models.Lead) error
}

// SessionHistory lists sessions persisted by earlier processes.
type SessionHistory interface {
	List(ctx context.Context, userID string, limit int) ([]models.SessionSummary, error)
}

// Checker is the compliance surface exposed at /compliance/check.
type Checker interface {
	Check(content string) []models.ComplianceViolation
	SafeAlternative(content string) string
}

type Options struct {
	Controller *autopilot.Controller
	Leads      LeadDirectory
	History    SessionHistory
	Checker    Checker
	Gatherer   prometheus.Gatherer
	Logger     *log.Logger
	// DefaultSettings apply when a start request omits settings.
	DefaultSettings models.RunSettings
}

type Server struct {
	controller *autopilot.Controller
	leads      LeadDirectory
	history    SessionHistory
	checker    Checker
	gatherer   prometheus.Gatherer
	logger     *log.Logger
	defaults   models.RunSettings
	mux        *http.ServeMux
}

func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	defaults := opts.DefaultSettings
	if defaults == (models.RunSettings{}) {
		defaults = models.DefaultRunSettings()
	}

	s := &Server{
		controller: opts.Controller,
		leads:      opts.Leads,
		history:    opts.History,
		checker:    opts.Checker,
		gatherer:   opts.Gatherer,
		logger:     logger.With("component", "web"),
		defaults:   defaults,
		mux:        http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /autopilot/start", s.handleStart)
	s.mux.HandleFunc("POST /autopilot/pause", s.handleControl(s.controller.Pause))
	s.mux.HandleFunc("POST /autopilot/resume", s.handleControl(s.controller.Resume))
	s.mux.HandleFunc("POST /autopilot/abort", s.handleControl(s.controller.Abort))
	s.mux.HandleFunc("GET /autopilot/status", s.handleStatus)
	s.mux.HandleFunc("GET /autopilot/queue", s.handleQueue)
	s.mux.HandleFunc("GET /autopilot/sessions", s.handleSessions)
	s.mux.HandleFunc("POST /autopilot/action/{id}/apply", s.handleApply)
	s.mux.HandleFunc("POST /autopilot/action/{id}/skip", s.handleSkip)
	s.mux.HandleFunc("POST /autopilot/action/{id}/edit", s.handleEdit)
	s.mux.HandleFunc("GET /autopilot/audit", s.handleAudit)

	s.mux.HandleFunc("GET /leads", s.handleListLeads)
	s.mux.HandleFunc("POST /leads", s.handleCreateLead)
	s.mux.HandleFunc("POST /compliance/check", s.handleComplianceCheck)

	if s.gatherer != nil {
		s.mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
}

// Handler returns the routed handler with request logging.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		s.mux.ServeHTTP(rec, r)
		s.logger.Debug("request", "method", r.Method, "path", r.URL.Path, "status", rec.status, "elapsed", time.Since(started))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

type startRequest struct {
	UserID   string              `json:"userId"`
	Settings *models.RunSettings `json:"settings"`
	LeadIDs  []string            `json:"leadIds"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if !decodeBody(w, r, &req) {
		return
	}
	settings := s.defaults
	if req.Settings != nil {
		settings = *req.Settings
	}

	id, err := s.controller.Start(r.Context(), req.UserID, settings, req.LeadIDs)
	if err != nil {
		s.writeError(w, err)
		return
	}
	summary, err := s.controller.Status(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessionId": id, "session": summary})
}

type sessionRequest struct {
	SessionID string `json:"sessionId"`
}

func (s *Server) handleControl(op func(sessionID string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("sessionId")
		if id == "" {
			var req sessionRequest
			if !decodeBody(w, r, &req) {
				return
			}
			id = req.SessionID
		}
		if id == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing sessionId"})
			return
		}
		if err := op(id); err != nil {
			s.writeError(w, err)
			return
		}
		summary, err := s.controller.Status(id)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, summary)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := requireSessionID(w, r)
	if !ok {
		return
	}
	summary, err := s.controller.Status(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	id, ok := requireSessionID(w, r)
	if !ok {
		return
	}
	actions, err := s.controller.Queue(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if status := r.URL.Query().Get("status"); status != "" {
		filtered := actions[:0]
		for _, a := range actions {
			if a.Status == status {
				filtered = append(filtered, a)
			}
		}
		actions = filtered
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessionId": id, "actions": actions})
}

// handleSessions merges live sessions with persisted history; live wins.
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	limit, err := intParam(r, "limit")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	live := s.controller.Sessions(userID)
	seen := make(map[string]bool, len(live))
	out := append([]models.SessionSummary(nil), live...)
	for _, summary := range live {
		seen[summary.ID] = true
	}

	if s.history != nil {
		stored, err := s.history.List(r.Context(), userID, limit)
		if err != nil {
			s.writeError(w, err)
			return
		}
		for _, summary := range stored {
			if !seen[summary.ID] {
				out = append(out, summary)
			}
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": out})
}

type decisionRequest struct {
	Modifications map[string]any `json:"modifications"`
	Reason        string         `json:"reason"`
}

func (s *Server) handleApply(w http.ResponseWriter, r *http.Request) {
	var req decisionRequest
	if !decodeOptionalBody(w, r, &req) {
		return
	}
	action, err := s.controller.Apply(r.Context(), r.PathValue("id"), req.Modifications)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, action)
}

func (s *Server) handleSkip(w http.ResponseWriter, r *http.Request) {
	var req decisionRequest
	if !decodeOptionalBody(w, r, &req) {
		return
	}
	action, err := s.controller.Skip(r.Context(), r.PathValue("id"), req.Reason)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, action)
}

func (s *Server) handleEdit(w http.ResponseWriter, r *http.Request) {
	var req decisionRequest
	if !decodeOptionalBody(w, r, &req) {
		return
	}
	action, err := s.controller.Edit(r.Context(), r.PathValue("id"), req.Modifications)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, action)
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	filter, err := ParseAuditFilter(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	entries, err := s.controller.AuditLog(r.Context(), filter)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if entries == nil {
		entries = []models.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// ParseAuditFilter reads audit filters from query parameters.
func ParseAuditFilter(r *http.Request) (models.AuditFilter, error) {
	q := r.URL.Query()
	filter := models.AuditFilter{
		Agent:            q.Get("agent"),
		ActionType:       q.Get("actionType"),
		ComplianceStatus: q.Get("complianceStatus"),
		Source:           q.Get("source"),
		SessionID:        q.Get("sessionId"),
		EntityID:         q.Get("leadId"),
	}
	for _, p := range []struct {
		name string
		dst  **time.Time
	}{{"from", &filter.From}, {"to", &filter.To}} {
		v := q.Get(p.name)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, fmt.Errorf("%s must be RFC3339: %w", p.name, err)
		}
		*p.dst = &t
	}
	limit, err := intParam(r, "limit")
	if err != nil {
		return filter, err
	}
	filter.Limit = limit
	return filter, nil
}

func (s *Server) handleListLeads(w http.ResponseWriter, r *http.Request) {
	if s.leads == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "lead directory not configured"})
		return
	}
	limit, err := intParam(r, "limit")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	q := r.URL.Query()
	leads, err := s.leads.List(r.Context(), db.LeadFilter{
		Query:       q.Get("q"),
		Temperature: q.Get("temperature"),
		AssignedTo:  q.Get("assignedTo"),
		Tag:         q.Get("tag"),
		Limit:       limit,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	if leads == nil {
		leads = []models.Lead{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"leads": leads})
}

func (s *Server) handleCreateLead(w http.ResponseWriter, r *http.Request) {
	if s.leads == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "lead directory not configured"})
		return
	}
	var lead models.Lead
	if !decodeBody(w, r, &lead) {
		return
	}
	if strings.TrimSpace(lead.Name) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}
	if err := s.leads.Create(r.Context(), &lead); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, lead)
}

type complianceRequest struct {
	Content string `json:"content"`
}

type complianceResponse struct {
	Violations       []models.ComplianceViolation `json:"violations"`
	IsCompliant      bool                         `json:"isCompliant"`
	ComplianceStatus string                       `json:"complianceStatus"`
	SafeAlternative  string                       `json:"safeAlternative"`
}

func (s *Server) handleComplianceCheck(w http.ResponseWriter, r *http.Request) {
	if s.checker == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "compliance checker not configured"})
		return
	}
	var req complianceRequest
	if !decodeBody(w, r, &req) {
		return
	}
	violations := s.checker.Check(req.Content)
	if violations == nil {
		violations = []models.ComplianceViolation{}
	}
	status := models.ComplianceStatusFor(violations)
	writeJSON(w, http.StatusOK, complianceResponse{
		Violations:       violations,
		IsCompliant:      status == models.ComplianceSafe,
		ComplianceStatus: status,
		SafeAlternative:  s.checker.SafeAlternative(req.Content),
	})
}

// StatusFor maps domain errors to HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, autopilot.ErrInvalidState), errors.Is(err, db.ErrVersionConflict):
		return http.StatusConflict
	case errors.Is(err, autopilot.ErrSessionNotFound), errors.Is(err, autopilot.ErrActionNotFound),
		errors.Is(err, db.ErrLeadNotFound):
		return http.StatusNotFound
	case errors.Is(err, autopilot.ErrInvalidSettings), errors.Is(err, autopilot.ErrInvalidModification),
		errors.Is(err, db.ErrUnknownField), errors.Is(err, db.ErrInvalidValue):
		return http.StatusBadRequest
	case errors.Is(err, autopilot.ErrComplianceBlocked):
		return http.StatusUnprocessableEntity
	case errors.Is(err, oracle.ErrOracleUnavailable), errors.Is(err, oracle.ErrParse),
		errors.Is(err, oracle.ErrInvalidProposal):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "status", status, "err", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func requireSessionID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.URL.Query().Get("sessionId")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing sessionId"})
		return "", false
	}
	return id, true
}

func intParam(r *http.Request, name string) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", name)
	}
	return n, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return false
	}
	return true
}

// decodeOptionalBody accepts an empty body as the zero value.
func decodeOptionalBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}
