package autopilot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/leadpilot/compliance"
	"github.com/harperreed/leadpilot/models"
	"github.com/harperreed/leadpilot/oracle"
)

type proposerFunc func(ctx context.Context, lead models.Lead, rc oracle.RunContext) (models.ActionDraft, error)

func (f proposerFunc) Propose(ctx context.Context, lead models.Lead, rc oracle.RunContext) (models.ActionDraft, error) {
	return f(ctx, lead, rc)
}

func fixedDraft(d models.ActionDraft) proposerFunc {
	return func(ctx context.Context, lead models.Lead, rc oracle.RunContext) (models.ActionDraft, error) {
		return d, nil
	}
}

func crmDraft(confidence int) models.ActionDraft {
	return models.ActionDraft{
		Type:        models.ActionCRMUpdate,
		Description: "Move lead to hot after quote request",
		Steps:       []string{"Open profile", "Set temperature to hot"},
		Reasoning:   "Asked for a term plan quote",
		Confidence:  confidence,
		Difficulty:  models.DifficultyEasy,
		Changes:     map[string]any{"temperature": models.TemperatureHot},
	}
}

type storeUpdate struct {
	LeadID string
	Fields map[string]any
	Info   models.UpdateInfo
}

type fakeStore struct {
	mu         sync.Mutex
	leads      map[string]*models.Lead
	updates    []storeUpdate
	failUpdate error
	failGet    error
}

func newFakeStore(n int) *fakeStore {
	s := &fakeStore{leads: make(map[string]*models.Lead)}
	for i := 1; i <= n; i++ {
		id := fmt.Sprintf("lead-%d", i)
		s.leads[id] = &models.Lead{ID: id, Name: fmt.Sprintf("Lead %d", i), Temperature: models.TemperatureWarm}
	}
	return s
}

func (s *fakeStore) ids() []string {
	out := make([]string, 0, len(s.leads))
	for i := 1; i <= len(s.leads); i++ {
		out = append(out, fmt.Sprintf("lead-%d", i))
	}
	return out
}

func (s *fakeStore) Get(ctx context.Context, id string) (*models.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failGet != nil {
		return nil, s.failGet
	}
	l, ok := s.leads[id]
	if !ok {
		return nil, errors.New("lead not found")
	}
	c := *l
	return &c, nil
}

func (s *fakeStore) Update(ctx context.Context, id string, fields map[string]any, info models.UpdateInfo) (*models.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failUpdate != nil {
		return nil, s.failUpdate
	}
	s.updates = append(s.updates, storeUpdate{LeadID: id, Fields: fields, Info: info})
	l := s.leads[id]
	if t, ok := fields["temperature"].(string); ok {
		l.Temperature = t
	}
	l.Version++
	c := *l
	return &c, nil
}

func (s *fakeStore) updateCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.updates)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type panickingChecker struct{}

func (panickingChecker) CheckAll(texts ...string) []models.ComplianceViolation {
	panic("rule table corrupted")
}

type harness struct {
	controller *Controller
	store      *fakeStore
	audit      *MemoryAuditLog
}

func newHarness(t *testing.T, proposer Proposer, store *fakeStore, opts ...func(*Config)) *harness {
	t.Helper()
	audit := NewMemoryAuditLog()
	cfg := Config{
		Proposer: proposer,
		Checker:  compliance.NewChecker(nil),
		Store:    store,
		Audit:    audit,
		Logger:   log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	c := NewController(cfg)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = c.Shutdown(ctx)
	})
	return &harness{controller: c, store: store, audit: audit}
}

func settingsWith(mutate func(*models.RunSettings)) models.RunSettings {
	s := models.DefaultRunSettings()
	if mutate != nil {
		mutate(&s)
	}
	return s
}

// startAndWait starts a session and blocks until its loop exits.
func (h *harness) startAndWait(t *testing.T, settings models.RunSettings, leadIDs []string) *Session {
	t.Helper()
	id, err := h.controller.Start(context.Background(), "agent-1", settings, leadIDs)
	require.NoError(t, err)
	s, err := h.controller.Session(id)
	require.NoError(t, err)
	waitDone(t, s)
	return s
}

func waitDone(t *testing.T, s *Session) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("session %s did not finish", s.ID())
	}
}

func (h *harness) auditFor(t *testing.T, actionID string) []models.AuditEntry {
	t.Helper()
	entries, err := h.audit.Query(context.Background(), models.AuditFilter{})
	require.NoError(t, err)
	var out []models.AuditEntry
	for _, e := range entries {
		if e.ActionID == actionID {
			out = append(out, e)
		}
	}
	return out
}
