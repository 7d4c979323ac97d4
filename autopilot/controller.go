// ABOUTME: SessionController, the boundary API for starting and steering autopilot runs
// ABOUTME: Routes decisions to the owning session and answers status, queue and audit queries
package autopilot

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/harperreed/leadpilot/models"
)

// Config wires a Controller to its collaborators. Proposer, Checker, Store
// and Audit are required.
type Config struct {
	Proposer Proposer
	Checker  ComplianceChecker
	Store    LeadStore
	Audit    AuditLog
	Recorder SessionRecorder
	Metrics  *Metrics
	Logger   *log.Logger
	Now      func() time.Time
}

// Controller owns every session started in this process.
type Controller struct {
	deps  sessionDeps
	audit AuditLog

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewController(cfg Config) *Controller {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	var audit AuditLog = cfg.Audit
	if audit == nil {
		audit = NewMemoryAuditLog()
	}
	if cfg.Metrics != nil {
		audit = meteredAuditLog{AuditLog: audit, metrics: cfg.Metrics}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		deps: sessionDeps{
			proposer: cfg.Proposer,
			checker:  cfg.Checker,
			store:    cfg.Store,
			recorder: cfg.Recorder,
			metrics:  cfg.Metrics,
			logger:   logger.With("component", "autopilot"),
			now:      now,
		},
		audit:    audit,
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[string]*Session),
	}
}

// Start validates settings and launches a session over leadIDs in order.
// Empty and duplicate lead IDs are dropped.
func (c *Controller) Start(ctx context.Context, userID string, settings models.RunSettings, leadIDs []string) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("%w: userId is required", ErrInvalidSettings)
	}
	if err := settings.Validate(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	if err := c.ctx.Err(); err != nil {
		return "", fmt.Errorf("controller is shut down: %w", err)
	}

	seen := make(map[string]bool, len(leadIDs))
	ordered := make([]string, 0, len(leadIDs))
	for _, id := range leadIDs {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ordered = append(ordered, id)
	}

	s := newSession(uuid.New().String(), userID, settings, ordered, c.audit, c.deps)

	c.mu.Lock()
	c.sessions[s.id] = s
	c.mu.Unlock()

	c.deps.metrics.sessionStarted()
	s.logger.Info("session started", "user", userID, "leads", len(ordered), "timebox", settings.Timebox())
	s.persist()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		s.run(c.ctx)
	}()
	return s.id, nil
}

// Session returns the session with id.
func (c *Controller) Session(id string) (*Session, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

func (c *Controller) Pause(sessionID string) error {
	s, err := c.Session(sessionID)
	if err != nil {
		return err
	}
	s.Pause()
	return nil
}

func (c *Controller) Resume(sessionID string) error {
	s, err := c.Session(sessionID)
	if err != nil {
		return err
	}
	s.Resume()
	return nil
}

func (c *Controller) Abort(sessionID string) error {
	s, err := c.Session(sessionID)
	if err != nil {
		return err
	}
	s.Abort("")
	return nil
}

func (c *Controller) Status(sessionID string) (models.SessionSummary, error) {
	s, err := c.Session(sessionID)
	if err != nil {
		return models.SessionSummary{}, err
	}
	return s.Summary(), nil
}

func (c *Controller) Queue(sessionID string) ([]models.QueuedAction, error) {
	s, err := c.Session(sessionID)
	if err != nil {
		return nil, err
	}
	return s.Actions(), nil
}

// Sessions lists in-process sessions, newest first, optionally for one user.
func (c *Controller) Sessions(userID string) []models.SessionSummary {
	c.mu.RLock()
	out := make([]models.SessionSummary, 0, len(c.sessions))
	for _, s := range c.sessions {
		if userID != "" && s.userID != userID {
			continue
		}
		out = append(out, s.Summary())
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out
}

// sessionForAction finds the session whose queue holds actionID.
func (c *Controller) sessionForAction(actionID string) (*Session, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, s := range c.sessions {
		if _, ok := s.queue.Find(actionID); ok {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrActionNotFound, actionID)
}

func (c *Controller) Apply(ctx context.Context, actionID string, mods map[string]any) (models.QueuedAction, error) {
	s, err := c.sessionForAction(actionID)
	if err != nil {
		return models.QueuedAction{}, err
	}
	a, err := s.Apply(ctx, actionID, mods)
	s.persist()
	return a, err
}

func (c *Controller) Skip(ctx context.Context, actionID, reason string) (models.QueuedAction, error) {
	s, err := c.sessionForAction(actionID)
	if err != nil {
		return models.QueuedAction{}, err
	}
	a, err := s.Skip(ctx, actionID, reason)
	if err == nil {
		s.persist()
	}
	return a, err
}

func (c *Controller) Edit(ctx context.Context, actionID string, mods map[string]any) (models.QueuedAction, error) {
	s, err := c.sessionForAction(actionID)
	if err != nil {
		return models.QueuedAction{}, err
	}
	a, err := s.Edit(ctx, actionID, mods)
	if err == nil {
		s.persist()
	}
	return a, err
}

func (c *Controller) AuditLog(ctx context.Context, filter models.AuditFilter) ([]models.AuditEntry, error) {
	return c.audit.Query(ctx, filter)
}

// Shutdown aborts every live session and waits for their loops to exit.
func (c *Controller) Shutdown(ctx context.Context) error {
	c.cancel()

	c.mu.RLock()
	for _, s := range c.sessions {
		s.Abort("shutting down")
	}
	c.mu.RUnlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
