// ABOUTME: Session state machine that walks leads, queues proposals and auto-applies
// ABOUTME: Handles pause, resume, abort, timebox completion and human decisions
package autopilot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/harperreed/leadpilot/models"
	"github.com/harperreed/leadpilot/oracle"
)

// errInterrupted marks a lead whose oracle call was cancelled by pause or abort.
var errInterrupted = errors.New("lead processing interrupted")

const persistTimeout = 5 * time.Second

type sessionDeps struct {
	proposer Proposer
	checker  ComplianceChecker
	store    LeadStore
	recorder SessionRecorder
	metrics  *Metrics
	logger   *log.Logger
	now      func() time.Time
}

// Session is one autopilot run. Its processing loop is the only goroutine
// that appends to the queue; decisions may arrive concurrently.
type Session struct {
	id        string
	userID    string
	settings  models.RunSettings
	leadIDs   []string
	queue     *Queue
	deps      sessionDeps
	logger    *log.Logger
	startedAt time.Time
	deadline  time.Time

	mu            sync.Mutex
	status        string
	reason        string
	index         int
	processed     int
	currentLeadID string
	endedAt       *time.Time
	cancelCall    context.CancelFunc

	wake chan struct{}
	done chan struct{}

	summary   atomic.Pointer[models.SessionSummary]
	persistMu sync.Mutex
}

func newSession(id, userID string, settings models.RunSettings, leadIDs []string, audit AuditLog, deps sessionDeps) *Session {
	started := deps.now()
	s := &Session{
		id:        id,
		userID:    userID,
		settings:  settings,
		leadIDs:   leadIDs,
		queue:     NewQueue(id, userID, audit, deps.now),
		deps:      deps,
		logger:    deps.logger.With("session", id),
		startedAt: started,
		deadline:  started.Add(settings.Timebox()),
		status:    models.SessionRunning,
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	s.publishLocked()
	return s
}

func (s *Session) ID() string { return s.id }

// Done is closed when the processing loop exits.
func (s *Session) Done() <-chan struct{} { return s.done }

// Summary returns the latest published state without taking the session lock.
func (s *Session) Summary() models.SessionSummary {
	sum := *s.summary.Load()
	pending, applied, skipped, failed := s.queue.counts()
	sum.PendingCount = pending
	sum.Stats.ActionsApplied = applied
	sum.Stats.ActionsSkipped = skipped
	sum.Stats.ActionsFailed = failed
	return sum
}

// Actions returns a snapshot of the queue.
func (s *Session) Actions() []models.QueuedAction {
	return s.queue.Snapshot()
}

func (s *Session) publishLocked() {
	sum := &models.SessionSummary{
		ID:              s.id,
		UserID:          s.userID,
		Settings:        s.settings,
		Status:          s.status,
		Reason:          s.reason,
		CurrentIndex:    s.index,
		TotalLeads:      len(s.leadIDs),
		CurrentLeadID:   s.currentLeadID,
		Stats:           models.SessionStats{ActionsProcessed: s.processed},
		StartedAt:       s.startedAt,
		TimeboxDeadline: s.deadline,
	}
	if s.endedAt != nil {
		t := *s.endedAt
		sum.EndedAt = &t
	}
	s.summary.Store(sum)
}

func (s *Session) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// endLocked moves the session to a terminal status. Callers hold s.mu.
func (s *Session) endLocked(status, reason string) {
	if models.SessionTerminal(s.status) {
		return
	}
	now := s.deps.now()
	s.status = status
	s.reason = reason
	s.endedAt = &now
	s.currentLeadID = ""
	if s.cancelCall != nil {
		s.cancelCall()
		s.cancelCall = nil
	}
	s.publishLocked()
	s.signal()
	s.deps.metrics.sessionEnded(status)
	s.logger.Info("session ended", "status", status, "reason", reason, "processed", s.processed)
}

// Pause stops the loop before the next lead and cancels an in-flight oracle call.
// Pausing a paused or terminal session is a no-op.
func (s *Session) Pause() {
	s.mu.Lock()
	if s.status != models.SessionRunning {
		s.mu.Unlock()
		return
	}
	s.status = models.SessionPaused
	if s.cancelCall != nil {
		s.cancelCall()
		s.cancelCall = nil
	}
	s.publishLocked()
	s.mu.Unlock()

	s.logger.Info("session paused")
	s.persist()
}

// Resume continues a paused session. Any other status is a no-op.
func (s *Session) Resume() {
	s.mu.Lock()
	if s.status != models.SessionPaused {
		s.mu.Unlock()
		return
	}
	s.status = models.SessionRunning
	s.publishLocked()
	s.signal()
	s.mu.Unlock()

	s.logger.Info("session resumed")
	s.persist()
}

// Abort freezes the session. Aborting a terminal session is a no-op and
// never writes audit entries.
func (s *Session) Abort(reason string) {
	s.mu.Lock()
	if models.SessionTerminal(s.status) {
		s.mu.Unlock()
		return
	}
	if reason == "" {
		reason = "aborted by user"
	}
	s.endLocked(models.SessionAborted, reason)
	s.mu.Unlock()

	s.persist()
}

func (s *Session) run(ctx context.Context) {
	defer close(s.done)

	rc := oracle.RunContext{
		SessionID: s.id,
		UserID:    s.userID,
		Settings:  s.settings,
	}

	for {
		leadID, callCtx, ok := s.next(ctx)
		if !ok {
			s.persist()
			return
		}

		rc.Now = s.deps.now()
		err := s.processLead(ctx, callCtx, leadID, rc)
		if !s.finishLead(err) {
			s.persist()
			return
		}
		s.persist()
	}
}

// next blocks while paused and returns the next lead to process, or false
// once the session is terminal.
func (s *Session) next(ctx context.Context) (string, context.Context, bool) {
	for {
		s.mu.Lock()
		switch s.status {
		case models.SessionAborted, models.SessionCompleted:
			s.mu.Unlock()
			return "", nil, false
		case models.SessionPaused:
			s.mu.Unlock()
			select {
			case <-s.wake:
				continue
			case <-ctx.Done():
				s.Abort("shutting down")
				return "", nil, false
			}
		}

		switch {
		case ctx.Err() != nil:
			s.endLocked(models.SessionAborted, "shutting down")
		case !s.deps.now().Before(s.deadline):
			s.endLocked(models.SessionCompleted, "timebox elapsed")
		case s.index >= len(s.leadIDs):
			s.endLocked(models.SessionCompleted, "all leads processed")
		default:
			leadID := s.leadIDs[s.index]
			callCtx, cancel := context.WithCancel(ctx)
			s.cancelCall = cancel
			s.currentLeadID = leadID
			s.publishLocked()
			s.mu.Unlock()
			return leadID, callCtx, true
		}
		s.mu.Unlock()
		return "", nil, false
	}
}

// finishLead records the outcome of one lead and reports whether the loop continues.
func (s *Session) finishLead(err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancelCall != nil {
		s.cancelCall()
		s.cancelCall = nil
	}

	if models.SessionTerminal(s.status) {
		return false
	}

	switch {
	case errors.Is(err, errInterrupted):
		// The same lead is proposed again on resume.
		s.currentLeadID = ""
		s.publishLocked()
		return true
	case err != nil:
		s.logger.Error("session loop failed", "err", err)
		s.endLocked(models.SessionAborted, err.Error())
		return false
	}

	s.index++
	s.processed++
	s.currentLeadID = ""
	s.publishLocked()
	return true
}

// processLead proposes, checks and queues one lead. Writes use ctx so that a
// cancelled oracle call does not prevent recording its outcome.
func (s *Session) processLead(ctx, callCtx context.Context, leadID string, rc oracle.RunContext) error {
	lead, err := s.deps.store.Get(callCtx, leadID)
	if err != nil {
		if callCtx.Err() != nil {
			return errInterrupted
		}
		if errors.Is(err, ErrStoreUnavailable) {
			return err
		}
		s.logger.Warn("skipping lead", "lead", leadID, "err", err)
		return nil
	}

	draft, err := s.deps.proposer.Propose(callCtx, *lead, rc)
	if err != nil {
		if callCtx.Err() != nil {
			return errInterrupted
		}
		s.logger.Warn("no action proposed", "lead", leadID, "err", err)
		return s.queueFailed(ctx, lead, err)
	}
	if err := checkWritable(draft); err != nil {
		s.logger.Warn("unusable proposal", "lead", leadID, "err", err)
		return s.queueFailed(ctx, lead, fmt.Errorf("%w: %v", oracle.ErrInvalidProposal, err))
	}

	action, err := s.buildAction(lead, draft)
	if err != nil {
		return err
	}
	return s.queueProposed(ctx, action)
}

func (s *Session) buildAction(lead *models.Lead, draft models.ActionDraft) (models.QueuedAction, error) {
	violations, err := s.checkCompliance(draft)
	if err != nil {
		return models.QueuedAction{}, err
	}
	complianceStatus := models.ComplianceStatusFor(violations)
	requires, reason := RequiresApproval(draft.Type, draft.Confidence, complianceStatus, s.settings)

	a := models.QueuedAction{
		ID:               NewAuditID(),
		LeadID:           lead.ID,
		LeadName:         lead.Name,
		ComplianceStatus: complianceStatus,
		Violations:       violations,
		RequiresApproval: requires,
		ApprovalReason:   reason,
		Status:           models.StatusPending,
		CreatedAt:        s.deps.now(),
	}
	a.SetDraft(draft)
	return a, nil
}

func (s *Session) checkCompliance(d models.ActionDraft) (violations []models.ComplianceViolation, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrComplianceCheckerFailed, r)
		}
	}()
	violations = s.deps.checker.CheckAll(d.TextPayload()...)
	if violations == nil {
		violations = []models.ComplianceViolation{}
	}
	return violations, nil
}

func (s *Session) queueFailed(ctx context.Context, lead *models.Lead, cause error) error {
	a := models.QueuedAction{
		ID:               NewAuditID(),
		LeadID:           lead.ID,
		LeadName:         lead.Name,
		Description:      "No action could be proposed for " + lead.Name,
		Steps:            []string{},
		ComplianceStatus: models.ComplianceSafe,
		Violations:       []models.ComplianceViolation{},
		RequiresApproval: true,
		Status:           models.StatusFailed,
		FailureReason:    cause.Error(),
		CreatedAt:        s.deps.now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == models.SessionAborted {
		return nil
	}
	err := s.queue.Append(ctx, a, AuditInfo{
		Source:   models.SourceAutopilot,
		Decision: models.DecisionFailed,
		Reason:   cause.Error(),
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	s.deps.metrics.actionQueued("failed", a.ComplianceStatus)
	return nil
}

func (s *Session) queueProposed(ctx context.Context, a models.QueuedAction) error {
	s.mu.Lock()
	if s.status == models.SessionAborted {
		s.mu.Unlock()
		s.logger.Debug("discarding proposal after abort", "lead", a.LeadID)
		return nil
	}
	err := s.queue.Append(ctx, a, AuditInfo{
		Source:   models.SourceAutopilot,
		Decision: models.DecisionProposed,
		Reason:   a.ApprovalReason,
	})
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	s.deps.metrics.actionQueued(a.Type, a.ComplianceStatus)

	if a.RequiresApproval {
		s.mu.Unlock()
		return nil
	}
	claimed, err := s.queue.Claim(a.ID)
	s.mu.Unlock()
	if err != nil {
		// A human decided first.
		return nil
	}

	_, err = s.writeThrough(ctx, claimed, AuditInfo{
		Source:   models.SourceAutopilot,
		Decision: models.DecisionApplied,
	})
	if err != nil {
		s.logger.Warn("auto-apply failed, left for approval", "action", a.ID, "lead", a.LeadID, "err", err)
		if errors.Is(err, ErrStoreUnavailable) {
			return err
		}
	}
	return nil
}

// writeThrough writes a claimed action to the lead store and commits it as
// applied. On a store failure the claim is released, the action stays
// pending and now requires approval, and the failed attempt is audited.
func (s *Session) writeThrough(ctx context.Context, a models.QueuedAction, info AuditInfo) (models.QueuedAction, error) {
	fields := leadFields(&a, s.deps.now())
	if len(fields) == 0 {
		s.queue.Release(a.ID, nil)
		return models.QueuedAction{}, fmt.Errorf("%w: action %s writes no lead fields", ErrInvalidModification, a.ID)
	}

	_, err := s.deps.store.Update(ctx, a.LeadID, fields, models.UpdateInfo{
		UserID:    s.userID,
		SessionID: s.id,
		ActionID:  a.ID,
		Source:    info.Source,
	})
	if err != nil {
		_, auditErr := s.queue.Reject(ctx, a.ID, AuditInfo{
			UserID:   info.UserID,
			Source:   info.Source,
			Decision: models.DecisionFailed,
			Reason:   err.Error(),
		}, func(q *models.QueuedAction) {
			q.RequiresApproval = true
			q.ApprovalReason = models.ApprovalReasonStoreWrite
			q.FailureReason = err.Error()
		})
		if auditErr != nil {
			s.logger.Error("failed write not audited", "action", a.ID, "lead", a.LeadID, "err", auditErr)
		}
		return models.QueuedAction{}, fmt.Errorf("failed to write action %s to lead %s: %w", a.ID, a.LeadID, err)
	}

	draft := a.Draft()
	applied, err := s.queue.Commit(ctx, a.ID, models.StatusApplied, info, func(q *models.QueuedAction) {
		q.SetDraft(copyDraft(draft))
		q.Violations = a.Violations
		q.ComplianceStatus = a.ComplianceStatus
		q.FailureReason = ""
	})
	if err != nil {
		s.logger.Error("lead written but action not committed", "action", a.ID, "lead", a.LeadID, "err", err)
		return models.QueuedAction{}, err
	}
	s.logger.Info("action applied", "action", a.ID, "lead", a.LeadID, "source", info.Source)
	return applied, nil
}

func (s *Session) decidable() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == models.SessionAborted {
		return fmt.Errorf("%w: session %s is aborted", ErrInvalidState, s.id)
	}
	return nil
}

// Apply applies a pending action on behalf of the session's agent. With
// modifications the draft is revised and re-checked first.
func (s *Session) Apply(ctx context.Context, actionID string, mods map[string]any) (models.QueuedAction, error) {
	s.mu.Lock()
	if s.status == models.SessionAborted {
		s.mu.Unlock()
		return models.QueuedAction{}, fmt.Errorf("%w: session %s is aborted", ErrInvalidState, s.id)
	}
	claimed, err := s.queue.Claim(actionID)
	s.mu.Unlock()
	if err != nil {
		return models.QueuedAction{}, err
	}

	revised := claimed
	decision := models.DecisionApplied
	if len(mods) > 0 {
		draft := copyDraft(claimed.Draft())
		if err := mergeModifications(&draft, mods); err != nil {
			s.queue.Release(actionID, nil)
			return models.QueuedAction{}, err
		}
		if err := checkWritable(draft); err != nil {
			s.queue.Release(actionID, nil)
			return models.QueuedAction{}, fmt.Errorf("%w: %v", ErrInvalidModification, err)
		}
		violations, err := s.checkCompliance(draft)
		if err != nil {
			s.queue.Release(actionID, nil)
			return models.QueuedAction{}, err
		}
		revised.SetDraft(draft)
		revised.Violations = violations
		revised.ComplianceStatus = models.ComplianceStatusFor(violations)
		decision = models.DecisionEdited
	}

	if revised.ComplianceStatus == models.ComplianceFlagged {
		s.queue.Release(actionID, nil)
		return models.QueuedAction{}, fmt.Errorf("%w: %s", ErrComplianceBlocked, violationPhrases(revised.Violations))
	}

	return s.writeThrough(ctx, revised, AuditInfo{
		UserID:   s.userID,
		Source:   models.SourceManual,
		Decision: decision,
	})
}

// Skip marks a pending action skipped.
func (s *Session) Skip(ctx context.Context, actionID, reason string) (models.QueuedAction, error) {
	if err := s.decidable(); err != nil {
		return models.QueuedAction{}, err
	}
	a, err := s.queue.UpdateStatus(ctx, actionID, models.StatusSkipped, AuditInfo{
		UserID:   s.userID,
		Source:   models.SourceManual,
		Decision: models.DecisionSkipped,
		Reason:   reason,
	})
	if err != nil {
		return models.QueuedAction{}, err
	}
	s.logger.Info("action skipped", "action", actionID, "reason", reason)
	return a, nil
}

// Edit revises a pending action with mods, regenerates a pending action when
// mods is empty, or regenerates a failed action into a new pending entry.
// The result always requires approval.
func (s *Session) Edit(ctx context.Context, actionID string, mods map[string]any) (models.QueuedAction, error) {
	if err := s.decidable(); err != nil {
		return models.QueuedAction{}, err
	}
	current, ok := s.queue.Find(actionID)
	if !ok {
		return models.QueuedAction{}, fmt.Errorf("%w: %s", ErrActionNotFound, actionID)
	}

	switch {
	case current.Status == models.StatusPending && len(mods) > 0:
		return s.queue.Revise(ctx, actionID, AuditInfo{
			UserID:   s.userID,
			Source:   models.SourceManual,
			Decision: models.DecisionEdited,
			Changes:  mods,
		}, func(a *models.QueuedAction) error {
			draft := copyDraft(a.Draft())
			if err := mergeModifications(&draft, mods); err != nil {
				return err
			}
			if err := checkWritable(draft); err != nil {
				return fmt.Errorf("%w: %v", ErrInvalidModification, err)
			}
			return s.recheck(a, draft, models.ApprovalReasonEdited)
		})

	case current.Status == models.StatusPending:
		draft, err := s.regenerate(ctx, current.LeadID)
		if err != nil {
			return models.QueuedAction{}, err
		}
		return s.queue.Revise(ctx, actionID, AuditInfo{
			UserID:   s.userID,
			Source:   models.SourceAI,
			Decision: models.DecisionEdited,
		}, func(a *models.QueuedAction) error {
			return s.recheck(a, draft, models.ApprovalReasonRegenerated)
		})

	case current.Status == models.StatusFailed:
		draft, err := s.regenerate(ctx, current.LeadID)
		if err != nil {
			return models.QueuedAction{}, err
		}
		next := models.QueuedAction{
			ID:              NewAuditID(),
			LeadID:          current.LeadID,
			LeadName:        current.LeadName,
			Status:          models.StatusPending,
			RegeneratedFrom: current.ID,
			CreatedAt:       s.deps.now(),
		}
		if err := s.recheck(&next, draft, models.ApprovalReasonRegenerated); err != nil {
			return models.QueuedAction{}, err
		}
		if err := s.decidable(); err != nil {
			return models.QueuedAction{}, err
		}
		if err := s.queue.Append(ctx, next, AuditInfo{
			UserID:   s.userID,
			Source:   models.SourceAI,
			Decision: models.DecisionProposed,
			Reason:   "regenerated from " + current.ID,
		}); err != nil {
			return models.QueuedAction{}, err
		}
		s.deps.metrics.actionQueued(next.Type, next.ComplianceStatus)
		return next, nil

	default:
		return models.QueuedAction{}, fmt.Errorf("%w: action %s is %s", ErrInvalidState, actionID, current.Status)
	}
}

// recheck installs draft on a, re-runs compliance and forces approval.
func (s *Session) recheck(a *models.QueuedAction, draft models.ActionDraft, reason string) error {
	violations, err := s.checkCompliance(draft)
	if err != nil {
		return err
	}
	a.SetDraft(draft)
	a.Violations = violations
	a.ComplianceStatus = models.ComplianceStatusFor(violations)
	a.RequiresApproval = true
	a.ApprovalReason = reason
	if a.ComplianceStatus == models.ComplianceFlagged {
		a.ApprovalReason = models.ApprovalReasonCompliance
	}
	a.FailureReason = ""
	return nil
}

func (s *Session) regenerate(ctx context.Context, leadID string) (models.ActionDraft, error) {
	lead, err := s.deps.store.Get(ctx, leadID)
	if err != nil {
		return models.ActionDraft{}, fmt.Errorf("failed to load lead %s: %w", leadID, err)
	}
	draft, err := s.deps.proposer.Propose(ctx, *lead, oracle.RunContext{
		SessionID: s.id,
		UserID:    s.userID,
		Settings:  s.settings,
		Now:       s.deps.now(),
	})
	if err != nil {
		return models.ActionDraft{}, err
	}
	if err := checkWritable(draft); err != nil {
		return models.ActionDraft{}, fmt.Errorf("%w: %v", oracle.ErrInvalidProposal, err)
	}
	return draft, nil
}

// persist writes the current snapshot through the recorder, if any.
func (s *Session) persist() {
	if s.deps.recorder == nil {
		return
	}
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := s.deps.recorder.RecordSession(ctx, s.Summary(), s.queue.Snapshot()); err != nil {
		s.logger.Warn("failed to persist session snapshot", "err", err)
	}
}

func violationPhrases(violations []models.ComplianceViolation) string {
	var phrases []string
	for _, v := range violations {
		if v.Severity == models.SeverityError {
			phrases = append(phrases, fmt.Sprintf("%q", v.Phrase))
		}
	}
	return strings.Join(phrases, ", ")
}
