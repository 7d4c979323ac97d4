// ABOUTME: ActionQueue, the ordered per-session collection of queued actions
// ABOUTME: Status changes are compare-and-set from pending and audited under the same lock
package autopilot

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/harperreed/leadpilot/models"
)

// Queue holds the actions of one session in insertion order.
//
// Writers serialize on mu; every write publishes a fresh immutable snapshot
// that readers load without locking. An action can be claimed while its
// write-through to the lead store is in flight; a claimed action rejects
// every other decision.
type Queue struct {
	sessionID string
	userID    string
	audit     AuditLog
	now       func() time.Time

	mu      sync.Mutex
	order   []string
	byID    map[string]*models.QueuedAction
	claimed map[string]bool

	snapshot atomic.Pointer[[]models.QueuedAction]
}

func NewQueue(sessionID, userID string, audit AuditLog, now func() time.Time) *Queue {
	if now == nil {
		now = time.Now
	}
	q := &Queue{
		sessionID: sessionID,
		userID:    userID,
		audit:     audit,
		now:       now,
		byID:      make(map[string]*models.QueuedAction),
		claimed:   make(map[string]bool),
	}
	empty := []models.QueuedAction{}
	q.snapshot.Store(&empty)
	return q
}

// Append adds a new action and records its creation in the audit log.
// Nothing is added when the audit write fails.
func (q *Queue) Append(ctx context.Context, action models.QueuedAction, info AuditInfo) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if action.ID == "" {
		action.ID = NewAuditID()
	}
	if _, exists := q.byID[action.ID]; exists {
		return fmt.Errorf("action %s already queued", action.ID)
	}
	action.SessionID = q.sessionID
	if action.CreatedAt.IsZero() {
		action.CreatedAt = q.now()
	}
	if action.Status == "" {
		action.Status = models.StatusPending
	}

	a := action.Clone()
	if err := q.record(ctx, &a, info); err != nil {
		return err
	}

	q.order = append(q.order, a.ID)
	q.byID[a.ID] = &a
	q.publish()
	return nil
}

// Find returns a copy of the action from the current snapshot.
func (q *Queue) Find(id string) (models.QueuedAction, bool) {
	for _, a := range *q.snapshot.Load() {
		if a.ID == id {
			return a.Clone(), true
		}
	}
	return models.QueuedAction{}, false
}

// UpdateStatus moves a pending, unclaimed action to status and records the decision.
func (q *Queue) UpdateStatus(ctx context.Context, id, status string, info AuditInfo) (models.QueuedAction, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	current, err := q.pendingLocked(id)
	if err != nil {
		return models.QueuedAction{}, err
	}
	if q.claimed[id] {
		return models.QueuedAction{}, fmt.Errorf("%w: action %s is being applied", ErrInvalidState, id)
	}
	return q.transitionLocked(ctx, current, status, info, nil)
}

// Claim reserves a pending action for a write-through. The caller must follow
// with Commit or Release.
func (q *Queue) Claim(id string) (models.QueuedAction, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	current, err := q.pendingLocked(id)
	if err != nil {
		return models.QueuedAction{}, err
	}
	if q.claimed[id] {
		return models.QueuedAction{}, fmt.Errorf("%w: action %s is being applied", ErrInvalidState, id)
	}
	q.claimed[id] = true
	return current.Clone(), nil
}

// Commit finishes a claim by moving the action to status. mutate, when set,
// edits the action before the audit entry is written.
func (q *Queue) Commit(ctx context.Context, id, status string, info AuditInfo, mutate func(*models.QueuedAction)) (models.QueuedAction, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.claimed[id] {
		return models.QueuedAction{}, fmt.Errorf("%w: action %s is not claimed", ErrInvalidState, id)
	}
	delete(q.claimed, id)

	current, err := q.pendingLocked(id)
	if err != nil {
		return models.QueuedAction{}, err
	}
	return q.transitionLocked(ctx, current, status, info, mutate)
}

// Release drops a claim without a status change. mutate, when set, revises
// the pending action; no audit entry is written.
func (q *Queue) Release(id string, mutate func(*models.QueuedAction)) models.QueuedAction {
	q.mu.Lock()
	defer q.mu.Unlock()

	delete(q.claimed, id)
	current, ok := q.byID[id]
	if !ok {
		return models.QueuedAction{}
	}
	if mutate != nil {
		next := current.Clone()
		mutate(&next)
		q.byID[id] = &next
		q.publish()
		current = &next
	}
	return current.Clone()
}

// Reject drops a claim after a failed write-through. The action stays
// pending; mutate revises it and the attempt is audited under info. The
// revision is kept even when the audit write fails.
func (q *Queue) Reject(ctx context.Context, id string, info AuditInfo, mutate func(*models.QueuedAction)) (models.QueuedAction, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	delete(q.claimed, id)
	current, ok := q.byID[id]
	if !ok {
		return models.QueuedAction{}, fmt.Errorf("%w: %s", ErrActionNotFound, id)
	}
	next := current.Clone()
	if mutate != nil {
		mutate(&next)
	}
	q.byID[id] = &next
	q.publish()

	if err := q.record(ctx, &next, info); err != nil {
		return next.Clone(), err
	}
	return next.Clone(), nil
}

// Revise edits a pending, unclaimed action in place and records the edit.
// The status stays pending. mutate may return an error to abort the revision.
func (q *Queue) Revise(ctx context.Context, id string, info AuditInfo, mutate func(*models.QueuedAction) error) (models.QueuedAction, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	current, err := q.pendingLocked(id)
	if err != nil {
		return models.QueuedAction{}, err
	}
	if q.claimed[id] {
		return models.QueuedAction{}, fmt.Errorf("%w: action %s is being applied", ErrInvalidState, id)
	}

	next := current.Clone()
	if err := mutate(&next); err != nil {
		return models.QueuedAction{}, err
	}
	next.Status = models.StatusPending
	next.Revision = current.Revision + 1

	if err := q.record(ctx, &next, info); err != nil {
		return models.QueuedAction{}, err
	}
	q.byID[id] = &next
	q.publish()
	return next.Clone(), nil
}

// PendingCount returns the number of pending actions in the current snapshot.
func (q *Queue) PendingCount() int {
	n := 0
	for _, a := range *q.snapshot.Load() {
		if a.Status == models.StatusPending {
			n++
		}
	}
	return n
}

// Filter returns copies of the actions matching pred, in insertion order.
func (q *Queue) Filter(pred func(*models.QueuedAction) bool) []models.QueuedAction {
	var out []models.QueuedAction
	for _, a := range *q.snapshot.Load() {
		if pred(&a) {
			out = append(out, a.Clone())
		}
	}
	return out
}

// Snapshot returns a copy of every action in insertion order.
func (q *Queue) Snapshot() []models.QueuedAction {
	snap := *q.snapshot.Load()
	out := make([]models.QueuedAction, len(snap))
	for i := range snap {
		out[i] = snap[i].Clone()
	}
	return out
}

// Len returns the number of queued actions.
func (q *Queue) Len() int {
	return len(*q.snapshot.Load())
}

func (q *Queue) pendingLocked(id string) (*models.QueuedAction, error) {
	current, ok := q.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrActionNotFound, id)
	}
	if current.Status != models.StatusPending {
		return nil, fmt.Errorf("%w: action %s is %s", ErrInvalidState, id, current.Status)
	}
	return current, nil
}

func (q *Queue) transitionLocked(ctx context.Context, current *models.QueuedAction, status string, info AuditInfo, mutate func(*models.QueuedAction)) (models.QueuedAction, error) {
	switch status {
	case models.StatusApplied, models.StatusSkipped, models.StatusFailed:
	default:
		return models.QueuedAction{}, fmt.Errorf("%w: cannot move action to %q", ErrInvalidState, status)
	}

	now := q.now()
	next := current.Clone()
	if mutate != nil {
		mutate(&next)
	}
	next.Status = status
	next.DecidedAt = &now
	if status == models.StatusApplied {
		next.AppliedAt = &now
	}

	if err := q.record(ctx, &next, info); err != nil {
		return models.QueuedAction{}, err
	}
	q.byID[next.ID] = &next
	q.publish()
	return next.Clone(), nil
}

func (q *Queue) record(ctx context.Context, a *models.QueuedAction, info AuditInfo) error {
	if q.audit == nil {
		return nil
	}
	entry := buildAuditEntry(a, q.userID, info, q.now())
	if err := q.audit.Append(ctx, entry); err != nil {
		return fmt.Errorf("failed to write audit entry for action %s: %w", a.ID, err)
	}
	return nil
}

func (q *Queue) publish() {
	snap := make([]models.QueuedAction, 0, len(q.order))
	for _, id := range q.order {
		snap = append(snap, q.byID[id].Clone())
	}
	q.snapshot.Store(&snap)
}

// counts tallies the current snapshot by status.
func (q *Queue) counts() (pending, applied, skipped, failed int) {
	for _, a := range *q.snapshot.Load() {
		switch a.Status {
		case models.StatusPending:
			pending++
		case models.StatusApplied:
			applied++
		case models.StatusSkipped:
			skipped++
		case models.StatusFailed:
			failed++
		}
	}
	return pending, applied, skipped, failed
}
