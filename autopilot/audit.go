// ABOUTME: Append-only audit log contract and an in-memory implementation
// ABOUTME: Every queued-action status change is recorded here exactly once
package autopilot

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/harperreed/leadpilot/models"
)

// AuditLog stores decisions. Append is the only mutator.
// Query returns newest entries first.
type AuditLog interface {
	Append(ctx context.Context, entry *models.AuditEntry) error
	Query(ctx context.Context, filter models.AuditFilter) ([]models.AuditEntry, error)
}

// AuditInfo describes the trigger of a queue mutation.
type AuditInfo struct {
	UserID   string
	Source   string
	Decision string
	Reason   string
	Changes  map[string]any
}

// NewAuditID returns a time-sortable identifier.
func NewAuditID() string {
	return ulid.Make().String()
}

func buildAuditEntry(a *models.QueuedAction, userID string, info AuditInfo, now time.Time) *models.AuditEntry {
	if info.UserID != "" {
		userID = info.UserID
	}

	changes := info.Changes
	if changes == nil && len(a.Changes) > 0 {
		changes = make(map[string]any, len(a.Changes)+1)
		for k, v := range a.Changes {
			changes[k] = v
		}
	}
	if a.Type == models.ActionMessage && a.Message != "" {
		if changes == nil {
			changes = make(map[string]any, 1)
		}
		if _, ok := changes["message"]; !ok {
			changes["message"] = a.Message
		}
	}

	entry := &models.AuditEntry{
		ID:               NewAuditID(),
		SessionID:        a.SessionID,
		ActionID:         a.ID,
		UserID:           userID,
		ActionType:       models.AuditActionType(a.Type),
		EntityType:       models.EntityLead,
		EntityID:         a.LeadID,
		Changes:          changes,
		Source:           info.Source,
		UserDecision:     info.Decision,
		ActionStatus:     a.Status,
		ComplianceStatus: a.ComplianceStatus,
		Reason:           info.Reason,
		CreatedAt:        now,
	}

	if a.Reasoning != "" {
		confidence := a.Confidence
		reasoning := a.Reasoning
		entry.AIConfidence = &confidence
		entry.AIReasoning = &reasoning
	}
	return entry
}

// MemoryAuditLog keeps entries in process memory.
type MemoryAuditLog struct {
	mu      sync.RWMutex
	entries []models.AuditEntry
}

var _ AuditLog = (*MemoryAuditLog)(nil)

func NewMemoryAuditLog() *MemoryAuditLog {
	return &MemoryAuditLog{}
}

func (l *MemoryAuditLog) Append(ctx context.Context, entry *models.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = NewAuditID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, *entry)
	return nil
}

func (l *MemoryAuditLog) Query(ctx context.Context, filter models.AuditFilter) ([]models.AuditEntry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []models.AuditEntry
	for i := len(l.entries) - 1; i >= 0; i-- {
		e := l.entries[i]
		if !filter.Matches(&e) {
			continue
		}
		out = append(out, e)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

// Len returns the number of stored entries.
func (l *MemoryAuditLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// meteredAuditLog counts successful appends by decision and source.
type meteredAuditLog struct {
	AuditLog
	metrics *Metrics
}

func (l meteredAuditLog) Append(ctx context.Context, entry *models.AuditEntry) error {
	if err := l.AuditLog.Append(ctx, entry); err != nil {
		return err
	}
	l.metrics.decision(entry.UserDecision, entry.Source)
	return nil
}
