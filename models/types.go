// ABOUTME: Data models for leads, autopilot sessions, queued actions and audit entries
// ABOUTME: Defines the shared structs and string enums used by every other package
package models

import (
	"fmt"
	"time"
)

// Temperature constants.
const (
	TemperatureHot  = "hot"
	TemperatureWarm = "warm"
	TemperatureCold = "cold"
)

type Lead struct {
	ID                     string     `json:"id"`
	Name                   string     `json:"name"`
	Email                  string     `json:"email,omitempty"`
	Phone                  string     `json:"phone,omitempty"`
	Location               string     `json:"location,omitempty"`
	Temperature            string     `json:"temperature"`
	Tags                   []string   `json:"tags,omitempty"`
	ProductInterest        []string   `json:"productInterest,omitempty"`
	Premium                float64    `json:"premium,omitempty"`
	ConversionProbability  float64    `json:"conversionProbability,omitempty"`
	LastInteractionSummary string     `json:"lastInteractionSummary,omitempty"`
	LastInteractionDate    *time.Time `json:"lastInteractionDate,omitempty"`
	NextFollowUpAt         *time.Time `json:"nextFollowUpAt,omitempty"`
	Notes                  string     `json:"notes,omitempty"`
	AssignedTo             string     `json:"assignedTo,omitempty"`
	Version                int64      `json:"version"`
	CreatedAt              time.Time  `json:"createdAt"`
	UpdatedAt              time.Time  `json:"updatedAt"`
}

// HasTag reports whether the lead carries tag.
func (l *Lead) HasTag(tag string) bool {
	for _, t := range l.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// RunSettings bounds.
const (
	MinTimeboxMinutes      = 10
	MaxTimeboxMinutes      = 60
	MinConfidenceThreshold = 50
	MaxConfidenceThreshold = 90
)

// RunSettings is fixed for the lifetime of one session.
type RunSettings struct {
	AutoApplyCRMUpdates bool `json:"autoApplyCRMUpdates" yaml:"auto_apply_crm_updates"`
	AutoSendMessages    bool `json:"autoSendMessages" yaml:"auto_send_messages"`
	AutoOpenProfiles    bool `json:"autoOpenProfiles" yaml:"auto_open_profiles"`
	TimeboxMinutes      int  `json:"timeboxMinutes" yaml:"timebox_minutes"`
	ConfidenceThreshold int  `json:"confidenceThreshold" yaml:"confidence_threshold"`
}

// DefaultRunSettings mirrors the conservative defaults shown to agents on first use.
func DefaultRunSettings() RunSettings {
	return RunSettings{
		AutoApplyCRMUpdates: false,
		AutoSendMessages:    false,
		AutoOpenProfiles:    true,
		TimeboxMinutes:      30,
		ConfidenceThreshold: 70,
	}
}

func (s RunSettings) Validate() error {
	if s.TimeboxMinutes < MinTimeboxMinutes || s.TimeboxMinutes > MaxTimeboxMinutes {
		return fmt.Errorf("timeboxMinutes must be between %d and %d, got %d", MinTimeboxMinutes, MaxTimeboxMinutes, s.TimeboxMinutes)
	}
	if s.ConfidenceThreshold < MinConfidenceThreshold || s.ConfidenceThreshold > MaxConfidenceThreshold {
		return fmt.Errorf("confidenceThreshold must be between %d and %d, got %d", MinConfidenceThreshold, MaxConfidenceThreshold, s.ConfidenceThreshold)
	}
	return nil
}

// Timebox returns the run duration as a time.Duration.
func (s RunSettings) Timebox() time.Duration {
	return time.Duration(s.TimeboxMinutes) * time.Minute
}

// Action type constants.
const (
	ActionCRMUpdate = "crm_update"
	ActionMessage   = "message"
	ActionReminder  = "reminder"
	ActionTag       = "tag"
)

// ValidActionType reports whether t is one of the known queued action types.
func ValidActionType(t string) bool {
	switch t {
	case ActionCRMUpdate, ActionMessage, ActionReminder, ActionTag:
		return true
	}
	return false
}

// NeedsChanges reports whether actions of type t only take effect through
// their field changes.
func NeedsChanges(t string) bool {
	return t == ActionCRMUpdate || t == ActionTag
}

// Difficulty constants.
const (
	DifficultyEasy   = "easy"
	DifficultyMedium = "medium"
	DifficultyHard   = "hard"
)

func ValidDifficulty(d string) bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// Compliance status constants.
const (
	ComplianceSafe    = "safe"
	ComplianceFlagged = "flagged"
)

// Severity constants.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// Action status constants. Only pending may transition, and only once.
const (
	StatusPending = "pending"
	StatusApplied = "applied"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"
)

// Approval reasons, in precedence order.
const (
	ApprovalReasonCompliance       = "compliance_flagged"
	ApprovalReasonLowConfidence    = "below_confidence_threshold"
	ApprovalReasonCategoryDisabled = "auto_apply_disabled"
	ApprovalReasonEdited           = "edited_by_user"
	ApprovalReasonStoreWrite       = "store_write_failed"
	ApprovalReasonRegenerated      = "regenerated_by_user"
)

type ComplianceViolation struct {
	Phrase     string `json:"phrase" yaml:"phrase"`
	Rule       string `json:"rule" yaml:"rule"`
	Severity   string `json:"severity" yaml:"severity"`
	Suggestion string `json:"suggestion" yaml:"suggestion"`
}

// ComplianceStatusFor returns flagged when any violation has error severity.
func ComplianceStatusFor(violations []ComplianceViolation) string {
	for _, v := range violations {
		if v.Severity == SeverityError {
			return ComplianceFlagged
		}
	}
	return ComplianceSafe
}

// ActionDraft is what the reasoning oracle proposes for a lead before it is queued.
type ActionDraft struct {
	Type        string         `json:"type"`
	Description string         `json:"description"`
	Steps       []string       `json:"steps"`
	Reasoning   string         `json:"reasoning"`
	Confidence  int            `json:"confidence"`
	Difficulty  string         `json:"difficulty"`
	Message     string         `json:"message,omitempty"`
	Changes     map[string]any `json:"changes,omitempty"`
	Signals     []string       `json:"signals,omitempty"`
}

// TextPayload returns every free-text part of the draft that must pass compliance.
func (d *ActionDraft) TextPayload() []string {
	texts := []string{d.Description}
	if d.Message != "" {
		texts = append(texts, d.Message)
	}
	texts = append(texts, d.Steps...)
	for _, v := range d.Changes {
		switch val := v.(type) {
		case string:
			texts = append(texts, val)
		case []string:
			texts = append(texts, val...)
		case []any:
			for _, item := range val {
				if s, ok := item.(string); ok {
					texts = append(texts, s)
				}
			}
		}
	}
	return texts
}

type QueuedAction struct {
	ID               string                `json:"id"`
	SessionID        string                `json:"sessionId"`
	LeadID           string                `json:"leadId"`
	LeadName         string                `json:"leadName"`
	Type             string                `json:"type"`
	Description      string                `json:"description"`
	Steps            []string              `json:"steps"`
	Reasoning        string                `json:"reasoning"`
	Confidence       int                   `json:"confidence"`
	Difficulty       string                `json:"difficulty"`
	Message          string                `json:"message,omitempty"`
	Changes          map[string]any        `json:"changes,omitempty"`
	Signals          []string              `json:"signals,omitempty"`
	ComplianceStatus string                `json:"complianceStatus"`
	Violations       []ComplianceViolation `json:"violations"`
	RequiresApproval bool                  `json:"requiresApproval"`
	ApprovalReason   string                `json:"approvalReason,omitempty"`
	Status           string                `json:"status"`
	FailureReason    string                `json:"failureReason,omitempty"`
	RegeneratedFrom  string                `json:"regeneratedFrom,omitempty"`
	Revision         int                   `json:"revision"`
	CreatedAt        time.Time             `json:"createdAt"`
	AppliedAt        *time.Time            `json:"appliedAt,omitempty"`
	DecidedAt        *time.Time            `json:"decidedAt,omitempty"`
}

// Draft returns the proposal part of the action.
func (a *QueuedAction) Draft() ActionDraft {
	return ActionDraft{
		Type:        a.Type,
		Description: a.Description,
		Steps:       a.Steps,
		Reasoning:   a.Reasoning,
		Confidence:  a.Confidence,
		Difficulty:  a.Difficulty,
		Message:     a.Message,
		Changes:     a.Changes,
		Signals:     a.Signals,
	}
}

// SetDraft overwrites the proposal part of the action.
func (a *QueuedAction) SetDraft(d ActionDraft) {
	a.Type = d.Type
	a.Description = d.Description
	a.Steps = d.Steps
	a.Reasoning = d.Reasoning
	a.Confidence = d.Confidence
	a.Difficulty = d.Difficulty
	a.Message = d.Message
	a.Changes = d.Changes
	a.Signals = d.Signals
}

// Clone returns a deep copy so snapshots never share mutable state.
func (a QueuedAction) Clone() QueuedAction {
	c := a
	if a.Steps != nil {
		c.Steps = append([]string(nil), a.Steps...)
	}
	if a.Signals != nil {
		c.Signals = append([]string(nil), a.Signals...)
	}
	if a.Violations != nil {
		c.Violations = append([]ComplianceViolation(nil), a.Violations...)
	}
	if a.Changes != nil {
		c.Changes = make(map[string]any, len(a.Changes))
		for k, v := range a.Changes {
			c.Changes[k] = v
		}
	}
	if a.AppliedAt != nil {
		t := *a.AppliedAt
		c.AppliedAt = &t
	}
	if a.DecidedAt != nil {
		t := *a.DecidedAt
		c.DecidedAt = &t
	}
	return c
}

// Session status constants.
const (
	SessionRunning   = "running"
	SessionPaused    = "paused"
	SessionAborted   = "aborted"
	SessionCompleted = "completed"
)

// SessionTerminal reports whether status can no longer change.
func SessionTerminal(status string) bool {
	return status == SessionAborted || status == SessionCompleted
}

type SessionStats struct {
	ActionsProcessed int `json:"actionsProcessed"`
	ActionsApplied   int `json:"actionsApplied"`
	ActionsSkipped   int `json:"actionsSkipped"`
	ActionsFailed    int `json:"actionsFailed"`
}

// SessionSummary is the read model returned to pollers.
type SessionSummary struct {
	ID              string       `json:"id"`
	UserID          string       `json:"userId"`
	Settings        RunSettings  `json:"settings"`
	Status          string       `json:"status"`
	Reason          string       `json:"reason,omitempty"`
	CurrentIndex    int          `json:"currentIndex"`
	TotalLeads      int          `json:"totalLeads"`
	CurrentLeadID   string       `json:"currentLeadId,omitempty"`
	PendingCount    int          `json:"pendingCount"`
	Stats           SessionStats `json:"stats"`
	StartedAt       time.Time    `json:"startedAt"`
	TimeboxDeadline time.Time    `json:"timeboxDeadline"`
	EndedAt         *time.Time   `json:"endedAt,omitempty"`
}

// Audit source constants.
const (
	SourceManual    = "manual"
	SourceAutopilot = "autopilot"
	SourceAI        = "ai"
)

// User decision constants.
const (
	DecisionProposed = "proposed"
	DecisionApplied  = "applied"
	DecisionEdited   = "edited"
	DecisionSkipped  = "skipped"
	DecisionFailed   = "failed"
)

// Audit action type constants.
const (
	AuditUpdateLead     = "update_lead"
	AuditSendMessage    = "send_message"
	AuditCreateReminder = "create_reminder"
	AuditTagLead        = "tag_lead"
)

// Audit entity type constants.
const (
	EntityLead = "lead"
)

// AuditActionType maps a queued action type to the audit vocabulary.
func AuditActionType(actionType string) string {
	switch actionType {
	case ActionMessage:
		return AuditSendMessage
	case ActionReminder:
		return AuditCreateReminder
	case ActionTag:
		return AuditTagLead
	default:
		return AuditUpdateLead
	}
}

type AuditEntry struct {
	ID               string         `json:"id"`
	SessionID        string         `json:"sessionId,omitempty"`
	ActionID         string         `json:"actionId,omitempty"`
	UserID           string         `json:"userId"`
	ActionType       string         `json:"actionType"`
	EntityType       string         `json:"entityType"`
	EntityID         string         `json:"entityId"`
	Changes          map[string]any `json:"changes,omitempty"`
	Source           string         `json:"source"`
	AIConfidence     *int           `json:"aiConfidence,omitempty"`
	AIReasoning      *string        `json:"aiReasoning,omitempty"`
	UserDecision     string         `json:"userDecision"`
	ActionStatus     string         `json:"actionStatus"`
	ComplianceStatus string         `json:"complianceStatus"`
	Reason           string         `json:"reason,omitempty"`
	CreatedAt        time.Time      `json:"createdAt"`
}

// AuditFilter narrows audit queries. Zero values match everything.
type AuditFilter struct {
	From             *time.Time
	To               *time.Time
	Agent            string
	ActionType       string
	ComplianceStatus string
	Source           string
	SessionID        string
	EntityID         string
	Limit            int
}

// Matches reports whether entry satisfies every set field of the filter.
func (f AuditFilter) Matches(e *AuditEntry) bool {
	if f.From != nil && e.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && e.CreatedAt.After(*f.To) {
		return false
	}
	if f.Agent != "" && e.UserID != f.Agent {
		return false
	}
	if f.ActionType != "" && e.ActionType != f.ActionType {
		return false
	}
	if f.ComplianceStatus != "" && e.ComplianceStatus != f.ComplianceStatus {
		return false
	}
	if f.Source != "" && e.Source != f.Source {
		return false
	}
	if f.SessionID != "" && e.SessionID != f.SessionID {
		return false
	}
	if f.EntityID != "" && e.EntityID != f.EntityID {
		return false
	}
	return true
}

// UpdateInfo identifies who is writing lead fields and on whose behalf.
type UpdateInfo struct {
	UserID    string `json:"userId"`
	SessionID string `json:"sessionId,omitempty"`
	ActionID  string `json:"actionId,omitempty"`
	Source    string `json:"source"`
}
