// ABOUTME: Autopilot MCP tool handlers
// ABOUTME: Implements start/pause/resume/abort, status, queue, apply/skip/edit and audit tools
package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/harperreed/leadpilot/autopilot"
	"github.com/harperreed/leadpilot/models"
)

// SettingsSource supplies and remembers an agent's last-used run settings.
type SettingsSource interface {
	LoadOrDefault(userID string, fallback models.RunSettings) models.RunSettings
	Save(userID string, settings models.RunSettings) error
}

type AutopilotHandlers struct {
	controller *autopilot.Controller
	settings   SettingsSource
	defaults   models.RunSettings
}

// NewAutopilotHandlers wraps controller. settings may be nil.
func NewAutopilotHandlers(controller *autopilot.Controller, settings SettingsSource, defaults models.RunSettings) *AutopilotHandlers {
	return &AutopilotHandlers{controller: controller, settings: settings, defaults: defaults}
}

type StartAutopilotInput struct {
	UserID              string   `json:"user_id" jsonschema:"Agent starting the run (required)"`
	LeadIDs             []string `json:"lead_ids" jsonschema:"Leads to process, in order (required)"`
	AutoApplyCRMUpdates *bool    `json:"auto_apply_crm_updates,omitempty" jsonschema:"Apply CRM updates, tags and reminders without approval"`
	AutoSendMessages    *bool    `json:"auto_send_messages,omitempty" jsonschema:"Send messages without approval"`
	AutoOpenProfiles    *bool    `json:"auto_open_profiles,omitempty" jsonschema:"Open each lead profile as it is processed"`
	TimeboxMinutes      int      `json:"timebox_minutes,omitempty" jsonschema:"Run length in minutes (10-60)"`
	ConfidenceThreshold int      `json:"confidence_threshold,omitempty" jsonschema:"Minimum confidence for auto-apply (50-90)"`
}

type SessionInput struct {
	SessionID string `json:"session_id" jsonschema:"Autopilot session ID (required)"`
}

type QueueInput struct {
	SessionID string `json:"session_id" jsonschema:"Autopilot session ID (required)"`
	Status    string `json:"status,omitempty" jsonschema:"Only return actions with this status (pending, applied, skipped, failed)"`
}

type ActionInput struct {
	ActionID      string         `json:"action_id" jsonschema:"Queued action ID (required)"`
	Modifications map[string]any `json:"modifications,omitempty" jsonschema:"Field overrides: message, description, reasoning, steps, or lead fields"`
	Reason        string         `json:"reason,omitempty" jsonschema:"Why the action is being skipped"`
}

type AuditInput struct {
	From             string `json:"from,omitempty" jsonschema:"Earliest entry time (RFC3339)"`
	To               string `json:"to,omitempty" jsonschema:"Latest entry time (RFC3339)"`
	Agent            string `json:"agent,omitempty" jsonschema:"Agent user ID"`
	ActionType       string `json:"action_type,omitempty" jsonschema:"update_lead, send_message, create_reminder or tag_lead"`
	ComplianceStatus string `json:"compliance_status,omitempty" jsonschema:"safe or flagged"`
	Source           string `json:"source,omitempty" jsonschema:"manual, autopilot or ai"`
	SessionID        string `json:"session_id,omitempty" jsonschema:"Autopilot session ID"`
	LeadID           string `json:"lead_id,omitempty" jsonschema:"Lead ID"`
	Limit            int    `json:"limit,omitempty" jsonschema:"Maximum entries to return (default 50)"`
}

type SessionOutput struct {
	ID               string             `json:"id"`
	UserID           string             `json:"user_id"`
	Status           string             `json:"status"`
	Reason           string             `json:"reason,omitempty"`
	CurrentIndex     int                `json:"current_index"`
	TotalLeads       int                `json:"total_leads"`
	CurrentLeadID    string             `json:"current_lead_id,omitempty"`
	PendingCount     int                `json:"pending_count"`
	ActionsProcessed int                `json:"actions_processed"`
	ActionsApplied   int                `json:"actions_applied"`
	ActionsSkipped   int                `json:"actions_skipped"`
	ActionsFailed    int                `json:"actions_failed"`
	Settings         models.RunSettings `json:"settings"`
	StartedAt        string             `json:"started_at"`
	TimeboxDeadline  string             `json:"timebox_deadline"`
	EndedAt          *string            `json:"ended_at,omitempty"`
}

type ActionOutput struct {
	ID               string                       `json:"id"`
	SessionID        string                       `json:"session_id"`
	LeadID           string                       `json:"lead_id"`
	LeadName         string                       `json:"lead_name"`
	Type             string                       `json:"type"`
	Description      string                       `json:"description"`
	Steps            []string                     `json:"steps"`
	Reasoning        string                       `json:"reasoning"`
	Confidence       int                          `json:"confidence"`
	Difficulty       string                       `json:"difficulty"`
	Message          string                       `json:"message,omitempty"`
	Changes          map[string]any               `json:"changes,omitempty"`
	ComplianceStatus string                       `json:"compliance_status"`
	Violations       []models.ComplianceViolation `json:"violations"`
	RequiresApproval bool                         `json:"requires_approval"`
	ApprovalReason   string                       `json:"approval_reason,omitempty"`
	Status           string                       `json:"status"`
	FailureReason    string                       `json:"failure_reason,omitempty"`
	RegeneratedFrom  string                       `json:"regenerated_from,omitempty"`
	Revision         int                          `json:"revision"`
	CreatedAt        string                       `json:"created_at"`
}

type QueueOutput struct {
	SessionID string         `json:"session_id"`
	Actions   []ActionOutput `json:"actions"`
	Count     int            `json:"count"`
}

type AuditEntryOutput struct {
	ID               string         `json:"id"`
	SessionID        string         `json:"session_id,omitempty"`
	ActionID         string         `json:"action_id,omitempty"`
	UserID           string         `json:"user_id"`
	ActionType       string         `json:"action_type"`
	EntityID         string         `json:"entity_id"`
	Changes          map[string]any `json:"changes,omitempty"`
	Source           string         `json:"source"`
	AIConfidence     *int           `json:"ai_confidence,omitempty"`
	AIReasoning      *string        `json:"ai_reasoning,omitempty"`
	UserDecision     string         `json:"user_decision"`
	ActionStatus     string         `json:"action_status,omitempty"`
	ComplianceStatus string         `json:"compliance_status"`
	Reason           string         `json:"reason,omitempty"`
	CreatedAt        string         `json:"created_at"`
}

type AuditOutput struct {
	Entries []AuditEntryOutput `json:"entries"`
	Count   int                `json:"count"`
}

func (h *AutopilotHandlers) StartAutopilot(ctx context.Context, _ *mcp.CallToolRequest, input StartAutopilotInput) (*mcp.CallToolResult, SessionOutput, error) {
	if input.UserID == "" {
		return nil, SessionOutput{}, fmt.Errorf("user_id is required")
	}
	if len(input.LeadIDs) == 0 {
		return nil, SessionOutput{}, fmt.Errorf("lead_ids is required")
	}

	settings := h.defaults
	if h.settings != nil {
		settings = h.settings.LoadOrDefault(input.UserID, h.defaults)
	}
	if input.AutoApplyCRMUpdates != nil {
		settings.AutoApplyCRMUpdates = *input.AutoApplyCRMUpdates
	}
	if input.AutoSendMessages != nil {
		settings.AutoSendMessages = *input.AutoSendMessages
	}
	if input.AutoOpenProfiles != nil {
		settings.AutoOpenProfiles = *input.AutoOpenProfiles
	}
	if input.TimeboxMinutes != 0 {
		settings.TimeboxMinutes = input.TimeboxMinutes
	}
	if input.ConfidenceThreshold != 0 {
		settings.ConfidenceThreshold = input.ConfidenceThreshold
	}

	id, err := h.controller.Start(ctx, input.UserID, settings, input.LeadIDs)
	if err != nil {
		return nil, SessionOutput{}, fmt.Errorf("failed to start autopilot: %w", err)
	}
	if h.settings != nil {
		// Best effort: the run has started either way.
		_ = h.settings.Save(input.UserID, settings)
	}

	summary, err := h.controller.Status(id)
	if err != nil {
		return nil, SessionOutput{}, err
	}
	return &mcp.CallToolResult{}, sessionToOutput(summary), nil
}

func (h *AutopilotHandlers) PauseAutopilot(_ context.Context, _ *mcp.CallToolRequest, input SessionInput) (*mcp.CallToolResult, SessionOutput, error) {
	return h.control(input, h.controller.Pause)
}

func (h *AutopilotHandlers) ResumeAutopilot(_ context.Context, _ *mcp.CallToolRequest, input SessionInput) (*mcp.CallToolResult, SessionOutput, error) {
	return h.control(input, h.controller.Resume)
}

func (h *AutopilotHandlers) AbortAutopilot(_ context.Context, _ *mcp.CallToolRequest, input SessionInput) (*mcp.CallToolResult, SessionOutput, error) {
	return h.control(input, h.controller.Abort)
}

func (h *AutopilotHandlers) AutopilotStatus(_ context.Context, _ *mcp.CallToolRequest, input SessionInput) (*mcp.CallToolResult, SessionOutput, error) {
	return h.control(input, nil)
}

func (h *AutopilotHandlers) control(input SessionInput, op func(string) error) (*mcp.CallToolResult, SessionOutput, error) {
	if input.SessionID == "" {
		return nil, SessionOutput{}, fmt.Errorf("session_id is required")
	}
	if op != nil {
		if err := op(input.SessionID); err != nil {
			return nil, SessionOutput{}, err
		}
	}
	summary, err := h.controller.Status(input.SessionID)
	if err != nil {
		return nil, SessionOutput{}, err
	}
	return &mcp.CallToolResult{}, sessionToOutput(summary), nil
}

func (h *AutopilotHandlers) AutopilotQueue(_ context.Context, _ *mcp.CallToolRequest, input QueueInput) (*mcp.CallToolResult, QueueOutput, error) {
	if input.SessionID == "" {
		return nil, QueueOutput{}, fmt.Errorf("session_id is required")
	}
	actions, err := h.controller.Queue(input.SessionID)
	if err != nil {
		return nil, QueueOutput{}, err
	}

	out := make([]ActionOutput, 0, len(actions))
	for i := range actions {
		if input.Status != "" && actions[i].Status != input.Status {
			continue
		}
		out = append(out, actionToOutput(&actions[i]))
	}
	return &mcp.CallToolResult{}, QueueOutput{SessionID: input.SessionID, Actions: out, Count: len(out)}, nil
}

func (h *AutopilotHandlers) ApplyAction(ctx context.Context, _ *mcp.CallToolRequest, input ActionInput) (*mcp.CallToolResult, ActionOutput, error) {
	if input.ActionID == "" {
		return nil, ActionOutput{}, fmt.Errorf("action_id is required")
	}
	a, err := h.controller.Apply(ctx, input.ActionID, input.Modifications)
	if err != nil {
		return nil, ActionOutput{}, fmt.Errorf("failed to apply action: %w", err)
	}
	return &mcp.CallToolResult{}, actionToOutput(&a), nil
}

func (h *AutopilotHandlers) SkipAction(ctx context.Context, _ *mcp.CallToolRequest, input ActionInput) (*mcp.CallToolResult, ActionOutput, error) {
	if input.ActionID == "" {
		return nil, ActionOutput{}, fmt.Errorf("action_id is required")
	}
	a, err := h.controller.Skip(ctx, input.ActionID, input.Reason)
	if err != nil {
		return nil, ActionOutput{}, fmt.Errorf("failed to skip action: %w", err)
	}
	return &mcp.CallToolResult{}, actionToOutput(&a), nil
}

func (h *AutopilotHandlers) EditAction(ctx context.Context, _ *mcp.CallToolRequest, input ActionInput) (*mcp.CallToolResult, ActionOutput, error) {
	if input.ActionID == "" {
		return nil, ActionOutput{}, fmt.Errorf("action_id is required")
	}
	a, err := h.controller.Edit(ctx, input.ActionID, input.Modifications)
	if err != nil {
		return nil, ActionOutput{}, fmt.Errorf("failed to edit action: %w", err)
	}
	return &mcp.CallToolResult{}, actionToOutput(&a), nil
}

func (h *AutopilotHandlers) QueryAudit(ctx context.Context, _ *mcp.CallToolRequest, input AuditInput) (*mcp.CallToolResult, AuditOutput, error) {
	filter := models.AuditFilter{
		Agent:            input.Agent,
		ActionType:       input.ActionType,
		ComplianceStatus: input.ComplianceStatus,
		Source:           input.Source,
		SessionID:        input.SessionID,
		EntityID:         input.LeadID,
		Limit:            input.Limit,
	}
	if filter.Limit == 0 {
		filter.Limit = 50
	}
	var err error
	if filter.From, err = parseTime("from", input.From); err != nil {
		return nil, AuditOutput{}, err
	}
	if filter.To, err = parseTime("to", input.To); err != nil {
		return nil, AuditOutput{}, err
	}

	entries, err := h.controller.AuditLog(ctx, filter)
	if err != nil {
		return nil, AuditOutput{}, fmt.Errorf("failed to query audit log: %w", err)
	}

	out := make([]AuditEntryOutput, len(entries))
	for i := range entries {
		out[i] = auditToOutput(&entries[i])
	}
	return &mcp.CallToolResult{}, AuditOutput{Entries: out, Count: len(out)}, nil
}

func parseTime(name, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", name, err)
	}
	return &t, nil
}

func sessionToOutput(s models.SessionSummary) SessionOutput {
	out := SessionOutput{
		ID:               s.ID,
		UserID:           s.UserID,
		Status:           s.Status,
		Reason:           s.Reason,
		CurrentIndex:     s.CurrentIndex,
		TotalLeads:       s.TotalLeads,
		CurrentLeadID:    s.CurrentLeadID,
		PendingCount:     s.PendingCount,
		ActionsProcessed: s.Stats.ActionsProcessed,
		ActionsApplied:   s.Stats.ActionsApplied,
		ActionsSkipped:   s.Stats.ActionsSkipped,
		ActionsFailed:    s.Stats.ActionsFailed,
		Settings:         s.Settings,
		StartedAt:        s.StartedAt.Format(time.RFC3339),
		TimeboxDeadline:  s.TimeboxDeadline.Format(time.RFC3339),
	}
	if s.EndedAt != nil {
		ended := s.EndedAt.Format(time.RFC3339)
		out.EndedAt = &ended
	}
	return out
}

func actionToOutput(a *models.QueuedAction) ActionOutput {
	steps := a.Steps
	if steps == nil {
		steps = []string{}
	}
	violations := a.Violations
	if violations == nil {
		violations = []models.ComplianceViolation{}
	}
	return ActionOutput{
		ID:               a.ID,
		SessionID:        a.SessionID,
		LeadID:           a.LeadID,
		LeadName:         a.LeadName,
		Type:             a.Type,
		Description:      a.Description,
		Steps:            steps,
		Reasoning:        a.Reasoning,
		Confidence:       a.Confidence,
		Difficulty:       a.Difficulty,
		Message:          a.Message,
		Changes:          a.Changes,
		ComplianceStatus: a.ComplianceStatus,
		Violations:       violations,
		RequiresApproval: a.RequiresApproval,
		ApprovalReason:   a.ApprovalReason,
		Status:           a.Status,
		FailureReason:    a.FailureReason,
		RegeneratedFrom:  a.RegeneratedFrom,
		Revision:         a.Revision,
		CreatedAt:        a.CreatedAt.Format(time.RFC3339),
	}
}

func auditToOutput(e *models.AuditEntry) AuditEntryOutput {
	return AuditEntryOutput{
		ID:               e.ID,
		SessionID:        e.SessionID,
		ActionID:         e.ActionID,
		UserID:           e.UserID,
		ActionType:       e.ActionType,
		EntityID:         e.EntityID,
		Changes:          e.Changes,
		Source:           e.Source,
		AIConfidence:     e.AIConfidence,
		AIReasoning:      e.AIReasoning,
		UserDecision:     e.UserDecision,
		ActionStatus:     e.ActionStatus,
		ComplianceStatus: e.ComplianceStatus,
		Reason:           e.Reason,
		CreatedAt:        e.CreatedAt.Format(time.RFC3339),
	}
}
