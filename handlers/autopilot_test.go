// ABOUTME: Tests for autopilot MCP tool handlers
// ABOUTME: Drives real sessions over an in-memory store with a canned oracle
package handlers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/leadpilot/autopilot"
	"github.com/harperreed/leadpilot/models"
)

func boolPtr(b bool) *bool { return &b }

func TestStartAutopilotQueuesForApproval(t *testing.T) {
	env := setupTestEnv(t, messageProposal)
	h := NewAutopilotHandlers(env.controller, nil, models.DefaultRunSettings())
	ctx := context.Background()

	_, session, err := h.StartAutopilot(ctx, nil, StartAutopilotInput{UserID: "agent-1", LeadIDs: env.leadIDs})
	require.NoError(t, err)
	assert.NotEmpty(t, session.ID)
	assert.Equal(t, 2, session.TotalLeads)
	env.waitDone(t, session.ID)

	_, status, err := h.AutopilotStatus(ctx, nil, SessionInput{SessionID: session.ID})
	require.NoError(t, err)
	assert.Equal(t, models.SessionCompleted, status.Status)
	assert.Equal(t, 2, status.PendingCount)
	require.NotNil(t, status.EndedAt)

	_, queue, err := h.AutopilotQueue(ctx, nil, QueueInput{SessionID: session.ID, Status: models.StatusPending})
	require.NoError(t, err)
	require.Equal(t, 2, queue.Count)
	for _, a := range queue.Actions {
		assert.Equal(t, models.ActionMessage, a.Type)
		assert.True(t, a.RequiresApproval)
		assert.Equal(t, models.ApprovalReasonCategoryDisabled, a.ApprovalReason)
		assert.Equal(t, models.ComplianceSafe, a.ComplianceStatus)
	}
}

func TestStartAutopilotAutoSends(t *testing.T) {
	env := setupTestEnv(t, messageProposal)
	presets := &memorySettings{}
	h := NewAutopilotHandlers(env.controller, presets, models.DefaultRunSettings())
	ctx := context.Background()

	_, session, err := h.StartAutopilot(ctx, nil, StartAutopilotInput{
		UserID:           "agent-1",
		LeadIDs:          env.leadIDs,
		AutoSendMessages: boolPtr(true),
	})
	require.NoError(t, err)
	env.waitDone(t, session.ID)

	_, queue, err := h.AutopilotQueue(ctx, nil, QueueInput{SessionID: session.ID})
	require.NoError(t, err)
	require.Equal(t, 2, queue.Count)
	for _, a := range queue.Actions {
		assert.Equal(t, models.StatusApplied, a.Status)
	}

	lead, err := env.leads.Get(ctx, env.leadIDs[0])
	require.NoError(t, err)
	assert.Contains(t, lead.LastInteractionSummary, "Message sent:")
	assert.NotNil(t, lead.LastInteractionDate)

	saved, ok := presets.saved["agent-1"]
	require.True(t, ok)
	assert.True(t, saved.AutoSendMessages)
}

func TestStartAutopilotUsesSavedPreset(t *testing.T) {
	env := setupTestEnv(t, messageProposal)
	preset := models.DefaultRunSettings()
	preset.TimeboxMinutes = 45
	presets := &memorySettings{saved: map[string]models.RunSettings{"agent-1": preset}}
	h := NewAutopilotHandlers(env.controller, presets, models.DefaultRunSettings())

	_, session, err := h.StartAutopilot(context.Background(), nil, StartAutopilotInput{UserID: "agent-1", LeadIDs: env.leadIDs})
	require.NoError(t, err)
	assert.Equal(t, 45, session.Settings.TimeboxMinutes)
}

func TestStartAutopilotValidation(t *testing.T) {
	env := setupTestEnv(t, messageProposal)
	h := NewAutopilotHandlers(env.controller, nil, models.DefaultRunSettings())
	ctx := context.Background()

	_, _, err := h.StartAutopilot(ctx, nil, StartAutopilotInput{LeadIDs: env.leadIDs})
	assert.Error(t, err)

	_, _, err = h.StartAutopilot(ctx, nil, StartAutopilotInput{UserID: "agent-1"})
	assert.Error(t, err)

	_, _, err = h.StartAutopilot(ctx, nil, StartAutopilotInput{UserID: "agent-1", LeadIDs: env.leadIDs, ConfidenceThreshold: 95})
	assert.ErrorIs(t, err, autopilot.ErrInvalidSettings)
}

func TestActionDecisionTools(t *testing.T) {
	env := setupTestEnv(t, messageProposal)
	h := NewAutopilotHandlers(env.controller, nil, models.DefaultRunSettings())
	ctx := context.Background()

	_, session, err := h.StartAutopilot(ctx, nil, StartAutopilotInput{UserID: "agent-1", LeadIDs: env.leadIDs})
	require.NoError(t, err)
	env.waitDone(t, session.ID)
	_, queue, err := h.AutopilotQueue(ctx, nil, QueueInput{SessionID: session.ID})
	require.NoError(t, err)
	require.Len(t, queue.Actions, 2)
	first, second := queue.Actions[0], queue.Actions[1]

	_, edited, err := h.EditAction(ctx, nil, ActionInput{
		ActionID:      first.ID,
		Modifications: map[string]any{"message": "Hi, can we review your renewal this week?"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Hi, can we review your renewal this week?", edited.Message)
	assert.Equal(t, 1, edited.Revision)

	_, applied, err := h.ApplyAction(ctx, nil, ActionInput{ActionID: first.ID})
	require.NoError(t, err)
	assert.Equal(t, models.StatusApplied, applied.Status)

	_, _, err = h.ApplyAction(ctx, nil, ActionInput{ActionID: first.ID})
	assert.ErrorIs(t, err, autopilot.ErrInvalidState)

	_, _, err = h.ApplyAction(ctx, nil, ActionInput{
		ActionID:      second.ID,
		Modifications: map[string]any{"message": "This plan is 100% safe"},
	})
	assert.ErrorIs(t, err, autopilot.ErrComplianceBlocked)

	_, skipped, err := h.SkipAction(ctx, nil, ActionInput{ActionID: second.ID, Reason: "lead asked for a call instead"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusSkipped, skipped.Status)

	_, _, err = h.SkipAction(ctx, nil, ActionInput{ActionID: "missing"})
	assert.ErrorIs(t, err, autopilot.ErrActionNotFound)

	_, _, err = h.ApplyAction(ctx, nil, ActionInput{})
	assert.Error(t, err)

	_, status, err := h.AutopilotStatus(ctx, nil, SessionInput{SessionID: session.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, status.ActionsApplied)
	assert.Equal(t, 1, status.ActionsSkipped)
	assert.Equal(t, 0, status.PendingCount)
}

func TestControlTools(t *testing.T) {
	env := setupTestEnv(t, messageProposal)
	h := NewAutopilotHandlers(env.controller, nil, models.DefaultRunSettings())
	ctx := context.Background()

	_, _, err := h.PauseAutopilot(ctx, nil, SessionInput{})
	assert.Error(t, err)

	_, _, err = h.ResumeAutopilot(ctx, nil, SessionInput{SessionID: "missing"})
	assert.ErrorIs(t, err, autopilot.ErrSessionNotFound)

	_, session, err := h.StartAutopilot(ctx, nil, StartAutopilotInput{UserID: "agent-1", LeadIDs: env.leadIDs})
	require.NoError(t, err)
	env.waitDone(t, session.ID)

	_, out, err := h.AbortAutopilot(ctx, nil, SessionInput{SessionID: session.ID})
	require.NoError(t, err)
	assert.Equal(t, models.SessionCompleted, out.Status, "abort after completion is a no-op")
}

func TestQueryAuditTool(t *testing.T) {
	env := setupTestEnv(t, messageProposal)
	h := NewAutopilotHandlers(env.controller, nil, models.DefaultRunSettings())
	ctx := context.Background()

	_, session, err := h.StartAutopilot(ctx, nil, StartAutopilotInput{UserID: "agent-1", LeadIDs: env.leadIDs})
	require.NoError(t, err)
	env.waitDone(t, session.ID)

	_, all, err := h.QueryAudit(ctx, nil, AuditInput{SessionID: session.ID})
	require.NoError(t, err)
	assert.Equal(t, 2, all.Count)
	for _, e := range all.Entries {
		assert.Equal(t, models.DecisionProposed, e.UserDecision)
		assert.Equal(t, models.AuditSendMessage, e.ActionType)
		require.NotNil(t, e.AIConfidence)
		assert.Equal(t, 85, *e.AIConfidence)
	}

	_, byLead, err := h.QueryAudit(ctx, nil, AuditInput{LeadID: env.leadIDs[1]})
	require.NoError(t, err)
	assert.Equal(t, 1, byLead.Count)

	_, manual, err := h.QueryAudit(ctx, nil, AuditInput{Source: models.SourceManual})
	require.NoError(t, err)
	assert.Equal(t, 0, manual.Count)

	_, _, err = h.QueryAudit(ctx, nil, AuditInput{From: "last week"})
	assert.Error(t, err)
}
