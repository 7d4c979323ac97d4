package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/leadpilot/autopilot"
	"github.com/harperreed/leadpilot/models"
)

func TestSessionStoreRecordAndReload(t *testing.T) {
	store := NewSessionStore(openTestDB(t))
	ctx := context.Background()
	started := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	summary := models.SessionSummary{
		ID:              "s1",
		UserID:          "agent-1",
		Settings:        models.DefaultRunSettings(),
		Status:          models.SessionRunning,
		TotalLeads:      3,
		StartedAt:       started,
		TimeboxDeadline: started.Add(30 * time.Minute),
	}
	actions := []models.QueuedAction{
		{ID: "a1", LeadID: "lead-1", Type: models.ActionCRMUpdate, Status: models.StatusPending, ComplianceStatus: models.ComplianceSafe, Confidence: 80},
	}
	require.NoError(t, store.RecordSession(ctx, summary, actions))

	ended := started.Add(12 * time.Minute)
	summary.Status = models.SessionCompleted
	summary.Reason = "all leads processed"
	summary.EndedAt = &ended
	summary.CurrentIndex = 3
	summary.Stats = models.SessionStats{ActionsProcessed: 3, ActionsApplied: 1}
	actions[0].Status = models.StatusApplied
	actions = append(actions, models.QueuedAction{ID: "a2", LeadID: "lead-2", Status: models.StatusFailed, ComplianceStatus: models.ComplianceSafe})
	require.NoError(t, store.RecordSession(ctx, summary, actions))

	got, gotActions, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, models.SessionCompleted, got.Status)
	assert.Equal(t, "all leads processed", got.Reason)
	assert.Equal(t, 3, got.Stats.ActionsProcessed)
	assert.Equal(t, 1, got.Stats.ActionsApplied)
	assert.Equal(t, 70, got.Settings.ConfidenceThreshold)
	require.NotNil(t, got.EndedAt)
	assert.True(t, ended.Equal(*got.EndedAt))

	require.Len(t, gotActions, 2)
	assert.Equal(t, "a1", gotActions[0].ID)
	assert.Equal(t, models.StatusApplied, gotActions[0].Status)
	assert.Equal(t, 80, gotActions[0].Confidence)
	assert.Equal(t, "a2", gotActions[1].ID)

	_, _, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, autopilot.ErrSessionNotFound)
}

func TestListSessionsNewestFirst(t *testing.T) {
	store := NewSessionStore(openTestDB(t))
	ctx := context.Background()
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	for i, user := range []string{"agent-1", "agent-2", "agent-1"} {
		started := base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, store.RecordSession(ctx, models.SessionSummary{
			ID:              "s" + string(rune('1'+i)),
			UserID:          user,
			Settings:        models.DefaultRunSettings(),
			Status:          models.SessionCompleted,
			StartedAt:       started,
			TimeboxDeadline: started.Add(30 * time.Minute),
		}, nil))
	}

	all, err := store.List(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "s3", all[0].ID)

	mine, err := store.List(ctx, "agent-1", 10)
	require.NoError(t, err)
	assert.Len(t, mine, 2)
}
