package viz

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/leadpilot/db"
	"github.com/harperreed/leadpilot/models"
)

func TestGenerateDashboardStats(t *testing.T) {
	database, err := db.OpenDatabase(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	ctx := context.Background()
	now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	recent := now.Add(-48 * time.Hour)
	old := now.Add(-45 * 24 * time.Hour)
	overdue := now.Add(-3 * 24 * time.Hour)

	leads := db.NewLeadStore(database)
	for _, l := range []models.Lead{
		{Name: "Priya Sharma", Temperature: models.TemperatureHot, Premium: 25000, LastInteractionDate: &recent},
		{Name: "Rahul Verma", Temperature: models.TemperatureHot, Premium: 15000, LastInteractionDate: &old, NextFollowUpAt: &overdue},
		{Name: "Meera Iyer", Temperature: models.TemperatureCold},
	} {
		lead := l
		require.NoError(t, leads.Create(ctx, &lead))
	}

	audit := db.NewAuditStore(database)
	for _, e := range []models.AuditEntry{
		{UserID: "agent-1", ActionType: models.AuditSendMessage, EntityType: models.EntityLead, EntityID: "x",
			Source: models.SourceAutopilot, UserDecision: models.DecisionProposed, ActionStatus: models.StatusPending,
			ComplianceStatus: models.ComplianceFlagged, CreatedAt: now.Add(-time.Hour)},
		{UserID: "agent-1", ActionType: models.AuditUpdateLead, EntityType: models.EntityLead, EntityID: "y",
			Source: models.SourceAutopilot, UserDecision: models.DecisionApplied, ActionStatus: models.StatusApplied,
			ComplianceStatus: models.ComplianceSafe, CreatedAt: now.Add(-2 * time.Hour)},
		{UserID: "agent-1", ActionType: models.AuditUpdateLead, EntityType: models.EntityLead, EntityID: "y",
			Source: models.SourceManual, UserDecision: models.DecisionApplied, ActionStatus: models.StatusApplied,
			ComplianceStatus: models.ComplianceSafe, CreatedAt: now.Add(-30 * 24 * time.Hour)},
	} {
		entry := e
		require.NoError(t, audit.Append(ctx, &entry))
	}

	stats, err := GenerateDashboardStats(ctx, Sources{Leads: leads, Audit: audit, Sessions: db.NewSessionStore(database)}, now)
	require.NoError(t, err)

	assert.Equal(t, 3, stats.TotalLeads)
	assert.Equal(t, 2, stats.PipelineByTemperature[models.TemperatureHot].Count)
	assert.Equal(t, 40000.0, stats.PipelineByTemperature[models.TemperatureHot].Premium)
	assert.Len(t, stats.StaleLeads, 2)
	assert.Len(t, stats.OverdueLeads, 1)
	assert.Equal(t, 1, stats.FlaggedProposals)
	assert.Equal(t, 1, stats.DecisionsBySource[models.SourceAutopilot][models.DecisionApplied])
	assert.NotContains(t, stats.DecisionsBySource, models.SourceManual)

	out := RenderDashboard(stats)
	assert.Contains(t, out, "LEADPILOT DASHBOARD")
	assert.Contains(t, out, "hot    ██████████   2 (₹40K premium)")
	assert.Contains(t, out, "1 proposed, 1 applied")
	assert.Contains(t, out, "1 proposals blocked by compliance")
	assert.Contains(t, out, "1 leads - follow-up overdue")
}

func TestRenderDashboardEmpty(t *testing.T) {
	out := RenderDashboard(&DashboardStats{})
	assert.Contains(t, out, "0 leads total")
	assert.Contains(t, out, "No activity")
	assert.NotContains(t, out, "NEEDS ATTENTION")
}
