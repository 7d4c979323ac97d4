package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunSettingsValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*RunSettings)
		wantErr bool
	}{
		{"defaults", func(*RunSettings) {}, false},
		{"timebox too short", func(s *RunSettings) { s.TimeboxMinutes = 5 }, true},
		{"timebox too long", func(s *RunSettings) { s.TimeboxMinutes = 61 }, true},
		{"timebox lower bound", func(s *RunSettings) { s.TimeboxMinutes = 10 }, false},
		{"threshold too low", func(s *RunSettings) { s.ConfidenceThreshold = 49 }, true},
		{"threshold too high", func(s *RunSettings) { s.ConfidenceThreshold = 91 }, true},
		{"threshold upper bound", func(s *RunSettings) { s.ConfidenceThreshold = 90 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultRunSettings()
			tt.mutate(&s)
			err := s.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestComplianceStatusFor(t *testing.T) {
	assert.Equal(t, ComplianceSafe, ComplianceStatusFor(nil))
	assert.Equal(t, ComplianceSafe, ComplianceStatusFor([]ComplianceViolation{{Severity: SeverityWarning}}))
	assert.Equal(t, ComplianceFlagged, ComplianceStatusFor([]ComplianceViolation{
		{Severity: SeverityWarning},
		{Severity: SeverityError},
	}))
}

func TestActionDraftTextPayload(t *testing.T) {
	d := ActionDraft{
		Description: "Send renewal reminder",
		Message:     "Hi Priya",
		Steps:       []string{"open profile"},
		Changes: map[string]any{
			"notes":   "renewal due",
			"premium": 1200.0,
			"tags":    []any{"renewal-due", 3},
		},
	}

	texts := d.TextPayload()
	assert.Contains(t, texts, "Send renewal reminder")
	assert.Contains(t, texts, "Hi Priya")
	assert.Contains(t, texts, "open profile")
	assert.Contains(t, texts, "renewal due")
	assert.Contains(t, texts, "renewal-due")
	assert.Len(t, texts, 5)
}

func TestQueuedActionCloneIsDeep(t *testing.T) {
	now := time.Now()
	a := QueuedAction{
		ID:         "a1",
		Steps:      []string{"one"},
		Changes:    map[string]any{"temperature": "hot"},
		Violations: []ComplianceViolation{{Phrase: "risk-free"}},
		AppliedAt:  &now,
	}

	c := a.Clone()
	c.Steps[0] = "changed"
	c.Changes["temperature"] = "cold"
	c.Violations[0].Phrase = "changed"
	*c.AppliedAt = now.Add(time.Hour)

	assert.Equal(t, "one", a.Steps[0])
	assert.Equal(t, "hot", a.Changes["temperature"])
	assert.Equal(t, "risk-free", a.Violations[0].Phrase)
	assert.Equal(t, now, *a.AppliedAt)
}

func TestAuditFilterMatches(t *testing.T) {
	now := time.Now()
	entry := &AuditEntry{
		UserID:           "agent-1",
		ActionType:       AuditUpdateLead,
		EntityID:         "lead-1",
		Source:           SourceAutopilot,
		ComplianceStatus: ComplianceSafe,
		SessionID:        "s1",
		CreatedAt:        now,
	}

	require.True(t, AuditFilter{}.Matches(entry))
	assert.True(t, AuditFilter{Agent: "agent-1", Source: SourceAutopilot}.Matches(entry))
	assert.False(t, AuditFilter{Agent: "agent-2"}.Matches(entry))
	assert.False(t, AuditFilter{ActionType: AuditSendMessage}.Matches(entry))
	assert.False(t, AuditFilter{ComplianceStatus: ComplianceFlagged}.Matches(entry))

	before := now.Add(-time.Minute)
	after := now.Add(time.Minute)
	assert.True(t, AuditFilter{From: &before, To: &after}.Matches(entry))
	assert.False(t, AuditFilter{From: &after}.Matches(entry))
	assert.False(t, AuditFilter{To: &before}.Matches(entry))
}

func TestAuditActionType(t *testing.T) {
	assert.Equal(t, AuditSendMessage, AuditActionType(ActionMessage))
	assert.Equal(t, AuditCreateReminder, AuditActionType(ActionReminder))
	assert.Equal(t, AuditTagLead, AuditActionType(ActionTag))
	assert.Equal(t, AuditUpdateLead, AuditActionType(ActionCRMUpdate))
}

func TestNeedsChanges(t *testing.T) {
	assert.True(t, NeedsChanges(ActionCRMUpdate))
	assert.True(t, NeedsChanges(ActionTag))
	assert.False(t, NeedsChanges(ActionMessage))
	assert.False(t, NeedsChanges(ActionReminder))
}
