package autopilot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/leadpilot/models"
	"github.com/harperreed/leadpilot/oracle"
)

func TestScenarioCategoryFlagBlocksAutoApply(t *testing.T) {
	h := newHarness(t, fixedDraft(crmDraft(85)), newFakeStore(1))
	s := h.startAndWait(t, settingsWith(func(s *models.RunSettings) {
		s.AutoApplyCRMUpdates = false
		s.ConfidenceThreshold = 70
	}), []string{"lead-1"})

	actions := s.Actions()
	require.Len(t, actions, 1)
	a := actions[0]
	assert.Equal(t, models.StatusPending, a.Status)
	assert.True(t, a.RequiresApproval)
	assert.Equal(t, models.ApprovalReasonCategoryDisabled, a.ApprovalReason)
	assert.Equal(t, models.ComplianceSafe, a.ComplianceStatus)
	assert.Empty(t, a.Violations)
	assert.Equal(t, 0, h.store.updateCount())

	sum := s.Summary()
	assert.Equal(t, models.SessionCompleted, sum.Status)
	assert.Equal(t, 1, sum.PendingCount)
	assert.Equal(t, 1, sum.Stats.ActionsProcessed)

	entries := h.auditFor(t, a.ID)
	require.Len(t, entries, 1)
	assert.Equal(t, models.DecisionProposed, entries[0].UserDecision)
	assert.Equal(t, models.SourceAutopilot, entries[0].Source)
}

func TestScenarioAutoApplyWritesThrough(t *testing.T) {
	h := newHarness(t, fixedDraft(crmDraft(85)), newFakeStore(1))
	s := h.startAndWait(t, settingsWith(func(s *models.RunSettings) {
		s.AutoApplyCRMUpdates = true
		s.ConfidenceThreshold = 70
	}), []string{"lead-1"})

	actions := s.Actions()
	require.Len(t, actions, 1)
	a := actions[0]
	assert.Equal(t, models.StatusApplied, a.Status)
	assert.False(t, a.RequiresApproval)
	require.NotNil(t, a.AppliedAt)

	require.Equal(t, 1, h.store.updateCount())
	update := h.store.updates[0]
	assert.Equal(t, "lead-1", update.LeadID)
	assert.Equal(t, models.TemperatureHot, update.Fields["temperature"])
	assert.Equal(t, a.ID, update.Info.ActionID)
	assert.Equal(t, models.SourceAutopilot, update.Info.Source)

	entries := h.auditFor(t, a.ID)
	require.Len(t, entries, 2)
	assert.Equal(t, models.DecisionApplied, entries[0].UserDecision)
	assert.Equal(t, models.StatusApplied, entries[0].ActionStatus)
	assert.Equal(t, "lead-1", entries[0].EntityID)
	assert.Equal(t, models.DecisionProposed, entries[1].UserDecision)

	assert.Equal(t, 1, s.Summary().Stats.ActionsApplied)
}

func TestScenarioLowConfidenceNeedsApproval(t *testing.T) {
	for _, autoApply := range []bool{false, true} {
		t.Run(fmt.Sprintf("autoApply=%v", autoApply), func(t *testing.T) {
			h := newHarness(t, fixedDraft(crmDraft(40)), newFakeStore(1))
			s := h.startAndWait(t, settingsWith(func(s *models.RunSettings) {
				s.AutoApplyCRMUpdates = autoApply
				s.ConfidenceThreshold = 70
			}), []string{"lead-1"})

			a := s.Actions()[0]
			assert.True(t, a.RequiresApproval)
			assert.Equal(t, models.ApprovalReasonLowConfidence, a.ApprovalReason)
			assert.Equal(t, models.StatusPending, a.Status)
			assert.Equal(t, 0, h.store.updateCount())
		})
	}
}

func TestScenarioComplianceVeto(t *testing.T) {
	draft := models.ActionDraft{
		Type:        models.ActionMessage,
		Description: "Send plan details",
		Steps:       []string{"Send WhatsApp message"},
		Reasoning:   "Lead asked about returns",
		Confidence:  99,
		Difficulty:  models.DifficultyEasy,
		Message:     "This plan offers guaranteed returns for 10 years.",
	}
	h := newHarness(t, fixedDraft(draft), newFakeStore(1))
	s := h.startAndWait(t, settingsWith(func(s *models.RunSettings) {
		s.AutoApplyCRMUpdates = true
		s.AutoSendMessages = true
		s.AutoOpenProfiles = true
		s.ConfidenceThreshold = 50
	}), []string{"lead-1"})

	a := s.Actions()[0]
	assert.Equal(t, models.ComplianceFlagged, a.ComplianceStatus)
	require.Len(t, a.Violations, 1)
	assert.Equal(t, "guaranteed returns", a.Violations[0].Phrase)
	assert.Equal(t, models.SeverityError, a.Violations[0].Severity)
	assert.True(t, a.RequiresApproval)
	assert.Equal(t, models.ApprovalReasonCompliance, a.ApprovalReason)
	assert.Equal(t, models.StatusPending, a.Status)
	assert.Equal(t, 0, h.store.updateCount())

	_, err := h.controller.Apply(context.Background(), a.ID, nil)
	assert.ErrorIs(t, err, ErrComplianceBlocked)
	found, _ := s.queue.Find(a.ID)
	assert.Equal(t, models.StatusPending, found.Status)
}

func TestScenarioTimeboxCompletesEarly(t *testing.T) {
	clock := newFakeClock()
	var calls atomic.Int32
	proposer := proposerFunc(func(ctx context.Context, lead models.Lead, rc oracle.RunContext) (models.ActionDraft, error) {
		calls.Add(1)
		clock.Advance(3*time.Minute + 30*time.Second)
		return crmDraft(85), nil
	})

	store := newFakeStore(10)
	h := newHarness(t, proposer, store, func(c *Config) { c.Now = clock.Now })
	s := h.startAndWait(t, settingsWith(func(s *models.RunSettings) { s.TimeboxMinutes = 10 }), store.ids())

	sum := s.Summary()
	assert.Equal(t, models.SessionCompleted, sum.Status)
	assert.Equal(t, "timebox elapsed", sum.Reason)
	assert.Equal(t, 3, sum.Stats.ActionsProcessed)
	assert.Equal(t, 3, sum.CurrentIndex)
	assert.Equal(t, 10, sum.TotalLeads)
	assert.Len(t, s.Actions(), 3)
	assert.Equal(t, int32(3), calls.Load())

	for _, a := range s.Actions() {
		assert.Contains(t, []string{"lead-1", "lead-2", "lead-3"}, a.LeadID)
	}
}

func TestScenarioConcurrentApplySingleWinner(t *testing.T) {
	h := newHarness(t, fixedDraft(crmDraft(85)), newFakeStore(1))
	s := h.startAndWait(t, models.DefaultRunSettings(), []string{"lead-1"})
	actionID := s.Actions()[0].ID

	var wg sync.WaitGroup
	errs := make([]error, 2)
	start := make(chan struct{})
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = h.controller.Apply(context.Background(), actionID, nil)
		}(i)
	}
	close(start)
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
			continue
		}
		assert.ErrorIs(t, err, ErrInvalidState)
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, h.store.updateCount())

	applied := 0
	for _, e := range h.auditFor(t, actionID) {
		if e.UserDecision == models.DecisionApplied {
			applied++
			assert.Equal(t, models.SourceManual, e.Source)
		}
	}
	assert.Equal(t, 1, applied)
}

func TestDecisionOnNonPendingActionIsRejected(t *testing.T) {
	h := newHarness(t, fixedDraft(crmDraft(85)), newFakeStore(1))
	s := h.startAndWait(t, models.DefaultRunSettings(), []string{"lead-1"})
	actionID := s.Actions()[0].ID
	ctx := context.Background()

	skipped, err := h.controller.Skip(ctx, actionID, "already called")
	require.NoError(t, err)
	assert.Equal(t, models.StatusSkipped, skipped.Status)
	before := h.audit.Len()

	_, err = h.controller.Skip(ctx, actionID, "")
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = h.controller.Apply(ctx, actionID, nil)
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = h.controller.Edit(ctx, actionID, map[string]any{"notes": "x"})
	assert.ErrorIs(t, err, ErrInvalidState)

	assert.Equal(t, before, h.audit.Len())
	found, _ := s.queue.Find(actionID)
	assert.Equal(t, models.StatusSkipped, found.Status)
	assert.Equal(t, 1, s.Summary().Stats.ActionsSkipped)
}

func TestAbortIsIdempotentAndDiscardsInFlightResult(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	proposer := proposerFunc(func(ctx context.Context, lead models.Lead, rc oracle.RunContext) (models.ActionDraft, error) {
		close(entered)
		<-release
		return crmDraft(85), nil
	})

	h := newHarness(t, proposer, newFakeStore(2))
	id, err := h.controller.Start(context.Background(), "agent-1", models.DefaultRunSettings(), []string{"lead-1", "lead-2"})
	require.NoError(t, err)
	s, err := h.controller.Session(id)
	require.NoError(t, err)

	<-entered
	require.NoError(t, h.controller.Abort(id))
	auditAfterFirst := h.audit.Len()
	require.NoError(t, h.controller.Abort(id))

	close(release)
	waitDone(t, s)

	sum, err := h.controller.Status(id)
	require.NoError(t, err)
	assert.Equal(t, models.SessionAborted, sum.Status)
	assert.NotNil(t, sum.EndedAt)
	assert.Empty(t, s.Actions())
	assert.Equal(t, auditAfterFirst, h.audit.Len())
	assert.Equal(t, 0, h.audit.Len())

	require.NoError(t, h.controller.Pause(id))
	require.NoError(t, h.controller.Resume(id))
	sum, _ = h.controller.Status(id)
	assert.Equal(t, models.SessionAborted, sum.Status)
}

func TestDecisionsRejectedAfterAbort(t *testing.T) {
	blocked := make(chan struct{})
	proposer := proposerFunc(func(ctx context.Context, lead models.Lead, rc oracle.RunContext) (models.ActionDraft, error) {
		if lead.ID == "lead-1" {
			return crmDraft(85), nil
		}
		close(blocked)
		<-ctx.Done()
		return models.ActionDraft{}, ctx.Err()
	})

	h := newHarness(t, proposer, newFakeStore(2))
	id, err := h.controller.Start(context.Background(), "agent-1", models.DefaultRunSettings(), []string{"lead-1", "lead-2"})
	require.NoError(t, err)
	s, _ := h.controller.Session(id)

	<-blocked
	actionID := s.Actions()[0].ID
	require.NoError(t, h.controller.Abort(id))
	waitDone(t, s)

	ctx := context.Background()
	_, err = h.controller.Apply(ctx, actionID, nil)
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = h.controller.Skip(ctx, actionID, "")
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = h.controller.Edit(ctx, actionID, map[string]any{"notes": "x"})
	assert.ErrorIs(t, err, ErrInvalidState)

	found, _ := s.queue.Find(actionID)
	assert.Equal(t, models.StatusPending, found.Status)
	assert.Equal(t, 0, h.store.updateCount())
}

func TestCompletedSessionStillAcceptsDecisions(t *testing.T) {
	h := newHarness(t, fixedDraft(crmDraft(85)), newFakeStore(1))
	s := h.startAndWait(t, models.DefaultRunSettings(), []string{"lead-1"})
	actionID := s.Actions()[0].ID

	require.NoError(t, h.controller.Abort(s.ID()))
	assert.Equal(t, models.SessionCompleted, s.Summary().Status)

	applied, err := h.controller.Apply(context.Background(), actionID, nil)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApplied, applied.Status)
}

func TestPauseCancelsInFlightCallAndResumeRetriesLead(t *testing.T) {
	var calls atomic.Int32
	entered := make(chan struct{}, 4)
	proposer := proposerFunc(func(ctx context.Context, lead models.Lead, rc oracle.RunContext) (models.ActionDraft, error) {
		n := calls.Add(1)
		entered <- struct{}{}
		if n == 1 {
			<-ctx.Done()
			return models.ActionDraft{}, ctx.Err()
		}
		return crmDraft(85), nil
	})

	h := newHarness(t, proposer, newFakeStore(1))
	id, err := h.controller.Start(context.Background(), "agent-1", models.DefaultRunSettings(), []string{"lead-1"})
	require.NoError(t, err)
	s, _ := h.controller.Session(id)

	<-entered
	require.NoError(t, h.controller.Pause(id))
	require.NoError(t, h.controller.Pause(id))
	sum, _ := h.controller.Status(id)
	assert.Equal(t, models.SessionPaused, sum.Status)

	require.Eventually(t, func() bool {
		return s.Summary().CurrentLeadID == ""
	}, 2*time.Second, 5*time.Millisecond)
	assert.Empty(t, s.Actions())

	require.NoError(t, h.controller.Resume(id))
	waitDone(t, s)

	assert.Equal(t, int32(2), calls.Load())
	actions := s.Actions()
	require.Len(t, actions, 1)
	assert.Equal(t, "lead-1", actions[0].LeadID)
	assert.Equal(t, models.SessionCompleted, s.Summary().Status)
}

func TestAbortWhilePaused(t *testing.T) {
	entered := make(chan struct{}, 1)
	proposer := proposerFunc(func(ctx context.Context, lead models.Lead, rc oracle.RunContext) (models.ActionDraft, error) {
		entered <- struct{}{}
		<-ctx.Done()
		return models.ActionDraft{}, ctx.Err()
	})

	h := newHarness(t, proposer, newFakeStore(1))
	id, err := h.controller.Start(context.Background(), "agent-1", models.DefaultRunSettings(), []string{"lead-1"})
	require.NoError(t, err)
	s, _ := h.controller.Session(id)

	<-entered
	require.NoError(t, h.controller.Pause(id))
	require.NoError(t, h.controller.Abort(id))
	waitDone(t, s)

	assert.Equal(t, models.SessionAborted, s.Summary().Status)
	assert.Equal(t, "aborted by user", s.Summary().Reason)
}

func TestOracleFailureMarksActionFailedAndContinues(t *testing.T) {
	proposer := proposerFunc(func(ctx context.Context, lead models.Lead, rc oracle.RunContext) (models.ActionDraft, error) {
		if lead.ID == "lead-1" {
			return models.ActionDraft{}, fmt.Errorf("proposal failed after 3 attempt(s): %w", oracle.ErrOracleUnavailable)
		}
		return crmDraft(85), nil
	})

	h := newHarness(t, proposer, newFakeStore(2))
	s := h.startAndWait(t, models.DefaultRunSettings(), []string{"lead-1", "lead-2"})

	actions := s.Actions()
	require.Len(t, actions, 2)
	assert.Equal(t, models.StatusFailed, actions[0].Status)
	assert.Contains(t, actions[0].FailureReason, "unavailable")
	assert.Equal(t, models.StatusPending, actions[1].Status)

	sum := s.Summary()
	assert.Equal(t, models.SessionCompleted, sum.Status)
	assert.Equal(t, 1, sum.Stats.ActionsFailed)
	assert.Equal(t, 2, sum.Stats.ActionsProcessed)

	entries := h.auditFor(t, actions[0].ID)
	require.Len(t, entries, 1)
	assert.Equal(t, models.DecisionFailed, entries[0].UserDecision)
	assert.Equal(t, models.StatusFailed, entries[0].ActionStatus)
}

func TestStoreWriteFailureDowngradesToPending(t *testing.T) {
	store := newFakeStore(2)
	store.failUpdate = errors.New("constraint failed")
	h := newHarness(t, fixedDraft(crmDraft(85)), store)
	s := h.startAndWait(t, settingsWith(func(s *models.RunSettings) { s.AutoApplyCRMUpdates = true }), store.ids())

	actions := s.Actions()
	require.Len(t, actions, 2)
	for _, a := range actions {
		assert.Equal(t, models.StatusPending, a.Status)
		assert.True(t, a.RequiresApproval)
		assert.Equal(t, models.ApprovalReasonStoreWrite, a.ApprovalReason)
		assert.Contains(t, a.FailureReason, "constraint failed")
	}
	assert.Equal(t, models.SessionCompleted, s.Summary().Status)

	entries := h.auditFor(t, actions[0].ID)
	require.Len(t, entries, 2)
	assert.Equal(t, models.DecisionFailed, entries[0].UserDecision)
	assert.Equal(t, models.StatusPending, entries[0].ActionStatus)
	assert.Equal(t, models.SourceAutopilot, entries[0].Source)
	assert.Contains(t, entries[0].Reason, "constraint failed")
	assert.Equal(t, models.DecisionProposed, entries[1].UserDecision)

	store.mu.Lock()
	store.failUpdate = nil
	store.mu.Unlock()
	applied, err := h.controller.Apply(context.Background(), actions[0].ID, nil)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApplied, applied.Status)
	assert.Empty(t, applied.FailureReason)

	entries = h.auditFor(t, actions[0].ID)
	require.Len(t, entries, 3)
	assert.Equal(t, models.DecisionApplied, entries[0].UserDecision)
	assert.Equal(t, models.SourceManual, entries[0].Source)
}

func TestManualApplyStoreFailureIsAudited(t *testing.T) {
	store := newFakeStore(1)
	h := newHarness(t, fixedDraft(crmDraft(85)), store)
	s := h.startAndWait(t, models.DefaultRunSettings(), []string{"lead-1"})
	actionID := s.Actions()[0].ID

	store.mu.Lock()
	store.failUpdate = errors.New("disk full")
	store.mu.Unlock()
	_, err := h.controller.Apply(context.Background(), actionID, nil)
	require.Error(t, err)

	found, _ := s.queue.Find(actionID)
	assert.Equal(t, models.StatusPending, found.Status)
	assert.Equal(t, models.ApprovalReasonStoreWrite, found.ApprovalReason)

	entries := h.auditFor(t, actionID)
	require.Len(t, entries, 2)
	assert.Equal(t, models.DecisionFailed, entries[0].UserDecision)
	assert.Equal(t, models.SourceManual, entries[0].Source)
	assert.Equal(t, "agent-1", entries[0].UserID)
	assert.Contains(t, entries[0].Reason, "disk full")
}

func TestProposalWithoutChangesIsNeverApplied(t *testing.T) {
	reply := `{"type":"crm_update","description":"Update lead","steps":["Open profile"],
"reasoning":"Looks engaged","difficulty":"easy","confidence":85}`
	parsed := proposerFunc(func(ctx context.Context, lead models.Lead, rc oracle.RunContext) (models.ActionDraft, error) {
		return oracle.ParseProposal(reply)
	})
	bare := crmDraft(85)
	bare.Changes = nil
	tagged := crmDraft(85)
	tagged.Type = models.ActionTag
	tagged.Changes = map[string]any{}

	tests := []struct {
		name     string
		proposer Proposer
	}{
		{"parsed oracle reply", parsed},
		{"crm update without changes", fixedDraft(bare)},
		{"tag with empty changes", fixedDraft(tagged)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.proposer, newFakeStore(1))
			s := h.startAndWait(t, settingsWith(func(s *models.RunSettings) {
				s.AutoApplyCRMUpdates = true
				s.ConfidenceThreshold = 70
			}), []string{"lead-1"})

			actions := s.Actions()
			require.Len(t, actions, 1)
			assert.Equal(t, models.StatusFailed, actions[0].Status)
			assert.Contains(t, actions[0].FailureReason, "without changes")
			assert.Equal(t, 0, h.store.updateCount())
			assert.Equal(t, 0, s.Summary().Stats.ActionsApplied)

			entries := h.auditFor(t, actions[0].ID)
			require.Len(t, entries, 1)
			assert.Equal(t, models.DecisionFailed, entries[0].UserDecision)
		})
	}
}

func TestStoreUnavailableAbortsSession(t *testing.T) {
	store := newFakeStore(3)
	store.failUpdate = fmt.Errorf("%w: database is closed", ErrStoreUnavailable)
	h := newHarness(t, fixedDraft(crmDraft(85)), store)
	s := h.startAndWait(t, settingsWith(func(s *models.RunSettings) { s.AutoApplyCRMUpdates = true }), store.ids())

	sum := s.Summary()
	assert.Equal(t, models.SessionAborted, sum.Status)
	assert.Contains(t, sum.Reason, "lead store unavailable")
	actions := s.Actions()
	require.Len(t, actions, 1)
	assert.Equal(t, models.StatusPending, actions[0].Status)
	assert.True(t, actions[0].RequiresApproval)
}

func TestComplianceCheckerPanicAbortsSession(t *testing.T) {
	h := newHarness(t, fixedDraft(crmDraft(85)), newFakeStore(2), func(c *Config) {
		c.Checker = panickingChecker{}
	})
	s := h.startAndWait(t, models.DefaultRunSettings(), []string{"lead-1", "lead-2"})

	sum := s.Summary()
	assert.Equal(t, models.SessionAborted, sum.Status)
	assert.Contains(t, sum.Reason, "compliance checker failed")
	assert.Empty(t, s.Actions())
}

func TestApplyWithModifications(t *testing.T) {
	h := newHarness(t, fixedDraft(crmDraft(85)), newFakeStore(1))
	s := h.startAndWait(t, models.DefaultRunSettings(), []string{"lead-1"})
	actionID := s.Actions()[0].ID
	ctx := context.Background()

	_, err := h.controller.Apply(ctx, actionID, map[string]any{"notes": "Zero risk plan"})
	assert.ErrorIs(t, err, ErrComplianceBlocked)
	found, _ := s.queue.Find(actionID)
	assert.Equal(t, models.StatusPending, found.Status)
	assert.Equal(t, 0, h.store.updateCount())

	applied, err := h.controller.Apply(ctx, actionID, map[string]any{"temperature": models.TemperatureWarm, "notes": "Prefers evening calls"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusApplied, applied.Status)
	assert.Equal(t, "Prefers evening calls", applied.Changes["notes"])

	require.Equal(t, 1, h.store.updateCount())
	assert.Equal(t, models.TemperatureWarm, h.store.updates[0].Fields["temperature"])
	assert.Equal(t, models.SourceManual, h.store.updates[0].Info.Source)

	entries := h.auditFor(t, actionID)
	require.Len(t, entries, 2)
	assert.Equal(t, models.DecisionEdited, entries[0].UserDecision)
	assert.Equal(t, models.StatusApplied, entries[0].ActionStatus)
}

func TestApplyRejectsModificationsRemovingAllChanges(t *testing.T) {
	h := newHarness(t, fixedDraft(crmDraft(85)), newFakeStore(1))
	s := h.startAndWait(t, models.DefaultRunSettings(), []string{"lead-1"})
	actionID := s.Actions()[0].ID
	ctx := context.Background()

	_, err := h.controller.Apply(ctx, actionID, map[string]any{"temperature": nil})
	assert.ErrorIs(t, err, ErrInvalidModification)
	_, err = h.controller.Edit(ctx, actionID, map[string]any{"temperature": nil})
	assert.ErrorIs(t, err, ErrInvalidModification)

	found, _ := s.queue.Find(actionID)
	assert.Equal(t, models.StatusPending, found.Status)
	assert.Equal(t, models.TemperatureHot, found.Changes["temperature"])
	assert.Equal(t, 0, h.store.updateCount())

	applied, err := h.controller.Apply(ctx, actionID, nil)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApplied, applied.Status)
}

func TestApplyMessageRecordsInteraction(t *testing.T) {
	draft := models.ActionDraft{
		Type:        models.ActionMessage,
		Description: "Share renewal quote",
		Steps:       []string{"Send message"},
		Reasoning:   "Renewal due next week",
		Confidence:  90,
		Difficulty:  models.DifficultyEasy,
		Message:     "Hi, your renewal quote is ready.",
	}
	h := newHarness(t, fixedDraft(draft), newFakeStore(1))
	s := h.startAndWait(t, settingsWith(func(s *models.RunSettings) { s.AutoSendMessages = true }), []string{"lead-1"})

	a := s.Actions()[0]
	assert.Equal(t, models.StatusApplied, a.Status)
	require.Equal(t, 1, h.store.updateCount())
	fields := h.store.updates[0].Fields
	assert.Equal(t, "Message sent: Hi, your renewal quote is ready.", fields["lastInteractionSummary"])
	assert.NotEmpty(t, fields["lastInteractionDate"])
}

func TestEditPendingWithModificationsRequiresApproval(t *testing.T) {
	h := newHarness(t, fixedDraft(crmDraft(85)), newFakeStore(1))
	s := h.startAndWait(t, models.DefaultRunSettings(), []string{"lead-1"})
	actionID := s.Actions()[0].ID

	edited, err := h.controller.Edit(context.Background(), actionID, map[string]any{"description": "Mark as warm instead", "temperature": models.TemperatureWarm})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, edited.Status)
	assert.True(t, edited.RequiresApproval)
	assert.Equal(t, models.ApprovalReasonEdited, edited.ApprovalReason)
	assert.Equal(t, "Mark as warm instead", edited.Description)
	assert.Equal(t, 1, edited.Revision)

	entries := h.auditFor(t, actionID)
	require.Len(t, entries, 2)
	assert.Equal(t, models.DecisionEdited, entries[0].UserDecision)
	assert.Equal(t, models.SourceManual, entries[0].Source)

	flagged, err := h.controller.Edit(context.Background(), actionID, map[string]any{"notes": "assured profit"})
	require.NoError(t, err)
	assert.Equal(t, models.ComplianceFlagged, flagged.ComplianceStatus)
	assert.Equal(t, models.ApprovalReasonCompliance, flagged.ApprovalReason)
}

func TestEditPendingRegenerates(t *testing.T) {
	var calls atomic.Int32
	proposer := proposerFunc(func(ctx context.Context, lead models.Lead, rc oracle.RunContext) (models.ActionDraft, error) {
		if calls.Add(1) == 1 {
			return crmDraft(85), nil
		}
		d := crmDraft(75)
		d.Description = "Schedule a call"
		d.Type = models.ActionReminder
		return d, nil
	})
	h := newHarness(t, proposer, newFakeStore(1))
	s := h.startAndWait(t, models.DefaultRunSettings(), []string{"lead-1"})
	actionID := s.Actions()[0].ID

	regenerated, err := h.controller.Edit(context.Background(), actionID, nil)
	require.NoError(t, err)
	assert.Equal(t, actionID, regenerated.ID)
	assert.Equal(t, models.ActionReminder, regenerated.Type)
	assert.Equal(t, models.ApprovalReasonRegenerated, regenerated.ApprovalReason)

	entries := h.auditFor(t, actionID)
	require.Len(t, entries, 2)
	assert.Equal(t, models.SourceAI, entries[0].Source)
}

func TestEditFailedActionAppendsRegeneratedEntry(t *testing.T) {
	var calls atomic.Int32
	proposer := proposerFunc(func(ctx context.Context, lead models.Lead, rc oracle.RunContext) (models.ActionDraft, error) {
		if calls.Add(1) == 1 {
			return models.ActionDraft{}, oracle.ErrOracleUnavailable
		}
		return crmDraft(85), nil
	})
	h := newHarness(t, proposer, newFakeStore(1))
	s := h.startAndWait(t, models.DefaultRunSettings(), []string{"lead-1"})
	failedID := s.Actions()[0].ID

	next, err := h.controller.Edit(context.Background(), failedID, nil)
	require.NoError(t, err)
	assert.NotEqual(t, failedID, next.ID)
	assert.Equal(t, failedID, next.RegeneratedFrom)
	assert.Equal(t, models.StatusPending, next.Status)
	assert.True(t, next.RequiresApproval)

	actions := s.Actions()
	require.Len(t, actions, 2)
	assert.Equal(t, models.StatusFailed, actions[0].Status)
	assert.Equal(t, next.ID, actions[1].ID)
}

func TestStartValidation(t *testing.T) {
	h := newHarness(t, fixedDraft(crmDraft(85)), newFakeStore(1))
	ctx := context.Background()

	_, err := h.controller.Start(ctx, "", models.DefaultRunSettings(), nil)
	assert.ErrorIs(t, err, ErrInvalidSettings)

	_, err = h.controller.Start(ctx, "agent-1", settingsWith(func(s *models.RunSettings) { s.TimeboxMinutes = 5 }), nil)
	assert.ErrorIs(t, err, ErrInvalidSettings)

	_, err = h.controller.Start(ctx, "agent-1", settingsWith(func(s *models.RunSettings) { s.ConfidenceThreshold = 95 }), nil)
	assert.ErrorIs(t, err, ErrInvalidSettings)

	_, err = h.controller.Status("missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, h.controller.Abort("missing"), ErrSessionNotFound)
	_, err = h.controller.Apply(ctx, "missing", nil)
	assert.ErrorIs(t, err, ErrActionNotFound)
}

func TestStartDeduplicatesLeadsAndCompletesEmptyRun(t *testing.T) {
	h := newHarness(t, fixedDraft(crmDraft(85)), newFakeStore(2))
	s := h.startAndWait(t, models.DefaultRunSettings(), []string{"lead-1", "", "lead-1", "lead-2"})
	assert.Equal(t, 2, s.Summary().TotalLeads)
	assert.Len(t, s.Actions(), 2)

	empty := h.startAndWait(t, models.DefaultRunSettings(), nil)
	assert.Equal(t, models.SessionCompleted, empty.Summary().Status)
	assert.Equal(t, "all leads processed", empty.Summary().Reason)

	sessions := h.controller.Sessions("agent-1")
	assert.Len(t, sessions, 2)
}

func TestMissingLeadIsSkipped(t *testing.T) {
	h := newHarness(t, fixedDraft(crmDraft(85)), newFakeStore(1))
	s := h.startAndWait(t, models.DefaultRunSettings(), []string{"ghost", "lead-1"})

	actions := s.Actions()
	require.Len(t, actions, 1)
	assert.Equal(t, "lead-1", actions[0].LeadID)
	assert.Equal(t, 2, s.Summary().Stats.ActionsProcessed)
}

func TestAuditLogQueryThroughController(t *testing.T) {
	h := newHarness(t, fixedDraft(crmDraft(85)), newFakeStore(2))
	s := h.startAndWait(t, settingsWith(func(s *models.RunSettings) { s.AutoApplyCRMUpdates = true }), []string{"lead-1", "lead-2"})

	entries, err := h.controller.AuditLog(context.Background(), models.AuditFilter{SessionID: s.ID(), EntityID: "lead-2"})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.Equal(t, "lead-2", e.EntityID)
		assert.Equal(t, models.AuditUpdateLead, e.ActionType)
		require.NotNil(t, e.AIConfidence)
		assert.Equal(t, 85, *e.AIConfidence)
	}
}
