// ABOUTME: Contracts for the lead store and optional session persistence
// ABOUTME: The autopilot core depends only on these interfaces, never on a database
package autopilot

import (
	"context"

	"github.com/harperreed/leadpilot/models"
	"github.com/harperreed/leadpilot/oracle"
)

// LeadStore owns lead records. Implementations serialize writes per lead and
// wrap connectivity failures with ErrStoreUnavailable.
type LeadStore interface {
	Get(ctx context.Context, id string) (*models.Lead, error)
	Update(ctx context.Context, id string, fields map[string]any, info models.UpdateInfo) (*models.Lead, error)
}

// SessionRecorder persists session snapshots for later review.
type SessionRecorder interface {
	RecordSession(ctx context.Context, summary models.SessionSummary, actions []models.QueuedAction) error
}

// Proposer produces one action draft for a lead.
type Proposer interface {
	Propose(ctx context.Context, lead models.Lead, rc oracle.RunContext) (models.ActionDraft, error)
}

// ComplianceChecker scans text for regulatory violations.
type ComplianceChecker interface {
	CheckAll(texts ...string) []models.ComplianceViolation
}
