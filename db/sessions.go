// ABOUTME: Persistence of autopilot session snapshots and their queued actions
// ABOUTME: Lets a review UI list historical runs after the process restarts
package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/harperreed/leadpilot/autopilot"
	"github.com/harperreed/leadpilot/models"
)

const sessionColumns = `id, user_id, settings, status, reason, current_index, total_leads, current_lead_id,
	pending_count, actions_processed, actions_applied, actions_skipped, actions_failed,
	started_at, timebox_deadline, ended_at`

// SaveSession upserts the summary and every action in one transaction.
func SaveSession(ctx context.Context, db *sql.DB, summary models.SessionSummary, actions []models.QueuedAction) error {
	settings, err := json.Marshal(summary.Settings)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr(err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO autopilot_sessions (`+sessionColumns+`, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			reason = excluded.reason,
			current_index = excluded.current_index,
			current_lead_id = excluded.current_lead_id,
			pending_count = excluded.pending_count,
			actions_processed = excluded.actions_processed,
			actions_applied = excluded.actions_applied,
			actions_skipped = excluded.actions_skipped,
			actions_failed = excluded.actions_failed,
			ended_at = excluded.ended_at,
			updated_at = excluded.updated_at
	`, summary.ID, summary.UserID, string(settings), summary.Status, summary.Reason, summary.CurrentIndex,
		summary.TotalLeads, summary.CurrentLeadID, summary.PendingCount, summary.Stats.ActionsProcessed,
		summary.Stats.ActionsApplied, summary.Stats.ActionsSkipped, summary.Stats.ActionsFailed,
		summary.StartedAt.UTC(), summary.TimeboxDeadline.UTC(), summary.EndedAt, now)
	if err != nil {
		return storeErr(fmt.Errorf("failed to save session %s: %w", summary.ID, err))
	}

	for i, a := range actions {
		data, err := json.Marshal(a)
		if err != nil {
			return fmt.Errorf("failed to encode action %s: %w", a.ID, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO queued_actions (id, session_id, position, lead_id, status, data, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				status = excluded.status,
				data = excluded.data,
				updated_at = excluded.updated_at
		`, a.ID, summary.ID, i, a.LeadID, a.Status, string(data), now)
		if err != nil {
			return storeErr(fmt.Errorf("failed to save action %s: %w", a.ID, err))
		}
	}

	return storeErr(tx.Commit())
}

func GetSession(ctx context.Context, db *sql.DB, id string) (*models.SessionSummary, error) {
	row := db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM autopilot_sessions WHERE id = ?`, id)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", autopilot.ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, storeErr(err)
	}
	return s, nil
}

// ListSessions returns stored sessions newest first, optionally for one user.
func ListSessions(ctx context.Context, db *sql.DB, userID string, limit int) ([]models.SessionSummary, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + sessionColumns + ` FROM autopilot_sessions`
	var args []any
	if userID != "" {
		query += ` WHERE user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr(err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []models.SessionSummary
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

// GetSessionActions returns the stored queue of a session in insertion order.
func GetSessionActions(ctx context.Context, db *sql.DB, sessionID string) ([]models.QueuedAction, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT data FROM queued_actions WHERE session_id = ? ORDER BY position ASC
	`, sessionID)
	if err != nil {
		return nil, storeErr(err)
	}
	defer func() { _ = rows.Close() }()

	var actions []models.QueuedAction
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var a models.QueuedAction
		if err := json.Unmarshal([]byte(data), &a); err != nil {
			return nil, fmt.Errorf("failed to decode stored action: %w", err)
		}
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

func scanSession(row rowScanner) (*models.SessionSummary, error) {
	var s models.SessionSummary
	var settings string
	var reason, currentLead sql.NullString

	err := row.Scan(&s.ID, &s.UserID, &settings, &s.Status, &reason, &s.CurrentIndex, &s.TotalLeads,
		&currentLead, &s.PendingCount, &s.Stats.ActionsProcessed, &s.Stats.ActionsApplied,
		&s.Stats.ActionsSkipped, &s.Stats.ActionsFailed, &s.StartedAt, &s.TimeboxDeadline, &s.EndedAt)
	if err != nil {
		return nil, err
	}
	s.Reason = reason.String
	s.CurrentLeadID = currentLead.String
	if err := json.Unmarshal([]byte(settings), &s.Settings); err != nil {
		return nil, fmt.Errorf("failed to decode settings for session %s: %w", s.ID, err)
	}
	return &s, nil
}

// SessionStore adapts the session tables to autopilot.SessionRecorder.
type SessionStore struct {
	db *sql.DB
}

var _ autopilot.SessionRecorder = (*SessionStore)(nil)

func NewSessionStore(db *sql.DB) *SessionStore {
	return &SessionStore{db: db}
}

func (s *SessionStore) RecordSession(ctx context.Context, summary models.SessionSummary, actions []models.QueuedAction) error {
	return SaveSession(ctx, s.db, summary, actions)
}

func (s *SessionStore) List(ctx context.Context, userID string, limit int) ([]models.SessionSummary, error) {
	return ListSessions(ctx, s.db, userID, limit)
}

func (s *SessionStore) Get(ctx context.Context, id string) (*models.SessionSummary, []models.QueuedAction, error) {
	summary, err := GetSession(ctx, s.db, id)
	if err != nil {
		return nil, nil, err
	}
	actions, err := GetSessionActions(ctx, s.db, id)
	if err != nil {
		return nil, nil, err
	}
	return summary, actions, nil
}
