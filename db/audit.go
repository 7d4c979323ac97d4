// ABOUTME: Append-only SQL audit log for autopilot decisions
// ABOUTME: Supports filtered review queries by date, agent, type, compliance and source
package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/harperreed/leadpilot/autopilot"
	"github.com/harperreed/leadpilot/models"
)

const auditColumns = `id, session_id, action_id, user_id, action_type, entity_type, entity_id, changes,
	source, ai_confidence, ai_reasoning, user_decision, action_status, compliance_status, reason, created_at`

func AppendAuditEntry(ctx context.Context, db *sql.DB, entry *models.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = autopilot.NewAuditID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	entry.CreatedAt = entry.CreatedAt.UTC()

	var changes *string
	if len(entry.Changes) > 0 {
		data, err := json.Marshal(entry.Changes)
		if err != nil {
			return fmt.Errorf("failed to encode audit changes: %w", err)
		}
		s := string(data)
		changes = &s
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO audit_log (`+auditColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, entry.ID, entry.SessionID, entry.ActionID, entry.UserID, entry.ActionType, entry.EntityType,
		entry.EntityID, changes, entry.Source, entry.AIConfidence, entry.AIReasoning, entry.UserDecision,
		entry.ActionStatus, entry.ComplianceStatus, entry.Reason, entry.CreatedAt)
	if err != nil {
		return storeErr(fmt.Errorf("failed to append audit entry: %w", err))
	}
	return nil
}

// QueryAuditLog returns matching entries, newest first.
func QueryAuditLog(ctx context.Context, db *sql.DB, filter models.AuditFilter) ([]models.AuditEntry, error) {
	var where []string
	var args []any
	add := func(clause string, arg any) {
		where = append(where, clause)
		args = append(args, arg)
	}

	if filter.From != nil {
		add("created_at >= ?", filter.From.UTC())
	}
	if filter.To != nil {
		add("created_at <= ?", filter.To.UTC())
	}
	if filter.Agent != "" {
		add("user_id = ?", filter.Agent)
	}
	if filter.ActionType != "" {
		add("action_type = ?", filter.ActionType)
	}
	if filter.ComplianceStatus != "" {
		add("compliance_status = ?", filter.ComplianceStatus)
	}
	if filter.Source != "" {
		add("source = ?", filter.Source)
	}
	if filter.SessionID != "" {
		add("session_id = ?", filter.SessionID)
	}
	if filter.EntityID != "" {
		add("entity_id = ?", filter.EntityID)
	}

	query := `SELECT ` + auditColumns + ` FROM audit_log`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr(err)
	}
	defer func() { _ = rows.Close() }()

	var entries []models.AuditEntry
	for rows.Next() {
		var e models.AuditEntry
		var sessionID, actionID, changes, reasoning, actionStatus, reason sql.NullString
		var confidence sql.NullInt64

		if err := rows.Scan(&e.ID, &sessionID, &actionID, &e.UserID, &e.ActionType, &e.EntityType,
			&e.EntityID, &changes, &e.Source, &confidence, &reasoning, &e.UserDecision,
			&actionStatus, &e.ComplianceStatus, &reason, &e.CreatedAt); err != nil {
			return nil, err
		}

		e.SessionID = sessionID.String
		e.ActionID = actionID.String
		e.ActionStatus = actionStatus.String
		e.Reason = reason.String
		if confidence.Valid {
			c := int(confidence.Int64)
			e.AIConfidence = &c
		}
		if reasoning.Valid {
			r := reasoning.String
			e.AIReasoning = &r
		}
		if changes.Valid && changes.String != "" {
			if err := json.Unmarshal([]byte(changes.String), &e.Changes); err != nil {
				return nil, fmt.Errorf("failed to decode changes for audit entry %s: %w", e.ID, err)
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// AuditStore adapts the audit table to autopilot.AuditLog.
type AuditStore struct {
	db *sql.DB
}

var _ autopilot.AuditLog = (*AuditStore)(nil)

func NewAuditStore(db *sql.DB) *AuditStore {
	return &AuditStore{db: db}
}

func (s *AuditStore) Append(ctx context.Context, entry *models.AuditEntry) error {
	return AppendAuditEntry(ctx, s.db, entry)
}

func (s *AuditStore) Query(ctx context.Context, filter models.AuditFilter) ([]models.AuditEntry, error) {
	return QueryAuditLog(ctx, s.db, filter)
}
