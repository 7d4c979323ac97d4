// ABOUTME: Database schema definitions and migrations
// ABOUTME: Handles SQLite table creation for leads, audit log and autopilot sessions
package db

import (
	"database/sql"
)

const schema = `
CREATE TABLE IF NOT EXISTS leads (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	email TEXT,
	phone TEXT,
	location TEXT,
	temperature TEXT NOT NULL DEFAULT 'warm' CHECK(temperature IN ('hot', 'warm', 'cold')),
	tags TEXT NOT NULL DEFAULT '[]',
	product_interest TEXT NOT NULL DEFAULT '[]',
	premium REAL NOT NULL DEFAULT 0,
	conversion_probability REAL NOT NULL DEFAULT 0,
	last_interaction_summary TEXT,
	last_interaction_date DATETIME,
	next_follow_up_at DATETIME,
	notes TEXT,
	assigned_to TEXT,
	version INTEGER NOT NULL DEFAULT 1,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_leads_name ON leads(name);
CREATE INDEX IF NOT EXISTS idx_leads_temperature ON leads(temperature);
CREATE INDEX IF NOT EXISTS idx_leads_assigned_to ON leads(assigned_to);

CREATE TABLE IF NOT EXISTS audit_log (
	id TEXT PRIMARY KEY,
	session_id TEXT,
	action_id TEXT,
	user_id TEXT NOT NULL,
	action_type TEXT NOT NULL,
	entity_type TEXT NOT NULL,
	entity_id TEXT NOT NULL,
	changes TEXT,
	source TEXT NOT NULL CHECK(source IN ('manual', 'autopilot', 'ai')),
	ai_confidence INTEGER,
	ai_reasoning TEXT,
	user_decision TEXT NOT NULL,
	action_status TEXT,
	compliance_status TEXT NOT NULL CHECK(compliance_status IN ('safe', 'flagged')),
	reason TEXT,
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_log_session ON audit_log(session_id);
CREATE INDEX IF NOT EXISTS idx_audit_log_entity ON audit_log(entity_type, entity_id);
CREATE INDEX IF NOT EXISTS idx_audit_log_created_at ON audit_log(created_at DESC);

CREATE TRIGGER IF NOT EXISTS audit_log_no_update BEFORE UPDATE ON audit_log
BEGIN
	SELECT RAISE(ABORT, 'audit_log is append-only');
END;

CREATE TRIGGER IF NOT EXISTS audit_log_no_delete BEFORE DELETE ON audit_log
BEGIN
	SELECT RAISE(ABORT, 'audit_log is append-only');
END;

CREATE TABLE IF NOT EXISTS autopilot_sessions (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	settings TEXT NOT NULL,
	status TEXT NOT NULL CHECK(status IN ('running', 'paused', 'aborted', 'completed')),
	reason TEXT,
	current_index INTEGER NOT NULL DEFAULT 0,
	total_leads INTEGER NOT NULL DEFAULT 0,
	current_lead_id TEXT,
	pending_count INTEGER NOT NULL DEFAULT 0,
	actions_processed INTEGER NOT NULL DEFAULT 0,
	actions_applied INTEGER NOT NULL DEFAULT 0,
	actions_skipped INTEGER NOT NULL DEFAULT 0,
	actions_failed INTEGER NOT NULL DEFAULT 0,
	started_at DATETIME NOT NULL,
	timebox_deadline DATETIME NOT NULL,
	ended_at DATETIME,
	updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_autopilot_sessions_user ON autopilot_sessions(user_id, started_at DESC);

CREATE TABLE IF NOT EXISTS queued_actions (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	position INTEGER NOT NULL,
	lead_id TEXT NOT NULL,
	status TEXT NOT NULL CHECK(status IN ('pending', 'applied', 'skipped', 'failed')),
	data TEXT NOT NULL,
	updated_at DATETIME NOT NULL,
	FOREIGN KEY (session_id) REFERENCES autopilot_sessions(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_queued_actions_session ON queued_actions(session_id, position);
CREATE INDEX IF NOT EXISTS idx_queued_actions_lead ON queued_actions(lead_id);
`

func InitSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
