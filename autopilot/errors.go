// ABOUTME: Sentinel errors for autopilot sessions and queued actions
// ABOUTME: Callers map these to HTTP status codes and MCP tool errors
package autopilot

import "errors"

var (
	// ErrInvalidState is returned for a decision on a non-pending action or an aborted session.
	ErrInvalidState = errors.New("invalid state")

	ErrSessionNotFound     = errors.New("session not found")
	ErrActionNotFound      = errors.New("action not found")
	ErrInvalidSettings     = errors.New("invalid run settings")
	ErrInvalidModification = errors.New("invalid modification")

	// ErrComplianceBlocked is returned when an action to apply carries an error-severity violation.
	ErrComplianceBlocked = errors.New("blocked by compliance check")
	// ErrStoreUnavailable marks a lead store that cannot be reached at all; it aborts the session.
	ErrStoreUnavailable = errors.New("lead store unavailable")
	// ErrComplianceCheckerFailed is fatal to a session's processing loop.
	ErrComplianceCheckerFailed = errors.New("compliance checker failed")
)
