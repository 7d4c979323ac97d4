// ABOUTME: Approval policy deciding whether a proposed action may auto-apply
// ABOUTME: Compliance veto beats the confidence threshold, which beats the category flag
package autopilot

import "github.com/harperreed/leadpilot/models"

// RequiresApproval reports whether an action must wait for a human, and why.
func RequiresApproval(actionType string, confidence int, complianceStatus string, settings models.RunSettings) (bool, string) {
	if complianceStatus == models.ComplianceFlagged {
		return true, models.ApprovalReasonCompliance
	}
	if confidence < settings.ConfidenceThreshold {
		return true, models.ApprovalReasonLowConfidence
	}
	if !CategoryEnabled(actionType, settings) {
		return true, models.ApprovalReasonCategoryDisabled
	}
	return false, ""
}

// CategoryEnabled maps an action type to its auto-apply flag.
// Messages are gated by AutoSendMessages; every CRM write by AutoApplyCRMUpdates.
func CategoryEnabled(actionType string, settings models.RunSettings) bool {
	switch actionType {
	case models.ActionMessage:
		return settings.AutoSendMessages
	case models.ActionCRMUpdate, models.ActionTag, models.ActionReminder:
		return settings.AutoApplyCRMUpdates
	default:
		return false
	}
}
