// ABOUTME: Compliance MCP tool handler
// ABOUTME: Implements check_compliance over the IRDAI phrase rules
package handlers

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/harperreed/leadpilot/compliance"
	"github.com/harperreed/leadpilot/models"
)

type ComplianceHandlers struct {
	checker *compliance.Checker
}

func NewComplianceHandlers(checker *compliance.Checker) *ComplianceHandlers {
	return &ComplianceHandlers{checker: checker}
}

type CheckComplianceInput struct {
	Content string `json:"content" jsonschema:"Message or note text to check (required)"`
}

type CheckComplianceOutput struct {
	IsCompliant      bool                         `json:"is_compliant"`
	ComplianceStatus string                       `json:"compliance_status"`
	Violations       []models.ComplianceViolation `json:"violations"`
	SafeAlternative  string                       `json:"safe_alternative"`
}

func (h *ComplianceHandlers) CheckCompliance(_ context.Context, _ *mcp.CallToolRequest, input CheckComplianceInput) (*mcp.CallToolResult, CheckComplianceOutput, error) {
	if input.Content == "" {
		return nil, CheckComplianceOutput{}, fmt.Errorf("content is required")
	}

	violations := h.checker.Check(input.Content)
	if violations == nil {
		violations = []models.ComplianceViolation{}
	}
	status := models.ComplianceStatusFor(violations)

	return &mcp.CallToolResult{}, CheckComplianceOutput{
		IsCompliant:      status == models.ComplianceSafe,
		ComplianceStatus: status,
		Violations:       violations,
		SafeAlternative:  h.checker.SafeAlternative(input.Content),
	}, nil
}
