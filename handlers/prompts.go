// ABOUTME: MCP prompt handlers for reviewing autopilot output
// ABOUTME: Builds review-queue and lead-briefing prompts from live session state
package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/harperreed/leadpilot/autopilot"
	"github.com/harperreed/leadpilot/models"
)

type PromptHandlers struct {
	controller *autopilot.Controller
	leads      LeadRepository
}

func NewPromptHandlers(controller *autopilot.Controller, leads LeadRepository) *PromptHandlers {
	return &PromptHandlers{controller: controller, leads: leads}
}

// GetPrompt generates the prompt message based on the template
func (h *PromptHandlers) GetPrompt(ctx context.Context, request *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	name := request.Params.Name
	arguments := request.Params.Arguments
	switch name {
	case "review-queue":
		return h.getReviewQueuePrompt(arguments)
	case "lead-briefing":
		return h.getLeadBriefingPrompt(ctx, arguments)
	default:
		return nil, fmt.Errorf("unknown prompt: %s", name)
	}
}

func (h *PromptHandlers) getReviewQueuePrompt(args map[string]string) (*mcp.GetPromptResult, error) {
	sessionID, ok := args["session_id"]
	if !ok || sessionID == "" {
		return nil, fmt.Errorf("session_id is required")
	}

	summary, err := h.controller.Status(sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch session: %w", err)
	}
	actions, err := h.controller.Queue(sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch queue: %w", err)
	}

	var promptText strings.Builder
	promptText.WriteString("Please help me review the pending actions from this autopilot run:\n\n")
	promptText.WriteString(fmt.Sprintf("Session: %s (%s)\n", summary.ID, summary.Status))
	promptText.WriteString(fmt.Sprintf("Leads processed: %d of %d\n", summary.CurrentIndex, summary.TotalLeads))

	pending := 0
	for _, a := range actions {
		if a.Status != models.StatusPending {
			continue
		}
		pending++
		promptText.WriteString(fmt.Sprintf("\n%d. [%s] %s for %s (confidence %d%%)\n", pending, a.Type, a.Description, a.LeadName, a.Confidence))
		if a.ApprovalReason != "" {
			promptText.WriteString(fmt.Sprintf("   Needs approval: %s\n", a.ApprovalReason))
		}
		if a.Message != "" {
			promptText.WriteString(fmt.Sprintf("   Draft message: %s\n", a.Message))
		}
		for _, v := range a.Violations {
			promptText.WriteString(fmt.Sprintf("   Compliance %s: %q (%s). Suggest: %s\n", v.Severity, v.Phrase, v.Rule, v.Suggestion))
		}
		promptText.WriteString(fmt.Sprintf("   Action ID: %s\n", a.ID))
	}
	if pending == 0 {
		promptText.WriteString("\nThere are no pending actions.\n")
	}

	promptText.WriteString("\nFor each pending action, recommend apply, edit or skip and explain why.")
	promptText.WriteString("\nNever recommend applying an action with a compliance error.")

	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Review queue for session %s", summary.ID),
		Messages: []*mcp.PromptMessage{
			{
				Role: "user",
				Content: &mcp.TextContent{
					Text: promptText.String(),
				},
			},
		},
	}, nil
}

func (h *PromptHandlers) getLeadBriefingPrompt(ctx context.Context, args map[string]string) (*mcp.GetPromptResult, error) {
	leadID, ok := args["lead_id"]
	if !ok || leadID == "" {
		return nil, fmt.Errorf("lead_id is required")
	}

	lead, err := h.leads.Get(ctx, leadID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch lead: %w", err)
	}

	var promptText strings.Builder
	promptText.WriteString("Please prepare a short call briefing for this insurance lead:\n\n")
	promptText.WriteString(fmt.Sprintf("Name: %s\n", lead.Name))
	promptText.WriteString(fmt.Sprintf("Temperature: %s\n", lead.Temperature))
	if lead.Location != "" {
		promptText.WriteString(fmt.Sprintf("Location: %s\n", lead.Location))
	}
	if len(lead.ProductInterest) > 0 {
		promptText.WriteString(fmt.Sprintf("Interested in: %s\n", strings.Join(lead.ProductInterest, ", ")))
	}
	if len(lead.Tags) > 0 {
		promptText.WriteString(fmt.Sprintf("Tags: %s\n", strings.Join(lead.Tags, ", ")))
	}
	if lead.LastInteractionSummary != "" {
		promptText.WriteString(fmt.Sprintf("Last interaction: %s\n", lead.LastInteractionSummary))
	}
	if lead.Notes != "" {
		promptText.WriteString(fmt.Sprintf("\nNotes: %s\n", lead.Notes))
	}

	promptText.WriteString("\nPlease provide:")
	promptText.WriteString("\n1. Two talking points tailored to their interests")
	promptText.WriteString("\n2. Likely objections and how to answer them")
	promptText.WriteString("\n3. A compliant next step (no promises of guaranteed or risk-free returns)")

	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Briefing for lead: %s", lead.Name),
		Messages: []*mcp.PromptMessage{
			{
				Role: "user",
				Content: &mcp.TextContent{
					Text: promptText.String(),
				},
			},
		},
	}, nil
}
