// ABOUTME: MCP server subcommand
// ABOUTME: Exposes autopilot, lead and compliance tools to MCP clients over stdio
package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/harperreed/leadpilot/autopilot"
	"github.com/harperreed/leadpilot/compliance"
	"github.com/harperreed/leadpilot/handlers"
	"github.com/harperreed/leadpilot/models"
)

// MCPDeps are the collaborators the MCP tools call into.
type MCPDeps struct {
	Controller *autopilot.Controller
	Leads      handlers.LeadRepository
	Checker    *compliance.Checker
	Settings   handlers.SettingsSource
	Defaults   models.RunSettings
	Version    string
}

// NewMCPServer registers every leadpilot tool, resource and prompt.
func NewMCPServer(deps MCPDeps) *mcp.Server {
	autopilotHandlers := handlers.NewAutopilotHandlers(deps.Controller, deps.Settings, deps.Defaults)
	leadHandlers := handlers.NewLeadHandlers(deps.Leads)
	complianceHandlers := handlers.NewComplianceHandlers(deps.Checker)
	resourceHandlers := handlers.NewResourceHandlers(deps.Controller, deps.Leads)
	promptHandlers := handlers.NewPromptHandlers(deps.Controller, deps.Leads)

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "leadpilot",
		Version: deps.Version,
	}, nil)

	// Autopilot session tools
	mcp.AddTool(server, &mcp.Tool{
		Name:        "start_autopilot",
		Description: "Start an autopilot run over the given leads. Unset flags fall back to the agent's last-used settings",
	}, autopilotHandlers.StartAutopilot)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "pause_autopilot",
		Description: "Pause a running autopilot session; the lead being processed is retried on resume",
	}, autopilotHandlers.PauseAutopilot)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "resume_autopilot",
		Description: "Resume a paused autopilot session",
	}, autopilotHandlers.ResumeAutopilot)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "abort_autopilot",
		Description: "Abort an autopilot session. Pending actions can no longer be decided",
	}, autopilotHandlers.AbortAutopilot)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "autopilot_status",
		Description: "Get progress, counters and timebox deadline for a session",
	}, autopilotHandlers.AutopilotStatus)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "autopilot_queue",
		Description: "List the actions a session has proposed, optionally filtered by status",
	}, autopilotHandlers.AutopilotQueue)

	// Decision tools
	mcp.AddTool(server, &mcp.Tool{
		Name:        "apply_action",
		Description: "Apply a pending action, optionally with field modifications. Compliance errors block the apply",
	}, autopilotHandlers.ApplyAction)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "skip_action",
		Description: "Skip a pending action with an optional reason",
	}, autopilotHandlers.SkipAction)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "edit_action",
		Description: "Revise a pending action with modifications, or regenerate it when no modifications are given",
	}, autopilotHandlers.EditAction)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "query_audit",
		Description: "Query the audit log by time window, agent, action type, compliance status, source, session or lead",
	}, autopilotHandlers.QueryAudit)

	// Compliance and lead tools
	mcp.AddTool(server, &mcp.Tool{
		Name:        "check_compliance",
		Description: "Check text for insurance compliance violations and suggest a safe rewrite",
	}, complianceHandlers.CheckCompliance)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "add_lead",
		Description: "Add a new lead",
	}, leadHandlers.AddLead)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "find_leads",
		Description: "Search leads by name, location or temperature",
	}, leadHandlers.FindLeads)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "update_lead",
		Description: "Update lead fields; the change is recorded in the audit log as a manual edit",
	}, leadHandlers.UpdateLead)

	// Resources
	server.AddResource(&mcp.Resource{
		URI:         "leadpilot://sessions",
		Name:        "sessions",
		Description: "Autopilot sessions started by this server",
		MIMEType:    "application/json",
	}, resourceHandlers.ReadResource)

	server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: "leadpilot://sessions/{id}",
		Name:        "session",
		Description: "One autopilot session with its queued actions",
		MIMEType:    "application/json",
	}, resourceHandlers.ReadResource)

	server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: "leadpilot://leads/{id}",
		Name:        "lead",
		Description: "One lead record",
		MIMEType:    "application/json",
	}, resourceHandlers.ReadResource)

	// Prompts
	server.AddPrompt(&mcp.Prompt{
		Name:        "review-queue",
		Description: "Walk through the pending actions of an autopilot session",
		Arguments: []*mcp.PromptArgument{
			{Name: "session_id", Description: "Session to review", Required: true},
		},
	}, promptHandlers.GetPrompt)

	server.AddPrompt(&mcp.Prompt{
		Name:        "lead-briefing",
		Description: "Prepare a call briefing for one lead",
		Arguments: []*mcp.PromptArgument{
			{Name: "lead_id", Description: "Lead to brief", Required: true},
		},
	}, promptHandlers.GetPrompt)

	return server
}

// MCPCommand starts the MCP server on stdio
func MCPCommand(app *App, version string) error {
	app.Logger.Info("starting MCP server", "version", version)

	server := NewMCPServer(MCPDeps{
		Controller: app.Controller,
		Leads:      app.Leads,
		Checker:    app.Checker,
		Settings:   settingsSource(app.Logger),
		Defaults:   app.Config.Defaults,
		Version:    version,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return server.Run(ctx, &mcp.StdioTransport{})
}
