// ABOUTME: MCP resource handlers for exposing autopilot sessions and leads
// ABOUTME: Provides read-only JSON views addressed by leadpilot:// URIs
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/harperreed/leadpilot/autopilot"
	"github.com/harperreed/leadpilot/models"
)

const resourceScheme = "leadpilot://"

type ResourceHandlers struct {
	controller *autopilot.Controller
	leads      LeadRepository
}

func NewResourceHandlers(controller *autopilot.Controller, leads LeadRepository) *ResourceHandlers {
	return &ResourceHandlers{controller: controller, leads: leads}
}

// ReadResource handles resource read requests
func (h *ResourceHandlers) ReadResource(ctx context.Context, request *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	uri := request.Params.URI
	if !strings.HasPrefix(uri, resourceScheme) {
		return nil, fmt.Errorf("invalid URI scheme: expected %s", resourceScheme)
	}

	path := strings.TrimPrefix(uri, resourceScheme)
	parts := strings.Split(path, "/")

	switch parts[0] {
	case "sessions":
		if len(parts) == 1 || parts[1] == "" {
			return jsonResource(uri, map[string]any{"sessions": h.controller.Sessions("")})
		}
		return h.readSession(uri, parts[1])

	case "leads":
		if len(parts) < 2 || parts[1] == "" {
			return nil, fmt.Errorf("lead id is required")
		}
		lead, err := h.leads.Get(ctx, parts[1])
		if err != nil {
			return nil, fmt.Errorf("failed to fetch lead: %w", err)
		}
		return jsonResource(uri, lead)

	default:
		return nil, fmt.Errorf("unknown resource: %s", parts[0])
	}
}

func (h *ResourceHandlers) readSession(uri, id string) (*mcp.ReadResourceResult, error) {
	summary, err := h.controller.Status(id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch session: %w", err)
	}
	actions, err := h.controller.Queue(id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch queue: %w", err)
	}
	return jsonResource(uri, struct {
		Session models.SessionSummary `json:"session"`
		Actions []models.QueuedAction `json:"actions"`
	}{summary, actions})
}

func jsonResource(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal resource: %w", err)
	}
	return &mcp.ReadResourceResult{Contents: []*mcp.ResourceContents{
		{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}}, nil
}
