// ABOUTME: Lead MCP tool handlers
// ABOUTME: Implements add_lead, find_leads and update_lead tools
package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/harperreed/leadpilot/db"
	"github.com/harperreed/leadpilot/models"
)

// LeadRepository is the lead surface the tools need; db.CachedLeadStore satisfies it.
type LeadRepository interface {
	Get(ctx context.Context, id string) (*models.Lead, error)
	List(ctx context.Context, filter db.LeadFilter) ([]models.Lead, error)
	Create(ctx context.Context, lead *models.Lead) error
	Update(ctx context.Context, id string, fields map[string]any, info models.UpdateInfo) (*models.Lead, error)
}

type LeadHandlers struct {
	leads LeadRepository
}

func NewLeadHandlers(leads LeadRepository) *LeadHandlers {
	return &LeadHandlers{leads: leads}
}

type AddLeadInput struct {
	Name                  string   `json:"name" jsonschema:"Lead name (required)"`
	Email                 string   `json:"email,omitempty" jsonschema:"Lead email address"`
	Phone                 string   `json:"phone,omitempty" jsonschema:"Lead phone number"`
	Location              string   `json:"location,omitempty" jsonschema:"City or region"`
	Temperature           string   `json:"temperature,omitempty" jsonschema:"hot, warm or cold (default warm)"`
	Tags                  []string `json:"tags,omitempty" jsonschema:"Tags such as renewal-due"`
	ProductInterest       []string `json:"product_interest,omitempty" jsonschema:"Products the lead asked about"`
	Premium               float64  `json:"premium,omitempty" jsonschema:"Expected annual premium"`
	ConversionProbability float64  `json:"conversion_probability,omitempty" jsonschema:"Estimated probability of conversion (0-1)"`
	Notes                 string   `json:"notes,omitempty" jsonschema:"Free-form notes"`
	AssignedTo            string   `json:"assigned_to,omitempty" jsonschema:"Owning agent user ID"`
}

type FindLeadsInput struct {
	Query       string `json:"query,omitempty" jsonschema:"Search text matched against name, email and location"`
	Temperature string `json:"temperature,omitempty" jsonschema:"hot, warm or cold"`
	Tag         string `json:"tag,omitempty" jsonschema:"Only leads carrying this tag"`
	AssignedTo  string `json:"assigned_to,omitempty" jsonschema:"Owning agent user ID"`
	Limit       int    `json:"limit,omitempty" jsonschema:"Maximum results to return (default 10)"`
}

type UpdateLeadInput struct {
	ID     string         `json:"id" jsonschema:"Lead ID (required)"`
	UserID string         `json:"user_id" jsonschema:"Agent making the change (required)"`
	Fields map[string]any `json:"fields" jsonschema:"Fields to set, keyed by lead JSON name (temperature, tag, notes, nextFollowUpAt, ...)"`
}

type LeadOutput struct {
	ID                     string   `json:"id"`
	Name                   string   `json:"name"`
	Email                  string   `json:"email,omitempty"`
	Phone                  string   `json:"phone,omitempty"`
	Location               string   `json:"location,omitempty"`
	Temperature            string   `json:"temperature"`
	Tags                   []string `json:"tags"`
	ProductInterest        []string `json:"product_interest"`
	Premium                float64  `json:"premium,omitempty"`
	ConversionProbability  float64  `json:"conversion_probability,omitempty"`
	LastInteractionSummary string   `json:"last_interaction_summary,omitempty"`
	LastInteractionDate    *string  `json:"last_interaction_date,omitempty"`
	NextFollowUpAt         *string  `json:"next_follow_up_at,omitempty"`
	Notes                  string   `json:"notes,omitempty"`
	AssignedTo             string   `json:"assigned_to,omitempty"`
	Version                int64    `json:"version"`
	UpdatedAt              string   `json:"updated_at"`
}

type FindLeadsOutput struct {
	Leads []LeadOutput `json:"leads"`
	Count int          `json:"count"`
}

func (h *LeadHandlers) AddLead(ctx context.Context, _ *mcp.CallToolRequest, input AddLeadInput) (*mcp.CallToolResult, LeadOutput, error) {
	if input.Name == "" {
		return nil, LeadOutput{}, fmt.Errorf("name is required")
	}

	lead := &models.Lead{
		Name:                  input.Name,
		Email:                 input.Email,
		Phone:                 input.Phone,
		Location:              input.Location,
		Temperature:           input.Temperature,
		Tags:                  input.Tags,
		ProductInterest:       input.ProductInterest,
		Premium:               input.Premium,
		ConversionProbability: input.ConversionProbability,
		Notes:                 input.Notes,
		AssignedTo:            input.AssignedTo,
	}
	if err := h.leads.Create(ctx, lead); err != nil {
		return nil, LeadOutput{}, fmt.Errorf("failed to create lead: %w", err)
	}
	return &mcp.CallToolResult{}, leadToOutput(lead), nil
}

func (h *LeadHandlers) FindLeads(ctx context.Context, _ *mcp.CallToolRequest, input FindLeadsInput) (*mcp.CallToolResult, FindLeadsOutput, error) {
	limit := input.Limit
	if limit == 0 {
		limit = 10
	}

	leads, err := h.leads.List(ctx, db.LeadFilter{
		Query:       input.Query,
		Temperature: input.Temperature,
		Tag:         input.Tag,
		AssignedTo:  input.AssignedTo,
		Limit:       limit,
	})
	if err != nil {
		return nil, FindLeadsOutput{}, fmt.Errorf("failed to find leads: %w", err)
	}

	out := make([]LeadOutput, len(leads))
	for i := range leads {
		out[i] = leadToOutput(&leads[i])
	}
	return &mcp.CallToolResult{}, FindLeadsOutput{Leads: out, Count: len(out)}, nil
}

// UpdateLead writes fields directly, outside any autopilot session.
func (h *LeadHandlers) UpdateLead(ctx context.Context, _ *mcp.CallToolRequest, input UpdateLeadInput) (*mcp.CallToolResult, LeadOutput, error) {
	if input.ID == "" {
		return nil, LeadOutput{}, fmt.Errorf("id is required")
	}
	if input.UserID == "" {
		return nil, LeadOutput{}, fmt.Errorf("user_id is required")
	}
	if len(input.Fields) == 0 {
		return nil, LeadOutput{}, fmt.Errorf("fields is required")
	}

	lead, err := h.leads.Update(ctx, input.ID, input.Fields, models.UpdateInfo{
		UserID: input.UserID,
		Source: models.SourceManual,
	})
	if err != nil {
		return nil, LeadOutput{}, fmt.Errorf("failed to update lead: %w", err)
	}
	return &mcp.CallToolResult{}, leadToOutput(lead), nil
}

func leadToOutput(l *models.Lead) LeadOutput {
	out := LeadOutput{
		ID:                     l.ID,
		Name:                   l.Name,
		Email:                  l.Email,
		Phone:                  l.Phone,
		Location:               l.Location,
		Temperature:            l.Temperature,
		Tags:                   l.Tags,
		ProductInterest:        l.ProductInterest,
		Premium:                l.Premium,
		ConversionProbability:  l.ConversionProbability,
		LastInteractionSummary: l.LastInteractionSummary,
		Notes:                  l.Notes,
		AssignedTo:             l.AssignedTo,
		Version:                l.Version,
		UpdatedAt:              l.UpdatedAt.Format(time.RFC3339),
	}
	if out.Tags == nil {
		out.Tags = []string{}
	}
	if out.ProductInterest == nil {
		out.ProductInterest = []string{}
	}
	if l.LastInteractionDate != nil {
		s := l.LastInteractionDate.Format(time.RFC3339)
		out.LastInteractionDate = &s
	}
	if l.NextFollowUpAt != nil {
		s := l.NextFollowUpAt.Format(time.RFC3339)
		out.NextFollowUpAt = &s
	}
	return out
}
