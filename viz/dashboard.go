// ABOUTME: Terminal dashboard statistics and rendering
// ABOUTME: Summarizes the lead pipeline and recent autopilot activity as plain text
package viz

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/harperreed/leadpilot/db"
	"github.com/harperreed/leadpilot/models"
)

const (
	staleAfter     = 30 * 24 * time.Hour
	activityWindow = 7 * 24 * time.Hour
	maxDashLeads   = 10000
)

// Sources are the read-only stores the dashboard draws from.
type Sources struct {
	Leads interface {
		List(ctx context.Context, filter db.LeadFilter) ([]models.Lead, error)
	}
	Audit interface {
		Query(ctx context.Context, filter models.AuditFilter) ([]models.AuditEntry, error)
	}
	Sessions interface {
		List(ctx context.Context, userID string, limit int) ([]models.SessionSummary, error)
	}
}

type DashboardStats struct {
	// Pipeline overview
	PipelineByTemperature map[string]PipelineStats

	TotalLeads int

	// Audit decisions in the last 7 days, by decision
	DecisionsBySource map[string]map[string]int
	FlaggedProposals  int

	RecentSessions []models.SessionSummary

	// Needs attention
	StaleLeads   []StaleLead
	OverdueLeads []StaleLead
}

type PipelineStats struct {
	Temperature string
	Count       int
	Premium     float64
}

type StaleLead struct {
	Name      string
	DaysSince int
}

// GenerateDashboardStats gathers stats as of now.
func GenerateDashboardStats(ctx context.Context, src Sources, now time.Time) (*DashboardStats, error) {
	stats := &DashboardStats{
		PipelineByTemperature: make(map[string]PipelineStats),
		DecisionsBySource:     make(map[string]map[string]int),
	}

	leads, err := src.Leads.List(ctx, db.LeadFilter{Limit: maxDashLeads})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch leads: %w", err)
	}
	stats.TotalLeads = len(leads)

	for _, lead := range leads {
		p := stats.PipelineByTemperature[lead.Temperature]
		p.Temperature = lead.Temperature
		p.Count++
		p.Premium += lead.Premium
		stats.PipelineByTemperature[lead.Temperature] = p

		switch {
		case lead.LastInteractionDate == nil:
			stats.StaleLeads = append(stats.StaleLeads, StaleLead{Name: lead.Name, DaysSince: -1})
		case now.Sub(*lead.LastInteractionDate) > staleAfter:
			stats.StaleLeads = append(stats.StaleLeads, StaleLead{
				Name:      lead.Name,
				DaysSince: int(now.Sub(*lead.LastInteractionDate).Hours() / 24),
			})
		}
		if lead.NextFollowUpAt != nil && lead.NextFollowUpAt.Before(now) {
			stats.OverdueLeads = append(stats.OverdueLeads, StaleLead{
				Name:      lead.Name,
				DaysSince: int(now.Sub(*lead.NextFollowUpAt).Hours() / 24),
			})
		}
	}

	from := now.Add(-activityWindow)
	entries, err := src.Audit.Query(ctx, models.AuditFilter{From: &from, Limit: maxDashLeads})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch audit log: %w", err)
	}
	for _, e := range entries {
		bySource := stats.DecisionsBySource[e.Source]
		if bySource == nil {
			bySource = make(map[string]int)
			stats.DecisionsBySource[e.Source] = bySource
		}
		bySource[e.UserDecision]++
		if e.UserDecision == models.DecisionProposed && e.ComplianceStatus == models.ComplianceFlagged {
			stats.FlaggedProposals++
		}
	}

	if src.Sessions != nil {
		stats.RecentSessions, err = src.Sessions.List(ctx, "", 5)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch sessions: %w", err)
		}
	}

	return stats, nil
}

func RenderDashboard(stats *DashboardStats) string {
	var out strings.Builder

	// Header
	out.WriteString("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
	out.WriteString("  LEADPILOT DASHBOARD\n")
	out.WriteString("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

	out.WriteString("PIPELINE\n")
	renderPipeline(&out, stats.PipelineByTemperature)
	out.WriteString(fmt.Sprintf("  %d leads total\n\n", stats.TotalLeads))

	out.WriteString("LAST 7 DAYS\n")
	if len(stats.DecisionsBySource) == 0 {
		out.WriteString("  No activity\n")
	}
	sources := make([]string, 0, len(stats.DecisionsBySource))
	for s := range stats.DecisionsBySource {
		sources = append(sources, s)
	}
	sort.Strings(sources)
	for _, source := range sources {
		decisions := stats.DecisionsBySource[source]
		var parts []string
		for _, d := range []string{models.DecisionProposed, models.DecisionApplied, models.DecisionEdited, models.DecisionSkipped, models.DecisionFailed} {
			if n := decisions[d]; n > 0 {
				parts = append(parts, fmt.Sprintf("%d %s", n, d))
			}
		}
		out.WriteString(fmt.Sprintf("  %-10s %s\n", source, strings.Join(parts, ", ")))
	}
	if stats.FlaggedProposals > 0 {
		out.WriteString(fmt.Sprintf("  🚫 %d proposals blocked by compliance\n", stats.FlaggedProposals))
	}
	out.WriteString("\n")

	if len(stats.RecentSessions) > 0 {
		out.WriteString("RECENT SESSIONS\n")
		for _, s := range stats.RecentSessions {
			out.WriteString(fmt.Sprintf("  %s  %-9s %s  %d/%d leads, %d applied, %d pending\n",
				s.StartedAt.Local().Format("Jan 02 15:04"), s.Status, s.UserID,
				s.CurrentIndex, s.TotalLeads, s.Stats.ActionsApplied, s.PendingCount))
		}
		out.WriteString("\n")
	}

	// Needs attention
	if len(stats.StaleLeads) > 0 || len(stats.OverdueLeads) > 0 {
		out.WriteString("NEEDS ATTENTION\n")

		if len(stats.OverdueLeads) > 0 {
			out.WriteString(fmt.Sprintf("  ⏰ %d leads - follow-up overdue\n", len(stats.OverdueLeads)))
		}
		if len(stats.StaleLeads) > 0 {
			out.WriteString(fmt.Sprintf("  ⚠️  %d leads - no interaction in 30+ days\n", len(stats.StaleLeads)))
		}
	}

	return out.String()
}

func renderPipeline(out *strings.Builder, pipeline map[string]PipelineStats) {
	temperatures := []string{
		models.TemperatureHot,
		models.TemperatureWarm,
		models.TemperatureCold,
	}

	// Find max count for scaling
	maxCount := 0
	for _, p := range pipeline {
		if p.Count > maxCount {
			maxCount = p.Count
		}
	}
	if maxCount == 0 {
		maxCount = 1
	}

	for _, t := range temperatures {
		p, exists := pipeline[t]
		if !exists {
			continue
		}

		// Calculate bar length (0-10 blocks)
		barLength := (p.Count * 10) / maxCount
		bar := strings.Repeat("█", barLength) + strings.Repeat("░", 10-barLength)

		out.WriteString(fmt.Sprintf("  %-6s %s  %2d (₹%.0fK premium)\n",
			t, bar, p.Count, p.Premium/1000))
	}
}
