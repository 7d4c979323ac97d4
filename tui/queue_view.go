package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/harperreed/leadpilot/models"
)

func queueColumns() []table.Column {
	return []table.Column{
		{Title: "Lead", Width: 20},
		{Title: "Type", Width: 10},
		{Title: "Action", Width: 36},
		{Title: "Conf", Width: 5},
		{Title: "Compliance", Width: 10},
		{Title: "Status", Width: 8},
	}
}

func queueRows(actions []models.QueuedAction) []table.Row {
	rows := make([]table.Row, 0, len(actions))
	for _, a := range actions {
		rows = append(rows, table.Row{
			a.LeadName,
			a.Type,
			truncate(a.Description, 36),
			fmt.Sprintf("%d%%", a.Confidence),
			a.ComplianceStatus,
			a.Status,
		})
	}
	return rows
}

func (m Model) renderQueueView() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render("LEADPILOT AUTOPILOT"))
	s.WriteString("\n")
	s.WriteString(m.renderSummary())
	s.WriteString("\n\n")

	if len(m.actions) == 0 {
		s.WriteString("No actions proposed yet.")
	} else {
		s.WriteString(m.table.View())
	}
	s.WriteString("\n")

	s.WriteString(m.renderFooter())
	s.WriteString(helpStyle.Render("↑/↓: Navigate • Enter: Details • a: Apply • s: Skip • p: Pause • r: Resume • x: Abort • q: Quit"))

	return s.String()
}

func (m Model) renderSummary() string {
	sum := m.summary
	if sum.ID == "" {
		return "Loading session " + m.sessionID + "..."
	}

	line := fmt.Sprintf("%s  %d/%d leads • %d pending • %d applied • %d skipped • %d failed",
		statusStyle.Render(strings.ToUpper(sum.Status)),
		sum.CurrentIndex, sum.TotalLeads, sum.PendingCount,
		sum.Stats.ActionsApplied, sum.Stats.ActionsSkipped, sum.Stats.ActionsFailed)

	if !models.SessionTerminal(sum.Status) && !sum.TimeboxDeadline.IsZero() {
		left := time.Until(sum.TimeboxDeadline).Round(time.Second)
		if left < 0 {
			left = 0
		}
		line += fmt.Sprintf(" • %s left", left)
	}
	if sum.Reason != "" {
		line += "\n" + warningStyle.Render("Reason: "+sum.Reason)
	}
	return line
}

func (m Model) renderFooter() string {
	switch {
	case m.err != nil:
		return errorStyle.Render("Error: "+m.err.Error()) + "\n"
	case m.notice != "":
		return noticeStyle.Render(m.notice) + "\n"
	}
	return ""
}

func (m Model) handleQueueKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		if _, ok := m.Selected(); ok {
			m.viewMode = ViewDetail
		}
		return m, nil
	case "a":
		return m, m.decide("applied")
	case "s":
		return m, m.decide("skipped")
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
