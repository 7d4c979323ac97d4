package tui

import (
	"fmt"
	"sort"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/harperreed/leadpilot/models"
)

var (
	fieldLabelStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("170")).
			Width(20)

	fieldValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))
)

func (m Model) renderDetailView() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render("ACTION DETAIL"))
	s.WriteString("\n\n")

	a, ok := m.Selected()
	if !ok {
		s.WriteString("No action selected")
	} else {
		s.WriteString(renderAction(a))
	}

	s.WriteString("\n")
	s.WriteString(m.renderFooter())
	s.WriteString(helpStyle.Render("a: Apply • s: Skip • Esc: Back • q: Quit"))

	return s.String()
}

func renderAction(a models.QueuedAction) string {
	var s strings.Builder

	field := func(label, value string) {
		if value == "" {
			return
		}
		s.WriteString(fieldLabelStyle.Render(label + ":"))
		s.WriteString(fieldValueStyle.Render(value))
		s.WriteString("\n")
	}

	field("Lead", a.LeadName)
	field("Type", a.Type)
	field("Action", a.Description)
	field("Confidence", fmt.Sprintf("%d%%", a.Confidence))
	field("Difficulty", a.Difficulty)
	field("Status", a.Status)
	field("Needs approval", a.ApprovalReason)
	field("Reasoning", a.Reasoning)
	field("Message", a.Message)
	field("Failure", a.FailureReason)

	if len(a.Steps) > 0 {
		s.WriteString(fieldLabelStyle.Render("Steps:"))
		s.WriteString("\n")
		for i, step := range a.Steps {
			s.WriteString(fmt.Sprintf("  %d. %s\n", i+1, step))
		}
	}

	if len(a.Changes) > 0 {
		keys := make([]string, 0, len(a.Changes))
		for k := range a.Changes {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		s.WriteString(fieldLabelStyle.Render("Changes:"))
		s.WriteString("\n")
		for _, k := range keys {
			s.WriteString(fmt.Sprintf("  %s → %v\n", k, a.Changes[k]))
		}
	}

	for _, v := range a.Violations {
		style := warningStyle
		if v.Severity == models.SeverityError {
			style = errorStyle
		}
		s.WriteString(style.Render(fmt.Sprintf("%s: %q. Try %q", strings.ToUpper(v.Severity), v.Phrase, v.Suggestion)))
		s.WriteString("\n")
	}

	return s.String()
}

func (m Model) handleDetailKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "backspace":
		m.viewMode = ViewQueue
		return m, nil
	case "a":
		return m, m.decide("applied")
	case "s":
		return m, m.decide("skipped")
	}
	return m, nil
}
