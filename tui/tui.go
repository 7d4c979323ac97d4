// ABOUTME: Terminal User Interface using bubbletea framework
// ABOUTME: Monitors one autopilot session, polling its queue and sending decisions on key presses
package tui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/harperreed/leadpilot/models"
)

// PollInterval matches the refresh cadence of the web review UI.
const PollInterval = 3 * time.Second

// Controller is the slice of the session controller the monitor drives.
type Controller interface {
	Status(sessionID string) (models.SessionSummary, error)
	Queue(sessionID string) ([]models.QueuedAction, error)
	Pause(sessionID string) error
	Resume(sessionID string) error
	Abort(sessionID string) error
	Apply(ctx context.Context, actionID string, mods map[string]any) (models.QueuedAction, error)
	Skip(ctx context.Context, actionID, reason string) (models.QueuedAction, error)
}

// ViewMode represents the current TUI view
type ViewMode int

const (
	ViewQueue ViewMode = iota
	ViewDetail
)

type tickMsg time.Time

type refreshMsg struct {
	summary models.SessionSummary
	actions []models.QueuedAction
	err     error
}

type decisionMsg struct {
	verb   string
	action models.QueuedAction
	err    error
}

type controlMsg struct {
	verb string
	err  error
}

// Model is the main bubbletea model
type Model struct {
	ctrl      Controller
	sessionID string
	viewMode  ViewMode

	summary models.SessionSummary
	actions []models.QueuedAction
	table   table.Model

	notice string
	err    error

	// UI state
	width  int
	height int
}

// NewModel creates a monitor for sessionID.
func NewModel(ctrl Controller, sessionID string) Model {
	t := table.New(
		table.WithColumns(queueColumns()),
		table.WithFocused(true),
		table.WithHeight(12),
	)
	t.SetStyles(tableStyles())

	return Model{
		ctrl:      ctrl,
		sessionID: sessionID,
		viewMode:  ViewQueue,
		table:     t,
		width:     100,
		height:    24,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.refresh(), tick())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetHeight(max(msg.Height-12, 5))
		return m, nil

	case tickMsg:
		return m, tea.Batch(m.refresh(), tick())

	case refreshMsg:
		m.err = msg.err
		if msg.err == nil {
			m.summary = msg.summary
			m.actions = msg.actions
			m.table.SetRows(queueRows(msg.actions))
		}
		return m, nil

	case decisionMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.notice = msg.verb + ": " + msg.action.Description
		return m, m.refresh()

	case controlMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.notice = "session " + msg.verb
		return m, m.refresh()
	}
	return m, nil
}

func (m Model) View() string {
	switch m.viewMode {
	case ViewDetail:
		return m.renderDetailView()
	default:
		return m.renderQueueView()
	}
}

func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "p":
		return m, m.control("paused", m.ctrl.Pause)
	case "r":
		return m, m.control("resumed", m.ctrl.Resume)
	case "x":
		return m, m.control("aborted", m.ctrl.Abort)
	}

	switch m.viewMode {
	case ViewDetail:
		return m.handleDetailKeys(msg)
	default:
		return m.handleQueueKeys(msg)
	}
}

// Selected returns the action under the cursor.
func (m Model) Selected() (models.QueuedAction, bool) {
	i := m.table.Cursor()
	if i < 0 || i >= len(m.actions) {
		return models.QueuedAction{}, false
	}
	return m.actions[i], true
}

func (m Model) refresh() tea.Cmd {
	ctrl, id := m.ctrl, m.sessionID
	return func() tea.Msg {
		summary, err := ctrl.Status(id)
		if err != nil {
			return refreshMsg{err: err}
		}
		actions, err := ctrl.Queue(id)
		return refreshMsg{summary: summary, actions: actions, err: err}
	}
}

func (m Model) control(verb string, op func(string) error) tea.Cmd {
	id := m.sessionID
	return func() tea.Msg {
		return controlMsg{verb: verb, err: op(id)}
	}
}

func (m Model) decide(verb string) tea.Cmd {
	a, ok := m.Selected()
	if !ok {
		return nil
	}
	ctrl := m.ctrl
	return func() tea.Msg {
		var (
			out models.QueuedAction
			err error
		)
		switch verb {
		case "applied":
			out, err = ctrl.Apply(context.Background(), a.ID, nil)
		default:
			out, err = ctrl.Skip(context.Background(), a.ID, "skipped from terminal")
		}
		return decisionMsg{verb: verb, action: out, err: err}
	}
}

func tick() tea.Cmd {
	return tea.Tick(PollInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("170")).
			MarginBottom(1)

	statusStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("170")).
			Background(lipgloss.Color("235")).
			Padding(0, 2)

	noticeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			MarginTop(1)
)

func tableStyles() table.Styles {
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	return s
}
