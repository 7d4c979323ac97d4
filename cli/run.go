// ABOUTME: run subcommand starting an autopilot session from the terminal
// ABOUTME: Opens the bubbletea monitor on a TTY, otherwise prints progress until the run ends
package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"github.com/harperreed/leadpilot/db"
	"github.com/harperreed/leadpilot/handlers"
	"github.com/harperreed/leadpilot/models"
	"github.com/harperreed/leadpilot/tui"
)

// RunCommand starts a session over the selected leads and follows it.
func RunCommand(app *App, args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	user := fs.String("user", os.Getenv("USER"), "Agent user ID")
	leadIDs := fs.String("leads", "", "Comma-separated lead IDs (default: leads matching the filters)")
	temperature := fs.String("temperature", "", "Only leads with this temperature (hot/warm/cold)")
	tag := fs.String("tag", "", "Only leads with this tag")
	query := fs.String("query", "", "Only leads whose name, email or location matches")
	limit := fs.Int("limit", 20, "Maximum leads to process")
	plain := fs.Bool("plain", false, "Print progress instead of opening the monitor")
	sf := settingsFlags{
		autoCRM:    fs.Bool("auto-crm", false, "Auto-apply CRM updates"),
		autoSend:   fs.Bool("auto-send", false, "Auto-send messages"),
		autoOpen:   fs.Bool("auto-open", true, "Open lead profiles while processing"),
		timebox:    fs.Int("timebox", 30, "Timebox in minutes (10-60)"),
		confidence: fs.Int("confidence", 70, "Confidence threshold for auto-apply (50-90)"),
		set:        map[string]bool{},
	}
	_ = fs.Parse(args)
	fs.Visit(func(f *flag.Flag) { sf.set[f.Name] = true })

	if *user == "" {
		return fmt.Errorf("--user is required")
	}

	ctx := context.Background()
	ids, err := selectLeads(ctx, app.Leads, *leadIDs, db.LeadFilter{
		Query:       *query,
		Temperature: *temperature,
		Tag:         *tag,
		Limit:       *limit,
	})
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Println("No leads matched")
		return nil
	}

	presets := settingsSource(app.Logger)
	settings := sf.apply(presets.LoadOrDefault(*user, app.Config.Defaults))

	sessionID, err := app.Controller.Start(ctx, *user, settings, ids)
	if err != nil {
		return fmt.Errorf("failed to start autopilot: %w", err)
	}
	if err := presets.Save(*user, settings); err != nil {
		app.Logger.Warn("failed to remember run settings", "user", *user, "err", err)
	}

	if !*plain && term.IsTerminal(int(os.Stdout.Fd())) {
		if _, err := tea.NewProgram(tui.NewModel(app.Controller, sessionID), tea.WithAltScreen()).Run(); err != nil {
			return fmt.Errorf("monitor failed: %w", err)
		}
		return printQueue(os.Stdout, app, sessionID)
	}

	return followSession(os.Stdout, app, sessionID, tui.PollInterval)
}

func selectLeads(ctx context.Context, leads handlers.LeadRepository, explicit string, filter db.LeadFilter) ([]string, error) {
	if explicit != "" {
		var ids []string
		for _, id := range strings.Split(explicit, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
		return ids, nil
	}

	found, err := leads.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list leads: %w", err)
	}
	ids := make([]string, 0, len(found))
	for _, l := range found {
		ids = append(ids, l.ID)
	}
	return ids, nil
}

// followSession prints one progress line per poll until the session ends.
func followSession(w io.Writer, app *App, sessionID string, every time.Duration) error {
	s, err := app.Controller.Session(sessionID)
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintf(w, "✓ Autopilot started: %s\n", sessionID)
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-s.Done():
			sum := s.Summary()
			_, _ = fmt.Fprintf(w, "✓ Session %s", sum.Status)
			if sum.Reason != "" {
				_, _ = fmt.Fprintf(w, " (%s)", sum.Reason)
			}
			_, _ = fmt.Fprintln(w)
			return printQueue(w, app, sessionID)
		case <-ticker.C:
			sum := s.Summary()
			_, _ = fmt.Fprintf(w, "  %s: %d/%d leads, %d pending, %d applied, %d failed\n",
				sum.Status, sum.CurrentIndex, sum.TotalLeads, sum.PendingCount,
				sum.Stats.ActionsApplied, sum.Stats.ActionsFailed)
		}
	}
}

func printQueue(w io.Writer, app *App, sessionID string) error {
	actions, err := app.Controller.Queue(sessionID)
	if err != nil {
		return err
	}
	if len(actions) == 0 {
		_, _ = fmt.Fprintln(w, "No actions proposed")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "LEAD\tTYPE\tACTION\tCONF\tCOMPLIANCE\tSTATUS\tID")
	_, _ = fmt.Fprintln(tw, "----\t----\t------\t----\t----------\t------\t--")
	for _, a := range actions {
		status := a.Status
		if a.Status == models.StatusPending && a.ApprovalReason != "" {
			status += " (" + a.ApprovalReason + ")"
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%d%%\t%s\t%s\t%s\n",
			a.LeadName, a.Type, a.Description, a.Confidence, a.ComplianceStatus, status, a.ID)
	}
	return tw.Flush()
}
