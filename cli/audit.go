// ABOUTME: Audit log CLI commands
// ABOUTME: Lists audit entries filtered by session, lead, agent, type, source or time window
package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/harperreed/leadpilot/models"
)

// AuditListCommand prints audit entries, newest first.
func AuditListCommand(app *App, args []string) error {
	fs := flag.NewFlagSet("audit list", flag.ExitOnError)
	session := fs.String("session", "", "Filter by session ID")
	lead := fs.String("lead", "", "Filter by lead ID")
	agent := fs.String("agent", "", "Filter by agent user ID")
	actionType := fs.String("type", "", "Filter by action type (update_lead/send_message/create_reminder/tag_lead)")
	source := fs.String("source", "", "Filter by source (manual/autopilot/ai)")
	compliance := fs.String("compliance", "", "Filter by compliance status")
	since := fs.Duration("since", 0, "Only entries newer than this (e.g. 24h)")
	limit := fs.Int("limit", 50, "Maximum results")
	_ = fs.Parse(args)

	filter := models.AuditFilter{
		SessionID:        *session,
		EntityID:         *lead,
		Agent:            *agent,
		ActionType:       *actionType,
		Source:           *source,
		ComplianceStatus: *compliance,
		Limit:            *limit,
	}
	if *since > 0 {
		from := time.Now().Add(-*since)
		filter.From = &from
	}

	entries, err := app.Audit.Query(context.Background(), filter)
	if err != nil {
		return fmt.Errorf("failed to query audit log: %w", err)
	}
	return printAudit(os.Stdout, entries)
}

func printAudit(w io.Writer, entries []models.AuditEntry) error {
	if len(entries) == 0 {
		_, _ = fmt.Fprintln(w, "No audit entries found")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "TIME\tAGENT\tTYPE\tLEAD\tSOURCE\tDECISION\tCONF\tCOMPLIANCE")
	_, _ = fmt.Fprintln(tw, "----\t-----\t----\t----\t------\t--------\t----\t----------")
	for _, e := range entries {
		conf := "-"
		if e.AIConfidence != nil {
			conf = fmt.Sprintf("%d%%", *e.AIConfidence)
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.CreatedAt.Local().Format("2006-01-02 15:04:05"), e.UserID, e.ActionType, e.EntityID,
			e.Source, e.UserDecision, conf, e.ComplianceStatus)
	}
	return tw.Flush()
}
