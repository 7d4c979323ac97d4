// ABOUTME: Dashboard CLI command
// ABOUTME: Prints the lead pipeline and the last week of autopilot activity
package cli

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/harperreed/leadpilot/viz"
)

// DashboardCommand renders the text dashboard.
func DashboardCommand(app *App, args []string) error {
	fs := flag.NewFlagSet("dashboard", flag.ExitOnError)
	_ = fs.Parse(args)

	stats, err := viz.GenerateDashboardStats(context.Background(), viz.Sources{
		Leads:    app.Leads,
		Audit:    app.Audit,
		Sessions: app.Sessions,
	}, time.Now())
	if err != nil {
		return fmt.Errorf("failed to build dashboard: %w", err)
	}

	fmt.Print(viz.RenderDashboard(stats))
	return nil
}
