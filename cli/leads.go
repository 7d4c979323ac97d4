// ABOUTME: Lead CLI commands
// ABOUTME: Human-friendly commands for adding, listing and importing leads
package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/harperreed/leadpilot/db"
	"github.com/harperreed/leadpilot/models"
)

// LeadsAddCommand adds a new lead.
func LeadsAddCommand(app *App, args []string) error {
	fs := flag.NewFlagSet("leads add", flag.ExitOnError)
	name := fs.String("name", "", "Lead name (required)")
	email := fs.String("email", "", "Email address")
	phone := fs.String("phone", "", "Phone number")
	location := fs.String("location", "", "City or region")
	temperature := fs.String("temperature", models.TemperatureWarm, "Temperature (hot/warm/cold)")
	tags := fs.String("tags", "", "Comma-separated tags")
	interest := fs.String("interest", "", "Comma-separated product interests")
	premium := fs.Float64("premium", 0, "Expected annual premium")
	notes := fs.String("notes", "", "Notes about the lead")
	assigned := fs.String("assigned-to", "", "Agent the lead is assigned to")
	_ = fs.Parse(args)

	if *name == "" {
		return fmt.Errorf("--name is required")
	}

	lead := &models.Lead{
		Name:            *name,
		Email:           *email,
		Phone:           *phone,
		Location:        *location,
		Temperature:     *temperature,
		Tags:            splitList(*tags),
		ProductInterest: splitList(*interest),
		Premium:         *premium,
		Notes:           *notes,
		AssignedTo:      *assigned,
	}
	if err := app.Leads.Create(context.Background(), lead); err != nil {
		return fmt.Errorf("failed to create lead: %w", err)
	}

	fmt.Printf("✓ Lead created: %s (ID: %s)\n", lead.Name, lead.ID)
	fmt.Printf("  Temperature: %s\n", lead.Temperature)
	if lead.Location != "" {
		fmt.Printf("  Location: %s\n", lead.Location)
	}
	if len(lead.ProductInterest) > 0 {
		fmt.Printf("  Interested in: %s\n", strings.Join(lead.ProductInterest, ", "))
	}
	return nil
}

// LeadsListCommand lists leads.
func LeadsListCommand(app *App, args []string) error {
	fs := flag.NewFlagSet("leads list", flag.ExitOnError)
	query := fs.String("query", "", "Search by name, email or location")
	temperature := fs.String("temperature", "", "Filter by temperature")
	tag := fs.String("tag", "", "Filter by tag")
	limit := fs.Int("limit", 50, "Maximum results")
	_ = fs.Parse(args)

	leads, err := app.Leads.List(context.Background(), db.LeadFilter{
		Query:       *query,
		Temperature: *temperature,
		Tag:         *tag,
		Limit:       *limit,
	})
	if err != nil {
		return fmt.Errorf("failed to list leads: %w", err)
	}
	return printLeads(os.Stdout, leads)
}

func printLeads(w io.Writer, leads []models.Lead) error {
	if len(leads) == 0 {
		_, _ = fmt.Fprintln(w, "No leads found")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "NAME\tTEMP\tLOCATION\tINTEREST\tLAST INTERACTION\tID")
	_, _ = fmt.Fprintln(tw, "----\t----\t--------\t--------\t----------------\t--")
	for _, l := range leads {
		last := "-"
		if l.LastInteractionDate != nil {
			last = l.LastInteractionDate.Format("2006-01-02")
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			l.Name, l.Temperature, dash(l.Location), dash(strings.Join(l.ProductInterest, ", ")), last, l.ID)
	}
	return tw.Flush()
}

// LeadsImportCommand loads leads from a JSON file.
func LeadsImportCommand(app *App, args []string) error {
	fs := flag.NewFlagSet("leads import", flag.ExitOnError)
	_ = fs.Parse(args)

	if fs.NArg() != 1 {
		return fmt.Errorf("usage: leads import <file.json>")
	}

	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", fs.Arg(0), err)
	}
	leads, err := decodeLeads(data)
	if err != nil {
		return err
	}

	n, err := app.Leads.Import(context.Background(), leads)
	if err != nil {
		return fmt.Errorf("failed to import leads: %w", err)
	}
	fmt.Printf("✓ Imported %d leads\n", n)
	return nil
}

// decodeLeads accepts either a bare array or an object with a "leads" array.
func decodeLeads(data []byte) ([]models.Lead, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var leads []models.Lead
		if err := json.Unmarshal(data, &leads); err != nil {
			return nil, fmt.Errorf("failed to parse leads: %w", err)
		}
		return leads, nil
	}

	var wrapped struct {
		Leads []models.Lead `json:"leads"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("failed to parse leads: %w", err)
	}
	return wrapped.Leads, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
