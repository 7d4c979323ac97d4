// ABOUTME: Entry point for the leadpilot service, MCP server and CLI
// ABOUTME: Routes to the REST server, MCP server or CLI commands based on arguments
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/charmbracelet/log"

	"github.com/harperreed/leadpilot/charm"
	"github.com/harperreed/leadpilot/cli"
	"github.com/harperreed/leadpilot/config"
)

const version = "0.2.0"

func main() {
	// Global flags
	showVersion := flag.Bool("version", false, "Show version and exit")
	configPath := flag.String("config", "", "Config file (default: ~/.config/leadpilot/config.yaml)")
	dbPath := flag.String("db-path", "", "Database path (overrides config)")

	// Parse global flags but don't fail on unknown (for subcommands)
	_ = flag.CommandLine.Parse(os.Args[1:])

	if *showVersion {
		fmt.Printf("leadpilot version %s\n", version)
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(0)
	}

	command := args[0]
	commandArgs := args[1:]

	// Sync commands only touch the Charm KV
	if command == "sync" {
		if err := runSync(commandArgs); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *dbPath != "" {
		cfg.DatabasePath = *dbPath
	}

	// stdout belongs to the MCP transport and to command output
	logger, err := cfg.Log.NewLogger(os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg, logger, command, commandArgs); err != nil {
		if errors.Is(err, cli.ErrNotCompliant) {
			os.Exit(2)
		}
		logger.Error("command failed", "command", command, "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *log.Logger, command string, args []string) error {
	if command == "compliance" {
		if len(args) == 0 || args[0] != "check" {
			printUsage()
			return fmt.Errorf("compliance requires the check subcommand")
		}
		checker, err := cli.LoadChecker(cfg, logger)
		if err != nil {
			return err
		}
		return cli.ComplianceCheckCommand(checker, args[1:])
	}

	switch command {
	case "serve", "mcp", "run", "leads", "audit", "dashboard":
	default:
		printUsage()
		return fmt.Errorf("unknown command: %s", command)
	}

	app, err := cli.NewApp(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()
	logger.Debug("database ready", "path", cfg.DatabasePath)

	switch command {
	case "serve":
		return cli.ServeCommand(app, args)
	case "mcp":
		return cli.MCPCommand(app, version)
	case "run":
		return cli.RunCommand(app, args)
	case "leads":
		return runLeads(app, args)
	case "dashboard":
		return cli.DashboardCommand(app, args)
	default:
		if len(args) > 0 && args[0] == "list" {
			args = args[1:]
		}
		return cli.AuditListCommand(app, args)
	}
}

func runLeads(app *cli.App, args []string) error {
	if len(args) == 0 {
		printUsage()
		return fmt.Errorf("leads requires a subcommand")
	}

	switch args[0] {
	case "add":
		return cli.LeadsAddCommand(app, args[1:])
	case "list":
		return cli.LeadsListCommand(app, args[1:])
	case "import":
		return cli.LeadsImportCommand(app, args[1:])
	default:
		printUsage()
		return fmt.Errorf("unknown leads command: %s", args[0])
	}
}

func runSync(args []string) error {
	if len(args) == 0 {
		return charm.SyncStatusCommand(nil)
	}

	switch args[0] {
	case "link":
		return charm.SyncLinkCommand(args[1:])
	case "status":
		return charm.SyncStatusCommand(args[1:])
	case "unlink":
		return charm.SyncUnlinkCommand(args[1:])
	case "wipe":
		return charm.SyncWipeCommand(args[1:])
	case "now":
		return charm.SyncNowCommand(args[1:])
	case "auto":
		return charm.SetAutoSyncCommand(args[1:])
	default:
		printUsage()
		return fmt.Errorf("unknown sync command: %s", args[0])
	}
}

func printUsage() {
	fmt.Printf(`leadpilot v%s - AutoPilot action queue for insurance agents

USAGE:
  leadpilot [global flags] <command> [subcommand] [flags]

GLOBAL FLAGS:
  --version              Show version and exit
  --config <path>        Config file (default: ~/.config/leadpilot/config.yaml)
  --db-path <path>       Database path (default: ~/.local/share/leadpilot/leadpilot.db)

COMMANDS:
  serve                  Start the REST API
    --addr <addr>            Listen address (default from config, :8080)

  mcp                    Start MCP server for Claude Desktop

  run                    Start an autopilot session and monitor it
    --user <id>              Agent user ID (default: $USER)
    --leads <ids>            Comma-separated lead IDs
    --temperature <t>        Only leads with this temperature (hot/warm/cold)
    --tag <tag>              Only leads with this tag
    --query <text>           Only leads matching name, email or location
    --limit <n>              Max leads (default: 20)
    --auto-crm               Auto-apply CRM updates
    --auto-send              Auto-send messages
    --auto-open              Open lead profiles (default: true)
    --timebox <minutes>      Timebox, 10-60 (default: 30)
    --confidence <n>         Auto-apply threshold, 50-90 (default: 70)
    --plain                  Print progress instead of the monitor
    Unset flags fall back to your last-used settings.

  leads add              Add a lead
    --name <name>            Lead name (required)
    --email, --phone, --location, --temperature, --tags, --interest,
    --premium, --notes, --assigned-to

  leads list             List leads
    --query <text>, --temperature <t>, --tag <tag>, --limit <n>

  leads import <file>    Import leads from a JSON file

  audit list             Show the audit log, newest first
    --session <id>, --lead <id>, --agent <id>, --type <type>,
    --source <source>, --compliance <status>, --since <duration>, --limit <n>

  dashboard              Show the lead pipeline and last week of activity

  compliance check <text>  Check text for compliance violations (or pipe on stdin)

  sync [link|status|unlink|wipe|now|auto]  Sync saved run settings via Charm

MONITOR KEYS:
  ↑/↓ navigate • enter details • a apply • s skip • p pause • r resume • x abort • q quit

EXAMPLES:
  # Import leads and start a run over hot leads
  leadpilot leads import leads.json
  leadpilot run --temperature hot --auto-crm

  # Serve the REST API
  leadpilot serve --addr :9000

  # Review what autopilot did today
  leadpilot audit list --source autopilot --since 24h

`, version)
}
