// ABOUTME: Builds the shared runtime (store, audit log, oracle, controller) for every command
// ABOUTME: One App per process; Close releases the database after sessions shut down
package cli

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/harperreed/leadpilot/autopilot"
	"github.com/harperreed/leadpilot/compliance"
	"github.com/harperreed/leadpilot/config"
	"github.com/harperreed/leadpilot/db"
	"github.com/harperreed/leadpilot/oracle"
)

// App holds the collaborators a command needs.
type App struct {
	Config     config.Config
	Logger     *log.Logger
	DB         *sql.DB
	Leads      *db.CachedLeadStore
	Audit      *db.AuditStore
	Sessions   *db.SessionStore
	Checker    *compliance.Checker
	Registry   *prometheus.Registry
	Metrics    *autopilot.Metrics
	Controller *autopilot.Controller
}

// AppOption adjusts an App before the controller is built.
type AppOption func(*appOptions)

type appOptions struct {
	oracle oracle.Oracle
}

// WithOracle replaces the HTTP oracle, mainly for tests.
func WithOracle(o oracle.Oracle) AppOption {
	return func(opts *appOptions) { opts.oracle = o }
}

// NewApp opens the database and wires the autopilot controller from cfg.
func NewApp(cfg config.Config, logger *log.Logger, opts ...AppOption) (*App, error) {
	var options appOptions
	for _, opt := range opts {
		opt(&options)
	}

	database, err := db.OpenDatabase(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	leads, err := db.NewCachedLeadStore(db.NewLeadStore(database), cfg.LeadCache)
	if err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("failed to create lead cache: %w", err)
	}

	checker, err := LoadChecker(cfg, logger)
	if err != nil {
		_ = database.Close()
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := autopilot.NewMetrics(registry)
	if err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	o := options.oracle
	if o == nil {
		o = oracle.NewHTTPOracle(oracle.HTTPConfig{
			BaseURL: cfg.Oracle.BaseURL,
			Model:   cfg.Oracle.Model,
			APIKey:  cfg.Oracle.APIKey,
			Timeout: cfg.Oracle.Timeout + 5*time.Second,
		})
	}
	generator := oracle.NewGenerator(o,
		oracle.WithLogger(logger),
		oracle.WithCallTimeout(cfg.Oracle.Timeout),
		oracle.WithRetry(oracle.RetryConfig{
			MaxAttempts: cfg.Oracle.MaxAttempts,
			BaseDelay:   cfg.Oracle.BaseDelay,
			Factor:      cfg.Oracle.Factor,
			MaxDelay:    cfg.Oracle.MaxDelay,
		}),
		oracle.WithAttemptObserver(metrics.ObserveOracleCall),
	)

	audit := db.NewAuditStore(database)
	sessions := db.NewSessionStore(database)

	controller := autopilot.NewController(autopilot.Config{
		Proposer: generator,
		Checker:  checker,
		Store:    leads,
		Audit:    audit,
		Recorder: sessions,
		Metrics:  metrics,
		Logger:   logger,
	})

	return &App{
		Config:     cfg,
		Logger:     logger,
		DB:         database,
		Leads:      leads,
		Audit:      audit,
		Sessions:   sessions,
		Checker:    checker,
		Registry:   registry,
		Metrics:    metrics,
		Controller: controller,
	}, nil
}

// LoadChecker builds the compliance checker from the configured rule pack,
// or the built-in rules when none is set.
func LoadChecker(cfg config.Config, logger *log.Logger) (*compliance.Checker, error) {
	if cfg.RulesPath == "" {
		return compliance.NewChecker(compliance.DefaultRules()), nil
	}
	rules, err := compliance.LoadRules(cfg.RulesPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load compliance rules: %w", err)
	}
	logger.Info("loaded compliance rules", "path", cfg.RulesPath, "count", len(rules))
	return compliance.NewChecker(rules), nil
}

// Close stops running sessions and closes the database.
func (a *App) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.Controller.Shutdown(ctx); err != nil {
		a.Logger.Warn("sessions did not stop cleanly", "err", err)
	}
	return a.DB.Close()
}
