// ABOUTME: serve subcommand running the REST API until interrupted
// ABOUTME: HTTP listener and shutdown watcher share an errgroup so either failure stops both
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/harperreed/leadpilot/web"
)

const shutdownTimeout = 15 * time.Second

// NewHTTPServer builds the REST server for app without starting it.
func NewHTTPServer(app *App, addr string) *http.Server {
	api := web.NewServer(web.Options{
		Controller:      app.Controller,
		Leads:           app.Leads,
		History:         app.Sessions,
		Checker:         app.Checker,
		Gatherer:        app.Registry,
		Logger:          app.Logger,
		DefaultSettings: app.Config.Defaults,
	})
	return &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// ServeCommand runs the REST API until SIGINT or SIGTERM.
func ServeCommand(app *App, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := fs.String("addr", app.Config.ListenAddr, "Listen address")
	_ = fs.Parse(args)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return serve(ctx, app, NewHTTPServer(app, *addr))
}

func serve(ctx context.Context, app *App, server *http.Server) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		app.Logger.Info("listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		app.Logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		// Stop accepting requests before aborting sessions so no new run slips in.
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		if err := app.Controller.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("session shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}
