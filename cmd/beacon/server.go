package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Beacon HTTP API server",
	Long: `Start the Beacon HTTP server on app.host:app.port (default localhost:3000).

Startup installs request policies, publishes Swagger at /sapi, binds the
listener, syncs the route table and logs the startup banner. A failed
route sync is logged and the server keeps serving. The server shuts down
cleanly on SIGTERM or SIGINT.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer app.shutdownTelemetry()

	orch := app.orchestrator
	if err := orch.Run(ctx); err != nil {
		return fmt.Errorf("startup failed: %w", err)
	}

	select {
	case err := <-orch.Done():
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := orch.Shutdown(shutCtx); err != nil {
		return err
	}

	slog.Info("server stopped cleanly")
	return nil
}
