package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"arc-framework/beacon/internal/routesync"
)

var (
	syncForce  bool
	syncReason string
)

var syncRoutesCmd = &cobra.Command{
	Use:   "sync-routes",
	Short: "Reconcile the route table with the registry once and exit",
	Long: `sync-routes builds the HTTP application exactly as serve does, without
binding a listener, and reconciles its route table with the platform route
registry: Postgres rows, the Redis digest and a NATS change event.

The command prints a JSON result to stdout and exits 0 on success or
non-zero on failure.`,
	RunE: runSyncRoutes,
}

func init() {
	syncRoutesCmd.Flags().BoolVar(&syncForce, "force", false, "sync even when the cached digest is unchanged")
	syncRoutesCmd.Flags().StringVar(&syncReason, "reason", "cli", "reason recorded on the change event")
}

func runSyncRoutes(cmd *cobra.Command, args []string) error {
	defer app.shutdownTelemetry()

	if app.syncer == nil {
		err := errors.New("route sync is disabled (sync.enabled=false)")
		printResult(routesync.StatusError, err.Error())
		return err
	}

	if err := app.orchestrator.ApplyCrossCuttingPolicies(); err != nil {
		return err
	}
	if _, err := app.orchestrator.PublishDocumentation(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Sync.Timeout)
	defer cancel()

	slog.Info("starting route sync", "force", syncForce)

	result, err := app.syncer.SyncWithReason(ctx, app.router.RouteTable(), syncForce, syncReason)
	if err != nil {
		printResult(routesync.StatusError, err.Error())
		return fmt.Errorf("route sync failed: %w", err)
	}

	printSyncResult(result)
	if result.Status == routesync.StatusError {
		return errors.New("route sync completed with errors")
	}

	slog.Info("route sync completed", "status", result.Status, "digest", result.Digest)
	return nil
}

func printSyncResult(result *routesync.Result) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		fmt.Fprintf(os.Stdout, `{"status":%q}`+"\n", result.Status)
	}
}

func printResult(status, errMsg string) {
	result := map[string]string{"status": status}
	if errMsg != "" {
		result["error"] = errMsg
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		// Fallback to plain text if JSON encoding somehow fails.
		fmt.Fprintf(os.Stdout, `{"status":%q}`+"\n", status)
	}
}
