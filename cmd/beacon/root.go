package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"arc-framework/beacon/internal/config"
	"arc-framework/beacon/internal/telemetry"
)

var (
	cfgFile  string
	logLevel string

	// cfg is populated by PersistentPreRunE and shared with all subcommands.
	cfg *config.Config

	// app holds all wired dependencies; populated by PersistentPreRunE.
	app *AppContext
)

var rootCmd = &cobra.Command{
	Use:   "beacon",
	Short: "A.R.C. Beacon API service",
	Long: `Beacon is an A.R.C. HTTP API service.
On startup it installs request policies, publishes Swagger documentation
at /sapi, binds its listener and reconciles its route table with the
platform route registry (Postgres, Redis, NATS).`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config file (YAML)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		initLogger(logLevel, "json")

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		// --log-level flag takes precedence over value in config file.
		if cmd.Flags().Changed("log-level") {
			cfg.Telemetry.LogLevel = logLevel
		}
		initLogger(cfg.Telemetry.LogLevel, cfg.Telemetry.LogFormat)

		// gin's debug output would interleave with the JSON log stream.
		gin.SetMode(gin.ReleaseMode)

		app, err = buildAppContext(cmd.Context(), cfg)
		if err != nil {
			return fmt.Errorf("building app context: %w", err)
		}

		return nil
	}

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(syncRoutesCmd)
}

// Execute is the entry point called by main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func initLogger(level, format string) {
	slog.SetDefault(telemetry.NewLogger(os.Stdout, level, format))
}
