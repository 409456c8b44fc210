// Package main is the entry point for the badgesink CLI.
//
// badgesink can be embedded as a library or run as a standalone binary with
// YAML configuration. This CLI provides the standalone binary approach.
//
// Usage:
//
//	badgesink run -c config.yaml                 # Poll and forward events
//	badgesink fetch -c config.yaml --since 1h    # Fetch one batch and print it
//	badgesink validate -c config.yaml            # Validate configuration
//	badgesink version                            # Show version info
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Version information - set at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCmd is the base command when called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "badgesink",
	Short: "Pull badge events from a transit API and forward them",
	Long: `badgesink continuously pulls rider badge events from a transit badge API
and hands each one to local consumers: an in-memory log served over HTTP,
the process log, a NATS subject and a SQL table.

Quick start:
  1. Create a config file (badgesink.yaml)
  2. Run: badgesink run -c badgesink.yaml
  3. Open http://localhost:8080/api/events

Example config:
  base_url: https://api.example.com
  app_id: ${BADGE_APP_ID}
  secret: ${BADGE_SECRET}
  forward:
    log: true`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		envFile, _ := cmd.Flags().GetString("env-file")
		return loadEnv(envFile)
	},
}

// loadEnv loads a dotenv file into the environment. Without an explicit
// path, ./.env is loaded if it exists.
func loadEnv(path string) error {
	if path == "" {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load .env: %w", err)
		}
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file: %w", err)
	}
	return nil
}

// newLogger creates a JSON logger for CLI use.
func newLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error, just exit with code 1
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this badgesink binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("badgesink %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	rootCmd.PersistentFlags().String("env-file", "", "dotenv file to load before reading the config (default ./.env if present)")
	rootCmd.AddCommand(versionCmd)
}
