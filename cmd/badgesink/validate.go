package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/badgesink/config"
)

// validateCmd validates a config file without contacting the badge API.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate a badgesink configuration file without contacting the badge API.

This command parses the YAML, expands environment variables, and validates
all fields. It's useful for CI/CD pipelines or pre-deployment checks.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  badgesink validate -c config.yaml
  badgesink validate --config /etc/badgesink/config.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = validateCmd.MarkFlagRequired("config")
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	forwarders := []string{"store"}
	if cfg.Forward.Log {
		forwarders = append(forwarders, "log")
	}
	if cfg.Forward.NATS != nil {
		forwarders = append(forwarders, "nats")
	}
	if cfg.Forward.SQL != nil {
		forwarders = append(forwarders, "sql:"+cfg.Forward.SQL.Driver)
	}

	fmt.Printf("Config is valid!\n")
	fmt.Printf("  Base URL:        %s\n", cfg.BaseURL)
	fmt.Printf("  Backoff:         %s\n", cfg.Backoff.Duration())
	fmt.Printf("  Request timeout: %s\n", cfg.RequestTimeout.Duration())
	fmt.Printf("  Token reuse:     %t\n", cfg.ReuseToken)
	fmt.Printf("  HTTP address:    %s\n", cfg.HTTP.Addr)
	fmt.Printf("  Forwarders:      %v\n", forwarders)

	return nil
}
