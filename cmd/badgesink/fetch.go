package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/badgesink"
	"github.com/jpalmerr/badgesink/config"
)

// fetchCmd performs a single poll and prints the batch.
var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch one batch of badge events and print it as JSON",
	Long: `Fetch one batch of badge events and print it as JSON on stdout.

Exactly one of --cursor and --since selects the batch. --since accepts a
duration before now (e.g. 15m, 2h) or an RFC 3339 timestamp. The printed
cursor can be passed back with --cursor to page forward.

Example:
  badgesink fetch -c config.yaml --since 1h
  badgesink fetch -c config.yaml --cursor "eyJvZmZzZXQiOjQyfQ=="`,
	RunE: runFetch,
}

func init() {
	rootCmd.AddCommand(fetchCmd)

	fetchCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	fetchCmd.Flags().String("cursor", "", "fetch the events after this cursor")
	fetchCmd.Flags().String("since", "", "fetch the events from this instant (duration ago or RFC 3339) until now")
	_ = fetchCmd.MarkFlagRequired("config")
	fetchCmd.MarkFlagsMutuallyExclusive("cursor", "since")
	fetchCmd.MarkFlagsOneRequired("cursor", "since")
}

func runFetch(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	var query badgesink.Query
	if cmd.Flags().Changed("cursor") {
		cursor, _ := cmd.Flags().GetString("cursor")
		query = badgesink.CursorQuery(cursor)
	} else {
		raw, _ := cmd.Flags().GetString("since")
		since, err := parseSince(raw, time.Now())
		if err != nil {
			return err
		}
		query = badgesink.WindowQuery(since)
	}

	sink, err := config.BuildSink(cfg, newLogger(cfg.SlogLevel()), nil)
	if err != nil {
		return fmt.Errorf("failed to create sink: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	report, err := sink.Fetch(ctx, query)
	if err != nil {
		return fmt.Errorf("fetch failed: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

// parseSince accepts a positive duration before now or an RFC 3339 timestamp.
func parseSince(raw string, now time.Time) (time.Time, error) {
	if d, err := time.ParseDuration(raw); err == nil {
		if d <= 0 {
			return time.Time{}, fmt.Errorf("--since duration must be positive, got %s", d)
		}
		return now.Add(-d), nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("--since must be a duration or an RFC 3339 timestamp, got %q", raw)
	}
	return t, nil
}
