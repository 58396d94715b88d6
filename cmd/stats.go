package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/rajarajane97/mastt/internal/app"
	"github.com/rajarajane97/mastt/internal/config"
	"github.com/rajarajane97/mastt/internal/log"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show knowledge index statistics",
	Long:  `Stats reports how many chunks are indexed, broken down by source type.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStats(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	a, err := app.Setup(ctx, cfg, log.New(log.Config{Level: slog.LevelWarn}))
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() { _ = a.Close() }()

	stats, err := a.Engine.Stats(ctx)
	if err != nil {
		return fmt.Errorf("reading index stats: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(stats)
}
