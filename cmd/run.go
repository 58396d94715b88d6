package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rajarajane97/mastt/internal/app"
	"github.com/rajarajane97/mastt/internal/config"
	"github.com/rajarajane97/mastt/internal/log"
)

var runFlags struct {
	project string
	repo    string
	output  string
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full testing workflow once",
	Long: `Run executes the complete pipeline against the configured repository:
code analysis, document ingestion, test planning with critic review,
test case writing, automation code generation, and documentation.
Artifacts are written under the output directory.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWorkflow(cmd.Context())
	},
}

func init() {
	runCmd.Flags().StringVar(&runFlags.project, "project", "", "project name (overrides config)")
	runCmd.Flags().StringVar(&runFlags.repo, "repo", "", "repository path to analyze (overrides config)")
	runCmd.Flags().StringVar(&runFlags.output, "output", "", "output directory (overrides config)")
	rootCmd.AddCommand(runCmd)
}

func runWorkflow(parent context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if runFlags.project != "" {
		cfg.ProjectName = runFlags.project
	}
	if runFlags.repo != "" {
		cfg.RepositoryPath = runFlags.repo
	}
	if runFlags.output != "" {
		cfg.OutputDir = runFlags.output
	}

	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := log.New(log.Config{})

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	tm, closeRun, err := a.BuildTeam(cfg.ProjectName, cfg.OutputDir)
	if err != nil {
		return fmt.Errorf("assembling team: %w", err)
	}
	defer func() {
		if closeErr := closeRun(); closeErr != nil {
			logger.Warn("releasing run", "error", closeErr)
		}
	}()

	report, err := tm.Run(ctx)
	if err != nil {
		return fmt.Errorf("running workflow: %w", err)
	}

	fmt.Printf("Workflow complete. Artifacts written to %s\n", report.OutputLocation)
	for name, present := range report.ResultsSummary {
		marker := " "
		if present {
			marker = "x"
		}
		fmt.Printf("  [%s] %s\n", marker, name)
	}
	return nil
}
