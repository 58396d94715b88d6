// Package cmd contains the mastt command-line interface.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "mastt",
	Short: "mastt - multi-agent software testing team",
	Long: `mastt runs a team of LLM agents that analyze a repository, ingest its
documentation into a retrieval index, and produce a full set of testing
artifacts: a reviewed test plan, categorized test cases, an automation
framework design, per-area automation code, and project documentation.

Run "mastt run" for a one-shot pipeline, or "mastt serve" to drive runs
over the HTTP API.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
