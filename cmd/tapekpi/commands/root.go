package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	pipelineConfigFile string
	verbose            bool
)

// rootCmd is the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "tapekpi",
	Short: "Loan-tape KPI pipeline",
	Long: `tapekpi ingests loan-tape exports, gates them through data quality
checks and computes the portfolio KPI suite.

Usage:
  tapekpi [command]

Examples:
  tapekpi run --dataset ./tape.csv --output ./out
  tapekpi run --dataset https://provider.example.com/export --output ./out
  tapekpi quality --dataset ./tape.csv
  tapekpi scheduler start`,
	SilenceUsage: true,
}

// Execute runs the root command. Called once from main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&pipelineConfigFile, "config", "", "pipeline YAML config (defaults apply when omitted)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
