package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lendops/tapekpi/internal/contracts"
	"github.com/lendops/tapekpi/internal/ingest"
)

var qualityDataset string

var qualityCmd = &cobra.Command{
	Use:   "quality",
	Short: "Run the data-quality report without computing KPIs",
	Long: `Ingests a loan tape and prints the data-quality report as Markdown.
Exits non-zero when the tape fails the quality gate.

Example:
  tapekpi quality --dataset ./tape.csv`,
	RunE: runQuality,
}

func init() {
	qualityCmd.Flags().StringVar(&qualityDataset, "dataset", "", "loan tape file path (required)")
	_ = qualityCmd.MarkFlagRequired("dataset")
	rootCmd.AddCommand(qualityCmd)
}

func runQuality(cmd *cobra.Command, _ []string) error {
	_, pipeCfg, log, err := loadStack()
	if err != nil {
		return err
	}

	// Quality inspection never aborts on findings; strict mode is for runs.
	ingCfg := pipeCfg.Pipeline.Phases.Ingestion
	ingCfg.Validation.Strict = false

	trail := contracts.NewAuditTrail("cli", "quality_check")
	res, err := ingest.NewIngestor(ingCfg, log, trail).IngestFile(cmd.Context(), qualityDataset)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), res.Quality.ToMarkdown())
	if !res.Quality.Passed() {
		return fmt.Errorf("quality gate failed (score %d)", res.Quality.Score)
	}
	return nil
}
