package commands

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/lendops/tapekpi/internal/pipeline"
	"github.com/lendops/tapekpi/internal/store"
	"github.com/lendops/tapekpi/pkg/database"
	"github.com/lendops/tapekpi/pkg/redis"
)

var (
	runDataset        string
	runOutputDir      string
	runSkipComposites bool
	runSave           bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full KPI pipeline once",
	Long: `Ingests a loan tape from a file or URL, validates it, computes every
KPI and writes kpi_results.json and metrics.csv into the output directory.

A strict validation failure aborts the run with a non-zero exit code and
writes no artifacts.

Example:
  tapekpi run --dataset ./tape.csv --output ./out
  tapekpi run --dataset https://provider.example.com/export.csv --output ./out --save`,
	RunE: runPipeline,
}

func init() {
	runCmd.Flags().StringVar(&runDataset, "dataset", "", "loan tape file path or http(s) URL (required)")
	runCmd.Flags().StringVar(&runOutputDir, "output", "", "directory for kpi_results.json and metrics.csv")
	runCmd.Flags().BoolVar(&runSkipComposites, "no-composites", false, "skip composite KPIs")
	runCmd.Flags().BoolVar(&runSave, "save", false, "persist the run to PostgreSQL (requires DATABASE_URL)")
	_ = runCmd.MarkFlagRequired("dataset")
	rootCmd.AddCommand(runCmd)
}

func runPipeline(cmd *cobra.Command, _ []string) error {
	appCfg, pipeCfg, log, err := loadStack()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	runner := pipeline.NewRunner(appCfg, pipeCfg, log)

	if runSave {
		if appCfg.Database.URL == "" {
			return fmt.Errorf("--save requires DATABASE_URL")
		}
		db, err := database.New(appCfg)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer db.Close()

		repo := store.NewRepository(db, log)
		if err := repo.Migrate(ctx); err != nil {
			return err
		}
		runner = runner.WithStore(repo)
	}

	if appCfg.Redis.Enabled {
		rc, err := redis.New(appCfg)
		if err != nil {
			log.WithError(err).Warn("redis unavailable, running without cache")
		} else {
			defer rc.Close()
			runner = runner.WithCache(redis.NewCache(rc, "tapekpi"))
		}
	}

	summary, err := runner.Run(ctx, pipeline.Options{
		Dataset:        runDataset,
		OutputDir:      runOutputDir,
		Actor:          "cli",
		SkipComposites: runSkipComposites,
	})
	if err != nil {
		return err
	}

	printSummary(cmd, summary)
	return nil
}

func printSummary(cmd *cobra.Command, summary *pipeline.Summary) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "run %s (%s)\n", summary.RunID, summary.Status)
	fmt.Fprintf(out, "as of %s, quality score %d, %d duplicates removed\n\n",
		summary.AsOf.Format("2006-01-02"), summary.Quality.Score, summary.DuplicatesRemoved)

	keys := make([]string, 0, len(summary.Results))
	for key := range summary.Results {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		res := summary.Results[key]
		if res.Error != "" {
			fmt.Fprintf(out, "%-24s ERROR %s\n", key, res.Error)
			continue
		}
		fmt.Fprintf(out, "%-24s %10.4f %-8s %s\n", key, *res.Value, res.Unit, res.Status)
	}

	for _, path := range summary.OutputFiles {
		fmt.Fprintf(out, "\nwrote %s", path)
	}
	if len(summary.OutputFiles) > 0 {
		fmt.Fprintln(out)
	}
}
