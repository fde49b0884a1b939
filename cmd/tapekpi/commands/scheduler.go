package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lendops/tapekpi/internal/pipeline"
	"github.com/lendops/tapekpi/internal/scheduler"
	"github.com/lendops/tapekpi/internal/scheduler/jobs"
)

var (
	schedDataset   string
	schedOutputDir string
	schedCron      string
	schedRetention time.Duration
)

var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "Manage scheduled pipeline runs",
	Long: `Starts the scheduler daemon or triggers registered jobs.

Registered jobs:
  kpi_run           nightly KPI pipeline run against the configured dataset
  archive_retention weekly cleanup of old raw-tape archives

Example:
  tapekpi scheduler start --dataset https://provider.example.com/export.csv --output ./out
  tapekpi scheduler run kpi_run`,
}

var schedulerStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the scheduler daemon",
	Long:  `Starts the scheduler and blocks until interrupted (Ctrl+C).`,
	RunE:  startScheduler,
}

var schedulerRunCmd = &cobra.Command{
	Use:   "run [job_name]",
	Short: "Run one registered job immediately",
	Args:  cobra.ExactArgs(1),
	RunE:  runSchedulerJob,
}

func init() {
	schedulerCmd.PersistentFlags().StringVar(&schedDataset, "dataset", "", "loan tape file path or URL for the scheduled run (required)")
	schedulerCmd.PersistentFlags().StringVar(&schedOutputDir, "output", "out", "directory for run artifacts")
	schedulerCmd.PersistentFlags().StringVar(&schedCron, "cron", "", "cron expression for kpi_run (default nightly at 02:00)")
	schedulerCmd.PersistentFlags().DurationVar(&schedRetention, "retention", 90*24*time.Hour, "archive retention window")
	_ = schedulerCmd.MarkPersistentFlagRequired("dataset")

	schedulerCmd.AddCommand(schedulerStartCmd)
	schedulerCmd.AddCommand(schedulerRunCmd)
	rootCmd.AddCommand(schedulerCmd)
}

func buildScheduler() (*scheduler.Scheduler, error) {
	appCfg, pipeCfg, log, err := loadStack()
	if err != nil {
		return nil, err
	}

	runner := pipeline.NewRunner(appCfg, pipeCfg, log)
	s := scheduler.New(log)

	if err := s.AddJob(jobs.NewKPIRun(runner, log, schedDataset, schedOutputDir, schedCron)); err != nil {
		return nil, err
	}
	if err := s.AddJob(jobs.NewArchiveRetention(log, appCfg.Archive.Dir, schedRetention, "")); err != nil {
		return nil, err
	}
	return s, nil
}

func startScheduler(cmd *cobra.Command, _ []string) error {
	s, err := buildScheduler()
	if err != nil {
		return err
	}

	s.Start()
	fmt.Fprintf(cmd.OutOrStdout(), "scheduler running with jobs: %v\n", s.Jobs())

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	s.Stop()
	return nil
}

func runSchedulerJob(cmd *cobra.Command, args []string) error {
	s, err := buildScheduler()
	if err != nil {
		return err
	}
	if err := s.RunNow(args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "job %s triggered\n", args[0])

	// Give the detached run a moment to finish before the process exits.
	deadline := time.After(10 * time.Minute)
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-deadline:
			return fmt.Errorf("job %s did not finish in time", args[0])
		case <-ticker.C:
			history, err := s.History(args[0])
			if err != nil {
				return err
			}
			if last := history.Last(); last != nil {
				if !last.Success {
					return fmt.Errorf("job %s failed: %s", args[0], last.Error)
				}
				return nil
			}
		}
	}
}
