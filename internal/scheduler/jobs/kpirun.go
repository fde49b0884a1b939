// Package jobs holds the scheduled pipeline jobs.
package jobs

import (
	"context"
	"fmt"

	"github.com/lendops/tapekpi/internal/pipeline"
	"github.com/lendops/tapekpi/pkg/logger"
)

// KPIRun executes the full pipeline against a fixed dataset source on a
// cron schedule, typically the provider's export endpoint.
type KPIRun struct {
	runner    *pipeline.Runner
	log       *logger.Logger
	dataset   string
	outputDir string
	schedule  string
}

func NewKPIRun(runner *pipeline.Runner, log *logger.Logger, dataset, outputDir, schedule string) *KPIRun {
	if schedule == "" {
		schedule = "0 0 2 * * *" // nightly at 02:00
	}
	return &KPIRun{
		runner:    runner,
		log:       log,
		dataset:   dataset,
		outputDir: outputDir,
		schedule:  schedule,
	}
}

func (j *KPIRun) Name() string     { return "kpi_run" }
func (j *KPIRun) Schedule() string { return j.schedule }

func (j *KPIRun) Run(ctx context.Context) error {
	summary, err := j.runner.Run(ctx, pipeline.Options{
		Dataset:   j.dataset,
		OutputDir: j.outputDir,
		Actor:     "scheduler",
	})
	if err != nil {
		return fmt.Errorf("scheduled kpi run: %w", err)
	}
	j.log.WithFields(map[string]interface{}{
		"run_id": summary.RunID,
		"status": summary.Status,
		"kpis":   len(summary.Results),
	}).Info("scheduled kpi run finished")
	return nil
}
