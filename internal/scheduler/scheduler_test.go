package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lendops/tapekpi/pkg/logger"
)

type countingJob struct {
	name     string
	schedule string
	runs     atomic.Int32
	failures int32
}

func (j *countingJob) Name() string     { return j.name }
func (j *countingJob) Schedule() string { return j.schedule }
func (j *countingJob) Run(context.Context) error {
	n := j.runs.Add(1)
	if n <= j.failures {
		return errors.New("transient failure")
	}
	return nil
}

func TestScheduler_DuplicateJobRejected(t *testing.T) {
	s := New(logger.NewNop())
	job := &countingJob{name: "nightly", schedule: "@daily"}

	require.NoError(t, s.AddJob(job))
	err := s.AddJob(job)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestScheduler_InvalidCronExpression(t *testing.T) {
	s := New(logger.NewNop())
	err := s.AddJob(&countingJob{name: "bad", schedule: "not-a-cron"})
	require.Error(t, err)
}

func TestScheduler_RunNowRetriesAndRecordsHistory(t *testing.T) {
	s := New(logger.NewNop()).WithRetry(2, time.Millisecond)
	job := &countingJob{name: "flaky", schedule: "@daily", failures: 1}
	require.NoError(t, s.AddJob(job))

	require.NoError(t, s.RunNow("flaky"))

	require.Eventually(t, func() bool {
		history, err := s.History("flaky")
		return err == nil && len(history.Results) == 1
	}, 2*time.Second, 10*time.Millisecond)

	history, err := s.History("flaky")
	require.NoError(t, err)
	last := history.Last()
	require.NotNil(t, last)
	assert.True(t, last.Success, "one retry should recover a single transient failure")
	assert.Equal(t, int32(2), job.runs.Load())
	assert.Equal(t, 1.0, history.SuccessRate())
}

type slowJob struct {
	name  string
	delay time.Duration
	runs  atomic.Int32
}

func (j *slowJob) Name() string     { return j.name }
func (j *slowJob) Schedule() string { return "@daily" }
func (j *slowJob) Run(context.Context) error {
	time.Sleep(j.delay)
	j.runs.Add(1)
	return nil
}

// Polling History while a detached run appends results must be safe; this
// mirrors the CLI's run-and-wait loop.
func TestScheduler_HistoryReadableWhileJobRuns(t *testing.T) {
	s := New(logger.NewNop()).WithRetry(0, time.Millisecond)
	job := &slowJob{name: "slow", delay: 20 * time.Millisecond}
	require.NoError(t, s.AddJob(job))

	for i := 0; i < 3; i++ {
		require.NoError(t, s.RunNow("slow"))

		deadline := time.After(2 * time.Second)
		for {
			history, err := s.History("slow")
			require.NoError(t, err)
			_ = history.SuccessRate()
			if last := history.Last(); last != nil && len(history.Results) == i+1 {
				assert.True(t, last.Success)
				break
			}
			select {
			case <-deadline:
				t.Fatal("job did not finish in time")
			case <-time.After(time.Millisecond):
			}
		}
	}
	assert.Equal(t, int32(3), job.runs.Load())
}

func TestScheduler_HistoryReturnsSnapshot(t *testing.T) {
	s := New(logger.NewNop()).WithRetry(0, time.Millisecond)
	job := &countingJob{name: "once", schedule: "@daily"}
	require.NoError(t, s.AddJob(job))
	require.NoError(t, s.RunNow("once"))

	require.Eventually(t, func() bool {
		history, err := s.History("once")
		return err == nil && len(history.Results) == 1
	}, 2*time.Second, 10*time.Millisecond)

	snapshot, err := s.History("once")
	require.NoError(t, err)
	snapshot.Results[0].Success = false
	snapshot.Add(JobResult{JobName: "once"})

	fresh, err := s.History("once")
	require.NoError(t, err)
	require.Len(t, fresh.Results, 1, "mutating a snapshot must not touch the scheduler's history")
	assert.True(t, fresh.Results[0].Success)
}

func TestScheduler_RunNowUnknownJob(t *testing.T) {
	s := New(logger.NewNop())
	require.Error(t, s.RunNow("missing"))
}

func TestJobHistory_Truncation(t *testing.T) {
	h := &JobHistory{}
	for i := 0; i < historyLimit+10; i++ {
		h.Add(JobResult{JobName: "x", Success: true})
	}
	assert.Len(t, h.Results, historyLimit)
}
