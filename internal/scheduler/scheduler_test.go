package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/canslim/pkg/logger"
)

type fakeJob struct {
	name     string
	schedule string
	errs     []error // returned in order; nil afterwards
	calls    atomic.Int32
}

func (f *fakeJob) Name() string     { return f.name }
func (f *fakeJob) Schedule() string { return f.schedule }
func (f *fakeJob) Run(ctx context.Context) error {
	n := int(f.calls.Add(1)) - 1
	if n < len(f.errs) {
		return f.errs[n]
	}
	return nil
}

func newTestScheduler(t *testing.T) *Scheduler {
	t.Helper()
	s := New(context.Background(), logger.Nop(), WithRetry(2, time.Millisecond))
	t.Cleanup(s.Stop)
	return s
}

func waitRuns(t *testing.T, s *Scheduler, name string, n int) *JobHistory {
	t.Helper()
	var h *JobHistory
	require.Eventually(t, func() bool {
		var err error
		h, err = s.GetJobHistory(name)
		return err == nil && len(h.Results) >= n
	}, 2*time.Second, 5*time.Millisecond)
	return h
}

func TestAddJob(t *testing.T) {
	s := newTestScheduler(t)

	require.NoError(t, s.AddJob(&fakeJob{name: "b", schedule: "0 0 3 * * *"}))
	require.NoError(t, s.AddJob(&fakeJob{name: "a", schedule: "@daily"}))
	assert.Error(t, s.AddJob(&fakeJob{name: "a", schedule: "@daily"}), "duplicate")
	assert.Error(t, s.AddJob(&fakeJob{name: "c", schedule: "not a schedule"}))

	assert.Equal(t, []string{"a", "b"}, s.GetAllJobs())

	require.NoError(t, s.RemoveJob("a"))
	assert.Error(t, s.RemoveJob("a"))
	assert.Equal(t, []string{"b"}, s.GetAllJobs())
}

func TestRunJobRetries(t *testing.T) {
	tests := []struct {
		name      string
		errs      []error
		wantCalls int32
		success   bool
		skipped   bool
	}{
		{"first try", nil, 1, true, false},
		{"succeeds on retry", []error{errors.New("flaky")}, 2, true, false},
		{"exhausts retries", []error{errors.New("x"), errors.New("y"), errors.New("z")}, 3, false, false},
		{"skip is not retried", []error{fmt.Errorf("%w: busy", ErrSkipped)}, 1, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestScheduler(t)
			job := &fakeJob{name: "job", schedule: "@daily", errs: tt.errs}
			require.NoError(t, s.AddJob(job))

			require.NoError(t, s.RunJob("job"))
			h := waitRuns(t, s, "job", 1)

			assert.Equal(t, tt.wantCalls, job.calls.Load())
			res := h.Results[0]
			assert.Equal(t, tt.success, res.Success)
			assert.Equal(t, tt.skipped, res.Skipped)
			if !tt.success {
				assert.NotEmpty(t, res.Error)
			}
		})
	}

	s := newTestScheduler(t)
	assert.Error(t, s.RunJob("missing"))
}

func TestJobStats(t *testing.T) {
	s := newTestScheduler(t)
	job := &fakeJob{name: "job", schedule: "0 0 3 * * *", errs: []error{
		fmt.Errorf("%w: busy", ErrSkipped),
		errors.New("a"), errors.New("b"), errors.New("c"),
	}}
	require.NoError(t, s.AddJob(job))
	s.Start()

	require.NoError(t, s.RunJob("job"))
	waitRuns(t, s, "job", 1)
	require.NoError(t, s.RunJob("job"))
	waitRuns(t, s, "job", 2)
	require.NoError(t, s.RunJob("job"))
	waitRuns(t, s, "job", 3)

	st := s.GetJobStats()["job"]
	assert.Equal(t, 3, st.TotalRuns)
	assert.Equal(t, 1, st.SkippedCount)
	assert.Equal(t, 1, st.FailureCount)
	assert.Equal(t, 1, st.SuccessCount)
	assert.NotNil(t, st.LastSuccess)
	assert.NotNil(t, st.NextRun)
}

func TestStopCancelsRetryWait(t *testing.T) {
	s := New(context.Background(), logger.Nop(), WithRetry(3, time.Hour))
	job := &fakeJob{name: "job", schedule: "@daily", errs: []error{errors.New("down")}}
	require.NoError(t, s.AddJob(job))
	require.NoError(t, s.RunJob("job"))

	require.Eventually(t, func() bool { return job.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not interrupt the retry wait")
	}

	h, err := s.GetJobHistory("job")
	require.NoError(t, err)
	require.Len(t, h.Results, 1)
	assert.False(t, h.Results[0].Success)
}

func TestJobHistory(t *testing.T) {
	h := &JobHistory{}
	for i := 0; i < 105; i++ {
		h.AddResult(JobResult{Success: i%2 == 0, Skipped: i%5 == 1})
	}
	assert.Len(t, h.Results, 100)
	assert.Len(t, h.GetLatestResults(3), 3)
	assert.Len(t, (&JobHistory{}).GetLatestResults(3), 0)
	assert.Equal(t, 20, h.CountSkipped())
	assert.InDelta(t, 0.5, h.GetSuccessRate(), 0.01)
}
