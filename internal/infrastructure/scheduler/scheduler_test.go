package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type funcJob struct {
	name string
	run  func(ctx context.Context) error
}

func (j *funcJob) Name() string                  { return j.name }
func (j *funcJob) Description() string           { return "test job " + j.name }
func (j *funcJob) Run(ctx context.Context) error { return j.run(ctx) }

// everyTick is due on every check.
type everyTick struct{}

func (everyTick) Next(t time.Time) time.Time { return t }
func (everyTick) String() string             { return "every tick" }

func newTestScheduler() *Scheduler {
	cfg := DefaultSchedulerConfig()
	cfg.TickInterval = 5 * time.Millisecond
	return NewScheduler(cfg)
}

func TestScheduler_RegisterValidation(t *testing.T) {
	s := newTestScheduler()
	job := &funcJob{name: "a", run: func(context.Context) error { return nil }}

	assert.ErrorIs(t, s.Register(nil, everyTick{}), ErrNilJob)
	assert.ErrorIs(t, s.Register(job, nil), ErrNilSchedule)
	require.NoError(t, s.Register(job, everyTick{}))
	assert.ErrorIs(t, s.Register(job, everyTick{}), ErrJobAlreadyExists)

	assert.ErrorIs(t, s.Unregister("missing"), ErrJobNotFound)
	require.NoError(t, s.Unregister("a"))
	assert.Empty(t, s.ListJobs())
}

func TestScheduler_RunsDueJobsUntilStopped(t *testing.T) {
	s := newTestScheduler()
	var runs atomic.Int64
	require.NoError(t, s.Register(&funcJob{name: "count", run: func(context.Context) error {
		runs.Add(1)
		return nil
	}}, everyTick{}))

	require.NoError(t, s.Start(context.Background()))
	assert.ErrorIs(t, s.Start(context.Background()), ErrSchedulerAlreadyRunning)

	require.Eventually(t, func() bool { return runs.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, s.Stop())
	assert.False(t, s.IsRunning())
	assert.ErrorIs(t, s.Stop(), ErrSchedulerNotRunning)

	after := runs.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, runs.Load())

	snap := s.GetMetrics().Snapshot()
	assert.Equal(t, after, snap.TotalExecutions)
	assert.Equal(t, 1.0, snap.SuccessRate)
}

func TestScheduler_JobNeverOverlapsItself(t *testing.T) {
	s := newTestScheduler()
	var inFlight, maxInFlight atomic.Int64
	release := make(chan struct{})

	require.NoError(t, s.Register(&funcJob{name: "slow", run: func(ctx context.Context) error {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			cur := maxInFlight.Load()
			if n <= cur || maxInFlight.CompareAndSwap(cur, n) {
				break
			}
		}
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	}}, everyTick{}))

	require.NoError(t, s.Start(context.Background()))
	require.Eventually(t, func() bool { return inFlight.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(30 * time.Millisecond)

	_, err := s.RunNow(context.Background(), "slow")
	assert.ErrorIs(t, err, ErrJobBusy)

	close(release)
	require.NoError(t, s.Stop())
	assert.Equal(t, int64(1), maxInFlight.Load())
}

func TestScheduler_StopCancelsRunningJobs(t *testing.T) {
	s := newTestScheduler()
	started := make(chan struct{})
	var once sync.Once

	require.NoError(t, s.Register(&funcJob{name: "blocking", run: func(ctx context.Context) error {
		once.Do(func() { close(started) })
		<-ctx.Done()
		return ctx.Err()
	}}, everyTick{}))

	require.NoError(t, s.Start(context.Background()))
	<-started
	require.NoError(t, s.Stop())

	info, err := s.GetJobInfo("blocking")
	require.NoError(t, err)
	require.NotNil(t, info.LastResult)
	assert.ErrorIs(t, info.LastResult.Error, context.Canceled)
	assert.False(t, info.Running)
}

func TestScheduler_RunNowRecordsFailuresAndPanics(t *testing.T) {
	s := newTestScheduler()
	boom := errors.New("boom")
	require.NoError(t, s.Register(&funcJob{name: "fails", run: func(context.Context) error { return boom }}, everyTick{}))
	require.NoError(t, s.Register(&funcJob{name: "panics", run: func(context.Context) error { panic("oops") }}, everyTick{}))

	var completed []string
	s.OnJobComplete(func(r JobResult) { completed = append(completed, r.JobName) })

	res, err := s.RunNow(context.Background(), "fails")
	assert.ErrorIs(t, err, boom)
	assert.True(t, res.Manual)
	assert.False(t, res.Success)

	_, err = s.RunNow(context.Background(), "panics")
	assert.ErrorIs(t, err, ErrJobPanicked)

	_, err = s.RunNow(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)

	assert.Equal(t, []string{"fails", "panics"}, completed)

	infos := s.ListJobs()
	require.Len(t, infos, 2)
	assert.Equal(t, "fails", infos[0].Name)
	assert.Equal(t, int64(1), infos[0].FailCount)
	assert.Equal(t, int64(1), infos[1].RunCount)

	hist := s.GetHistory(1)
	require.Len(t, hist, 1)
	assert.Equal(t, "panics", hist[0].JobName)
	assert.Len(t, s.GetHistory(0), 2)
}

func TestScheduler_DisabledJobDoesNotRun(t *testing.T) {
	s := newTestScheduler()
	var runs atomic.Int64
	require.NoError(t, s.Register(&funcJob{name: "off", run: func(context.Context) error {
		runs.Add(1)
		return nil
	}}, everyTick{}))
	require.NoError(t, s.DisableJob("off"))
	assert.ErrorIs(t, s.EnableJob("missing"), ErrJobNotFound)

	require.NoError(t, s.Start(context.Background()))
	time.Sleep(40 * time.Millisecond)
	assert.Zero(t, runs.Load())

	require.NoError(t, s.EnableJob("off"))
	require.Eventually(t, func() bool { return runs.Load() > 0 }, time.Second, 5*time.Millisecond)
	require.NoError(t, s.Stop())
}

func TestScheduler_HistoryIsBounded(t *testing.T) {
	cfg := DefaultSchedulerConfig()
	cfg.MaxHistorySize = 3
	s := NewScheduler(cfg)
	require.NoError(t, s.Register(&funcJob{name: "j", run: func(context.Context) error { return nil }}, everyTick{}))

	for i := 0; i < 5; i++ {
		_, err := s.RunNow(context.Background(), "j")
		require.NoError(t, err)
	}
	assert.Len(t, s.GetHistory(0), 3)
}
