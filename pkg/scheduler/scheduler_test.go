package scheduler

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/pipeline"
)

type fakeRunner struct {
	mu    sync.Mutex
	runs  int
	err   error
	block bool
}

func (f *fakeRunner) Run(ctx context.Context, today time.Time) (*pipeline.Report, error) {
	f.mu.Lock()
	f.runs++
	n := f.runs
	f.mu.Unlock()

	if f.block {
		<-ctx.Done()
		return &pipeline.Report{RunID: fmt.Sprintf("run-%d", n), Aborted: true}, ctx.Err()
	}
	return &pipeline.Report{RunID: fmt.Sprintf("run-%d", n)}, f.err
}

func (f *fakeRunner) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs
}

func noopLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func TestSchedulerRunsImmediatelyAndOnInterval(t *testing.T) {
	runner := &fakeRunner{}
	s := NewScheduler(runner, Config{Interval: 20 * time.Millisecond}, noopLogger())

	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.IsRunning())
	assert.ErrorIs(t, s.Start(context.Background()), ErrSchedulerAlreadyRunning)

	assert.Eventually(t, func() bool { return runner.count() >= 3 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	assert.False(t, s.IsRunning())

	st := s.Status()
	assert.GreaterOrEqual(t, st.Runs, 3)
	assert.NotEmpty(t, st.LastRunID)
	assert.NoError(t, st.LastErr)
	assert.NoError(t, s.Ping(context.Background()))

	require.NoError(t, s.Stop(ctx), "stopping twice is a no-op")
}

func TestSchedulerStopCancelsRun(t *testing.T) {
	runner := &fakeRunner{block: true}
	s := NewScheduler(runner, Config{Interval: time.Hour}, noopLogger())

	require.NoError(t, s.Start(context.Background()))
	assert.Eventually(t, func() bool { return runner.count() == 1 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))

	assert.ErrorIs(t, s.Status().LastErr, context.Canceled)
}

func TestSchedulerPingReportsStorageLoss(t *testing.T) {
	runner := &fakeRunner{err: fmt.Errorf("%w: connection refused", pipeline.ErrStorageUnavailable)}
	s := NewScheduler(runner, Config{Interval: time.Hour}, noopLogger())

	require.NoError(t, s.Start(context.Background()))
	assert.Eventually(t, func() bool { return s.Status().Runs == 1 }, time.Second, 5*time.Millisecond)

	assert.ErrorIs(t, s.Ping(context.Background()), pipeline.ErrStorageUnavailable)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
}

func TestNewSchedulerDefaults(t *testing.T) {
	s := NewScheduler(&fakeRunner{}, Config{}, noopLogger())
	assert.Equal(t, DefaultInterval, s.config.Interval)
}
