package startup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStartup(maxAttempts int) *Startup {
	s := New(ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}), maxAttempts)
	s.unit = time.Millisecond
	return s
}

func TestStartOrderAndStop(t *testing.T) {
	var events []string
	dep := func(name string, requires ...string) Func {
		return Func{
			DependencyName: name,
			Requires:       requires,
			StartFunc: func(context.Context) error {
				events = append(events, "start "+name)
				return nil
			},
			StopFunc: func(context.Context) error {
				events = append(events, "stop "+name)
				return nil
			},
		}
	}

	s := newTestStartup(1)
	s.Add(dep("pipeline", "database", "redis"))
	s.Add(dep("database"))
	s.Add(dep("redis"))

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, []string{"start database", "start redis", "start pipeline"}, events)
	assert.Equal(t, StatusStarted, s.Status("pipeline"))

	events = nil
	require.NoError(t, s.Stop(context.Background()))
	assert.Equal(t, []string{"stop redis", "stop database", "stop pipeline"}, events)
	assert.Equal(t, StatusStopped, s.Status("database"))
}

func TestStartRetries(t *testing.T) {
	attempts := 0
	s := newTestStartup(4)
	s.Add(Func{DependencyName: "database", StartFunc: func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("connection refused")
		}
		return nil
	}})

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, 3, attempts)
}

func TestStartGivesUp(t *testing.T) {
	boom := errors.New("connection refused")
	s := newTestStartup(2)
	s.Add(Func{DependencyName: "database", StartFunc: func(context.Context) error { return boom }})

	err := s.Start(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, StatusFailed, s.Status("database"))
	assert.NoError(t, s.Stop(context.Background()))
}

func TestStartUnknownAndCyclicDependencies(t *testing.T) {
	s := newTestStartup(1)
	s.Add(Func{DependencyName: "pipeline", Requires: []string{"database"}})
	assert.Error(t, s.Start(context.Background()))

	s = newTestStartup(1)
	s.Add(Func{DependencyName: "a", Requires: []string{"b"}})
	s.Add(Func{DependencyName: "b", Requires: []string{"a"}})
	assert.ErrorContains(t, s.Start(context.Background()), "cycle")
}

func TestStartCanceledDuringBackoff(t *testing.T) {
	s := newTestStartup(3)
	s.unit = time.Hour
	s.Add(Func{DependencyName: "database", StartFunc: func(context.Context) error { return errors.New("down") }})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Start(ctx), context.DeadlineExceeded)
}
