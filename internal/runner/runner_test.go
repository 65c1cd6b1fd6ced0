package runner

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type stubTask struct {
	name     string
	schedule string
	runs     chan struct{}
	err      error
}

func (t *stubTask) Name() string           { return t.name }
func (t *stubTask) Schedule() string       { return t.schedule }
func (t *stubTask) Timeout() time.Duration { return time.Second }

func (t *stubTask) Run(context.Context) error {
	select {
	case t.runs <- struct{}{}:
	default:
	}
	return t.err
}

func TestRegistry(t *testing.T) {
	reg := NewTaskRegistry()
	task := &stubTask{name: "poll", schedule: "@every 1m"}
	reg.Register(task)

	got, ok := reg.Get("poll")
	require.True(t, ok)
	require.Same(t, task, got)

	_, ok = reg.Get("absent")
	require.False(t, ok)
	require.Len(t, reg.All(), 1)
}

func TestStartRejectsBadSchedule(t *testing.T) {
	reg := NewTaskRegistry()
	reg.Register(&stubTask{name: "broken", schedule: "not a schedule"})
	r := NewRunner(reg, WithRunnerLogger(log.New(io.Discard, "", 0)))

	err := r.Start(context.Background())
	require.ErrorContains(t, err, "schedule task broken")
}

func TestRunAtStartFiresImmediately(t *testing.T) {
	reg := NewTaskRegistry()
	task := &stubTask{name: "poll", schedule: "@every 1h", runs: make(chan struct{}, 1)}
	reg.Register(task)
	r := NewRunner(reg, WithRunnerLogger(log.New(io.Discard, "", 0)), WithRunAtStart())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Start(ctx) }()

	select {
	case <-task.runs:
	case <-time.After(5 * time.Second):
		t.Fatal("task did not run at start")
	}

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not stop")
	}
}

func TestTaskFailureDoesNotStopRunner(t *testing.T) {
	reg := NewTaskRegistry()
	task := &stubTask{name: "poll", schedule: "@every 1h", runs: make(chan struct{}, 1), err: errors.New("boom")}
	reg.Register(task)
	r := NewRunner(reg, WithRunnerLogger(log.New(io.Discard, "", 0)), WithRunAtStart())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Start(ctx) }()

	<-task.runs
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

type countingPoller struct {
	calls int
	err   error
}

func (p *countingPoller) PollOnce(context.Context) (int, error) {
	p.calls++
	return 0, p.err
}

func TestPollTask(t *testing.T) {
	p := &countingPoller{}
	task := NewPollTask(p, "@every 5m", 0)

	require.Equal(t, "mailbox-poll", task.Name())
	require.Equal(t, "@every 5m", task.Schedule())
	require.Equal(t, 2*time.Minute, task.Timeout())

	require.NoError(t, task.Run(context.Background()))
	require.Equal(t, 1, p.calls)

	p.err = errors.New("mailbox unreachable")
	require.Error(t, task.Run(context.Background()))
}
