package runner

import (
	"context"
	"time"
)

// mailboxPoller is the slice of the poller the task consumes.
type mailboxPoller interface {
	PollOnce(ctx context.Context) (int, error)
}

// PollTask runs one mailbox poll cycle per scheduled slot.
type PollTask struct {
	poller   mailboxPoller
	schedule string
	timeout  time.Duration
}

// NewPollTask builds the recurring mailbox poll task.
func NewPollTask(poller mailboxPoller, schedule string, timeout time.Duration) *PollTask {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &PollTask{poller: poller, schedule: schedule, timeout: timeout}
}

func (t *PollTask) Name() string { return "mailbox-poll" }

func (t *PollTask) Schedule() string { return t.schedule }

func (t *PollTask) Timeout() time.Duration { return t.timeout }

func (t *PollTask) Run(ctx context.Context) error {
	_, err := t.poller.PollOnce(ctx)
	return err
}
