// Package runner schedules recurring background tasks on cron expressions
// and shuts them down cleanly on signals.
package runner

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
)

// Runner manages and executes scheduled background tasks.
type Runner struct {
	cron     *cron.Cron
	registry *TaskRegistry
	logger   *log.Logger
	wg       sync.WaitGroup

	// runAtStart fires every task once immediately, before its first
	// scheduled slot, so a restart does not wait a full interval.
	runAtStart bool
}

// RunnerOption customizes the runner.
type RunnerOption func(*Runner)

// NewRunner creates a task runner over the given registry.
func NewRunner(registry *TaskRegistry, opts ...RunnerOption) *Runner {
	r := &Runner{
		cron:     cron.New(),
		registry: registry,
		logger:   log.New(os.Stdout, "[runner] ", log.LstdFlags),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// WithRunnerLogger overrides the runner's logger.
func WithRunnerLogger(logger *log.Logger) RunnerOption {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithRunAtStart makes every task run once as soon as the runner starts.
func WithRunAtStart() RunnerOption {
	return func(r *Runner) {
		r.runAtStart = true
	}
}

// Start schedules every registered task and blocks until a termination
// signal arrives or the context is cancelled.
func (r *Runner) Start(ctx context.Context) error {
	for name, task := range r.registry.All() {
		r.logger.Printf("scheduling task %s: %s", name, task.Schedule())

		_, err := r.cron.AddFunc(task.Schedule(), func() {
			r.executeTask(ctx, task)
		})
		if err != nil {
			return fmt.Errorf("schedule task %s: %w", name, err)
		}
	}

	r.cron.Start()
	if r.runAtStart {
		for _, task := range r.registry.All() {
			go r.executeTask(ctx, task)
		}
	}

	return r.waitForShutdown(ctx)
}

// executeTask runs a single task with its timeout applied. Failures are
// logged and never stop the schedule.
func (r *Runner) executeTask(ctx context.Context, task Task) {
	r.wg.Add(1)
	defer r.wg.Done()

	taskCtx, cancel := context.WithTimeout(ctx, task.Timeout())
	defer cancel()

	start := time.Now()
	err := task.Run(taskCtx)
	duration := time.Since(start)

	if err != nil {
		r.logger.Printf("task %s failed after %v: %v", task.Name(), duration, err)
	} else {
		r.logger.Printf("task %s completed in %v", task.Name(), duration)
	}
}

// Stop stops the schedule and waits for in-flight tasks to finish.
func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	r.wg.Wait()
	<-ctx.Done()
	r.logger.Println("task runner stopped")
}

// waitForShutdown blocks on termination signals or context cancellation.
func (r *Runner) waitForShutdown(ctx context.Context) error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		r.logger.Printf("received signal %v, shutting down", sig)
		r.Stop()
		return nil
	case <-ctx.Done():
		r.Stop()
		return ctx.Err()
	}
}
