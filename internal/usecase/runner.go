package usecase

import (
	"context"
	"fmt"
	"jobsched/internal/domain"
	"time"

	"github.com/rs/zerolog/log"
)

// ContinueDelay is how soon a job that produced tasks runs again.
const ContinueDelay = time.Second

type Outcome int

const (
	// Terminated: Run produced nothing or failed, the entry is not resubmitted.
	Terminated Outcome = iota
	// Continued: tasks were queued and the entry comes back after the continue delay.
	Continued
	// Backpressured: the task backlog was full, Run was skipped and the entry
	// comes back after the job's retry delay.
	Backpressured
)

func (o Outcome) String() string {
	switch o {
	case Continued:
		return "continued"
	case Backpressured:
		return "backpressured"
	default:
		return "terminated"
	}
}

// JobRunner turns one job entry into tasks.
type JobRunner struct {
	Def           domain.Definition
	Runner        domain.Runner
	Enqueuer      *Enqueuer
	ContinueDelay time.Duration
}

func (r JobRunner) Handle(ctx context.Context, e domain.Entry) error {
	_, err := r.Process(ctx, e)
	return err
}

func (r JobRunner) Process(ctx context.Context, e domain.Entry) (Outcome, error) {
	logger := log.Ctx(ctx).With().Str("job", r.Def.Name).Str("id", e.ID).Logger()

	pending, err := r.Enqueuer.Tasks.Count(ctx)
	if err != nil {
		return Terminated, fmt.Errorf("count tasks of %s: %w", r.Def.Name, err)
	}

	if pending >= r.Def.Threshold() {
		logger.Info().
			Int64("pending", pending).
			Dur("delay", r.Def.RetryDelay).
			Msg("task queue full, delaying job")
		if _, err := r.Enqueuer.Start(ctx, e.Data, WithJobID(e.ID), WithDelay(r.Def.RetryDelay)); err != nil {
			return Backpressured, err
		}
		return Backpressured, nil
	}

	var collector domain.TaskCollector
	returned, err := r.Runner.Run(ctx, e.Data, &collector)
	if err != nil {
		return Terminated, fmt.Errorf("run %s: %w", r.Def.Name, err)
	}

	tasks := collector.Merge(returned)
	if len(tasks) == 0 {
		logger.Info().Msg("no tasks, job finished")
		return Terminated, nil
	}

	logger.Debug().Int("tasks", len(tasks)).Msg("queueing tasks")
	for _, t := range tasks {
		if err := r.Enqueuer.Task(ctx, t.Data, TaskOptions{Queue: t.Queue}); err != nil {
			return Terminated, err
		}
	}

	delay := r.ContinueDelay
	if delay <= 0 {
		delay = ContinueDelay
	}
	if _, err := r.Enqueuer.Start(ctx, e.Data, WithJobID(e.ID), WithDelay(delay)); err != nil {
		return Continued, err
	}
	return Continued, nil
}
