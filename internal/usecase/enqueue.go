package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"jobsched/internal/domain"
	"jobsched/internal/ports"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var (
	jobKeepCompleted = domain.Retention{Age: time.Hour, Count: 100}
	jobKeepFailed    = domain.Retention{Age: 24 * time.Hour, Count: 500}
	taskKeepFailed   = domain.Retention{Age: time.Hour, Count: 1000}
)

type addConfig struct {
	id    string
	delay time.Duration
	roc   domain.Retention
	rof   domain.Retention
}

// AddOption overrides how an entry is added to its queue.
type AddOption func(*addConfig)

func WithJobID(id string) AddOption {
	return func(c *addConfig) { c.id = id }
}

func WithDelay(d time.Duration) AddOption {
	return func(c *addConfig) { c.delay = d }
}

func WithRemoveOnComplete(r domain.Retention) AddOption {
	return func(c *addConfig) { c.roc = r }
}

func WithRemoveOnFail(r domain.Retention) AddOption {
	return func(c *addConfig) { c.rof = r }
}

func applyAdd(base addConfig, opts []AddOption) addConfig {
	for _, o := range opts {
		o(&base)
	}
	return base
}

type TaskOptions struct {
	// Queue selects named mode: tasks sharing a Queue run one at a time, in order.
	Queue string
}

type queueRef struct {
	Queue string `json:"queue"`
}

// Enqueuer submits entries for one job.
type Enqueuer struct {
	Job       string
	Jobs      ports.Queue
	Tasks     ports.Queue
	Mailbox   ports.Mailbox
	KeyPrefix string
}

func (e *Enqueuer) mailboxKey(queue string) string {
	return MailboxKey(e.KeyPrefix, queue)
}

// Start submits a job entry and returns its id. Submitting an id that is
// already waiting or delayed is a no-op.
func (e *Enqueuer) Start(ctx context.Context, data any, opts ...AddOption) (string, error) {
	raw, err := encode(data)
	if err != nil {
		return "", fmt.Errorf("start %s: %w", e.Job, err)
	}
	cfg := applyAdd(addConfig{roc: jobKeepCompleted, rof: jobKeepFailed}, opts)
	if cfg.id == "" {
		cfg.id = uuid.NewString()
	}

	res, err := e.Jobs.Add(ctx, domain.Entry{
		ID:               cfg.id,
		Kind:             domain.KindRead,
		Data:             raw,
		Delay:            cfg.delay,
		RemoveOnComplete: cfg.roc,
		RemoveOnFail:     cfg.rof,
	})
	if err != nil {
		return "", fmt.Errorf("start %s: %w", e.Job, err)
	}

	log.Ctx(ctx).Debug().
		Str("job", e.Job).
		Str("id", cfg.id).
		Dur("delay", cfg.delay).
		Stringer("result", res).
		Msg("job entry added")
	return cfg.id, nil
}

// StartOnce submits a job entry with the given id unless one is still
// waiting, delayed or running. It reports whether an entry was added.
func (e *Enqueuer) StartOnce(ctx context.Context, id string, data any, opts ...AddOption) (bool, error) {
	state, err := e.Jobs.State(ctx, id)
	if err != nil {
		return false, fmt.Errorf("start %s: %w", e.Job, err)
	}
	if state.Pending() {
		return false, nil
	}
	if _, err := e.Start(ctx, data, append(opts, WithJobID(id))...); err != nil {
		return false, err
	}
	return true, nil
}

// Task submits a task. In named mode the payload goes to the mailbox of
// taskOpts.Queue and at most one drain trigger for that queue is kept.
func (e *Enqueuer) Task(ctx context.Context, data any, taskOpts TaskOptions, opts ...AddOption) error {
	if taskOpts.Queue != "" {
		return e.namedTask(ctx, data, taskOpts.Queue, opts)
	}

	raw, err := encode(data)
	if err != nil {
		return fmt.Errorf("task %s: %w", e.Job, err)
	}
	cfg := applyAdd(addConfig{id: uuid.NewString(), roc: domain.RemoveAlways, rof: taskKeepFailed}, opts)

	_, err = e.Tasks.Add(ctx, domain.Entry{
		ID:               cfg.id,
		Kind:             domain.KindExecute,
		Data:             raw,
		Delay:            cfg.delay,
		RemoveOnComplete: cfg.roc,
		RemoveOnFail:     cfg.rof,
	})
	if err != nil {
		return fmt.Errorf("task %s: %w", e.Job, err)
	}
	return nil
}

func (e *Enqueuer) namedTask(ctx context.Context, data any, queue string, opts []AddOption) error {
	if !(domain.Task{Data: data}).Zero() {
		raw, err := encode(data)
		if err != nil {
			return fmt.Errorf("task %s/%s: %w", e.Job, queue, err)
		}
		if err := e.Mailbox.Append(ctx, e.mailboxKey(queue), raw); err != nil {
			return fmt.Errorf("task %s/%s: %w", e.Job, queue, err)
		}
	}

	ref, err := json.Marshal(queueRef{Queue: queue})
	if err != nil {
		return err
	}
	cfg := applyAdd(addConfig{roc: domain.RemoveAlways, rof: domain.RemoveAlways}, opts)

	res, err := e.Tasks.Add(ctx, domain.Entry{
		ID:               queue,
		Kind:             domain.KindQueueTask,
		Data:             ref,
		Delay:            cfg.delay,
		RemoveOnComplete: cfg.roc,
		RemoveOnFail:     cfg.rof,
	})
	if err != nil {
		return fmt.Errorf("task %s/%s: %w", e.Job, queue, err)
	}

	log.Ctx(ctx).Trace().
		Str("job", e.Job).
		Str("queue", queue).
		Stringer("result", res).
		Msg("drain trigger added")
	return nil
}

func encode(data any) (json.RawMessage, error) {
	switch v := data.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return v, nil
	}
	b, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return b, nil
}
