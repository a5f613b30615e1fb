package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"jobsched/internal/domain"

	"github.com/rs/zerolog/log"
)

// TaskExecutor runs the tasks of one job. Anonymous tasks carry their
// payload; named tasks read theirs from the head of the queue's mailbox.
type TaskExecutor struct {
	Def      domain.Definition
	Executor domain.Executor
	Enqueuer *Enqueuer
}

func (x TaskExecutor) Handle(ctx context.Context, e domain.Entry) error {
	if e.Kind == domain.KindQueueTask {
		return x.drain(ctx, e.ID)
	}
	if err := x.Executor.Execute(ctx, e.Data, domain.Meta{ID: e.ID}); err != nil {
		return fmt.Errorf("execute %s/%s: %w", x.Def.Name, e.ID, err)
	}
	return nil
}

// drain executes one mailbox item. The item is dropped only after Execute
// succeeds; only one drain per queue runs at a time because the trigger id
// is the queue name.
func (x TaskExecutor) drain(ctx context.Context, queue string) error {
	mb := x.Enqueuer.Mailbox
	key := x.Enqueuer.mailboxKey(queue)

	payload, ok, err := mb.Head(ctx, key)
	if err != nil {
		return err
	}
	if !ok {
		log.Ctx(ctx).Debug().Str("queue", queue).Msg("mailbox empty")
		return nil
	}

	if json.Valid(payload) {
		meta := domain.Meta{ID: queue, Queue: queue}
		if err := x.Executor.Execute(ctx, json.RawMessage(payload), meta); err != nil {
			return fmt.Errorf("execute %s/%s: %w", x.Def.Name, queue, err)
		}
	} else {
		log.Ctx(ctx).Warn().Str("queue", queue).Msg("dropping malformed mailbox item")
	}

	acked, err := mb.AckHead(ctx, key, payload)
	if err != nil {
		return err
	}
	if !acked {
		log.Ctx(ctx).Warn().Str("queue", queue).Msg("mailbox head changed during drain, item may have run twice")
	}

	left, err := mb.Len(ctx, key)
	if err != nil {
		return err
	}
	if left == 0 {
		return nil
	}
	return x.Enqueuer.Task(ctx, nil, TaskOptions{Queue: queue})
}
