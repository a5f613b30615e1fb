package usecase_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"jobsched/internal/domain"
	"jobsched/internal/usecase"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTaskExecutor(t *testing.T, job *fakeJob) (usecase.TaskExecutor, *usecase.Enqueuer) {
	t.Helper()
	def := domain.Definition{Name: "mail", Job: job}
	enq := newEnqueuer(newBroker(t), def.Name)
	return usecase.TaskExecutor{Def: def, Executor: job, Enqueuer: enq}, enq
}

func TestTaskExecutor_Anonymous(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	x, enq := newTaskExecutor(t, &fakeJob{
		exec: func(_ context.Context, payload json.RawMessage, meta domain.Meta) error {
			rec.record(payload, meta)
			return nil
		},
	})

	require.NoError(t, enq.Task(ctx, map[string]string{"to": "a@x"}, usecase.TaskOptions{}))
	e := claim(t, enq.Tasks)
	require.NoError(t, x.Handle(ctx, e))

	require.Equal(t, []string{`{"to":"a@x"}`}, rec.snapshot())
	assert.Equal(t, e.ID, rec.metas[0].ID)
	assert.Empty(t, rec.metas[0].Queue)
}

func TestTaskExecutor_DrainsNamedQueueInOrder(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	x, enq := newTaskExecutor(t, &fakeJob{
		exec: func(_ context.Context, payload json.RawMessage, meta domain.Meta) error {
			rec.record(payload, meta)
			return nil
		},
	})

	require.NoError(t, enq.Task(ctx, 1, usecase.TaskOptions{Queue: "user-42"}))
	require.NoError(t, enq.Task(ctx, 2, usecase.TaskOptions{Queue: "user-42"}))

	e := claim(t, enq.Tasks)
	require.NoError(t, x.Handle(ctx, e))
	require.NoError(t, enq.Tasks.Complete(ctx, e, nil))

	// The continuation trigger was armed when the first lease completed.
	n, err := enq.Tasks.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	e = claim(t, enq.Tasks)
	assert.Equal(t, domain.KindQueueTask, e.Kind)
	require.NoError(t, x.Handle(ctx, e))
	require.NoError(t, enq.Tasks.Complete(ctx, e, nil))

	assert.Equal(t, []string{`1`, `2`}, rec.snapshot())
	assert.Equal(t, domain.Meta{ID: "user-42", Queue: "user-42"}, rec.metas[1])

	n, err = enq.Tasks.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	state, err := enq.Tasks.State(ctx, "user-42")
	require.NoError(t, err)
	assert.Equal(t, domain.StateMissing, state)
}

func TestTaskExecutor_EmptyMailboxIsNoop(t *testing.T) {
	ctx := context.Background()
	called := false
	x, enq := newTaskExecutor(t, &fakeJob{
		exec: func(context.Context, json.RawMessage, domain.Meta) error {
			called = true
			return nil
		},
	})

	require.NoError(t, enq.Task(ctx, nil, usecase.TaskOptions{Queue: "user-42"}))
	require.NoError(t, x.Handle(ctx, claim(t, enq.Tasks)))
	assert.False(t, called)
}

func TestTaskExecutor_FailureKeepsPayload(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("smtp down")
	x, enq := newTaskExecutor(t, &fakeJob{
		exec: func(context.Context, json.RawMessage, domain.Meta) error { return boom },
	})

	require.NoError(t, enq.Task(ctx, 1, usecase.TaskOptions{Queue: "user-42"}))
	e := claim(t, enq.Tasks)
	err := x.Handle(ctx, e)
	require.ErrorIs(t, err, boom)
	require.NoError(t, enq.Tasks.Complete(ctx, e, err))

	key := usecase.MailboxKey(prefix, "user-42")
	head, ok, err := enq.Mailbox.Head(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `1`, string(head))

	// Nothing retriggers the queue until another task is submitted to it.
	n, err := enq.Tasks.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestTaskExecutor_DropsMalformedItem(t *testing.T) {
	ctx := context.Background()
	called := false
	x, enq := newTaskExecutor(t, &fakeJob{
		exec: func(context.Context, json.RawMessage, domain.Meta) error {
			called = true
			return nil
		},
	})

	key := usecase.MailboxKey(prefix, "user-42")
	require.NoError(t, enq.Mailbox.Append(ctx, key, []byte(`{broken`)))
	require.NoError(t, enq.Task(ctx, nil, usecase.TaskOptions{Queue: "user-42"}))

	require.NoError(t, x.Handle(ctx, claim(t, enq.Tasks)))
	assert.False(t, called)

	size, err := enq.Mailbox.Len(ctx, key)
	require.NoError(t, err)
	assert.Zero(t, size)
}

func TestTaskExecutor_WarnsWhenHeadChangedDuringDrain(t *testing.T) {
	var buf bytes.Buffer
	ctx := zerolog.New(&buf).WithContext(context.Background())
	key := usecase.MailboxKey(prefix, "user-42")

	var x usecase.TaskExecutor
	var enq *usecase.Enqueuer
	x, enq = newTaskExecutor(t, &fakeJob{
		exec: func(ctx context.Context, _ json.RawMessage, _ domain.Meta) error {
			// Another drain of the same queue got to the item first.
			_, err := enq.Mailbox.AckHead(ctx, key, []byte(`1`))
			return err
		},
	})

	require.NoError(t, enq.Task(ctx, 1, usecase.TaskOptions{Queue: "user-42"}))
	require.NoError(t, enq.Task(ctx, 2, usecase.TaskOptions{Queue: "user-42"}))
	require.NoError(t, x.Handle(ctx, claim(t, enq.Tasks)))

	assert.Contains(t, buf.String(), "mailbox head changed during drain")

	head, ok, err := enq.Mailbox.Head(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `2`, string(head), "the unrelated head is left in place")
}
