package usecase_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"jobsched/internal/domain"
	"jobsched/internal/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newJobRunner(t *testing.T, def domain.Definition) (usecase.JobRunner, *usecase.Enqueuer) {
	t.Helper()
	reg, err := domain.NewRegistry(def)
	require.NoError(t, err)
	def, _ = reg.Get(def.Name)

	enq := newEnqueuer(newBroker(t), def.Name)
	runner, ok := def.Runner()
	require.True(t, ok)
	return usecase.JobRunner{Def: def, Runner: runner, Enqueuer: enq}, enq
}

func TestJobRunner_QueuesTasksAndContinues(t *testing.T) {
	ctx := context.Background()
	job := &fakeJob{
		run: func(_ context.Context, payload json.RawMessage, _ *domain.TaskCollector) ([]domain.Task, error) {
			assert.JSONEq(t, `{"campaign":7}`, string(payload))
			return []domain.Task{{Data: map[string]int{"u": 1}}, {Data: map[string]int{"u": 2}}}, nil
		},
	}
	r, enq := newJobRunner(t, domain.Definition{Name: "sendCampaign", Concurrency: 4, Job: job})

	id, err := enq.Start(ctx, map[string]int{"campaign": 7})
	require.NoError(t, err)

	e := claim(t, enq.Jobs)
	outcome, err := r.Process(ctx, e)
	require.NoError(t, err)
	assert.Equal(t, usecase.Continued, outcome)
	require.NoError(t, enq.Jobs.Complete(ctx, e, nil))

	n, err := enq.Tasks.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	delayed, err := enq.Jobs.Delayed(ctx)
	require.NoError(t, err)
	require.Len(t, delayed, 1)
	assert.Equal(t, id, delayed[0].ID)
	assert.Equal(t, time.Second, delayed[0].Delay)
	assert.JSONEq(t, `{"campaign":7}`, string(delayed[0].Data))
}

func TestJobRunner_MergesCollectedBeforeReturned(t *testing.T) {
	ctx := context.Background()
	job := &fakeJob{
		run: func(_ context.Context, _ json.RawMessage, tasks *domain.TaskCollector) ([]domain.Task, error) {
			tasks.Add(domain.Task{Data: "first", Queue: "ordered"})
			tasks.Add(domain.Task{Data: nil})
			return []domain.Task{{Data: "second", Queue: "ordered"}}, nil
		},
	}
	r, enq := newJobRunner(t, domain.Definition{Name: "digest", Job: job})

	_, err := enq.Start(ctx, nil)
	require.NoError(t, err)
	outcome, err := r.Process(ctx, claim(t, enq.Jobs))
	require.NoError(t, err)
	assert.Equal(t, usecase.Continued, outcome)

	key := usecase.MailboxKey(prefix, "ordered")
	head, ok, err := enq.Mailbox.Head(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `"first"`, string(head))

	size, err := enq.Mailbox.Len(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(2), size)
}

func TestJobRunner_BackpressureSkipsRun(t *testing.T) {
	ctx := context.Background()
	called := false
	job := &fakeJob{
		run: func(context.Context, json.RawMessage, *domain.TaskCollector) ([]domain.Task, error) {
			called = true
			return []domain.Task{{Data: 1}}, nil
		},
	}
	r, enq := newJobRunner(t, domain.Definition{Name: "sendCampaign", Concurrency: 4, RetryDelay: 3 * time.Second, Job: job})

	for range 10 {
		require.NoError(t, enq.Task(ctx, 1, usecase.TaskOptions{}))
	}
	_, err := enq.Start(ctx, nil, usecase.WithJobID("campaign-1"))
	require.NoError(t, err)

	e := claim(t, enq.Jobs)
	outcome, err := r.Process(ctx, e)
	require.NoError(t, err)
	assert.Equal(t, usecase.Backpressured, outcome)
	assert.False(t, called)
	require.NoError(t, enq.Jobs.Complete(ctx, e, nil))

	n, err := enq.Tasks.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(10), n)

	delayed, err := enq.Jobs.Delayed(ctx)
	require.NoError(t, err)
	require.Len(t, delayed, 1)
	assert.Equal(t, "campaign-1", delayed[0].ID)
	assert.Equal(t, 3*time.Second, delayed[0].Delay)
}

func TestJobRunner_ThresholdIsInclusive(t *testing.T) {
	ctx := context.Background()
	r, enq := newJobRunner(t, domain.Definition{Name: "small", Concurrency: 1, Job: &fakeJob{}})

	require.NoError(t, enq.Task(ctx, 1, usecase.TaskOptions{}))
	require.NoError(t, enq.Task(ctx, 2, usecase.TaskOptions{}, usecase.WithDelay(time.Hour)))
	_, err := enq.Start(ctx, nil)
	require.NoError(t, err)

	outcome, err := r.Process(ctx, claim(t, enq.Jobs))
	require.NoError(t, err)
	assert.Equal(t, usecase.Backpressured, outcome, "delayed tasks count towards the backlog")
}

func TestJobRunner_NoTasksTerminates(t *testing.T) {
	ctx := context.Background()
	r, enq := newJobRunner(t, domain.Definition{Name: "idle", Job: &fakeJob{}})

	id, err := enq.Start(ctx, nil)
	require.NoError(t, err)

	e := claim(t, enq.Jobs)
	outcome, err := r.Process(ctx, e)
	require.NoError(t, err)
	assert.Equal(t, usecase.Terminated, outcome)
	require.NoError(t, enq.Jobs.Complete(ctx, e, nil))

	state, err := enq.Jobs.State(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StateCompleted, state)

	n, err := enq.Jobs.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestJobRunner_FalsyTasksAreDropped(t *testing.T) {
	ctx := context.Background()
	job := &fakeJob{
		run: func(_ context.Context, _ json.RawMessage, tasks *domain.TaskCollector) ([]domain.Task, error) {
			tasks.Add(domain.Task{Data: nil}, domain.Task{Data: 0, Queue: "ordered"})
			return []domain.Task{{Data: false}, {Data: 0}, {Data: ""}, {Data: json.RawMessage(`false`)}}, nil
		},
	}
	r, enq := newJobRunner(t, domain.Definition{Name: "empty", Job: job})

	_, err := enq.Start(ctx, nil)
	require.NoError(t, err)
	outcome, err := r.Process(ctx, claim(t, enq.Jobs))
	require.NoError(t, err)
	assert.Equal(t, usecase.Terminated, outcome)

	n, err := enq.Tasks.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	size, err := enq.Mailbox.Len(ctx, usecase.MailboxKey(prefix, "ordered"))
	require.NoError(t, err)
	assert.Zero(t, size)
}

func TestJobRunner_RunErrorStopsInstance(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("upstream down")
	job := &fakeJob{
		run: func(context.Context, json.RawMessage, *domain.TaskCollector) ([]domain.Task, error) {
			return nil, boom
		},
	}
	r, enq := newJobRunner(t, domain.Definition{Name: "flaky", Job: job})

	id, err := enq.Start(ctx, nil)
	require.NoError(t, err)

	e := claim(t, enq.Jobs)
	err = r.Handle(ctx, e)
	require.ErrorIs(t, err, boom)
	require.NoError(t, enq.Jobs.Complete(ctx, e, err))

	state, err := enq.Jobs.State(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StateFailed, state)

	n, err := enq.Jobs.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
