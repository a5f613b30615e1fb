package usecase_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"jobsched/internal/domain"
	"jobsched/internal/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsumer_PanicFailsEntry(t *testing.T) {
	enq := newEnqueuer(newBroker(t), "mail")
	require.NoError(t, enq.Task(context.Background(), "x", usecase.TaskOptions{}, usecase.WithJobID("boom")))

	var calls atomic.Int32
	c := usecase.Consumer{Q: enq.Tasks, Concurrency: 2, Lease: time.Second, PollInterval: 5 * time.Millisecond}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = c.Run(ctx, func(context.Context, domain.Entry) error {
			calls.Add(1)
			panic("handler exploded")
		})
	}()

	require.Eventually(t, func() bool {
		state, err := enq.Tasks.State(context.Background(), "boom")
		return err == nil && state == domain.StateFailed
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	<-done
	assert.Equal(t, int32(1), calls.Load())
}

func TestConsumer_ExtendsLeaseWhileRunning(t *testing.T) {
	enq := newEnqueuer(newBroker(t), "mail")
	require.NoError(t, enq.Task(context.Background(), "x", usecase.TaskOptions{}, usecase.WithJobID("slow")))

	c := usecase.Consumer{Q: enq.Tasks, Concurrency: 1, Lease: 150 * time.Millisecond, PollInterval: 5 * time.Millisecond}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	finished := make(chan struct{})
	go func() {
		_ = c.Run(ctx, func(context.Context, domain.Entry) error {
			time.Sleep(400 * time.Millisecond)
			close(finished)
			return nil
		})
	}()

	// Promote past the original lease: the heartbeat must have pushed it forward.
	require.Eventually(t, func() bool {
		state, err := enq.Tasks.State(context.Background(), "slow")
		return err == nil && state == domain.StateActive
	}, time.Second, 5*time.Millisecond)
	time.Sleep(250 * time.Millisecond)
	n, err := enq.Tasks.Promote(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)

	<-finished
}
