package usecase_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"jobsched/internal/config"
	"jobsched/internal/domain"
	"jobsched/internal/infra/redisq"
	"jobsched/internal/ports"
	"jobsched/internal/usecase"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

const prefix = "test"

func newBroker(t *testing.T) *redisq.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	cli := redisq.New(config.Redis{Addr: mr.Addr(), KeyPrefix: prefix})
	t.Cleanup(func() { _ = cli.Close() })
	require.NoError(t, cli.Init(context.Background()))
	return cli
}

func newEnqueuer(cli *redisq.Client, job string) *usecase.Enqueuer {
	return &usecase.Enqueuer{
		Job:       job,
		Jobs:      cli.Queue(usecase.JobQueueName(job)),
		Tasks:     cli.Queue(usecase.TaskQueueName(job)),
		Mailbox:   cli.Mailbox(),
		KeyPrefix: prefix,
	}
}

// fakeJob implements every capability; nil funcs behave as no-ops.
type fakeJob struct {
	run  func(ctx context.Context, payload json.RawMessage, tasks *domain.TaskCollector) ([]domain.Task, error)
	exec func(ctx context.Context, payload json.RawMessage, meta domain.Meta) error
	poll func(ctx context.Context, event json.RawMessage, meta domain.Meta) error
}

func (f *fakeJob) Run(ctx context.Context, payload json.RawMessage, tasks *domain.TaskCollector) ([]domain.Task, error) {
	if f.run == nil {
		return nil, nil
	}
	return f.run(ctx, payload, tasks)
}

func (f *fakeJob) Execute(ctx context.Context, payload json.RawMessage, meta domain.Meta) error {
	if f.exec == nil {
		return nil
	}
	return f.exec(ctx, payload, meta)
}

func (f *fakeJob) Poll(ctx context.Context, event json.RawMessage, meta domain.Meta) error {
	if f.poll == nil {
		return nil
	}
	return f.poll(ctx, event, meta)
}

type recorder struct {
	mu    sync.Mutex
	calls []string
	metas []domain.Meta
}

func (r *recorder) record(payload json.RawMessage, meta domain.Meta) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, string(payload))
	r.metas = append(r.metas, meta)
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

// claim leases the single waiting entry of q and fails the test if none is ready.
func claim(t *testing.T, q ports.Queue) domain.Entry {
	t.Helper()
	e, err := q.Claim(context.Background(), time.Minute)
	require.NoError(t, err)
	require.NotNil(t, e)
	return *e
}
