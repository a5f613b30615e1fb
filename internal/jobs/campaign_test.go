package jobs_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"jobsched/internal/domain"
	"jobsched/internal/jobs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendCampaign_RunsOutAfterTwoBatches(t *testing.T) {
	ctx := context.Background()
	job := jobs.NewSendCampaign(
		jobs.Recipient{Address: "a"},
		jobs.Recipient{Address: "b"},
		jobs.Recipient{Address: "c"},
	)

	tasks, err := job.Run(ctx, nil, &domain.TaskCollector{})
	require.NoError(t, err)
	assert.Equal(t, []domain.Task{
		{Data: jobs.Recipient{Address: "c"}},
		{Data: jobs.Recipient{Address: "b"}},
	}, tasks)

	tasks, err = job.Run(ctx, nil, &domain.TaskCollector{})
	require.NoError(t, err)
	assert.Equal(t, []domain.Task{{Data: jobs.Recipient{Address: "a"}}}, tasks)

	tasks, err = job.Run(ctx, nil, &domain.TaskCollector{})
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestSendCampaign_PollAddsRecipients(t *testing.T) {
	ctx := context.Background()
	job := jobs.NewSendCampaign()

	require.NoError(t, job.Poll(ctx, json.RawMessage(`{"campaign":"x","address":"a"}`), domain.Meta{}))
	require.NoError(t, job.Poll(ctx, json.RawMessage(`[{"address":"b"},{"address":"c"}]`), domain.Meta{}))
	assert.Equal(t, 3, job.Pending())

	assert.Error(t, job.Poll(ctx, json.RawMessage(`"nope"`), domain.Meta{}))
	assert.Equal(t, 3, job.Pending())
}

func TestSendCampaign_Execute(t *testing.T) {
	job := jobs.NewSendCampaign()
	job.Pause = time.Millisecond

	err := job.Execute(context.Background(), json.RawMessage(`{"campaign":"x","address":"a"}`), domain.Meta{ID: "t1"})
	assert.NoError(t, err)

	assert.Error(t, job.Execute(context.Background(), json.RawMessage(`[]`), domain.Meta{}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	job.Pause = time.Hour
	err = job.Execute(ctx, json.RawMessage(`{}`), domain.Meta{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDefinitions_Register(t *testing.T) {
	reg, err := domain.NewRegistry(jobs.Definitions()...)
	require.NoError(t, err)

	def, ok := reg.Get("sendCampaign")
	require.True(t, ok)
	assert.Equal(t, 4, def.Concurrency)
	assert.Equal(t, int64(8), def.Threshold())
}
