package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"jobsched/internal/domain"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Recipient is one delivery of a campaign.
type Recipient struct {
	Campaign string `json:"campaign"`
	Address  string `json:"address"`
}

// SendCampaign hands out its pending recipients two per run and delivers
// each one as an anonymous task. Recipients pushed through the event
// mailbox are appended to the backlog.
type SendCampaign struct {
	// Batch is how many recipients a single run hands out.
	Batch int
	// Pause simulates the delivery latency of one recipient.
	Pause time.Duration

	mu      sync.Mutex
	pending []Recipient
}

func NewSendCampaign(recipients ...Recipient) *SendCampaign {
	return &SendCampaign{Batch: 2, Pause: 5 * time.Second, pending: recipients}
}

func (s *SendCampaign) Run(ctx context.Context, payload json.RawMessage, _ *domain.TaskCollector) ([]domain.Task, error) {
	s.mu.Lock()
	n := min(max(s.Batch, 1), len(s.pending))
	batch := s.pending[len(s.pending)-n:]
	s.pending = s.pending[:len(s.pending)-n]
	s.mu.Unlock()

	log.Ctx(ctx).Info().RawJSON("payload", orNull(payload)).Int("batch", len(batch)).Msg("reading campaign")

	tasks := make([]domain.Task, 0, len(batch))
	for i := len(batch) - 1; i >= 0; i-- {
		tasks = append(tasks, domain.Task{Data: batch[i]})
	}
	return tasks, nil
}

func (s *SendCampaign) Execute(ctx context.Context, payload json.RawMessage, meta domain.Meta) error {
	var r Recipient
	if err := json.Unmarshal(payload, &r); err != nil {
		return fmt.Errorf("decode recipient: %w", err)
	}
	log.Ctx(ctx).Info().Str("campaign", r.Campaign).Str("address", r.Address).Str("task", meta.ID).Msg("executing")

	t := time.NewTimer(s.Pause)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
	}
	return nil
}

// Poll accepts a single recipient or a list of them.
func (s *SendCampaign) Poll(ctx context.Context, event json.RawMessage, _ domain.Meta) error {
	var list []Recipient
	if err := json.Unmarshal(event, &list); err != nil {
		var one Recipient
		if err := json.Unmarshal(event, &one); err != nil {
			return fmt.Errorf("decode recipients: %w", err)
		}
		list = []Recipient{one}
	}

	s.mu.Lock()
	s.pending = append(list, s.pending...)
	s.mu.Unlock()

	log.Ctx(ctx).Info().Int("added", len(list)).Msg("recipients queued")
	return nil
}

// Pending returns how many recipients are still waiting to be handed out.
func (s *SendCampaign) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func orNull(b json.RawMessage) json.RawMessage {
	if len(b) == 0 {
		return json.RawMessage("null")
	}
	return b
}
