package usecase

import (
	"context"
	"jobsched/internal/ports"
	"time"

	"github.com/rs/zerolog/log"
)

// Promoter moves due delayed entries and expired leases back to waiting.
type Promoter struct {
	Queues   []ports.Queue
	Interval time.Duration
}

func NewPromoter(interval time.Duration, queues ...ports.Queue) *Promoter {
	return &Promoter{Queues: queues, Interval: interval}
}

func (p *Promoter) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()
	for {
		p.promote(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (p *Promoter) promote(ctx context.Context) {
	now := time.Now()
	for _, q := range p.Queues {
		n, err := q.Promote(ctx, now)
		if err != nil {
			if ctx.Err() == nil {
				log.Ctx(ctx).Err(err).Str("queue", q.Name()).Msg("promote failed")
			}
			continue
		}
		if n > 0 {
			log.Ctx(ctx).Trace().Str("queue", q.Name()).Int("moved", n).Msg("promoted entries")
		}
	}
}
