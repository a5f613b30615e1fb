package usecase

import (
	"context"
	"errors"
	"jobsched/internal/domain"
	"jobsched/internal/ports"
	"jobsched/pkg/backoff"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

type Handler func(ctx context.Context, e domain.Entry) error

// Consumer drains one queue with a fixed number of workers. Each claimed
// entry is leased; the lease is extended while the handler runs and the
// entry is completed whatever the handler returns.
type Consumer struct {
	Q            ports.Queue
	Concurrency  int
	Lease        time.Duration
	PollInterval time.Duration
	BaseBackoff  time.Duration
	MaxBackoff   time.Duration
}

// Run blocks until ctx is done.
func (c Consumer) Run(ctx context.Context, handle Handler) error {
	workers := max(c.Concurrency, 1)

	log.Ctx(ctx).Info().
		Str("queue", c.Q.Name()).
		Int("concurrency", workers).
		Msg("consumer starting")

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.loop(ctx, handle)
		}()
	}
	wg.Wait()
	return nil
}

func (c Consumer) loop(ctx context.Context, handle Handler) {
	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		e, err := c.Q.Claim(ctx, c.Lease)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			failures++
			log.Ctx(ctx).Error().Err(err).Str("queue", c.Q.Name()).Int("failures", failures).Msg("claim failed")
			c.sleep(ctx, backoff.ExponentialJitter(c.BaseBackoff, c.MaxBackoff, failures))
			continue
		}
		failures = 0

		if e == nil {
			c.sleep(ctx, c.PollInterval)
			continue
		}
		c.process(ctx, *e, handle)
	}
}

func (c Consumer) process(ctx context.Context, e domain.Entry, handle Handler) {
	logger := log.Ctx(ctx).With().
		Str("queue", c.Q.Name()).
		Str("id", e.ID).
		Str("kind", string(e.Kind)).
		Logger()

	hbCtx, stop := context.WithCancel(ctx)
	go c.heartbeat(hbCtx, e)

	err := safely(func() error { return handle(logger.WithContext(ctx), e) })
	stop()
	if err != nil {
		logger.Error().Err(err).Int("attempts", e.Attempts).Msg("entry failed")
	}

	// Completion must land even while shutting down, or the entry waits for its lease to expire.
	if cerr := c.Q.Complete(context.WithoutCancel(ctx), e, err); cerr != nil {
		if errors.Is(cerr, domain.ErrLeaseLost) {
			logger.Warn().Err(cerr).Msg("lease expired before completion, entry was handed out again")
			return
		}
		logger.Error().Err(cerr).Msg("complete failed")
	}
}

func (c Consumer) heartbeat(ctx context.Context, e domain.Entry) {
	every := c.Lease / 3
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := c.Q.Extend(ctx, e, c.Lease)
			if err == nil || ctx.Err() != nil {
				continue
			}
			logger := log.Ctx(ctx).With().Str("queue", c.Q.Name()).Str("id", e.ID).Logger()
			if errors.Is(err, domain.ErrLeaseLost) {
				logger.Warn().Msg("lease lost while running, entry was handed out again")
				return
			}
			logger.Warn().Err(err).Msg("lease extend failed")
		}
	}
}

func (c Consumer) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		d = 100 * time.Millisecond
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
