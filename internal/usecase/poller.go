package usecase

import (
	"context"
	"encoding/json"
	"jobsched/internal/domain"
	"jobsched/internal/ports"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// PollInterval is the default pause between two mailbox passes.
const PollInterval = time.Second

// Poller bridges events pushed by other processes into the jobs that
// implement Poll. Each pass takes at most one event per mailbox.
type Poller struct {
	Mailbox  ports.Mailbox
	Registry *domain.Registry
	App      string
	Interval time.Duration
}

// Run passes over the mailboxes at most once per Interval until ctx is done.
func (p Poller) Run(ctx context.Context) error {
	interval := p.Interval
	if interval <= 0 {
		interval = PollInterval
	}
	limiter := rate.NewLimiter(rate.Every(interval), 1)
	for {
		if err := limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		p.Pass(ctx)
	}
}

// Pass polls the app-scoped then the wildcard mailbox of every pollable job
// and returns how many events were dispatched.
func (p Poller) Pass(ctx context.Context) int {
	n := 0
	for _, def := range p.Registry.All() {
		poller, ok := def.Poller()
		if !ok {
			continue
		}
		for _, app := range []string{p.App, "*"} {
			if p.dispatch(ctx, EventKey(app, def.Name), poller) {
				n++
			}
		}
	}
	return n
}

func (p Poller) dispatch(ctx context.Context, key string, poller domain.Poller) bool {
	logger := log.Ctx(ctx).With().Str("mailbox", key).Logger()

	msg, ok, err := p.Mailbox.PopTail(ctx, key)
	if err != nil {
		if ctx.Err() == nil {
			logger.Error().Err(err).Msg("mailbox read failed")
		}
		return false
	}
	if !ok {
		return false
	}

	var ev domain.Event
	if err := json.Unmarshal(msg, &ev); err != nil {
		logger.Error().Err(err).Msg("dropping malformed event")
		return false
	}

	logger.Debug().Int("bytes", len(ev.Data)).Msg("event received")
	if err := safely(func() error { return poller.Poll(ctx, ev.Data, domain.Meta{}) }); err != nil {
		logger.Error().Err(err).Msg("poll failed")
	}
	return true
}
