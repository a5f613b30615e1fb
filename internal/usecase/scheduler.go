package usecase

import (
	"context"
	"fmt"
	"jobsched/internal/domain"
	"jobsched/internal/ports"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

type Options struct {
	App             string
	KeyPrefix       string
	PollInterval    time.Duration
	PromoteInterval time.Duration
	ClaimInterval   time.Duration
	Lease           time.Duration
	ContinueDelay   time.Duration
	BaseBackoff     time.Duration
	MaxBackoff      time.Duration
}

func (o Options) withDefaults() Options {
	if o.App == "" {
		o.App = "app"
	}
	if o.KeyPrefix == "" {
		o.KeyPrefix = "jq"
	}
	if o.PollInterval <= 0 {
		o.PollInterval = PollInterval
	}
	if o.PromoteInterval <= 0 {
		o.PromoteInterval = 200 * time.Millisecond
	}
	if o.ClaimInterval <= 0 {
		o.ClaimInterval = 100 * time.Millisecond
	}
	if o.Lease <= 0 {
		o.Lease = 30 * time.Second
	}
	if o.ContinueDelay <= 0 {
		o.ContinueDelay = ContinueDelay
	}
	if o.BaseBackoff <= 0 {
		o.BaseBackoff = 500 * time.Millisecond
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = 30 * time.Second
	}
	return o
}

// Scheduler runs every job of a registry: a job runner per job that can
// Run, a worker pool per job that can Execute, one mailbox poller for the
// jobs that can Poll, plus promotion, startup recovery and cron starts.
type Scheduler struct {
	broker    ports.Broker
	registry  *domain.Registry
	opts      Options
	enqueuers map[string]*Enqueuer
}

func NewScheduler(broker ports.Broker, registry *domain.Registry, opts Options) *Scheduler {
	opts = opts.withDefaults()
	s := &Scheduler{
		broker:    broker,
		registry:  registry,
		opts:      opts,
		enqueuers: make(map[string]*Enqueuer, registry.Len()),
	}
	for _, def := range registry.All() {
		s.enqueuers[def.Name] = &Enqueuer{
			Job:       def.Name,
			Jobs:      broker.Queue(JobQueueName(def.Name)),
			Tasks:     broker.Queue(TaskQueueName(def.Name)),
			Mailbox:   broker.Mailbox(),
			KeyPrefix: opts.KeyPrefix,
		}
	}
	return s
}

func (s *Scheduler) Registry() *domain.Registry { return s.registry }

// Job returns the submission handle of a registered job.
func (s *Scheduler) Job(name string) (*Enqueuer, error) {
	enq, ok := s.enqueuers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownJob, name)
	}
	return enq, nil
}

// Run blocks until ctx is done. It returns an error only if startup fails.
func (s *Scheduler) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	defs := s.registry.All()

	triggers, err := s.cronTriggers(ctx, defs)
	if err != nil {
		return err
	}

	var queues []ports.Queue
	for _, def := range defs {
		enq := s.enqueuers[def.Name]
		queues = append(queues, enq.Jobs, enq.Tasks)

		if runner, ok := def.Runner(); ok {
			r := JobRunner{Def: def, Runner: runner, Enqueuer: enq, ContinueDelay: s.opts.ContinueDelay}
			c := s.consumer(enq.Jobs, 1)
			g.Go(func() error { return c.Run(ctx, r.Handle) })
		}
		if executor, ok := def.Executor(); ok {
			x := TaskExecutor{Def: def, Executor: executor, Enqueuer: enq}
			c := s.consumer(enq.Tasks, def.Concurrency)
			g.Go(func() error { return c.Run(ctx, x.Handle) })
		}
	}

	now := time.Now()
	for _, q := range queues {
		if _, err := Recover(ctx, q, now); err != nil {
			log.Ctx(ctx).Error().Err(err).Str("queue", q.Name()).Msg("recovery failed")
		}
	}

	promoter := NewPromoter(s.opts.PromoteInterval, queues...)
	g.Go(func() error { return promoter.Run(ctx) })

	poller := Poller{Mailbox: s.broker.Mailbox(), Registry: s.registry, App: s.opts.App, Interval: s.opts.PollInterval}
	g.Go(func() error { return poller.Run(ctx) })

	triggers.Start()
	g.Go(func() error {
		<-ctx.Done()
		<-triggers.Stop().Done()
		return nil
	})

	log.Ctx(ctx).Info().Int("jobs", len(defs)).Str("app", s.opts.App).Msg("scheduler started")
	return g.Wait()
}

func (s *Scheduler) consumer(q ports.Queue, concurrency int) Consumer {
	return Consumer{
		Q:            q,
		Concurrency:  concurrency,
		Lease:        s.opts.Lease,
		PollInterval: s.opts.ClaimInterval,
		BaseBackoff:  s.opts.BaseBackoff,
		MaxBackoff:   s.opts.MaxBackoff,
	}
}

// cronTriggers starts scheduled jobs under the fixed id "{name}:cron", skipping a
// tick while the previous start is still pending.
func (s *Scheduler) cronTriggers(ctx context.Context, defs []domain.Definition) (*cron.Cron, error) {
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	c := cron.New(cron.WithParser(parser))

	for _, def := range defs {
		if def.Schedule == "" {
			continue
		}
		enq := s.enqueuers[def.Name]
		id := def.Name + ":cron"
		_, err := c.AddFunc(def.Schedule, func() {
			added, err := enq.StartOnce(ctx, id, nil)
			if err != nil {
				log.Ctx(ctx).Error().Err(err).Str("job", def.Name).Msg("cron start failed")
				return
			}
			log.Ctx(ctx).Debug().Str("job", def.Name).Bool("added", added).Msg("cron tick")
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %q schedule %q: %v", domain.ErrInvalidJob, def.Name, def.Schedule, err)
		}
	}
	return c, nil
}
