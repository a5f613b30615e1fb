package worker

import (
	"context"
	"fmt"
	"jobsched/internal/config"
	"jobsched/internal/domain"
	"jobsched/internal/infra/redisq"
	"jobsched/internal/jobs"
	"jobsched/internal/usecase"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds the command line overrides; zero values keep the environment settings.
type Config struct {
	AppName      string
	PollInterval time.Duration
	BaseBackoff  time.Duration
	MaxBackoff   time.Duration
}

func Run(cfg Config) error {
	appCfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.AppName != "" {
		appCfg.Scheduler.AppName = cfg.AppName
	}
	if cfg.PollInterval > 0 {
		appCfg.Scheduler.PollInterval = cfg.PollInterval
	}

	level, err := zerolog.ParseLevel(appCfg.Scheduler.LogLevel)
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	zerolog.SetGlobalLevel(level)
	logger := log.With().Str("app", appCfg.Scheduler.AppName).Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithContext(ctx)

	cli := redisq.New(appCfg.Redis)
	defer cli.Close()
	if err := cli.Init(ctx); err != nil {
		return err
	}

	registry, err := domain.NewRegistry(jobs.Definitions()...)
	if err != nil {
		return err
	}

	sched := usecase.NewScheduler(cli, registry, usecase.Options{
		App:             appCfg.Scheduler.AppName,
		KeyPrefix:       appCfg.Redis.KeyPrefix,
		PollInterval:    appCfg.Scheduler.PollInterval,
		PromoteInterval: appCfg.Scheduler.PromoteInterval,
		ClaimInterval:   appCfg.Scheduler.ClaimInterval,
		Lease:           appCfg.Scheduler.Lease,
		ContinueDelay:   appCfg.Scheduler.ContinueDelay,
		BaseBackoff:     cfg.BaseBackoff,
		MaxBackoff:      cfg.MaxBackoff,
	})

	for _, def := range sched.Registry().All() {
		_, run := def.Runner()
		_, exec := def.Executor()
		_, poll := def.Poller()
		logger.Info().
			Str("job", def.Name).
			Int("concurrency", def.Concurrency).
			Bool("run", run).
			Bool("execute", exec).
			Bool("poll", poll).
			Msg("job registered")
	}

	if err := sched.Run(ctx); err != nil {
		return err
	}
	logger.Info().Msg("worker stopped")
	return nil
}
