package redisq

import (
	"context"
	"fmt"
	"jobsched/internal/config"
	"jobsched/internal/ports"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

var _ ports.Broker = (*Client)(nil)

type Client struct {
	Cfg config.Redis
	Rdb *redis.Client
}

func New(cfg config.Redis) *Client {
	log.Info().Msgf("connecting to redis at %s", cfg.Addr)
	c := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "jq"
	}
	return &Client{Cfg: cfg, Rdb: c}
}

// Init verifies the connection. Queues and mailboxes need no setup.
func (c *Client) Init(ctx context.Context) error {
	if err := c.Rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis connection failed: %w", err)
	}
	log.Ctx(ctx).Info().
		Str("addr", c.Cfg.Addr).
		Str("prefix", c.Cfg.KeyPrefix).
		Msg("connected to redis")
	return nil
}

func (c *Client) Close() error { return c.Rdb.Close() }

func (c *Client) Queue(name string) ports.Queue {
	return &Queue{rdb: c.Rdb, prefix: c.Cfg.KeyPrefix, name: name, now: time.Now}
}

func (c *Client) Mailbox() ports.Mailbox {
	return &Mailbox{rdb: c.Rdb}
}

func ms(t time.Time) int64 { return t.UnixMilli() }
