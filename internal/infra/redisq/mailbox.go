package redisq

import (
	"context"
	"errors"
	"fmt"
	"jobsched/internal/ports"

	"github.com/redis/go-redis/v9"
)

var _ ports.Mailbox = (*Mailbox)(nil)

// Mailbox stores payloads in plain Redis lists. Keys are used verbatim so
// other processes can push onto them directly.
type Mailbox struct {
	rdb redis.Cmdable
}

func (m *Mailbox) Append(ctx context.Context, key string, payload []byte) error {
	if err := m.rdb.RPush(ctx, key, payload).Err(); err != nil {
		return fmt.Errorf("redisq: append %s: %w", key, err)
	}
	return nil
}

func (m *Mailbox) Prepend(ctx context.Context, key string, payload []byte) error {
	if err := m.rdb.LPush(ctx, key, payload).Err(); err != nil {
		return fmt.Errorf("redisq: prepend %s: %w", key, err)
	}
	return nil
}

func (m *Mailbox) Head(ctx context.Context, key string) ([]byte, bool, error) {
	return m.read(m.rdb.LIndex(ctx, key, 0), key)
}

func (m *Mailbox) AckHead(ctx context.Context, key string, payload []byte) (bool, error) {
	n, err := ackHeadScript.Run(ctx, m.rdb, []string{key}, payload).Int()
	if err != nil {
		return false, fmt.Errorf("redisq: ack %s: %w", key, err)
	}
	return n == 1, nil
}

func (m *Mailbox) PopTail(ctx context.Context, key string) ([]byte, bool, error) {
	return m.read(m.rdb.RPop(ctx, key), key)
}

func (m *Mailbox) Len(ctx context.Context, key string) (int64, error) {
	n, err := m.rdb.LLen(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("redisq: len %s: %w", key, err)
	}
	return n, nil
}

func (m *Mailbox) read(cmd *redis.StringCmd, key string) ([]byte, bool, error) {
	b, err := cmd.Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("redisq: read %s: %w", key, err)
	}
	return b, true, nil
}
