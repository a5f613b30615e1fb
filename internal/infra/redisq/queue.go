package redisq

import (
	"context"
	"errors"
	"fmt"
	"jobsched/internal/domain"
	"jobsched/internal/ports"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var _ ports.Queue = (*Queue)(nil)

// promoteBatch bounds how many entries a single Promote moves per set.
const promoteBatch = 128

type Queue struct {
	rdb    redis.Cmdable
	prefix string
	name   string
	now    func() time.Time
}

func (q *Queue) Name() string { return q.name }

func (q *Queue) Add(ctx context.Context, e domain.Entry) (domain.AddResult, error) {
	if e.ID == "" {
		return domain.AddDeduped, fmt.Errorf("redisq: add to %s: empty id", q.name)
	}
	if e.Delay < 0 {
		e.Delay = 0
	}

	keys := []string{
		q.entryKey(e.ID),
		q.key(waitKey),
		q.key(delayedKey),
		q.key(completedKey),
		q.key(failedKey),
	}
	res, err := addScript.Run(ctx, q.rdb, keys,
		e.ID,
		string(e.Kind),
		string(e.Data),
		e.Delay.Milliseconds(),
		ms(q.now()),
		encodeRetention(e.RemoveOnComplete),
		encodeRetention(e.RemoveOnFail),
	).Int()
	if err != nil {
		return domain.AddDeduped, fmt.Errorf("redisq: add to %s: %w", q.name, err)
	}
	return domain.AddResult(res), nil
}

func (q *Queue) Claim(ctx context.Context, lease time.Duration) (*domain.Entry, error) {
	now := ms(q.now())
	keys := []string{q.key(waitKey), q.key(activeKey)}
	res, err := claimScript.Run(ctx, q.rdb, keys, now, now+lease.Milliseconds(), q.entryPrefix(), uuid.NewString()).Slice()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redisq: claim from %s: %w", q.name, err)
	}

	fields := make(map[string]string, len(res)/2)
	for i := 0; i+1 < len(res); i += 2 {
		k, _ := res[i].(string)
		v, _ := res[i+1].(string)
		fields[k] = v
	}
	e := entryFromHash(fields)
	return &e, nil
}

// Extend pushes the lease deadline of e forward. It returns ErrLeaseLost when
// the lease expired or the entry was claimed again since e was claimed.
func (q *Queue) Extend(ctx context.Context, e domain.Entry, lease time.Duration) error {
	until := ms(q.now()) + lease.Milliseconds()
	keys := []string{q.entryKey(e.ID), q.key(activeKey)}
	res, err := extendScript.Run(ctx, q.rdb, keys, e.ID, e.Lease, until).Int()
	if err != nil {
		return fmt.Errorf("redisq: extend %s/%s: %w", q.name, e.ID, err)
	}
	if res == 0 {
		return fmt.Errorf("extend %s/%s: %w", q.name, e.ID, domain.ErrLeaseLost)
	}
	return nil
}

func (q *Queue) Complete(ctx context.Context, e domain.Entry, procErr error) error {
	ok, msg := "1", ""
	if procErr != nil {
		ok, msg = "0", procErr.Error()
	}
	now := q.now()

	keys := []string{
		q.entryKey(e.ID),
		q.key(activeKey),
		q.key(waitKey),
		q.key(delayedKey),
		q.key(completedKey),
		q.key(failedKey),
	}
	res, err := completeScript.Run(ctx, q.rdb, keys, e.ID, ok, ms(now), msg, e.Lease).Int()
	if err != nil {
		return fmt.Errorf("redisq: complete %s/%s: %w", q.name, e.ID, err)
	}

	switch res {
	case -1:
		return fmt.Errorf("complete %s/%s: %w", q.name, e.ID, domain.ErrLeaseLost)
	case 1:
		set, policy := q.key(completedKey), e.RemoveOnComplete
		if procErr != nil {
			set, policy = q.key(failedKey), e.RemoveOnFail
		}
		return q.trim(ctx, set, policy, now)
	}
	return nil
}

// trim drops finished entries outside the retention window.
func (q *Queue) trim(ctx context.Context, set string, r domain.Retention, now time.Time) error {
	var ids []string
	if r.Age > 0 {
		old, err := q.rdb.ZRangeByScore(ctx, set, &redis.ZRangeBy{
			Min: "-inf",
			Max: strconv.FormatInt(ms(now.Add(-r.Age)), 10),
		}).Result()
		if err != nil {
			return fmt.Errorf("redisq: trim %s: %w", set, err)
		}
		ids = append(ids, old...)
	}
	if r.Count > 0 {
		extra, err := q.rdb.ZRange(ctx, set, 0, int64(-(r.Count + 1))).Result()
		if err != nil {
			return fmt.Errorf("redisq: trim %s: %w", set, err)
		}
		ids = append(ids, extra...)
	}

	for _, id := range ids {
		if err := trimScript.Run(ctx, q.rdb, []string{set, q.entryKey(id)}, id).Err(); err != nil {
			return fmt.Errorf("redisq: trim %s/%s: %w", set, id, err)
		}
	}
	return nil
}

func (q *Queue) Count(ctx context.Context) (int64, error) {
	pipe := q.rdb.Pipeline()
	waiting := pipe.LLen(ctx, q.key(waitKey))
	delayed := pipe.ZCard(ctx, q.key(delayedKey))
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("redisq: count %s: %w", q.name, err)
	}
	return waiting.Val() + delayed.Val(), nil
}

func (q *Queue) State(ctx context.Context, id string) (domain.EntryState, error) {
	s, err := q.rdb.HGet(ctx, q.entryKey(id), "state").Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.StateMissing, nil
		}
		return "", fmt.Errorf("redisq: state %s/%s: %w", q.name, id, err)
	}
	return domain.EntryState(s), nil
}

func (q *Queue) Get(ctx context.Context, id string) (domain.Entry, bool, error) {
	h, err := q.rdb.HGetAll(ctx, q.entryKey(id)).Result()
	if err != nil {
		return domain.Entry{}, false, fmt.Errorf("redisq: get %s/%s: %w", q.name, id, err)
	}
	if len(h) == 0 {
		return domain.Entry{}, false, nil
	}
	return entryFromHash(h), true, nil
}

func (q *Queue) Delayed(ctx context.Context) ([]domain.DelayedEntry, error) {
	ids, err := q.rdb.ZRange(ctx, q.key(delayedKey), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redisq: delayed %s: %w", q.name, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := q.rdb.Pipeline()
	cmds := make([]*redis.SliceCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HMGet(ctx, q.entryKey(id), "kind", "data", "ts", "delay")
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("redisq: delayed %s: %w", q.name, err)
	}

	out := make([]domain.DelayedEntry, 0, len(ids))
	for i, id := range ids {
		vals := cmds[i].Val()
		if len(vals) != 4 || vals[0] == nil {
			continue
		}
		out = append(out, domain.DelayedEntry{
			ID:        id,
			Kind:      domain.Kind(str(vals[0])),
			Data:      rawData(str(vals[1])),
			Timestamp: time.UnixMilli(atoi64(str(vals[2]))),
			Delay:     time.Duration(atoi64(str(vals[3]))) * time.Millisecond,
		})
	}
	return out, nil
}

// Reschedule reports false when id is no longer delayed and was left alone.
func (q *Queue) Reschedule(ctx context.Context, id string, delay time.Duration) (bool, error) {
	if delay < 0 {
		delay = 0
	}
	keys := []string{q.entryKey(id), q.key(waitKey), q.key(delayedKey)}
	moved, err := rescheduleScript.Run(ctx, q.rdb, keys, id, ms(q.now()), delay.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("redisq: reschedule %s/%s: %w", q.name, id, err)
	}
	return moved == 1, nil
}

func (q *Queue) Promote(ctx context.Context, now time.Time) (int, error) {
	keys := []string{q.key(delayedKey), q.key(waitKey), q.key(activeKey)}
	n, err := promoteScript.Run(ctx, q.rdb, keys, ms(now), promoteBatch, q.entryPrefix()).Int()
	if err != nil {
		return 0, fmt.Errorf("redisq: promote %s: %w", q.name, err)
	}
	return n, nil
}

func entryFromHash(h map[string]string) domain.Entry {
	attempts, _ := strconv.Atoi(h["attempts"])
	return domain.Entry{
		ID:               h["id"],
		Kind:             domain.Kind(h["kind"]),
		Data:             rawData(h["data"]),
		Delay:            time.Duration(atoi64(h["delay"])) * time.Millisecond,
		Timestamp:        time.UnixMilli(atoi64(h["ts"])),
		State:            domain.EntryState(h["state"]),
		Attempts:         attempts,
		Lease:            h["lease"],
		RemoveOnComplete: decodeRetention(h["roc"]),
		RemoveOnFail:     decodeRetention(h["rof"]),
	}
}

func rawData(s string) []byte {
	if s == "" {
		return nil
	}
	return []byte(s)
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func atoi64(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}
