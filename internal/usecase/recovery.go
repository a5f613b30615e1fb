package usecase

import (
	"context"
	"fmt"
	"jobsched/internal/ports"
	"time"

	"github.com/rs/zerolog/log"
)

// Recover re-asserts every delayed entry of q with whatever delay it has
// left at now and returns how many it moved. Entries that fail are logged
// and skipped.
func Recover(ctx context.Context, q ports.Queue, now time.Time) (int, error) {
	delayed, err := q.Delayed(ctx)
	if err != nil {
		return 0, fmt.Errorf("recover %s: %w", q.Name(), err)
	}

	n := 0
	for _, d := range delayed {
		left := d.Remaining(now)
		moved, err := q.Reschedule(ctx, d.ID, left)
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Str("queue", q.Name()).Str("id", d.ID).Msg("recover entry failed")
			continue
		}
		if !moved {
			log.Ctx(ctx).Debug().Str("queue", q.Name()).Str("id", d.ID).Msg("entry no longer delayed, skipped")
			continue
		}
		log.Ctx(ctx).Info().
			Str("queue", q.Name()).
			Str("id", d.ID).
			Str("kind", string(d.Kind)).
			Dur("delay_left", left).
			Msg("re-added delayed entry")
		n++
	}
	return n, nil
}
