package redisq

import "time"

// SetClock replaces the time source of q.
func SetClock(q *Queue, now func() time.Time) { q.now = now }
