package redisq

import (
	"fmt"
	"jobsched/internal/domain"
	"strconv"
	"strings"
	"time"
)

// Every queue keeps its data under {prefix}:{queue}:
//
//	e:{id}     hash, one per entry
//	wait       list of ids ready to be claimed
//	delayed    sorted set, score = due time in ms
//	active     sorted set, score = lease deadline in ms
//	completed  sorted set, score = finish time in ms
//	failed     sorted set, score = finish time in ms
const (
	waitKey      = "wait"
	delayedKey   = "delayed"
	activeKey    = "active"
	completedKey = "completed"
	failedKey    = "failed"
)

func (q *Queue) key(suffix string) string {
	return q.prefix + ":" + q.name + ":" + suffix
}

func (q *Queue) entryPrefix() string { return q.key("e:") }

func (q *Queue) entryKey(id string) string { return q.entryPrefix() + id }

// retention is stored as "r" (remove) or "{ageMs}:{count}".
func encodeRetention(r domain.Retention) string {
	if r.Remove {
		return "r"
	}
	return fmt.Sprintf("%d:%d", r.Age.Milliseconds(), r.Count)
}

func decodeRetention(s string) domain.Retention {
	if s == "r" {
		return domain.RemoveAlways
	}
	age, count, ok := strings.Cut(s, ":")
	if !ok {
		return domain.KeepForever
	}
	a, _ := strconv.ParseInt(age, 10, 64)
	n, _ := strconv.Atoi(count)
	return domain.Retention{Age: time.Duration(a) * time.Millisecond, Count: n}
}
