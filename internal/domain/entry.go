package domain

import (
	"encoding/json"
	"time"
)

type Kind string

const (
	// KindRead is a job queue entry; the job runner hands it to Run.
	KindRead Kind = "read"
	// KindQueueTask is a named drain trigger; the payload lives in the mailbox.
	KindQueueTask Kind = "queueTask"
	// KindExecute is an anonymous task carrying its own payload.
	KindExecute Kind = "execute"
)

type EntryState string

const (
	StateWaiting   EntryState = "waiting"
	StateDelayed   EntryState = "delayed"
	StateActive    EntryState = "active"
	StateCompleted EntryState = "completed"
	StateFailed    EntryState = "failed"
	StateMissing   EntryState = "missing"
)

// Pending reports whether an entry in this state has not finished yet.
func (s EntryState) Pending() bool {
	return s == StateWaiting || s == StateDelayed || s == StateActive
}

// Retention decides what happens to an entry once it completes or fails.
// Remove deletes it immediately. Otherwise it is kept for at most Age and
// at most Count entries are kept per queue; zero means unbounded.
type Retention struct {
	Remove bool
	Age    time.Duration
	Count  int
}

var (
	RemoveAlways = Retention{Remove: true}
	KeepForever  = Retention{}
)

type Entry struct {
	ID               string          `json:"id"`
	Kind             Kind            `json:"kind"`
	Data             json.RawMessage `json:"data,omitempty"`
	Delay            time.Duration   `json:"delay"`
	Timestamp        time.Time       `json:"timestamp"`
	State            EntryState      `json:"state"`
	Attempts         int             `json:"attempts"`
	// Lease identifies the claim that handed the entry out.
	Lease            string          `json:"-"`
	RemoveOnComplete Retention       `json:"-"`
	RemoveOnFail     Retention       `json:"-"`
}

// DelayedEntry is what recovery reads back for an entry still waiting on its delay.
type DelayedEntry struct {
	ID        string
	Kind      Kind
	Data      json.RawMessage
	Timestamp time.Time
	Delay     time.Duration
}

// Remaining is the part of the delay not yet elapsed at now, never negative.
func (d DelayedEntry) Remaining(now time.Time) time.Duration {
	left := d.Timestamp.Add(d.Delay).Sub(now)
	if left < 0 {
		return 0
	}
	return left
}

type AddResult int

const (
	// AddDeduped means an entry with the same id was already waiting or delayed.
	AddDeduped AddResult = iota
	// AddCreated means a fresh entry was stored.
	AddCreated
	// AddReplaced means the id is active; the entry is armed once that lease completes.
	AddReplaced
)

func (r AddResult) String() string {
	switch r {
	case AddCreated:
		return "created"
	case AddReplaced:
		return "replaced"
	default:
		return "deduped"
	}
}
