package ports

import (
	"context"
	"jobsched/internal/domain"
	"time"
)

// Queue is a durable delay queue whose entries are unique by id.
type Queue interface {
	Name() string
	// Add stores e unless an entry with the same id is waiting or delayed.
	// Adding an id that is active stores e as its replacement, armed when
	// the active lease completes.
	Add(ctx context.Context, e domain.Entry) (domain.AddResult, error)
	// Claim leases the next waiting entry, or returns nil when none is ready.
	Claim(ctx context.Context, lease time.Duration) (*domain.Entry, error)
	// Extend and Complete return domain.ErrLeaseLost once e's claim is no
	// longer the current holder of the entry.
	Extend(ctx context.Context, e domain.Entry, lease time.Duration) error
	// Complete ends the lease of e. A nil procErr marks it completed.
	Complete(ctx context.Context, e domain.Entry, procErr error) error
	// Count returns the number of waiting and delayed entries.
	Count(ctx context.Context) (int64, error)
	State(ctx context.Context, id string) (domain.EntryState, error)
	// Get reads one entry; ok is false when the id is unknown.
	Get(ctx context.Context, id string) (e domain.Entry, ok bool, err error)
	Delayed(ctx context.Context) ([]domain.DelayedEntry, error)
	// Reschedule moves a delayed entry so it becomes due after delay. It
	// reports false when the entry is no longer delayed.
	Reschedule(ctx context.Context, id string, delay time.Duration) (bool, error)
	// Promote makes due delayed entries and expired leases waiting again.
	Promote(ctx context.Context, now time.Time) (int, error)
}

// Mailbox is an ordered list store keyed by name.
type Mailbox interface {
	Append(ctx context.Context, key string, payload []byte) error
	Prepend(ctx context.Context, key string, payload []byte) error
	Head(ctx context.Context, key string) ([]byte, bool, error)
	// AckHead drops the head of key if it still equals payload.
	AckHead(ctx context.Context, key string, payload []byte) (bool, error)
	PopTail(ctx context.Context, key string) ([]byte, bool, error)
	Len(ctx context.Context, key string) (int64, error)
}

type Broker interface {
	Queue(name string) Queue
	Mailbox() Mailbox
}
