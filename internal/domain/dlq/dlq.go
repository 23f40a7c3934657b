// Package dlq implements the Dead-Letter Queue (C5): a durable store for
// operations that exhausted their retry budget, plus cooperative redrive.
// MongoDB is the durability source of truth (grounded on the teacher's
// audit.mongodb.go connection/collection/insert pattern, repurposed here);
// RabbitMQ carries a lightweight wake-up notification so a redrive worker
// does not have to poll (spec.md §4.5).
package dlq

import (
	"context"
	"time"
)

// Entry is one durable dead-letter record.
type Entry struct {
	ID         string
	Operation  string
	Payload    []byte
	Cause      string
	EnqueuedAt time.Time
	Attempts   int
	Abandoned  bool
}

// DurableStore is the MongoDB-backed persistence port.
type DurableStore interface {
	Insert(ctx context.Context, e *Entry) error
	Pending(ctx context.Context, operation string, limit int) ([]*Entry, error)
	MarkRetried(ctx context.Context, id string, err error) error
	MarkResolved(ctx context.Context, id string) error
	MarkAbandoned(ctx context.Context, id string) error
}

// Notifier publishes a wake-up notification to the operation's `.dlq` queue
// (spec.md §4.5, grounded on the teacher's BuildDLQName convention).
type Notifier interface {
	Notify(ctx context.Context, operation string) error
}

// Redriver replays one dead-lettered entry by re-running its normalized row
// operations; implemented by the wiring that has access to C3's
// Orchestrator, since dlq itself must stay independent of normalize/command
// to avoid a persistence→dlq→persistence import cycle.
type Redriver func(ctx context.Context, e *Entry) error

// MaxAttempts bounds how many times drain() retries a single entry before
// marking it abandoned (spec.md §4.5).
const MaxAttempts = 5

// Queue coordinates the durable store and the wake-up notifier.
type Queue struct {
	store    DurableStore
	notifier Notifier
}

// New constructs a Queue. notifier may be nil to disable wake-up
// notifications and rely purely on polling.
func New(store DurableStore, notifier Notifier) *Queue {
	return &Queue{store: store, notifier: notifier}
}

// Enqueue durably records a failed operation and best-effort notifies a
// redrive worker. attempts is the number of calls already made to the
// failing operation before it was dead-lettered (spec.md §4.5 "the attempt
// count").
func (q *Queue) Enqueue(ctx context.Context, operation string, payload []byte, attempts int, cause error) error {
	e := &Entry{
		Operation:  operation,
		Payload:    payload,
		Attempts:   attempts,
		EnqueuedAt: time.Now().UTC(),
	}

	if cause != nil {
		e.Cause = cause.Error()
	}

	if err := q.store.Insert(ctx, e); err != nil {
		return err
	}

	if q.notifier != nil {
		_ = q.notifier.Notify(ctx, operation) // best-effort; Mongo remains the source of truth
	}

	return nil
}

// Drain redrives up to limit pending entries for operation, yielding
// between entries by checking ctx so a long drain can be cancelled
// (spec.md §4.5 "yielding between entries"). Entries that exceed
// MaxAttempts are marked abandoned rather than retried forever.
func (q *Queue) Drain(ctx context.Context, operation string, limit int, redrive Redriver) (redriven, abandoned int, err error) {
	entries, err := q.store.Pending(ctx, operation, limit)
	if err != nil {
		return 0, 0, err
	}

	for _, e := range entries {
		select {
		case <-ctx.Done():
			return redriven, abandoned, ctx.Err()
		default:
		}

		if e.Attempts >= MaxAttempts {
			_ = q.store.MarkAbandoned(ctx, e.ID)
			abandoned++

			continue
		}

		if rerr := redrive(ctx, e); rerr != nil {
			_ = q.store.MarkRetried(ctx, e.ID, rerr)
			continue
		}

		_ = q.store.MarkResolved(ctx, e.ID)
		redriven++
	}

	return redriven, abandoned, nil
}
