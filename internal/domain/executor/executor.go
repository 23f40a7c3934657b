// Package executor implements the Command Channel & Executor (C7): a
// bounded channel with exactly one draining goroutine, serializing every
// graph mutation so the Entity Graph (C1) never needs its own lock
// (spec.md §4.1, §4.7).
package executor

import (
	"context"
	"time"

	"github.com/access-control/acs-core/internal/domain/command"
	"github.com/access-control/acs-core/internal/domain/entity"
)

// Handler applies one command to the graph/persistence/audit stack and
// returns its outcome. Supplied by the Domain Service API (C9) wiring;
// the executor itself has no opinion on what a command does.
type Handler func(ctx context.Context, env *command.Envelope) command.Result

// Option configures an Executor at construction, mirroring the teacher's
// WithHTTPServer/WithGRPCServer chaining idiom.
type Option func(*Executor)

// WithCapacity sets the channel's buffer size (default 1000, spec.md §4.7).
func WithCapacity(n int) Option {
	return func(e *Executor) { e.capacity = n }
}

// WithDrainDeadline bounds how long Shutdown waits for the queue to drain
// before forcing the executor to stop.
func WithDrainDeadline(d time.Duration) Option {
	return func(e *Executor) { e.drainDeadline = d }
}

// OnSlowCommand is invoked whenever a single command's handling exceeds a
// threshold, wired to the slow-command metric in internal/telemetry.
func OnSlowCommand(fn func(kind command.Kind, elapsed time.Duration)) Option {
	return func(e *Executor) { e.onSlow = fn }
}

// Executor owns the single writer goroutine. Submit is safe to call from
// any goroutine; only the internal loop ever mutates the graph.
type Executor struct {
	handler       Handler
	queue         chan *command.Envelope
	done          chan struct{}
	stopped       chan struct{}
	capacity      int
	drainDeadline time.Duration
	onSlow        func(kind command.Kind, elapsed time.Duration)
	slowThreshold time.Duration
}

// New constructs and starts an Executor. handler is called once per
// envelope, strictly serially, from the single internal goroutine.
func New(handler Handler, opts ...Option) *Executor {
	e := &Executor{
		handler:       handler,
		capacity:      1000,
		drainDeadline: 10 * time.Second,
		slowThreshold: 250 * time.Millisecond,
		done:          make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	for _, opt := range opts {
		opt(e)
	}

	e.queue = make(chan *command.Envelope, e.capacity)

	go e.run()

	return e
}

// Submit enqueues env for processing. It blocks only if the channel is at
// capacity (backpressure, spec.md §4.7) and returns an error immediately if
// the executor is shutting down.
func (e *Executor) Submit(env *command.Envelope) error {
	select {
	case <-e.done:
		return entity.NewUnsupported("executor is shutting down")
	default:
	}

	select {
	case e.queue <- env:
		return nil
	case <-e.done:
		return entity.NewUnsupported("executor is shutting down")
	case <-env.Ctx.Done():
		return env.Ctx.Err()
	}
}

func (e *Executor) run() {
	defer close(e.stopped)

	for {
		select {
		case env := <-e.queue:
			e.process(env)
		case <-e.done:
			e.drain()
			return
		}
	}
}

// drain processes whatever is already queued up to drainDeadline before the
// executor goroutine exits, so in-flight submitters observe a completion
// rather than a permanently blocked future (spec.md §4.7 shutdown).
func (e *Executor) drain() {
	deadline := time.After(e.drainDeadline)

	for {
		select {
		case env := <-e.queue:
			e.process(env)
		case <-deadline:
			e.rejectRemaining()
			return
		default:
			if len(e.queue) == 0 {
				return
			}
		}
	}
}

func (e *Executor) rejectRemaining() {
	for {
		select {
		case env := <-e.queue:
			env.Complete(command.Result{Err: entity.NewUnsupported("executor shut down before command was processed")})
		default:
			return
		}
	}
}

func (e *Executor) process(env *command.Envelope) {
	if env.Cancelled() {
		env.Complete(command.Result{Err: entity.ErrCancelled})
		return
	}

	started := time.Now()

	res := e.handler(env.Ctx, env)

	elapsed := time.Since(started)
	if e.onSlow != nil && elapsed >= e.slowThreshold {
		e.onSlow(env.Kind, elapsed)
	}

	env.Complete(res)
}

// Shutdown stops accepting new submissions and waits for the drain loop to
// finish or for ctx to end, whichever comes first.
func (e *Executor) Shutdown(ctx context.Context) error {
	close(e.done)

	select {
	case <-e.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
