package executor

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/access-control/acs-core/internal/domain/command"
	"github.com/access-control/acs-core/internal/domain/entity"
)

func newEnv(t *testing.T, ctx context.Context) *command.Envelope {
	t.Helper()
	return command.NewEnvelope(ctx, command.KindCreateUser, command.CreatePrincipalPayload{Name: "alice"}, "tester")
}

func TestSubmitProcessesEnvelopeInOrder(t *testing.T) {
	var mu sync.Mutex

	var order []int

	e := New(func(ctx context.Context, env *command.Envelope) command.Result {
		p := env.Payload.(command.CreatePrincipalPayload)

		mu.Lock()
		order = append(order, len(p.Name))
		mu.Unlock()

		return command.Result{}
	}, WithCapacity(4))
	defer e.Shutdown(context.Background())

	for i := 1; i <= 3; i++ {
		env := command.NewEnvelope(context.Background(), command.KindCreateUser, command.CreatePrincipalPayload{Name: strings.Repeat("a", i)}, "tester")
		assert.NoError(t, e.Submit(env))

		_, err := env.Await()
		assert.NoError(t, err)
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestSubmitCompletesWithCancelledErrorWhenContextDoneBeforeProcessing(t *testing.T) {
	blocker := make(chan struct{})

	e := New(func(ctx context.Context, env *command.Envelope) command.Result {
		<-blocker
		return command.Result{}
	}, WithCapacity(4))
	defer e.Shutdown(context.Background())

	// Occupy the single worker goroutine so the second envelope is still
	// sitting in the queue when its context is cancelled.
	busy := newEnv(t, context.Background())
	assert.NoError(t, e.Submit(busy))

	ctx, cancel := context.WithCancel(context.Background())

	env := newEnv(t, ctx)
	assert.NoError(t, e.Submit(env))

	cancel()
	close(blocker)

	res, err := env.Await()
	assert.NoError(t, err)
	assert.ErrorIs(t, res.Err, entity.ErrCancelled)
}

func TestShutdownRejectsFurtherSubmissions(t *testing.T) {
	e := New(func(ctx context.Context, env *command.Envelope) command.Result {
		return command.Result{}
	})

	assert.NoError(t, e.Shutdown(context.Background()))

	env := newEnv(t, context.Background())
	err := e.Submit(env)
	assert.Error(t, err)
}

func TestOnSlowCommandFiresAboveThreshold(t *testing.T) {
	var firedKind command.Kind

	fired := make(chan struct{})

	lowerThreshold := func(e *Executor) { e.slowThreshold = time.Millisecond }

	e := New(func(ctx context.Context, env *command.Envelope) command.Result {
		time.Sleep(5 * time.Millisecond)
		return command.Result{}
	}, WithCapacity(2), lowerThreshold, OnSlowCommand(func(kind command.Kind, elapsed time.Duration) {
		firedKind = kind
		close(fired)
	}))

	defer e.Shutdown(context.Background())

	env := newEnv(t, context.Background())
	assert.NoError(t, e.Submit(env))

	select {
	case <-fired:
		assert.Equal(t, command.KindCreateUser, firedKind)
	case <-time.After(time.Second):
		t.Fatal("onSlow callback never fired")
	}
}

func TestDrainProcessesQueuedCommandsBeforeStopping(t *testing.T) {
	var processed int32

	var mu sync.Mutex

	e := New(func(ctx context.Context, env *command.Envelope) command.Result {
		mu.Lock()
		processed++
		mu.Unlock()

		return command.Result{}
	}, WithCapacity(10), WithDrainDeadline(time.Second))

	var envs []*command.Envelope

	for i := 0; i < 5; i++ {
		env := newEnv(t, context.Background())
		envs = append(envs, env)
		assert.NoError(t, e.Submit(env))
	}

	assert.NoError(t, e.Shutdown(context.Background()))

	for _, env := range envs {
		_, err := env.Await()
		assert.NoError(t, err)
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, int32(5), processed)
}
