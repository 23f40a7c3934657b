package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/access-control/acs-core/internal/domain/entity"
)

func TestClassifyDefaultsUnknownErrorsToTransient(t *testing.T) {
	assert.Equal(t, entity.KindTransient, Classify(errors.New("boom")))
}

func TestClassifyPassesThroughTypedErrors(t *testing.T) {
	err := entity.NewConflict("Principal", "cycle detected")
	assert.Equal(t, entity.KindConflict, Classify(err))
}

func TestRetryableOnlyTrueForTransient(t *testing.T) {
	assert.True(t, Retryable(errors.New("boom")))
	assert.False(t, Retryable(entity.NewInvalidArgument("Principal", "bad name")))
	assert.False(t, Retryable(entity.NewConflict("Principal", "cycle")))
}

func TestDefaultConfigMatchesSpecBounds(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 2*time.Second, cfg.InitialBackoff)
	assert.Equal(t, 30*time.Second, cfg.MaxBackoff)
}

func TestWithMaxRetriesReturnsIndependentCopy(t *testing.T) {
	base := Default()
	overridden := base.WithMaxRetries(10)

	assert.Equal(t, 3, base.MaxRetries)
	assert.Equal(t, 10, overridden.MaxRetries)
}

func TestBreakerDoSucceedsWithoutRetryOnFirstAttempt(t *testing.T) {
	b := NewBreaker("test-success")

	calls := 0

	err := b.Do(context.Background(), Default().WithMaxRetries(2), "Principal", func() error {
		calls++
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestBreakerDoDoesNotRetryNonTransientErrors(t *testing.T) {
	b := NewBreaker("test-non-transient")

	calls := 0

	err := b.Do(context.Background(), Default().WithMaxRetries(5), "Principal", func() error {
		calls++
		return entity.NewInvalidArgument("Principal", "bad")
	})

	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestBreakerDoPromotesExhaustedTransientErrorToTerminal(t *testing.T) {
	b := NewBreaker("test-exhausted")

	cfg := Default().WithMaxRetries(1).WithInitialBackoff(time.Millisecond)

	err := b.Do(context.Background(), cfg, "Principal", func() error {
		return entity.NewTransient("Principal", errors.New("connection reset"))
	})

	assert.Error(t, err)

	var typed *entity.Error

	assert.ErrorAs(t, err, &typed)
	assert.Equal(t, entity.KindTerminal, typed.Kind)
	assert.Equal(t, 1, typed.Attempts)
}

func TestBreakerDoExhaustsDefaultConfigAfterExactlyThreeAttempts(t *testing.T) {
	b := NewBreaker("test-default-three-attempts")

	cfg := Default().WithInitialBackoff(time.Millisecond)

	calls := 0

	err := b.Do(context.Background(), cfg, "Principal", func() error {
		calls++
		return entity.NewTransient("Principal", errors.New("connection reset"))
	})

	assert.Error(t, err)
	assert.Equal(t, 3, calls)

	var typed *entity.Error

	assert.ErrorAs(t, err, &typed)
	assert.Equal(t, entity.KindTerminal, typed.Kind)
	assert.Equal(t, 3, typed.Attempts)
}
