package persistence

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"

	"github.com/access-control/acs-core/internal/domain/entity"
	"github.com/access-control/acs-core/internal/domain/normalize"
)

type fakeStore struct {
	err   error
	calls int
}

func (f *fakeStore) Apply(ctx context.Context, ops []normalize.RowOp) error {
	f.calls++
	return f.err
}

func TestApplyNoopsOnEmptyPlan(t *testing.T) {
	store := &fakeStore{}
	o := New(store)

	err := o.Apply(context.Background(), normalize.Plan{})
	assert.NoError(t, err)
	assert.Equal(t, 0, store.calls)
}

func TestApplySucceedsOnFirstAttempt(t *testing.T) {
	store := &fakeStore{}
	o := New(store)

	plan := normalize.Plan{
		Ops:        []normalize.RowOp{{Table: "principals", Action: normalize.Insert}},
		EntityType: "user",
	}

	err := o.Apply(context.Background(), plan)
	assert.NoError(t, err)
	assert.Equal(t, 1, store.calls)
}

func TestApplyWrapsNonRetryableErrorAsTransient(t *testing.T) {
	store := &fakeStore{err: entity.NewInvalidArgument("user", "bad row")}
	o := New(store)

	plan := normalize.Plan{
		Ops:        []normalize.RowOp{{Table: "principals", Action: normalize.Insert}},
		EntityType: "user",
	}

	err := o.Apply(context.Background(), plan)
	assert.Error(t, err)
	assert.Equal(t, entity.KindTransient, entity.KindOf(err))
}

func TestApplyPromotesExhaustedTransientToTerminal(t *testing.T) {
	store := &fakeStore{err: entity.NewTransient("user", errors.New("connection reset"))}
	o := New(store)
	o.policy = o.policy.WithMaxRetries(1).WithInitialBackoff(0)

	plan := normalize.Plan{
		Ops:        []normalize.RowOp{{Table: "principals", Action: normalize.Insert}},
		EntityType: "user",
	}

	err := o.Apply(context.Background(), plan)
	assert.Error(t, err)
	assert.Equal(t, entity.KindTerminal, entity.KindOf(err))
}

func TestApplyCallsTxRunnerExactlyOnceViaGeneratedMock(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	store := NewMockTxRunner(ctrl)
	o := New(store)

	plan := normalize.Plan{
		Ops:        []normalize.RowOp{{Table: "principals", Action: normalize.Insert}},
		EntityType: "user",
	}

	store.EXPECT().Apply(gomock.Any(), plan.Ops).Return(nil).Times(1)

	err := o.Apply(context.Background(), plan)
	assert.NoError(t, err)
}
