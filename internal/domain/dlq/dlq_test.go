package dlq

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeStore struct {
	inserted   []*Entry
	pending    []*Entry
	retried    map[string]int
	resolved   []string
	abandoned  []string
	insertErr  error
}

func (f *fakeStore) Insert(ctx context.Context, e *Entry) error {
	if f.insertErr != nil {
		return f.insertErr
	}

	e.ID = "generated-id"
	f.inserted = append(f.inserted, e)

	return nil
}

func (f *fakeStore) Pending(ctx context.Context, operation string, limit int) ([]*Entry, error) {
	return f.pending, nil
}

func (f *fakeStore) MarkRetried(ctx context.Context, id string, err error) error {
	if f.retried == nil {
		f.retried = make(map[string]int)
	}

	f.retried[id]++

	return nil
}

func (f *fakeStore) MarkResolved(ctx context.Context, id string) error {
	f.resolved = append(f.resolved, id)
	return nil
}

func (f *fakeStore) MarkAbandoned(ctx context.Context, id string) error {
	f.abandoned = append(f.abandoned, id)
	return nil
}

type fakeNotifier struct {
	notified []string
	err      error
}

func (n *fakeNotifier) Notify(ctx context.Context, operation string) error {
	n.notified = append(n.notified, operation)
	return n.err
}

func TestEnqueuePersistsAndNotifies(t *testing.T) {
	store := &fakeStore{}
	notifier := &fakeNotifier{}
	q := New(store, notifier)

	err := q.Enqueue(context.Background(), "audit_append", []byte("payload"), 3, errors.New("db down"))
	assert.NoError(t, err)
	assert.Len(t, store.inserted, 1)
	assert.Equal(t, "db down", store.inserted[0].Cause)
	assert.Equal(t, 3, store.inserted[0].Attempts)
	assert.Equal(t, []string{"audit_append"}, notifier.notified)
}

func TestEnqueueSurvivesNilNotifier(t *testing.T) {
	store := &fakeStore{}
	q := New(store, nil)

	err := q.Enqueue(context.Background(), "audit_append", nil, 0, nil)
	assert.NoError(t, err)
}

func TestEnqueuePropagatesStoreFailure(t *testing.T) {
	store := &fakeStore{insertErr: errors.New("mongo unreachable")}
	q := New(store, nil)

	err := q.Enqueue(context.Background(), "audit_append", nil, 0, nil)
	assert.Error(t, err)
}

func TestDrainRedrivesPendingEntriesAndMarksResolved(t *testing.T) {
	store := &fakeStore{pending: []*Entry{{ID: "a"}, {ID: "b"}}}
	q := New(store, nil)

	redriven, abandoned, err := q.Drain(context.Background(), "audit_append", 10, func(ctx context.Context, e *Entry) error {
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 2, redriven)
	assert.Equal(t, 0, abandoned)
	assert.ElementsMatch(t, []string{"a", "b"}, store.resolved)
}

func TestDrainMarksRetriedOnFailureWithoutAbandoning(t *testing.T) {
	store := &fakeStore{pending: []*Entry{{ID: "a", Attempts: 1}}}
	q := New(store, nil)

	redriven, abandoned, err := q.Drain(context.Background(), "audit_append", 10, func(ctx context.Context, e *Entry) error {
		return errors.New("still failing")
	})

	assert.NoError(t, err)
	assert.Equal(t, 0, redriven)
	assert.Equal(t, 0, abandoned)
	assert.Equal(t, 1, store.retried["a"])
}

func TestDrainAbandonsEntriesAtMaxAttempts(t *testing.T) {
	store := &fakeStore{pending: []*Entry{{ID: "stale", Attempts: MaxAttempts}}}
	q := New(store, nil)

	redriven, abandoned, err := q.Drain(context.Background(), "audit_append", 10, func(ctx context.Context, e *Entry) error {
		t.Fatal("redrive should not be called for an entry at max attempts")
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 0, redriven)
	assert.Equal(t, 1, abandoned)
	assert.Equal(t, []string{"stale"}, store.abandoned)
}

func TestDrainStopsWhenContextCancelled(t *testing.T) {
	store := &fakeStore{pending: []*Entry{{ID: "a"}, {ID: "b"}}}
	q := New(store, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := q.Drain(ctx, "audit_append", 10, func(ctx context.Context, e *Entry) error {
		return nil
	})

	assert.Error(t, err)
}
