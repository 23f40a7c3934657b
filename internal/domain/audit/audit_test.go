package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/access-control/acs-core/internal/domain/entity"
)

type fakeStore struct {
	records   []*entity.AuditRecord
	lastID    int64
	appendErr error
}

func (f *fakeStore) Append(ctx context.Context, r *entity.AuditRecord) error {
	if f.appendErr != nil {
		return f.appendErr
	}

	f.records = append(f.records, r)
	f.lastID = r.ID

	return nil
}

func (f *fakeStore) LastID(ctx context.Context) (int64, error) {
	return f.lastID, nil
}

func (f *fakeStore) RangeByID(ctx context.Context, fromID, toID int64) ([]*entity.AuditRecord, error) {
	var out []*entity.AuditRecord

	for _, r := range f.records {
		if r.ID >= fromID && r.ID <= toID {
			out = append(out, r)
		}
	}

	return out, nil
}

type fakeSink struct {
	enqueued int
}

func (f *fakeSink) Enqueue(ctx context.Context, operation string, payload []byte, attempts int, cause error) error {
	f.enqueued++
	return nil
}

func TestNewWriterSeedsSequenceFromLastID(t *testing.T) {
	store := &fakeStore{lastID: 41}

	w, err := NewWriter(context.Background(), store, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(42), w.nextID)
}

func TestRecordSealsAndAppendsWithIncrementingID(t *testing.T) {
	store := &fakeStore{}

	w, err := NewWriter(context.Background(), store, nil)
	assert.NoError(t, err)

	w.Record(context.Background(), "user", "7", entity.ChangeCreate, "actor-1", map[string]string{"name": "alice"})
	w.Record(context.Background(), "user", "7", entity.ChangeUpdate, "actor-1", map[string]string{"name": "bob"})

	assert.Len(t, store.records, 2)
	assert.Equal(t, int64(1), store.records[0].ID)
	assert.Equal(t, int64(2), store.records[1].ID)
	assert.True(t, entity.Verify(store.records[0]))
}

func TestRecordRoutesAppendFailureToDLQWithoutError(t *testing.T) {
	store := &fakeStore{appendErr: errors.New("db unavailable")}
	sink := &fakeSink{}

	w, err := NewWriter(context.Background(), store, sink)
	assert.NoError(t, err)

	assert.NotPanics(t, func() {
		w.Record(context.Background(), "user", "7", entity.ChangeCreate, "actor-1", nil)
	})
	assert.Equal(t, 1, sink.enqueued)
}

func TestVerifyChainDetectsGapAndHashMismatch(t *testing.T) {
	store := &fakeStore{}

	r1 := &entity.AuditRecord{ID: 1, EntityType: "user", EntityID: "1", ChangeType: entity.ChangeCreate}
	entity.Seal(r1)

	r3 := &entity.AuditRecord{ID: 3, EntityType: "user", EntityID: "1", ChangeType: entity.ChangeUpdate}
	entity.Seal(r3)
	r3.Details = "tampered after sealing"

	store.records = []*entity.AuditRecord{r1, r3}

	problems, err := VerifyChain(context.Background(), store, 1, 3)
	assert.NoError(t, err)
	assert.Len(t, problems, 2)
}

func TestVerifyChainCleanForContiguousValidRecords(t *testing.T) {
	store := &fakeStore{}

	for i := int64(1); i <= 3; i++ {
		r := &entity.AuditRecord{ID: i, EntityType: "user", EntityID: "1", ChangeType: entity.ChangeCreate}
		entity.Seal(r)
		store.records = append(store.records, r)
	}

	problems, err := VerifyChain(context.Background(), store, 1, 3)
	assert.NoError(t, err)
	assert.Empty(t, problems)
}
