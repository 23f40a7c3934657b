// Package audit implements the Audit Log Writer (C4): an append-only,
// hash-chained record of every command outcome, persisted to the same
// Postgres database as C3 (spec.md §4.4). A write failure here never blocks
// the command that triggered it: the first failed Append hands the record to
// the dead-letter queue (C5) for later redrive. The writer neither retries
// nor logs the failure.
package audit

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/access-control/acs-core/internal/domain/entity"
)

// Store persists audit records and reads them back in id order for
// verification. Implemented by internal/adapters/postgres.
type Store interface {
	Append(ctx context.Context, r *entity.AuditRecord) error
	LastID(ctx context.Context) (int64, error)
	RangeByID(ctx context.Context, fromID, toID int64) ([]*entity.AuditRecord, error)
}

// FailureSink receives a record whose single Store.Append attempt failed,
// so it can be handed to the dead-letter queue (C5) rather than
// lost (spec.md §4.4 "never blocks the command").
type FailureSink interface {
	Enqueue(ctx context.Context, operation string, payload []byte, attempts int, cause error) error
}

// Writer appends AuditRecords under an id sequence it owns, sealing each
// with its content hash before persisting.
type Writer struct {
	store  Store
	dlq    FailureSink
	nextID int64
}

// NewWriter constructs a Writer, seeding its id sequence from the highest
// id already in store.
func NewWriter(ctx context.Context, store Store, dlq FailureSink) (*Writer, error) {
	last, err := store.LastID(ctx)
	if err != nil {
		return nil, err
	}

	return &Writer{store: store, dlq: dlq, nextID: last + 1}, nil
}

// Record builds, seals, and persists one audit entry. On a persistence
// failure it enqueues the record to the dead-letter queue and swallows the
// error — audit durability degrades to "eventually written", never to
// "command blocked" (spec.md §4.4, §7).
func (w *Writer) Record(ctx context.Context, entityType, entityID string, change entity.ChangeType, actor string, details any) {
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		detailsJSON = []byte("{}")
	}

	rec := &entity.AuditRecord{
		ID:         w.nextID,
		EntityType: entityType,
		EntityID:   entityID,
		ChangeType: change,
		Actor:      actor,
		Timestamp:  time.Now().UTC(),
		Details:    string(detailsJSON),
	}
	w.nextID++

	entity.Seal(rec)

	if err := w.store.Append(ctx, rec); err != nil && w.dlq != nil {
		_ = w.dlq.Enqueue(ctx, "audit_append", detailsJSON, entity.AttemptsOf(err), err)
	}
}

// VerifyChain walks audit records between fromID and toID (inclusive),
// recomputing each content hash and reporting every gap or mismatch found,
// without blocking live traffic (spec.md §9 "Audit integrity").
func VerifyChain(ctx context.Context, store Store, fromID, toID int64) ([]*entity.Error, error) {
	records, err := store.RangeByID(ctx, fromID, toID)
	if err != nil {
		return nil, err
	}

	var problems []*entity.Error

	expected := fromID

	for _, r := range records {
		if r.ID != expected {
			problems = append(problems, entity.NewIntegrity("gap in audit chain: expected id "+strconv.FormatInt(expected, 10)+" found "+strconv.FormatInt(r.ID, 10)))
			expected = r.ID
		}

		if !entity.Verify(r) {
			problems = append(problems, entity.NewIntegrity("content hash mismatch at audit id "+strconv.FormatInt(r.ID, 10)))
		}

		expected++
	}

	return problems, nil
}
