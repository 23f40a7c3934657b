package postgres

import (
	"context"
	"database/sql"

	sqrl "github.com/Masterminds/squirrel"

	"github.com/access-control/acs-core/internal/domain/entity"
)

// AuditRepository persists entity.AuditRecord to the audit_logs table,
// satisfying audit.Store.
type AuditRepository struct {
	conn *Connection
}

// NewAuditRepository returns a repository bound to conn.
func NewAuditRepository(conn *Connection) *AuditRepository {
	return &AuditRepository{conn: conn}
}

// Append inserts one immutable audit record.
func (r *AuditRepository) Append(ctx context.Context, rec *entity.AuditRecord) error {
	db, err := r.conn.GetDB(ctx)
	if err != nil {
		return err
	}

	query, args, err := sqrl.Insert("audit_logs").
		Columns("id", "entity_type", "entity_id", "change_type", "actor", "ts", "details", "content_hash").
		Values(rec.ID, rec.EntityType, rec.EntityID, rec.ChangeType.String(), rec.Actor, rec.Timestamp, rec.Details, rec.ContentHash).
		PlaceholderFormat(sqrl.Dollar).
		ToSql()
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, query, args...)

	return err
}

// LastID returns the highest audit id persisted so far, 0 if the table is
// empty.
func (r *AuditRepository) LastID(ctx context.Context) (int64, error) {
	db, err := r.conn.GetDB(ctx)
	if err != nil {
		return 0, err
	}

	var last sql.NullInt64

	row := db.QueryRowContext(ctx, `SELECT MAX(id) FROM audit_logs`)
	if err := row.Scan(&last); err != nil {
		return 0, err
	}

	if !last.Valid {
		return 0, nil
	}

	return last.Int64, nil
}

// RangeByID retrieves every audit record with id in [fromID, toID], in id
// order, for VerifyChain.
func (r *AuditRepository) RangeByID(ctx context.Context, fromID, toID int64) ([]*entity.AuditRecord, error) {
	db, err := r.conn.GetDB(ctx)
	if err != nil {
		return nil, err
	}

	query, args, err := sqrl.Select("id", "entity_type", "entity_id", "change_type", "actor", "ts", "details", "content_hash").
		From("audit_logs").
		Where(sqrl.And{sqrl.GtOrEq{"id": fromID}, sqrl.LtOrEq{"id": toID}}).
		OrderBy("id ASC").
		PlaceholderFormat(sqrl.Dollar).
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*entity.AuditRecord

	for rows.Next() {
		var (
			rec        entity.AuditRecord
			changeType string
		)

		if err := rows.Scan(&rec.ID, &rec.EntityType, &rec.EntityID, &changeType, &rec.Actor, &rec.Timestamp, &rec.Details, &rec.ContentHash); err != nil {
			return nil, err
		}

		rec.ChangeType = parseChangeType(changeType)
		out = append(out, &rec)
	}

	return out, rows.Err()
}

func parseChangeType(s string) entity.ChangeType {
	for ct := entity.ChangeCreate; ct <= entity.ChangeError; ct++ {
		if ct.String() == s {
			return ct
		}
	}

	return entity.ChangeError
}
