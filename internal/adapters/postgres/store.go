package postgres

import (
	"context"
	"database/sql"
	"fmt"

	sqrl "github.com/Masterminds/squirrel"

	"github.com/access-control/acs-core/internal/domain/normalize"
)

// Store applies normalize.RowOp batches atomically, satisfying
// persistence.TxRunner. Each table name in a RowOp maps to a fixed column
// set — there is no generic reflection-based mapping, mirroring the
// teacher's repositories which hand-list every column per query.
type Store struct {
	conn *Connection
}

// NewStore returns a Store bound to conn.
func NewStore(conn *Connection) *Store {
	return &Store{conn: conn}
}

// Apply runs every op in ops inside one transaction, rolling back on the
// first failure so a partially normalized plan never lands half-written
// (spec.md §4.3 "applies inside one transaction").
func (s *Store) Apply(ctx context.Context, ops []normalize.RowOp) error {
	db, err := s.conn.GetDB(ctx)
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	for _, op := range ops {
		if err := applyOp(ctx, tx, op); err != nil {
			_ = tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

func applyOp(ctx context.Context, tx *sql.Tx, op normalize.RowOp) error {
	switch op.Action {
	case normalize.Insert:
		return doInsert(ctx, tx, op)
	case normalize.Upsert:
		return doUpsert(ctx, tx, op)
	case normalize.Update:
		return doUpdate(ctx, tx, op)
	case normalize.Delete:
		return doDelete(ctx, tx, op)
	default:
		return fmt.Errorf("normalize: unrecognized action %q", op.Action)
	}
}

func doInsert(ctx context.Context, tx *sql.Tx, op normalize.RowOp) error {
	cols, vals := columnsOf(op.Values)

	builder := sqrl.Insert(op.Table).Columns(cols...).Values(vals...).PlaceholderFormat(sqrl.Dollar)

	query, args, err := builder.ToSql()
	if err != nil {
		return err
	}

	if _, err = tx.ExecContext(ctx, query, args...); err != nil {
		return asConflict(op.Table, err)
	}

	return nil
}

// doUpsert inserts or, on a (principal_id, uri, verb, scheme) / (resource_id,
// verb, scheme) conflict, updates the grant/deny flags in place — the same
// upsert semantics the graph (C1) applies to UpsertPermission.
func doUpsert(ctx context.Context, tx *sql.Tx, op normalize.RowOp) error {
	cols, vals := columnsOf(op.Values)

	conflictCols := conflictColumnsFor(op.Table)

	builder := sqrl.Insert(op.Table).Columns(cols...).Values(vals...).PlaceholderFormat(sqrl.Dollar)

	query, args, err := builder.ToSql()
	if err != nil {
		return err
	}

	query += " ON CONFLICT (" + joinCols(conflictCols) + ") DO UPDATE SET " + updateAssignments(cols, conflictCols)

	_, err = tx.ExecContext(ctx, query, args...)

	return err
}

func conflictColumnsFor(table string) []string {
	switch table {
	case "permissions":
		return []string{"principal_id", "uri", "verb", "scheme"}
	case "uri_access":
		return []string{"resource_id", "verb", "scheme"}
	default:
		return []string{"id"}
	}
}

func updateAssignments(cols, conflictCols []string) string {
	skip := make(map[string]struct{}, len(conflictCols))
	for _, c := range conflictCols {
		skip[c] = struct{}{}
	}

	var out string

	for _, c := range cols {
		if _, ok := skip[c]; ok {
			continue
		}

		if c == "id" {
			continue
		}

		if out != "" {
			out += ", "
		}

		out += c + " = EXCLUDED." + c
	}

	return out
}

func doUpdate(ctx context.Context, tx *sql.Tx, op normalize.RowOp) error {
	builder := sqrl.Update(op.Table).PlaceholderFormat(sqrl.Dollar)

	for col, val := range op.Values {
		builder = builder.Set(col, val)
	}

	for col, val := range op.Where {
		builder = builder.Where(sqrl.Eq{col: val})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, query, args...)

	return err
}

func doDelete(ctx context.Context, tx *sql.Tx, op normalize.RowOp) error {
	builder := sqrl.Delete(op.Table).PlaceholderFormat(sqrl.Dollar)

	for col, val := range op.Where {
		builder = builder.Where(sqrl.Eq{col: val})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, query, args...)

	return err
}

func columnsOf(values map[string]any) ([]string, []any) {
	cols := make([]string, 0, len(values))
	for col := range values {
		cols = append(cols, col)
	}

	vals := make([]any, len(cols))
	for i, col := range cols {
		vals[i] = values[col]
	}

	return cols, vals
}

func joinCols(cols []string) string {
	out := ""
	for i, c := range cols {
		if i > 0 {
			out += ", "
		}

		out += c
	}

	return out
}
