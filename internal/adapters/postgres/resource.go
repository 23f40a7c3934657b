package postgres

import (
	"context"

	sqrl "github.com/Masterminds/squirrel"

	"github.com/access-control/acs-core/internal/domain/entity"
)

// ResourceRepository manages the resources and uri_access tables — the
// registered URI templates a Permission's ResourceID can point at
// (spec.md §3 Resource/UriAccess).
type ResourceRepository struct {
	conn *Connection
}

// NewResourceRepository returns a repository bound to conn.
func NewResourceRepository(conn *Connection) *ResourceRepository {
	return &ResourceRepository{conn: conn}
}

// Register inserts a new resource version, deactivating any prior active
// version of the same URI template (spec.md §3 "versioned so at most one
// version per template is active").
func (r *ResourceRepository) Register(ctx context.Context, res *entity.Resource) (*entity.Resource, error) {
	db, err := r.conn.GetDB(ctx)
	if err != nil {
		return nil, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}

	deactivate, args, err := sqrl.Update("resources").
		Set("is_active", false).
		Where(sqrl.Eq{"uri_template": res.URITemplate, "is_active": true}).
		PlaceholderFormat(sqrl.Dollar).
		ToSql()
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, deactivate, args...); err != nil {
		_ = tx.Rollback()
		return nil, err
	}

	insert, args, err := sqrl.Insert("resources").
		Columns("uri_template", "resource_type", "version", "is_active", "parent_resource_id").
		Values(res.URITemplate, res.ResourceType, res.Version, true, res.ParentResourceID).
		Suffix("RETURNING id").
		PlaceholderFormat(sqrl.Dollar).
		ToSql()
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}

	var id int64
	if err := tx.QueryRowContext(ctx, insert, args...).Scan(&id); err != nil {
		_ = tx.Rollback()
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	res.ID = id
	res.Active = true

	return res, nil
}

// FindActiveByURITemplate looks up the currently active resource row for a
// URI template, used when a grant_permission command targets a resource by
// name instead of a raw numeric id.
func (r *ResourceRepository) FindActiveByURITemplate(ctx context.Context, uriTemplate string) (*entity.Resource, error) {
	db, err := r.conn.GetDB(ctx)
	if err != nil {
		return nil, err
	}

	query, args, err := sqrl.Select("id", "uri_template", "resource_type", "version", "is_active", "parent_resource_id").
		From("resources").
		Where(sqrl.Eq{"uri_template": uriTemplate, "is_active": true}).
		PlaceholderFormat(sqrl.Dollar).
		ToSql()
	if err != nil {
		return nil, err
	}

	row := db.QueryRowContext(ctx, query, args...)

	var res entity.Resource
	if err := row.Scan(&res.ID, &res.URITemplate, &res.ResourceType, &res.Version, &res.Active, &res.ParentResourceID); err != nil {
		return nil, asNotFound("Resource", uriTemplate, err)
	}

	return &res, nil
}
