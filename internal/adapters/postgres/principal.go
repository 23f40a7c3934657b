package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	sqrl "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"github.com/access-control/acs-core/internal/domain/entity"
)

// uniqueViolation is the Postgres SQLSTATE for a unique constraint
// violation (https://www.postgresql.org/docs/current/errcodes-appendix.html).
const uniqueViolation = "23505"

// PrincipalModel represents entity.Principal in SQL context, mirroring the
// teacher's OrganizationPostgreSQLModel split between row shape and
// graph-shaped entity.
type PrincipalModel struct {
	ID        int64
	Name      string
	Kind      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ToEntity builds a bare entity.Principal — relation sets and permissions
// are populated separately by PrincipalRepository.LoadAll, which also joins
// principal_edges/user_roles/permissions.
func (m *PrincipalModel) ToEntity() *entity.Principal {
	var kind entity.Kind

	switch m.Kind {
	case "group":
		kind = entity.KindGroup
	case "role":
		kind = entity.KindRole
	default:
		kind = entity.KindUser
	}

	p := entity.NewPrincipal(m.ID, m.Name, kind)
	p.CreatedAt = m.CreatedAt
	p.UpdatedAt = m.UpdatedAt

	return p
}

// PrincipalRepository is the squirrel+pgx repository for the principals
// table, mirroring OrganizationPostgreSQLRepository.
type PrincipalRepository struct {
	conn *Connection
}

// NewPrincipalRepository returns a repository bound to conn.
func NewPrincipalRepository(conn *Connection) *PrincipalRepository {
	return &PrincipalRepository{conn: conn}
}

// LoadAll retrieves every principal, its structural edges, its direct role
// assignments, and its permissions — everything graph.Graph.LoadFromStore
// needs to rebuild the in-memory graph at startup (spec.md §4.1).
func (r *PrincipalRepository) LoadAll(ctx context.Context) (users, groups, roles []*entity.Principal, permissions []*entity.Permission, err error) {
	db, err := r.conn.GetDB(ctx)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	byID := make(map[int64]*entity.Principal)

	query, _, err := sqrl.Select("id", "name", "kind", "created_at", "updated_at").
		From("principals").
		PlaceholderFormat(sqrl.Dollar).
		ToSql()
	if err != nil {
		return nil, nil, nil, nil, err
	}

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	for rows.Next() {
		var m PrincipalModel
		if err := rows.Scan(&m.ID, &m.Name, &m.Kind, &m.CreatedAt, &m.UpdatedAt); err != nil {
			rows.Close()
			return nil, nil, nil, nil, err
		}

		p := m.ToEntity()
		byID[p.ID] = p

		switch p.Kind {
		case entity.KindUser:
			users = append(users, p)
		case entity.KindGroup:
			groups = append(groups, p)
		case entity.KindRole:
			roles = append(roles, p)
		}
	}

	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, nil, nil, nil, err
	}

	rows.Close()

	if err := r.loadEdges(ctx, db, byID); err != nil {
		return nil, nil, nil, nil, err
	}

	if err := r.loadDirectRoles(ctx, db, byID); err != nil {
		return nil, nil, nil, nil, err
	}

	permissions, err = r.loadPermissions(ctx, db)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	return users, groups, roles, permissions, nil
}

func (r *PrincipalRepository) loadEdges(ctx context.Context, db interface {
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
}, byID map[int64]*entity.Principal) error {
	rows, err := db.QueryContext(ctx, `SELECT parent_id, child_id FROM principal_edges`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var parentID, childID int64
		if err := rows.Scan(&parentID, &childID); err != nil {
			return err
		}

		if parent, ok := byID[parentID]; ok {
			parent.Children[childID] = struct{}{}
		}

		if child, ok := byID[childID]; ok {
			child.Parents[parentID] = struct{}{}
		}
	}

	return rows.Err()
}

func (r *PrincipalRepository) loadDirectRoles(ctx context.Context, db interface {
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
}, byID map[int64]*entity.Principal) error {
	rows, err := db.QueryContext(ctx, `SELECT user_id, role_id FROM user_roles`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var userID, roleID int64
		if err := rows.Scan(&userID, &roleID); err != nil {
			return err
		}

		if user, ok := byID[userID]; ok {
			user.DirectRoles[roleID] = struct{}{}
		}

		if role, ok := byID[roleID]; ok {
			role.DirectRoleOf[userID] = struct{}{}
		}
	}

	return rows.Err()
}

func (r *PrincipalRepository) loadPermissions(ctx context.Context, db interface {
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
}) ([]*entity.Permission, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, principal_id, uri, verb, grant_flag, deny_flag, scheme, resource_id FROM permissions`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*entity.Permission

	for rows.Next() {
		var (
			perm       entity.Permission
			verb       string
			scheme     string
			resourceID sql.NullInt64
		)

		if err := rows.Scan(&perm.ID, &perm.PrincipalID, &perm.URI, &verb, &perm.Grant, &perm.Deny, &scheme, &resourceID); err != nil {
			return nil, err
		}

		parsedVerb, _ := entity.ParseVerb(verb)
		perm.Verb = parsedVerb
		perm.Scheme = entity.Scheme(scheme)

		if resourceID.Valid {
			id := resourceID.Int64
			perm.ResourceID = &id
		}

		out = append(out, &perm)
	}

	return out, rows.Err()
}

// asNotFound translates sql.ErrNoRows into the typed taxonomy.
func asNotFound(entityType string, id any, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return entity.NewNotFound(entityType, id)
	}

	return asConflict(entityType, err)
}

// asConflict translates a Postgres unique-constraint violation, reported by
// the pgx driver as *pgconn.PgError or by lib/pq as *pq.Error, into the
// typed taxonomy so a duplicate insert surfaces as entity.KindConflict
// (non-retryable) instead of an opaque transient failure (spec.md §7
// "Conflict handling").
func asConflict(entityType string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return entity.NewConflict(entityType, pgErr.Message)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return entity.NewConflict(entityType, pqErr.Message)
	}

	return err
}
