// Package normalize implements the Normalizers (C10): one pure function
// per command kind, turning a validated payload into an ordered list of row
// operations that the persistence adapter (C3) applies inside a single
// transaction. The same row operations are replayed by the dead-letter
// queue (C5) without re-running any in-memory graph mutation, so normalize
// must never read or touch the graph itself (spec.md §4.10).
package normalize

import (
	"strconv"

	"github.com/access-control/acs-core/internal/domain/command"
	"github.com/access-control/acs-core/internal/domain/entity"
)

// Action enumerates the row-level operation a RowOp performs.
type Action string

const (
	Insert Action = "insert"
	Update Action = "update"
	Delete Action = "delete"
	Upsert Action = "upsert"
)

// RowOp is one table-level change, applied by C3's repositories in order
// inside a single transaction (spec.md §4.10, §4.3).
type RowOp struct {
	Table  string
	Action Action
	Values map[string]any
	Where  map[string]any
}

// Plan is the ordered output of a normalizer, plus the entity kind the
// command ultimately targets — carried alongside so C4 can label the audit
// record without re-deriving it from row operations.
type Plan struct {
	Ops        []RowOp
	EntityType string
	EntityID   string
}

// kindRow maps a Kind to the principals table's discriminator column
// value (spec.md §6 schema: a single principals table with a kind column).
func kindRow(kind entity.Kind) string {
	return kind.String()
}

// ForCreatePrincipal normalizes create_user/create_group/create_role.
// allocatedID is pre-allocated by the graph (C1) before the command enters
// the channel so the reply can carry an ID synchronously.
func ForCreatePrincipal(k command.Kind, allocatedID int64, p command.CreatePrincipalPayload) Plan {
	kind := kindForCreate(k)

	ops := []RowOp{{
		Table:  "principals",
		Action: Insert,
		Values: map[string]any{"id": allocatedID, "name": p.Name, "kind": kindRow(kind)},
	}}

	if p.ParentGroupID != nil {
		ops = append(ops, RowOp{
			Table:  "principal_edges",
			Action: Insert,
			Values: map[string]any{"parent_id": *p.ParentGroupID, "child_id": allocatedID},
		})
	}

	return Plan{Ops: ops, EntityType: kind.String(), EntityID: idString(allocatedID)}
}

func kindForCreate(k command.Kind) entity.Kind {
	switch k {
	case command.KindCreateGroup:
		return entity.KindGroup
	case command.KindCreateRole:
		return entity.KindRole
	default:
		return entity.KindUser
	}
}

// ForUpdatePrincipal normalizes update_principal (rename).
func ForUpdatePrincipal(p command.UpdatePrincipalPayload) Plan {
	return Plan{
		Ops: []RowOp{{
			Table:  "principals",
			Action: Update,
			Values: map[string]any{"name": p.Name},
			Where:  map[string]any{"id": p.PrincipalID},
		}},
		EntityType: "principal",
		EntityID:   idString(p.PrincipalID),
	}
}

// ForDeletePrincipal normalizes delete_principal. The database cascades
// principal_edges, user_roles, and permissions via foreign keys (spec.md §6
// schema), matching the graph's in-memory cascade in internal/domain/graph.
func ForDeletePrincipal(p command.DeletePrincipalPayload) Plan {
	return Plan{
		Ops: []RowOp{{
			Table:  "principals",
			Action: Delete,
			Where:  map[string]any{"id": p.PrincipalID},
		}},
		EntityType: "principal",
		EntityID:   idString(p.PrincipalID),
	}
}

// ForLink normalizes every Add edge command (user↔group, group↔role,
// group↔group) into a principal_edges insert.
func ForLink(k command.Kind, p command.LinkPayload) Plan {
	return Plan{
		Ops: []RowOp{{
			Table:  "principal_edges",
			Action: Insert,
			Values: map[string]any{"parent_id": p.ParentID, "child_id": p.ChildID},
		}},
		EntityType: "principal_edge",
		EntityID:   edgeID(p.ParentID, p.ChildID),
	}
}

// ForUnlink normalizes every Remove edge command.
func ForUnlink(k command.Kind, p command.LinkPayload) Plan {
	return Plan{
		Ops: []RowOp{{
			Table:  "principal_edges",
			Action: Delete,
			Where:  map[string]any{"parent_id": p.ParentID, "child_id": p.ChildID},
		}},
		EntityType: "principal_edge",
		EntityID:   edgeID(p.ParentID, p.ChildID),
	}
}

// ForAssignRole normalizes add_user_to_role (user_roles table, outside
// principal_edges — see entity.Principal's DirectRoles doc comment).
func ForAssignRole(p command.LinkPayload) Plan {
	return Plan{
		Ops: []RowOp{{
			Table:  "user_roles",
			Action: Insert,
			Values: map[string]any{"user_id": p.ParentID, "role_id": p.ChildID},
		}},
		EntityType: "user_role",
		EntityID:   edgeID(p.ParentID, p.ChildID),
	}
}

// ForUnassignRole normalizes remove_user_from_role.
func ForUnassignRole(p command.LinkPayload) Plan {
	return Plan{
		Ops: []RowOp{{
			Table:  "user_roles",
			Action: Delete,
			Where:  map[string]any{"user_id": p.ParentID, "role_id": p.ChildID},
		}},
		EntityType: "user_role",
		EntityID:   edgeID(p.ParentID, p.ChildID),
	}
}

// ForGrantPermission normalizes grant_permission, adding a uri_access row
// when the permission targets a registered resource (spec.md §4.10
// "including prerequisite-row creation"); no resource row is written.
func ForGrantPermission(allocatedID int64, p command.PermissionPayload) Plan {
	verb, _ := entity.ParseVerb(p.Verb)

	values := map[string]any{
		"id":           allocatedID,
		"principal_id": p.PrincipalID,
		"uri":          p.URI,
		"verb":         verb.String(),
		"grant_flag":   !p.Deny,
		"deny_flag":    p.Deny,
		"scheme":       string(entity.ApiUriAuthorization),
	}

	if p.ResourceID != nil {
		values["resource_id"] = *p.ResourceID
	}

	ops := []RowOp{{Table: "permissions", Action: Upsert, Values: values}}

	if p.ResourceID != nil {
		ops = append(ops, RowOp{
			Table:  "uri_access",
			Action: Upsert,
			Values: map[string]any{
				"resource_id": *p.ResourceID,
				"verb":        verb.String(),
				"scheme":      string(entity.ApiUriAuthorization),
				"grant":       !p.Deny,
				"deny":        p.Deny,
			},
		})
	}

	return Plan{Ops: ops, EntityType: "permission", EntityID: idString(allocatedID)}
}

// ForRevokePermission normalizes revoke_permission.
func ForRevokePermission(p command.PermissionPayload) Plan {
	verb, _ := entity.ParseVerb(p.Verb)

	return Plan{
		Ops: []RowOp{{
			Table:  "permissions",
			Action: Delete,
			Where:  map[string]any{"principal_id": p.PrincipalID, "uri": p.URI, "verb": verb.String()},
		}},
		EntityType: "permission",
		EntityID:   p.URI,
	}
}

func idString(id int64) string {
	return strconv.FormatInt(id, 10)
}

func edgeID(parent, child int64) string {
	return idString(parent) + "->" + idString(child)
}
