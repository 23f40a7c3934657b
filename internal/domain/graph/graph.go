// Package graph implements the Entity Graph (C1): the authoritative
// in-memory principal/permission graph for one tenant. All mutations must
// come from the executor goroutine (C7); concurrent readers are safe
// because the executor is the sole writer (spec.md §4.1, §5).
package graph

import (
	"context"
	"sync/atomic"

	"github.com/access-control/acs-core/internal/domain/entity"
)

// Loader rebuilds the graph from the relational store at startup.
// Implemented by the persistence adapter (C3); kept here as a narrow port
// so the graph package has no import on adapters/postgres.
type Loader interface {
	LoadAll(ctx context.Context) (users, groups, roles []*entity.Principal, permissions []*entity.Permission, err error)
}

// Graph is the tenant's authoritative principal/permission store.
type Graph struct {
	users  map[int64]*entity.Principal
	groups map[int64]*entity.Principal
	roles  map[int64]*entity.Principal

	nextUserID  atomic.Int64
	nextGroupID atomic.Int64
	nextRoleID  atomic.Int64
	nextPermID  atomic.Int64
}

// New returns an empty Graph.
func New() *Graph {
	return &Graph{
		users:  make(map[int64]*entity.Principal),
		groups: make(map[int64]*entity.Principal),
		roles:  make(map[int64]*entity.Principal),
	}
}

// NextID returns a monotonically increasing id for kind, safe to call
// outside the executor goroutine so callers can allocate ids eagerly for
// replies before the executor has even dequeued the command (spec.md §4.1).
func (g *Graph) NextID(kind entity.Kind) int64 {
	switch kind {
	case entity.KindUser:
		return g.nextUserID.Add(1)
	case entity.KindGroup:
		return g.nextGroupID.Add(1)
	case entity.KindRole:
		return g.nextRoleID.Add(1)
	default:
		return 0
	}
}

// NextPermissionID allocates the next permission id.
func (g *Graph) NextPermissionID() int64 {
	return g.nextPermID.Add(1)
}

func (g *Graph) indexFor(kind entity.Kind) map[int64]*entity.Principal {
	switch kind {
	case entity.KindUser:
		return g.users
	case entity.KindGroup:
		return g.groups
	case entity.KindRole:
		return g.roles
	default:
		return nil
	}
}

// GetUser fails with NotFound if absent.
func (g *Graph) GetUser(id int64) (*entity.Principal, error) {
	return g.get(g.users, "User", id)
}

// GetGroup fails with NotFound if absent.
func (g *Graph) GetGroup(id int64) (*entity.Principal, error) {
	return g.get(g.groups, "Group", id)
}

// GetRole fails with NotFound if absent.
func (g *Graph) GetRole(id int64) (*entity.Principal, error) {
	return g.get(g.roles, "Role", id)
}

// GetAny looks a principal up regardless of kind.
func (g *Graph) GetAny(id int64) (*entity.Principal, error) {
	if p, ok := g.users[id]; ok {
		return p, nil
	}

	if p, ok := g.groups[id]; ok {
		return p, nil
	}

	if p, ok := g.roles[id]; ok {
		return p, nil
	}

	return nil, entity.NewNotFound("Principal", id)
}

func (g *Graph) get(idx map[int64]*entity.Principal, kind string, id int64) (*entity.Principal, error) {
	p, ok := idx[id]
	if !ok {
		return nil, entity.NewNotFound(kind, id)
	}

	return p, nil
}

// Insert adds a newly created principal to its kind index.
func (g *Graph) Insert(p *entity.Principal) {
	idx := g.indexFor(p.Kind)
	if idx == nil {
		return
	}

	idx[p.ID] = p
}

// Delete removes a principal and cascades removal of its owned
// permissions and every edge referencing it (spec.md §9 resolved open
// question: cascaded delete of owned permissions).
func (g *Graph) Delete(id int64) error {
	p, err := g.GetAny(id)
	if err != nil {
		return err
	}

	for parentID := range p.Parents {
		if parent, ok := g.users[parentID]; ok {
			delete(parent.Children, id)
		} else if parent, ok := g.groups[parentID]; ok {
			delete(parent.Children, id)
		} else if parent, ok := g.roles[parentID]; ok {
			delete(parent.Children, id)
		}
	}

	for childID := range p.Children {
		if child, ok := g.users[childID]; ok {
			delete(child.Parents, id)
		} else if child, ok := g.groups[childID]; ok {
			delete(child.Parents, id)
		} else if child, ok := g.roles[childID]; ok {
			delete(child.Parents, id)
		}
	}

	if p.Kind == entity.KindUser {
		for roleID := range p.DirectRoles {
			if role, ok := g.roles[roleID]; ok {
				delete(role.DirectRoleOf, id)
			}
		}
	}

	if p.Kind == entity.KindRole {
		for userID := range p.DirectRoleOf {
			if u, ok := g.users[userID]; ok {
				delete(u.DirectRoles, id)
			}
		}
	}

	delete(g.indexFor(p.Kind), id)

	return nil
}

// Link adds a structural parent/child edge and refuses one that
// CanBeChildOf does not permit (spec.md §3, §8 scenario 3). Link does not
// check for cycles; a caller linking two Groups calls WouldCycle first to
// reject a cycle with a Conflict error, as the service does.
func (g *Graph) Link(parentID, childID int64) error {
	parent, err := g.GetAny(parentID)
	if err != nil {
		return err
	}

	child, err := g.GetAny(childID)
	if err != nil {
		return err
	}

	if !entity.CanBeChildOf(child.Kind, parent.Kind) {
		return entity.NewInvalidArgument("Principal", "a "+child.Kind.String()+" cannot be a child of a "+parent.Kind.String())
	}

	parent.Children[childID] = struct{}{}
	child.Parents[parentID] = struct{}{}

	return nil
}

// Unlink removes a structural parent/child edge; a no-op if absent.
func (g *Graph) Unlink(parentID, childID int64) error {
	parent, err := g.GetAny(parentID)
	if err != nil {
		return err
	}

	child, err := g.GetAny(childID)
	if err != nil {
		return err
	}

	delete(parent.Children, childID)
	delete(child.Parents, parentID)

	return nil
}

// AssignRole adds a direct User→Role assignment (user_roles), outside the
// structural Parents/Children tree (see entity.Principal doc comment).
func (g *Graph) AssignRole(userID, roleID int64) error {
	user, err := g.GetUser(userID)
	if err != nil {
		return err
	}

	role, err := g.GetRole(roleID)
	if err != nil {
		return err
	}

	user.DirectRoles[roleID] = struct{}{}
	role.DirectRoleOf[userID] = struct{}{}

	return nil
}

// UnassignRole removes a direct User→Role assignment; a no-op if absent.
func (g *Graph) UnassignRole(userID, roleID int64) error {
	user, err := g.GetUser(userID)
	if err != nil {
		return err
	}

	role, err := g.GetRole(roleID)
	if err != nil {
		return err
	}

	delete(user.DirectRoles, roleID)
	delete(role.DirectRoleOf, userID)

	return nil
}

// WouldCycle reports whether linking child as a descendant of parent would
// introduce a cycle in the Group hierarchy — i.e. parent is already
// reachable from child by walking Children (spec.md §4.3, §8 scenario 3).
// Only meaningful for Group→Group edges; Users are structurally acyclic
// because they are leaves.
func (g *Graph) WouldCycle(parentID, childID int64) bool {
	if parentID == childID {
		return true
	}

	visited := make(map[int64]struct{})

	var walk func(id int64) bool
	walk = func(id int64) bool {
		if id == parentID {
			return true
		}

		if _, seen := visited[id]; seen {
			return false
		}

		visited[id] = struct{}{}

		group, ok := g.groups[id]
		if !ok {
			return false
		}

		for grandchildID := range group.Children {
			if walk(grandchildID) {
				return true
			}
		}

		return false
	}

	return walk(childID)
}

// Users returns a snapshot slice of every user principal.
func (g *Graph) Users() []*entity.Principal { return snapshot(g.users) }

// Groups returns a snapshot slice of every group principal.
func (g *Graph) Groups() []*entity.Principal { return snapshot(g.groups) }

// Roles returns a snapshot slice of every role principal.
func (g *Graph) Roles() []*entity.Principal { return snapshot(g.roles) }

func snapshot(idx map[int64]*entity.Principal) []*entity.Principal {
	out := make([]*entity.Principal, 0, len(idx))
	for _, p := range idx {
		out = append(out, p)
	}

	return out
}

// LoadFromStore rebuilds the graph from the relational store at startup
// and sets id counters to max(existing_id) per kind (spec.md §4.1).
func (g *Graph) LoadFromStore(ctx context.Context, loader Loader) error {
	users, groups, roles, permissions, err := loader.LoadAll(ctx)
	if err != nil {
		return err
	}

	g.users = make(map[int64]*entity.Principal, len(users))
	g.groups = make(map[int64]*entity.Principal, len(groups))
	g.roles = make(map[int64]*entity.Principal, len(roles))

	var maxUser, maxGroup, maxRole, maxPerm int64

	for _, p := range users {
		g.users[p.ID] = p
		if p.ID > maxUser {
			maxUser = p.ID
		}
	}

	for _, p := range groups {
		g.groups[p.ID] = p
		if p.ID > maxGroup {
			maxGroup = p.ID
		}
	}

	for _, p := range roles {
		g.roles[p.ID] = p
		if p.ID > maxRole {
			maxRole = p.ID
		}
	}

	for _, perm := range permissions {
		owner, err := g.GetAny(perm.PrincipalID)
		if err != nil {
			continue
		}

		owner.Permissions[perm.ID] = perm

		if perm.ID > maxPerm {
			maxPerm = perm.ID
		}
	}

	g.nextUserID.Store(maxUser)
	g.nextGroupID.Store(maxGroup)
	g.nextRoleID.Store(maxRole)
	g.nextPermID.Store(maxPerm)

	return nil
}

// UpsertPermission inserts or, if a row already exists for (principal, URI,
// verb, scheme), updates it in place (spec.md §3 Permission
// invariant, §9 Normalizers "upsert-semantics").
func (g *Graph) UpsertPermission(principal *entity.Principal, perm *entity.Permission) *entity.Permission {
	for _, existing := range principal.Permissions {
		if existing.URI == perm.URI && existing.Verb == perm.Verb && existing.Scheme == perm.Scheme {
			existing.Grant = perm.Grant
			existing.Deny = perm.Deny
			existing.ResourceID = perm.ResourceID
			existing.Conditions = perm.Conditions

			return existing
		}
	}

	principal.Permissions[perm.ID] = perm

	return perm
}

// RevokePermission removes the permission matching (uri, verb); a no-op if
// none exists (idempotent per spec.md §8).
func (g *Graph) RevokePermission(principal *entity.Principal, uri string, verb entity.Verb) {
	for id, existing := range principal.Permissions {
		if existing.URI == uri && existing.Verb == verb {
			delete(principal.Permissions, id)
			return
		}
	}
}
