package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/access-control/acs-core/internal/domain/entity"
)

func newTestGraph(t *testing.T) (*Graph, *entity.Principal, *entity.Principal) {
	t.Helper()

	g := New()

	groupID := g.NextID(entity.KindGroup)
	group := entity.NewPrincipal(groupID, "engineering", entity.KindGroup)
	g.Insert(group)

	userID := g.NextID(entity.KindUser)
	user := entity.NewPrincipal(userID, "alice", entity.KindUser)
	g.Insert(user)

	return g, group, user
}

func TestLinkEnforcesCanBeChildOf(t *testing.T) {
	g, group, user := newTestGraph(t)

	err := g.Link(group.ID, user.ID)
	assert.NoError(t, err)

	err = g.Link(user.ID, group.ID)
	assert.Error(t, err)
}

func TestWouldCycleDetectsSelfLoop(t *testing.T) {
	g, group, _ := newTestGraph(t)

	assert.True(t, g.WouldCycle(group.ID, group.ID))
}

func TestWouldCycleDetectsTransitiveLoop(t *testing.T) {
	g := New()

	a := entity.NewPrincipal(g.NextID(entity.KindGroup), "a", entity.KindGroup)
	b := entity.NewPrincipal(g.NextID(entity.KindGroup), "b", entity.KindGroup)
	c := entity.NewPrincipal(g.NextID(entity.KindGroup), "c", entity.KindGroup)
	g.Insert(a)
	g.Insert(b)
	g.Insert(c)

	assert.NoError(t, g.Link(a.ID, b.ID))
	assert.NoError(t, g.Link(b.ID, c.ID))

	// a -> b -> c already exists; linking c as a parent of a would cycle.
	assert.True(t, g.WouldCycle(c.ID, a.ID))
	assert.False(t, g.WouldCycle(a.ID, c.ID))
}

func TestDeleteCascadesEdgesAndPermissions(t *testing.T) {
	g, group, user := newTestGraph(t)

	assert.NoError(t, g.Link(group.ID, user.ID))

	permID := g.NextPermissionID()
	user.Permissions[permID] = &entity.Permission{ID: permID, PrincipalID: user.ID, URI: "/x", Grant: true}

	assert.NoError(t, g.Delete(user.ID))

	_, err := g.GetAny(user.ID)
	assert.Error(t, err)

	assert.NotContains(t, group.Children, user.ID)
}

func TestDeleteCascadesDirectRoleAssignment(t *testing.T) {
	g := New()

	userID := g.NextID(entity.KindUser)
	user := entity.NewPrincipal(userID, "bob", entity.KindUser)
	g.Insert(user)

	roleID := g.NextID(entity.KindRole)
	role := entity.NewPrincipal(roleID, "admin", entity.KindRole)
	g.Insert(role)

	assert.NoError(t, g.AssignRole(userID, roleID))
	assert.Contains(t, role.DirectRoleOf, userID)

	assert.NoError(t, g.Delete(userID))
	assert.NotContains(t, role.DirectRoleOf, userID)
}

func TestUpsertPermissionUpdatesInPlace(t *testing.T) {
	g, _, user := newTestGraph(t)

	id := g.NextPermissionID()
	first := &entity.Permission{ID: id, PrincipalID: user.ID, URI: "/a/*", Verb: entity.VerbGet, Grant: true}
	stored := g.UpsertPermission(user, first)
	assert.True(t, stored.Grant)

	second := &entity.Permission{ID: id, PrincipalID: user.ID, URI: "/a/*", Verb: entity.VerbGet, Deny: true}
	stored = g.UpsertPermission(user, second)

	assert.True(t, stored.Deny)
	assert.Len(t, user.Permissions, 1)
}

func TestRevokePermissionIsIdempotent(t *testing.T) {
	g, _, user := newTestGraph(t)

	id := g.NextPermissionID()
	user.Permissions[id] = &entity.Permission{ID: id, PrincipalID: user.ID, URI: "/a", Verb: entity.VerbGet, Grant: true}

	g.RevokePermission(user, "/a", entity.VerbGet)
	assert.Empty(t, user.Permissions)

	// Second revoke of the same (uri, verb) must not panic or error.
	g.RevokePermission(user, "/a", entity.VerbGet)
}
