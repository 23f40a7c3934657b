package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/access-control/acs-core/internal/domain/audit"
	"github.com/access-control/acs-core/internal/domain/cache"
	"github.com/access-control/acs-core/internal/domain/command"
	"github.com/access-control/acs-core/internal/domain/dlq"
	"github.com/access-control/acs-core/internal/domain/entity"
	"github.com/access-control/acs-core/internal/domain/evaluator"
	"github.com/access-control/acs-core/internal/domain/graph"
	"github.com/access-control/acs-core/internal/domain/normalize"
	"github.com/access-control/acs-core/internal/domain/persistence"
)

type fakeTxRunner struct {
	applied [][]normalize.RowOp
}

func (f *fakeTxRunner) Apply(ctx context.Context, ops []normalize.RowOp) error {
	f.applied = append(f.applied, ops)
	return nil
}

type fakeAuditStore struct {
	records []*entity.AuditRecord
}

func (f *fakeAuditStore) Append(ctx context.Context, r *entity.AuditRecord) error {
	f.records = append(f.records, r)
	return nil
}

func (f *fakeAuditStore) LastID(ctx context.Context) (int64, error) { return 0, nil }

func (f *fakeAuditStore) RangeByID(ctx context.Context, fromID, toID int64) ([]*entity.AuditRecord, error) {
	return f.records, nil
}

type fakeDLQStore struct{}

func (f *fakeDLQStore) Insert(ctx context.Context, e *dlq.Entry) error { return nil }

func (f *fakeDLQStore) Pending(ctx context.Context, operation string, limit int) ([]*dlq.Entry, error) {
	return nil, nil
}

func (f *fakeDLQStore) MarkRetried(ctx context.Context, id string, err error) error { return nil }
func (f *fakeDLQStore) MarkResolved(ctx context.Context, id string) error           { return nil }
func (f *fakeDLQStore) MarkAbandoned(ctx context.Context, id string) error          { return nil }

func newTestService(t *testing.T) (*Service, *fakeAuditStore) {
	t.Helper()

	g := graph.New()
	auditStore := &fakeAuditStore{}

	w, err := audit.NewWriter(context.Background(), auditStore, nil)
	assert.NoError(t, err)

	svc := New(g, cache.New(g, 0, nil), persistence.New(&fakeTxRunner{}), w, dlq.New(&fakeDLQStore{}, nil), nil)

	t.Cleanup(func() { _ = svc.Shutdown(context.Background()) })

	return svc, auditStore
}

func TestCreatePrincipalPersistsAndReturnsPrincipal(t *testing.T) {
	svc, auditStore := newTestService(t)

	p, err := svc.CreatePrincipal(context.Background(), "tester", command.KindCreateUser, command.CreatePrincipalPayload{Name: "alice"})
	assert.NoError(t, err)
	assert.Equal(t, "alice", p.Name)
	assert.Equal(t, entity.KindUser, p.Kind)
	assert.NotEmpty(t, auditStore.records)
	assert.Equal(t, entity.ChangeCreate, auditStore.records[len(auditStore.records)-1].ChangeType)
}

func TestCreatePrincipalWithParentLinksImmediately(t *testing.T) {
	svc, _ := newTestService(t)

	group, err := svc.CreatePrincipal(context.Background(), "tester", command.KindCreateGroup, command.CreatePrincipalPayload{Name: "eng"})
	assert.NoError(t, err)

	parentID := group.ID
	user, err := svc.CreatePrincipal(context.Background(), "tester", command.KindCreateUser, command.CreatePrincipalPayload{Name: "bob", ParentGroupID: &parentID})
	assert.NoError(t, err)

	fetched, err := svc.GetPrincipal(context.Background(), group.ID)
	assert.NoError(t, err)
	assert.Contains(t, fetched.Children, user.ID)
}

func TestLinkRejectsCycle(t *testing.T) {
	svc, _ := newTestService(t)

	a, err := svc.CreatePrincipal(context.Background(), "tester", command.KindCreateGroup, command.CreatePrincipalPayload{Name: "a"})
	assert.NoError(t, err)

	b, err := svc.CreatePrincipal(context.Background(), "tester", command.KindCreateGroup, command.CreatePrincipalPayload{Name: "b"})
	assert.NoError(t, err)

	assert.NoError(t, svc.Link(context.Background(), "tester", command.KindAddGroupToGroup, command.LinkPayload{ParentID: a.ID, ChildID: b.ID}))

	err = svc.Link(context.Background(), "tester", command.KindAddGroupToGroup, command.LinkPayload{ParentID: b.ID, ChildID: a.ID})
	assert.Error(t, err)
	assert.Equal(t, entity.KindConflict, entity.KindOf(err))
}

func TestGrantThenCheckGrantsAccess(t *testing.T) {
	svc, _ := newTestService(t)

	user, err := svc.CreatePrincipal(context.Background(), "tester", command.KindCreateUser, command.CreatePrincipalPayload{Name: "carol"})
	assert.NoError(t, err)

	assert.NoError(t, svc.GrantPermission(context.Background(), "tester", command.PermissionPayload{
		PrincipalID: user.ID, URI: "/accounts/*", Verb: "GET",
	}))

	res, err := svc.Check(context.Background(), user.ID, "/accounts/1", entity.VerbGet, evaluator.EvalContext{})
	assert.NoError(t, err)
	assert.True(t, res.HasAccess)
}

func TestRevokeThenCheckDeniesAccess(t *testing.T) {
	svc, _ := newTestService(t)

	user, err := svc.CreatePrincipal(context.Background(), "tester", command.KindCreateUser, command.CreatePrincipalPayload{Name: "dave"})
	assert.NoError(t, err)

	assert.NoError(t, svc.GrantPermission(context.Background(), "tester", command.PermissionPayload{
		PrincipalID: user.ID, URI: "/accounts/*", Verb: "GET",
	}))
	assert.NoError(t, svc.RevokePermission(context.Background(), "tester", command.PermissionPayload{
		PrincipalID: user.ID, URI: "/accounts/*", Verb: "GET",
	}))

	res, err := svc.Check(context.Background(), user.ID, "/accounts/1", entity.VerbGet, evaluator.EvalContext{})
	assert.NoError(t, err)
	assert.False(t, res.HasAccess)
}

func TestDeletePrincipalCascadesAndInvalidatesCache(t *testing.T) {
	svc, _ := newTestService(t)

	group, err := svc.CreatePrincipal(context.Background(), "tester", command.KindCreateGroup, command.CreatePrincipalPayload{Name: "eng"})
	assert.NoError(t, err)

	parentID := group.ID
	user, err := svc.CreatePrincipal(context.Background(), "tester", command.KindCreateUser, command.CreatePrincipalPayload{Name: "eve", ParentGroupID: &parentID})
	assert.NoError(t, err)

	assert.NoError(t, svc.DeletePrincipal(context.Background(), "tester", command.DeletePrincipalPayload{PrincipalID: user.ID}))

	_, err = svc.GetPrincipal(context.Background(), user.ID)
	assert.Error(t, err)
}

func TestUnsupportedCommandKindIsRejected(t *testing.T) {
	svc, _ := newTestService(t)

	err := svc.Link(context.Background(), "tester", command.Kind("bogus_kind"), command.LinkPayload{ParentID: 1, ChildID: 2})
	assert.Error(t, err)
}
