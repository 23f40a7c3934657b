// Package command defines the envelope that crosses the channel boundary
// between the Domain Service API (C9) and the single-writer executor (C7).
package command

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/access-control/acs-core/internal/domain/entity"
)

// Kind identifies a registered mutating command. Query operations never
// travel through the channel (spec.md §4.7 control flow).
type Kind string

const (
	KindCreateUser    Kind = "create_user"
	KindCreateGroup   Kind = "create_group"
	KindCreateRole    Kind = "create_role"
	KindUpdatePrincipal Kind = "update_principal"
	KindDeletePrincipal Kind = "delete_principal"

	KindAddUserToGroup      Kind = "add_user_to_group"
	KindRemoveUserFromGroup Kind = "remove_user_from_group"
	KindAddUserToRole       Kind = "add_user_to_role"
	KindRemoveUserFromRole  Kind = "remove_user_from_role"
	KindAddGroupToRole      Kind = "add_group_to_role"
	KindRemoveGroupFromRole Kind = "remove_group_from_role"
	KindAddGroupToGroup     Kind = "add_group_to_group"
	KindRemoveGroupFromGroup Kind = "remove_group_from_group"

	KindGrantPermission  Kind = "grant_permission"
	KindRevokePermission Kind = "revoke_permission"
)

// AllKinds lists every registered mutating command kind, in the order a
// redrive worker should poll the dead-letter queue (spec.md §4.5).
var AllKinds = []Kind{
	KindCreateUser, KindCreateGroup, KindCreateRole,
	KindUpdatePrincipal, KindDeletePrincipal,
	KindAddUserToGroup, KindRemoveUserFromGroup,
	KindAddUserToRole, KindRemoveUserFromRole,
	KindAddGroupToRole, KindRemoveGroupFromRole,
	KindAddGroupToGroup, KindRemoveGroupFromGroup,
	KindGrantPermission, KindRevokePermission,
}

// Payload is the typed argument set for a command. Concrete payload types
// live alongside their validation tags; Payload is the common marker
// interface the envelope carries. The envelope's own Kind field — set
// explicitly by the caller at submit time — is authoritative, since several
// payload types (e.g. LinkPayload) are shared across more than one Kind.
type Payload interface{}

// Result is what a completed command resolves its future with.
type Result struct {
	Principal *entity.Principal
	Err       error
}

// Envelope is the unit of work the channel carries (spec.md §3 "Command
// envelope"). AttemptCount/LastErr are owned by the executor once the
// envelope leaves the submitter's hands.
type Envelope struct {
	Kind          Kind
	Payload       Payload
	Actor         string
	Ctx           context.Context
	future        chan Result
	FirstEnqueued time.Time
	AttemptCount  int
	LastErr       error
	// CorrelationID identifies this command uniquely across the audit log,
	// logs, and traces (spec.md §3 "command identifiers"); unlike Principal
	// and Permission ids it is never looked up by value, so it is a UUID
	// rather than a tenant-scoped sequence.
	CorrelationID string
}

// NewEnvelope constructs an envelope with a single-slot future.
func NewEnvelope(ctx context.Context, kind Kind, payload Payload, actor string) *Envelope {
	return &Envelope{
		Kind:          kind,
		Payload:       payload,
		Actor:         actor,
		Ctx:           ctx,
		future:        make(chan Result, 1),
		FirstEnqueued: time.Now().UTC(),
		CorrelationID: uuid.New().String(),
	}
}

// Complete resolves the envelope's future. The future holds a single
// result and is never closed, so a second call blocks until the first
// result has been received; the executor calls it once per envelope.
func (e *Envelope) Complete(res Result) {
	e.future <- res
}

// Await blocks the submitter until the executor completes the command or
// the caller's context is done, whichever happens first.
func (e *Envelope) Await() (Result, error) {
	select {
	case res := <-e.future:
		return res, nil
	case <-e.Ctx.Done():
		return Result{}, e.Ctx.Err()
	}
}

// Cancelled reports whether the submitter's context ended before the
// executor began processing this envelope (spec.md §4.7 cancellation).
func (e *Envelope) Cancelled() bool {
	select {
	case <-e.Ctx.Done():
		return true
	default:
		return false
	}
}
