// Package service implements the Domain Service API (C9): the one
// public entry point per command plus the query surface. Mutating
// functions validate their payload, build an envelope, submit it to the
// executor (C7), and await the result; query functions read straight
// through the cache (C2) to the graph (C1), bypassing the channel
// entirely (spec.md §4.9, control-flow paragraph).
package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-playground/validator"

	"github.com/access-control/acs-core/internal/domain/audit"
	"github.com/access-control/acs-core/internal/domain/cache"
	"github.com/access-control/acs-core/internal/domain/command"
	"github.com/access-control/acs-core/internal/domain/dlq"
	"github.com/access-control/acs-core/internal/domain/entity"
	"github.com/access-control/acs-core/internal/domain/evaluator"
	"github.com/access-control/acs-core/internal/domain/executor"
	"github.com/access-control/acs-core/internal/domain/graph"
	"github.com/access-control/acs-core/internal/domain/normalize"
	"github.com/access-control/acs-core/internal/domain/persistence"
	"github.com/access-control/acs-core/internal/telemetry"
)

// Service wires the command/query surface over the full stack: graph
// (C1), cache (C2), persistence orchestrator (C3), audit writer (C4),
// dead-letter queue (C5), and the executor (C7) that serializes every
// mutation through a single goroutine.
type Service struct {
	graph     *graph.Graph
	cacheTier *cache.Cache
	exec      *executor.Executor
	persist   *persistence.Orchestrator
	auditLog  *audit.Writer
	dlqQueue  *dlq.Queue
	validate  *validator.Validate
	logger    telemetry.Logger
}

// New constructs a Service and starts its executor goroutine.
func New(g *graph.Graph, c *cache.Cache, persist *persistence.Orchestrator, auditLog *audit.Writer, dlqQueue *dlq.Queue, logger telemetry.Logger, opts ...executor.Option) *Service {
	s := &Service{
		graph:    g,
		cacheTier: c,
		persist:  persist,
		auditLog: auditLog,
		dlqQueue: dlqQueue,
		validate: validator.New(),
		logger:   logger,
	}

	s.exec = executor.New(s.handle, opts...)

	return s
}

// Shutdown stops the executor, draining whatever is already queued.
func (s *Service) Shutdown(ctx context.Context) error {
	return s.exec.Shutdown(ctx)
}

func (s *Service) submit(ctx context.Context, kind command.Kind, payload command.Payload, actor string) (command.Result, error) {
	if err := s.validate.Struct(payload); err != nil {
		return command.Result{}, entity.NewInvalidArgument("Command", err.Error())
	}

	env := command.NewEnvelope(ctx, kind, payload, actor)

	if err := s.exec.Submit(env); err != nil {
		return command.Result{}, err
	}

	res, err := env.Await()
	if err != nil {
		return command.Result{}, err
	}

	return res, res.Err
}

// CreatePrincipal creates a user, group, or role depending on kind
// (command.KindCreateUser/KindCreateGroup/KindCreateRole).
func (s *Service) CreatePrincipal(ctx context.Context, actor string, kind command.Kind, payload command.CreatePrincipalPayload) (*entity.Principal, error) {
	res, err := s.submit(ctx, kind, payload, actor)
	if err != nil {
		return nil, err
	}

	return res.Principal, res.Err
}

// UpdatePrincipal renames an existing principal.
func (s *Service) UpdatePrincipal(ctx context.Context, actor string, payload command.UpdatePrincipalPayload) (*entity.Principal, error) {
	res, err := s.submit(ctx, command.KindUpdatePrincipal, payload, actor)
	if err != nil {
		return nil, err
	}

	return res.Principal, res.Err
}

// DeletePrincipal deletes a principal, cascading its owned permissions and
// structural edges.
func (s *Service) DeletePrincipal(ctx context.Context, actor string, payload command.DeletePrincipalPayload) error {
	_, err := s.submit(ctx, command.KindDeletePrincipal, payload, actor)
	return err
}

// Link performs one of the Add edge commands (user↔group, user↔role,
// group↔role, group↔group) per kind.
func (s *Service) Link(ctx context.Context, actor string, kind command.Kind, payload command.LinkPayload) error {
	_, err := s.submit(ctx, kind, payload, actor)
	return err
}

// Unlink performs one of the Remove edge commands per kind.
func (s *Service) Unlink(ctx context.Context, actor string, kind command.Kind, payload command.LinkPayload) error {
	_, err := s.submit(ctx, kind, payload, actor)
	return err
}

// GrantPermission creates or updates a grant/deny permission.
func (s *Service) GrantPermission(ctx context.Context, actor string, payload command.PermissionPayload) error {
	_, err := s.submit(ctx, command.KindGrantPermission, payload, actor)
	return err
}

// RevokePermission removes a permission; a no-op if none exists.
func (s *Service) RevokePermission(ctx context.Context, actor string, payload command.PermissionPayload) error {
	_, err := s.submit(ctx, command.KindRevokePermission, payload, actor)
	return err
}

// Check resolves access for principalID against uri/verb, reading straight
// through the cache to the graph without touching the command channel
// (spec.md §4.9 query surface).
func (s *Service) Check(ctx context.Context, principalID int64, uri string, verb entity.Verb, ec evaluator.EvalContext) (*evaluator.Result, error) {
	return evaluator.Check(s.cacheTier, principalID, uri, verb, ec)
}

// GetPrincipal reads a principal through the cache.
func (s *Service) GetPrincipal(ctx context.Context, id int64) (*entity.Principal, error) {
	return s.cacheTier.Get(id)
}

// handle is the executor.Handler: it mutates the in-memory graph,
// invalidates the cache, persists the corresponding row operations, and records an
// audit entry — strictly serially, since the executor only ever calls this
// from its single goroutine (spec.md §4.1, §4.7).
func (s *Service) handle(ctx context.Context, env *command.Envelope) command.Result {
	mutation, touched, err := s.mutate(env)
	if err != nil {
		s.auditLog.Record(ctx, "command", string(env.Kind), entity.ChangeError, env.Actor, map[string]any{"correlation_id": env.CorrelationID, "error": err.Error()})
		return command.Result{Err: err}
	}

	s.cacheTier.InvalidateAll(touched...)

	if err := s.persist.Apply(ctx, mutation.plan); err != nil {
		if entity.KindOf(err) == entity.KindTerminal {
			if ops, merr := json.Marshal(mutation.plan.Ops); merr == nil {
				_ = s.dlqQueue.Enqueue(ctx, string(env.Kind), ops, entity.AttemptsOf(err), err)
			}
		}

		s.auditLog.Record(ctx, mutation.plan.EntityType, mutation.plan.EntityID, entity.ChangeError, env.Actor, map[string]any{"correlation_id": env.CorrelationID, "error": err.Error()})

		return command.Result{Err: err}
	}

	s.auditLog.Record(ctx, mutation.plan.EntityType, mutation.plan.EntityID, mutation.change, env.Actor, mutation.details(env.CorrelationID))

	return command.Result{Principal: mutation.principal}
}

type mutationOutcome struct {
	plan      normalize.Plan
	principal *entity.Principal
	change    entity.ChangeType
	payload   command.Payload
}

func (m mutationOutcome) details(correlationID string) map[string]any {
	return map[string]any{"correlation_id": correlationID, "payload": m.payload}
}

// mutate applies one command to the in-memory graph, returning the
// normalize.Plan to persist and the set of principal ids whose cache entry
// must be invalidated.
func (s *Service) mutate(env *command.Envelope) (mutationOutcome, []int64, error) {
	switch env.Kind {
	case command.KindCreateUser, command.KindCreateGroup, command.KindCreateRole:
		return s.mutateCreate(env)
	case command.KindUpdatePrincipal:
		return s.mutateUpdate(env)
	case command.KindDeletePrincipal:
		return s.mutateDelete(env)
	case command.KindAddUserToGroup, command.KindAddGroupToRole, command.KindAddGroupToGroup:
		return s.mutateLink(env)
	case command.KindRemoveUserFromGroup, command.KindRemoveGroupFromRole, command.KindRemoveGroupFromGroup:
		return s.mutateUnlink(env)
	case command.KindAddUserToRole:
		return s.mutateAssignRole(env)
	case command.KindRemoveUserFromRole:
		return s.mutateUnassignRole(env)
	case command.KindGrantPermission:
		return s.mutateGrant(env)
	case command.KindRevokePermission:
		return s.mutateRevoke(env)
	default:
		return mutationOutcome{}, nil, entity.NewUnsupported(string(env.Kind))
	}
}

func (s *Service) mutateCreate(env *command.Envelope) (mutationOutcome, []int64, error) {
	payload := env.Payload.(command.CreatePrincipalPayload)

	kind := entity.KindUser
	switch env.Kind {
	case command.KindCreateGroup:
		kind = entity.KindGroup
	case command.KindCreateRole:
		kind = entity.KindRole
	}

	id := s.graph.NextID(kind)
	p := entity.NewPrincipal(id, payload.Name, kind)
	s.graph.Insert(p)

	touched := []int64{id}

	if payload.ParentGroupID != nil {
		if err := s.graph.Link(*payload.ParentGroupID, id); err != nil {
			return mutationOutcome{}, nil, err
		}

		touched = append(touched, *payload.ParentGroupID)
	}

	plan := normalize.ForCreatePrincipal(env.Kind, id, payload)

	return mutationOutcome{plan: plan, principal: p, change: entity.ChangeCreate, payload: payload}, touched, nil
}

func (s *Service) mutateUpdate(env *command.Envelope) (mutationOutcome, []int64, error) {
	payload := env.Payload.(command.UpdatePrincipalPayload)

	p, err := s.graph.GetAny(payload.PrincipalID)
	if err != nil {
		return mutationOutcome{}, nil, err
	}

	p.Name = payload.Name
	p.UpdatedAt = time.Now().UTC()

	plan := normalize.ForUpdatePrincipal(payload)

	return mutationOutcome{plan: plan, principal: p, change: entity.ChangeUpdate, payload: payload}, []int64{p.ID}, nil
}

func (s *Service) mutateDelete(env *command.Envelope) (mutationOutcome, []int64, error) {
	payload := env.Payload.(command.DeletePrincipalPayload)

	p, err := s.graph.GetAny(payload.PrincipalID)
	if err != nil {
		return mutationOutcome{}, nil, err
	}

	touched := append([]int64{p.ID}, p.ParentIDs()...)
	touched = append(touched, p.ChildIDs()...)

	if err := s.graph.Delete(payload.PrincipalID); err != nil {
		return mutationOutcome{}, nil, err
	}

	plan := normalize.ForDeletePrincipal(payload)

	return mutationOutcome{plan: plan, change: entity.ChangeDelete, payload: payload}, touched, nil
}

func (s *Service) mutateLink(env *command.Envelope) (mutationOutcome, []int64, error) {
	payload := env.Payload.(command.LinkPayload)

	if s.graph.WouldCycle(payload.ParentID, payload.ChildID) {
		return mutationOutcome{}, nil, entity.NewConflict("Principal", "linking this pair would introduce a cycle")
	}

	if err := s.graph.Link(payload.ParentID, payload.ChildID); err != nil {
		return mutationOutcome{}, nil, err
	}

	plan := normalize.ForLink(env.Kind, payload)

	return mutationOutcome{plan: plan, change: entity.ChangeAdd, payload: payload}, []int64{payload.ParentID, payload.ChildID}, nil
}

func (s *Service) mutateUnlink(env *command.Envelope) (mutationOutcome, []int64, error) {
	payload := env.Payload.(command.LinkPayload)

	if err := s.graph.Unlink(payload.ParentID, payload.ChildID); err != nil {
		return mutationOutcome{}, nil, err
	}

	plan := normalize.ForUnlink(env.Kind, payload)

	return mutationOutcome{plan: plan, change: entity.ChangeRemove, payload: payload}, []int64{payload.ParentID, payload.ChildID}, nil
}

func (s *Service) mutateAssignRole(env *command.Envelope) (mutationOutcome, []int64, error) {
	payload := env.Payload.(command.LinkPayload)

	if err := s.graph.AssignRole(payload.ParentID, payload.ChildID); err != nil {
		return mutationOutcome{}, nil, err
	}

	plan := normalize.ForAssignRole(payload)

	return mutationOutcome{plan: plan, change: entity.ChangeAdd, payload: payload}, []int64{payload.ParentID, payload.ChildID}, nil
}

func (s *Service) mutateUnassignRole(env *command.Envelope) (mutationOutcome, []int64, error) {
	payload := env.Payload.(command.LinkPayload)

	if err := s.graph.UnassignRole(payload.ParentID, payload.ChildID); err != nil {
		return mutationOutcome{}, nil, err
	}

	plan := normalize.ForUnassignRole(payload)

	return mutationOutcome{plan: plan, change: entity.ChangeRemove, payload: payload}, []int64{payload.ParentID, payload.ChildID}, nil
}

func (s *Service) mutateGrant(env *command.Envelope) (mutationOutcome, []int64, error) {
	payload := env.Payload.(command.PermissionPayload)

	verb, ok := entity.ParseVerb(payload.Verb)
	if !ok {
		return mutationOutcome{}, nil, entity.NewInvalidArgument("Permission", "unrecognized verb "+payload.Verb)
	}

	owner, err := s.graph.GetAny(payload.PrincipalID)
	if err != nil {
		return mutationOutcome{}, nil, err
	}

	id := s.graph.NextPermissionID()
	perm := &entity.Permission{
		ID:          id,
		PrincipalID: payload.PrincipalID,
		URI:         payload.URI,
		Verb:        verb,
		Grant:       !payload.Deny,
		Deny:        payload.Deny,
		Scheme:      entity.ApiUriAuthorization,
		ResourceID:  payload.ResourceID,
	}

	stored := s.graph.UpsertPermission(owner, perm)

	plan := normalize.ForGrantPermission(stored.ID, payload)

	return mutationOutcome{plan: plan, principal: owner, change: entity.ChangeGrant, payload: payload}, []int64{payload.PrincipalID}, nil
}

func (s *Service) mutateRevoke(env *command.Envelope) (mutationOutcome, []int64, error) {
	payload := env.Payload.(command.PermissionPayload)

	verb, ok := entity.ParseVerb(payload.Verb)
	if !ok {
		return mutationOutcome{}, nil, entity.NewInvalidArgument("Permission", "unrecognized verb "+payload.Verb)
	}

	owner, err := s.graph.GetAny(payload.PrincipalID)
	if err != nil {
		return mutationOutcome{}, nil, err
	}

	s.graph.RevokePermission(owner, payload.URI, verb)

	plan := normalize.ForRevokePermission(payload)

	return mutationOutcome{plan: plan, principal: owner, change: entity.ChangeRevoke, payload: payload}, []int64{payload.PrincipalID}, nil
}
