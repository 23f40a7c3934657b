// Package persistence implements the orchestration half of the Persistence
// Adapter (C3): it takes a normalize.Plan and applies its row operations
// inside one transaction, through the retry/circuit-breaker policy (C6).
// The repository implementations that actually talk to Postgres live in
// internal/adapters/postgres; this package only depends on the narrow
// TxRunner port so it can be unit-tested against a fake.
package persistence

import (
	"context"

	"github.com/access-control/acs-core/internal/domain/entity"
	"github.com/access-control/acs-core/internal/domain/normalize"
	"github.com/access-control/acs-core/internal/domain/retry"
)

// TxRunner executes a batch of row operations atomically. Implemented by
// internal/adapters/postgres.Store, mirroring the teacher's
// PostgreSQLRepository split between model and repository.
//
//go:generate mockgen --destination=txrunner_mock.go --package=persistence . TxRunner
type TxRunner interface {
	Apply(ctx context.Context, ops []normalize.RowOp) error
}

// Orchestrator applies normalized plans under the retry/circuit-breaker
// policy, labeling every attempt "database" for C6's per-operation
// breakers.
type Orchestrator struct {
	store   TxRunner
	breaker *retry.Breaker
	policy  retry.Config
}

// New constructs an Orchestrator over store with the default retry policy.
func New(store TxRunner) *Orchestrator {
	return &Orchestrator{
		store:   store,
		breaker: retry.NewBreaker("database"),
		policy:  retry.Default(),
	}
}

// Apply persists plan.Ops atomically, retrying transient failures and
// promoting exhausted retries to a terminal error that the caller (the
// executor's handler) routes to the dead-letter queue (spec.md §4.3, §4.5,
// §4.6).
func (o *Orchestrator) Apply(ctx context.Context, plan normalize.Plan) error {
	if len(plan.Ops) == 0 {
		return nil
	}

	err := o.breaker.Do(ctx, o.policy, plan.EntityType, func() error {
		return o.store.Apply(ctx, plan.Ops)
	})
	if err == nil {
		return nil
	}

	if entity.KindOf(err) == entity.KindTerminal {
		return err
	}

	return entity.NewTransient(plan.EntityType, err)
}
