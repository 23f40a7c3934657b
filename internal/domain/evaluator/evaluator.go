// Package evaluator implements the Permission Evaluator (C8): a pure
// function set that decides whether a principal may perform a verb against
// a URI, given a snapshot of the graph (C1) or cache (C2). It never touches
// the executor, persistence, or audit components (spec.md §4.8).
package evaluator

import (
	"fmt"
	"strings"
	"time"

	"github.com/access-control/acs-core/internal/domain/entity"
)

// Source is the narrow read port the evaluator needs — satisfied by both
// *graph.Graph and *cache.Cache.
type Source interface {
	GetAny(id int64) (*entity.Principal, error)
}

// Result is the full evaluation record returned to callers, carrying every
// field spec.md §4.8 requires for a caller to both act on the decision and
// explain it.
type Result struct {
	HasAccess            bool
	HasPermission        bool
	Reason               string
	GrantingPermissions  []*entity.Permission
	InheritanceChain     []int64
	ConditionResults     []ConditionResult
	EvaluationSteps      []string
	Elapsed              time.Duration
}

type candidate struct {
	principal *entity.Principal
	perm      *entity.Permission
	pattern   *CompiledPattern
}

// Check resolves access for principalID against uri/verb under the
// ApiUriAuthorization scheme, walking the full inheritance chain and
// applying deny-dominates-grant resolution (spec.md §4.8, §8 scenarios
// 1-6).
func Check(source Source, principalID int64, uri string, verb entity.Verb, ec EvalContext) (*Result, error) {
	start := time.Now()

	var steps []string

	principal, err := source.GetAny(principalID)
	if err != nil {
		return nil, err
	}

	chain, err := AncestorChain(source, principalID)
	if err != nil {
		return nil, err
	}

	chainIDs := make([]int64, 0, len(chain))
	for _, p := range chain {
		chainIDs = append(chainIDs, p.ID)
	}

	steps = append(steps, fmt.Sprintf("inheritance chain for %s(%d): %v", principal.Kind, principal.ID, chainIDs))

	candidates := matchingPermissions(chain, uri, verb)

	steps = append(steps, fmt.Sprintf("%d matching permission(s) for %s %s", len(candidates), verb, uri))

	var denies, grants []candidate

	for _, c := range candidates {
		if c.perm.Deny {
			denies = append(denies, c)
		} else if c.perm.Grant {
			grants = append(grants, c)
		}
	}

	if len(denies) == 0 && len(grants) == 0 {
		return &Result{
			HasAccess:        false,
			HasPermission:    false,
			Reason:           "no permission matches " + verb.String() + " " + uri,
			InheritanceChain: chainIDs,
			EvaluationSteps:  steps,
			Elapsed:          time.Since(start),
		}, nil
	}

	if len(denies) > 0 {
		winner := mostSpecific(denies, uri)
		steps = append(steps, fmt.Sprintf("explicit deny wins: principal %d permission %d (%s)", winner.principal.ID, winner.perm.ID, winner.pattern.Source))

		return &Result{
			HasAccess:           false,
			HasPermission:       true,
			Reason:              fmt.Sprintf("denied by %s's permission on %s", winner.principal.Kind, winner.perm.URI),
			GrantingPermissions: []*entity.Permission{winner.perm},
			InheritanceChain:    chainIDs,
			EvaluationSteps:     steps,
			Elapsed:             time.Since(start),
		}, nil
	}

	winner := mostSpecific(grants, uri)
	steps = append(steps, fmt.Sprintf("best grant: principal %d permission %d (%s)", winner.principal.ID, winner.perm.ID, winner.pattern.Source))

	condResults := EvaluateConditions(winner.perm.Conditions, ec)

	allSatisfied := true

	for _, cr := range condResults {
		if !cr.Satisfied {
			allSatisfied = false
			steps = append(steps, "condition failed: "+cr.Explanation)
		}
	}

	if !allSatisfied {
		return &Result{
			HasAccess:           false,
			HasPermission:       true,
			Reason:              "granted by " + winner.perm.URI + " but a condition was not satisfied",
			GrantingPermissions: []*entity.Permission{winner.perm},
			InheritanceChain:    chainIDs,
			ConditionResults:    condResults,
			EvaluationSteps:     steps,
			Elapsed:             time.Since(start),
		}, nil
	}

	return &Result{
		HasAccess:           true,
		HasPermission:       true,
		Reason:              fmt.Sprintf("granted by %s's permission on %s", winner.principal.Kind, winner.perm.URI),
		GrantingPermissions: []*entity.Permission{winner.perm},
		InheritanceChain:    chainIDs,
		ConditionResults:    condResults,
		EvaluationSteps:     steps,
		Elapsed:             time.Since(start),
	}, nil
}

// matchingPermissions scans every principal in chain for a permission whose
// scheme is ApiUriAuthorization or unset, whose verb matches (ALL included), and
// whose URI pattern matches uri.
func matchingPermissions(chain []*entity.Principal, uri string, verb entity.Verb) []candidate {
	var out []candidate

	for _, p := range chain {
		for _, perm := range p.Permissions {
			if perm.Scheme != entity.ApiUriAuthorization && perm.Scheme != "" {
				continue
			}

			if !perm.Verb.Matches(verb) {
				continue
			}

			pattern, err := Compile(perm.URI)
			if err != nil {
				continue
			}

			if _, ok := pattern.Match(uri); !ok {
				continue
			}

			out = append(out, candidate{principal: p, perm: perm, pattern: pattern})
		}
	}

	return out
}

// mostSpecific returns the candidate whose pattern ranks most specific
// against uri, per MoreSpecific's ordering.
func mostSpecific(cands []candidate, uri string) candidate {
	best := cands[0]

	for _, c := range cands[1:] {
		if MoreSpecific(c.pattern, best.pattern, uri) {
			best = c
		}
	}

	return best
}

// AncestorChain walks the structural tree and direct-role assignments to
// produce the full set of principals whose permissions apply to
// principalID, in breadth-first discovery order starting with the principal
// itself: a User's directly assigned roles, then its groups and their
// ancestor groups, each visited Group adding the roles attached to it.
// Roles are terminal: the walk never continues past a Role, so a Role's
// chain is the Role alone (spec.md §4.8, §9 Principal model).
func AncestorChain(source Source, principalID int64) ([]*entity.Principal, error) {
	start, err := source.GetAny(principalID)
	if err != nil {
		return nil, err
	}

	visited := map[int64]struct{}{}
	chain := []*entity.Principal{}
	queue := []int64{start.ID}

	enqueue := func(ids map[int64]struct{}) {
		for id := range ids {
			if _, ok := visited[id]; !ok {
				queue = append(queue, id)
			}
		}
	}

	if start.Kind == entity.KindUser {
		enqueue(start.DirectRoles)
	}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		if _, ok := visited[id]; ok {
			continue
		}

		p, err := source.GetAny(id)
		if err != nil {
			continue
		}

		visited[id] = struct{}{}
		chain = append(chain, p)

		if p.Kind == entity.KindRole {
			continue
		}

		enqueue(p.Parents)

		if p.Kind == entity.KindGroup {
			for childID := range p.Children {
				if _, ok := visited[childID]; ok {
					continue
				}

				child, err := source.GetAny(childID)
				if err != nil || child.Kind != entity.KindRole {
					continue
				}

				queue = append(queue, childID)
			}
		}
	}

	return chain, nil
}

// Explain renders a Result's evaluation_steps as a single human-readable
// trace, used by CLI/debug surfaces rather than the structured fields.
func (r *Result) Explain() string {
	return strings.Join(r.EvaluationSteps, "\n")
}
