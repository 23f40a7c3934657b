package evaluator

import (
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/access-control/acs-core/internal/domain/entity"
)

// EvalContext carries the ambient facts condition predicates read — the
// current time and the caller's source IP and role context, per spec.md
// §4.8 "Complex evaluation".
type EvalContext struct {
	Now        time.Time
	SourceIP   string
	RoleIDs    map[int64]struct{}
	ExtraFacts map[string]string
}

// ConditionResult records the outcome of one predicate for the evaluation
// trace returned to callers (spec.md §4.8 output fields).
type ConditionResult struct {
	Condition   entity.Condition
	Satisfied   bool
	Explanation string
}

// EvaluateConditions runs every condition and returns the full set of
// results; the demotion to DENIED when any fails is decided by the caller
// (evaluator.go) so the trace always carries every predicate's outcome.
func EvaluateConditions(conds []entity.Condition, ec EvalContext) []ConditionResult {
	results := make([]ConditionResult, 0, len(conds))

	for _, c := range conds {
		results = append(results, evaluateOne(c, ec))
	}

	return results
}

func evaluateOne(c entity.Condition, ec EvalContext) ConditionResult {
	switch c.Kind {
	case entity.ConditionTimeOfDay:
		return evalTimeOfDay(c, ec)
	case entity.ConditionDayOfWeek:
		return evalDayOfWeek(c, ec)
	case entity.ConditionIPCIDR:
		return evalIPCIDR(c, ec)
	case entity.ConditionRoleInContext:
		return evalRoleInContext(c, ec)
	default:
		return evalCustom(c, ec)
	}
}

// evalTimeOfDay supports "hour >= N" / "hour < N" style operators against
// ec.Now's UTC hour, matching scenario 6 in spec.md §8.
func evalTimeOfDay(c entity.Condition, ec EvalContext) ConditionResult {
	hour := ec.Now.UTC().Hour()

	bound, err := strconv.Atoi(c.Value)
	if err != nil {
		return ConditionResult{Condition: c, Satisfied: false, Explanation: "invalid hour bound " + c.Value}
	}

	var ok bool

	switch c.Operator {
	case ">=":
		ok = hour >= bound
	case ">":
		ok = hour > bound
	case "<=":
		ok = hour <= bound
	case "<":
		ok = hour < bound
	case "==":
		ok = hour == bound
	default:
		ok = false
	}

	explanation := "current hour " + strconv.Itoa(hour) + " " + c.Operator + " " + c.Value
	if !ok {
		explanation = "time-of-day condition failed: " + explanation
	}

	return ConditionResult{Condition: c, Satisfied: ok, Explanation: explanation}
}

func evalDayOfWeek(c entity.Condition, ec EvalContext) ConditionResult {
	today := strings.ToLower(ec.Now.UTC().Weekday().String())
	allowed := strings.Split(strings.ToLower(c.Value), ",")

	ok := false

	for _, d := range allowed {
		if strings.TrimSpace(d) == today {
			ok = true
			break
		}
	}

	explanation := "day " + today + " in " + c.Value
	if !ok {
		explanation = "day-of-week condition failed: " + explanation
	}

	return ConditionResult{Condition: c, Satisfied: ok, Explanation: explanation}
}

func evalIPCIDR(c entity.Condition, ec EvalContext) ConditionResult {
	_, ipNet, err := net.ParseCIDR(c.Value)
	if err != nil {
		return ConditionResult{Condition: c, Satisfied: false, Explanation: "invalid CIDR " + c.Value}
	}

	ip := net.ParseIP(ec.SourceIP)
	ok := ip != nil && ipNet.Contains(ip)

	explanation := ec.SourceIP + " within " + c.Value
	if !ok {
		explanation = "IP CIDR condition failed: " + explanation
	}

	return ConditionResult{Condition: c, Satisfied: ok, Explanation: explanation}
}

func evalRoleInContext(c entity.Condition, ec EvalContext) ConditionResult {
	roleID, err := strconv.ParseInt(c.Value, 10, 64)
	if err != nil {
		return ConditionResult{Condition: c, Satisfied: false, Explanation: "invalid role id " + c.Value}
	}

	_, ok := ec.RoleIDs[roleID]

	explanation := "role " + c.Value + " present in context"
	if !ok {
		explanation = "role-in-context condition failed: role " + c.Value + " not active"
	}

	return ConditionResult{Condition: c, Satisfied: ok, Explanation: explanation}
}

// evalCustom evaluates a generic key/operator/value tuple against
// ec.ExtraFacts, supporting "==" and "!=" only — anything richer belongs to
// a dedicated condition kind rather than the catch-all.
func evalCustom(c entity.Condition, ec EvalContext) ConditionResult {
	actual, present := ec.ExtraFacts[c.Key]

	var ok bool

	switch c.Operator {
	case "==":
		ok = present && actual == c.Value
	case "!=":
		ok = !present || actual != c.Value
	default:
		ok = false
	}

	explanation := c.Key + " " + c.Operator + " " + c.Value
	if !ok {
		explanation = "custom condition failed: " + explanation
	}

	return ConditionResult{Condition: c, Satisfied: ok, Explanation: explanation}
}
