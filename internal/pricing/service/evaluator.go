package service

import (
	"context"
	"sort"
	"strings"

	"github.com/bwmarrin/snowflake"
	pricingdomain "github.com/smallbiznis/pricebook/internal/pricing/domain"
	pricingruledomain "github.com/smallbiznis/pricebook/internal/pricingrule/domain"
	ruleusagedomain "github.com/smallbiznis/pricebook/internal/ruleusage/domain"
	"go.uber.org/zap"
)

// UsageReader is the part of the rule usage counter the evaluator needs.
type UsageReader interface {
	Get(ctx context.Context, key ruleusagedomain.Key) (int64, error)
}

// Evaluator decides whether a rule's conditions hold. Conditions sharing a
// group id are AND-ed, groups are OR-ed, and no conditions means pass.
type Evaluator struct {
	usage UsageReader
	log   *zap.Logger
}

func NewEvaluator(usage UsageReader, log *zap.Logger) *Evaluator {
	return &Evaluator{usage: usage, log: log}
}

func (e *Evaluator) Evaluate(ctx context.Context, rule *pricingruledomain.Rule, evalCtx pricingdomain.EvalContext) (bool, error) {
	_, ok, err := e.Match(ctx, rule, evalCtx)
	return ok, err
}

// Match returns the first group that holds, lowest group id first. A rule
// without conditions matches with group 0.
func (e *Evaluator) Match(ctx context.Context, rule *pricingruledomain.Rule, evalCtx pricingdomain.EvalContext) (int32, bool, error) {
	if rule == nil {
		return 0, false, nil
	}
	if len(rule.Conditions) == 0 {
		return 0, true, nil
	}

	groups := make(map[int32][]*pricingruledomain.Condition)
	order := make([]int32, 0)
	for _, cond := range rule.Conditions {
		if cond == nil {
			continue
		}
		if _, ok := groups[cond.GroupID]; !ok {
			order = append(order, cond.GroupID)
		}
		groups[cond.GroupID] = append(groups[cond.GroupID], cond)
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	for _, groupID := range order {
		passed, err := e.evaluateGroup(ctx, rule, groups[groupID], evalCtx)
		if err != nil {
			return 0, false, err
		}
		if passed {
			return groupID, true, nil
		}
	}
	return 0, false, nil
}

func (e *Evaluator) evaluateGroup(ctx context.Context, rule *pricingruledomain.Rule, conds []*pricingruledomain.Condition, evalCtx pricingdomain.EvalContext) (bool, error) {
	for _, cond := range conds {
		ok, err := e.evaluateCondition(ctx, rule, cond, evalCtx)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func (e *Evaluator) evaluateCondition(ctx context.Context, rule *pricingruledomain.Rule, cond *pricingruledomain.Condition, evalCtx pricingdomain.EvalContext) (bool, error) {
	if !cond.ConditionType.Known() {
		e.log.Warn("unknown condition type treated as pass",
			zap.String("rule_id", rule.ID.String()),
			zap.String("condition_id", cond.ID.String()),
			zap.String("condition_type", string(cond.ConditionType)),
		)
		return true, nil
	}

	payload, err := cond.Payload()
	if err != nil {
		e.log.Warn("malformed condition treated as fail",
			zap.String("rule_id", rule.ID.String()),
			zap.String("condition_id", cond.ID.String()),
			zap.String("condition_type", string(cond.ConditionType)),
			zap.Error(err),
		)
		return false, nil
	}

	switch p := payload.(type) {
	case pricingruledomain.IDSetPayload:
		subject := evalCtx.OrgID
		if p.Kind == pricingruledomain.ConditionPricebookItem {
			subject = evalCtx.ItemID
		}
		return matchMembership(cond.Operator, containsID(p.Members(), subject)), nil

	case pricingruledomain.MinQuantityPayload:
		if cond.Operator == pricingruledomain.OpEq {
			return evalCtx.Quantity == p.Quantity, nil
		}
		return evalCtx.Quantity >= p.Quantity, nil

	case pricingruledomain.DateRangePayload:
		if p.Start != nil && evalCtx.At.Before(*p.Start) {
			return false, nil
		}
		if p.End != nil && evalCtx.At.After(*p.End) {
			return false, nil
		}
		return true, nil

	case pricingruledomain.SegmentPayload:
		segment := strings.TrimSpace(evalCtx.Segment)
		found := false
		if segment != "" {
			for _, member := range p.Members() {
				if strings.EqualFold(member, segment) {
					found = true
					break
				}
			}
		}
		return matchMembership(cond.Operator, found), nil

	case pricingruledomain.MaxUsesPayload:
		count, err := e.usage.Get(ctx, usageKey(rule.ID, p.Scope, evalCtx.OrgID, evalCtx.ItemID))
		if err != nil {
			return false, err
		}
		return count < p.Limit, nil
	}

	return true, nil
}

func matchMembership(op pricingruledomain.Operator, found bool) bool {
	switch op {
	case pricingruledomain.OpNotIn, pricingruledomain.OpNeq:
		return !found
	default:
		return found
	}
}

func containsID(ids []snowflake.ID, target snowflake.ID) bool {
	for _, id := range ids {
		if id == target {
			return true
		}
	}
	return false
}

// usageKey maps a max_uses scope onto a counter key.
func usageKey(ruleID snowflake.ID, scope pricingruledomain.UsageScope, orgID, itemID snowflake.ID) ruleusagedomain.Key {
	key := ruleusagedomain.Key{RuleID: ruleID}
	switch scope {
	case pricingruledomain.UsageScopePerOrg:
		key.OrgID = orgID
	case pricingruledomain.UsageScopePerItem:
		key.ItemID = itemID
	case pricingruledomain.UsageScopePerOrgItem:
		key.OrgID = orgID
		key.ItemID = itemID
	}
	return key
}
