package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	pricingdomain "github.com/smallbiznis/pricebook/internal/pricing/domain"
	pricingruledomain "github.com/smallbiznis/pricebook/internal/pricingrule/domain"
	ruleusagedomain "github.com/smallbiznis/pricebook/internal/ruleusage/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type usageStub struct {
	counts map[string]int64
	err    error
}

func (u *usageStub) Get(_ context.Context, key ruleusagedomain.Key) (int64, error) {
	if u.err != nil {
		return 0, u.err
	}
	return u.counts[fmt.Sprintf("%d/%s", key.RuleID, key.ScopeKey())], nil
}

func cond(condType pricingruledomain.ConditionType, op pricingruledomain.Operator, value string, group int32) *pricingruledomain.Condition {
	return &pricingruledomain.Condition{
		ConditionType: condType,
		Operator:      op,
		Value:         []byte(value),
		GroupID:       group,
	}
}

func ruleWith(conds ...*pricingruledomain.Condition) *pricingruledomain.Rule {
	return &pricingruledomain.Rule{ID: 77, Conditions: conds}
}

func TestEvaluateGroupsTruthTable(t *testing.T) {
	// (A ∧ B) ∨ C
	rule := ruleWith(
		cond(pricingruledomain.ConditionOrganization, pricingruledomain.OpIn, `{"ids":["100"]}`, 1),
		cond(pricingruledomain.ConditionMinQuantity, pricingruledomain.OpGte, `{"quantity":5}`, 1),
		cond(pricingruledomain.ConditionOrgSegment, pricingruledomain.OpIn, `{"segments":["enterprise"]}`, 2),
	)
	eval := NewEvaluator(&usageStub{}, zap.NewNop())

	for _, a := range []bool{false, true} {
		for _, b := range []bool{false, true} {
			for _, c := range []bool{false, true} {
				evalCtx := pricingdomain.EvalContext{OrgID: 200, Quantity: 1, Segment: "smb", At: time.Now()}
				if a {
					evalCtx.OrgID = 100
				}
				if b {
					evalCtx.Quantity = 5
				}
				if c {
					evalCtx.Segment = "Enterprise"
				}

				got, err := eval.Evaluate(context.Background(), rule, evalCtx)
				require.NoError(t, err)
				assert.Equal(t, (a && b) || c, got, "A=%v B=%v C=%v", a, b, c)
			}
		}
	}
}

func TestEvaluateNoConditionsPasses(t *testing.T) {
	eval := NewEvaluator(&usageStub{}, zap.NewNop())
	ok, err := eval.Evaluate(context.Background(), ruleWith(), pricingdomain.EvalContext{})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEvaluateConditionTypes(t *testing.T) {
	at := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	base := pricingdomain.EvalContext{OrgID: 10, ItemID: 20, Quantity: 5, Segment: "smb", At: at}

	cases := []struct {
		name string
		cond *pricingruledomain.Condition
		want bool
	}{
		{"org not_in", cond(pricingruledomain.ConditionOrganization, pricingruledomain.OpNotIn, `{"ids":["10"]}`, 0), false},
		{"org eq", cond(pricingruledomain.ConditionOrganization, pricingruledomain.OpEq, `{"id":"10"}`, 0), true},
		{"org neq", cond(pricingruledomain.ConditionOrganization, pricingruledomain.OpNeq, `{"id":"10"}`, 0), false},
		{"item in", cond(pricingruledomain.ConditionPricebookItem, pricingruledomain.OpIn, `{"ids":["20","21"]}`, 0), true},
		{"item not_in", cond(pricingruledomain.ConditionPricebookItem, pricingruledomain.OpNotIn, `{"ids":["21"]}`, 0), true},
		{"quantity default gte", cond(pricingruledomain.ConditionMinQuantity, "", `{"quantity":5}`, 0), true},
		{"quantity gte above", cond(pricingruledomain.ConditionMinQuantity, pricingruledomain.OpGte, `{"quantity":6}`, 0), false},
		{"quantity eq", cond(pricingruledomain.ConditionMinQuantity, pricingruledomain.OpEq, `{"quantity":4}`, 0), false},
		{"date inclusive start", cond(pricingruledomain.ConditionDateRange, pricingruledomain.OpBetween, `{"start":"2026-03-15T00:00:00Z"}`, 0), true},
		{"date inclusive end", cond(pricingruledomain.ConditionDateRange, "", `{"end":"2026-03-15T00:00:00Z"}`, 0), true},
		{"date outside", cond(pricingruledomain.ConditionDateRange, "", `{"start":"2026-04-01T00:00:00Z","end":"2026-04-30T00:00:00Z"}`, 0), false},
		{"segment neq", cond(pricingruledomain.ConditionOrgSegment, pricingruledomain.OpNeq, `{"segment":"smb"}`, 0), false},
		{"segment not_in", cond(pricingruledomain.ConditionOrgSegment, pricingruledomain.OpNotIn, `{"segments":["enterprise"]}`, 0), true},
		{"unknown type fails open", cond("loyalty_tier", pricingruledomain.OpEq, `{"tier":"gold"}`, 0), true},
		{"malformed payload fails closed", cond(pricingruledomain.ConditionMinQuantity, pricingruledomain.OpGte, `{"quantity":"five"}`, 0), false},
		{"bad operator fails closed", cond(pricingruledomain.ConditionDateRange, pricingruledomain.OpIn, `{}`, 0), false},
	}

	eval := NewEvaluator(&usageStub{}, zap.NewNop())
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := eval.Evaluate(context.Background(), ruleWith(tc.cond), base)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestEvaluateUnknownTypeLogsWarning(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	eval := NewEvaluator(&usageStub{}, zap.New(core))

	ok, err := eval.Evaluate(context.Background(), ruleWith(cond("loyalty_tier", "", `{}`, 0)), pricingdomain.EvalContext{})
	require.NoError(t, err)
	assert.True(t, ok)
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "unknown condition type treated as pass", logs.All()[0].Message)
}

func TestEvaluateMaxUsesReadsScopedCounter(t *testing.T) {
	usage := &usageStub{counts: map[string]int64{
		"77/org:10":         3,
		"77/org:11":         2,
		"77/org:10|item:20": 1,
	}}
	eval := NewEvaluator(usage, zap.NewNop())

	perOrg := ruleWith(cond(pricingruledomain.ConditionMaxUses, "", `{"limit":3,"scope":"per_org"}`, 0))
	ok, err := eval.Evaluate(context.Background(), perOrg, pricingdomain.EvalContext{OrgID: 10, ItemID: 20})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = eval.Evaluate(context.Background(), perOrg, pricingdomain.EvalContext{OrgID: 11, ItemID: 20})
	require.NoError(t, err)
	assert.True(t, ok)

	perOrgItem := ruleWith(cond(pricingruledomain.ConditionMaxUses, pricingruledomain.OpLte, `{"limit":2,"scope":"per_org_item"}`, 0))
	ok, err = eval.Evaluate(context.Background(), perOrgItem, pricingdomain.EvalContext{OrgID: 10, ItemID: 20})
	require.NoError(t, err)
	assert.True(t, ok)

	global := ruleWith(cond(pricingruledomain.ConditionMaxUses, "", `{"limit":1}`, 0))
	ok, err = eval.Evaluate(context.Background(), global, pricingdomain.EvalContext{OrgID: 10})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEvaluateCounterFailurePropagates(t *testing.T) {
	boom := errors.New("db down")
	eval := NewEvaluator(&usageStub{err: boom}, zap.NewNop())
	rule := ruleWith(cond(pricingruledomain.ConditionMaxUses, "", `{"limit":1}`, 0))

	_, err := eval.Evaluate(context.Background(), rule, pricingdomain.EvalContext{OrgID: snowflake.ID(1)})
	assert.ErrorIs(t, err, boom)
}
