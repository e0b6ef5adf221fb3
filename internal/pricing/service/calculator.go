package service

import (
	"github.com/shopspring/decimal"
	pricingdomain "github.com/smallbiznis/pricebook/internal/pricing/domain"
	pricingruledomain "github.com/smallbiznis/pricebook/internal/pricingrule/domain"
)

var hundred = decimal.NewFromInt(100)

// ApplyRule sets the final price and discount fields of result from its base
// price and rule. A nil rule leaves the base price untouched.
func ApplyRule(result *pricingdomain.PriceResult, rule *pricingruledomain.Rule) {
	base := result.BaseUnitPriceCents

	result.FinalUnitPriceCents = base
	result.DiscountPercent = nil
	result.DiscountAmountCents = nil
	result.AppliedRuleID = nil
	result.AppliedRuleType = ""
	if rule == nil {
		return
	}

	var final, discount int64
	switch rule.RuleType {
	case pricingruledomain.PercentDiscount:
		// Round rounds half away from zero.
		discount = decimal.NewFromInt(base).Mul(rule.Value).Div(hundred).Round(0).IntPart()
		final = base - discount
		percent := rule.Value
		result.DiscountPercent = &percent

	case pricingruledomain.FixedDiscount:
		discount = rule.Value.IntPart()
		final = base - discount
		if final < 0 {
			final = 0
		}

	case pricingruledomain.OverridePrice:
		final = rule.Value.IntPart()
		discount = base - final

	default:
		return
	}

	ruleID := rule.ID
	result.FinalUnitPriceCents = final
	result.DiscountAmountCents = &discount
	result.AppliedRuleID = &ruleID
	result.AppliedRuleType = rule.RuleType
}
