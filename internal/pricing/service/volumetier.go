package service

import "github.com/smallbiznis/pricebook/internal/config"

const baseTierLabel = "base"

// VolumeTierPrice picks the unit price for a total count from tiers ordered by
// descending threshold. Thresholds are inclusive lower bounds.
func VolumeTierPrice(pricing config.MailboxPricing, total int64) (int64, string) {
	for _, tier := range pricing.Tiers {
		if total >= tier.MinQuantity {
			return tier.UnitPriceCents, tier.Label
		}
	}
	return pricing.BaseUnitPriceCents, baseTierLabel
}
