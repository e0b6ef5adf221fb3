// Package domain contains persistence models for usage events.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	pricingdomain "github.com/smallbiznis/pricebook/internal/pricing/domain"
	"gorm.io/datatypes"
)

// UsageEvent records that quantity units of a billable code occurred for an
// organization. Rows are never updated.
type UsageEvent struct {
	ID             snowflake.ID   `json:"id" gorm:"primaryKey"`
	OrganizationID snowflake.ID   `json:"organization_id" gorm:"not null;index:idx_usage_events_org_effective,priority:1;uniqueIndex:ux_usage_events_org_idempotency,priority:1"`
	Code           string         `json:"code" gorm:"type:varchar(128);not null"`
	Quantity       int64          `json:"quantity" gorm:"not null"`
	EffectiveAt    time.Time      `json:"effective_at" gorm:"not null;index:idx_usage_events_org_effective,priority:2"`
	RelatedIDs     datatypes.JSON `json:"related_ids,omitempty"`
	IdempotencyKey *string        `json:"idempotency_key,omitempty" gorm:"type:varchar(255);uniqueIndex:ux_usage_events_org_idempotency,priority:2"`
	CreatedAt      time.Time      `json:"created_at" gorm:"not null"`
}

// TableName sets the database table name.
func (UsageEvent) TableName() string { return "usage_events" }

// CodeQuantity is the summed quantity of one code over a period.
type CodeQuantity struct {
	Code     string
	Quantity int64
}

// UsageSummaryItem is one priced line of a summary.
type UsageSummaryItem struct {
	Code                string           `json:"code"`
	PricebookItemID     snowflake.ID     `json:"pricebook_item_id"`
	Name                string           `json:"name"`
	Quantity            int64            `json:"quantity"`
	BaseUnitPriceCents  int64            `json:"base_unit_price_cents"`
	FinalUnitPriceCents int64            `json:"final_unit_price_cents"`
	DiscountPercent     *decimal.Decimal `json:"discount_percent,omitempty"`
	DiscountAmountCents *int64           `json:"discount_amount_cents,omitempty"`
	AppliedRuleID       *snowflake.ID    `json:"applied_rule_id,omitempty"`
	TotalCents          int64            `json:"total_cents"`

	Price *pricingdomain.PriceResult `json:"-"`
}

// NewSummaryItem snapshots a price result.
func NewSummaryItem(price *pricingdomain.PriceResult) UsageSummaryItem {
	return UsageSummaryItem{
		Code:                price.Code,
		PricebookItemID:     price.PricebookItemID,
		Name:                price.Name,
		Quantity:            price.Quantity,
		BaseUnitPriceCents:  price.BaseUnitPriceCents,
		FinalUnitPriceCents: price.FinalUnitPriceCents,
		DiscountPercent:     price.DiscountPercent,
		DiscountAmountCents: price.DiscountAmountCents,
		AppliedRuleID:       price.AppliedRuleID,
		TotalCents:          price.TotalCents(),
		Price:               price,
	}
}

type UsageSummary struct {
	OrganizationID snowflake.ID       `json:"organization_id"`
	PeriodStart    time.Time          `json:"period_start"`
	PeriodEnd      time.Time          `json:"period_end"`
	Items          []UsageSummaryItem `json:"items"`
	TotalCents     int64              `json:"total_cents"`
}
