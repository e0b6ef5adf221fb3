package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	pricingruledomain "github.com/smallbiznis/pricebook/internal/pricingrule/domain"
)

// OrgSegment tags an organization for org_segment conditions.
type OrgSegment struct {
	OrganizationID snowflake.ID `json:"organization_id" gorm:"primaryKey;autoIncrement:false"`
	Segment        string       `json:"segment" gorm:"type:varchar(64);not null"`
	UpdatedAt      time.Time    `json:"updated_at" gorm:"not null"`
}

func (OrgSegment) TableName() string { return "org_segments" }

// EvalContext is what conditions are evaluated against.
type EvalContext struct {
	OrgID    snowflake.ID
	ItemID   snowflake.ID
	Quantity int64
	Segment  string
	At       time.Time
}

// PriceResult is the unit price of one item for one organization.
// Discount fields are nil when no rule applied.
type PriceResult struct {
	PricebookItemID     snowflake.ID               `json:"pricebook_item_id"`
	Code                string                     `json:"code"`
	Name                string                     `json:"name"`
	Quantity            int64                      `json:"quantity"`
	BaseUnitPriceCents  int64                      `json:"base_unit_price_cents"`
	FinalUnitPriceCents int64                      `json:"final_unit_price_cents"`
	DiscountPercent     *decimal.Decimal           `json:"discount_percent,omitempty"`
	DiscountAmountCents *int64                     `json:"discount_amount_cents,omitempty"`
	AppliedRuleID       *snowflake.ID              `json:"applied_rule_id,omitempty"`
	AppliedRuleType     pricingruledomain.RuleType `json:"applied_rule_type,omitempty"`
	EvaluatedAt         time.Time                  `json:"evaluated_at"`

	// Candidates are the rules that passed evaluation, applied rule first.
	// Redeem falls back along this list when a rule is exhausted.
	Candidates []*pricingruledomain.Rule `json:"-"`
	// MatchedGroups maps each candidate to the condition group that passed.
	MatchedGroups map[snowflake.ID]int32 `json:"-"`
}

// TotalCents is FinalUnitPriceCents × Quantity.
func (r *PriceResult) TotalCents() int64 {
	return r.FinalUnitPriceCents * r.Quantity
}

// MailboxQuote prices new mailboxes from the volume tier table.
type MailboxQuote struct {
	ExistingCount  int64  `json:"existing_count"`
	NewCount       int64  `json:"new_count"`
	TotalCount     int64  `json:"total_count"`
	TierLabel      string `json:"tier"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	TotalCents     int64  `json:"total_cents"`
}
