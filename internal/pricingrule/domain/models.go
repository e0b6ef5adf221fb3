package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type ScopeType string

const (
	ScopeGlobal       ScopeType = "global"
	ScopeOrganization ScopeType = "organization"
	ScopeItem         ScopeType = "item"
)

type RuleType string

const (
	PercentDiscount RuleType = "percent_discount"
	FixedDiscount   RuleType = "fixed_discount"
	OverridePrice   RuleType = "override_price"
)

// Rule is a discount or override. Value is a percent (0-100) for
// percent_discount and whole cents otherwise.
type Rule struct {
	ID              snowflake.ID    `json:"id" gorm:"primaryKey"`
	Name            string          `json:"name" gorm:"type:text;not null"`
	Description     string          `json:"description,omitempty" gorm:"type:text"`
	ScopeType       ScopeType       `json:"scope_type" gorm:"type:text;not null;index"`
	OrganizationID  *snowflake.ID   `json:"organization_id,omitempty" gorm:"index"`
	PricebookItemID *snowflake.ID   `json:"pricebook_item_id,omitempty" gorm:"index"`
	RuleType        RuleType        `json:"rule_type" gorm:"type:text;not null"`
	Value           decimal.Decimal `json:"value" gorm:"type:float;precision:20;scale:4;not null"`
	Priority        int32           `json:"priority" gorm:"not null;default:0"`
	ActiveFrom      time.Time       `json:"active_from" gorm:"not null"`
	ActiveTo        *time.Time      `json:"active_to,omitempty"`
	CreatedAt       time.Time       `json:"created_at" gorm:"not null"`
	UpdatedAt       time.Time       `json:"updated_at" gorm:"not null"`

	Conditions []*Condition `json:"conditions" gorm:"-"`
}

func (Rule) TableName() string { return "pricing_rules" }

// ActiveAt reports whether at falls in [ActiveFrom, ActiveTo).
func (r *Rule) ActiveAt(at time.Time) bool {
	if at.Before(r.ActiveFrom) {
		return false
	}
	return r.ActiveTo == nil || at.Before(*r.ActiveTo)
}

// MaxUses returns the first max_uses payload in the given condition group.
func (r *Rule) MaxUses(groupID int32) (*MaxUsesPayload, bool) {
	for _, cond := range r.Conditions {
		if cond.ConditionType != ConditionMaxUses || cond.GroupID != groupID {
			continue
		}
		payload, err := cond.Payload()
		if err != nil {
			continue
		}
		if maxUses, ok := payload.(MaxUsesPayload); ok {
			return &maxUses, true
		}
	}
	return nil, false
}

// Condition belongs to one rule. Conditions sharing GroupID are AND-ed,
// groups are OR-ed.
type Condition struct {
	ID            snowflake.ID   `json:"id" gorm:"primaryKey"`
	RuleID        snowflake.ID   `json:"rule_id" gorm:"not null;index"`
	ConditionType ConditionType  `json:"condition_type" gorm:"type:text;not null"`
	Operator      Operator       `json:"operator" gorm:"type:text;not null"`
	Value         datatypes.JSON `json:"value"`
	GroupID       int32          `json:"group_id" gorm:"not null;default:0"`
	CreatedAt     time.Time      `json:"created_at" gorm:"not null"`
}

func (Condition) TableName() string { return "pricing_rule_conditions" }

// Payload decodes Value into the typed payload for ConditionType.
func (c *Condition) Payload() (Payload, error) {
	return DecodePayload(c.ConditionType, c.Operator, c.Value)
}
