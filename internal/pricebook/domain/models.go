package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type BillingStrategy string

const (
	PerEvent         BillingStrategy = "per_event"
	MonthlyRecurring BillingStrategy = "monthly_recurring"
	AnnualRecurring  BillingStrategy = "annual_recurring"
	OneTime          BillingStrategy = "one_time"
)

func (s BillingStrategy) Valid() bool {
	switch s {
	case PerEvent, MonthlyRecurring, AnnualRecurring, OneTime:
		return true
	default:
		return false
	}
}

// Item is a billable catalog entry. Invoice items snapshot its price, so
// edits only affect future charges.
type Item struct {
	ID                  snowflake.ID      `json:"id" gorm:"primaryKey"`
	Code                string            `json:"code" gorm:"type:text;not null;uniqueIndex"`
	Name                string            `json:"name" gorm:"type:text;not null"`
	Description         string            `json:"description,omitempty" gorm:"type:text"`
	BaseUnitPriceCents  int64             `json:"base_unit_price_cents" gorm:"not null"`
	BillingStrategy     BillingStrategy   `json:"billing_strategy" gorm:"type:text;not null"`
	BillingPeriodMonths *int32            `json:"billing_period_months,omitempty"`
	Metadata            datatypes.JSONMap `json:"metadata,omitempty"`
	Active              bool              `json:"active" gorm:"not null;default:true"`
	CreatedAt           time.Time         `json:"created_at" gorm:"not null"`
	UpdatedAt           time.Time         `json:"updated_at" gorm:"not null"`
}

func (Item) TableName() string { return "pricebook_items" }
