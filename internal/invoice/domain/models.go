// Package domain contains persistence models for invoicing.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// InvoiceStatus represents invoice lifecycle states.
type InvoiceStatus string

const (
	InvoiceStatusDraft         InvoiceStatus = "draft"
	InvoiceStatusOpen          InvoiceStatus = "open"
	InvoiceStatusPaid          InvoiceStatus = "paid"
	InvoiceStatusVoid          InvoiceStatus = "void"
	InvoiceStatusUncollectible InvoiceStatus = "uncollectible"
)

func (s InvoiceStatus) Valid() bool {
	switch s {
	case InvoiceStatusDraft, InvoiceStatusOpen, InvoiceStatusPaid,
		InvoiceStatusVoid, InvoiceStatusUncollectible:
		return true
	}
	return false
}

// Invoice is the bill for one organization and billing period.
type Invoice struct {
	ID                snowflake.ID   `json:"id" gorm:"primaryKey"`
	OrganizationID    snowflake.ID   `json:"organization_id" gorm:"not null;index:ix_invoices_org_period,priority:1"`
	OrderID           *snowflake.ID  `json:"order_id,omitempty" gorm:"index"`
	PeriodStart       time.Time      `json:"period_start" gorm:"not null;index:ix_invoices_org_period,priority:2"`
	PeriodEnd         time.Time      `json:"period_end" gorm:"not null;index:ix_invoices_org_period,priority:3"`
	TotalCents        int64          `json:"total_cents" gorm:"not null"`
	Currency          string         `json:"currency" gorm:"type:varchar(3);not null"`
	Status            InvoiceStatus  `json:"status" gorm:"type:varchar(32);not null;index"`
	ExternalInvoiceID *string        `json:"external_invoice_id,omitempty" gorm:"type:varchar(255);uniqueIndex"`
	HostedInvoiceURL  string         `json:"hosted_invoice_url,omitempty" gorm:"type:text"`
	FinalizedAt       *time.Time     `json:"finalized_at,omitempty"`
	PaidAt            *time.Time     `json:"paid_at,omitempty"`
	VoidedAt          *time.Time     `json:"voided_at,omitempty"`
	CreatedAt         time.Time      `json:"created_at" gorm:"not null"`
	UpdatedAt         time.Time      `json:"updated_at" gorm:"not null"`
	Items             []*InvoiceItem `json:"items,omitempty" gorm:"-"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }

// InvoiceItem is a priced snapshot of one usage code. Later catalog or
// rule changes never alter it.
type InvoiceItem struct {
	ID                  snowflake.ID     `json:"id" gorm:"primaryKey"`
	InvoiceID           snowflake.ID     `json:"invoice_id" gorm:"not null;index"`
	OrganizationID      snowflake.ID     `json:"organization_id" gorm:"not null;index"`
	PricebookItemID     snowflake.ID     `json:"pricebook_item_id" gorm:"not null"`
	Code                string           `json:"code" gorm:"type:varchar(128);not null"`
	Description         string           `json:"description" gorm:"type:text"`
	Quantity            int64            `json:"quantity" gorm:"not null"`
	BaseUnitPriceCents  int64            `json:"base_unit_price_cents" gorm:"not null"`
	FinalUnitPriceCents int64            `json:"final_unit_price_cents" gorm:"not null"`
	DiscountPercent     *decimal.Decimal `json:"discount_percent,omitempty" gorm:"type:float;precision:7;scale:4"`
	DiscountAmountCents *int64           `json:"discount_amount_cents,omitempty"`
	AppliedRuleID       *snowflake.ID    `json:"applied_rule_id,omitempty" gorm:"index"`
	TotalCents          int64            `json:"total_cents" gorm:"not null"`
	PeriodStart         time.Time        `json:"period_start" gorm:"not null"`
	PeriodEnd           time.Time        `json:"period_end" gorm:"not null"`
	CreatedAt           time.Time        `json:"created_at" gorm:"not null"`
}

// TableName sets the database table name.
func (InvoiceItem) TableName() string { return "invoice_items" }
