package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusSucceeded PaymentStatus = "succeeded"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
	PaymentStatusCanceled  PaymentStatus = "canceled"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusSucceeded, PaymentStatusFailed,
		PaymentStatusRefunded, PaymentStatusCanceled:
		return true
	}
	return false
}

// Payment is one collection attempt against an invoice or organization.
type Payment struct {
	ID               snowflake.ID  `json:"id" gorm:"primaryKey"`
	OrganizationID   snowflake.ID  `json:"organization_id" gorm:"not null;index"`
	InvoiceID        *snowflake.ID `json:"invoice_id,omitempty" gorm:"index"`
	AmountCents      int64         `json:"amount_cents" gorm:"not null"`
	Currency         string        `json:"currency" gorm:"type:varchar(3);not null"`
	Status           PaymentStatus `json:"status" gorm:"type:varchar(32);not null"`
	PaymentIntentRef *string       `json:"payment_intent_ref,omitempty" gorm:"type:varchar(255);uniqueIndex:ux_payments_payment_intent"`
	ChargeRef        string        `json:"charge_ref,omitempty" gorm:"type:varchar(255)"`
	ReceiptURL       string        `json:"receipt_url,omitempty" gorm:"type:text"`
	FailureMessage   string        `json:"failure_message,omitempty" gorm:"type:text"`
	CreatedAt        time.Time     `json:"created_at" gorm:"not null"`
	UpdatedAt        time.Time     `json:"updated_at" gorm:"not null"`
}

func (Payment) TableName() string { return "payments" }

// BillingCustomer maps an organization to its processor customer.
type BillingCustomer struct {
	OrganizationID snowflake.ID `json:"organization_id" gorm:"primaryKey;autoIncrement:false"`
	Processor      string       `json:"processor" gorm:"type:varchar(32);not null"`
	CustomerRef    string       `json:"customer_ref" gorm:"type:varchar(255);not null;uniqueIndex"`
	CreatedAt      time.Time    `json:"created_at" gorm:"not null"`
}

func (BillingCustomer) TableName() string { return "billing_customers" }

// EventRecord is a received processor notification, kept for deduplication.
type EventRecord struct {
	ID              snowflake.ID   `json:"id" gorm:"primaryKey"`
	Provider        string         `json:"provider" gorm:"type:varchar(32);not null;uniqueIndex:ux_payment_events_provider_event"`
	ProviderEventID string         `json:"provider_event_id" gorm:"type:varchar(255);not null;uniqueIndex:ux_payment_events_provider_event"`
	EventType       string         `json:"event_type" gorm:"type:varchar(128);not null"`
	Payload         datatypes.JSON `json:"payload"`
	ReceivedAt      time.Time      `json:"received_at" gorm:"not null"`
	ProcessedAt     *time.Time     `json:"processed_at"`
}

func (EventRecord) TableName() string { return "payment_events" }

// PaymentMethod is a stored instrument at the processor.
type PaymentMethod struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Brand    string `json:"brand,omitempty"`
	Last4    string `json:"last4,omitempty"`
	ExpMonth int64  `json:"exp_month,omitempty"`
	ExpYear  int64  `json:"exp_year,omitempty"`
}
