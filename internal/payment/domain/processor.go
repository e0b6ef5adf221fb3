package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pricebook/pkg/errs"
)

type CustomerRequest struct {
	OrgID          snowflake.ID
	IdempotencyKey string
}

type ExternalInvoiceRequest struct {
	CustomerRef    string
	Currency       string
	Metadata       map[string]string
	IdempotencyKey string
}

type LineItemRequest struct {
	CustomerRef       string
	ExternalInvoiceID string
	Currency          string
	Description       string
	UnitPriceCents    int64
	Quantity          int64
	Metadata          map[string]string
	IdempotencyKey    string
}

// ExternalInvoice is the processor's view of a synced invoice.
type ExternalInvoice struct {
	ID        string
	Status    string
	Paid      bool
	HostedURL string
}

// PaymentOutcome describes a pay attempt. A declined payment is an
// outcome with Paid false, not an error.
type PaymentOutcome struct {
	Paid             bool
	InvoiceStatus    string
	AmountCents      int64
	Currency         string
	PaymentIntentRef string
	ChargeRef        string
	ReceiptURL       string
	FailureMessage   string
}

// Processor is the external payment processor.
type Processor interface {
	Name() string
	EnsureCustomer(ctx context.Context, req CustomerRequest) (string, error)
	CreateInvoice(ctx context.Context, req ExternalInvoiceRequest) (*ExternalInvoice, error)
	AddLineItem(ctx context.Context, req LineItemRequest) error
	Finalize(ctx context.Context, externalInvoiceID string) (*ExternalInvoice, error)
	Pay(ctx context.Context, externalInvoiceID string) (*PaymentOutcome, error)
	ListPaymentMethods(ctx context.Context, customerRef string) ([]PaymentMethod, error)
	DetachPaymentMethod(ctx context.Context, paymentMethodID string) error
}

var ErrProcessorNotConfigured = errs.New(errs.KindExternalProcessor, "processor_not_configured")
