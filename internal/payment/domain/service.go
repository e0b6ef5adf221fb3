package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pricebook/pkg/db/pagination"
	"github.com/smallbiznis/pricebook/pkg/errs"
)

type RecordRequest struct {
	OrgID            snowflake.ID
	InvoiceID        *snowflake.ID
	AmountCents      int64
	Currency         string
	Status           PaymentStatus
	PaymentIntentRef string
	ChargeRef        string
	ReceiptURL       string
	FailureMessage   string
}

// UpdateRequest changes the status of the payment holding PaymentIntentRef.
// Empty charge, receipt and failure fields leave the stored values alone.
type UpdateRequest struct {
	PaymentIntentRef string
	Status           PaymentStatus
	ChargeRef        string
	ReceiptURL       string
	FailureMessage   string
}

type ListRequest struct {
	pagination.Pagination
	InvoiceID string `form:"invoice_id"`
	Status    string `form:"status"`
}

type ListResponse struct {
	pagination.PageInfo
	Payments []*Payment `json:"payments"`
}

type Service interface {
	// Record stores a payment outcome. A known payment intent updates the
	// existing row instead.
	Record(ctx context.Context, req RecordRequest) (*Payment, error)
	UpdateByPaymentIntent(ctx context.Context, req UpdateRequest) (*Payment, error)
	// List returns payments of the organization in ctx.
	List(ctx context.Context, req ListRequest) (ListResponse, error)
	// EnsureCustomer returns the organization's processor customer, creating
	// and persisting it on first use.
	EnsureCustomer(ctx context.Context, orgID snowflake.ID) (*BillingCustomer, error)
	ListPaymentMethods(ctx context.Context) ([]PaymentMethod, error)
	DetachPaymentMethod(ctx context.Context, paymentMethodID string) error
}

// NotificationHandler consumes signed processor notifications.
type NotificationHandler interface {
	HandleNotification(ctx context.Context, payload []byte, signature string) error
}

var (
	ErrInvalidOrganization   = errs.New(errs.KindValidation, "invalid_organization")
	ErrInvalidAmount         = errs.New(errs.KindValidation, "invalid_amount")
	ErrInvalidCurrency       = errs.New(errs.KindValidation, "invalid_currency")
	ErrInvalidStatus         = errs.New(errs.KindValidation, "invalid_payment_status")
	ErrInvalidPaymentIntent  = errs.New(errs.KindValidation, "invalid_payment_intent")
	ErrInvalidInvoice        = errs.New(errs.KindValidation, "invalid_invoice_id")
	ErrInvalidPageToken      = errs.New(errs.KindValidation, "invalid_page_token")
	ErrInvalidPaymentMethod  = errs.New(errs.KindValidation, "invalid_payment_method")
	ErrPaymentNotFound       = errs.New(errs.KindNotFound, "payment_not_found")
	ErrPaymentMethodNotFound = errs.New(errs.KindNotFound, "payment_method_not_found")
	ErrInvalidSignature      = errs.New(errs.KindValidation, "invalid_signature")
	ErrInvalidPayload        = errs.New(errs.KindValidation, "invalid_payload")
	ErrWebhookNotConfigured  = errs.New(errs.KindInvalidState, "webhook_not_configured")
)
