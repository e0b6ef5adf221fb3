package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	paymentdomain "github.com/smallbiznis/pricebook/internal/payment/domain"
	"github.com/smallbiznis/pricebook/pkg/db/pagination"
	"github.com/smallbiznis/pricebook/pkg/errs"
)

type GenerateRequest struct {
	PeriodStart time.Time     `json:"period_start"`
	PeriodEnd   time.Time     `json:"period_end"`
	OrderID     *snowflake.ID `json:"order_id,omitempty"`
}

// GenerateAllResult reports a billing run. Failed organizations do not stop
// the run.
type GenerateAllResult struct {
	PeriodStart time.Time    `json:"period_start"`
	PeriodEnd   time.Time    `json:"period_end"`
	Generated   []*Invoice   `json:"generated"`
	Skipped     []OrgOutcome `json:"skipped"`
	Failed      []OrgOutcome `json:"failed"`
}

type OrgOutcome struct {
	OrganizationID snowflake.ID `json:"organization_id"`
	Reason         string       `json:"reason"`
}

type ListInvoiceRequest struct {
	pagination.Pagination
	Status string `form:"status"`
}

type ListInvoiceResponse struct {
	pagination.PageInfo
	Invoices []*Invoice `json:"invoices"`
}

type SyncRequest struct {
	AutoFinalize bool `json:"auto_finalize"`
}

type PayResult struct {
	Invoice *Invoice               `json:"invoice"`
	Payment *paymentdomain.Payment `json:"payment"`
}

type Service interface {
	// Generate bills the organization in ctx for usage in the period.
	Generate(ctx context.Context, req GenerateRequest) (*Invoice, error)
	GenerateAll(ctx context.Context, start, end time.Time) (*GenerateAllResult, error)

	List(ctx context.Context, req ListInvoiceRequest) (ListInvoiceResponse, error)
	GetByID(ctx context.Context, id string) (*Invoice, error)

	Sync(ctx context.Context, id string, req SyncRequest) (*Invoice, error)
	Pay(ctx context.Context, id string) (*PayResult, error)
	Void(ctx context.Context, id string) (*Invoice, error)
	MarkUncollectible(ctx context.Context, id string) (*Invoice, error)

	// MarkPaid settles an open invoice on processor confirmation. Paid
	// invoices are returned unchanged.
	MarkPaid(ctx context.Context, id snowflake.ID) (*Invoice, error)
	FindByExternalID(ctx context.Context, externalID string) (*Invoice, error)
}

var (
	ErrInvalidOrganization       = errs.New(errs.KindValidation, "invalid_organization")
	ErrInvalidInvoiceID          = errs.New(errs.KindValidation, "invalid_invoice_id")
	ErrInvalidPeriod             = errs.New(errs.KindValidation, "invalid_period")
	ErrInvalidStatus             = errs.New(errs.KindValidation, "invalid_invoice_status")
	ErrInvalidPageToken          = errs.New(errs.KindValidation, "invalid_page_token")
	ErrInvoiceNotFound           = errs.New(errs.KindNotFound, "invoice_not_found")
	ErrInvoiceAlreadyExists      = errs.New(errs.KindInvalidState, "invoice_already_exists")
	ErrInvoiceGenerationInFlight = errs.New(errs.KindInvalidState, "invoice_generation_in_progress")
	ErrNoUsageToInvoice          = errs.New(errs.KindNoUsageToInvoice, "no_usage_to_invoice")
	ErrInvalidTransition         = errs.New(errs.KindInvalidState, "invalid_invoice_transition")
	ErrInvoiceNotDraft           = errs.New(errs.KindInvalidState, "invoice_not_draft")
	ErrInvoiceAlreadySynced      = errs.New(errs.KindInvalidState, "invoice_already_synced")
	ErrInvoiceNotSynced          = errs.New(errs.KindInvalidState, "invoice_not_synced")
	ErrInvoiceNotOpen            = errs.New(errs.KindInvalidState, "invoice_not_open")
	ErrInvoiceTotalMismatch      = errs.New(errs.KindInvalidState, "invoice_total_mismatch")
)
