package domain

import (
	"context"

	"github.com/smallbiznis/pricebook/pkg/errs"
)

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Item, error)
	Get(ctx context.Context, id string) (*Item, error)
	GetByCode(ctx context.Context, code string) (*Item, error)
	List(ctx context.Context, req ListRequest) ([]*Item, error)
	Update(ctx context.Context, id string, req UpdateRequest) (*Item, error)
	Deactivate(ctx context.Context, id string) (*Item, error)
}

type CreateRequest struct {
	Code                string          `json:"code"`
	Name                string          `json:"name"`
	Description         string          `json:"description"`
	BaseUnitPriceCents  int64           `json:"base_unit_price_cents"`
	BillingStrategy     BillingStrategy `json:"billing_strategy"`
	BillingPeriodMonths *int32          `json:"billing_period_months"`
	Metadata            map[string]any  `json:"metadata"`
}

// UpdateRequest changes only the fields that are set. Code is immutable.
type UpdateRequest struct {
	Name                *string          `json:"name"`
	Description         *string          `json:"description"`
	BaseUnitPriceCents  *int64           `json:"base_unit_price_cents"`
	BillingStrategy     *BillingStrategy `json:"billing_strategy"`
	BillingPeriodMonths *int32           `json:"billing_period_months"`
	Metadata            map[string]any   `json:"metadata"`
	Active              *bool            `json:"active"`
}

type ListRequest struct {
	ActiveOnly bool `form:"active_only"`
}

var (
	ErrInvalidID              = errs.New(errs.KindValidation, "invalid_id")
	ErrInvalidCode            = errs.New(errs.KindValidation, "invalid_code")
	ErrInvalidName            = errs.New(errs.KindValidation, "invalid_name")
	ErrInvalidPrice           = errs.New(errs.KindValidation, "invalid_base_unit_price")
	ErrInvalidBillingStrategy = errs.New(errs.KindValidation, "invalid_billing_strategy")
	ErrInvalidBillingPeriod   = errs.New(errs.KindValidation, "invalid_billing_period_months")
	ErrCodeAlreadyExists      = errs.New(errs.KindInvalidState, "pricebook_code_already_exists")
	ErrNotFound               = errs.New(errs.KindNotFound, "pricebook_item_not_found")
)
