package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pricebook/pkg/db/pagination"
	"github.com/smallbiznis/pricebook/pkg/errs"
)

type RecordRequest struct {
	Code           string         `json:"code"`
	Quantity       int64          `json:"quantity"`
	EffectiveAt    *time.Time     `json:"effective_at"`
	RelatedIDs     map[string]any `json:"related_ids"`
	IdempotencyKey string         `json:"idempotency_key"`
}

type ListRequest struct {
	pagination.Pagination
	Code  string     `form:"code"`
	Start *time.Time `form:"start" time_format:"2006-01-02T15:04:05Z07:00"`
	End   *time.Time `form:"end" time_format:"2006-01-02T15:04:05Z07:00"`
}

type ListResponse struct {
	pagination.PageInfo
	Events []*UsageEvent `json:"usage_events"`
}

type Service interface {
	// Record stores an event for the organization in ctx. A repeated
	// idempotency key returns the existing event.
	Record(ctx context.Context, req RecordRequest) (*UsageEvent, error)
	List(ctx context.Context, req ListRequest) (ListResponse, error)
	// Summarize prices usage for effective_at in [start, end]. It never writes.
	Summarize(ctx context.Context, orgID snowflake.ID, start, end time.Time) (*UsageSummary, error)
	OrganizationsWithUsage(ctx context.Context, start, end time.Time) ([]snowflake.ID, error)
}

var (
	ErrInvalidOrganization   = errs.New(errs.KindValidation, "invalid_organization")
	ErrInvalidCode           = errs.New(errs.KindValidation, "invalid_code")
	ErrInvalidQuantity       = errs.New(errs.KindValidation, "invalid_quantity")
	ErrInvalidIdempotencyKey = errs.New(errs.KindValidation, "invalid_idempotency_key")
	ErrInvalidPeriod         = errs.New(errs.KindValidation, "invalid_period")
	ErrInvalidPageToken      = errs.New(errs.KindValidation, "invalid_page_token")
	ErrRateLimited           = errs.New(errs.KindRateLimited, "usage_rate_limited")
)
