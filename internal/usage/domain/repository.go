package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pricebook/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListFilter struct {
	OrganizationID snowflake.ID
	Code           string
	Start          *time.Time
	End            *time.Time
	Page           pagination.Pagination
}

type Repository interface {
	// Insert reports false when the idempotency key already exists.
	Insert(ctx context.Context, db *gorm.DB, event *UsageEvent) (bool, error)
	FindByIdempotencyKey(ctx context.Context, db *gorm.DB, orgID snowflake.ID, key string) (*UsageEvent, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*UsageEvent, error)
	// SumByCode totals quantities per code for effective_at in [start, end].
	SumByCode(ctx context.Context, db *gorm.DB, orgID snowflake.ID, start, end time.Time) ([]CodeQuantity, error)
	ListOrganizations(ctx context.Context, db *gorm.DB, start, end time.Time) ([]snowflake.ID, error)
}
