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
	InvoiceID      *snowflake.ID
	Status         PaymentStatus
	Page           pagination.Pagination
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, payment *Payment) error
	Update(ctx context.Context, db *gorm.DB, payment *Payment) error
	FindByPaymentIntent(ctx context.Context, db *gorm.DB, ref string) (*Payment, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*Payment, error)

	FindCustomer(ctx context.Context, db *gorm.DB, orgID snowflake.ID) (*BillingCustomer, error)
	// InsertCustomer reports false when the organization already has one.
	InsertCustomer(ctx context.Context, db *gorm.DB, customer *BillingCustomer) (bool, error)

	// InsertEvent reports false when the provider event was already received.
	InsertEvent(ctx context.Context, db *gorm.DB, event *EventRecord) (bool, error)
	FindEvent(ctx context.Context, db *gorm.DB, provider, providerEventID string) (*EventRecord, error)
	MarkEventProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error
}
