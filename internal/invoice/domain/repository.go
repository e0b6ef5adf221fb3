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
	Status         InvoiceStatus
	Page           pagination.Pagination
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, invoice *Invoice) error
	InsertItems(ctx context.Context, db *gorm.DB, items []*InvoiceItem) error
	// FindByID scopes the lookup to orgID unless it is zero.
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Invoice, error)
	FindByExternalID(ctx context.Context, db *gorm.DB, externalID string) (*Invoice, error)
	// FindActiveForPeriod returns a non-void invoice for exactly this period.
	FindActiveForPeriod(ctx context.Context, db *gorm.DB, orgID snowflake.ID, start, end time.Time) (*Invoice, error)
	ListItems(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]*InvoiceItem, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*Invoice, error)
	// Transition applies fields only while the invoice is in one of from.
	// It reports false when the status had already moved.
	Transition(ctx context.Context, db *gorm.DB, id snowflake.ID, from []InvoiceStatus, fields map[string]any) (bool, error)
}
