package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	invoicedomain "github.com/smallbiznis/pricebook/internal/invoice/domain"
	"github.com/smallbiznis/pricebook/pkg/db/option"
	"github.com/smallbiznis/pricebook/pkg/repository"
	"gorm.io/gorm"
)

type repo struct {
	invoices repository.Repository[invoicedomain.Invoice]
	items    repository.Repository[invoicedomain.InvoiceItem]
}

func Provide(db *gorm.DB) invoicedomain.Repository {
	return &repo{
		invoices: repository.ProvideStore[invoicedomain.Invoice](db),
		items:    repository.ProvideStore[invoicedomain.InvoiceItem](db),
	}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, invoice *invoicedomain.Invoice) error {
	return r.invoices.WithTrx(db).Create(ctx, invoice)
}

func (r *repo) InsertItems(ctx context.Context, db *gorm.DB, items []*invoicedomain.InvoiceItem) error {
	return r.items.WithTrx(db).BatchCreate(ctx, items)
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*invoicedomain.Invoice, error) {
	return r.invoices.WithTrx(db).FindOne(ctx, &invoicedomain.Invoice{ID: id, OrganizationID: orgID})
}

func (r *repo) FindByExternalID(ctx context.Context, db *gorm.DB, externalID string) (*invoicedomain.Invoice, error) {
	return r.invoices.WithTrx(db).FindOne(ctx, nil,
		option.ApplyOperator("external_invoice_id", option.Equal, externalID),
	)
}

func (r *repo) FindActiveForPeriod(ctx context.Context, db *gorm.DB, orgID snowflake.ID, start, end time.Time) (*invoicedomain.Invoice, error) {
	return r.invoices.WithTrx(db).FindOne(ctx,
		&invoicedomain.Invoice{OrganizationID: orgID},
		option.ApplyOperator("period_start", option.Equal, start.UTC()),
		option.ApplyOperator("period_end", option.Equal, end.UTC()),
		option.ApplyOperator("status", option.NotEqual, invoicedomain.InvoiceStatusVoid),
	)
}

func (r *repo) ListItems(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]*invoicedomain.InvoiceItem, error) {
	return r.items.WithTrx(db).Find(ctx,
		&invoicedomain.InvoiceItem{InvoiceID: invoiceID},
		option.WithSortBy("code asc"),
	)
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter invoicedomain.ListFilter) ([]*invoicedomain.Invoice, error) {
	return r.invoices.WithTrx(db).Find(ctx,
		&invoicedomain.Invoice{OrganizationID: filter.OrganizationID, Status: filter.Status},
		option.ApplyPagination(filter.Page),
	)
}

func (r *repo) Transition(ctx context.Context, db *gorm.DB, id snowflake.ID, from []invoicedomain.InvoiceStatus, fields map[string]any) (bool, error) {
	changed, err := r.invoices.WithTrx(db).UpdateIf(ctx, id, fields,
		option.ApplyOperator("status", option.In, from),
	)
	if err != nil {
		return false, err
	}
	return changed > 0, nil
}
