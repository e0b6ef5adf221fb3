package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	paymentdomain "github.com/smallbiznis/pricebook/internal/payment/domain"
	"github.com/smallbiznis/pricebook/pkg/db/option"
	"github.com/smallbiznis/pricebook/pkg/repository"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct {
	payments  repository.Repository[paymentdomain.Payment]
	customers repository.Repository[paymentdomain.BillingCustomer]
	events    repository.Repository[paymentdomain.EventRecord]
}

func Provide(db *gorm.DB) paymentdomain.Repository {
	return &repo{
		payments:  repository.ProvideStore[paymentdomain.Payment](db),
		customers: repository.ProvideStore[paymentdomain.BillingCustomer](db),
		events:    repository.ProvideStore[paymentdomain.EventRecord](db),
	}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, payment *paymentdomain.Payment) error {
	return r.payments.WithTrx(db).Create(ctx, payment)
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, payment *paymentdomain.Payment) error {
	return r.payments.WithTrx(db).Update(ctx, payment.ID, map[string]any{
		"status":          payment.Status,
		"charge_ref":      payment.ChargeRef,
		"receipt_url":     payment.ReceiptURL,
		"failure_message": payment.FailureMessage,
		"updated_at":      payment.UpdatedAt,
	})
}

func (r *repo) FindByPaymentIntent(ctx context.Context, db *gorm.DB, ref string) (*paymentdomain.Payment, error) {
	return r.payments.WithTrx(db).FindOne(ctx, nil,
		option.ApplyOperator("payment_intent_ref", option.Equal, ref),
	)
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter paymentdomain.ListFilter) ([]*paymentdomain.Payment, error) {
	opts := []option.QueryOption{option.ApplyPagination(filter.Page)}
	if filter.InvoiceID != nil {
		opts = append(opts, option.ApplyOperator("invoice_id", option.Equal, *filter.InvoiceID))
	}
	return r.payments.WithTrx(db).Find(ctx,
		&paymentdomain.Payment{OrganizationID: filter.OrganizationID, Status: filter.Status},
		opts...,
	)
}

func (r *repo) FindCustomer(ctx context.Context, db *gorm.DB, orgID snowflake.ID) (*paymentdomain.BillingCustomer, error) {
	return r.customers.WithTrx(db).FindOne(ctx, &paymentdomain.BillingCustomer{OrganizationID: orgID})
}

func (r *repo) InsertCustomer(ctx context.Context, db *gorm.DB, customer *paymentdomain.BillingCustomer) (bool, error) {
	result := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "organization_id"}},
			DoNothing: true,
		}).
		Create(customer)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) InsertEvent(ctx context.Context, db *gorm.DB, event *paymentdomain.EventRecord) (bool, error) {
	result := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "provider"}, {Name: "provider_event_id"}},
			DoNothing: true,
		}).
		Create(event)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) FindEvent(ctx context.Context, db *gorm.DB, provider, providerEventID string) (*paymentdomain.EventRecord, error) {
	return r.events.WithTrx(db).FindOne(ctx, &paymentdomain.EventRecord{
		Provider:        provider,
		ProviderEventID: providerEventID,
	})
}

func (r *repo) MarkEventProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error {
	return r.events.WithTrx(db).Update(ctx, id, map[string]any{"processed_at": at})
}
