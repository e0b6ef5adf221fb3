package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	pricebookdomain "github.com/smallbiznis/pricebook/internal/pricebook/domain"
	"github.com/smallbiznis/pricebook/pkg/db/option"
	"github.com/smallbiznis/pricebook/pkg/repository"
	"gorm.io/gorm"
)

type repo struct {
	store repository.Repository[pricebookdomain.Item]
}

func Provide(db *gorm.DB) pricebookdomain.Repository {
	return &repo{store: repository.ProvideStore[pricebookdomain.Item](db)}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, item *pricebookdomain.Item) error {
	return r.store.WithTrx(db).Create(ctx, item)
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*pricebookdomain.Item, error) {
	return r.store.WithTrx(db).FindOne(ctx, &pricebookdomain.Item{ID: id})
}

// FindByCode resolves active items only.
func (r *repo) FindByCode(ctx context.Context, db *gorm.DB, code string) (*pricebookdomain.Item, error) {
	return r.store.WithTrx(db).FindOne(ctx, &pricebookdomain.Item{Code: code},
		option.ApplyOperator("active", option.Equal, true),
	)
}

func (r *repo) List(ctx context.Context, db *gorm.DB, activeOnly bool) ([]*pricebookdomain.Item, error) {
	opts := []option.QueryOption{option.WithSortBy("code asc")}
	if activeOnly {
		opts = append(opts, option.ApplyOperator("active", option.Equal, true))
	}
	return r.store.WithTrx(db).Find(ctx, nil, opts...)
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, item *pricebookdomain.Item) error {
	return r.store.WithTrx(db).Update(ctx, item.ID, map[string]any{
		"name":                  item.Name,
		"description":           item.Description,
		"base_unit_price_cents": item.BaseUnitPriceCents,
		"billing_strategy":      item.BillingStrategy,
		"billing_period_months": item.BillingPeriodMonths,
		"metadata":              item.Metadata,
		"active":                item.Active,
		"updated_at":            item.UpdatedAt,
	})
}
