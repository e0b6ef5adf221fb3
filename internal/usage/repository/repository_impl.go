package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	usagedomain "github.com/smallbiznis/pricebook/internal/usage/domain"
	"github.com/smallbiznis/pricebook/pkg/db/option"
	"github.com/smallbiznis/pricebook/pkg/repository"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct {
	store repository.Repository[usagedomain.UsageEvent]
}

func Provide(db *gorm.DB) usagedomain.Repository {
	return &repo{store: repository.ProvideStore[usagedomain.UsageEvent](db)}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, event *usagedomain.UsageEvent) (bool, error) {
	tx := db.WithContext(ctx)
	if event.IdempotencyKey != nil {
		tx = tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "organization_id"}, {Name: "idempotency_key"}},
			DoNothing: true,
		})
	}
	result := tx.Create(event)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) FindByIdempotencyKey(ctx context.Context, db *gorm.DB, orgID snowflake.ID, key string) (*usagedomain.UsageEvent, error) {
	return r.store.WithTrx(db).FindOne(ctx,
		&usagedomain.UsageEvent{OrganizationID: orgID},
		option.ApplyOperator("idempotency_key", option.Equal, key),
	)
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter usagedomain.ListFilter) ([]*usagedomain.UsageEvent, error) {
	opts := []option.QueryOption{option.ApplyPagination(filter.Page)}
	if filter.Start != nil {
		opts = append(opts, option.ApplyOperator("effective_at", option.GreaterOrEqual, filter.Start.UTC()))
	}
	if filter.End != nil {
		opts = append(opts, option.ApplyOperator("effective_at", option.LessOrEqual, filter.End.UTC()))
	}
	return r.store.WithTrx(db).Find(ctx,
		&usagedomain.UsageEvent{OrganizationID: filter.OrganizationID, Code: filter.Code},
		opts...,
	)
}

func (r *repo) SumByCode(ctx context.Context, db *gorm.DB, orgID snowflake.ID, start, end time.Time) ([]usagedomain.CodeQuantity, error) {
	var rows []usagedomain.CodeQuantity
	err := db.WithContext(ctx).Raw(
		`SELECT code, SUM(quantity) AS quantity
		 FROM usage_events
		 WHERE organization_id = ? AND effective_at >= ? AND effective_at <= ?
		 GROUP BY code
		 ORDER BY code ASC`,
		orgID,
		start.UTC(),
		end.UTC(),
	).Scan(&rows).Error
	return rows, err
}

func (r *repo) ListOrganizations(ctx context.Context, db *gorm.DB, start, end time.Time) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := db.WithContext(ctx).Raw(
		`SELECT DISTINCT organization_id
		 FROM usage_events
		 WHERE effective_at >= ? AND effective_at <= ?
		 ORDER BY organization_id ASC`,
		start.UTC(),
		end.UTC(),
	).Scan(&ids).Error
	return ids, err
}
