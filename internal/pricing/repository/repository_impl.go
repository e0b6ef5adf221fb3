package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	pricingdomain "github.com/smallbiznis/pricebook/internal/pricing/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() pricingdomain.Repository {
	return &repo{}
}

func (r *repo) FindSegment(ctx context.Context, db *gorm.DB, orgID snowflake.ID) (string, error) {
	var segments []string
	err := db.WithContext(ctx).Raw(
		`SELECT segment FROM org_segments WHERE organization_id = ?`,
		orgID,
	).Scan(&segments).Error
	if err != nil {
		return "", err
	}
	if len(segments) == 0 {
		return "", nil
	}
	return segments[0], nil
}

func (r *repo) UpsertSegment(ctx context.Context, db *gorm.DB, segment *pricingdomain.OrgSegment) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "organization_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"segment", "updated_at"}),
	}).Create(segment).Error
}
