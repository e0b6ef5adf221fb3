package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// FindSegment returns "" when the organization has no segment.
	FindSegment(ctx context.Context, db *gorm.DB, orgID snowflake.ID) (string, error)
	UpsertSegment(ctx context.Context, db *gorm.DB, segment *OrgSegment) error
}
