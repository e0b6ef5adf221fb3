package repository

import (
	"context"

	"github.com/smallbiznis/pricebook/pkg/db/option"
	"gorm.io/gorm"
)

// Repository is a generic record store over one gorm model.
// FindOne returns nil, nil when nothing matches.
type Repository[T any] interface {
	WithTrx(tx *gorm.DB) Repository[T]
	Find(ctx context.Context, query *T, opts ...option.QueryOption) ([]*T, error)
	FindOne(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error)
	Create(ctx context.Context, resource *T) error
	BatchCreate(ctx context.Context, resources []*T) error
	Update(ctx context.Context, resourceID any, values map[string]any) error
	// UpdateIf applies values to the row only when every guard matches and
	// reports how many rows changed.
	UpdateIf(ctx context.Context, resourceID any, values map[string]any, guards ...option.QueryOption) (int64, error)
}
