package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, item *Item) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Item, error)
	FindByCode(ctx context.Context, db *gorm.DB, code string) (*Item, error)
	List(ctx context.Context, db *gorm.DB, activeOnly bool) ([]*Item, error)
	Update(ctx context.Context, db *gorm.DB, item *Item) error
}

// ItemCache is a read-through cache keyed by item code.
type ItemCache interface {
	Get(ctx context.Context, code string) (*Item, bool)
	Set(ctx context.Context, item *Item)
	Invalidate(ctx context.Context, code string)
}
