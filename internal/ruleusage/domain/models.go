package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Counter tracks redemptions of one rule under one scope key.
// usage_count only ever increases.
type Counter struct {
	RuleID     snowflake.ID `json:"rule_id" gorm:"primaryKey;autoIncrement:false"`
	ScopeKey   string       `json:"scope_key" gorm:"primaryKey;type:varchar(64)"`
	UsageCount int64        `json:"usage_count" gorm:"not null;default:0"`
	UpdatedAt  time.Time    `json:"updated_at" gorm:"not null"`
}

func (Counter) TableName() string { return "rule_usage_counters" }

// Key identifies a counter. Zero OrgID or ItemID means the dimension is not
// part of the scope.
type Key struct {
	RuleID snowflake.ID
	OrgID  snowflake.ID
	ItemID snowflake.ID
}

// ScopeKey renders the stable storage key, e.g. "org:1|item:2".
func (k Key) ScopeKey() string {
	switch {
	case k.OrgID != 0 && k.ItemID != 0:
		return fmt.Sprintf("org:%d|item:%d", k.OrgID, k.ItemID)
	case k.OrgID != 0:
		return fmt.Sprintf("org:%d", k.OrgID)
	case k.ItemID != 0:
		return fmt.Sprintf("item:%d", k.ItemID)
	default:
		return "global"
	}
}

type Repository interface {
	Get(ctx context.Context, db *gorm.DB, key Key) (int64, error)
	// Increment adds one unconditionally and returns the new count.
	Increment(ctx context.Context, db *gorm.DB, key Key, now time.Time) (int64, error)
	// IncrementBelow adds one only while the count is below limit, in a single
	// statement. ok is false when the limit was already reached.
	IncrementBelow(ctx context.Context, db *gorm.DB, key Key, limit int64, now time.Time) (count int64, ok bool, err error)
}

type Service interface {
	Get(ctx context.Context, key Key) (int64, error)
	Increment(ctx context.Context, key Key) (int64, error)
	TryIncrement(ctx context.Context, key Key, limit int64) (bool, error)
	// WithTx binds the service to an open transaction.
	WithTx(tx *gorm.DB) Service
}
