package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type ListFilter struct {
	ScopeType       ScopeType
	OrganizationID  *snowflake.ID
	PricebookItemID *snowflake.ID
}

type Repository interface {
	InsertRule(ctx context.Context, db *gorm.DB, rule *Rule) error
	UpdateRule(ctx context.Context, db *gorm.DB, rule *Rule) error
	DeleteRule(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	FindRuleByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Rule, error)
	ListRules(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*Rule, error)
	// ListActive returns global rules plus rules scoped to orgID or itemID whose
	// window contains at, ordered priority DESC then id ASC.
	ListActive(ctx context.Context, db *gorm.DB, orgID, itemID snowflake.ID, at time.Time) ([]*Rule, error)

	InsertConditions(ctx context.Context, db *gorm.DB, conditions []*Condition) error
	DeleteCondition(ctx context.Context, db *gorm.DB, ruleID, conditionID snowflake.ID) (bool, error)
	ListConditions(ctx context.Context, db *gorm.DB, ruleIDs []snowflake.ID) ([]*Condition, error)
}
