package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	ruleusagedomain "github.com/smallbiznis/pricebook/internal/ruleusage/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() ruleusagedomain.Repository {
	return &repo{}
}

func (r *repo) Get(ctx context.Context, db *gorm.DB, key ruleusagedomain.Key) (int64, error) {
	var count sql.NullInt64
	err := db.WithContext(ctx).Raw(
		`SELECT usage_count FROM rule_usage_counters WHERE rule_id = ? AND scope_key = ?`,
		key.RuleID,
		key.ScopeKey(),
	).Scan(&count).Error
	if err != nil {
		return 0, err
	}
	return count.Int64, nil
}

func (r *repo) Increment(ctx context.Context, db *gorm.DB, key ruleusagedomain.Key, now time.Time) (int64, error) {
	if isMySQL(db) {
		if err := db.WithContext(ctx).Exec(
			`INSERT INTO rule_usage_counters (rule_id, scope_key, usage_count, updated_at)
			 VALUES (?, ?, 1, ?)
			 ON DUPLICATE KEY UPDATE usage_count = usage_count + 1, updated_at = VALUES(updated_at)`,
			key.RuleID, key.ScopeKey(), now,
		).Error; err != nil {
			return 0, err
		}
		return r.Get(ctx, db, key)
	}

	var count int64
	err := db.WithContext(ctx).Raw(
		`INSERT INTO rule_usage_counters (rule_id, scope_key, usage_count, updated_at)
		 VALUES (?, ?, 1, ?)
		 ON CONFLICT (rule_id, scope_key)
		 DO UPDATE SET usage_count = rule_usage_counters.usage_count + 1, updated_at = excluded.updated_at
		 RETURNING usage_count`,
		key.RuleID, key.ScopeKey(), now,
	).Scan(&count).Error
	return count, err
}

func (r *repo) IncrementBelow(ctx context.Context, db *gorm.DB, key ruleusagedomain.Key, limit int64, now time.Time) (int64, bool, error) {
	if limit <= 0 {
		return 0, false, errors.New("limit must be positive")
	}

	if isMySQL(db) {
		res := db.WithContext(ctx).Exec(
			`INSERT INTO rule_usage_counters (rule_id, scope_key, usage_count, updated_at)
			 VALUES (?, ?, 1, ?)
			 ON DUPLICATE KEY UPDATE
			   updated_at = IF(usage_count < ?, VALUES(updated_at), updated_at),
			   usage_count = IF(usage_count < ?, usage_count + 1, usage_count)`,
			key.RuleID, key.ScopeKey(), now, limit, limit,
		)
		if res.Error != nil {
			return 0, false, res.Error
		}
		count, err := r.Get(ctx, db, key)
		// 1 = inserted, 2 = updated, 0 = unchanged.
		return count, res.RowsAffected > 0, err
	}

	var counts []int64
	err := db.WithContext(ctx).Raw(
		`INSERT INTO rule_usage_counters (rule_id, scope_key, usage_count, updated_at)
		 VALUES (?, ?, 1, ?)
		 ON CONFLICT (rule_id, scope_key)
		 DO UPDATE SET usage_count = rule_usage_counters.usage_count + 1, updated_at = excluded.updated_at
		 WHERE rule_usage_counters.usage_count < ?
		 RETURNING usage_count`,
		key.RuleID, key.ScopeKey(), now, limit,
	).Scan(&counts).Error
	if err != nil {
		return 0, false, err
	}
	if len(counts) == 0 {
		return limit, false, nil
	}
	return counts[0], true, nil
}

func isMySQL(db *gorm.DB) bool {
	return db.Dialector.Name() == "mysql"
}
