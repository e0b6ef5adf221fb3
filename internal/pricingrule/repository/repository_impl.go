package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	pricingruledomain "github.com/smallbiznis/pricebook/internal/pricingrule/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() pricingruledomain.Repository {
	return &repo{}
}

func (r *repo) InsertRule(ctx context.Context, db *gorm.DB, rule *pricingruledomain.Rule) error {
	return db.WithContext(ctx).Create(rule).Error
}

func (r *repo) UpdateRule(ctx context.Context, db *gorm.DB, rule *pricingruledomain.Rule) error {
	return db.WithContext(ctx).Model(&pricingruledomain.Rule{}).Where("id = ?", rule.ID).Updates(map[string]any{
		"name":        rule.Name,
		"description": rule.Description,
		"rule_type":   rule.RuleType,
		"value":       rule.Value,
		"priority":    rule.Priority,
		"active_from": rule.ActiveFrom,
		"active_to":   rule.ActiveTo,
		"updated_at":  rule.UpdatedAt,
	}).Error
}

func (r *repo) DeleteRule(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	if err := db.WithContext(ctx).Where("rule_id = ?", id).Delete(&pricingruledomain.Condition{}).Error; err != nil {
		return err
	}
	return db.WithContext(ctx).Where("id = ?", id).Delete(&pricingruledomain.Rule{}).Error
}

func (r *repo) FindRuleByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*pricingruledomain.Rule, error) {
	var rule pricingruledomain.Rule
	err := db.WithContext(ctx).Where("id = ?", id).First(&rule).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rule, nil
}

func (r *repo) ListRules(ctx context.Context, db *gorm.DB, filter pricingruledomain.ListFilter) ([]*pricingruledomain.Rule, error) {
	stmt := db.WithContext(ctx).Model(&pricingruledomain.Rule{})
	if filter.ScopeType != "" {
		stmt = stmt.Where("scope_type = ?", filter.ScopeType)
	}
	if filter.OrganizationID != nil {
		stmt = stmt.Where("organization_id = ?", *filter.OrganizationID)
	}
	if filter.PricebookItemID != nil {
		stmt = stmt.Where("pricebook_item_id = ?", *filter.PricebookItemID)
	}

	var rules []*pricingruledomain.Rule
	if err := stmt.Order("priority DESC").Order("id ASC").Find(&rules).Error; err != nil {
		return nil, err
	}
	return rules, nil
}

func (r *repo) ListActive(ctx context.Context, db *gorm.DB, orgID, itemID snowflake.ID, at time.Time) ([]*pricingruledomain.Rule, error) {
	var rules []*pricingruledomain.Rule
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, description, scope_type, organization_id, pricebook_item_id,
		 rule_type, value, priority, active_from, active_to, created_at, updated_at
		 FROM pricing_rules
		 WHERE active_from <= ?
		   AND (active_to IS NULL OR active_to > ?)
		   AND (
		     scope_type = ?
		     OR (scope_type = ? AND organization_id = ?)
		     OR (scope_type = ? AND pricebook_item_id = ?)
		   )
		 ORDER BY priority DESC, id ASC`,
		at,
		at,
		pricingruledomain.ScopeGlobal,
		pricingruledomain.ScopeOrganization,
		orgID,
		pricingruledomain.ScopeItem,
		itemID,
	).Scan(&rules).Error
	if err != nil {
		return nil, err
	}
	return rules, nil
}

func (r *repo) InsertConditions(ctx context.Context, db *gorm.DB, conditions []*pricingruledomain.Condition) error {
	if len(conditions) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(conditions).Error
}

func (r *repo) DeleteCondition(ctx context.Context, db *gorm.DB, ruleID, conditionID snowflake.ID) (bool, error) {
	res := db.WithContext(ctx).
		Where("id = ? AND rule_id = ?", conditionID, ruleID).
		Delete(&pricingruledomain.Condition{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) ListConditions(ctx context.Context, db *gorm.DB, ruleIDs []snowflake.ID) ([]*pricingruledomain.Condition, error) {
	if len(ruleIDs) == 0 {
		return nil, nil
	}
	var conditions []*pricingruledomain.Condition
	err := db.WithContext(ctx).
		Where("rule_id IN ?", ruleIDs).
		Order("group_id ASC").
		Order("id ASC").
		Find(&conditions).Error
	if err != nil {
		return nil, err
	}
	return conditions, nil
}
