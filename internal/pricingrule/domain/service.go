package domain

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/pricebook/pkg/errs"
)

type Service interface {
	CreateRule(ctx context.Context, req CreateRuleRequest) (*Rule, error)
	GetRule(ctx context.Context, id string) (*Rule, error)
	ListRules(ctx context.Context, req ListRulesRequest) ([]*Rule, error)
	UpdateRule(ctx context.Context, id string, req UpdateRuleRequest) (*Rule, error)
	DeleteRule(ctx context.Context, id string) error
	AddCondition(ctx context.Context, ruleID string, req ConditionInput) (*Condition, error)
	RemoveCondition(ctx context.Context, ruleID, conditionID string) error
	// ListApplicable returns candidate rules with conditions loaded, winner first.
	ListApplicable(ctx context.Context, orgID, itemID snowflake.ID, at time.Time) ([]*Rule, error)
}

type ConditionInput struct {
	ConditionType ConditionType   `json:"condition_type"`
	Operator      Operator        `json:"operator"`
	Value         json.RawMessage `json:"value"`
	GroupID       int32           `json:"group_id"`
}

type CreateRuleRequest struct {
	Name            string           `json:"name"`
	Description     string           `json:"description"`
	ScopeType       ScopeType        `json:"scope_type"`
	OrganizationID  *snowflake.ID    `json:"organization_id"`
	PricebookItemID *snowflake.ID    `json:"pricebook_item_id"`
	RuleType        RuleType         `json:"rule_type"`
	Value           decimal.Decimal  `json:"value"`
	Priority        int32            `json:"priority"`
	ActiveFrom      *time.Time       `json:"active_from"`
	ActiveTo        *time.Time       `json:"active_to"`
	Conditions      []ConditionInput `json:"conditions"`
}

// UpdateRuleRequest changes only the fields that are set. Scope is immutable.
type UpdateRuleRequest struct {
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	RuleType    *RuleType        `json:"rule_type"`
	Value       *decimal.Decimal `json:"value"`
	Priority    *int32           `json:"priority"`
	ActiveFrom  *time.Time       `json:"active_from"`
	ActiveTo    *time.Time       `json:"active_to"`
	ClearEnd    bool             `json:"clear_active_to"`
}

type ListRulesRequest struct {
	ScopeType       ScopeType `form:"scope_type"`
	OrganizationID  string    `form:"organization_id"`
	PricebookItemID string    `form:"pricebook_item_id"`
}

var (
	ErrInvalidID             = errs.New(errs.KindValidation, "invalid_id")
	ErrInvalidName           = errs.New(errs.KindValidation, "invalid_name")
	ErrInvalidScope          = errs.New(errs.KindValidation, "invalid_scope")
	ErrInvalidRuleType       = errs.New(errs.KindValidation, "invalid_rule_type")
	ErrInvalidRuleValue      = errs.New(errs.KindValidation, "invalid_rule_value")
	ErrInvalidActiveWindow   = errs.New(errs.KindValidation, "invalid_active_window")
	ErrUnknownConditionType  = errs.New(errs.KindValidation, "unknown_condition_type")
	ErrInvalidOperator       = errs.New(errs.KindValidation, "invalid_condition_operator")
	ErrInvalidConditionValue = errs.New(errs.KindValidation, "invalid_condition_value")
	ErrRuleNotFound          = errs.New(errs.KindNotFound, "pricing_rule_not_found")
	ErrConditionNotFound     = errs.New(errs.KindNotFound, "pricing_rule_condition_not_found")
)
