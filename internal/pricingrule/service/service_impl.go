package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/pricebook/internal/clock"
	pricingruledomain "github.com/smallbiznis/pricebook/internal/pricingrule/domain"
	"github.com/smallbiznis/pricebook/pkg/errs"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var hundred = decimal.NewFromInt(100)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  pricingruledomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  pricingruledomain.Repository
}

func New(p Params) pricingruledomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("pricingrule.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) CreateRule(ctx context.Context, req pricingruledomain.CreateRuleRequest) (*pricingruledomain.Rule, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, pricingruledomain.ErrInvalidName
	}
	if err := validateScope(req.ScopeType, req.OrganizationID, req.PricebookItemID); err != nil {
		return nil, err
	}
	if err := validateValue(req.RuleType, req.Value); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	activeFrom := now
	if req.ActiveFrom != nil {
		activeFrom = req.ActiveFrom.UTC()
	}
	activeTo := utcPtr(req.ActiveTo)
	if activeTo != nil && !activeTo.After(activeFrom) {
		return nil, pricingruledomain.ErrInvalidActiveWindow
	}

	rule := &pricingruledomain.Rule{
		ID:              s.genID.Generate(),
		Name:            name,
		Description:     strings.TrimSpace(req.Description),
		ScopeType:       req.ScopeType,
		OrganizationID:  req.OrganizationID,
		PricebookItemID: req.PricebookItemID,
		RuleType:        req.RuleType,
		Value:           req.Value,
		Priority:        req.Priority,
		ActiveFrom:      activeFrom,
		ActiveTo:        activeTo,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	conditions := make([]*pricingruledomain.Condition, 0, len(req.Conditions))
	for _, input := range req.Conditions {
		cond, err := s.buildCondition(rule.ID, input, now)
		if err != nil {
			return nil, err
		}
		conditions = append(conditions, cond)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.InsertRule(ctx, tx, rule); err != nil {
			return err
		}
		return s.repo.InsertConditions(ctx, tx, conditions)
	})
	if err != nil {
		return nil, errs.Persistence(err)
	}
	rule.Conditions = conditions

	s.log.Info("pricing rule created",
		zap.String("rule_id", rule.ID.String()),
		zap.String("scope_type", string(rule.ScopeType)),
		zap.String("rule_type", string(rule.RuleType)),
		zap.Int("conditions", len(conditions)),
	)
	return rule, nil
}

func (s *Service) GetRule(ctx context.Context, id string) (*pricingruledomain.Rule, error) {
	ruleID, err := parseID(id)
	if err != nil {
		return nil, err
	}
	rule, err := s.findRule(ctx, ruleID)
	if err != nil {
		return nil, err
	}
	if err := s.attachConditions(ctx, []*pricingruledomain.Rule{rule}); err != nil {
		return nil, err
	}
	return rule, nil
}

func (s *Service) ListRules(ctx context.Context, req pricingruledomain.ListRulesRequest) ([]*pricingruledomain.Rule, error) {
	filter := pricingruledomain.ListFilter{ScopeType: req.ScopeType}
	if strings.TrimSpace(req.OrganizationID) != "" {
		orgID, err := parseID(req.OrganizationID)
		if err != nil {
			return nil, err
		}
		filter.OrganizationID = &orgID
	}
	if strings.TrimSpace(req.PricebookItemID) != "" {
		itemID, err := parseID(req.PricebookItemID)
		if err != nil {
			return nil, err
		}
		filter.PricebookItemID = &itemID
	}

	rules, err := s.repo.ListRules(ctx, s.db, filter)
	if err != nil {
		return nil, errs.Persistence(err)
	}
	if err := s.attachConditions(ctx, rules); err != nil {
		return nil, err
	}
	return rules, nil
}

func (s *Service) UpdateRule(ctx context.Context, id string, req pricingruledomain.UpdateRuleRequest) (*pricingruledomain.Rule, error) {
	ruleID, err := parseID(id)
	if err != nil {
		return nil, err
	}
	rule, err := s.findRule(ctx, ruleID)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, pricingruledomain.ErrInvalidName
		}
		rule.Name = name
	}
	if req.Description != nil {
		rule.Description = strings.TrimSpace(*req.Description)
	}
	if req.RuleType != nil {
		rule.RuleType = *req.RuleType
	}
	if req.Value != nil {
		rule.Value = *req.Value
	}
	if req.Priority != nil {
		rule.Priority = *req.Priority
	}
	if req.ActiveFrom != nil {
		rule.ActiveFrom = req.ActiveFrom.UTC()
	}
	if req.ActiveTo != nil {
		rule.ActiveTo = utcPtr(req.ActiveTo)
	}
	if req.ClearEnd {
		rule.ActiveTo = nil
	}
	if err := validateValue(rule.RuleType, rule.Value); err != nil {
		return nil, err
	}
	if rule.ActiveTo != nil && !rule.ActiveTo.After(rule.ActiveFrom) {
		return nil, pricingruledomain.ErrInvalidActiveWindow
	}

	rule.UpdatedAt = s.clock.Now()
	if err := s.repo.UpdateRule(ctx, s.db, rule); err != nil {
		return nil, errs.Persistence(err)
	}
	if err := s.attachConditions(ctx, []*pricingruledomain.Rule{rule}); err != nil {
		return nil, err
	}
	return rule, nil
}

func (s *Service) DeleteRule(ctx context.Context, id string) error {
	ruleID, err := parseID(id)
	if err != nil {
		return err
	}
	if _, err := s.findRule(ctx, ruleID); err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.repo.DeleteRule(ctx, tx, ruleID)
	})
	if err != nil {
		return errs.Persistence(err)
	}
	s.log.Info("pricing rule deleted", zap.String("rule_id", ruleID.String()))
	return nil
}

func (s *Service) AddCondition(ctx context.Context, ruleID string, req pricingruledomain.ConditionInput) (*pricingruledomain.Condition, error) {
	id, err := parseID(ruleID)
	if err != nil {
		return nil, err
	}
	if _, err := s.findRule(ctx, id); err != nil {
		return nil, err
	}

	cond, err := s.buildCondition(id, req, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if err := s.repo.InsertConditions(ctx, s.db, []*pricingruledomain.Condition{cond}); err != nil {
		return nil, errs.Persistence(err)
	}
	return cond, nil
}

func (s *Service) RemoveCondition(ctx context.Context, ruleID, conditionID string) error {
	rid, err := parseID(ruleID)
	if err != nil {
		return err
	}
	cid, err := parseID(conditionID)
	if err != nil {
		return err
	}

	deleted, err := s.repo.DeleteCondition(ctx, s.db, rid, cid)
	if err != nil {
		return errs.Persistence(err)
	}
	if !deleted {
		return pricingruledomain.ErrConditionNotFound
	}
	return nil
}

func (s *Service) ListApplicable(ctx context.Context, orgID, itemID snowflake.ID, at time.Time) ([]*pricingruledomain.Rule, error) {
	rules, err := s.repo.ListActive(ctx, s.db, orgID, itemID, at.UTC())
	if err != nil {
		return nil, errs.Persistence(err)
	}
	if err := s.attachConditions(ctx, rules); err != nil {
		return nil, err
	}
	return rules, nil
}

func (s *Service) buildCondition(ruleID snowflake.ID, input pricingruledomain.ConditionInput, now time.Time) (*pricingruledomain.Condition, error) {
	condType := pricingruledomain.ConditionType(strings.ToLower(strings.TrimSpace(string(input.ConditionType))))
	op := pricingruledomain.Operator(strings.ToLower(strings.TrimSpace(string(input.Operator))))
	if _, err := pricingruledomain.DecodePayload(condType, op, input.Value); err != nil {
		return nil, err
	}
	if input.GroupID < 0 {
		return nil, pricingruledomain.ErrInvalidConditionValue
	}

	return &pricingruledomain.Condition{
		ID:            s.genID.Generate(),
		RuleID:        ruleID,
		ConditionType: condType,
		Operator:      op,
		Value:         datatypes.JSON(input.Value),
		GroupID:       input.GroupID,
		CreatedAt:     now,
	}, nil
}

func (s *Service) findRule(ctx context.Context, id snowflake.ID) (*pricingruledomain.Rule, error) {
	rule, err := s.repo.FindRuleByID(ctx, s.db, id)
	if err != nil {
		return nil, errs.Persistence(err)
	}
	if rule == nil {
		return nil, pricingruledomain.ErrRuleNotFound
	}
	return rule, nil
}

func (s *Service) attachConditions(ctx context.Context, rules []*pricingruledomain.Rule) error {
	if len(rules) == 0 {
		return nil
	}
	ids := make([]snowflake.ID, 0, len(rules))
	byID := make(map[snowflake.ID]*pricingruledomain.Rule, len(rules))
	for _, rule := range rules {
		rule.Conditions = []*pricingruledomain.Condition{}
		ids = append(ids, rule.ID)
		byID[rule.ID] = rule
	}

	conditions, err := s.repo.ListConditions(ctx, s.db, ids)
	if err != nil {
		return errs.Persistence(err)
	}
	for _, cond := range conditions {
		if rule, ok := byID[cond.RuleID]; ok {
			rule.Conditions = append(rule.Conditions, cond)
		}
	}
	return nil
}

func validateScope(scope pricingruledomain.ScopeType, orgID, itemID *snowflake.ID) error {
	switch scope {
	case pricingruledomain.ScopeGlobal:
		if orgID != nil || itemID != nil {
			return pricingruledomain.ErrInvalidScope
		}
	case pricingruledomain.ScopeOrganization:
		if orgID == nil || *orgID == 0 || itemID != nil {
			return pricingruledomain.ErrInvalidScope
		}
	case pricingruledomain.ScopeItem:
		if itemID == nil || *itemID == 0 || orgID != nil {
			return pricingruledomain.ErrInvalidScope
		}
	default:
		return pricingruledomain.ErrInvalidScope
	}
	return nil
}

func validateValue(ruleType pricingruledomain.RuleType, value decimal.Decimal) error {
	switch ruleType {
	case pricingruledomain.PercentDiscount:
		if value.IsNegative() || value.GreaterThan(hundred) {
			return pricingruledomain.ErrInvalidRuleValue
		}
	case pricingruledomain.FixedDiscount, pricingruledomain.OverridePrice:
		if value.IsNegative() || !value.Equal(value.Truncate(0)) {
			return pricingruledomain.ErrInvalidRuleValue
		}
	default:
		return pricingruledomain.ErrInvalidRuleType
	}
	return nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, pricingruledomain.ErrInvalidID
	}
	return id, nil
}
