package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pricebook/internal/clock"
	"github.com/smallbiznis/pricebook/internal/config"
	"github.com/smallbiznis/pricebook/internal/observability/metrics"
	pricebookdomain "github.com/smallbiznis/pricebook/internal/pricebook/domain"
	pricingdomain "github.com/smallbiznis/pricebook/internal/pricing/domain"
	pricingruledomain "github.com/smallbiznis/pricebook/internal/pricingrule/domain"
	ruleusagedomain "github.com/smallbiznis/pricebook/internal/ruleusage/domain"
	"github.com/smallbiznis/pricebook/pkg/errs"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Clock     clock.Clock
	Repo      pricingdomain.Repository
	Pricebook pricebookdomain.Service
	Rules     pricingruledomain.Service
	Usage     ruleusagedomain.Service
	Billing   *config.BillingConfigHolder
	Metrics   *metrics.Metrics `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	clock     clock.Clock
	repo      pricingdomain.Repository
	pricebook pricebookdomain.Service
	rules     pricingruledomain.Service
	usage     ruleusagedomain.Service
	billing   *config.BillingConfigHolder
	metrics   *metrics.Metrics
	evaluator *Evaluator
}

func New(p Params) pricingdomain.Service {
	log := p.Log.Named("pricing.service")
	return &Service{
		db:        p.DB,
		log:       log,
		clock:     p.Clock,
		repo:      p.Repo,
		pricebook: p.Pricebook,
		rules:     p.Rules,
		usage:     p.Usage,
		billing:   p.Billing,
		metrics:   p.Metrics,
		evaluator: NewEvaluator(p.Usage, log),
	}
}

func (s *Service) Quote(ctx context.Context, req pricingdomain.QuoteRequest) (*pricingdomain.PriceResult, error) {
	if req.OrgID == 0 {
		return nil, pricingdomain.ErrInvalidOrganization
	}
	if req.Quantity < 1 {
		return nil, pricingdomain.ErrInvalidQuantity
	}

	item, err := s.pricebook.GetByCode(ctx, req.Code)
	if err != nil {
		return nil, err
	}

	at := s.clock.Now()
	if req.At != nil {
		at = req.At.UTC()
	}

	segment := strings.TrimSpace(req.Segment)
	if segment == "" {
		segment, err = s.GetOrgSegment(ctx, req.OrgID)
		if err != nil {
			return nil, err
		}
	}

	rules, err := s.rules.ListApplicable(ctx, req.OrgID, item.ID, at)
	if err != nil {
		return nil, err
	}

	evalCtx := pricingdomain.EvalContext{
		OrgID:    req.OrgID,
		ItemID:   item.ID,
		Quantity: req.Quantity,
		Segment:  segment,
		At:       at,
	}

	result := &pricingdomain.PriceResult{
		PricebookItemID:    item.ID,
		Code:               item.Code,
		Name:               item.Name,
		Quantity:           req.Quantity,
		BaseUnitPriceCents: item.BaseUnitPriceCents,
		EvaluatedAt:        at,
	}
	for _, rule := range rules {
		group, passed, err := s.evaluator.Match(ctx, rule, evalCtx)
		if err != nil {
			return nil, err
		}
		if passed {
			if result.MatchedGroups == nil {
				result.MatchedGroups = make(map[snowflake.ID]int32)
			}
			result.Candidates = append(result.Candidates, rule)
			result.MatchedGroups[rule.ID] = group
		}
	}

	var winner *pricingruledomain.Rule
	if len(result.Candidates) > 0 {
		winner = result.Candidates[0]
	}
	ApplyRule(result, winner)

	return result, nil
}

func (s *Service) Redeem(ctx context.Context, tx *gorm.DB, orgID snowflake.ID, result *pricingdomain.PriceResult) (*pricingdomain.PriceResult, error) {
	if result == nil {
		return nil, nil
	}

	counter := s.usage.WithTx(tx)
	out := *result
	for i, rule := range result.Candidates {
		ok, err := s.consume(ctx, counter, rule, result.MatchedGroups[rule.ID], orgID, result.PricebookItemID)
		if err != nil {
			return nil, err
		}
		if ok {
			s.metrics.RecordRuleRedemption(metrics.RedemptionAllowed)
			ApplyRule(&out, rule)
			out.Candidates = result.Candidates[i:]
			return &out, nil
		}

		s.metrics.RecordRuleRedemption(metrics.RedemptionExhausted)
		s.log.Info("pricing rule exhausted, repricing",
			zap.String("rule_id", rule.ID.String()),
			zap.String("org_id", orgID.String()),
			zap.String("code", result.Code),
		)
	}

	ApplyRule(&out, nil)
	out.Candidates = nil
	return &out, nil
}

// consume enforces only the max_uses of the group that matched, so a rule
// reached through an unlimited group is never capped by a sibling group.
func (s *Service) consume(ctx context.Context, counter ruleusagedomain.Service, rule *pricingruledomain.Rule, group int32, orgID, itemID snowflake.ID) (bool, error) {
	maxUses, limited := rule.MaxUses(group)
	if !limited {
		if _, err := counter.Increment(ctx, ruleusagedomain.Key{RuleID: rule.ID}); err != nil {
			return false, err
		}
		return true, nil
	}
	return counter.TryIncrement(ctx, usageKey(rule.ID, maxUses.Scope, orgID, itemID), maxUses.Limit)
}

func (s *Service) QuoteMailbox(ctx context.Context, req pricingdomain.MailboxQuoteRequest) (*pricingdomain.MailboxQuote, error) {
	if req.ExistingCount < 0 || req.NewCount < 0 {
		return nil, pricingdomain.ErrInvalidMailboxCount
	}

	total := req.ExistingCount + req.NewCount
	unit, label := VolumeTierPrice(s.billing.Get().Mailbox, total)

	return &pricingdomain.MailboxQuote{
		ExistingCount:  req.ExistingCount,
		NewCount:       req.NewCount,
		TotalCount:     total,
		TierLabel:      label,
		UnitPriceCents: unit,
		TotalCents:     unit * req.NewCount,
	}, nil
}

func (s *Service) SetOrgSegment(ctx context.Context, orgID snowflake.ID, segment string) (*pricingdomain.OrgSegment, error) {
	if orgID == 0 {
		return nil, pricingdomain.ErrInvalidOrganization
	}
	segment = strings.ToLower(strings.TrimSpace(segment))
	if segment == "" || len(segment) > 64 {
		return nil, pricingdomain.ErrInvalidSegment
	}

	row := &pricingdomain.OrgSegment{
		OrganizationID: orgID,
		Segment:        segment,
		UpdatedAt:      s.clock.Now(),
	}
	if err := s.repo.UpsertSegment(ctx, s.db, row); err != nil {
		return nil, errs.Persistence(err)
	}
	return row, nil
}

func (s *Service) GetOrgSegment(ctx context.Context, orgID snowflake.ID) (string, error) {
	if orgID == 0 {
		return "", pricingdomain.ErrInvalidOrganization
	}
	segment, err := s.repo.FindSegment(ctx, s.db, orgID)
	if err != nil {
		return "", errs.Persistence(err)
	}
	return segment, nil
}
