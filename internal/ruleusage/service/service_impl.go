package service

import (
	"context"

	"github.com/smallbiznis/pricebook/internal/clock"
	ruleusagedomain "github.com/smallbiznis/pricebook/internal/ruleusage/domain"
	"github.com/smallbiznis/pricebook/pkg/errs"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
	Repo  ruleusagedomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
	repo  ruleusagedomain.Repository
}

func New(p Params) ruleusagedomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("ruleusage.service"),
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) WithTx(tx *gorm.DB) ruleusagedomain.Service {
	if tx == nil {
		return s
	}
	clone := *s
	clone.db = tx
	return &clone
}

func (s *Service) Get(ctx context.Context, key ruleusagedomain.Key) (int64, error) {
	count, err := s.repo.Get(ctx, s.db, key)
	if err != nil {
		return 0, errs.Persistence(err)
	}
	return count, nil
}

func (s *Service) Increment(ctx context.Context, key ruleusagedomain.Key) (int64, error) {
	count, err := s.repo.Increment(ctx, s.db, key, s.clock.Now())
	if err != nil {
		return 0, errs.Persistence(err)
	}
	return count, nil
}

func (s *Service) TryIncrement(ctx context.Context, key ruleusagedomain.Key, limit int64) (bool, error) {
	count, ok, err := s.repo.IncrementBelow(ctx, s.db, key, limit, s.clock.Now())
	if err != nil {
		return false, errs.Persistence(err)
	}
	if !ok {
		s.log.Debug("rule usage limit reached",
			zap.String("rule_id", key.RuleID.String()),
			zap.String("scope_key", key.ScopeKey()),
			zap.Int64("limit", limit),
		)
		return false, nil
	}
	s.log.Debug("rule usage incremented",
		zap.String("rule_id", key.RuleID.String()),
		zap.String("scope_key", key.ScopeKey()),
		zap.Int64("usage_count", count),
	)
	return true, nil
}
