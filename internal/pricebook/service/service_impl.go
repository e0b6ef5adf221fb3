package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pricebook/internal/clock"
	pricebookdomain "github.com/smallbiznis/pricebook/internal/pricebook/domain"
	"github.com/smallbiznis/pricebook/pkg/db"
	"github.com/smallbiznis/pricebook/pkg/errs"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  pricebookdomain.Repository
	Cache pricebookdomain.ItemCache `optional:"true"`
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  pricebookdomain.Repository
	cache pricebookdomain.ItemCache
}

func New(p Params) pricebookdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("pricebook.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
		cache: p.Cache,
	}
}

func (s *Service) Create(ctx context.Context, req pricebookdomain.CreateRequest) (*pricebookdomain.Item, error) {
	code := strings.TrimSpace(req.Code)
	if code == "" {
		return nil, pricebookdomain.ErrInvalidCode
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, pricebookdomain.ErrInvalidName
	}
	if err := validatePricing(req.BaseUnitPriceCents, req.BillingStrategy, req.BillingPeriodMonths); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	item := &pricebookdomain.Item{
		ID:                  s.genID.Generate(),
		Code:                code,
		Name:                name,
		Description:         strings.TrimSpace(req.Description),
		BaseUnitPriceCents:  req.BaseUnitPriceCents,
		BillingStrategy:     req.BillingStrategy,
		BillingPeriodMonths: req.BillingPeriodMonths,
		Active:              true,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if req.Metadata != nil {
		item.Metadata = datatypes.JSONMap(req.Metadata)
	}

	if err := s.repo.Insert(ctx, s.db, item); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, pricebookdomain.ErrCodeAlreadyExists
		}
		return nil, errs.Persistence(err)
	}

	s.log.Info("pricebook item created", zap.String("code", item.Code), zap.String("item_id", item.ID.String()))
	return item, nil
}

func (s *Service) Get(ctx context.Context, id string) (*pricebookdomain.Item, error) {
	itemID, err := parseID(id)
	if err != nil {
		return nil, err
	}
	return s.findByID(ctx, itemID)
}

func (s *Service) GetByCode(ctx context.Context, code string) (*pricebookdomain.Item, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, pricebookdomain.ErrInvalidCode
	}

	if s.cache != nil {
		if item, ok := s.cache.Get(ctx, code); ok && item.Active && item.Code == code {
			return item, nil
		}
	}

	item, err := s.repo.FindByCode(ctx, s.db, code)
	if err != nil {
		return nil, errs.Persistence(err)
	}
	if item == nil {
		return nil, pricebookdomain.ErrNotFound
	}

	if s.cache != nil && item.Active {
		s.cache.Set(ctx, item)
	}
	return item, nil
}

func (s *Service) List(ctx context.Context, req pricebookdomain.ListRequest) ([]*pricebookdomain.Item, error) {
	items, err := s.repo.List(ctx, s.db, req.ActiveOnly)
	if err != nil {
		return nil, errs.Persistence(err)
	}
	return items, nil
}

func (s *Service) Update(ctx context.Context, id string, req pricebookdomain.UpdateRequest) (*pricebookdomain.Item, error) {
	itemID, err := parseID(id)
	if err != nil {
		return nil, err
	}
	item, err := s.findByID(ctx, itemID)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, pricebookdomain.ErrInvalidName
		}
		item.Name = name
	}
	if req.Description != nil {
		item.Description = strings.TrimSpace(*req.Description)
	}
	if req.BaseUnitPriceCents != nil {
		item.BaseUnitPriceCents = *req.BaseUnitPriceCents
	}
	if req.BillingStrategy != nil {
		item.BillingStrategy = *req.BillingStrategy
	}
	if req.BillingPeriodMonths != nil {
		item.BillingPeriodMonths = req.BillingPeriodMonths
	}
	if req.Metadata != nil {
		item.Metadata = datatypes.JSONMap(req.Metadata)
	}
	if req.Active != nil {
		item.Active = *req.Active
	}
	if err := validatePricing(item.BaseUnitPriceCents, item.BillingStrategy, item.BillingPeriodMonths); err != nil {
		return nil, err
	}

	return s.save(ctx, item)
}

func (s *Service) Deactivate(ctx context.Context, id string) (*pricebookdomain.Item, error) {
	active := false
	return s.Update(ctx, id, pricebookdomain.UpdateRequest{Active: &active})
}

func (s *Service) save(ctx context.Context, item *pricebookdomain.Item) (*pricebookdomain.Item, error) {
	item.UpdatedAt = s.clock.Now()
	if err := s.repo.Update(ctx, s.db, item); err != nil {
		return nil, errs.Persistence(err)
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx, item.Code)
	}
	s.log.Info("pricebook item updated",
		zap.String("code", item.Code),
		zap.Int64("base_unit_price_cents", item.BaseUnitPriceCents),
		zap.Bool("active", item.Active),
	)
	return item, nil
}

func (s *Service) findByID(ctx context.Context, id snowflake.ID) (*pricebookdomain.Item, error) {
	item, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, errs.Persistence(err)
	}
	if item == nil {
		return nil, pricebookdomain.ErrNotFound
	}
	return item, nil
}

func validatePricing(price int64, strategy pricebookdomain.BillingStrategy, periodMonths *int32) error {
	if price < 0 {
		return pricebookdomain.ErrInvalidPrice
	}
	if !strategy.Valid() {
		return pricebookdomain.ErrInvalidBillingStrategy
	}
	if periodMonths != nil && *periodMonths <= 0 {
		return pricebookdomain.ErrInvalidBillingPeriod
	}
	return nil
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, pricebookdomain.ErrInvalidID
	}
	return id, nil
}
