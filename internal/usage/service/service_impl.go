package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pricebook/internal/clock"
	"github.com/smallbiznis/pricebook/internal/orgcontext"
	pricebookdomain "github.com/smallbiznis/pricebook/internal/pricebook/domain"
	pricingdomain "github.com/smallbiznis/pricebook/internal/pricing/domain"
	"github.com/smallbiznis/pricebook/internal/ratelimit"
	usagedomain "github.com/smallbiznis/pricebook/internal/usage/domain"
	"github.com/smallbiznis/pricebook/pkg/db/pagination"
	"github.com/smallbiznis/pricebook/pkg/errs"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	maxCodeLength           = 128
	maxIdempotencyKeyLength = 255
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    usagedomain.Repository
	Pricing pricingdomain.Service
	Limiter *ratelimit.UsageRecordLimiter `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	repo    usagedomain.Repository
	pricing pricingdomain.Service
	limiter *ratelimit.UsageRecordLimiter
}

func New(p Params) usagedomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("usage.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		pricing: p.Pricing,
		limiter: p.Limiter,
	}
}

func (s *Service) Record(ctx context.Context, req usagedomain.RecordRequest) (*usagedomain.UsageEvent, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, usagedomain.ErrInvalidOrganization
	}

	code := strings.TrimSpace(req.Code)
	if code == "" || len(code) > maxCodeLength {
		return nil, usagedomain.ErrInvalidCode
	}
	if req.Quantity < 1 {
		return nil, usagedomain.ErrInvalidQuantity
	}

	idempotencyKey := strings.TrimSpace(req.IdempotencyKey)
	if len(idempotencyKey) > maxIdempotencyKeyLength {
		return nil, usagedomain.ErrInvalidIdempotencyKey
	}

	if idempotencyKey != "" {
		existing, err := s.repo.FindByIdempotencyKey(ctx, s.db, orgID, idempotencyKey)
		if err != nil {
			return nil, errs.Persistence(err)
		}
		if existing != nil {
			return existing, nil
		}
	}

	if !s.limiter.AllowOrg(ctx, orgID) {
		return nil, usagedomain.ErrRateLimited
	}

	now := s.clock.Now()
	effectiveAt := now
	if req.EffectiveAt != nil && !req.EffectiveAt.IsZero() {
		effectiveAt = req.EffectiveAt.UTC()
	}

	event := &usagedomain.UsageEvent{
		ID:             s.genID.Generate(),
		OrganizationID: orgID,
		Code:           code,
		Quantity:       req.Quantity,
		EffectiveAt:    effectiveAt,
		CreatedAt:      now,
	}
	if idempotencyKey != "" {
		event.IdempotencyKey = &idempotencyKey
	}
	if len(req.RelatedIDs) > 0 {
		raw, err := json.Marshal(req.RelatedIDs)
		if err != nil {
			return nil, errs.Wrap(errs.KindValidation, "invalid_related_ids", err)
		}
		event.RelatedIDs = datatypes.JSON(raw)
	}

	inserted, err := s.repo.Insert(ctx, s.db, event)
	if err != nil {
		return nil, errs.Persistence(err)
	}
	if !inserted && idempotencyKey != "" {
		existing, err := s.repo.FindByIdempotencyKey(ctx, s.db, orgID, idempotencyKey)
		if err != nil {
			return nil, errs.Persistence(err)
		}
		if existing != nil {
			return existing, nil
		}
	}

	s.log.Debug("usage recorded",
		zap.String("org_id", orgID.String()),
		zap.String("code", code),
		zap.Int64("quantity", req.Quantity),
	)
	return event, nil
}

func (s *Service) List(ctx context.Context, req usagedomain.ListRequest) (usagedomain.ListResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return usagedomain.ListResponse{}, usagedomain.ErrInvalidOrganization
	}

	events, err := s.repo.List(ctx, s.db, usagedomain.ListFilter{
		OrganizationID: orgID,
		Code:           strings.TrimSpace(req.Code),
		Start:          req.Start,
		End:            req.End,
		Page:           req.Pagination,
	})
	if err != nil {
		if errors.Is(err, pagination.ErrInvalidPageToken) {
			return usagedomain.ListResponse{}, usagedomain.ErrInvalidPageToken
		}
		return usagedomain.ListResponse{}, errs.Persistence(err)
	}

	page, info := pagination.BuildCursorPageInfo(events, req.Size(), func(e *usagedomain.UsageEvent) string {
		return e.ID.String()
	})
	return usagedomain.ListResponse{PageInfo: info, Events: page}, nil
}

func (s *Service) Summarize(ctx context.Context, orgID snowflake.ID, start, end time.Time) (*usagedomain.UsageSummary, error) {
	if orgID == 0 {
		return nil, usagedomain.ErrInvalidOrganization
	}
	if start.IsZero() || end.IsZero() || end.Before(start) {
		return nil, usagedomain.ErrInvalidPeriod
	}

	totals, err := s.repo.SumByCode(ctx, s.db, orgID, start, end)
	if err != nil {
		return nil, errs.Persistence(err)
	}

	summary := &usagedomain.UsageSummary{
		OrganizationID: orgID,
		PeriodStart:    start.UTC(),
		PeriodEnd:      end.UTC(),
		Items:          make([]usagedomain.UsageSummaryItem, 0, len(totals)),
	}
	for _, row := range totals {
		price, err := s.pricing.Quote(ctx, pricingdomain.QuoteRequest{
			OrgID:    orgID,
			Code:     row.Code,
			Quantity: row.Quantity,
		})
		if err != nil {
			if errors.Is(err, pricebookdomain.ErrNotFound) {
				s.log.Debug("skipping usage for unknown code",
					zap.String("org_id", orgID.String()),
					zap.String("code", row.Code),
					zap.Int64("quantity", row.Quantity),
				)
				continue
			}
			return nil, err
		}

		item := usagedomain.NewSummaryItem(price)
		summary.Items = append(summary.Items, item)
		summary.TotalCents += item.TotalCents
	}

	return summary, nil
}

func (s *Service) OrganizationsWithUsage(ctx context.Context, start, end time.Time) ([]snowflake.ID, error) {
	if start.IsZero() || end.IsZero() || end.Before(start) {
		return nil, usagedomain.ErrInvalidPeriod
	}
	ids, err := s.repo.ListOrganizations(ctx, s.db, start, end)
	if err != nil {
		return nil, errs.Persistence(err)
	}
	return ids, nil
}
