package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/pricebook/internal/clock"
	"github.com/smallbiznis/pricebook/internal/config"
	"github.com/smallbiznis/pricebook/internal/orgcontext"
	pricebookdomain "github.com/smallbiznis/pricebook/internal/pricebook/domain"
	pricingdomain "github.com/smallbiznis/pricebook/internal/pricing/domain"
	"github.com/smallbiznis/pricebook/internal/ratelimit"
	usagedomain "github.com/smallbiznis/pricebook/internal/usage/domain"
	"github.com/smallbiznis/pricebook/internal/usage/repository"
	"github.com/smallbiznis/pricebook/internal/usage/service"
	"github.com/smallbiznis/pricebook/pkg/db/dbtest"
	"github.com/smallbiznis/pricebook/pkg/db/pagination"
	"github.com/smallbiznis/pricebook/pkg/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	periodStart = time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	periodEnd   = time.Date(2026, 2, 28, 23, 59, 59, 0, time.UTC)
)

// pricingStub prices every known code at its base price.
type pricingStub struct {
	pricingdomain.Service
	prices map[string]int64
	quotes int
}

func (p *pricingStub) Quote(_ context.Context, req pricingdomain.QuoteRequest) (*pricingdomain.PriceResult, error) {
	p.quotes++
	price, ok := p.prices[req.Code]
	if !ok {
		return nil, pricebookdomain.ErrNotFound
	}
	return &pricingdomain.PriceResult{
		Code:                req.Code,
		Name:                req.Code,
		Quantity:            req.Quantity,
		BaseUnitPriceCents:  price,
		FinalUnitPriceCents: price,
	}, nil
}

func newService(t *testing.T, pricing pricingdomain.Service, limiter *ratelimit.UsageRecordLimiter) (usagedomain.Service, *gorm.DB) {
	t.Helper()
	db := dbtest.Open(t, &usagedomain.UsageEvent{})
	node, err := snowflake.NewNode(4)
	require.NoError(t, err)
	return service.New(service.Params{
		DB:      db,
		Log:     zap.NewNop(),
		GenID:   node,
		Clock:   clock.NewFakeClock(time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)),
		Repo:    repository.Provide(db),
		Pricing: pricing,
		Limiter: limiter,
	}), db
}

func orgCtx(id int64) context.Context {
	return orgcontext.WithOrgID(context.Background(), snowflake.ID(id))
}

func at(t time.Time) *time.Time { return &t }

func TestRecordValidation(t *testing.T) {
	svc, _ := newService(t, &pricingStub{}, nil)

	_, err := svc.Record(context.Background(), usagedomain.RecordRequest{Code: "x", Quantity: 1})
	assert.ErrorIs(t, err, usagedomain.ErrInvalidOrganization)

	_, err = svc.Record(orgCtx(1), usagedomain.RecordRequest{Code: "  ", Quantity: 1})
	assert.ErrorIs(t, err, usagedomain.ErrInvalidCode)

	_, err = svc.Record(orgCtx(1), usagedomain.RecordRequest{Code: "x", Quantity: 0})
	assert.ErrorIs(t, err, usagedomain.ErrInvalidQuantity)
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestRecordIsIdempotent(t *testing.T) {
	svc, db := newService(t, &pricingStub{}, nil)
	ctx := orgCtx(1)

	first, err := svc.Record(ctx, usagedomain.RecordRequest{
		Code:           "mailbox_created",
		Quantity:       2,
		EffectiveAt:    at(periodStart),
		RelatedIDs:     map[string]any{"mailbox_id": "mb_1"},
		IdempotencyKey: "evt-1",
	})
	require.NoError(t, err)

	again, err := svc.Record(ctx, usagedomain.RecordRequest{Code: "mailbox_created", Quantity: 9, IdempotencyKey: " evt-1 "})
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, int64(2), again.Quantity)

	// Same key under another organization is a different event.
	other, err := svc.Record(orgCtx(2), usagedomain.RecordRequest{Code: "mailbox_created", Quantity: 1, IdempotencyKey: "evt-1"})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID)

	// Events without a key never collide.
	_, err = svc.Record(ctx, usagedomain.RecordRequest{Code: "mailbox_created", Quantity: 1})
	require.NoError(t, err)
	_, err = svc.Record(ctx, usagedomain.RecordRequest{Code: "mailbox_created", Quantity: 1})
	require.NoError(t, err)

	var count int64
	require.NoError(t, db.Model(&usagedomain.UsageEvent{}).Count(&count).Error)
	assert.Equal(t, int64(4), count)
}

func TestRecordRateLimited(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	limiter := ratelimit.NewUsageRecordLimiter(config.Config{RateLimit: config.RateLimitConfig{
		Enabled: true, UsageRecordRate: 0.001, UsageRecordBurst: 1,
	}}, client, zap.NewNop())

	svc, _ := newService(t, &pricingStub{}, limiter)
	ctx := orgCtx(1)

	_, err := svc.Record(ctx, usagedomain.RecordRequest{Code: "api_call", Quantity: 1, IdempotencyKey: "a"})
	require.NoError(t, err)

	_, err = svc.Record(ctx, usagedomain.RecordRequest{Code: "api_call", Quantity: 1, IdempotencyKey: "b"})
	assert.ErrorIs(t, err, usagedomain.ErrRateLimited)

	// Replays are answered from the store without spending a token.
	_, err = svc.Record(ctx, usagedomain.RecordRequest{Code: "api_call", Quantity: 1, IdempotencyKey: "a"})
	assert.NoError(t, err)
}

func TestListPaginates(t *testing.T) {
	svc, _ := newService(t, &pricingStub{}, nil)
	ctx := orgCtx(1)
	for i := 0; i < 5; i++ {
		_, err := svc.Record(ctx, usagedomain.RecordRequest{Code: "api_call", Quantity: 1, EffectiveAt: at(periodStart.Add(time.Duration(i) * time.Hour))})
		require.NoError(t, err)
	}
	_, err := svc.Record(orgCtx(2), usagedomain.RecordRequest{Code: "api_call", Quantity: 1})
	require.NoError(t, err)

	first, err := svc.List(ctx, usagedomain.ListRequest{Pagination: pagination.Pagination{PageSize: 3}})
	require.NoError(t, err)
	require.Len(t, first.Events, 3)
	assert.True(t, first.HasMore)

	second, err := svc.List(ctx, usagedomain.ListRequest{Pagination: pagination.Pagination{PageSize: 3, PageToken: first.NextPageToken}})
	require.NoError(t, err)
	require.Len(t, second.Events, 2)
	assert.False(t, second.HasMore)
	assert.Greater(t, int64(second.Events[0].ID), int64(first.Events[2].ID))

	ranged, err := svc.List(ctx, usagedomain.ListRequest{Start: at(periodStart.Add(time.Hour)), End: at(periodStart.Add(3 * time.Hour))})
	require.NoError(t, err)
	assert.Len(t, ranged.Events, 3)

	_, err = svc.List(ctx, usagedomain.ListRequest{Pagination: pagination.Pagination{PageToken: "not-a-token"}})
	assert.ErrorIs(t, err, usagedomain.ErrInvalidPageToken)
}

func TestSummarizeSumsPerCodeInsideClosedPeriod(t *testing.T) {
	pricing := &pricingStub{prices: map[string]int64{"mailbox_created": 350, "domain_registered": 1200}}
	svc, _ := newService(t, pricing, nil)
	ctx := orgCtx(1)

	events := []usagedomain.RecordRequest{
		{Code: "mailbox_created", Quantity: 2, EffectiveAt: at(periodStart)},
		{Code: "mailbox_created", Quantity: 3, EffectiveAt: at(periodEnd)},
		{Code: "mailbox_created", Quantity: 7, EffectiveAt: at(periodEnd.Add(time.Second))},
		{Code: "mailbox_created", Quantity: 11, EffectiveAt: at(periodStart.Add(-time.Second))},
		{Code: "domain_registered", Quantity: 1, EffectiveAt: at(periodStart.Add(48 * time.Hour))},
		{Code: "retired_code", Quantity: 4, EffectiveAt: at(periodStart.Add(time.Hour))},
	}
	for _, ev := range events {
		_, err := svc.Record(ctx, ev)
		require.NoError(t, err)
	}
	_, err := svc.Record(orgCtx(2), usagedomain.RecordRequest{Code: "mailbox_created", Quantity: 100, EffectiveAt: at(periodStart)})
	require.NoError(t, err)

	summary, err := svc.Summarize(context.Background(), 1, periodStart, periodEnd)
	require.NoError(t, err)
	require.Len(t, summary.Items, 2)

	assert.Equal(t, "domain_registered", summary.Items[0].Code)
	assert.Equal(t, int64(1), summary.Items[0].Quantity)
	assert.Equal(t, "mailbox_created", summary.Items[1].Code)
	assert.Equal(t, int64(5), summary.Items[1].Quantity)
	assert.Equal(t, int64(1750), summary.Items[1].TotalCents)
	assert.Equal(t, int64(1200+1750), summary.TotalCents)
	assert.Equal(t, 3, pricing.quotes)

	orgs, err := svc.OrganizationsWithUsage(context.Background(), periodStart, periodEnd)
	require.NoError(t, err)
	assert.Equal(t, []snowflake.ID{1, 2}, orgs)
}

func TestSummarizeRejectsInvertedPeriod(t *testing.T) {
	svc, _ := newService(t, &pricingStub{}, nil)
	_, err := svc.Summarize(context.Background(), 1, periodEnd, periodStart)
	assert.ErrorIs(t, err, usagedomain.ErrInvalidPeriod)
}
