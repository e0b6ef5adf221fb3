package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/pricebook/internal/cache"
	"github.com/smallbiznis/pricebook/internal/clock"
	pricebookdomain "github.com/smallbiznis/pricebook/internal/pricebook/domain"
	"github.com/smallbiznis/pricebook/internal/pricebook/repository"
	"github.com/smallbiznis/pricebook/internal/pricebook/service"
	"github.com/smallbiznis/pricebook/pkg/db/dbtest"
	"github.com/smallbiznis/pricebook/pkg/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newService(t *testing.T, itemCache pricebookdomain.ItemCache) (pricebookdomain.Service, *gorm.DB) {
	t.Helper()
	db := dbtest.Open(t, &pricebookdomain.Item{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := service.New(service.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.NewFakeClock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)),
		Repo:  repository.Provide(db),
		Cache: itemCache,
	})
	return svc, db
}

func TestCreateAndGetByCode(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, nil)

	created, err := svc.Create(ctx, pricebookdomain.CreateRequest{
		Code:               "mailbox_created",
		Name:               "Mailbox",
		BaseUnitPriceCents: 350,
		BillingStrategy:    pricebookdomain.PerEvent,
		Metadata:           map[string]any{"unit": "mailbox"},
	})
	require.NoError(t, err)
	assert.True(t, created.Active)

	found, err := svc.GetByCode(ctx, "mailbox_created")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)
	assert.Equal(t, "mailbox", found.Metadata["unit"])

	_, err = svc.Create(ctx, pricebookdomain.CreateRequest{
		Code:               "mailbox_created",
		Name:               "Dup",
		BaseUnitPriceCents: 100,
		BillingStrategy:    pricebookdomain.PerEvent,
	})
	assert.ErrorIs(t, err, pricebookdomain.ErrCodeAlreadyExists)
}

func TestCreateValidation(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, nil)
	zero := int32(0)

	cases := []struct {
		name string
		req  pricebookdomain.CreateRequest
		want error
	}{
		{"empty code", pricebookdomain.CreateRequest{Name: "x", BillingStrategy: pricebookdomain.PerEvent}, pricebookdomain.ErrInvalidCode},
		{"negative price", pricebookdomain.CreateRequest{Code: "a", Name: "x", BaseUnitPriceCents: -1, BillingStrategy: pricebookdomain.PerEvent}, pricebookdomain.ErrInvalidPrice},
		{"bad strategy", pricebookdomain.CreateRequest{Code: "a", Name: "x", BillingStrategy: "weekly"}, pricebookdomain.ErrInvalidBillingStrategy},
		{"zero period", pricebookdomain.CreateRequest{Code: "a", Name: "x", BillingStrategy: pricebookdomain.MonthlyRecurring, BillingPeriodMonths: &zero}, pricebookdomain.ErrInvalidBillingPeriod},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tc.req)
			assert.ErrorIs(t, err, tc.want)
			assert.True(t, errors.Is(err, errs.ErrValidation))
		})
	}
}

func TestGetUnknownReturnsNotFound(t *testing.T) {
	svc, _ := newService(t, nil)

	_, err := svc.GetByCode(context.Background(), "nope")
	assert.ErrorIs(t, err, errs.ErrNotFound)

	_, err = svc.Get(context.Background(), "123")
	assert.ErrorIs(t, err, pricebookdomain.ErrNotFound)

	_, err = svc.Get(context.Background(), "abc")
	assert.ErrorIs(t, err, pricebookdomain.ErrInvalidID)
}

func TestUpdateInvalidatesCacheAndDeactivate(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	svc, _ := newService(t, cache.NewPricebookItemCache(client, zap.NewNop()))

	created, err := svc.Create(ctx, pricebookdomain.CreateRequest{
		Code:               "domain_added",
		Name:               "Domain",
		BaseUnitPriceCents: 1000,
		BillingStrategy:    pricebookdomain.MonthlyRecurring,
	})
	require.NoError(t, err)

	_, err = svc.GetByCode(ctx, "domain_added")
	require.NoError(t, err)
	assert.True(t, mr.Exists("pricebook:item:code:domain_added"))

	price := int64(1200)
	updated, err := svc.Update(ctx, created.ID.String(), pricebookdomain.UpdateRequest{BaseUnitPriceCents: &price})
	require.NoError(t, err)
	assert.Equal(t, int64(1200), updated.BaseUnitPriceCents)
	assert.False(t, mr.Exists("pricebook:item:code:domain_added"))

	found, err := svc.GetByCode(ctx, "domain_added")
	require.NoError(t, err)
	assert.Equal(t, int64(1200), found.BaseUnitPriceCents)

	_, err = svc.Deactivate(ctx, created.ID.String())
	require.NoError(t, err)

	active, err := svc.List(ctx, pricebookdomain.ListRequest{ActiveOnly: true})
	require.NoError(t, err)
	assert.Empty(t, active)

	all, err := svc.List(ctx, pricebookdomain.ListRequest{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.False(t, all[0].Active)

	_, err = svc.GetByCode(ctx, "domain_added")
	assert.ErrorIs(t, err, pricebookdomain.ErrNotFound)
	assert.False(t, mr.Exists("pricebook:item:code:domain_added"))
}

func TestGetByCodeIsCaseSensitiveThroughCache(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	svc, _ := newService(t, cache.NewPricebookItemCache(client, zap.NewNop()))

	for code, price := range map[string]int64{"SMS": 100, "sms": 7} {
		_, err := svc.Create(ctx, pricebookdomain.CreateRequest{
			Code:               code,
			Name:               code,
			BaseUnitPriceCents: price,
			BillingStrategy:    pricebookdomain.PerEvent,
		})
		require.NoError(t, err)
	}

	// first pass fills the cache, second pass reads from it
	for i := 0; i < 2; i++ {
		upper, err := svc.GetByCode(ctx, "SMS")
		require.NoError(t, err)
		assert.Equal(t, int64(100), upper.BaseUnitPriceCents)

		lower, err := svc.GetByCode(ctx, "sms")
		require.NoError(t, err)
		assert.Equal(t, int64(7), lower.BaseUnitPriceCents)
	}
}
