package service_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/smallbiznis/pricebook/internal/clock"
	ruleusagedomain "github.com/smallbiznis/pricebook/internal/ruleusage/domain"
	"github.com/smallbiznis/pricebook/internal/ruleusage/repository"
	"github.com/smallbiznis/pricebook/internal/ruleusage/service"
	"github.com/smallbiznis/pricebook/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newService(t *testing.T) (ruleusagedomain.Service, *gorm.DB) {
	t.Helper()
	db := dbtest.Open(t, &ruleusagedomain.Counter{})
	return service.New(service.Params{
		DB:    db,
		Log:   zap.NewNop(),
		Clock: clock.NewFakeClock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)),
		Repo:  repository.Provide(),
	}), db
}

func TestScopeKey(t *testing.T) {
	cases := []struct {
		key  ruleusagedomain.Key
		want string
	}{
		{ruleusagedomain.Key{RuleID: 1}, "global"},
		{ruleusagedomain.Key{RuleID: 1, OrgID: 7}, "org:7"},
		{ruleusagedomain.Key{RuleID: 1, ItemID: 9}, "item:9"},
		{ruleusagedomain.Key{RuleID: 1, OrgID: 7, ItemID: 9}, "org:7|item:9"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.key.ScopeKey())
	}
}

func TestGetMissingCounterIsZero(t *testing.T) {
	svc, _ := newService(t)
	count, err := svc.Get(context.Background(), ruleusagedomain.Key{RuleID: 42})
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestIncrementIsMonotonic(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	key := ruleusagedomain.Key{RuleID: 1, OrgID: 5}

	for i := int64(1); i <= 3; i++ {
		count, err := svc.Increment(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, i, count)
	}

	other, err := svc.Get(ctx, ruleusagedomain.Key{RuleID: 1, OrgID: 6})
	require.NoError(t, err)
	assert.Zero(t, other)
}

func TestTryIncrementStopsAtLimit(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	key := ruleusagedomain.Key{RuleID: 3}

	for i := 0; i < 2; i++ {
		ok, err := svc.TryIncrement(ctx, key, 2)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := svc.TryIncrement(ctx, key, 2)
	require.NoError(t, err)
	assert.False(t, ok)

	count, err := svc.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestTryIncrementConcurrentNeverExceedsLimit(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	key := ruleusagedomain.Key{RuleID: 4, OrgID: 1}

	var (
		wg      sync.WaitGroup
		granted atomic.Int64
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := svc.TryIncrement(ctx, key, 3)
			if err == nil && ok {
				granted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(3), granted.Load())
	count, err := svc.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestTryIncrementRollsBackWithTransaction(t *testing.T) {
	ctx := context.Background()
	svc, db := newService(t)
	key := ruleusagedomain.Key{RuleID: 5}

	err := db.Transaction(func(tx *gorm.DB) error {
		ok, err := svc.WithTx(tx).TryIncrement(ctx, key, 1)
		require.NoError(t, err)
		require.True(t, ok)
		return gorm.ErrInvalidTransaction
	})
	require.Error(t, err)

	count, err := svc.Get(ctx, key)
	require.NoError(t, err)
	assert.Zero(t, count)
}
