package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/pricebook/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestInvoiceLockReleaseKeepsForeignHolder(t *testing.T) {
	ctx := context.Background()
	mr, client := newRedis(t)
	lock := NewInvoiceLock(config.Config{}, client)

	start := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0).Add(-time.Microsecond)
	key := invoiceLockKey(7, start, end)

	release, err := lock.Acquire(ctx, 7, start, end)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, mr.TTL(key))

	// lock expired and another worker took it
	require.NoError(t, mr.Set(key, "other-worker"))
	release()
	got, err := mr.Get(key)
	require.NoError(t, err)
	assert.Equal(t, "other-worker", got)
}

func TestInvoiceLock(t *testing.T) {
	ctx := context.Background()
	mr, client := newRedis(t)
	lock := NewInvoiceLock(config.Config{}, client)

	start := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 2, 28, 23, 59, 59, 0, time.UTC)

	release, err := lock.Acquire(ctx, snowflake.ID(1), start, end)
	require.NoError(t, err)

	_, err = lock.Acquire(ctx, snowflake.ID(1), start, end)
	assert.ErrorIs(t, err, ErrLockHeld)

	other, err := lock.Acquire(ctx, snowflake.ID(2), start, end)
	require.NoError(t, err)
	other()

	release()
	assert.False(t, mr.Exists("pricebook:invoice:generate:1:1769904000:1772323199"))

	var nilLock *InvoiceLock
	noop, err := nilLock.Acquire(ctx, 1, start, end)
	require.NoError(t, err)
	noop()
}

func TestUsageRecordLimiterBurst(t *testing.T) {
	ctx := context.Background()
	_, client := newRedis(t)
	cfg := config.Config{RateLimit: config.RateLimitConfig{Enabled: true, UsageRecordRate: 0.001, UsageRecordBurst: 2}}
	limiter := NewUsageRecordLimiter(cfg, client, zap.NewNop())
	require.NotNil(t, limiter)

	assert.True(t, limiter.AllowOrg(ctx, 9))
	assert.True(t, limiter.AllowOrg(ctx, 9))
	assert.False(t, limiter.AllowOrg(ctx, 9))
	assert.True(t, limiter.AllowOrg(ctx, 10))
}

func TestUsageRecordLimiterDisabled(t *testing.T) {
	_, client := newRedis(t)
	assert.Nil(t, NewUsageRecordLimiter(config.Config{}, client, zap.NewNop()))

	var limiter *UsageRecordLimiter
	assert.True(t, limiter.AllowOrg(context.Background(), 1))
}
