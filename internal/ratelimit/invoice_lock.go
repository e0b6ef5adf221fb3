package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/pricebook/internal/config"
)

const keyInvoiceGenerate = "pricebook:invoice:generate:%s:%d:%d"

// Deletes the key only while it still holds our token, so an expired lock
// taken over by another worker is left alone.
var releaseInvoiceLock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

var ErrLockHeld = errors.New("lock held by another worker")

// InvoiceLock serializes invoice generation per (org, period) across
// instances. A nil InvoiceLock is a no-op.
type InvoiceLock struct {
	client *redis.Client
	ttl    time.Duration
}

func NewInvoiceLock(cfg config.Config, client *redis.Client) *InvoiceLock {
	if client == nil {
		return nil
	}
	ttl := cfg.RateLimit.InvoiceLockTTL
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &InvoiceLock{client: client, ttl: ttl}
}

// Acquire returns a release func, or ErrLockHeld when another holder has it.
func (l *InvoiceLock) Acquire(ctx context.Context, orgID snowflake.ID, start, end time.Time) (func(), error) {
	if l == nil {
		return func() {}, nil
	}

	key := invoiceLockKey(orgID, start, end)
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLockHeld
	}
	return func() {
		_ = releaseInvoiceLock.Run(context.WithoutCancel(ctx), l.client, []string{key}, token).Err()
	}, nil
}

func invoiceLockKey(orgID snowflake.ID, start, end time.Time) string {
	return fmt.Sprintf(keyInvoiceGenerate, orgID, start.UTC().Unix(), end.UTC().Unix())
}
