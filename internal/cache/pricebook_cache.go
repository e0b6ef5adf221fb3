package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	pricebookdomain "github.com/smallbiznis/pricebook/internal/pricebook/domain"
	"go.uber.org/zap"
)

const (
	defaultItemTTL     = 10 * time.Minute
	keyPricebookByCode = "pricebook:item:code:"
)

// PricebookItemCache stores catalog items in Redis keyed by code.
// Redis failures degrade to cache misses.
type PricebookItemCache struct {
	client *redis.Client
	ttl    time.Duration
	log    *zap.Logger
}

func NewPricebookItemCache(client *redis.Client, log *zap.Logger) pricebookdomain.ItemCache {
	if client == nil {
		return nil
	}
	return &PricebookItemCache{
		client: client,
		ttl:    defaultItemTTL,
		log:    log.Named("cache.pricebook"),
	}
}

func (c *PricebookItemCache) Get(ctx context.Context, code string) (*pricebookdomain.Item, bool) {
	if c == nil {
		return nil, false
	}
	raw, err := c.client.Get(ctx, cacheKey(code)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("pricebook cache read failed", zap.String("code", code), zap.Error(err))
		}
		return nil, false
	}

	var item pricebookdomain.Item
	if err := json.Unmarshal(raw, &item); err != nil {
		c.log.Warn("pricebook cache entry corrupt", zap.String("code", code), zap.Error(err))
		return nil, false
	}
	return &item, true
}

func (c *PricebookItemCache) Set(ctx context.Context, item *pricebookdomain.Item) {
	if c == nil || item == nil {
		return
	}
	raw, err := json.Marshal(item)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, cacheKey(item.Code), raw, c.ttl).Err(); err != nil {
		c.log.Warn("pricebook cache write failed", zap.String("code", item.Code), zap.Error(err))
	}
}

func (c *PricebookItemCache) Invalidate(ctx context.Context, code string) {
	if c == nil {
		return
	}
	if err := c.client.Del(ctx, cacheKey(code)).Err(); err != nil {
		c.log.Warn("pricebook cache invalidate failed", zap.String("code", code), zap.Error(err))
	}
}

// Codes are case sensitive, so the key keeps the code as stored.
func cacheKey(code string) string {
	return keyPricebookByCode + strings.TrimSpace(code)
}
