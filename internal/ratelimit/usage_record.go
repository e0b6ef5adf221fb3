package ratelimit

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/pricebook/internal/config"
	"go.uber.org/zap"
)

const keyUsageRecordOrg = "pricebook:usage:record:org:%s"

// UsageRecordLimiter throttles usage recording per organization. A nil
// limiter allows everything.
type UsageRecordLimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
	log    *zap.Logger
}

func NewUsageRecordLimiter(cfg config.Config, client *redis.Client, log *zap.Logger) *UsageRecordLimiter {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled || client == nil {
		return nil
	}
	if limitCfg.UsageRecordRate <= 0 || limitCfg.UsageRecordBurst <= 0 {
		log.Warn("usage record rate limit disabled: rate and burst must be positive")
		return nil
	}
	return &UsageRecordLimiter{
		bucket: NewTokenBucket(client),
		rate:   limitCfg.UsageRecordRate,
		burst:  limitCfg.UsageRecordBurst,
		log:    log.Named("ratelimit"),
	}
}

// AllowOrg fails open when Redis is unreachable.
func (l *UsageRecordLimiter) AllowOrg(ctx context.Context, orgID snowflake.ID) bool {
	if l == nil {
		return true
	}
	res, err := l.bucket.Allow(ctx, fmt.Sprintf(keyUsageRecordOrg, orgID), l.rate, l.burst)
	if err != nil {
		l.log.Warn("usage record rate limit check failed", zap.String("org_id", orgID.String()), zap.Error(err))
		return true
	}
	return res.Allowed
}
