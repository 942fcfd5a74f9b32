package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"workforce-billing/internal/domain/model"
	"workforce-billing/internal/domain/ports/repository"
	"workforce-billing/internal/infra/metrics"
	"workforce-billing/internal/infra/redis"
)

var _ repository.PlanRepository = (*PlanRepoCache)(nil)

// PlanRepoCache decorates a PlanRepository with a Redis read-through cache.
// Plans change rarely, so a TTL is enough; there is no write path to
// invalidate through this service.
type PlanRepoCache struct {
	inner repository.PlanRepository
	cache redis.RedisClient
	ttl   time.Duration
	log   *zerolog.Logger
}

func NewPlanRepoCache(inner repository.PlanRepository, cache redis.RedisClient, ttl time.Duration, log *zerolog.Logger) *PlanRepoCache {
	return &PlanRepoCache{inner: inner, cache: cache, ttl: ttl, log: log}
}

func planKey(code model.PlanCode) string { return "plan:" + string(code) }

const planListKey = "plan:all"

func (c *PlanRepoCache) FindByCode(ctx context.Context, tx repository.Tx, code model.PlanCode) (*model.Plan, error) {
	// Bypass the cache inside a transaction: the caller wants row-level truth.
	if tx != nil {
		return c.inner.FindByCode(ctx, tx, code)
	}

	if raw, err := c.cache.Get(ctx, planKey(code)); err == nil {
		var p model.Plan
		if err := json.Unmarshal([]byte(raw), &p); err == nil {
			metrics.IncCacheRequest("plan", "hit")
			return &p, nil
		}
	}
	metrics.IncCacheRequest("plan", "miss")

	p, err := c.inner.FindByCode(ctx, tx, code)
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(p); err == nil {
		if err := c.cache.Set(ctx, planKey(code), string(b), c.ttl); err != nil {
			c.log.Warn().Err(err).Str("plan", string(code)).Msg("plan cache set failed")
		}
	}
	return p, nil
}

func (c *PlanRepoCache) ListAll(ctx context.Context, tx repository.Tx) ([]*model.Plan, error) {
	if tx != nil {
		return c.inner.ListAll(ctx, tx)
	}

	if raw, err := c.cache.Get(ctx, planListKey); err == nil {
		var plans []*model.Plan
		if err := json.Unmarshal([]byte(raw), &plans); err == nil {
			metrics.IncCacheRequest("plan", "hit")
			return plans, nil
		}
	}
	metrics.IncCacheRequest("plan", "miss")

	plans, err := c.inner.ListAll(ctx, tx)
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(plans); err == nil {
		if err := c.cache.Set(ctx, planListKey, string(b), c.ttl); err != nil {
			c.log.Warn().Err(err).Msg("plan cache set failed")
		}
	}
	return plans, nil
}

// Invalidate drops the cached plan entries; used by operational tooling after
// editing the plans table directly.
func (c *PlanRepoCache) Invalidate(ctx context.Context, codes ...model.PlanCode) error {
	keys := []string{planListKey}
	for _, code := range codes {
		keys = append(keys, planKey(code))
	}
	return c.cache.Del(ctx, keys...)
}
