package rates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"github.com/ruralpay/remittance/internal/models"
)

type Provider interface {
	CurrentRate(ctx context.Context, tenantID, from, to string) (models.Rate, error)
}

// CachedProvider keeps recently served rates in Redis. Cache failures fall
// through to the wrapped provider.
type CachedProvider struct {
	next  Provider
	redis *redis.Client
	ttl   time.Duration
	log   zerolog.Logger
}

func NewCachedProvider(next Provider, client *redis.Client, ttl time.Duration, log zerolog.Logger) *CachedProvider {
	return &CachedProvider{next: next, redis: client, ttl: ttl, log: log}
}

func cacheKey(tenantID, from, to string) string {
	return fmt.Sprintf("rate:%s:%s:%s", tenantID, strings.ToUpper(from), strings.ToUpper(to))
}

func (c *CachedProvider) CurrentRate(ctx context.Context, tenantID, from, to string) (models.Rate, error) {
	key := cacheKey(tenantID, from, to)

	data, err := c.redis.Get(ctx, key).Result()
	switch {
	case err == nil:
		var rate models.Rate
		if jsonErr := json.Unmarshal([]byte(data), &rate); jsonErr == nil {
			return rate, nil
		}
		c.log.Warn().Str("key", key).Msg("discarding undecodable cached rate")
	case !errors.Is(err, redis.Nil):
		c.log.Warn().Err(err).Str("key", key).Msg("rate cache read failed")
	}

	rate, err := c.next.CurrentRate(ctx, tenantID, from, to)
	if err != nil {
		return models.Rate{}, err
	}

	encoded, err := json.Marshal(rate)
	if err != nil {
		return rate, nil
	}
	if err := c.redis.Set(ctx, key, string(encoded), c.ttl).Err(); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("rate cache write failed")
	}
	return rate, nil
}
