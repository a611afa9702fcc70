package pricing

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"github.com/Priveetee/priceyy/internal/catalog"
)

// PriceCacheTTL bounds how long a computed price is served without a
// catalog comparison refreshing it.
const PriceCacheTTL = 8 * time.Hour

// PriceCache is the advisory hot cache in front of the catalog. It only
// reduces lookup cost; the catalog/override chain stays authoritative.
type PriceCache interface {
	Get(ctx context.Context, key catalog.PriceKey) (float64, bool)
	Set(ctx context.Context, key catalog.PriceKey, price float64)
}

// RedisPriceCache implements PriceCache on Redis. Cache outages degrade
// to catalog-only lookups; errors are logged, never propagated.
type RedisPriceCache struct {
	rdb *redis.Client
	ttl time.Duration
	log zerolog.Logger
}

func NewRedisPriceCache(rdb *redis.Client, logger zerolog.Logger) *RedisPriceCache {
	return &RedisPriceCache{
		rdb: rdb,
		ttl: PriceCacheTTL,
		log: logger.With().Str("component", "price-cache").Logger(),
	}
}

func cacheKey(key catalog.PriceKey) string {
	return fmt.Sprintf("pricing:%s:%s:%s:%s:%s",
		key.Provider, key.ServiceName, key.ResourceType, key.Region, key.PricingModel)
}

func (c *RedisPriceCache) Get(ctx context.Context, key catalog.PriceKey) (float64, bool) {
	val, err := c.rdb.Get(ctx, cacheKey(key)).Result()
	if err == redis.Nil {
		return 0, false
	}
	if err != nil {
		c.log.Warn().Err(err).Msg("cache read failed")
		return 0, false
	}
	price, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, false
	}
	return price, true
}

func (c *RedisPriceCache) Set(ctx context.Context, key catalog.PriceKey, price float64) {
	if err := c.rdb.Set(ctx, cacheKey(key), strconv.FormatFloat(price, 'f', -1, 64), c.ttl).Err(); err != nil {
		c.log.Warn().Err(err).Msg("cache write failed")
	}
}
