package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/inoutflow/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// noPrice marks a lookup that resolved to "no price known".
const noPrice = "null"

// PriceCache memoizes resolved prices in Redis hashes keyed by
// "price:{chain}:{token}" with one field per minute bucket. The hash expires
// ttl after its last write.
type PriceCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewPriceCache creates a PriceCache backed by the given Client.
func NewPriceCache(c *Client, ttl time.Duration) *PriceCache {
	return &PriceCache{rdb: c.Underlying(), ttl: ttl}
}

func priceKey(chain, token string) string {
	return "price:" + chain + ":" + strings.ToLower(token)
}

func minuteField(at time.Time) string {
	return at.UTC().Truncate(time.Minute).Format("200601021504")
}

// GetPrice returns the memoized price. found is false on a miss; a hit may
// carry a nil price.
func (pc *PriceCache) GetPrice(ctx context.Context, chain, token string, at time.Time) (*decimal.Decimal, bool, error) {
	v, err := pc.rdb.HGet(ctx, priceKey(chain, token), minuteField(at)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis: get price %s/%s: %w", chain, token, err)
	}
	if v == noPrice {
		return nil, true, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return nil, false, fmt.Errorf("redis: parse price %s/%s: %w", chain, token, err)
	}
	return &d, true, nil
}

// SetPrice memoizes price, which may be nil.
func (pc *PriceCache) SetPrice(ctx context.Context, chain, token string, at time.Time, price *decimal.Decimal) error {
	v := noPrice
	if price != nil {
		v = price.String()
	}
	key := priceKey(chain, token)
	pipe := pc.rdb.TxPipeline()
	pipe.HSet(ctx, key, minuteField(at), v)
	if pc.ttl > 0 {
		pipe.Expire(ctx, key, pc.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set price %s/%s: %w", chain, token, err)
	}
	return nil
}

var _ domain.PriceCache = (*PriceCache)(nil)
