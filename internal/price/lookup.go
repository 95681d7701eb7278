package price

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/inoutflow/internal/cache"
	"github.com/alanyoungcy/inoutflow/internal/domain"
)

const (
	localTTL      = 10 * time.Minute
	localCapacity = 4096
	throttleKey   = "price"
)

// Throttle blocks until one more request to the price service is allowed.
type Throttle interface {
	Wait(ctx context.Context, key string) error
}

// Option configures a Lookup.
type Option func(*Lookup)

// WithSharedCache memoizes prices in a cache visible to other processes.
func WithSharedCache(pc domain.PriceCache) Option {
	return func(l *Lookup) { l.shared = pc }
}

// WithThrottle paces requests that reach the price service.
func WithThrottle(t Throttle) Option {
	return func(l *Lookup) { l.throttle = t }
}

// Lookup resolves prices through chain substitution, an in-process
// per-minute memo, an optional shared cache and an optional throttle, in that
// order, before asking the source.
type Lookup struct {
	source   domain.PriceLookup
	shared   domain.PriceCache
	throttle Throttle
	local    *cache.TTL[*decimal.Decimal]
	logger   *slog.Logger
}

// NewLookup creates a Lookup in front of source.
func NewLookup(source domain.PriceLookup, logger *slog.Logger, opts ...Option) *Lookup {
	l := &Lookup{
		source: source,
		local:  cache.NewTTL[*decimal.Decimal](localTTL, localCapacity),
		logger: logger.With(slog.String("component", "price")),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// ValuePrice prices one unit of token transferred on chain.
func (l *Lookup) ValuePrice(ctx context.Context, chain, token string, at time.Time) (*decimal.Decimal, error) {
	c, t := ValueTarget(chain, token)
	return l.Price(ctx, c, t, at)
}

// FeePrice prices one unit of the native currency paying fees on chain.
func (l *Lookup) FeePrice(ctx context.Context, chain string, at time.Time) (*decimal.Decimal, error) {
	c, t := FeeTarget(chain)
	return l.Price(ctx, c, t, at)
}

// Price resolves an already-substituted (chain, token) pair. Prices are
// bucketed by minute.
func (l *Lookup) Price(ctx context.Context, chain, token string, at time.Time) (*decimal.Decimal, error) {
	minute := at.UTC().Truncate(time.Minute)
	key := chain + "|" + token + "|" + minute.Format("200601021504")
	return l.local.Get(ctx, key, func(ctx context.Context) (*decimal.Decimal, error) {
		return l.load(ctx, chain, token, minute)
	})
}

func (l *Lookup) load(ctx context.Context, chain, token string, at time.Time) (*decimal.Decimal, error) {
	if l.shared != nil {
		p, found, err := l.shared.GetPrice(ctx, chain, token, at)
		if err != nil {
			l.logger.Warn("shared price cache read failed",
				slog.String("chain", chain), slog.String("token", token), slog.String("error", err.Error()))
		} else if found {
			return p, nil
		}
	}

	if l.throttle != nil {
		if err := l.throttle.Wait(ctx, throttleKey); err != nil {
			return nil, fmt.Errorf("price: throttle: %w", err)
		}
	}

	p, err := l.source.Price(ctx, chain, token, at)
	if err != nil {
		return nil, err
	}

	if l.shared != nil {
		if err := l.shared.SetPrice(ctx, chain, token, at, p); err != nil {
			l.logger.Warn("shared price cache write failed",
				slog.String("chain", chain), slog.String("token", token), slog.String("error", err.Error()))
		}
	}
	return p, nil
}

var _ domain.PriceLookup = (*Lookup)(nil)
