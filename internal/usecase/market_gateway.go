package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/stratex/tradecore/internal/domain"
	"github.com/stratex/tradecore/internal/infrastructure/breaker"
	"github.com/stratex/tradecore/internal/infrastructure/cache"
	"go.uber.org/zap"
)

// Breaker names, one per protected call category.
const (
	BreakerQuotes  = "quotes"
	BreakerBars    = "bars"
	BreakerAccount = "account"
	BreakerOrders  = "orders"
	BreakerClock   = "clock"
)

// GatewayConfig holds the caching tunables of the market data gateway.
type GatewayConfig struct {
	QuoteTTL      time.Duration
	BarTTL        time.Duration
	StalePriceMax time.Duration // max age accepted from the persistent fallback
}

// MarketDataGateway serves prices and bars with memory caching, circuit
// breaking and a persistent last-resort price store. Quotes tolerate
// staleness and fall back to the store when the live circuit is open;
// account and clock data never do.
type MarketDataGateway struct {
	broker     domain.BrokerClient
	breakers   *breaker.Registry
	cache      *cache.MemoryCache
	priceStore domain.PriceCacheRepository
	barStore   domain.BarRepository
	cfg        GatewayConfig
	logger     *zap.Logger
}

func NewMarketDataGateway(
	broker domain.BrokerClient,
	breakers *breaker.Registry,
	memCache *cache.MemoryCache,
	priceStore domain.PriceCacheRepository,
	barStore domain.BarRepository,
	cfg GatewayConfig,
	logger *zap.Logger,
) *MarketDataGateway {
	return &MarketDataGateway{
		broker:     broker,
		breakers:   breakers,
		cache:      memCache,
		priceStore: priceStore,
		barStore:   barStore,
		cfg:        cfg,
		logger:     logger,
	}
}

// GetLatestPrice returns the freshest known price for symbol: memory cache
// first, then the live quote through the quotes breaker, then the
// persistent price cache when the circuit is open.
func (g *MarketDataGateway) GetLatestPrice(ctx context.Context, symbol string) (float64, error) {
	key := "quote:" + symbol
	if v, ok := g.cache.Get(key); ok {
		return v.(float64), nil
	}

	var quote *domain.Quote
	err := g.breakers.Get(BreakerQuotes).Call(func() error {
		q, err := g.broker.GetLatestQuote(ctx, symbol)
		if err != nil {
			return err
		}
		quote = q
		return nil
	})
	if err == nil {
		g.cache.SetWithTTL(key, quote.Price, g.cfg.QuoteTTL)
		if perr := g.priceStore.UpsertPrice(ctx, symbol, quote.Price, quote.Timestamp); perr != nil {
			g.logger.Warn("failed to persist price", zap.String("symbol", symbol), zap.Error(perr))
		}
		return quote.Price, nil
	}

	// Stale prices are acceptable for quotes; try the durable fallback.
	stale, serr := g.priceStore.GetPrice(ctx, symbol, g.cfg.StalePriceMax)
	if serr == nil && stale != nil {
		g.logger.Warn("serving stale price from persistent cache",
			zap.String("symbol", symbol),
			zap.Time("as_of", stale.Timestamp),
			zap.Error(err))
		return stale.Price, nil
	}
	return 0, fmt.Errorf("no price available for %s: %w", symbol, err)
}

// RecordStreamPrice feeds a websocket trade price into the caches, so
// polling readers see streamed prices without a REST round trip.
func (g *MarketDataGateway) RecordStreamPrice(ctx context.Context, symbol string, price float64, ts time.Time) {
	g.cache.SetWithTTL("quote:"+symbol, price, g.cfg.QuoteTTL)
	if err := g.priceStore.UpsertPrice(ctx, symbol, price, ts); err != nil {
		g.logger.Warn("failed to persist streamed price",
			zap.String("symbol", symbol), zap.Error(err))
	}
}

// GetBars returns recent bars, caching in memory and appending new bars to
// durable storage. There is no stale fallback beyond what the bar store
// already holds.
func (g *MarketDataGateway) GetBars(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]domain.Bar, error) {
	// The window is part of the key: a cached January range must not
	// answer a June request.
	key := fmt.Sprintf("bars:%s:%s:%d:%d", symbol, timeframe, start.Unix(), end.Unix())
	if v, ok := g.cache.Get(key); ok {
		return v.([]domain.Bar), nil
	}

	var bars []domain.Bar
	err := g.breakers.Get(BreakerBars).Call(func() error {
		b, err := g.broker.GetBars(ctx, symbol, timeframe, start, end)
		if err != nil {
			return err
		}
		bars = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	g.cache.SetWithTTL(key, bars, g.cfg.BarTTL)
	if perr := g.barStore.SaveBars(ctx, bars); perr != nil {
		g.logger.Warn("failed to persist bars",
			zap.String("symbol", symbol), zap.Error(perr))
	}
	return bars, nil
}

// GetAccount fetches the account snapshot through its breaker. Account
// data is never served stale.
func (g *MarketDataGateway) GetAccount(ctx context.Context) (*domain.Account, error) {
	var account *domain.Account
	err := g.breakers.Get(BreakerAccount).Call(func() error {
		a, err := g.broker.GetAccount(ctx)
		if err != nil {
			return err
		}
		account = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

// IsMarketOpen checks the market clock through its breaker.
func (g *MarketDataGateway) IsMarketOpen(ctx context.Context) (bool, error) {
	var clock *domain.Clock
	err := g.breakers.Get(BreakerClock).Call(func() error {
		c, err := g.broker.GetClock(ctx)
		if err != nil {
			return err
		}
		clock = c
		return nil
	})
	if err != nil {
		return false, err
	}
	return clock.IsOpen, nil
}
