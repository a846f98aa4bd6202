package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stratex/tradecore/internal/domain"
	"github.com/stratex/tradecore/internal/infrastructure/breaker"
	"github.com/stratex/tradecore/internal/infrastructure/cache"
	"go.uber.org/zap"
)

func newTestGateway(b *MockBroker) (*MarketDataGateway, *MockPriceCacheRepo, *MockBarRepo) {
	priceRepo := NewMockPriceCacheRepo()
	barRepo := &MockBarRepo{}
	registry := breaker.NewRegistry(breaker.Config{
		FailureThreshold: 2,
		RecoveryTimeout:  time.Minute,
	}, zap.NewNop())
	memCache := cache.New(100, time.Minute, 0, zap.NewNop())
	g := NewMarketDataGateway(b, registry, memCache, priceRepo, barRepo, GatewayConfig{
		QuoteTTL:      5 * time.Second,
		BarTTL:        time.Minute,
		StalePriceMax: 15 * time.Minute,
	}, zap.NewNop())
	return g, priceRepo, barRepo
}

func TestGateway_QuoteCachedAndPersisted(t *testing.T) {
	b := NewMockBroker()
	b.Quote = &domain.Quote{Symbol: "AAPL", Price: 150, Timestamp: time.Now()}
	g, priceRepo, _ := newTestGateway(b)
	ctx := context.Background()

	price, err := g.GetLatestPrice(ctx, "AAPL")
	if err != nil {
		t.Fatal(err)
	}
	if price != 150 {
		t.Errorf("price = %f, want 150", price)
	}

	// Second read hits the memory cache, not the broker.
	g.GetLatestPrice(ctx, "AAPL")
	if b.QuoteCalls != 1 {
		t.Errorf("broker called %d times, want 1", b.QuoteCalls)
	}

	// The live price was mirrored to the durable fallback.
	cp, _ := priceRepo.GetPrice(ctx, "AAPL", time.Minute)
	if cp == nil || cp.Price != 150 {
		t.Error("live price should be persisted to the fallback store")
	}
}

func TestGateway_FallsBackToStalePriceWhenCircuitOpen(t *testing.T) {
	b := NewMockBroker()
	g, priceRepo, _ := newTestGateway(b)
	ctx := context.Background()

	priceRepo.UpsertPrice(ctx, "AAPL", 148, time.Now().Add(-time.Minute))
	b.QuoteErr = errBrokerDown

	// Trip the quotes breaker, then keep asking: every call must serve the
	// stale price instead of failing outright.
	for i := 0; i < 4; i++ {
		price, err := g.GetLatestPrice(ctx, "AAPL")
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		if price != 148 {
			t.Errorf("call %d: price = %f, want stale 148", i, price)
		}
	}
	// The breaker opened after two failures and stopped hitting the broker.
	if b.QuoteCalls != 2 {
		t.Errorf("broker called %d times, want 2 (circuit open after threshold)", b.QuoteCalls)
	}
}

func TestGateway_NoStaleFallbackBeyondMaxAge(t *testing.T) {
	b := NewMockBroker()
	g, priceRepo, _ := newTestGateway(b)
	ctx := context.Background()

	priceRepo.UpsertPrice(ctx, "AAPL", 148, time.Now().Add(-time.Hour))
	b.QuoteErr = errBrokerDown

	if _, err := g.GetLatestPrice(ctx, "AAPL"); err == nil {
		t.Error("price older than max age must not be served")
	}
}

func TestGateway_BarsPersistedDurably(t *testing.T) {
	b := NewMockBroker()
	b.Bars = []domain.Bar{
		{Symbol: "AAPL", Timeframe: "1Min", Timestamp: time.Now(), Close: 150},
	}
	g, _, barRepo := newTestGateway(b)
	ctx := context.Background()

	bars, err := g.GetBars(ctx, "AAPL", "1Min", time.Now().Add(-time.Hour), time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if len(bars) != 1 {
		t.Fatalf("bars = %d, want 1", len(bars))
	}
	if len(barRepo.Saved) != 1 {
		t.Error("bars should be appended to durable storage")
	}
}

func TestGateway_BarsCacheKeyedByWindow(t *testing.T) {
	b := NewMockBroker()
	b.Bars = []domain.Bar{
		{Symbol: "AAPL", Timeframe: "1Day", Timestamp: time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC), Close: 100},
	}
	g, _, _ := newTestGateway(b)
	ctx := context.Background()

	janStart := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	janEnd := time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)
	bars, err := g.GetBars(ctx, "AAPL", "1Day", janStart, janEnd)
	if err != nil {
		t.Fatal(err)
	}
	if bars[0].Close != 100 {
		t.Fatalf("january close = %f, want 100", bars[0].Close)
	}

	// A different window must go back to the broker, not reuse the
	// january entry.
	b.Bars = []domain.Bar{
		{Symbol: "AAPL", Timeframe: "1Day", Timestamp: time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC), Close: 200},
	}
	junStart := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	junEnd := time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)
	bars, err = g.GetBars(ctx, "AAPL", "1Day", junStart, junEnd)
	if err != nil {
		t.Fatal(err)
	}
	if bars[0].Close != 200 {
		t.Errorf("june close = %f, want 200", bars[0].Close)
	}
	if b.BarsCalls != 2 {
		t.Errorf("broker called %d times, want 2", b.BarsCalls)
	}

	// Repeating the same window stays cached.
	g.GetBars(ctx, "AAPL", "1Day", junStart, junEnd)
	if b.BarsCalls != 2 {
		t.Errorf("broker called %d times after repeat, want 2", b.BarsCalls)
	}
}

func TestGateway_AccountNeverServedStale(t *testing.T) {
	b := NewMockBroker()
	b.AccountErr = errBrokerDown
	g, _, _ := newTestGateway(b)

	if _, err := g.GetAccount(context.Background()); err == nil {
		t.Error("account fetch failure must surface, not degrade")
	}
}
