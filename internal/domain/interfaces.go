package domain

import (
	"context"
	"time"
)

// BrokerClient defines the interface for the remote brokerage. The wire
// protocol is opaque; every call may block on network I/O and must be
// routed through a circuit breaker by the consuming component.
type BrokerClient interface {
	GetAccount(ctx context.Context) (*Account, error)
	ListPositions(ctx context.Context) ([]*Position, error)
	ListOrders(ctx context.Context, status string, symbols []string) ([]*Order, error)
	SubmitOrder(ctx context.Context, req *OrderRequest) (*Order, error)
	CancelOrder(ctx context.Context, orderID string) error
	GetLatestQuote(ctx context.Context, symbol string) (*Quote, error)
	GetBars(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]Bar, error)
	GetClock(ctx context.Context) (*Clock, error)
}

// PositionRepository defines storage operations for positions.
type PositionRepository interface {
	SavePosition(ctx context.Context, pos *Position) (int64, error)
	UpdatePosition(ctx context.Context, pos *Position) error
	GetOpenPosition(ctx context.Context, symbol string) (*Position, error)
	ListPositions(ctx context.Context, status PositionStatus) ([]*Position, error)
	ListAllPositions(ctx context.Context) ([]*Position, error)
	SavePositionUpdate(ctx context.Context, upd *PositionUpdate) error
}

// TradeRepository defines the append-only trade history log.
type TradeRepository interface {
	SaveTrade(ctx context.Context, rec *TradeRecord) error
	ListTrades(ctx context.Context, limit int) ([]*TradeRecord, error)
}

// RiskEventRepository defines the append-only risk event log.
type RiskEventRepository interface {
	SaveRiskEvent(ctx context.Context, ev *RiskEvent) error
	ListRiskEvents(ctx context.Context, limit int) ([]*RiskEvent, error)
}

// PriceCacheRepository is the persistent last-resort price store used when
// the live-quote circuit is open.
type PriceCacheRepository interface {
	UpsertPrice(ctx context.Context, symbol string, price float64, ts time.Time) error
	GetPrice(ctx context.Context, symbol string, maxAge time.Duration) (*CachedPrice, error)
}

// BarRepository stores historical bars, idempotent on
// (symbol, timeframe, timestamp).
type BarRepository interface {
	SaveBars(ctx context.Context, bars []Bar) error
	ListBars(ctx context.Context, symbol, timeframe string, limit int) ([]Bar, error)
}
