package domain

import "time"

type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

type PositionStatus string

const (
	PositionOpen   PositionStatus = "open"
	PositionClosed PositionStatus = "closed"
)

// Position is an entry taken by the executor. At most one open position
// exists per symbol; a closed position is never reopened, a new entry
// creates a new row. RiskAmount is fixed at entry from
// |entry - stop| * qty and never recomputed.
type Position struct {
	ID            int64          `json:"id"`
	Symbol        string         `json:"symbol"`
	Quantity      float64        `json:"quantity"`
	Side          Side           `json:"side"`
	EntryPrice    float64        `json:"entry_price"`
	CurrentPrice  float64        `json:"current_price"`
	StopLoss      float64        `json:"stop_loss,omitempty"`
	TakeProfit    float64        `json:"take_profit,omitempty"`
	RiskAmount    float64        `json:"risk_amount"`
	Strategy      string         `json:"strategy"`
	EntryTime     time.Time      `json:"entry_time"`
	Status        PositionStatus `json:"status"`
	ExitPrice     float64        `json:"exit_price,omitempty"`
	ExitTime      time.Time      `json:"exit_time,omitempty"`
	RealizedPnL   float64        `json:"realized_pnl,omitempty"`
	UnrealizedPnL float64        `json:"unrealized_pnl"`
}

// MarketValue is the current notional of the position.
func (p *Position) MarketValue() float64 {
	price := p.CurrentPrice
	if price == 0 {
		price = p.EntryPrice
	}
	return price * p.Quantity
}

// ComputeUnrealizedPnL updates CurrentPrice and UnrealizedPnL from a fresh
// market price.
func (p *Position) ComputeUnrealizedPnL(price float64) float64 {
	p.CurrentPrice = price
	if p.Side == SideShort {
		p.UnrealizedPnL = (p.EntryPrice - price) * p.Quantity
	} else {
		p.UnrealizedPnL = (price - p.EntryPrice) * p.Quantity
	}
	return p.UnrealizedPnL
}

// PositionUpdate is one row of the append-only mark-to-market audit trail.
type PositionUpdate struct {
	PositionID    int64     `json:"position_id"`
	Price         float64   `json:"price"`
	MarketValue   float64   `json:"market_value"`
	UnrealizedPnL float64   `json:"unrealized_pnl"`
	Timestamp     time.Time `json:"timestamp"`
}

// PortfolioMetrics is a derived snapshot computed on demand from the full
// position set; it is never stored.
type PortfolioMetrics struct {
	OpenPositions   int     `json:"open_positions"`
	ClosedPositions int     `json:"closed_positions"`
	LongCount       int     `json:"long_count"`
	ShortCount      int     `json:"short_count"`
	TotalValue      float64 `json:"total_value"`
	UnrealizedPnL   float64 `json:"unrealized_pnl"`
	RealizedPnL     float64 `json:"realized_pnl"`
	TotalRisk       float64 `json:"total_risk"`
	Concentration   float64 `json:"concentration"` // Herfindahl over open market values
	WinRate         float64 `json:"win_rate"`
	AvgHoldTime     float64 `json:"avg_hold_time_sec"`
}
