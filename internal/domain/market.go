package domain

import "time"

// Account is the broker account snapshot used for pre-trade checks.
type Account struct {
	Equity            float64 `json:"equity"`
	BuyingPower       float64 `json:"buying_power"`
	Cash              float64 `json:"cash"`
	TradingBlocked    bool    `json:"trading_blocked"`
	PatternDayTrader  bool    `json:"pattern_day_trader"`
	DaytradeCount     int     `json:"daytrade_count"`
	PortfolioValue    float64 `json:"portfolio_value"`
	TransfersBlocked  bool    `json:"transfers_blocked"`
	AccountBlocked    bool    `json:"account_blocked"`
	ShortingEnabled   bool    `json:"shorting_enabled"`
	InitialMargin     float64 `json:"initial_margin"`
	MaintenanceMargin float64 `json:"maintenance_margin"`
}

// PDTMinEquity is the regulatory minimum equity for pattern day traders.
const PDTMinEquity = 25000.0

// Quote is the latest trade/quote price for a symbol.
type Quote struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	BidPrice  float64   `json:"bid_price"`
	AskPrice  float64   `json:"ask_price"`
	Timestamp time.Time `json:"timestamp"`
}

// Bar is one OHLCV candle.
type Bar struct {
	Symbol    string    `json:"symbol"`
	Timeframe string    `json:"timeframe"`
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// Clock reports market session state.
type Clock struct {
	IsOpen    bool      `json:"is_open"`
	NextOpen  time.Time `json:"next_open"`
	NextClose time.Time `json:"next_close"`
}

// CachedPrice is a row of the persistent price fallback store.
type CachedPrice struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Timestamp time.Time `json:"timestamp"`
}
