package domain

import "time"

type SignalAction string

const (
	ActionBuy  SignalAction = "BUY"
	ActionSell SignalAction = "SELL"
	ActionHold SignalAction = "HOLD"
)

// TradingSignal is produced by upstream strategy code and consumed exactly
// once by the execution pipeline. Immutable once created.
type TradingSignal struct {
	Symbol     string                 `json:"symbol"`
	Action     SignalAction           `json:"action"`
	Strength   float64                `json:"strength"` // 0..100
	Price      float64                `json:"price"`
	Timestamp  time.Time              `json:"timestamp"`
	Reason     string                 `json:"reason"`
	Indicators map[string]interface{} `json:"indicators,omitempty"`
}

// Indicator returns a numeric indicator value if present.
func (s *TradingSignal) Indicator(name string) (float64, bool) {
	raw, ok := s.Indicators[name]
	if !ok {
		return 0, false
	}
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// BoolIndicator returns a boolean indicator value if present.
func (s *TradingSignal) BoolIndicator(name string) (bool, bool) {
	raw, ok := s.Indicators[name]
	if !ok {
		return false, false
	}
	b, ok := raw.(bool)
	return b, ok
}
