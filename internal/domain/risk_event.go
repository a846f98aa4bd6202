package domain

import "time"

type RiskSeverity string

const (
	SeverityInfo     RiskSeverity = "info"
	SeverityWarning  RiskSeverity = "warning"
	SeverityCritical RiskSeverity = "critical"
)

// RiskEvent is an audit record of a risk-limit breach or a partial
// execution failure. Distinct from an ordinary validation rejection.
type RiskEvent struct {
	ID          int64        `json:"id"`
	EventType   string       `json:"event_type"`
	Symbol      string       `json:"symbol"`
	Description string       `json:"description"`
	Severity    RiskSeverity `json:"severity"`
	TriggeredAt time.Time    `json:"triggered_at"`
}
