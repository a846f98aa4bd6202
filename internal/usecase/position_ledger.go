package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/stratex/tradecore/internal/domain"
	"go.uber.org/zap"
)

// RiskConfig holds the position and portfolio limits.
type RiskConfig struct {
	MaxPositions       int
	MaxPositionSizePct float64
	MaxPortfolioRisk   float64
	StopLossPct        float64
	RewardRatio        float64
}

// PositionLedger tracks open and closed positions and enforces the risk
// limits. In-memory state is authoritative; the store is a best-effort
// mirror and failures there only degrade, never abort.
type PositionLedger struct {
	cfg       RiskConfig
	positions domain.PositionRepository
	riskLog   domain.RiskEventRepository
	logger    *zap.Logger

	mu     sync.RWMutex
	open   map[string]*domain.Position
	closed []*domain.Position

	timeNow func() time.Time // for testing
}

func NewPositionLedger(
	cfg RiskConfig,
	positions domain.PositionRepository,
	riskLog domain.RiskEventRepository,
	logger *zap.Logger,
) *PositionLedger {
	return &PositionLedger{
		cfg:       cfg,
		positions: positions,
		riskLog:   riskLog,
		logger:    logger,
		open:      make(map[string]*domain.Position),
		timeNow:   time.Now,
	}
}

// LoadFromStore rebuilds in-memory state from persisted positions.
func (l *PositionLedger) LoadFromStore(ctx context.Context) error {
	all, err := l.positions.ListAllPositions(ctx)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.open = make(map[string]*domain.Position)
	l.closed = nil
	for _, p := range all {
		if p.Status == domain.PositionOpen {
			l.open[p.Symbol] = p
		} else {
			l.closed = append(l.closed, p)
		}
	}
	l.logger.Info("position ledger loaded",
		zap.Int("open", len(l.open)),
		zap.Int("closed", len(l.closed)))
	return nil
}

// ValidateNewPosition applies the limit checks in order. Any failure
// aborts the open; the reason is returned for logging.
func (l *PositionLedger) ValidateNewPosition(symbol string, qty, price, equity float64) (bool, string) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if len(l.open) >= l.cfg.MaxPositions {
		return false, fmt.Sprintf("open position count %d at limit %d", len(l.open), l.cfg.MaxPositions)
	}

	if equity <= 0 {
		return false, "account equity unavailable"
	}

	sizePct := qty * price / equity
	if sizePct > l.cfg.MaxPositionSizePct {
		return false, fmt.Sprintf("position size %.2f%% exceeds limit %.2f%%",
			sizePct*100, l.cfg.MaxPositionSizePct*100)
	}

	var currentRisk float64
	for _, p := range l.open {
		currentRisk += p.RiskAmount
	}
	newRisk := qty * price * l.cfg.StopLossPct
	riskPct := (currentRisk + newRisk) / equity
	if riskPct > l.cfg.MaxPortfolioRisk {
		return false, fmt.Sprintf("portfolio risk %.2f%% exceeds limit %.2f%%",
			riskPct*100, l.cfg.MaxPortfolioRisk*100)
	}

	return true, ""
}

// OpenPosition records a new entry. Stop and target default from the
// configured stop percentage and reward ratio when the caller passes zero.
// RiskAmount is fixed here and never recomputed.
func (l *PositionLedger) OpenPosition(ctx context.Context, symbol string, qty, entryPrice float64, side domain.Side, stopLoss, takeProfit float64, strategy string) (*domain.Position, error) {
	l.mu.Lock()
	if existing, ok := l.open[symbol]; ok {
		l.mu.Unlock()
		return nil, fmt.Errorf("open position already exists for %s (entry %.2f)", symbol, existing.EntryPrice)
	}

	if stopLoss == 0 {
		if side == domain.SideShort {
			stopLoss = entryPrice * (1 + l.cfg.StopLossPct)
		} else {
			stopLoss = entryPrice * (1 - l.cfg.StopLossPct)
		}
	}
	if takeProfit == 0 {
		if side == domain.SideShort {
			takeProfit = entryPrice * (1 - l.cfg.StopLossPct*l.cfg.RewardRatio)
		} else {
			takeProfit = entryPrice * (1 + l.cfg.StopLossPct*l.cfg.RewardRatio)
		}
	}

	riskAmount := (entryPrice - stopLoss) * qty
	if riskAmount < 0 {
		riskAmount = -riskAmount
	}

	pos := &domain.Position{
		Symbol:       symbol,
		Quantity:     qty,
		Side:         side,
		EntryPrice:   entryPrice,
		CurrentPrice: entryPrice,
		StopLoss:     stopLoss,
		TakeProfit:   takeProfit,
		RiskAmount:   riskAmount,
		Strategy:     strategy,
		EntryTime:    l.timeNow(),
		Status:       domain.PositionOpen,
	}
	l.open[symbol] = pos
	// Persist a private copy: once published, pos may be marked to
	// market by concurrent refreshes.
	snapshot := *pos
	l.mu.Unlock()

	if id, err := l.positions.SavePosition(ctx, &snapshot); err != nil {
		l.logger.Error("failed to persist position, keeping in memory",
			zap.String("symbol", symbol), zap.Error(err))
	} else {
		// pos is already visible to concurrent readers of l.open.
		l.mu.Lock()
		pos.ID = id
		l.mu.Unlock()
	}

	l.logger.Info("position opened",
		zap.String("symbol", symbol),
		zap.Float64("qty", qty),
		zap.Float64("entry", entryPrice),
		zap.Float64("stop", stopLoss),
		zap.Float64("target", takeProfit),
		zap.Float64("risk", riskAmount))
	return pos, nil
}

// ClosePosition marks the open position for symbol as closed, computing
// realized PnL. Closing is terminal; returns false when no open position
// exists.
func (l *PositionLedger) ClosePosition(ctx context.Context, symbol string, exitPrice float64, reason string) bool {
	l.mu.Lock()
	pos, ok := l.open[symbol]
	if !ok {
		l.mu.Unlock()
		return false
	}
	delete(l.open, symbol)

	pos.Status = domain.PositionClosed
	pos.ExitPrice = exitPrice
	pos.ExitTime = l.timeNow()
	if pos.Side == domain.SideShort {
		pos.RealizedPnL = (pos.EntryPrice - exitPrice) * pos.Quantity
	} else {
		pos.RealizedPnL = (exitPrice - pos.EntryPrice) * pos.Quantity
	}
	l.closed = append(l.closed, pos)
	l.mu.Unlock()

	if err := l.positions.UpdatePosition(ctx, pos); err != nil {
		l.logger.Error("failed to persist position close",
			zap.String("symbol", symbol), zap.Error(err))
	}

	l.logger.Info("position closed",
		zap.String("symbol", symbol),
		zap.String("reason", reason),
		zap.Float64("exit", exitPrice),
		zap.Float64("realized_pnl", pos.RealizedPnL))
	return true
}

// UpdateLevels changes stop/target on an open position. Zero leaves the
// existing level untouched.
func (l *PositionLedger) UpdateLevels(ctx context.Context, symbol string, stopLoss, takeProfit float64) bool {
	l.mu.Lock()
	pos, ok := l.open[symbol]
	if !ok {
		l.mu.Unlock()
		return false
	}
	if stopLoss > 0 {
		pos.StopLoss = stopLoss
	}
	if takeProfit > 0 {
		pos.TakeProfit = takeProfit
	}
	l.mu.Unlock()

	if err := l.positions.UpdatePosition(ctx, pos); err != nil {
		l.logger.Error("failed to persist level update",
			zap.String("symbol", symbol), zap.Error(err))
	}
	return true
}

// OpenPositions returns copies of all open positions.
func (l *PositionLedger) OpenPositions() []*domain.Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*domain.Position, 0, len(l.open))
	for _, p := range l.open {
		cp := *p
		out = append(out, &cp)
	}
	return out
}

// HasOpenPosition reports whether symbol has an open position.
func (l *PositionLedger) HasOpenPosition(symbol string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.open[symbol]
	return ok
}

// OpenCount returns the number of open positions.
func (l *PositionLedger) OpenCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.open)
}

// RefreshPrices marks every open position to market and appends a row to
// the position_updates audit trail.
func (l *PositionLedger) RefreshPrices(ctx context.Context, prices func(ctx context.Context, symbol string) (float64, error)) {
	for _, pos := range l.OpenPositions() {
		price, err := prices(ctx, pos.Symbol)
		if err != nil {
			l.logger.Warn("price refresh failed",
				zap.String("symbol", pos.Symbol), zap.Error(err))
			continue
		}

		l.mu.Lock()
		live, ok := l.open[pos.Symbol]
		if !ok {
			l.mu.Unlock()
			continue
		}
		pnl := live.ComputeUnrealizedPnL(price)
		upd := &domain.PositionUpdate{
			PositionID:    live.ID,
			Price:         price,
			MarketValue:   live.MarketValue(),
			UnrealizedPnL: pnl,
			Timestamp:     l.timeNow(),
		}
		l.mu.Unlock()

		if err := l.positions.SavePositionUpdate(ctx, upd); err != nil {
			l.logger.Warn("failed to persist position update",
				zap.String("symbol", pos.Symbol), zap.Error(err))
		}
	}
}

// CheckStopLosses returns symbols whose current price has crossed the
// stop level.
func (l *PositionLedger) CheckStopLosses() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var triggered []string
	for symbol, p := range l.open {
		if p.StopLoss <= 0 || p.CurrentPrice <= 0 {
			continue
		}
		if p.Side == domain.SideShort {
			if p.CurrentPrice >= p.StopLoss {
				triggered = append(triggered, symbol)
			}
		} else if p.CurrentPrice <= p.StopLoss {
			triggered = append(triggered, symbol)
		}
	}
	return triggered
}

// CheckTakeProfits returns symbols whose current price has reached the
// target level.
func (l *PositionLedger) CheckTakeProfits() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var triggered []string
	for symbol, p := range l.open {
		if p.TakeProfit <= 0 || p.CurrentPrice <= 0 {
			continue
		}
		if p.Side == domain.SideShort {
			if p.CurrentPrice <= p.TakeProfit {
				triggered = append(triggered, symbol)
			}
		} else if p.CurrentPrice >= p.TakeProfit {
			triggered = append(triggered, symbol)
		}
	}
	return triggered
}

// PortfolioMetrics recomputes the derived portfolio view from the full
// position set.
func (l *PositionLedger) PortfolioMetrics() domain.PortfolioMetrics {
	l.mu.RLock()
	defer l.mu.RUnlock()

	m := domain.PortfolioMetrics{
		OpenPositions:   len(l.open),
		ClosedPositions: len(l.closed),
	}

	now := l.timeNow()
	var holdTotal time.Duration
	var holdCount int

	for _, p := range l.open {
		if p.Side == domain.SideShort {
			m.ShortCount++
		} else {
			m.LongCount++
		}
		m.TotalValue += p.MarketValue()
		m.UnrealizedPnL += p.UnrealizedPnL
		m.TotalRisk += p.RiskAmount
		holdTotal += now.Sub(p.EntryTime)
		holdCount++
	}

	// Herfindahl concentration over open market values.
	if m.TotalValue > 0 {
		for _, p := range l.open {
			w := p.MarketValue() / m.TotalValue
			m.Concentration += w * w
		}
	}

	var wins int
	for _, p := range l.closed {
		m.RealizedPnL += p.RealizedPnL
		if p.RealizedPnL > 0 {
			wins++
		}
		holdTotal += p.ExitTime.Sub(p.EntryTime)
		holdCount++
	}
	if len(l.closed) > 0 {
		m.WinRate = float64(wins) / float64(len(l.closed))
	}
	if holdCount > 0 {
		m.AvgHoldTime = (holdTotal / time.Duration(holdCount)).Seconds()
	}
	return m
}

// RecordRiskEvent appends to the risk event audit log. Distinct from a
// validation rejection: these mark actual breaches and partial failures.
func (l *PositionLedger) RecordRiskEvent(ctx context.Context, eventType, symbol, description string, severity domain.RiskSeverity) {
	ev := &domain.RiskEvent{
		EventType:   eventType,
		Symbol:      symbol,
		Description: description,
		Severity:    severity,
		TriggeredAt: l.timeNow(),
	}
	if err := l.riskLog.SaveRiskEvent(ctx, ev); err != nil {
		l.logger.Error("failed to persist risk event",
			zap.String("event_type", eventType), zap.Error(err))
	}
	l.logger.Warn("risk event",
		zap.String("event_type", eventType),
		zap.String("symbol", symbol),
		zap.String("description", description),
		zap.String("severity", string(severity)))
}
