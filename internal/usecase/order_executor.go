package usecase

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stratex/tradecore/internal/domain"
	"github.com/stratex/tradecore/internal/infrastructure/breaker"
	"go.uber.org/zap"
)

// ExecutionStatus is the terminal outcome of one Execute call.
type ExecutionStatus string

const (
	ExecutionSubmitted ExecutionStatus = "submitted"
	ExecutionRejected  ExecutionStatus = "rejected"
	ExecutionQueued    ExecutionStatus = "queued"
)

// ExecutionResult reports what happened to a signal. Order is set only on
// a successful submission.
type ExecutionResult struct {
	Status ExecutionStatus `json:"status"`
	Reason string          `json:"reason,omitempty"`
	Order  *domain.Order   `json:"order,omitempty"`
}

// ExecutorConfig holds sizing and protection tunables.
type ExecutorConfig struct {
	MaxPositionSizePct float64
	StopLossPct        float64
	RewardRatio        float64
}

// OrderExecutor turns accepted signals into broker orders: filter →
// market-open check → size → pre-trade validation → submit → protection
// orders → ledger update. Executions are serialized per symbol to close
// the validate/submit race window.
type OrderExecutor struct {
	cfg     ExecutorConfig
	filter  *SignalFilter
	ledger  *PositionLedger
	gateway *MarketDataGateway
	broker  domain.BrokerClient
	brk     *breaker.Registry
	trades  domain.TradeRepository
	logger  *zap.Logger

	mu          sync.Mutex
	symbolLocks map[string]*sync.Mutex
	queued      []*domain.TradingSignal
}

func NewOrderExecutor(
	cfg ExecutorConfig,
	filter *SignalFilter,
	ledger *PositionLedger,
	gateway *MarketDataGateway,
	brokerClient domain.BrokerClient,
	breakers *breaker.Registry,
	trades domain.TradeRepository,
	logger *zap.Logger,
) *OrderExecutor {
	return &OrderExecutor{
		cfg:         cfg,
		filter:      filter,
		ledger:      ledger,
		gateway:     gateway,
		broker:      brokerClient,
		brk:         breakers,
		trades:      trades,
		logger:      logger,
		symbolLocks: make(map[string]*sync.Mutex),
	}
}

func (e *OrderExecutor) symbolLock(symbol string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.symbolLocks[symbol]
	if !ok {
		l = &sync.Mutex{}
		e.symbolLocks[symbol] = l
	}
	return l
}

// Execute runs a signal through the full pipeline. A rejected execution
// commits no state and reports its reason; broker failures abort cleanly.
func (e *OrderExecutor) Execute(ctx context.Context, sig *domain.TradingSignal) *ExecutionResult {
	if !e.filter.ShouldProcess(sig) {
		return e.reject(sig, "signal filtered")
	}
	if !e.filter.Confirm(sig) {
		return e.reject(sig, "signal not confirmed by indicators")
	}

	open, err := e.gateway.IsMarketOpen(ctx)
	if err != nil {
		return e.reject(sig, fmt.Sprintf("market clock unavailable: %v", err))
	}
	if !open {
		e.mu.Lock()
		e.queued = append(e.queued, sig)
		e.mu.Unlock()
		e.logger.Info("market closed, signal queued for next open",
			zap.String("symbol", sig.Symbol),
			zap.String("action", string(sig.Action)))
		return &ExecutionResult{Status: ExecutionQueued, Reason: "market closed"}
	}

	return e.dispatch(ctx, sig)
}

// dispatch runs the post-filter pipeline. Queued signals re-enter here so
// they are not debounced against their own earlier acceptance.
func (e *OrderExecutor) dispatch(ctx context.Context, sig *domain.TradingSignal) *ExecutionResult {
	lock := e.symbolLock(sig.Symbol)
	lock.Lock()
	defer lock.Unlock()

	switch sig.Action {
	case domain.ActionBuy:
		return e.executeBuy(ctx, sig)
	case domain.ActionSell:
		return e.executeSell(ctx, sig)
	}
	return e.reject(sig, "unsupported action")
}

func (e *OrderExecutor) executeBuy(ctx context.Context, sig *domain.TradingSignal) *ExecutionResult {
	account, err := e.gateway.GetAccount(ctx)
	if err != nil {
		return e.reject(sig, fmt.Sprintf("account unavailable: %v", err))
	}

	qty := e.calculateSize(account.Equity, sig.Price, sig.Strength)
	if qty == 0 {
		return e.reject(sig, "computed position size is zero")
	}

	if reason := e.preTradeValidate(ctx, sig.Symbol, qty, sig.Price, account); reason != "" {
		return e.reject(sig, reason)
	}

	order, err := e.submitOrder(ctx, &domain.OrderRequest{
		Symbol:        sig.Symbol,
		Qty:           qty,
		Side:          domain.OrderBuy,
		Type:          domain.OrderMarket,
		TimeInForce:   domain.TIFDay,
		ClientOrderID: uuid.NewString(),
	})
	if err != nil {
		// Abort with no partial state committed.
		return e.reject(sig, fmt.Sprintf("order submission failed: %v", err))
	}

	entry := order.FilledAvgPrice
	if entry == 0 {
		entry = sig.Price
	}

	stop, target := e.placeProtectionOrders(ctx, sig.Symbol, qty, entry)

	if _, err := e.ledger.OpenPosition(ctx, sig.Symbol, qty, entry, domain.SideLong, stop, target, sig.Reason); err != nil {
		e.logger.Error("ledger update failed after fill",
			zap.String("symbol", sig.Symbol), zap.Error(err))
	} else {
		e.recordTrade(ctx, order, entry, 0)
	}

	e.logger.Info("order executed",
		zap.String("symbol", sig.Symbol),
		zap.Float64("qty", qty),
		zap.Float64("entry", entry),
		zap.String("broker_order_id", order.BrokerOrderID))
	return &ExecutionResult{Status: ExecutionSubmitted, Order: order}
}

func (e *OrderExecutor) executeSell(ctx context.Context, sig *domain.TradingSignal) *ExecutionResult {
	pos := e.openPosition(sig.Symbol)
	if pos == nil {
		return e.reject(sig, "no open position to sell")
	}

	order, err := e.submitOrder(ctx, &domain.OrderRequest{
		Symbol:        sig.Symbol,
		Qty:           pos.Quantity,
		Side:          domain.OrderSell,
		Type:          domain.OrderMarket,
		TimeInForce:   domain.TIFDay,
		ClientOrderID: uuid.NewString(),
	})
	if err != nil {
		return e.reject(sig, fmt.Sprintf("order submission failed: %v", err))
	}

	exit := order.FilledAvgPrice
	if exit == 0 {
		exit = sig.Price
	}
	e.ledger.ClosePosition(ctx, sig.Symbol, exit, sig.Reason)
	e.recordTrade(ctx, order, exit, computePnL(pos, exit))

	return &ExecutionResult{Status: ExecutionSubmitted, Order: order}
}

// calculateSize computes whole shares from equity, capped by the position
// size limit and scaled down by signal strength. A non-zero base scaled to
// zero by very low strength is rounded up to one share so an actionable
// signal is not silently discarded.
func (e *OrderExecutor) calculateSize(equity, price, strength float64) float64 {
	if price <= 0 || equity <= 0 {
		return 0
	}
	base := math.Floor(equity * e.cfg.MaxPositionSizePct / price)
	if base < 1 {
		base = 1
	}
	qty := math.Floor(base * strength / 100)
	if qty < 1 {
		qty = 1
	}
	return qty
}

func (e *OrderExecutor) preTradeValidate(ctx context.Context, symbol string, qty, price float64, account *domain.Account) string {
	if account.TradingBlocked {
		return "account is blocked from trading"
	}
	if account.PatternDayTrader && account.Equity < domain.PDTMinEquity {
		return fmt.Sprintf("PDT restricted: equity %.2f below regulatory minimum %.0f",
			account.Equity, domain.PDTMinEquity)
	}
	if cost := qty * price; account.BuyingPower < cost {
		return fmt.Sprintf("insufficient buying power: %.2f < %.2f", account.BuyingPower, cost)
	}
	if ok, reason := e.ledger.ValidateNewPosition(symbol, qty, price, account.Equity); !ok {
		return reason
	}
	if e.ledger.HasOpenPosition(symbol) {
		return "open position already exists for symbol"
	}

	var pending []*domain.Order
	err := e.brk.Get(BreakerOrders).Call(func() error {
		orders, err := e.broker.ListOrders(ctx, "open", []string{symbol})
		if err != nil {
			return err
		}
		pending = orders
		return nil
	})
	if err != nil {
		return fmt.Sprintf("pending order check failed: %v", err)
	}
	if len(pending) > 0 {
		return fmt.Sprintf("pending broker order already exists for %s", symbol)
	}
	return ""
}

func (e *OrderExecutor) submitOrder(ctx context.Context, req *domain.OrderRequest) (*domain.Order, error) {
	var order *domain.Order
	err := e.brk.Get(BreakerOrders).Call(func() error {
		o, err := e.broker.SubmitOrder(ctx, req)
		if err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	if order.Status == domain.OrderRejected {
		// Most likely a duplicate slipping past validation; audit it.
		e.ledger.RecordRiskEvent(ctx, "order_rejected", req.Symbol,
			fmt.Sprintf("broker rejected %s %s order for %.0f shares", req.Side, req.Type, req.Qty),
			domain.SeverityWarning)
		return nil, fmt.Errorf("broker rejected order for %s", req.Symbol)
	}
	return order, nil
}

// placeProtectionOrders submits the GTC stop and take-profit orders for a
// fresh entry. A failure is logged as a risk event; the filled entry is
// never rolled back, the position just runs unprotected.
func (e *OrderExecutor) placeProtectionOrders(ctx context.Context, symbol string, qty, entry float64) (stop, target float64) {
	stop = entry * (1 - e.cfg.StopLossPct)
	target = entry * (1 + e.cfg.StopLossPct*e.cfg.RewardRatio)

	_, err := e.submitOrder(ctx, &domain.OrderRequest{
		Symbol:        symbol,
		Qty:           qty,
		Side:          domain.OrderSell,
		Type:          domain.OrderStop,
		StopPrice:     stop,
		TimeInForce:   domain.TIFGTC,
		ClientOrderID: uuid.NewString(),
	})
	if err != nil {
		e.ledger.RecordRiskEvent(ctx, "protection_order_failed", symbol,
			fmt.Sprintf("stop order at %.2f failed: %v", stop, err),
			domain.SeverityWarning)
	}

	_, err = e.submitOrder(ctx, &domain.OrderRequest{
		Symbol:        symbol,
		Qty:           qty,
		Side:          domain.OrderSell,
		Type:          domain.OrderLimit,
		LimitPrice:    target,
		TimeInForce:   domain.TIFGTC,
		ClientOrderID: uuid.NewString(),
	})
	if err != nil {
		e.ledger.RecordRiskEvent(ctx, "protection_order_failed", symbol,
			fmt.Sprintf("take-profit order at %.2f failed: %v", target, err),
			domain.SeverityWarning)
	}
	return stop, target
}

func (e *OrderExecutor) recordTrade(ctx context.Context, order *domain.Order, price, pnl float64) {
	rec := &domain.TradeRecord{
		Timestamp: time.Now(),
		Symbol:    order.Symbol,
		Side:      order.Side,
		Qty:       order.Qty,
		Price:     price,
		PnL:       pnl,
		OrderID:   order.BrokerOrderID,
	}
	if err := e.trades.SaveTrade(ctx, rec); err != nil {
		e.logger.Error("failed to persist trade record",
			zap.String("symbol", order.Symbol), zap.Error(err))
	}
}

func (e *OrderExecutor) openPosition(symbol string) *domain.Position {
	for _, p := range e.ledger.OpenPositions() {
		if p.Symbol == symbol {
			return p
		}
	}
	return nil
}

func computePnL(pos *domain.Position, exit float64) float64 {
	if pos.Side == domain.SideShort {
		return (pos.EntryPrice - exit) * pos.Quantity
	}
	return (exit - pos.EntryPrice) * pos.Quantity
}

func (e *OrderExecutor) reject(sig *domain.TradingSignal, reason string) *ExecutionResult {
	e.logger.Info("execution rejected",
		zap.String("symbol", sig.Symbol),
		zap.String("action", string(sig.Action)),
		zap.String("reason", reason))
	return &ExecutionResult{Status: ExecutionRejected, Reason: reason}
}

// ProcessQueuedSignals re-runs signals queued while the market was closed.
// Call it periodically; it is a no-op until the clock reports open.
func (e *OrderExecutor) ProcessQueuedSignals(ctx context.Context) {
	e.mu.Lock()
	if len(e.queued) == 0 {
		e.mu.Unlock()
		return
	}
	pending := e.queued
	e.queued = nil
	e.mu.Unlock()

	open, err := e.gateway.IsMarketOpen(ctx)
	if err != nil || !open {
		e.mu.Lock()
		e.queued = append(pending, e.queued...)
		e.mu.Unlock()
		return
	}

	e.logger.Info("processing queued signals", zap.Int("count", len(pending)))
	for _, sig := range pending {
		e.dispatch(ctx, sig)
	}
}

// QueuedCount reports how many signals wait for the next market open.
func (e *OrderExecutor) QueuedCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.queued)
}

// PositionSummary is the caller-facing view of the ledger.
type PositionSummary struct {
	Positions []*domain.Position      `json:"positions"`
	Metrics   domain.PortfolioMetrics `json:"metrics"`
}

func (e *OrderExecutor) GetPositionSummary() PositionSummary {
	return PositionSummary{
		Positions: e.ledger.OpenPositions(),
		Metrics:   e.ledger.PortfolioMetrics(),
	}
}

// RiskReport is the result of one risk-management sweep.
type RiskReport struct {
	StopsTriggered   []string                `json:"stops_triggered"`
	TargetsTriggered []string                `json:"targets_triggered"`
	Closed           []string                `json:"closed"`
	Metrics          domain.PortfolioMetrics `json:"metrics"`
}

// CheckRiskManagement refreshes open-position prices, closes any position
// whose stop or target has been crossed and returns a report. Stop hits
// are recorded as risk events.
func (e *OrderExecutor) CheckRiskManagement(ctx context.Context) RiskReport {
	e.ledger.RefreshPrices(ctx, e.gateway.GetLatestPrice)

	report := RiskReport{
		StopsTriggered:   e.ledger.CheckStopLosses(),
		TargetsTriggered: e.ledger.CheckTakeProfits(),
	}

	for _, symbol := range report.StopsTriggered {
		e.ledger.RecordRiskEvent(ctx, "stop_loss_triggered", symbol,
			"price crossed stop level", domain.SeverityWarning)
		if e.ClosePositionBySymbol(ctx, symbol, "stop loss") {
			report.Closed = append(report.Closed, symbol)
		}
	}
	for _, symbol := range report.TargetsTriggered {
		if e.ClosePositionBySymbol(ctx, symbol, "take profit") {
			report.Closed = append(report.Closed, symbol)
		}
	}

	report.Metrics = e.ledger.PortfolioMetrics()
	return report
}

// UpdatePositionLevels adjusts stop/target for an open position.
func (e *OrderExecutor) UpdatePositionLevels(ctx context.Context, symbol string, stopLoss, takeProfit float64) bool {
	return e.ledger.UpdateLevels(ctx, symbol, stopLoss, takeProfit)
}

// ClosePositionBySymbol submits a market sell for the full open quantity
// and closes the ledger entry. Returns false when there is nothing to
// close or the broker call fails.
func (e *OrderExecutor) ClosePositionBySymbol(ctx context.Context, symbol, reason string) bool {
	lock := e.symbolLock(symbol)
	lock.Lock()
	defer lock.Unlock()

	pos := e.openPosition(symbol)
	if pos == nil {
		return false
	}

	order, err := e.submitOrder(ctx, &domain.OrderRequest{
		Symbol:        symbol,
		Qty:           pos.Quantity,
		Side:          domain.OrderSell,
		Type:          domain.OrderMarket,
		TimeInForce:   domain.TIFDay,
		ClientOrderID: uuid.NewString(),
	})
	if err != nil {
		e.logger.Error("failed to close position",
			zap.String("symbol", symbol),
			zap.String("reason", reason),
			zap.Error(err))
		return false
	}

	exit := order.FilledAvgPrice
	if exit == 0 {
		exit = pos.CurrentPrice
	}
	if exit == 0 {
		exit = pos.EntryPrice
	}
	if !e.ledger.ClosePosition(ctx, symbol, exit, reason) {
		return false
	}
	e.recordTrade(ctx, order, exit, computePnL(pos, exit))
	return true
}

// CancelAllOrders cancels every open broker order. Individual failures
// are logged and do not stop the sweep.
func (e *OrderExecutor) CancelAllOrders(ctx context.Context) int {
	var orders []*domain.Order
	err := e.brk.Get(BreakerOrders).Call(func() error {
		o, err := e.broker.ListOrders(ctx, "open", nil)
		if err != nil {
			return err
		}
		orders = o
		return nil
	})
	if err != nil {
		e.logger.Error("failed to list open orders", zap.Error(err))
		return 0
	}

	cancelled := 0
	for _, o := range orders {
		orderID := o.BrokerOrderID
		err := e.brk.Get(BreakerOrders).Call(func() error {
			return e.broker.CancelOrder(ctx, orderID)
		})
		if err != nil {
			e.logger.Warn("failed to cancel order",
				zap.String("order_id", orderID), zap.Error(err))
			continue
		}
		cancelled++
	}
	e.logger.Info("cancelled open orders", zap.Int("count", cancelled))
	return cancelled
}
