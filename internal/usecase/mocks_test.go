package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/stratex/tradecore/internal/domain"
)

// MockBroker is a scriptable domain.BrokerClient.
type MockBroker struct {
	mu sync.Mutex

	Account     *domain.Account
	AccountErr  error
	Quote       *domain.Quote
	QuoteErr    error
	Bars        []domain.Bar
	BarsErr     error
	ClockOpen   bool
	ClockErr    error
	OpenOrders  []*domain.Order
	ListErr     error
	SubmitErr   error
	SubmitFail  map[domain.OrderType]error // per-type submit failures
	CancelErr   error
	QuoteCalls  int
	BarsCalls   int
	SubmitCalls int
	Submitted   []*domain.OrderRequest
}

func NewMockBroker() *MockBroker {
	return &MockBroker{
		Account: &domain.Account{
			Equity:      100000,
			BuyingPower: 200000,
			Cash:        100000,
		},
		ClockOpen: true,
	}
}

func (m *MockBroker) GetAccount(ctx context.Context) (*domain.Account, error) {
	if m.AccountErr != nil {
		return nil, m.AccountErr
	}
	return m.Account, nil
}

func (m *MockBroker) ListPositions(ctx context.Context) ([]*domain.Position, error) {
	return nil, nil
}

func (m *MockBroker) ListOrders(ctx context.Context, status string, symbols []string) ([]*domain.Order, error) {
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	return m.OpenOrders, nil
}

func (m *MockBroker) SubmitOrder(ctx context.Context, req *domain.OrderRequest) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SubmitCalls++
	if m.SubmitErr != nil {
		return nil, m.SubmitErr
	}
	if err, ok := m.SubmitFail[req.Type]; ok && err != nil {
		return nil, err
	}
	m.Submitted = append(m.Submitted, req)
	return &domain.Order{
		BrokerOrderID:  "broker-" + req.ClientOrderID,
		ClientOrderID:  req.ClientOrderID,
		Symbol:         req.Symbol,
		Side:           req.Side,
		Qty:            req.Qty,
		Type:           req.Type,
		TimeInForce:    req.TimeInForce,
		Status:         domain.OrderFilled,
		FilledQty:      req.Qty,
		FilledAvgPrice: 0,
		SubmittedAt:    time.Now(),
	}, nil
}

func (m *MockBroker) CancelOrder(ctx context.Context, orderID string) error {
	return m.CancelErr
}

func (m *MockBroker) GetLatestQuote(ctx context.Context, symbol string) (*domain.Quote, error) {
	m.mu.Lock()
	m.QuoteCalls++
	m.mu.Unlock()
	if m.QuoteErr != nil {
		return nil, m.QuoteErr
	}
	if m.Quote != nil {
		return m.Quote, nil
	}
	return &domain.Quote{Symbol: symbol, Price: 100, Timestamp: time.Now()}, nil
}

func (m *MockBroker) GetBars(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]domain.Bar, error) {
	m.mu.Lock()
	m.BarsCalls++
	m.mu.Unlock()
	if m.BarsErr != nil {
		return nil, m.BarsErr
	}
	return m.Bars, nil
}

func (m *MockBroker) GetClock(ctx context.Context) (*domain.Clock, error) {
	if m.ClockErr != nil {
		return nil, m.ClockErr
	}
	return &domain.Clock{IsOpen: m.ClockOpen}, nil
}

// MockPositionRepo keeps positions in memory.
type MockPositionRepo struct {
	mu      sync.Mutex
	nextID  int64
	saved   []*domain.Position
	updates []*domain.PositionUpdate
	SaveErr error
}

func (m *MockPositionRepo) SavePosition(ctx context.Context, pos *domain.Position) (int64, error) {
	if m.SaveErr != nil {
		return 0, m.SaveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	cp := *pos
	cp.ID = m.nextID
	m.saved = append(m.saved, &cp)
	return m.nextID, nil
}

func (m *MockPositionRepo) UpdatePosition(ctx context.Context, pos *domain.Position) error {
	return m.SaveErr
}

func (m *MockPositionRepo) GetOpenPosition(ctx context.Context, symbol string) (*domain.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.saved {
		if p.Symbol == symbol && p.Status == domain.PositionOpen {
			return p, nil
		}
	}
	return nil, nil
}

func (m *MockPositionRepo) ListPositions(ctx context.Context, status domain.PositionStatus) ([]*domain.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Position
	for _, p := range m.saved {
		if p.Status == status {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *MockPositionRepo) ListAllPositions(ctx context.Context) ([]*domain.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saved, nil
}

func (m *MockPositionRepo) SavePositionUpdate(ctx context.Context, upd *domain.PositionUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates = append(m.updates, upd)
	return nil
}

// MockTradeRepo records trade history rows.
type MockTradeRepo struct {
	mu     sync.Mutex
	Trades []*domain.TradeRecord
}

func (m *MockTradeRepo) SaveTrade(ctx context.Context, rec *domain.TradeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Trades = append(m.Trades, rec)
	return nil
}

func (m *MockTradeRepo) ListTrades(ctx context.Context, limit int) ([]*domain.TradeRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Trades, nil
}

// MockRiskRepo records risk events.
type MockRiskRepo struct {
	mu     sync.Mutex
	Events []*domain.RiskEvent
}

func (m *MockRiskRepo) SaveRiskEvent(ctx context.Context, ev *domain.RiskEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, ev)
	return nil
}

func (m *MockRiskRepo) ListRiskEvents(ctx context.Context, limit int) ([]*domain.RiskEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Events, nil
}

// MockPriceCacheRepo is an in-memory persistent price store.
type MockPriceCacheRepo struct {
	mu     sync.Mutex
	prices map[string]*domain.CachedPrice
	Err    error
}

func NewMockPriceCacheRepo() *MockPriceCacheRepo {
	return &MockPriceCacheRepo{prices: make(map[string]*domain.CachedPrice)}
}

func (m *MockPriceCacheRepo) UpsertPrice(ctx context.Context, symbol string, price float64, ts time.Time) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices[symbol] = &domain.CachedPrice{Symbol: symbol, Price: price, Timestamp: ts}
	return nil
}

func (m *MockPriceCacheRepo) GetPrice(ctx context.Context, symbol string, maxAge time.Duration) (*domain.CachedPrice, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.prices[symbol]
	if !ok || time.Since(p.Timestamp) > maxAge {
		return nil, nil
	}
	return p, nil
}

// MockBarRepo records saved bars.
type MockBarRepo struct {
	mu    sync.Mutex
	Saved []domain.Bar
}

func (m *MockBarRepo) SaveBars(ctx context.Context, bars []domain.Bar) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Saved = append(m.Saved, bars...)
	return nil
}

func (m *MockBarRepo) ListBars(ctx context.Context, symbol, timeframe string, limit int) ([]domain.Bar, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Saved, nil
}

var errBrokerDown = errors.New("broker unreachable")
