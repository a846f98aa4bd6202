package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/stratex/tradecore/internal/domain"
	"go.uber.org/zap"
)

const (
	DefaultBaseURL = "https://paper-api.alpaca.markets"
	DefaultDataURL = "https://data.alpaca.markets"
)

// AlpacaAdapter implements domain.BrokerClient against an Alpaca-compatible
// REST API. The wire schema is treated as opaque by the rest of the system;
// all callers go through the BrokerClient interface and a circuit breaker.
type AlpacaAdapter struct {
	apiKey    string
	apiSecret string
	baseURL   string
	dataURL   string
	client    *http.Client
	logger    *zap.Logger
}

func NewAlpacaAdapter(apiKey, apiSecret, baseURL, dataURL string, logger *zap.Logger) *AlpacaAdapter {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if dataURL == "" {
		dataURL = DefaultDataURL
	}
	return &AlpacaAdapter{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		baseURL:   baseURL,
		dataURL:   dataURL,
		client:    &http.Client{Timeout: 10 * time.Second},
		logger:    logger,
	}
}

func (a *AlpacaAdapter) sendRequest(ctx context.Context, method, base, path string, payload interface{}) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		jsonBody, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, base+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("APCA-API-KEY-ID", a.apiKey)
	req.Header.Set("APCA-API-SECRET-KEY", a.apiSecret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("broker API error (%d): %s", resp.StatusCode, string(respBody))
	}
	return respBody, nil
}

type accountResponse struct {
	Equity           string `json:"equity"`
	BuyingPower      string `json:"buying_power"`
	Cash             string `json:"cash"`
	TradingBlocked   bool   `json:"trading_blocked"`
	AccountBlocked   bool   `json:"account_blocked"`
	TransfersBlocked bool   `json:"transfers_blocked"`
	PatternDayTrader bool   `json:"pattern_day_trader"`
	DaytradeCount    int    `json:"daytrade_count"`
	PortfolioValue   string `json:"portfolio_value"`
	ShortingEnabled  bool   `json:"shorting_enabled"`
}

func (a *AlpacaAdapter) GetAccount(ctx context.Context) (*domain.Account, error) {
	body, err := a.sendRequest(ctx, http.MethodGet, a.baseURL, "/v2/account", nil)
	if err != nil {
		return nil, err
	}
	var resp accountResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse account: %w", err)
	}
	return &domain.Account{
		Equity:           parseFloat(resp.Equity),
		BuyingPower:      parseFloat(resp.BuyingPower),
		Cash:             parseFloat(resp.Cash),
		TradingBlocked:   resp.TradingBlocked || resp.AccountBlocked,
		PatternDayTrader: resp.PatternDayTrader,
		DaytradeCount:    resp.DaytradeCount,
		PortfolioValue:   parseFloat(resp.PortfolioValue),
		ShortingEnabled:  resp.ShortingEnabled,
	}, nil
}

type positionResponse struct {
	Symbol       string `json:"symbol"`
	Qty          string `json:"qty"`
	Side         string `json:"side"`
	AvgEntry     string `json:"avg_entry_price"`
	CurrentPrice string `json:"current_price"`
	UnrealizedPL string `json:"unrealized_pl"`
}

func (a *AlpacaAdapter) ListPositions(ctx context.Context) ([]*domain.Position, error) {
	body, err := a.sendRequest(ctx, http.MethodGet, a.baseURL, "/v2/positions", nil)
	if err != nil {
		return nil, err
	}
	var resp []positionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse positions: %w", err)
	}

	positions := make([]*domain.Position, 0, len(resp))
	for _, p := range resp {
		side := domain.SideLong
		if p.Side == "short" {
			side = domain.SideShort
		}
		pos := &domain.Position{
			Symbol:     p.Symbol,
			Quantity:   parseFloat(p.Qty),
			Side:       side,
			EntryPrice: parseFloat(p.AvgEntry),
			Status:     domain.PositionOpen,
		}
		pos.ComputeUnrealizedPnL(parseFloat(p.CurrentPrice))
		positions = append(positions, pos)
	}
	return positions, nil
}

type orderResponse struct {
	ID             string `json:"id"`
	ClientOrderID  string `json:"client_order_id"`
	Symbol         string `json:"symbol"`
	Qty            string `json:"qty"`
	Side           string `json:"side"`
	Type           string `json:"type"`
	TimeInForce    string `json:"time_in_force"`
	LimitPrice     string `json:"limit_price"`
	StopPrice      string `json:"stop_price"`
	Status         string `json:"status"`
	FilledQty      string `json:"filled_qty"`
	FilledAvgPrice string `json:"filled_avg_price"`
	SubmittedAt    string `json:"submitted_at"`
}

func (r *orderResponse) toDomain() *domain.Order {
	o := &domain.Order{
		BrokerOrderID:  r.ID,
		ClientOrderID:  r.ClientOrderID,
		Symbol:         r.Symbol,
		Side:           domain.OrderSide(r.Side),
		Qty:            parseFloat(r.Qty),
		Type:           domain.OrderType(r.Type),
		LimitPrice:     parseFloat(r.LimitPrice),
		StopPrice:      parseFloat(r.StopPrice),
		TimeInForce:    domain.TimeInForce(r.TimeInForce),
		Status:         mapOrderStatus(r.Status),
		FilledQty:      parseFloat(r.FilledQty),
		FilledAvgPrice: parseFloat(r.FilledAvgPrice),
	}
	if ts, err := time.Parse(time.RFC3339, r.SubmittedAt); err == nil {
		o.SubmittedAt = ts
	}
	return o
}

func mapOrderStatus(s string) domain.OrderStatus {
	switch s {
	case "new", "accepted", "pending_new":
		return domain.OrderSubmitted
	case "filled":
		return domain.OrderFilled
	case "partially_filled":
		return domain.OrderPartiallyFilled
	case "canceled", "pending_cancel":
		return domain.OrderCancelled
	case "rejected":
		return domain.OrderRejected
	case "expired":
		return domain.OrderExpired
	default:
		return domain.OrderPending
	}
}

func (a *AlpacaAdapter) ListOrders(ctx context.Context, status string, symbols []string) ([]*domain.Order, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	for _, s := range symbols {
		q.Add("symbols", s)
	}
	path := "/v2/orders"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	body, err := a.sendRequest(ctx, http.MethodGet, a.baseURL, path, nil)
	if err != nil {
		return nil, err
	}
	var resp []orderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse orders: %w", err)
	}
	orders := make([]*domain.Order, 0, len(resp))
	for i := range resp {
		orders = append(orders, resp[i].toDomain())
	}
	return orders, nil
}

func (a *AlpacaAdapter) SubmitOrder(ctx context.Context, req *domain.OrderRequest) (*domain.Order, error) {
	payload := map[string]interface{}{
		"symbol":        req.Symbol,
		"qty":           strconv.FormatFloat(req.Qty, 'f', -1, 64),
		"side":          string(req.Side),
		"type":          string(req.Type),
		"time_in_force": string(req.TimeInForce),
	}
	if req.LimitPrice > 0 {
		payload["limit_price"] = strconv.FormatFloat(req.LimitPrice, 'f', -1, 64)
	}
	if req.StopPrice > 0 {
		payload["stop_price"] = strconv.FormatFloat(req.StopPrice, 'f', -1, 64)
	}
	if req.ClientOrderID != "" {
		payload["client_order_id"] = req.ClientOrderID
	}

	body, err := a.sendRequest(ctx, http.MethodPost, a.baseURL, "/v2/orders", payload)
	if err != nil {
		return nil, err
	}
	var resp orderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse order: %w", err)
	}
	return resp.toDomain(), nil
}

func (a *AlpacaAdapter) CancelOrder(ctx context.Context, orderID string) error {
	_, err := a.sendRequest(ctx, http.MethodDelete, a.baseURL, "/v2/orders/"+orderID, nil)
	return err
}

func (a *AlpacaAdapter) GetLatestQuote(ctx context.Context, symbol string) (*domain.Quote, error) {
	path := fmt.Sprintf("/v2/stocks/%s/trades/latest", symbol)
	body, err := a.sendRequest(ctx, http.MethodGet, a.dataURL, path, nil)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Symbol string `json:"symbol"`
		Trade  struct {
			Price     float64 `json:"p"`
			Timestamp string  `json:"t"`
		} `json:"trade"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse quote: %w", err)
	}
	quote := &domain.Quote{Symbol: symbol, Price: resp.Trade.Price}
	if ts, err := time.Parse(time.RFC3339Nano, resp.Trade.Timestamp); err == nil {
		quote.Timestamp = ts
	}
	return quote, nil
}

func (a *AlpacaAdapter) GetBars(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]domain.Bar, error) {
	q := url.Values{}
	q.Set("timeframe", timeframe)
	q.Set("start", start.Format(time.RFC3339))
	q.Set("end", end.Format(time.RFC3339))
	path := fmt.Sprintf("/v2/stocks/%s/bars?%s", symbol, q.Encode())

	body, err := a.sendRequest(ctx, http.MethodGet, a.dataURL, path, nil)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Bars []struct {
			Timestamp string  `json:"t"`
			Open      float64 `json:"o"`
			High      float64 `json:"h"`
			Low       float64 `json:"l"`
			Close     float64 `json:"c"`
			Volume    float64 `json:"v"`
		} `json:"bars"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse bars: %w", err)
	}

	bars := make([]domain.Bar, 0, len(resp.Bars))
	for _, b := range resp.Bars {
		bar := domain.Bar{
			Symbol:    symbol,
			Timeframe: timeframe,
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
		}
		if ts, err := time.Parse(time.RFC3339Nano, b.Timestamp); err == nil {
			bar.Timestamp = ts
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

func (a *AlpacaAdapter) GetClock(ctx context.Context) (*domain.Clock, error) {
	body, err := a.sendRequest(ctx, http.MethodGet, a.baseURL, "/v2/clock", nil)
	if err != nil {
		return nil, err
	}
	var resp struct {
		IsOpen    bool   `json:"is_open"`
		NextOpen  string `json:"next_open"`
		NextClose string `json:"next_close"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse clock: %w", err)
	}
	clock := &domain.Clock{IsOpen: resp.IsOpen}
	if ts, err := time.Parse(time.RFC3339, resp.NextOpen); err == nil {
		clock.NextOpen = ts
	}
	if ts, err := time.Parse(time.RFC3339, resp.NextClose); err == nil {
		clock.NextClose = ts
	}
	return clock, nil
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
