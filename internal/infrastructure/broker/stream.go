package broker

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// TradeStream subscribes to the broker's trade feed over WebSocket and
// fans incoming prices out to registered callbacks. Reconnection is the
// caller's concern; a closed stream simply stops delivering.
type TradeStream struct {
	url       string
	apiKey    string
	apiSecret string
	logger    *zap.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	callbacks []func(symbol string, price float64, ts time.Time)
	done      chan struct{}
	symbols   []string
}

func NewTradeStream(url, apiKey, apiSecret string, logger *zap.Logger) *TradeStream {
	return &TradeStream{
		url:       url,
		apiKey:    apiKey,
		apiSecret: apiSecret,
		logger:    logger,
		done:      make(chan struct{}),
	}
}

// OnPriceUpdate registers a callback invoked for every streamed trade.
func (s *TradeStream) OnPriceUpdate(cb func(symbol string, price float64, ts time.Time)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callbacks = append(s.callbacks, cb)
}

// Connect dials the stream, authenticates and subscribes to symbols.
func (s *TradeStream) Connect(symbols []string) error {
	c, _, err := websocket.DefaultDialer.Dial(s.url, nil)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.conn = c
	s.symbols = symbols
	s.mu.Unlock()

	auth := map[string]string{"action": "auth", "key": s.apiKey, "secret": s.apiSecret}
	if err := c.WriteJSON(auth); err != nil {
		c.Close()
		return err
	}
	sub := map[string]interface{}{"action": "subscribe", "trades": symbols}
	if err := c.WriteJSON(sub); err != nil {
		c.Close()
		return err
	}

	go s.readLoop(c)
	return nil
}

type streamMessage struct {
	Type      string  `json:"T"`
	Symbol    string  `json:"S"`
	Price     float64 `json:"p"`
	Timestamp string  `json:"t"`
}

func (s *TradeStream) readLoop(c *websocket.Conn) {
	defer c.Close()
	for {
		select {
		case <-s.done:
			return
		default:
		}

		_, raw, err := c.ReadMessage()
		if err != nil {
			s.logger.Warn("trade stream read failed", zap.Error(err))
			return
		}

		var msgs []streamMessage
		if err := json.Unmarshal(raw, &msgs); err != nil {
			continue
		}
		for _, m := range msgs {
			if m.Type != "t" || m.Price == 0 {
				continue
			}
			ts, _ := time.Parse(time.RFC3339Nano, m.Timestamp)

			s.mu.Lock()
			cbs := make([]func(string, float64, time.Time), len(s.callbacks))
			copy(cbs, s.callbacks)
			s.mu.Unlock()

			for _, cb := range cbs {
				cb(m.Symbol, m.Price, ts)
			}
		}
	}
}

// Close stops the read loop and closes the connection.
func (s *TradeStream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.done:
	default:
		close(s.done)
	}
	if s.conn != nil {
		s.conn.Close()
	}
}
