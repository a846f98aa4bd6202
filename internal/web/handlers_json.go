package web

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/stratex/tradecore/internal/domain"
	"github.com/stratex/tradecore/internal/usecase"
	"go.uber.org/zap"
)

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var sig domain.TradingSignal
	if err := json.NewDecoder(r.Body).Decode(&sig); err != nil {
		http.Error(w, "Invalid signal payload", http.StatusBadRequest)
		return
	}
	if sig.Symbol == "" {
		http.Error(w, "Signal symbol is required", http.StatusBadRequest)
		return
	}
	if sig.Timestamp.IsZero() {
		sig.Timestamp = time.Now()
	}

	result := s.executor.Execute(r.Context(), &sig)
	status := http.StatusOK
	if result.Status == usecase.ExecutionQueued {
		status = http.StatusAccepted
	}
	s.writeJSON(w, status, result)
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.executor.GetPositionSummary())
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.executor.GetPositionSummary().Metrics)
}

func (s *Server) handleRiskCheck(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.executor.CheckRiskManagement(r.Context()))
}

func (s *Server) handleClosePosition(w http.ResponseWriter, r *http.Request) {
	symbol := r.PathValue("symbol")

	var body struct {
		Reason string `json:"reason"`
	}
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&body)
	}
	if body.Reason == "" {
		body.Reason = "manual close"
	}

	if !s.executor.ClosePositionBySymbol(r.Context(), symbol, body.Reason) {
		http.Error(w, "No open position for symbol", http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"symbol": symbol, "status": "closed"})
}

func (s *Server) handleUpdateLevels(w http.ResponseWriter, r *http.Request) {
	symbol := r.PathValue("symbol")

	var body struct {
		StopLoss   float64 `json:"stop_loss"`
		TakeProfit float64 `json:"take_profit"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid levels payload", http.StatusBadRequest)
		return
	}

	if !s.executor.UpdatePositionLevels(r.Context(), symbol, body.StopLoss, body.TakeProfit) {
		http.Error(w, "No open position for symbol", http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"symbol": symbol, "status": "updated"})
}

func (s *Server) handleCancelAll(w http.ResponseWriter, r *http.Request) {
	cancelled := s.executor.CancelAllOrders(r.Context())
	s.writeJSON(w, http.StatusOK, map[string]int{"cancelled": cancelled})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	marketOpen, err := s.gateway.IsMarketOpen(r.Context())
	if err != nil {
		s.logger.Warn("Market clock unavailable for status", zap.Error(err))
	}

	created, idle := s.pool.Stats()
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"market_open":    marketOpen,
		"queued_signals": s.executor.QueuedCount(),
		"breakers":       s.breakers.Snapshots(),
		"cache":          s.cache.Stats(),
		"pool": map[string]int{
			"created": created,
			"idle":    idle,
		},
	})
}
