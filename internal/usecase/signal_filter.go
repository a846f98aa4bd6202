package usecase

import (
	"sync"
	"time"

	"github.com/stratex/tradecore/internal/domain"
	"go.uber.org/zap"
)

// SignalFilterConfig holds the debounce/confirmation tunables.
type SignalFilterConfig struct {
	MinStrength         float64
	MinSignalGap        time.Duration
	RequireConfirmation bool
}

// SignalFilter debounces the raw signal stream. The only state kept is
// the last accepted signal per symbol, overwritten on acceptance and
// never on rejection.
type SignalFilter struct {
	cfg    SignalFilterConfig
	logger *zap.Logger

	mu           sync.Mutex
	lastAccepted map[string]*domain.TradingSignal

	timeNow func() time.Time // for testing
}

func NewSignalFilter(cfg SignalFilterConfig, logger *zap.Logger) *SignalFilter {
	return &SignalFilter{
		cfg:          cfg,
		logger:       logger,
		lastAccepted: make(map[string]*domain.TradingSignal),
		timeNow:      time.Now,
	}
}

// ShouldProcess applies the debounce rules in order and records the signal
// as last-accepted when it passes.
func (f *SignalFilter) ShouldProcess(sig *domain.TradingSignal) bool {
	if sig.Action == domain.ActionHold {
		return false
	}
	if sig.Strength < f.cfg.MinStrength {
		f.logger.Debug("signal below minimum strength",
			zap.String("symbol", sig.Symbol),
			zap.Float64("strength", sig.Strength),
			zap.Float64("min", f.cfg.MinStrength))
		return false
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if prev, ok := f.lastAccepted[sig.Symbol]; ok {
		if f.timeNow().Sub(prev.Timestamp) < f.cfg.MinSignalGap {
			f.logger.Debug("signal within minimum gap",
				zap.String("symbol", sig.Symbol),
				zap.Duration("gap", f.cfg.MinSignalGap))
			return false
		}
		if prev.Action == sig.Action {
			f.logger.Debug("repeated signal action",
				zap.String("symbol", sig.Symbol),
				zap.String("action", string(sig.Action)))
			return false
		}
	}

	f.lastAccepted[sig.Symbol] = sig
	return true
}

// Confirm applies indicator-based confirmation. Returns true when
// confirmation is disabled or no indicator vetoes the signal.
func (f *SignalFilter) Confirm(sig *domain.TradingSignal) bool {
	if !f.cfg.RequireConfirmation {
		return true
	}

	if confirmed, ok := sig.BoolIndicator("volume_confirmed"); ok && !confirmed {
		f.logger.Debug("signal lacks volume confirmation", zap.String("symbol", sig.Symbol))
		return false
	}

	if rsi, ok := sig.Indicator("rsi"); ok {
		if sig.Action == domain.ActionBuy && rsi > 70 {
			f.logger.Debug("buy rejected, overbought",
				zap.String("symbol", sig.Symbol), zap.Float64("rsi", rsi))
			return false
		}
		if sig.Action == domain.ActionSell && rsi < 30 {
			f.logger.Debug("sell rejected, oversold",
				zap.String("symbol", sig.Symbol), zap.Float64("rsi", rsi))
			return false
		}
	}
	return true
}

// LastAccepted returns the most recent accepted signal for a symbol.
func (f *SignalFilter) LastAccepted(symbol string) *domain.TradingSignal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastAccepted[symbol]
}
