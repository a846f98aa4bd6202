package usecase

import (
	"testing"
	"time"

	"github.com/stratex/tradecore/internal/domain"
	"go.uber.org/zap"
)

func newTestFilter(gap time.Duration, confirm bool) (*SignalFilter, *time.Time) {
	now := time.Now()
	f := NewSignalFilter(SignalFilterConfig{
		MinStrength:         30,
		MinSignalGap:        gap,
		RequireConfirmation: confirm,
	}, zap.NewNop())
	f.timeNow = func() time.Time { return now }
	return f, &now
}

func buySignal(symbol string, strength float64) *domain.TradingSignal {
	return &domain.TradingSignal{
		Symbol:    symbol,
		Action:    domain.ActionBuy,
		Strength:  strength,
		Price:     100,
		Timestamp: time.Now(),
	}
}

func TestSignalFilter_RejectsHold(t *testing.T) {
	f, _ := newTestFilter(time.Minute, false)
	sig := buySignal("AAPL", 80)
	sig.Action = domain.ActionHold
	if f.ShouldProcess(sig) {
		t.Error("HOLD signal should be rejected")
	}
}

func TestSignalFilter_RejectsWeakSignal(t *testing.T) {
	f, _ := newTestFilter(time.Minute, false)
	if f.ShouldProcess(buySignal("AAPL", 20)) {
		t.Error("signal below minimum strength should be rejected")
	}
	if !f.ShouldProcess(buySignal("AAPL", 30)) {
		t.Error("signal at minimum strength should pass")
	}
}

func TestSignalFilter_MinimumGap(t *testing.T) {
	f, now := newTestFilter(60*time.Second, false)

	first := buySignal("AAPL", 80)
	first.Timestamp = *now
	if !f.ShouldProcess(first) {
		t.Fatal("first signal should pass")
	}

	// Second signal inside the gap, opposite action so only the gap rule applies.
	*now = now.Add(30 * time.Second)
	second := buySignal("AAPL", 80)
	second.Action = domain.ActionSell
	second.Timestamp = *now
	if f.ShouldProcess(second) {
		t.Error("signal within minimum gap should be rejected")
	}

	// After the gap it passes.
	*now = now.Add(31 * time.Second)
	third := buySignal("AAPL", 80)
	third.Action = domain.ActionSell
	third.Timestamp = *now
	if !f.ShouldProcess(third) {
		t.Error("signal after the gap should pass")
	}
}

func TestSignalFilter_RejectsRepeatAction(t *testing.T) {
	f, now := newTestFilter(time.Second, false)

	first := buySignal("AAPL", 80)
	first.Timestamp = *now
	if !f.ShouldProcess(first) {
		t.Fatal("first signal should pass")
	}

	*now = now.Add(time.Hour)
	if f.ShouldProcess(buySignal("AAPL", 80)) {
		t.Error("repeated BUY for the same symbol should be rejected")
	}

	// A different symbol is unaffected.
	if !f.ShouldProcess(buySignal("MSFT", 80)) {
		t.Error("signal for a different symbol should pass")
	}
}

func TestSignalFilter_RejectionDoesNotOverwriteState(t *testing.T) {
	f, now := newTestFilter(60*time.Second, false)

	first := buySignal("AAPL", 80)
	first.Timestamp = *now
	f.ShouldProcess(first)

	*now = now.Add(30 * time.Second)
	rejected := buySignal("AAPL", 80)
	rejected.Action = domain.ActionSell
	rejected.Timestamp = *now
	f.ShouldProcess(rejected)

	if got := f.LastAccepted("AAPL"); got != first {
		t.Error("rejected signal must not overwrite last-accepted state")
	}
}

func TestSignalFilter_Confirmation(t *testing.T) {
	f, _ := newTestFilter(time.Minute, true)

	sig := buySignal("AAPL", 80)
	sig.Indicators = map[string]interface{}{"volume_confirmed": false}
	if f.Confirm(sig) {
		t.Error("unconfirmed volume should veto the signal")
	}

	overbought := buySignal("AAPL", 80)
	overbought.Indicators = map[string]interface{}{"rsi": 75.0}
	if f.Confirm(overbought) {
		t.Error("BUY with RSI > 70 should be vetoed")
	}

	oversold := buySignal("AAPL", 80)
	oversold.Action = domain.ActionSell
	oversold.Indicators = map[string]interface{}{"rsi": 25.0}
	if f.Confirm(oversold) {
		t.Error("SELL with RSI < 30 should be vetoed")
	}

	fine := buySignal("AAPL", 80)
	fine.Indicators = map[string]interface{}{"rsi": 55.0, "volume_confirmed": true}
	if !f.Confirm(fine) {
		t.Error("signal with healthy indicators should be confirmed")
	}
}

func TestSignalFilter_ConfirmationDisabled(t *testing.T) {
	f, _ := newTestFilter(time.Minute, false)
	sig := buySignal("AAPL", 80)
	sig.Indicators = map[string]interface{}{"rsi": 99.0}
	if !f.Confirm(sig) {
		t.Error("confirmation disabled should always pass")
	}
}
