package breaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var errRemote = errors.New("remote down")

func newTestBreaker(t *testing.T, threshold int, timeout time.Duration) (*CircuitBreaker, *time.Time) {
	t.Helper()
	now := time.Now()
	cb := New("test", Config{FailureThreshold: threshold, RecoveryTimeout: timeout}, zap.NewNop())
	cb.timeNow = func() time.Time { return now }
	return cb, &now
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	cb, _ := newTestBreaker(t, 3, time.Minute)

	for i := 0; i < 3; i++ {
		err := cb.Call(func() error { return errRemote })
		require.ErrorIs(t, err, errRemote)
	}
	assert.Equal(t, StateOpen, cb.GetState())

	// Further calls fail fast without invoking the operation.
	invoked := false
	err := cb.Call(func() error { invoked = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, invoked)
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb, _ := newTestBreaker(t, 3, time.Minute)

	cb.Call(func() error { return errRemote })
	cb.Call(func() error { return errRemote })
	require.NoError(t, cb.Call(func() error { return nil }))

	// Two more failures must not trip the breaker.
	cb.Call(func() error { return errRemote })
	cb.Call(func() error { return errRemote })
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestBreaker_HalfOpenRecovery(t *testing.T) {
	cb, now := newTestBreaker(t, 2, 30*time.Second)

	cb.Call(func() error { return errRemote })
	cb.Call(func() error { return errRemote })
	require.Equal(t, StateOpen, cb.GetState())

	// Before the recovery timeout the breaker stays shut.
	*now = now.Add(10 * time.Second)
	err := cb.Call(func() error { return nil })
	require.ErrorIs(t, err, ErrCircuitOpen)

	// After the timeout one trial is admitted; success closes the breaker.
	*now = now.Add(25 * time.Second)
	require.NoError(t, cb.Call(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb, now := newTestBreaker(t, 1, 10*time.Second)

	cb.Call(func() error { return errRemote })
	require.Equal(t, StateOpen, cb.GetState())

	*now = now.Add(11 * time.Second)
	err := cb.Call(func() error { return errRemote })
	require.ErrorIs(t, err, errRemote)
	assert.Equal(t, StateOpen, cb.GetState())

	// The failed trial re-arms the recovery timer.
	*now = now.Add(5 * time.Second)
	err = cb.Call(func() error { return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestRegistry_ReturnsSameInstance(t *testing.T) {
	r := NewRegistry(Config{FailureThreshold: 2, RecoveryTimeout: time.Minute}, zap.NewNop())

	quotes := r.Get("quotes")
	assert.Same(t, quotes, r.Get("quotes"))
	assert.NotSame(t, quotes, r.Get("bars"))

	quotes.Call(func() error { return errRemote })
	snaps := r.Snapshots()
	assert.Len(t, snaps, 2)
}
