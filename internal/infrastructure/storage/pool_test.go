package storage

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestPool(t *testing.T, max int, timeout time.Duration) *Pool {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pool_test.db")
	p := NewPool(path, max, timeout, zap.NewNop())
	t.Cleanup(func() { p.Close() })
	return p
}

func TestPool_WithConnReleasesOnSuccess(t *testing.T) {
	p := newTestPool(t, 2, time.Second)

	err := p.WithConn(context.Background(), func(db *sql.DB) error {
		var one int
		return db.QueryRow("SELECT 1").Scan(&one)
	})
	require.NoError(t, err)

	created, idle := p.Stats()
	assert.Equal(t, 1, created)
	assert.Equal(t, 1, idle)
}

func TestPool_ReleasesOnError(t *testing.T) {
	p := newTestPool(t, 1, time.Second)

	err := p.WithConn(context.Background(), func(db *sql.DB) error {
		_, err := db.Exec("NOT VALID SQL")
		return err
	})
	require.Error(t, err)

	// The connection must be back in the pool despite the error.
	err = p.WithConn(context.Background(), func(db *sql.DB) error { return nil })
	assert.NoError(t, err)
}

func TestPool_BlocksUntilTimeoutWhenExhausted(t *testing.T) {
	p := newTestPool(t, 1, 100*time.Millisecond)

	held := make(chan struct{})
	release := make(chan struct{})
	go p.WithConn(context.Background(), func(db *sql.DB) error {
		close(held)
		<-release
		return nil
	})
	<-held

	start := time.Now()
	err := p.WithConn(context.Background(), func(db *sql.DB) error { return nil })
	assert.ErrorIs(t, err, ErrPoolTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)

	close(release)
}

func TestPool_ConcurrentUseStaysBounded(t *testing.T) {
	p := newTestPool(t, 3, 5*time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := p.WithConn(context.Background(), func(db *sql.DB) error {
				var one int
				return db.QueryRow("SELECT 1").Scan(&one)
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	created, _ := p.Stats()
	assert.LessOrEqual(t, created, 3)
}

func TestPool_CloseRejectsAcquisitions(t *testing.T) {
	p := newTestPool(t, 2, time.Second)

	require.NoError(t, p.WithConn(context.Background(), func(db *sql.DB) error { return nil }))
	require.NoError(t, p.Close())

	err := p.WithConn(context.Background(), func(db *sql.DB) error { return nil })
	assert.ErrorIs(t, err, ErrPoolClosed)

	created, idle := p.Stats()
	assert.Equal(t, 0, created)
	assert.Equal(t, 0, idle)
}
