package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

var (
	ErrPoolClosed  = errors.New("connection pool is closed")
	ErrPoolTimeout = errors.New("timed out waiting for a connection")
)

// Pool is a bounded pool of SQLite connections. Each pooled handle is its
// own database connection (max one open conn per handle) so that the
// acquire/validate/release discipline is enforced here rather than inside
// database/sql.
type Pool struct {
	path    string
	max     int
	timeout time.Duration
	logger  *zap.Logger

	mu      sync.Mutex
	created int
	closed  bool
	idle    chan *sql.DB
}

// NewPool creates a pool for the database at path, holding at most max
// connections. Acquisition blocks up to timeout when the pool is
// exhausted.
func NewPool(path string, max int, timeout time.Duration, logger *zap.Logger) *Pool {
	return &Pool{
		path:    path,
		max:     max,
		timeout: timeout,
		logger:  logger,
		idle:    make(chan *sql.DB, max),
	}
}

// WithConn runs fn with an acquired connection and guarantees release on
// every exit path.
func (p *Pool) WithConn(ctx context.Context, fn func(db *sql.DB) error) error {
	db, err := p.acquire(ctx)
	if err != nil {
		return err
	}
	defer p.release(db)
	return fn(db)
}

func (p *Pool) acquire(ctx context.Context) (*sql.DB, error) {
	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, ErrPoolClosed
		}

		// Fast path: reuse an idle connection.
		select {
		case db := <-p.idle:
			p.mu.Unlock()
			if p.validate(ctx, db) {
				return db, nil
			}
			p.discard(db)
			continue
		default:
		}

		// Under the creation limit: open a new connection.
		if p.created < p.max {
			p.created++
			p.mu.Unlock()
			db, err := p.open()
			if err != nil {
				p.mu.Lock()
				p.created--
				p.mu.Unlock()
				return nil, err
			}
			return db, nil
		}
		p.mu.Unlock()

		// Pool exhausted: wait for a release.
		select {
		case db := <-p.idle:
			if p.validate(ctx, db) {
				return db, nil
			}
			p.discard(db)
			// A slot freed up, retry creation.
		case <-time.After(p.timeout):
			return nil, ErrPoolTimeout
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (p *Pool) release(db *sql.DB) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()

	if closed || !p.validate(context.Background(), db) {
		p.discard(db)
		return
	}

	select {
	case p.idle <- db:
	default:
		// Should not happen with created <= max, but never block a release.
		p.discard(db)
	}
}

func (p *Pool) open() (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", p.path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// One OS-level connection per pooled handle.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite: %w", err)
	}
	return db, nil
}

func (p *Pool) validate(ctx context.Context, db *sql.DB) bool {
	var one int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		p.logger.Warn("discarding invalid pooled connection", zap.Error(err))
		return false
	}
	return one == 1
}

func (p *Pool) discard(db *sql.DB) {
	db.Close()
	p.mu.Lock()
	p.created--
	p.mu.Unlock()
}

// Stats returns pool occupancy for the status endpoint.
func (p *Pool) Stats() (created, idle int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.created, len(p.idle)
}

// Close drains and closes every pooled connection and rejects further
// acquisitions. Connections currently in use are closed on release.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	for {
		select {
		case db := <-p.idle:
			db.Close()
			p.mu.Lock()
			p.created--
			p.mu.Unlock()
		default:
			return nil
		}
	}
}
