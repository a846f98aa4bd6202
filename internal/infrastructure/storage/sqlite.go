package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/stratex/tradecore/internal/domain"
	"go.uber.org/zap"
)

// SQLiteStore implements the repository interfaces over the connection
// pool. One store instance serves every table; per-table access stays
// behind the same pooling discipline.
type SQLiteStore struct {
	pool   *Pool
	logger *zap.Logger
}

func NewSQLiteStore(pool *Pool, logger *zap.Logger) (*SQLiteStore, error) {
	s := &SQLiteStore{pool: pool, logger: logger}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS positions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol TEXT NOT NULL,
			qty REAL NOT NULL,
			side TEXT NOT NULL,
			entry_price REAL NOT NULL,
			entry_time DATETIME NOT NULL,
			stop_loss REAL NOT NULL DEFAULT 0,
			take_profit REAL NOT NULL DEFAULT 0,
			risk_amount REAL NOT NULL DEFAULT 0,
			strategy TEXT,
			status TEXT NOT NULL DEFAULT 'open',
			exit_price REAL,
			exit_time DATETIME,
			realized_pnl REAL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_positions_symbol_status ON positions(symbol, status);`,
		`CREATE TABLE IF NOT EXISTS position_updates (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			position_id INTEGER NOT NULL,
			price REAL NOT NULL,
			market_value REAL NOT NULL,
			unrealized_pnl REAL NOT NULL,
			timestamp DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS risk_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			event_type TEXT NOT NULL,
			symbol TEXT,
			description TEXT,
			severity TEXT NOT NULL,
			triggered_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS price_cache (
			symbol TEXT PRIMARY KEY,
			price REAL NOT NULL,
			timestamp DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS trade_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp DATETIME NOT NULL,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			qty REAL NOT NULL,
			price REAL NOT NULL,
			pnl REAL NOT NULL DEFAULT 0,
			order_id TEXT UNIQUE
		);`,
		`CREATE TABLE IF NOT EXISTS bars (
			symbol TEXT NOT NULL,
			timeframe TEXT NOT NULL,
			timestamp DATETIME NOT NULL,
			open REAL NOT NULL,
			high REAL NOT NULL,
			low REAL NOT NULL,
			close REAL NOT NULL,
			volume REAL NOT NULL,
			PRIMARY KEY (symbol, timeframe, timestamp)
		);`,
	}

	return s.pool.WithConn(context.Background(), func(db *sql.DB) error {
		for _, q := range queries {
			if _, err := db.Exec(q); err != nil {
				return fmt.Errorf("failed to exec query %s: %w", q, err)
			}
		}
		return nil
	})
}

// PositionRepository Implementation

const positionColumns = `id, symbol, qty, side, entry_price, entry_time, stop_loss, take_profit, risk_amount, strategy, status, exit_price, exit_time, realized_pnl`

func (s *SQLiteStore) SavePosition(ctx context.Context, pos *domain.Position) (int64, error) {
	var id int64
	err := s.pool.WithConn(ctx, func(db *sql.DB) error {
		res, err := db.ExecContext(ctx,
			`INSERT INTO positions (symbol, qty, side, entry_price, entry_time, stop_loss, take_profit, risk_amount, strategy, status)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			pos.Symbol, pos.Quantity, pos.Side, pos.EntryPrice, pos.EntryTime,
			pos.StopLoss, pos.TakeProfit, pos.RiskAmount, pos.Strategy, pos.Status)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	return id, err
}

func (s *SQLiteStore) UpdatePosition(ctx context.Context, pos *domain.Position) error {
	return s.pool.WithConn(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx,
			`UPDATE positions SET qty = ?, stop_loss = ?, take_profit = ?, status = ?, exit_price = ?, exit_time = ?, realized_pnl = ?
			 WHERE id = ?`,
			pos.Quantity, pos.StopLoss, pos.TakeProfit, pos.Status,
			nullFloat(pos.ExitPrice), nullTime(pos.ExitTime), nullFloat(pos.RealizedPnL), pos.ID)
		return err
	})
}

func (s *SQLiteStore) GetOpenPosition(ctx context.Context, symbol string) (*domain.Position, error) {
	var pos *domain.Position
	err := s.pool.WithConn(ctx, func(db *sql.DB) error {
		row := db.QueryRowContext(ctx,
			`SELECT `+positionColumns+` FROM positions WHERE symbol = ? AND status = 'open' LIMIT 1`, symbol)
		p, err := scanPosition(row)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		pos = p
		return nil
	})
	return pos, err
}

func (s *SQLiteStore) ListPositions(ctx context.Context, status domain.PositionStatus) ([]*domain.Position, error) {
	return s.queryPositions(ctx, `SELECT `+positionColumns+` FROM positions WHERE status = ?`, status)
}

func (s *SQLiteStore) ListAllPositions(ctx context.Context) ([]*domain.Position, error) {
	return s.queryPositions(ctx, `SELECT `+positionColumns+` FROM positions`)
}

func (s *SQLiteStore) queryPositions(ctx context.Context, query string, args ...interface{}) ([]*domain.Position, error) {
	var positions []*domain.Position
	err := s.pool.WithConn(ctx, func(db *sql.DB) error {
		rows, err := db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			p, err := scanPosition(rows)
			if err != nil {
				return err
			}
			positions = append(positions, p)
		}
		return rows.Err()
	})
	return positions, err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPosition(row rowScanner) (*domain.Position, error) {
	var p domain.Position
	var exitPrice, realizedPnL sql.NullFloat64
	var exitTime sql.NullTime
	err := row.Scan(&p.ID, &p.Symbol, &p.Quantity, &p.Side, &p.EntryPrice, &p.EntryTime,
		&p.StopLoss, &p.TakeProfit, &p.RiskAmount, &p.Strategy, &p.Status,
		&exitPrice, &exitTime, &realizedPnL)
	if err != nil {
		return nil, err
	}
	p.ExitPrice = exitPrice.Float64
	p.RealizedPnL = realizedPnL.Float64
	if exitTime.Valid {
		p.ExitTime = exitTime.Time
	}
	return &p, nil
}

func (s *SQLiteStore) SavePositionUpdate(ctx context.Context, upd *domain.PositionUpdate) error {
	return s.pool.WithConn(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx,
			`INSERT INTO position_updates (position_id, price, market_value, unrealized_pnl, timestamp)
			 VALUES (?, ?, ?, ?, ?)`,
			upd.PositionID, upd.Price, upd.MarketValue, upd.UnrealizedPnL, upd.Timestamp)
		return err
	})
}

// TradeRepository Implementation

func (s *SQLiteStore) SaveTrade(ctx context.Context, rec *domain.TradeRecord) error {
	return s.pool.WithConn(ctx, func(db *sql.DB) error {
		// Idempotent on order_id: re-recording a known fill is a no-op.
		_, err := db.ExecContext(ctx,
			`INSERT OR IGNORE INTO trade_history (timestamp, symbol, side, qty, price, pnl, order_id)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			rec.Timestamp, rec.Symbol, rec.Side, rec.Qty, rec.Price, rec.PnL, rec.OrderID)
		return err
	})
}

func (s *SQLiteStore) ListTrades(ctx context.Context, limit int) ([]*domain.TradeRecord, error) {
	var trades []*domain.TradeRecord
	err := s.pool.WithConn(ctx, func(db *sql.DB) error {
		rows, err := db.QueryContext(ctx,
			`SELECT timestamp, symbol, side, qty, price, pnl, order_id FROM trade_history ORDER BY id DESC LIMIT ?`, limit)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var r domain.TradeRecord
			if err := rows.Scan(&r.Timestamp, &r.Symbol, &r.Side, &r.Qty, &r.Price, &r.PnL, &r.OrderID); err != nil {
				return err
			}
			trades = append(trades, &r)
		}
		return rows.Err()
	})
	return trades, err
}

// RiskEventRepository Implementation

func (s *SQLiteStore) SaveRiskEvent(ctx context.Context, ev *domain.RiskEvent) error {
	return s.pool.WithConn(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx,
			`INSERT INTO risk_events (event_type, symbol, description, severity, triggered_at)
			 VALUES (?, ?, ?, ?, ?)`,
			ev.EventType, ev.Symbol, ev.Description, ev.Severity, ev.TriggeredAt)
		return err
	})
}

func (s *SQLiteStore) ListRiskEvents(ctx context.Context, limit int) ([]*domain.RiskEvent, error) {
	var events []*domain.RiskEvent
	err := s.pool.WithConn(ctx, func(db *sql.DB) error {
		rows, err := db.QueryContext(ctx,
			`SELECT id, event_type, symbol, description, severity, triggered_at FROM risk_events ORDER BY id DESC LIMIT ?`, limit)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var e domain.RiskEvent
			if err := rows.Scan(&e.ID, &e.EventType, &e.Symbol, &e.Description, &e.Severity, &e.TriggeredAt); err != nil {
				return err
			}
			events = append(events, &e)
		}
		return rows.Err()
	})
	return events, err
}

// PriceCacheRepository Implementation

func (s *SQLiteStore) UpsertPrice(ctx context.Context, symbol string, price float64, ts time.Time) error {
	return s.pool.WithConn(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx,
			`INSERT INTO price_cache (symbol, price, timestamp) VALUES (?, ?, ?)
			 ON CONFLICT(symbol) DO UPDATE SET price = excluded.price, timestamp = excluded.timestamp`,
			symbol, price, ts)
		return err
	})
}

func (s *SQLiteStore) GetPrice(ctx context.Context, symbol string, maxAge time.Duration) (*domain.CachedPrice, error) {
	var cp *domain.CachedPrice
	err := s.pool.WithConn(ctx, func(db *sql.DB) error {
		row := db.QueryRowContext(ctx,
			`SELECT symbol, price, timestamp FROM price_cache WHERE symbol = ? AND timestamp >= ?`,
			symbol, time.Now().Add(-maxAge))
		var p domain.CachedPrice
		err := row.Scan(&p.Symbol, &p.Price, &p.Timestamp)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		cp = &p
		return nil
	})
	return cp, err
}

// BarRepository Implementation

func (s *SQLiteStore) SaveBars(ctx context.Context, bars []domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	return s.pool.WithConn(ctx, func(db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		stmt, err := tx.PrepareContext(ctx,
			`INSERT OR IGNORE INTO bars (symbol, timeframe, timestamp, open, high, low, close, volume)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, b := range bars {
			if _, err := stmt.ExecContext(ctx, b.Symbol, b.Timeframe, b.Timestamp,
				b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
}

func (s *SQLiteStore) ListBars(ctx context.Context, symbol, timeframe string, limit int) ([]domain.Bar, error) {
	var bars []domain.Bar
	err := s.pool.WithConn(ctx, func(db *sql.DB) error {
		rows, err := db.QueryContext(ctx,
			`SELECT symbol, timeframe, timestamp, open, high, low, close, volume
			 FROM bars WHERE symbol = ? AND timeframe = ? ORDER BY timestamp DESC LIMIT ?`,
			symbol, timeframe, limit)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var b domain.Bar
			if err := rows.Scan(&b.Symbol, &b.Timeframe, &b.Timestamp,
				&b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
				return err
			}
			bars = append(bars, b)
		}
		return rows.Err()
	})
	return bars, err
}

func nullFloat(v float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v, Valid: v != 0}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
