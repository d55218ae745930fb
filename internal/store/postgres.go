package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/nullma/ttquant/internal/model"
)

// Config holds the PostgreSQL connection pool configuration.
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	QueryTimeout    time.Duration
}

// DefaultConfig returns reasonable connection-pool defaults.
func DefaultConfig(dsn string) Config {
	return Config{
		DSN:             dsn,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		QueryTimeout:    5 * time.Second,
	}
}

// Postgres implements Store on top of database/sql via sqlx and lib/pq.
type Postgres struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewPostgres opens a connection pool and verifies connectivity with a ping.
func NewPostgres(cfg Config) (*Postgres, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store: DSN is required")
	}

	db, err := sqlx.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}

	return &Postgres{db: db, timeout: cfg.QueryTimeout}, nil
}

func (p *Postgres) Close() error {
	return p.db.Close()
}

// InsertTicks batches all ticks into a single transaction, matching the
// batch queue's all-or-nothing flush contract.
func (p *Postgres) InsertTicks(ctx context.Context, ticks []model.Tick) error {
	if len(ticks) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO market_data (time, symbol, exchange, last_price, volume, exchange_time, local_time)
		VALUES (now(), $1, $2, $3, $4, $5, $6)`)
	if err != nil {
		return fmt.Errorf("store: prepare: %w", err)
	}
	defer stmt.Close()

	for _, t := range ticks {
		if _, err := stmt.ExecContext(ctx, t.Symbol, t.Exchange, t.LastPrice, t.Volume, t.ExchangeTime, t.LocalTime); err != nil {
			return fmt.Errorf("store: insert tick: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

func (p *Postgres) InsertOrder(ctx context.Context, order model.Order) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	_, err := p.db.ExecContext(ctx, `
		INSERT INTO orders (time, order_id, strategy_id, symbol, side, price, volume, timestamp)
		VALUES (now(), $1, $2, $3, $4, $5, $6, $7)`,
		order.OrderID, order.StrategyID, order.Symbol, order.Side, order.Price, order.Volume, order.Timestamp)
	if err != nil {
		if isDuplicate(err) {
			return fmt.Errorf("store: duplicate order: %w", err)
		}
		return fmt.Errorf("store: insert order: %w", err)
	}
	return nil
}

func (p *Postgres) InsertTrade(ctx context.Context, trade model.Trade) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	_, err := p.db.ExecContext(ctx, `
		INSERT INTO trades (time, trade_id, order_id, strategy_id, symbol, side, filled_price,
			filled_volume, trade_time, status, error_code, error_message)
		VALUES (now(), $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		trade.TradeID, trade.OrderID, trade.StrategyID, trade.Symbol, trade.Side,
		trade.FilledPrice, trade.FilledVolume, trade.TradeTime, trade.Status,
		trade.ErrorCode, trade.ErrorMessage)
	if err != nil {
		if isDuplicate(err) {
			return fmt.Errorf("store: duplicate trade: %w", err)
		}
		return fmt.Errorf("store: insert trade: %w", err)
	}
	return nil
}

func (p *Postgres) InsertPosition(ctx context.Context, position model.Position) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	_, err := p.db.ExecContext(ctx, `
		INSERT INTO positions (time, strategy_id, symbol, position, avg_price, unrealized_pnl)
		VALUES (now(), $1, $2, $3, $4, $5)`,
		position.StrategyID, position.Symbol, position.Quantity, position.AvgPrice, position.UnrealizedPnL)
	if err != nil {
		return fmt.Errorf("store: insert position: %w", err)
	}
	return nil
}

func (p *Postgres) InsertAccountBalance(ctx context.Context, balance model.AccountBalance) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	_, err := p.db.ExecContext(ctx, `
		INSERT INTO account_balance (time, strategy_id, balance, frozen, available)
		VALUES (now(), $1, $2, $3, $4)`,
		balance.StrategyID, balance.Balance, balance.Frozen, balance.Available)
	if err != nil {
		return fmt.Errorf("store: insert account balance: %w", err)
	}
	return nil
}

func (p *Postgres) InsertMetric(ctx context.Context, component, metricName string, value float64) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	_, err := p.db.ExecContext(ctx, `
		INSERT INTO metrics (time, component, metric_name, value)
		VALUES (now(), $1, $2, $3)`,
		component, metricName, value)
	if err != nil {
		return fmt.Errorf("store: insert metric: %w", err)
	}
	return nil
}

func (p *Postgres) LatestFilledTrades(ctx context.Context, limit int) ([]model.Trade, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	rows, err := p.db.QueryxContext(ctx, `
		SELECT trade_id, order_id, strategy_id, symbol, side, filled_price, filled_volume,
			trade_time, status, error_code, error_message
		FROM trades
		WHERE status = 'FILLED'
		ORDER BY trade_time ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: query latest filled trades: %w", err)
	}
	defer rows.Close()

	var trades []model.Trade
	for rows.Next() {
		var t model.Trade
		if err := rows.Scan(&t.TradeID, &t.OrderID, &t.StrategyID, &t.Symbol, &t.Side,
			&t.FilledPrice, &t.FilledVolume, &t.TradeTime, &t.Status, &t.ErrorCode, &t.ErrorMessage); err != nil {
			return nil, fmt.Errorf("store: scan trade: %w", err)
		}
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate trades: %w", err)
	}
	return trades, nil
}

func isDuplicate(err error) bool {
	pqErr, ok := err.(*pq.Error)
	return ok && pqErr.Code == "23505"
}

var _ Store = (*Postgres)(nil)
