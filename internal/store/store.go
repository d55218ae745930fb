// Package store defines the persistence interface for the pipeline's
// durable audit log (market data, orders, trades, positions, account
// balances, metrics) and a PostgreSQL implementation.
package store

import (
	"context"

	"github.com/nullma/ttquant/internal/model"
)

// Store is the persistence boundary used by the batch queue and the order
// gateway. Every write is best-effort from the caller's perspective: a
// failed write is logged and does not abort the pipeline.
type Store interface {
	InsertTicks(ctx context.Context, ticks []model.Tick) error
	InsertOrder(ctx context.Context, order model.Order) error
	InsertTrade(ctx context.Context, trade model.Trade) error
	InsertPosition(ctx context.Context, position model.Position) error
	InsertAccountBalance(ctx context.Context, balance model.AccountBalance) error
	InsertMetric(ctx context.Context, component, metricName string, value float64) error

	// LatestFilledTrades returns FILLED trades ordered oldest-first, used at
	// gateway startup to rehydrate the risk engine's position ledger. It
	// returns the earliest limit trades by trade_time, not the most recent.
	LatestFilledTrades(ctx context.Context, limit int) ([]model.Trade, error)

	Close() error
}
