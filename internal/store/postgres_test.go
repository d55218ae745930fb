package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nullma/ttquant/internal/model"
)

func newMockStore(t *testing.T) (*Postgres, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return &Postgres{db: sqlx.NewDb(db, "postgres"), timeout: 2 * time.Second}, mock
}

func TestInsertTicksBatchesInOneTransaction(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectPrepare("INSERT INTO market_data")
	mock.ExpectExec("INSERT INTO market_data").WithArgs(
		"BTCUSDT", "binance", 50000.0, 1.5, int64(1000), int64(2000)).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	ticks := []model.Tick{{
		Symbol: "BTCUSDT", Exchange: "binance", LastPrice: 50000.0, Volume: 1.5,
		ExchangeTime: 1000, LocalTime: 2000,
	}}
	require.NoError(t, store.InsertTicks(context.Background(), ticks))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertTicksEmptyIsNoOp(t *testing.T) {
	store, mock := newMockStore(t)
	require.NoError(t, store.InsertTicks(context.Background(), nil))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertTicksRollsBackOnError(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectPrepare("INSERT INTO market_data")
	mock.ExpectExec("INSERT INTO market_data").WillReturnError(assert.AnError)
	mock.ExpectRollback()

	ticks := []model.Tick{{Symbol: "BTCUSDT", Exchange: "binance"}}
	err := store.InsertTicks(context.Background(), ticks)
	assert.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertTradeWrapsError(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO trades").WillReturnError(assert.AnError)

	trade := model.Trade{TradeID: "t1", OrderID: "o1", Symbol: "BTCUSDT", Side: model.Buy, Status: model.Filled}
	err := store.InsertTrade(context.Background(), trade)
	assert.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLatestFilledTradesScansRows(t *testing.T) {
	store, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{"trade_id", "order_id", "strategy_id", "symbol", "side",
		"filled_price", "filled_volume", "trade_time", "status", "error_code", "error_message"}).
		AddRow("t1", "o1", "strat-1", "BTCUSDT", "BUY", 100.0, int32(5), int64(123), "FILLED", 0, "")

	mock.ExpectQuery("SELECT trade_id").WillReturnRows(rows)

	trades, err := store.LatestFilledTrades(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, "t1", trades[0].TradeID)
	require.NoError(t, mock.ExpectationsWereMet())
}
