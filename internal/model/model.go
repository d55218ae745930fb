// Package model defines the canonical wire records shared by every
// component of the pipeline: ticks off the market-data ingestors, orders
// arriving from strategies, and the trade receipts the gateway publishes.
package model

// Tick is a normalised trade print from a single venue.
type Tick struct {
	Symbol       string  `json:"symbol"`
	Exchange     string  `json:"exchange"`
	LastPrice    float64 `json:"last_price"`
	Volume       float64 `json:"volume"`
	ExchangeTime int64   `json:"exchange_time"` // ns since epoch, 0 = not provided by venue
	LocalTime    int64   `json:"local_time"`    // ns since epoch, assigned on receipt
}

// Side is the direction of an order or fill.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Order is a strategy-originated intent to transact. Immutable once created.
type Order struct {
	OrderID    string  `json:"order_id"`
	StrategyID string  `json:"strategy_id"`
	Symbol     string  `json:"symbol"`
	Side       Side    `json:"side"`
	Price      float64 `json:"price"`
	Volume     int32   `json:"volume"`
	Timestamp  int64   `json:"timestamp"` // ns since epoch, set by strategy
}

// TradeStatus is the terminal outcome of an order.
type TradeStatus string

const (
	Filled   TradeStatus = "FILLED"
	Rejected TradeStatus = "REJECTED"
)

// Error codes used on rejected trades.
const (
	ErrCodeNone  = 0
	ErrCodeRisk  = 1001
	ErrCodeVenue = 2001
)

// Trade is the terminal outcome of an order: a fill or a rejection.
type Trade struct {
	TradeID      string      `json:"trade_id"`
	OrderID      string      `json:"order_id"`
	StrategyID   string      `json:"strategy_id"`
	Symbol       string      `json:"symbol"`
	Side         Side        `json:"side"`
	FilledPrice  float64     `json:"filled_price"`
	FilledVolume int32       `json:"filled_volume"`
	TradeTime    int64       `json:"trade_time"` // ns
	Status       TradeStatus `json:"status"`
	ErrorCode    int         `json:"error_code"`
	ErrorMessage string      `json:"error_message"`
	IsRetryable  bool        `json:"is_retryable"`
	Commission   float64     `json:"commission"`
}

// Position is a point-in-time snapshot of the net holding in a symbol,
// persisted alongside each filled trade. Quantity and AvgPrice are the
// ledger's per-symbol values across every strategy; StrategyID names the
// strategy whose fill produced the snapshot.
type Position struct {
	StrategyID     string  `json:"strategy_id"`
	Symbol         string  `json:"symbol"`
	Quantity       int32   `json:"quantity"`
	AvgPrice       float64 `json:"avg_price"`
	UnrealizedPnL  float64 `json:"unrealized_pnl"`
}

// AccountBalance is a point-in-time snapshot of a strategy's cash balance.
// No component in this core currently produces one (no margin model is in
// scope); the store write path exists for a future balance feed.
type AccountBalance struct {
	StrategyID string  `json:"strategy_id"`
	Balance    float64 `json:"balance"`
	Frozen     float64 `json:"frozen"`
	Available  float64 `json:"available"`
}
