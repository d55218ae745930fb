package risk

// Config is the immutable-after-load risk configuration: position limits
// per symbol, order-rate caps, and price/age bounds.
type Config struct {
	PositionLimits                 map[string]int32 `toml:"position_limits"`
	MaxOrdersPerSecond              int             `toml:"max_orders_per_second"`
	MaxOrdersPerStrategyPerSecond   int             `toml:"max_orders_per_strategy_per_second"`
	MaxOrderAgeMs                   int64           `toml:"max_order_age_ms"`
	MinPrice                        float64         `toml:"min_price"`
	MaxPrice                        float64         `toml:"max_price"`
}
