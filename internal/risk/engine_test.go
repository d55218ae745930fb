package risk

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nullma/ttquant/internal/clock"
	"github.com/nullma/ttquant/internal/model"
)

func baseConfig() Config {
	return Config{
		PositionLimits:                map[string]int32{"BTCUSDT": 10},
		MaxOrdersPerSecond:            100,
		MaxOrdersPerStrategyPerSecond: 10,
		MaxOrderAgeMs:                 5000,
		MinPrice:                      0.01,
		MaxPrice:                      1_000_000,
	}
}

func order(id, strategy, symbol string, side model.Side, price float64, volume int32) model.Order {
	return model.Order{
		OrderID:    id,
		StrategyID: strategy,
		Symbol:     symbol,
		Side:       side,
		Price:      price,
		Volume:     volume,
		Timestamp:  clock.NowNanos(),
	}
}

// Order price below the configured floor is rejected.
func TestCheckOrderPriceTooLow(t *testing.T) {
	e := NewEngine(baseConfig())
	o := order("o1", "s1", "BTCUSDT", model.Buy, 0.005, 1)

	err := e.CheckOrder(o)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Price too low")
}

func TestCheckOrderPriceTooHigh(t *testing.T) {
	e := NewEngine(baseConfig())
	o := order("o1", "s1", "BTCUSDT", model.Buy, 2_000_000, 1)

	err := e.CheckOrder(o)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Price too high")
}

func TestCheckOrderTooOld(t *testing.T) {
	cfg := baseConfig()
	cfg.MaxOrderAgeMs = 10
	e := NewEngine(cfg)
	o := order("o1", "s1", "BTCUSDT", model.Buy, 100, 1)
	o.Timestamp = clock.NowNanos() - int64(time.Second)

	err := e.CheckOrder(o)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too old")
}

func TestCheckOrderNoPositionLimitConfigured(t *testing.T) {
	e := NewEngine(baseConfig())
	o := order("o1", "s1", "ETHUSDT", model.Buy, 100, 1)

	err := e.CheckOrder(o)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "No position limit")
}

// An order that would breach the position limit is rejected.
func TestCheckOrderPositionLimitExceeded(t *testing.T) {
	e := NewEngine(baseConfig())
	e.UpdatePosition("BTCUSDT", model.Buy, 9, 100)

	o := order("o2", "s1", "BTCUSDT", model.Buy, 100, 2)
	err := e.CheckOrder(o)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Position limit exceeded")
}

func TestCheckOrderPositionLimitBoundary(t *testing.T) {
	e := NewEngine(baseConfig())
	e.UpdatePosition("BTCUSDT", model.Buy, 9, 100)

	o := order("o2", "s1", "BTCUSDT", model.Buy, 100, 1)
	require.NoError(t, e.CheckOrder(o))
}

func TestCheckOrderGlobalRateLimit(t *testing.T) {
	cfg := baseConfig()
	cfg.MaxOrdersPerSecond = 2
	cfg.MaxOrdersPerStrategyPerSecond = 100
	e := NewEngine(cfg)

	o1 := order("o1", "s1", "BTCUSDT", model.Buy, 100, 1)
	o2 := order("o2", "s2", "BTCUSDT", model.Buy, 100, 1)
	o3 := order("o3", "s3", "BTCUSDT", model.Buy, 100, 1)

	require.NoError(t, e.CheckOrder(o1))
	require.NoError(t, e.CheckOrder(o2))
	err := e.CheckOrder(o3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Global rate limit")
}

func TestCheckOrderStrategyRateLimit(t *testing.T) {
	cfg := baseConfig()
	cfg.MaxOrdersPerSecond = 100
	cfg.MaxOrdersPerStrategyPerSecond = 1
	e := NewEngine(cfg)

	o1 := order("o1", "s1", "BTCUSDT", model.Buy, 100, 1)
	o2 := order("o2", "s1", "BTCUSDT", model.Buy, 100, 1)

	require.NoError(t, e.CheckOrder(o1))
	err := e.CheckOrder(o2)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "Strategy rate limit"))
}

// A strategy-rate rejection still counts toward the global window (checks run in a fixed order and a later check never undoes an earlier one's side effect:
// checks 4/5 are "reserving").
func TestStrategyRateRejectionStillConsumesGlobalBudget(t *testing.T) {
	cfg := baseConfig()
	cfg.MaxOrdersPerSecond = 2
	cfg.MaxOrdersPerStrategyPerSecond = 1
	e := NewEngine(cfg)

	o1 := order("o1", "s1", "BTCUSDT", model.Buy, 100, 1)
	o2 := order("o2", "s1", "BTCUSDT", model.Buy, 100, 1) // fails strategy rate
	o3 := order("o3", "s2", "BTCUSDT", model.Buy, 100, 1) // would pass strategy rate but global is spent

	require.NoError(t, e.CheckOrder(o1))
	require.Error(t, e.CheckOrder(o2))
	err := e.CheckOrder(o3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Global rate limit")
}

func TestUpdatePositionAndGetPosition(t *testing.T) {
	e := NewEngine(baseConfig())
	assert.Equal(t, int32(0), e.GetPosition("BTCUSDT"))

	e.UpdatePosition("BTCUSDT", model.Buy, 5, 100)
	assert.Equal(t, int32(5), e.GetPosition("BTCUSDT"))

	e.UpdatePosition("BTCUSDT", model.Sell, 3, 110)
	assert.Equal(t, int32(2), e.GetPosition("BTCUSDT"))

	details, ok := e.GetPositionDetails("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, int32(2), details.Quantity)
	assert.Equal(t, 100.0, details.AvgPrice, "reducing a position leaves its cost basis unchanged")
}

func TestUpdatePositionAveragePriceBlendsOnSameSideAdds(t *testing.T) {
	e := NewEngine(baseConfig())
	e.UpdatePosition("BTCUSDT", model.Buy, 1, 100)
	e.UpdatePosition("BTCUSDT", model.Buy, 1, 200)

	details, ok := e.GetPositionDetails("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, int32(2), details.Quantity)
	assert.InDelta(t, 150.0, details.AvgPrice, 1e-9)
}

func TestUpdatePositionFlipResetsAveragePrice(t *testing.T) {
	e := NewEngine(baseConfig())
	e.UpdatePosition("BTCUSDT", model.Buy, 2, 100)
	e.UpdatePosition("BTCUSDT", model.Sell, 5, 200) // flips long 2 -> short 3

	details, ok := e.GetPositionDetails("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, int32(-3), details.Quantity)
	assert.Equal(t, 200.0, details.AvgPrice)
}

func TestSeedPositionRehydratesLedger(t *testing.T) {
	e := NewEngine(baseConfig())
	e.SeedPosition("BTCUSDT", 7, 123.45)
	assert.Equal(t, int32(7), e.GetPosition("BTCUSDT"))
}
