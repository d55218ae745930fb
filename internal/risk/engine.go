// Package risk implements the gateway's synchronous, single-venue pre-trade
// checks: order age, price bounds, position limits, and sliding-window rate
// limiting, plus the position ledger those checks and trade settlement
// share.
package risk

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/nullma/ttquant/internal/clock"
	"github.com/nullma/ttquant/internal/model"
)

// Engine is stateful. Every method holds the engine's mutex, so calls from
// several goroutines are serialised; in the gateway the single order loop
// is its only caller, per the single-consumer discipline of the order
// gateway.
type Engine struct {
	cfg Config

	mu        sync.Mutex
	positions map[string]*position

	globalWindow   []time.Time
	strategyWindow map[string][]time.Time
}

type position struct {
	quantity int32
	avgPrice float64
}

// NewEngine constructs a risk engine from the given configuration with an
// empty ledger and empty rate windows.
func NewEngine(cfg Config) *Engine {
	return &Engine{
		cfg:            cfg,
		positions:      make(map[string]*position),
		strategyWindow: make(map[string][]time.Time),
	}
}

// CheckOrder runs the five checks in their fixed order, returning the
// reason for the first one that fails. A nil error means the order passed
// every check and that both rate windows have recorded it. Checks 4/5 are
// reserving: an order rejected by the per-strategy rate check has already
// been recorded in the global window.
func (e *Engine) CheckOrder(order model.Order) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkAge(order); err != nil {
		return err
	}
	if err := e.checkPrice(order); err != nil {
		return err
	}
	if err := e.checkPositionLimit(order); err != nil {
		return err
	}
	if err := e.checkGlobalRate(order); err != nil {
		return err
	}
	if err := e.checkStrategyRate(order); err != nil {
		return err
	}
	return nil
}

func (e *Engine) checkAge(order model.Order) error {
	ageMs := (clock.NowNanos() - order.Timestamp) / 1_000_000
	if ageMs > e.cfg.MaxOrderAgeMs {
		return fmt.Errorf("order too old: %d ms (max: %d ms)", ageMs, e.cfg.MaxOrderAgeMs)
	}
	return nil
}

func (e *Engine) checkPrice(order model.Order) error {
	if order.Price < e.cfg.MinPrice {
		return fmt.Errorf("Price too low: %v (min: %v)", order.Price, e.cfg.MinPrice)
	}
	if order.Price > e.cfg.MaxPrice {
		return fmt.Errorf("Price too high: %v (max: %v)", order.Price, e.cfg.MaxPrice)
	}
	return nil
}

func (e *Engine) checkPositionLimit(order model.Order) error {
	limit := e.cfg.PositionLimits[order.Symbol]
	if limit == 0 {
		return fmt.Errorf("No position limit configured for %s", order.Symbol)
	}

	current := e.positions[order.Symbol]
	var currentQty int32
	if current != nil {
		currentQty = current.quantity
	}

	delta := order.Volume
	if order.Side == model.Sell {
		delta = -order.Volume
	}

	newPosition := currentQty + delta
	if abs32(newPosition) > limit {
		return fmt.Errorf(
			"Position limit exceeded for %s: current=%d, delta=%d, limit=%d",
			order.Symbol, currentQty, delta, limit,
		)
	}
	return nil
}

func (e *Engine) checkGlobalRate(order model.Order) error {
	now := time.Now()
	cutoff := now.Add(-time.Second)

	e.globalWindow = pruneWindow(e.globalWindow, cutoff)
	if len(e.globalWindow) >= e.cfg.MaxOrdersPerSecond {
		return fmt.Errorf("Global rate limit exceeded: %d orders/s", e.cfg.MaxOrdersPerSecond)
	}
	e.globalWindow = append(e.globalWindow, now)
	return nil
}

func (e *Engine) checkStrategyRate(order model.Order) error {
	now := time.Now()
	cutoff := now.Add(-time.Second)

	w := pruneWindow(e.strategyWindow[order.StrategyID], cutoff)
	if len(w) >= e.cfg.MaxOrdersPerStrategyPerSecond {
		e.strategyWindow[order.StrategyID] = w
		return fmt.Errorf(
			"Strategy rate limit exceeded for %s: %d orders/s",
			order.StrategyID, e.cfg.MaxOrdersPerStrategyPerSecond,
		)
	}
	e.strategyWindow[order.StrategyID] = append(w, now)
	return nil
}

func pruneWindow(w []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(w) && !w[i].After(cutoff) {
		i++
	}
	return w[i:]
}

// UpdatePosition adjusts the ledger for a filled trade and tracks a
// volume-weighted average fill price: unchanged direction blends prices,
// a sign flip resets the average to the new fill.
func (e *Engine) UpdatePosition(symbol string, side model.Side, volume int32, fillPrice float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	delta := volume
	if side == model.Sell {
		delta = -volume
	}

	pos := e.positions[symbol]
	if pos == nil {
		pos = &position{}
		e.positions[symbol] = pos
	}

	oldQty := pos.quantity
	newQty := oldQty + delta

	switch {
	case oldQty == 0:
		// starting flat: average price is simply the fill price
		pos.avgPrice = fillPrice
	case newQty == 0:
		// closed out exactly: no position left, no average to track
		pos.avgPrice = 0
	case sameSign(delta, oldQty):
		// adding to the existing side: blend cost basis by volume
		pos.avgPrice = (pos.avgPrice*float64(abs32(oldQty)) + fillPrice*float64(abs32(delta))) / float64(abs32(newQty))
	case sameSign(newQty, oldQty):
		// reducing without crossing zero: cost basis is unchanged
	default:
		// crossed through zero to the opposite side: new cost basis
		pos.avgPrice = fillPrice
	}
	pos.quantity = newQty

	log.Info().Str("symbol", symbol).Int32("position", pos.quantity).Msg("risk: position updated")
}

// GetPosition returns the current net position for symbol, defaulting to 0.
func (e *Engine) GetPosition(symbol string) int32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if p := e.positions[symbol]; p != nil {
		return p.quantity
	}
	return 0
}

// GetPositionDetails returns the full position record for symbol, or false
// if nothing has ever traded it.
func (e *Engine) GetPositionDetails(symbol string) (model.Position, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p := e.positions[symbol]
	if p == nil {
		return model.Position{}, false
	}
	return model.Position{Symbol: symbol, Quantity: p.quantity, AvgPrice: p.avgPrice}, true
}

// SeedPosition sets symbol's ledger entry to quantity and avgPrice,
// replacing any existing entry, without running risk checks. Used at
// startup to restore a position from a Redis snapshot; the trades-store
// replay goes through UpdatePosition instead.
func (e *Engine) SeedPosition(symbol string, quantity int32, avgPrice float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.positions[symbol] = &position{quantity: quantity, avgPrice: avgPrice}
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}

func sameSign(a, b int32) bool {
	return (a >= 0) == (b >= 0)
}
