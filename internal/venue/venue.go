// Package venue implements the per-exchange REST submission adapters: they
// sign and send orders, parse exchange-specific responses into the
// canonical trade record, and fall back to a deterministic simulated fill
// when credentials are absent or a live submission fails.
package venue

import (
	"context"

	"github.com/nullma/ttquant/internal/model"
)

// Adapter is the capability every venue implements: a name for routing/
// logging and an order submission operation. One gateway instance binds to
// exactly one Adapter.
type Adapter interface {
	Name() string
	SubmitOrder(ctx context.Context, order model.Order) (model.Trade, error)
}

// Credentials is the per-venue API triple. Passphrase is only meaningful for
// venues that require one (OKX); an all-empty Credentials means simulation
// mode.
type Credentials struct {
	APIKey     string
	Secret     string
	Passphrase string
}

// Empty reports whether any required field (APIKey and Secret; Passphrase
// only when requirePassphrase is set) is unset, which triggers simulation
// mode.
func (c Credentials) Empty(requirePassphrase bool) bool {
	if c.APIKey == "" || c.Secret == "" {
		return true
	}
	if requirePassphrase && c.Passphrase == "" {
		return true
	}
	return false
}

const commissionRate = 0.001 // fixed fee model

// simulateFill synthesises a deterministic fill for an order that cannot or
// should not reach the venue: 1bp of slippage against the order's side, the
// full requested volume, and the standard commission model.
func simulateFill(order model.Order, tradeTimeNanos int64) model.Trade {
	slippage := 0.9999
	if order.Side == model.Buy {
		slippage = 1.0001
	}
	filledPrice := order.Price * slippage
	commission := commissionRate * filledPrice * float64(order.Volume)

	return model.Trade{
		TradeID:      "SIM_" + order.OrderID,
		OrderID:      order.OrderID,
		StrategyID:   order.StrategyID,
		Symbol:       order.Symbol,
		Side:         order.Side,
		FilledPrice:  filledPrice,
		FilledVolume: order.Volume,
		TradeTime:    tradeTimeNanos,
		Status:       model.Filled,
		ErrorCode:    model.ErrCodeNone,
		IsRetryable:  false,
		Commission:   commission,
	}
}
