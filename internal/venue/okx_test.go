package venue

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nullma/ttquant/internal/model"
)

func TestOKXSimulatesWithoutCredentials(t *testing.T) {
	o := NewOKX(Credentials{})
	assert.Equal(t, "okx", o.Name())

	order := model.Order{
		OrderID:    "ord-2",
		StrategyID: "strat-1",
		Symbol:     "ETHUSDT",
		Side:       model.Sell,
		Price:      200.0,
		Volume:     3,
	}

	trade, err := o.SubmitOrder(context.Background(), order)
	require.NoError(t, err)
	assert.Equal(t, "SIM_ord-2", trade.TradeID)
	assert.Equal(t, model.Filled, trade.Status)
	assert.InDelta(t, 200.0*0.9999, trade.FilledPrice, 1e-9)
}

func TestOKXSimulatesWithMissingPassphrase(t *testing.T) {
	o := NewOKX(Credentials{APIKey: "key", Secret: "secret"})
	order := model.Order{OrderID: "ord-3", Symbol: "BTCUSDT", Side: model.Buy, Price: 100, Volume: 1}

	trade, err := o.SubmitOrder(context.Background(), order)
	require.NoError(t, err)
	assert.Equal(t, "SIM_ord-3", trade.TradeID)
}

func TestSignBase64Deterministic(t *testing.T) {
	sig1 := signBase64("secret", "2024-01-01T00:00:00.000ZPOST/api/v5/trade/order{}")
	sig2 := signBase64("secret", "2024-01-01T00:00:00.000ZPOST/api/v5/trade/order{}")
	assert.Equal(t, sig1, sig2)
}

func TestToOKXSide(t *testing.T) {
	assert.Equal(t, "buy", toOKXSide(model.Buy))
	assert.Equal(t, "sell", toOKXSide(model.Sell))
}
