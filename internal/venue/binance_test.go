package venue

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nullma/ttquant/internal/model"
)

func TestBinanceSimulatesWithoutCredentials(t *testing.T) {
	b := NewBinance(Credentials{}, false)
	assert.Equal(t, "binance", b.Name())

	order := model.Order{
		OrderID:    "ord-1",
		StrategyID: "strat-1",
		Symbol:     "BTCUSDT",
		Side:       model.Buy,
		Price:      100.0,
		Volume:     5,
	}

	trade, err := b.SubmitOrder(context.Background(), order)
	require.NoError(t, err)
	assert.Equal(t, "SIM_ord-1", trade.TradeID)
	assert.Equal(t, model.Filled, trade.Status)
	assert.InDelta(t, 100.01, trade.FilledPrice, 1e-9)
	assert.InDelta(t, 0.50005, trade.Commission, 1e-9)
}

func TestBinanceTestnetName(t *testing.T) {
	b := NewBinance(Credentials{}, true)
	assert.Equal(t, "binance-testnet", b.Name())
}

func TestSignHexDeterministic(t *testing.T) {
	sig1 := signHex("secret", "symbol=BTCUSDT&side=BUY")
	sig2 := signHex("secret", "symbol=BTCUSDT&side=BUY")
	assert.Equal(t, sig1, sig2)
	assert.NotEqual(t, sig1, signHex("secret", "symbol=ETHUSDT&side=BUY"))
}
