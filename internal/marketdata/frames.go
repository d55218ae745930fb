package marketdata

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/nullma/ttquant/internal/clock"
	"github.com/nullma/ttquant/internal/model"
	"github.com/nullma/ttquant/internal/venue"
)

type binanceTradeFrame struct {
	Stream string `json:"stream"`
	Data   struct {
		Symbol    string `json:"s"`
		Price     string `json:"p"`
		Volume    string `json:"q"`
		TradeTime int64  `json:"T"`
	} `json:"data"`
}

// parseBinanceFrame extracts a tick from a "<symbol>@trade" stream frame.
// Any other stream (or a malformed frame) is ignored, not an error — one
// bad frame must never kill the connection.
func parseBinanceFrame(raw []byte) (model.Tick, bool) {
	var frame binanceTradeFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return model.Tick{}, false
	}
	if !strings.HasSuffix(frame.Stream, "@trade") {
		return model.Tick{}, false
	}

	price, err := strconv.ParseFloat(frame.Data.Price, 64)
	if err != nil {
		return model.Tick{}, false
	}
	volume, err := strconv.ParseFloat(frame.Data.Volume, 64)
	if err != nil {
		return model.Tick{}, false
	}

	return model.Tick{
		Symbol:       frame.Data.Symbol,
		Exchange:     "binance",
		LastPrice:    price,
		Volume:       volume,
		ExchangeTime: frame.Data.TradeTime * int64(1e6),
		LocalTime:    clock.NowNanos(),
	}, true
}

func binanceSubscribeMessage(symbols []string) ([]byte, error) {
	params := make([]string, len(symbols))
	for i, s := range symbols {
		params[i] = strings.ToLower(venue.NormalizeSymbol(s)) + "@trade"
	}
	return json.Marshal(map[string]any{
		"method": "SUBSCRIBE",
		"params": params,
		"id":     1,
	})
}

type okxTradeFrame struct {
	Arg struct {
		Channel string `json:"channel"`
		InstID  string `json:"instId"`
	} `json:"arg"`
	Data []struct {
		InstID string `json:"instId"`
		Px     string `json:"px"`
		Sz     string `json:"sz"`
		Ts     string `json:"ts"`
	} `json:"data"`
}

// parseOKXFrame extracts every tick from a "trades" channel frame. Any other
// channel (or a malformed frame) is ignored.
func parseOKXFrame(raw []byte) ([]model.Tick, bool) {
	var frame okxTradeFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil, false
	}
	if frame.Arg.Channel != "trades" {
		return nil, false
	}

	ticks := make([]model.Tick, 0, len(frame.Data))
	for _, d := range frame.Data {
		price, err := strconv.ParseFloat(d.Px, 64)
		if err != nil {
			continue
		}
		size, err := strconv.ParseFloat(d.Sz, 64)
		if err != nil {
			continue
		}
		ts, err := strconv.ParseInt(d.Ts, 10, 64)
		if err != nil {
			continue
		}

		ticks = append(ticks, model.Tick{
			Symbol:       venue.NormalizeSymbol(d.InstID),
			Exchange:     "okx",
			LastPrice:    price,
			Volume:       size,
			ExchangeTime: ts * int64(1e6),
			LocalTime:    clock.NowNanos(),
		})
	}
	if len(ticks) == 0 {
		return nil, false
	}
	return ticks, true
}

func okxSubscribeMessage(symbols []string) ([]byte, error) {
	args := make([]map[string]string, len(symbols))
	for i, s := range symbols {
		args[i] = map[string]string{"channel": "trades", "instId": venue.ToHyphenated(s)}
	}
	return json.Marshal(map[string]any{
		"op":   "subscribe",
		"args": args,
	})
}

const okxPingText = `{"op":"ping"}`
const okxPongText = "pong"
