package venue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/nullma/ttquant/internal/clock"
	"github.com/nullma/ttquant/internal/model"
)

const okxAPIBase = "https://www.okx.com"

// OKX is the OKX-style venue adapter: base64 HMAC-SHA256 over a
// timestamp+method+path+body pre-hash, with a mandatory passphrase header.
type OKX struct {
	http    *http.Client
	baseURL string
	creds   Credentials
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

// NewOKX constructs an OKX adapter. creds.Empty(true) being true (missing
// key, secret, or passphrase) means every SubmitOrder call is simulated.
func NewOKX(creds Credentials) *OKX {
	if creds.Empty(true) {
		log.Warn().Msg("okx: credentials not set, using SIMULATION mode")
	}
	return &OKX{
		http:    &http.Client{Timeout: 10 * time.Second},
		baseURL: okxAPIBase,
		creds:   creds,
		limiter: rate.NewLimiter(rate.Limit(10), 20),
		breaker: newBreaker("okx"),
	}
}

func (o *OKX) Name() string { return "okx" }

// SubmitOrder simulates when credentials are absent, otherwise attempts a
// live submission and falls back to simulation on any failure.
func (o *OKX) SubmitOrder(ctx context.Context, order model.Order) (model.Trade, error) {
	if o.creds.Empty(true) {
		return simulateFill(order, clock.NowNanos()), nil
	}

	trade, err := o.submitReal(ctx, order)
	if err != nil {
		log.Error().Err(err).Str("venue", "okx").Msg("venue: live submission failed, falling back to simulation")
		return simulateFill(order, clock.NowNanos()), nil
	}
	return trade, nil
}

type okxOrderRequest struct {
	InstID  string `json:"instId"`
	TdMode  string `json:"tdMode"`
	Side    string `json:"side"`
	OrdType string `json:"ordType"`
	Sz      string `json:"sz"`
	Px      string `json:"px"`
}

type okxOrderData struct {
	OrdID string `json:"ordId"`
	SCode string `json:"sCode"`
	SMsg  string `json:"sMsg"`
}

type okxOrderResponse struct {
	Code string         `json:"code"`
	Msg  string         `json:"msg"`
	Data []okxOrderData `json:"data"`
}

func (o *OKX) submitReal(ctx context.Context, order model.Order) (model.Trade, error) {
	if err := o.limiter.Wait(ctx); err != nil {
		return model.Trade{}, fmt.Errorf("okx: rate limit wait: %w", err)
	}

	const path = "/api/v5/trade/order"
	body, err := json.Marshal(okxOrderRequest{
		InstID:  ToHyphenated(order.Symbol),
		TdMode:  "cash",
		Side:    toOKXSide(order.Side),
		OrdType: "limit",
		Sz:      strconv.Itoa(int(order.Volume)),
		Px:      strconv.FormatFloat(order.Price, 'f', -1, 64),
	})
	if err != nil {
		return model.Trade{}, fmt.Errorf("okx: encode request: %w", err)
	}

	timestamp := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
	prehash := timestamp + http.MethodPost + path + string(body)
	signature := signBase64(o.creds.Secret, prehash)

	result, err := o.breaker.Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("OK-ACCESS-KEY", o.creds.APIKey)
		req.Header.Set("OK-ACCESS-SIGN", signature)
		req.Header.Set("OK-ACCESS-TIMESTAMP", timestamp)
		req.Header.Set("OK-ACCESS-PASSPHRASE", o.creds.Passphrase)

		resp, err := o.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("okx API error (%d): %s", resp.StatusCode, string(respBody))
		}

		var parsed okxOrderResponse
		if err := json.Unmarshal(respBody, &parsed); err != nil {
			return nil, fmt.Errorf("okx: decode response: %w", err)
		}
		if parsed.Code != "0" || len(parsed.Data) == 0 {
			return nil, fmt.Errorf("okx: order rejected: %s", parsed.Msg)
		}
		return parsed, nil
	})
	if err != nil {
		return model.Trade{}, fmt.Errorf("okx: submit order: %w", err)
	}

	parsed := result.(okxOrderResponse)
	entry := parsed.Data[0]

	status := model.Rejected
	if entry.SCode == "0" {
		status = model.Filled
	}

	filledPrice := order.Price
	filledVolume := order.Volume
	commission := filledPrice * float64(filledVolume) * commissionRate

	return model.Trade{
		TradeID:      entry.OrdID,
		OrderID:      order.OrderID,
		StrategyID:   order.StrategyID,
		Symbol:       order.Symbol,
		Side:         order.Side,
		FilledPrice:  filledPrice,
		FilledVolume: filledVolume,
		TradeTime:    clock.NowNanos(),
		Status:       status,
		Commission:   commission,
	}, nil
}

func toOKXSide(side model.Side) string {
	if side == model.Buy {
		return "buy"
	}
	return "sell"
}
