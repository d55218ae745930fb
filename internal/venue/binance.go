package venue

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/nullma/ttquant/internal/clock"
	"github.com/nullma/ttquant/internal/model"
)

const (
	binanceAPIBase     = "https://api.binance.com"
	binanceTestnetBase = "https://testnet.binance.vision"
)

// Binance is the Binance-style venue adapter: query-string HMAC-SHA256
// signing, hex-encoded, with the key carried in the X-MBX-APIKEY header.
type Binance struct {
	http    *http.Client
	baseURL string
	testnet bool
	creds   Credentials
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

// NewBinance constructs a Binance adapter. testnet selects the testnet base
// URL; creds.Empty(false) being true means every SubmitOrder call returns a
// simulated fill.
func NewBinance(creds Credentials, testnet bool) *Binance {
	base := binanceAPIBase
	if testnet {
		base = binanceTestnetBase
	}
	if creds.Empty(false) {
		log.Warn().Msg("binance: credentials not set, using SIMULATION mode")
	}
	return &Binance{
		http:    &http.Client{Timeout: 10 * time.Second},
		baseURL: base,
		testnet: testnet,
		creds:   creds,
		limiter: rate.NewLimiter(rate.Limit(10), 20),
		breaker: newBreaker("binance"),
	}
}

func (b *Binance) Name() string {
	if b.testnet {
		return "binance-testnet"
	}
	return "binance"
}

// SubmitOrder simulates when credentials are absent, otherwise attempts a
// live submission and falls back to simulation on any failure.
func (b *Binance) SubmitOrder(ctx context.Context, order model.Order) (model.Trade, error) {
	if b.creds.Empty(false) {
		return simulateFill(order, clock.NowNanos()), nil
	}

	trade, err := b.submitReal(ctx, order)
	if err != nil {
		log.Error().Err(err).Str("venue", "binance").Msg("venue: live submission failed, falling back to simulation")
		return simulateFill(order, clock.NowNanos()), nil
	}
	return trade, nil
}

type binanceOrderResponse struct {
	OrderID     int64  `json:"orderId"`
	Symbol      string `json:"symbol"`
	Side        string `json:"side"`
	ExecutedQty string `json:"executedQty"`
	Price       string `json:"price"`
	Status      string `json:"status"`
}

func (b *Binance) submitReal(ctx context.Context, order model.Order) (model.Trade, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return model.Trade{}, fmt.Errorf("binance: rate limit wait: %w", err)
	}

	timestamp := time.Now().UnixMilli()
	query := url.Values{}
	query.Set("symbol", order.Symbol)
	query.Set("side", string(order.Side))
	query.Set("type", "LIMIT")
	query.Set("timeInForce", "GTC")
	query.Set("quantity", strconv.Itoa(int(order.Volume)))
	query.Set("price", strconv.FormatFloat(order.Price, 'f', -1, 64))
	query.Set("timestamp", strconv.FormatInt(timestamp, 10))
	queryString := query.Encode()

	signature := signHex(b.creds.Secret, queryString)
	reqURL := fmt.Sprintf("%s/api/v3/order?%s&signature=%s", b.baseURL, queryString, signature)

	result, err := b.breaker.Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("X-MBX-APIKEY", b.creds.APIKey)

		resp, err := b.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("binance API error (%d): %s", resp.StatusCode, string(body))
		}

		var parsed binanceOrderResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return nil, fmt.Errorf("binance: decode response: %w", err)
		}
		return parsed, nil
	})
	if err != nil {
		return model.Trade{}, fmt.Errorf("binance: submit order: %w", err)
	}

	parsed := result.(binanceOrderResponse)
	filledPrice, err := strconv.ParseFloat(parsed.Price, 64)
	if err != nil {
		filledPrice = order.Price
	}
	filledVolume, err := strconv.Atoi(parsed.ExecutedQty)
	if err != nil {
		filledVolume = int(order.Volume)
	}

	commission := filledPrice * float64(filledVolume) * commissionRate

	status := model.Rejected
	if parsed.Status == "FILLED" {
		status = model.Filled
	}

	return model.Trade{
		TradeID:      strconv.FormatInt(parsed.OrderID, 10),
		OrderID:      order.OrderID,
		StrategyID:   order.StrategyID,
		Symbol:       order.Symbol,
		Side:         order.Side,
		FilledPrice:  filledPrice,
		FilledVolume: int32(filledVolume),
		TradeTime:    clock.NowNanos(),
		Status:       status,
		Commission:   commission,
	}, nil
}

func newBreaker(name string) *gobreaker.CircuitBreaker {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.ConsecutiveFailures >= 3 {
				return true
			}
			if counts.Requests < 20 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) > 0.05
		},
	}
	return gobreaker.NewCircuitBreaker(settings)
}
