// Package gateway implements the order gateway's single-consumer loop:
// receive an order, persist it optionally, run the risk checks, submit to
// the venue, persist and publish the resulting trade, and on a fill, update
// the position ledger and optionally snapshot it.
package gateway

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/nullma/ttquant/internal/metrics"
	"github.com/nullma/ttquant/internal/model"
	"github.com/nullma/ttquant/internal/risk"
	"github.com/nullma/ttquant/internal/venue"
)

// Publisher is the outbound trade bus endpoint.
type Publisher interface {
	Publish(topic string, payload []byte)
}

// Store is the subset of store.Store the gateway writes to. Every write is
// best-effort: failures are logged, never propagated.
type Store interface {
	InsertOrder(ctx context.Context, order model.Order) error
	InsertTrade(ctx context.Context, trade model.Trade) error
	InsertPosition(ctx context.Context, position model.Position) error
}

// Ledger is the fast-restart position snapshot cache (cache.LedgerSnapshotter
// in production). Save is best-effort: it reports no error, and a failed
// write never changes the trade HandleOrder returns. It is called
// synchronously, so a slow cache delays HandleOrder by that call's duration.
type Ledger interface {
	Save(position model.Position)
}

// retryableSubstrings is the substring set an error's lowercased message is
// matched against to determine is_retryable on a venue submission failure.
var retryableSubstrings = []string{"timeout", "connection", "rate limit", "429"}

// Gateway is the single order-processing loop. Not safe for concurrent use
// — a process runs exactly one.
type Gateway struct {
	risk      *risk.Engine
	adapter   venue.Adapter
	publisher Publisher
	store     Store  // nil means persistence is disabled
	ledger    Ledger // nil means no fast-restart snapshot cache configured
	recorder  metrics.Recorder
}

// New constructs a Gateway. store and ledger may each be nil (disabled);
// recorder may be metrics.NoopRecorder{}.
func New(riskEngine *risk.Engine, adapter venue.Adapter, publisher Publisher, store Store, recorder metrics.Recorder, ledger Ledger) *Gateway {
	return &Gateway{
		risk:      riskEngine,
		adapter:   adapter,
		publisher: publisher,
		store:     store,
		ledger:    ledger,
		recorder:  recorder,
	}
}

// HandleOrder processes a single order end to end and returns the trade
// receipt published on the bus. It never returns an error: every failure
// mode is represented in the returned Trade (per spec's outcome
// classification) or logged as a best-effort persistence warning.
func (g *Gateway) HandleOrder(ctx context.Context, order model.Order) model.Trade {
	log.Info().Str("order_id", order.OrderID).Str("symbol", order.Symbol).Str("strategy_id", order.StrategyID).Msg("gateway: order received")
	g.recorder.OrderReceived(order.StrategyID, order.Symbol)

	if g.store != nil {
		if err := g.store.InsertOrder(ctx, order); err != nil {
			log.Warn().Err(err).Str("order_id", order.OrderID).Msg("gateway: persist order failed")
		}
	}

	trade := g.process(ctx, order)

	if g.store != nil {
		if err := g.store.InsertTrade(ctx, trade); err != nil {
			log.Warn().Err(err).Str("trade_id", trade.TradeID).Msg("gateway: persist trade failed")
		}
	}

	g.publishTrade(trade)
	g.recorder.OrderOutcome(order.StrategyID, order.Symbol, string(trade.Status), trade.ErrorCode)

	if trade.Status == model.Filled {
		g.risk.UpdatePosition(order.Symbol, order.Side, trade.FilledVolume, trade.FilledPrice)
		g.snapshotPosition(ctx, order)
	}

	return trade
}

func (g *Gateway) process(ctx context.Context, order model.Order) model.Trade {
	if err := g.risk.CheckOrder(order); err != nil {
		return rejectedTrade(order, model.ErrCodeRisk, err.Error(), false)
	}

	start := time.Now()
	trade, err := g.adapter.SubmitOrder(ctx, order)
	g.recorder.VenueLatency(g.adapter.Name(), time.Since(start))
	if err != nil {
		retryable := isRetryable(err)
		return rejectedTrade(order, model.ErrCodeVenue, err.Error(), retryable)
	}

	return trade
}

func rejectedTrade(order model.Order, errorCode int, message string, retryable bool) model.Trade {
	return model.Trade{
		TradeID:      "REJECTED_" + order.OrderID,
		OrderID:      order.OrderID,
		StrategyID:   order.StrategyID,
		Symbol:       order.Symbol,
		Side:         order.Side,
		Status:       model.Rejected,
		ErrorCode:    errorCode,
		ErrorMessage: message,
		IsRetryable:  retryable,
	}
}

func isRetryable(err error) bool {
	lowered := strings.ToLower(err.Error())
	for _, substr := range retryableSubstrings {
		if strings.Contains(lowered, substr) {
			return true
		}
	}
	return false
}

func (g *Gateway) publishTrade(trade model.Trade) {
	payload, err := model.EncodeTrade(trade)
	if err != nil {
		log.Warn().Err(err).Str("trade_id", trade.TradeID).Msg("gateway: encode trade failed")
		return
	}
	g.publisher.Publish(fmt.Sprintf("trade.%s.%s", trade.Symbol, g.adapter.Name()), payload)
}

func (g *Gateway) snapshotPosition(ctx context.Context, order model.Order) {
	details, ok := g.risk.GetPositionDetails(order.Symbol)
	if !ok {
		return
	}
	details.StrategyID = order.StrategyID
	details.UnrealizedPnL = 0 // deferred to a future revision; no mark price tracked

	if g.ledger != nil {
		g.ledger.Save(details)
	}

	if g.store != nil {
		if err := g.store.InsertPosition(ctx, details); err != nil {
			log.Warn().Err(err).Str("symbol", order.Symbol).Msg("gateway: persist position snapshot failed")
		}
	}
}
