// Package marketdata implements the per-venue ingest loop: an outer
// reconnect loop wrapping an inner stream loop that multiplexes inbound
// frames, heartbeat ticks, and persistence-flush ticks.
package marketdata

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/nullma/ttquant/internal/batch"
	"github.com/nullma/ttquant/internal/clock"
	"github.com/nullma/ttquant/internal/metrics"
	"github.com/nullma/ttquant/internal/model"
)

// Publisher is the outbound market-data bus endpoint.
type Publisher interface {
	Publish(topic string, payload []byte)
}

// Ingestor runs the reconnect/stream loop for a single venue process.
type Ingestor struct {
	cfg       Config
	dial      Dialer
	publisher Publisher
	queue     *batch.Queue
	recorder  metrics.Recorder

	mu    sync.Mutex
	state State
}

// NewIngestor constructs an Ingestor. publisher and queue must be non-nil;
// recorder may be metrics.NoopRecorder{}.
func NewIngestor(cfg Config, publisher Publisher, queue *batch.Queue, recorder metrics.Recorder) *Ingestor {
	return &Ingestor{
		cfg:       cfg,
		dial:      defaultDialer(cfg.SOCKS5Proxy),
		publisher: publisher,
		queue:     queue,
		recorder:  recorder,
		state:     Disconnected,
	}
}

// State returns the current connection state.
func (ing *Ingestor) State() State {
	ing.mu.Lock()
	defer ing.mu.Unlock()
	return ing.state
}

func (ing *Ingestor) setState(s State) {
	ing.mu.Lock()
	ing.state = s
	ing.mu.Unlock()
}

// Run drives the outer reconnect loop until ctx is cancelled.
func (ing *Ingestor) Run(ctx context.Context) error {
	schedule := ing.cfg.backoffSchedule()
	backoffIdx := 0

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		ing.setState(Connecting)
		conn, err := ing.dial(ctx, ing.cfg.WSURL)
		if err != nil {
			log.Error().Err(err).Str("exchange", ing.cfg.Exchange).Msg("marketdata: connect failed")
			if !sleepCtx(ctx, clampBackoff(schedule, backoffIdx)) {
				return ctx.Err()
			}
			backoffIdx = advanceBackoff(schedule, backoffIdx)
			continue
		}

		ing.setState(Subscribing)
		if err := ing.subscribe(conn); err != nil {
			log.Error().Err(err).Str("exchange", ing.cfg.Exchange).Msg("marketdata: subscribe failed")
			conn.Close()
			if !sleepCtx(ctx, clampBackoff(schedule, backoffIdx)) {
				return ctx.Err()
			}
			backoffIdx = advanceBackoff(schedule, backoffIdx)
			continue
		}

		ing.setState(Streaming)
		backoffIdx = 0 // resets on a successful Subscribing -> Streaming transition

		streamErr := ing.runStream(ctx, conn)
		conn.Close()

		ing.setState(Draining)
		if err := ing.queue.Flush(ctx); err != nil {
			log.Warn().Err(err).Str("exchange", ing.cfg.Exchange).Msg("marketdata: shutdown flush failed")
		}
		ing.setState(Disconnected)

		if ctx.Err() != nil {
			return ctx.Err()
		}

		if streamErr == nil {
			continue // clean close: immediate reconnect, index stays at 0
		}

		log.Warn().Err(streamErr).Str("exchange", ing.cfg.Exchange).Msg("marketdata: stream ended with error")
		if !sleepCtx(ctx, clampBackoff(schedule, backoffIdx)) {
			return ctx.Err()
		}
		backoffIdx = advanceBackoff(schedule, backoffIdx)
	}
}

func (ing *Ingestor) subscribe(conn Conn) error {
	var (
		payload []byte
		err     error
	)
	switch ing.cfg.Exchange {
	case "okx":
		payload, err = okxSubscribeMessage(ing.cfg.Symbols)
	default:
		payload, err = binanceSubscribeMessage(ing.cfg.Symbols)
	}
	if err != nil {
		return fmt.Errorf("marketdata: build subscribe message: %w", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("marketdata: send subscribe message: %w", err)
	}
	return nil
}

type wsFrame struct {
	messageType int
	data        []byte
	err         error
}

// runStream multiplexes inbound frames, heartbeat ticks, and flush ticks
// with select-based fairness until the connection errors, the context is
// cancelled, or the stream ends cleanly.
func (ing *Ingestor) runStream(ctx context.Context, conn Conn) error {
	frames := make(chan wsFrame, 16)
	go func() {
		defer close(frames)
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				frames <- wsFrame{err: err}
				return
			}
			frames <- wsFrame{messageType: mt, data: data}
		}
	}()

	heartbeat := time.NewTicker(ing.cfg.heartbeatInterval())
	defer heartbeat.Stop()

	flushInterval := ing.cfg.FlushInterval
	if flushInterval <= 0 {
		flushInterval = batch.DefaultFlushInterval
	}
	flush := time.NewTicker(flushInterval)
	defer flush.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil // clean shutdown, not a stream error
		case frame, ok := <-frames:
			if !ok {
				return nil
			}
			if frame.err != nil {
				if websocket.IsCloseError(frame.err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					return nil
				}
				return frame.err
			}
			ing.handleFrame(ctx, frame.messageType, frame.data)
		case <-heartbeat.C:
			ing.sendHeartbeat(conn)
		case <-flush.C:
			if err := ing.queue.Flush(ctx); err != nil {
				log.Warn().Err(err).Str("exchange", ing.cfg.Exchange).Msg("marketdata: periodic flush failed")
			}
		}
	}
}

func (ing *Ingestor) sendHeartbeat(conn Conn) {
	var err error
	switch ing.cfg.Exchange {
	case "okx":
		err = conn.WriteMessage(websocket.TextMessage, []byte(okxPingText))
	default:
		err = conn.WriteControl(websocket.PongMessage, nil, time.Now().Add(5*time.Second))
	}
	if err != nil {
		log.Warn().Err(err).Str("exchange", ing.cfg.Exchange).Msg("marketdata: heartbeat send failed")
	}
}

func (ing *Ingestor) handleFrame(ctx context.Context, messageType int, data []byte) {
	if messageType != websocket.TextMessage {
		return
	}
	if ing.cfg.Exchange == "okx" && string(data) == okxPongText {
		return
	}

	var ticks []model.Tick
	switch ing.cfg.Exchange {
	case "okx":
		parsed, ok := parseOKXFrame(data)
		if !ok {
			return
		}
		ticks = parsed
	default:
		tick, ok := parseBinanceFrame(data)
		if !ok {
			return
		}
		ticks = []model.Tick{tick}
	}

	for _, tick := range ticks {
		ing.publishTick(ctx, tick)
	}
}

func (ing *Ingestor) publishTick(ctx context.Context, tick model.Tick) {
	ing.recorder.TickReceived(tick.Exchange, tick.Symbol)

	payload, err := model.EncodeTick(tick)
	if err != nil {
		log.Warn().Err(err).Msg("marketdata: encode tick failed")
		return
	}
	ing.publisher.Publish(fmt.Sprintf("md.%s.%s", tick.Symbol, tick.Exchange), payload)

	if tick.ExchangeTime > 0 {
		latency := time.Duration(clock.NowNanos() - tick.ExchangeTime)
		if latency > 0 {
			ing.recorder.TickPublishLatency(tick.Exchange, tick.Symbol, latency)
		}
	}

	if err := ing.queue.Add(ctx, tick); err != nil {
		log.Warn().Err(err).Str("symbol", tick.Symbol).Msg("marketdata: batch queue add failed")
	}
}

func clampBackoff(schedule []time.Duration, idx int) time.Duration {
	if idx >= len(schedule) {
		idx = len(schedule) - 1
	}
	return schedule[idx]
}

func advanceBackoff(schedule []time.Duration, idx int) int {
	if idx+1 >= len(schedule) {
		return len(schedule) - 1
	}
	return idx + 1
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
