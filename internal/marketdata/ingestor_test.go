package marketdata

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nullma/ttquant/internal/batch"
	"github.com/nullma/ttquant/internal/metrics"
	"github.com/nullma/ttquant/internal/model"
)

type fakeConn struct {
	mu       sync.Mutex
	inbound  chan wsFrame
	written  [][]byte
	controls int
	closed   bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{inbound: make(chan wsFrame, 16)}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	f, ok := <-c.inbound
	if !ok {
		return 0, nil, errors.New("fake conn closed")
	}
	if f.err != nil {
		return 0, nil, f.err
	}
	return f.messageType, f.data, nil
}

func (c *fakeConn) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, data)
	return nil
}

func (c *fakeConn) WriteControl(messageType int, data []byte, deadline time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.controls++
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.inbound)
	}
	return nil
}

type fakePublisher struct {
	mu        sync.Mutex
	published []string
}

func (p *fakePublisher) Publish(topic string, payload []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, topic)
}

func (p *fakePublisher) topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.published...)
}

func newTestIngestor(t *testing.T, cfg Config, conn *fakeConn) (*Ingestor, *fakePublisher) {
	t.Helper()
	return newTestIngestorWithRecorder(t, cfg, conn, metrics.NoopRecorder{})
}

func newTestIngestorWithRecorder(t *testing.T, cfg Config, conn *fakeConn, rec metrics.Recorder) (*Ingestor, *fakePublisher) {
	t.Helper()
	pub := &fakePublisher{}
	queue := batch.NewQueue(nil, 100, time.Hour, "marketdata", rec)
	ing := NewIngestor(cfg, pub, queue, rec)
	ing.dial = func(ctx context.Context, wsURL string) (Conn, error) {
		return conn, nil
	}
	t.Cleanup(func() { conn.Close() })
	return ing, pub
}

type fakeLatencyRecorder struct {
	metrics.NoopRecorder
	calls int
}

func (r *fakeLatencyRecorder) TickPublishLatency(exchange, symbol string, d time.Duration) {
	r.calls++
}

func TestParseBinanceFrame(t *testing.T) {
	raw := []byte(`{"stream":"btcusdt@trade","data":{"s":"BTCUSDT","p":"50000.5","q":"1.25","T":1700000000000}}`)
	tick, ok := parseBinanceFrame(raw)
	require.True(t, ok)
	assert.Equal(t, "BTCUSDT", tick.Symbol)
	assert.Equal(t, "binance", tick.Exchange)
	assert.InDelta(t, 50000.5, tick.LastPrice, 1e-9)
	assert.InDelta(t, 1.25, tick.Volume, 1e-9)
	assert.Equal(t, int64(1700000000000)*int64(1e6), tick.ExchangeTime)
}

func TestParseBinanceFrameIgnoresNonTradeStream(t *testing.T) {
	raw := []byte(`{"stream":"btcusdt@depth","data":{}}`)
	_, ok := parseBinanceFrame(raw)
	assert.False(t, ok)
}

func TestParseBinanceFrameMalformedIsIgnored(t *testing.T) {
	_, ok := parseBinanceFrame([]byte(`not json`))
	assert.False(t, ok)
}

func TestParseOKXFrame(t *testing.T) {
	raw := []byte(`{"arg":{"channel":"trades","instId":"BTC-USDT"},"data":[{"instId":"BTC-USDT","px":"50000.5","sz":"2.0","ts":"1700000000000"}]}`)
	ticks, ok := parseOKXFrame(raw)
	require.True(t, ok)
	require.Len(t, ticks, 1)
	assert.Equal(t, "BTCUSDT", ticks[0].Symbol)
	assert.Equal(t, "okx", ticks[0].Exchange)
}

func TestParseOKXFrameIgnoresNonTradesChannel(t *testing.T) {
	raw := []byte(`{"arg":{"channel":"books","instId":"BTC-USDT"},"data":[]}`)
	_, ok := parseOKXFrame(raw)
	assert.False(t, ok)
}

func TestIngestorStreamsAndPublishesBinanceTick(t *testing.T) {
	conn := newFakeConn()
	cfg := Config{Exchange: "binance", WSURL: "wss://example", Symbols: []string{"BTCUSDT"}, HeartbeatInterval: time.Hour, FlushInterval: time.Hour}
	ing, pub := newTestIngestor(t, cfg, conn)

	conn.inbound <- wsFrame{
		messageType: websocket.TextMessage,
		data:        []byte(`{"stream":"btcusdt@trade","data":{"s":"BTCUSDT","p":"100.0","q":"1.0","T":1000}}`),
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	err := ing.runStream(ctx, conn)
	assert.NoError(t, err)
	assert.Contains(t, pub.topics(), "md.BTCUSDT.binance")
}

func TestIngestorRecordsTickPublishLatency(t *testing.T) {
	conn := newFakeConn()
	cfg := Config{Exchange: "binance", WSURL: "wss://example", Symbols: []string{"BTCUSDT"}, HeartbeatInterval: time.Hour, FlushInterval: time.Hour}
	rec := &fakeLatencyRecorder{}
	ing, pub := newTestIngestorWithRecorder(t, cfg, conn, rec)

	conn.inbound <- wsFrame{
		messageType: websocket.TextMessage,
		data:        []byte(`{"stream":"btcusdt@trade","data":{"s":"BTCUSDT","p":"100.0","q":"1.0","T":1000}}`),
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	err := ing.runStream(ctx, conn)
	assert.NoError(t, err)
	assert.Contains(t, pub.topics(), "md.BTCUSDT.binance")
	assert.Equal(t, 1, rec.calls)
}

func TestIngestorIgnoresOKXPongFrame(t *testing.T) {
	conn := newFakeConn()
	cfg := Config{Exchange: "okx", WSURL: "wss://example", Symbols: []string{"BTC-USDT"}, HeartbeatInterval: time.Hour, FlushInterval: time.Hour}
	ing, pub := newTestIngestor(t, cfg, conn)

	conn.inbound <- wsFrame{messageType: websocket.TextMessage, data: []byte(okxPongText)}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	err := ing.runStream(ctx, conn)
	assert.NoError(t, err)
	assert.Empty(t, pub.topics())
}

func TestClampAndAdvanceBackoff(t *testing.T) {
	schedule := []time.Duration{1 * time.Second, 2 * time.Second, 5 * time.Second}
	assert.Equal(t, 1*time.Second, clampBackoff(schedule, 0))
	assert.Equal(t, 5*time.Second, clampBackoff(schedule, 10))

	idx := advanceBackoff(schedule, 0)
	assert.Equal(t, 1, idx)
	idx = advanceBackoff(schedule, 2)
	assert.Equal(t, 2, idx) // clamped at last entry
}

func TestSubscribeMessages(t *testing.T) {
	payload, err := binanceSubscribeMessage([]string{"BTCUSDT"})
	require.NoError(t, err)
	assert.Contains(t, string(payload), "btcusdt@trade")

	payload, err = okxSubscribeMessage([]string{"BTCUSDT"})
	require.NoError(t, err)
	assert.Contains(t, string(payload), "BTC-USDT")
	assert.Contains(t, string(payload), "trades")
}

func TestRunReconnectsAfterDialFailure(t *testing.T) {
	cfg := Config{
		Exchange:          "binance",
		WSURL:             "wss://example",
		Symbols:           []string{"BTCUSDT"},
		HeartbeatInterval: time.Hour,
		FlushInterval:     time.Hour,
		ReconnectBackoff:  []time.Duration{10 * time.Millisecond},
	}
	pub := &fakePublisher{}
	queue := batch.NewQueue(nil, 100, time.Hour, "marketdata", metrics.NoopRecorder{})
	ing := NewIngestor(cfg, pub, queue, metrics.NoopRecorder{})

	var attempts int
	var mu sync.Mutex
	secondConn := newFakeConn()
	ing.dial = func(ctx context.Context, wsURL string) (Conn, error) {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		if attempts == 1 {
			return nil, errors.New("connection refused")
		}
		return secondConn, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		ing.Run(ctx)
		close(done)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()
	secondConn.Close()
	<-done

	mu.Lock()
	defer mu.Unlock()
	assert.GreaterOrEqual(t, attempts, 2)
}

func TestEncodeTickRoundTrip(t *testing.T) {
	tick := model.Tick{Symbol: "BTCUSDT", Exchange: "binance", LastPrice: 1, Volume: 2}
	payload, err := model.EncodeTick(tick)
	require.NoError(t, err)
	decoded, err := model.DecodeTick(payload)
	require.NoError(t, err)
	assert.Equal(t, tick, decoded)
}
