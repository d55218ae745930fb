package metrics

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// MetricStore is the store.Store subset this package writes to. Defined
// here (rather than importing internal/store) to keep metrics free of a
// dependency on the persistence layer's full surface.
type MetricStore interface {
	InsertMetric(ctx context.Context, component, metricName string, value float64) error
}

// StoreRecorder wraps a Recorder and additionally persists its low-frequency
// events (order outcomes, venue latency, batch flushes) to the metrics table
// as a durable sink alongside whatever in-memory registry the wrapped
// Recorder exposes (e.g. Prometheus). Tick-rate events are deliberately left
// to the wrapped Recorder only: a database write per market-data tick would
// undercut the pipeline's own latency budget. Every durable write is
// best-effort: failures are logged, never propagated, matching persistence
// elsewhere in the pipeline.
type StoreRecorder struct {
	inner Recorder
	store MetricStore
}

// NewStoreRecorder wraps inner with durable persistence of select metrics
// into store. inner must be non-nil; store must be non-nil (pass
// NoopRecorder{} for inner and skip this wrapper entirely when no durable
// sink is configured).
func NewStoreRecorder(inner Recorder, store MetricStore) *StoreRecorder {
	return &StoreRecorder{inner: inner, store: store}
}

func (r *StoreRecorder) TickReceived(exchange, symbol string) {
	r.inner.TickReceived(exchange, symbol)
}

func (r *StoreRecorder) TickPublishLatency(exchange, symbol string, d time.Duration) {
	r.inner.TickPublishLatency(exchange, symbol, d)
}

func (r *StoreRecorder) OrderReceived(strategyID, symbol string) {
	r.inner.OrderReceived(strategyID, symbol)
}

func (r *StoreRecorder) OrderOutcome(strategyID, symbol, status string, errorCode int) {
	r.inner.OrderOutcome(strategyID, symbol, status, errorCode)
	r.record("gateway", strategyID+"."+symbol+"."+status, float64(errorCode))
}

func (r *StoreRecorder) VenueLatency(venue string, d time.Duration) {
	r.inner.VenueLatency(venue, d)
	r.record("venue", venue+".latency_ms", float64(d.Milliseconds()))
}

func (r *StoreRecorder) BatchFlush(component string, size int, err error) {
	r.inner.BatchFlush(component, size, err)
	if err == nil {
		r.record(component, "flush_size", float64(size))
	}
}

func (r *StoreRecorder) record(component, metricName string, value float64) {
	if err := r.store.InsertMetric(context.Background(), component, metricName, value); err != nil {
		log.Warn().Err(err).Str("component", component).Str("metric", metricName).Msg("metrics: durable write failed")
	}
}

var _ Recorder = (*StoreRecorder)(nil)
