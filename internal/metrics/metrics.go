// Package metrics defines the Recorder interface exercised by the ingestor
// and gateway on every tick and order, and a Prometheus-backed
// implementation. The HTTP exposition transport is a thin cmd/ concern; this
// package only owns the registry and the counters/histograms themselves.
package metrics

import "time"

// Recorder is the metrics collaborator injected into the ingestor and
// gateway. A nil Recorder is never passed; callers use NoopRecorder when
// metrics are disabled.
type Recorder interface {
	TickReceived(exchange, symbol string)
	TickPublishLatency(exchange, symbol string, d time.Duration)
	OrderReceived(strategyID, symbol string)
	OrderOutcome(strategyID, symbol, status string, errorCode int)
	VenueLatency(venue string, d time.Duration)
	BatchFlush(component string, size int, err error)
}

// NoopRecorder discards everything. Used when no metrics sink is wired.
type NoopRecorder struct{}

func (NoopRecorder) TickReceived(string, string)                       {}
func (NoopRecorder) TickPublishLatency(string, string, time.Duration)  {}
func (NoopRecorder) OrderReceived(string, string)                      {}
func (NoopRecorder) OrderOutcome(string, string, string, int)          {}
func (NoopRecorder) VenueLatency(string, time.Duration)                {}
func (NoopRecorder) BatchFlush(string, int, error)                     {}

var _ Recorder = NoopRecorder{}
