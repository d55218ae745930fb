package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus is the production Recorder, backed by a private registry so
// multiple instances (e.g. in tests) never collide on global registration.
type Prometheus struct {
	registry *prometheus.Registry

	ticksTotal     *prometheus.CounterVec
	publishLatency *prometheus.HistogramVec
	ordersTotal    *prometheus.CounterVec
	orderOutcomes  *prometheus.CounterVec
	venueLatency   *prometheus.HistogramVec
	flushTotal     *prometheus.CounterVec
	flushSize      *prometheus.HistogramVec
}

// NewPrometheus constructs a Prometheus recorder and returns its registry so
// the caller's cmd/ entry point can wire promhttp.HandlerFor to /metrics.
func NewPrometheus() (*Prometheus, *prometheus.Registry) {
	registry := prometheus.NewRegistry()

	p := &Prometheus{
		registry: registry,
		ticksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ttquant_ticks_received_total",
				Help: "Total number of market-data ticks received per exchange/symbol.",
			},
			[]string{"exchange", "symbol"},
		),
		publishLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ttquant_tick_publish_latency_ms",
				Help:    "Latency between exchange timestamp and bus publish, in milliseconds.",
				Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
			},
			[]string{"exchange", "symbol"},
		),
		ordersTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ttquant_orders_received_total",
				Help: "Total number of orders received by the gateway.",
			},
			[]string{"strategy_id", "symbol"},
		),
		orderOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ttquant_order_outcomes_total",
				Help: "Total number of order outcomes by status and error code.",
			},
			[]string{"strategy_id", "symbol", "status", "error_code"},
		),
		venueLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ttquant_venue_latency_ms",
				Help:    "Venue REST round-trip latency in milliseconds.",
				Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500},
			},
			[]string{"venue"},
		),
		flushTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ttquant_batch_flush_total",
				Help: "Total number of batch flush attempts by component and outcome.",
			},
			[]string{"component", "outcome"},
		),
		flushSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ttquant_batch_flush_size",
				Help:    "Number of records in each batch flush.",
				Buckets: []float64{1, 10, 50, 100, 250, 500, 1000},
			},
			[]string{"component"},
		),
	}

	registry.MustRegister(
		p.ticksTotal,
		p.publishLatency,
		p.ordersTotal,
		p.orderOutcomes,
		p.venueLatency,
		p.flushTotal,
		p.flushSize,
	)

	return p, registry
}

func (p *Prometheus) TickReceived(exchange, symbol string) {
	p.ticksTotal.WithLabelValues(exchange, symbol).Inc()
}

func (p *Prometheus) TickPublishLatency(exchange, symbol string, d time.Duration) {
	p.publishLatency.WithLabelValues(exchange, symbol).Observe(float64(d.Milliseconds()))
}

func (p *Prometheus) OrderReceived(strategyID, symbol string) {
	p.ordersTotal.WithLabelValues(strategyID, symbol).Inc()
}

func (p *Prometheus) OrderOutcome(strategyID, symbol, status string, errorCode int) {
	p.orderOutcomes.WithLabelValues(strategyID, symbol, status, strconv.Itoa(errorCode)).Inc()
}

func (p *Prometheus) VenueLatency(venue string, d time.Duration) {
	p.venueLatency.WithLabelValues(venue).Observe(float64(d.Milliseconds()))
}

func (p *Prometheus) BatchFlush(component string, size int, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	p.flushTotal.WithLabelValues(component, outcome).Inc()
	if err == nil {
		p.flushSize.WithLabelValues(component).Observe(float64(size))
	}
}

var _ Recorder = (*Prometheus)(nil)
