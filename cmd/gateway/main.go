// Command gateway runs the order gateway: receive orders off the work
// queue, run them through risk checks and the venue adapter, and publish
// the resulting trade.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/nullma/ttquant/internal/bus"
	"github.com/nullma/ttquant/internal/cache"
	"github.com/nullma/ttquant/internal/config"
	"github.com/nullma/ttquant/internal/gateway"
	"github.com/nullma/ttquant/internal/metrics"
	"github.com/nullma/ttquant/internal/model"
	"github.com/nullma/ttquant/internal/risk"
	"github.com/nullma/ttquant/internal/store"
	"github.com/nullma/ttquant/internal/venue"
)

var rootCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Run the order gateway for a single venue",
	RunE:  runGateway,
}

func init() {
	rootCmd.Flags().String("venue", envOr("VENUE", "binance"), "venue to submit orders to (binance, okx)")
	rootCmd.Flags().String("config", envOr("CONFIG", "config/gateway.toml"), "path to the TOML config file")
	rootCmd.Flags().String("pull-endpoint", envOr("ZMQ_PULL_ENDPOINT", ":5556"), "work queue bind address for inbound orders")
	rootCmd.Flags().String("pub-endpoint", envOr("ZMQ_PUB_ENDPOINT", ":5557"), "fanout bind address for trade receipts")
	rootCmd.Flags().String("metrics-port", envOr("METRICS_PORT", "9102"), "Prometheus /metrics listen port")
	rootCmd.Flags().String("db-uri", envOr("DB_URI", ""), "Postgres DSN; empty disables persistence")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("gateway: fatal")
	}
}

func runGateway(cmd *cobra.Command, args []string) error {
	venueName, _ := cmd.Flags().GetString("venue")
	configPath, _ := cmd.Flags().GetString("config")
	pullEndpoint, _ := cmd.Flags().GetString("pull-endpoint")
	pubEndpoint, _ := cmd.Flags().GetString("pub-endpoint")
	metricsPort, _ := cmd.Flags().GetString("metrics-port")
	dbURI, _ := cmd.Flags().GetString("db-uri")

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("gateway: load config: %w", err)
	}

	riskEngine := risk.NewEngine(toRiskConfig(cfg.Risk))

	prom, registry := metrics.NewPrometheus()
	var recorder metrics.Recorder = prom

	var st *store.Postgres
	var gatewayStore gateway.Store
	if dbURI != "" {
		st, err = store.NewPostgres(store.DefaultConfig(dbURI))
		if err != nil {
			return fmt.Errorf("gateway: connect store: %w", err)
		}
		defer st.Close()
		gatewayStore = st
		recorder = metrics.NewStoreRecorder(prom, st)
	}

	ledger := cache.NewLedgerSnapshotter(cache.NewAuto())
	seedPositions(context.Background(), riskEngine, st, ledger, cfg.Risk)

	adapter, err := buildAdapter(venueName, cfg)
	if err != nil {
		return fmt.Errorf("gateway: build venue adapter: %w", err)
	}

	publisher, err := bus.NewFanoutPublisher(pubEndpoint)
	if err != nil {
		return fmt.Errorf("gateway: bind fanout publisher: %w", err)
	}
	defer publisher.Close()

	receiver, err := bus.NewWorkQueueReceiver(pullEndpoint)
	if err != nil {
		return fmt.Errorf("gateway: bind work queue receiver: %w", err)
	}
	defer receiver.Close()

	gw := gateway.New(riskEngine, adapter, publisher, gatewayStore, recorder, ledger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "OK")
	})
	server := &http.Server{
		Addr:         ":" + metricsPort,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", server.Addr).Msg("gateway: metrics server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		runOrderLoop(ctx, gw, receiver)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Info().Msg("gateway: shutdown signal received")
	case err := <-serverErr:
		cancel()
		return fmt.Errorf("gateway: metrics server error: %w", err)
	}

	cancel()
	<-done

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("gateway: metrics server shutdown error")
	}

	log.Info().Msg("gateway: shutdown complete")
	return nil
}

// runOrderLoop is the single-consumer order loop: one order is decoded,
// handled to completion, and published before the next Receive call, per
// the gateway's single-consumer discipline.
func runOrderLoop(ctx context.Context, gw *gateway.Gateway, receiver *bus.WorkQueueReceiver) {
	for {
		if ctx.Err() != nil {
			return
		}
		payload, ok := receiver.Receive(time.Second)
		if !ok {
			continue
		}
		order, err := model.DecodeOrder(payload)
		if err != nil {
			log.Warn().Err(err).Msg("gateway: decode order failed, dropping")
			continue
		}
		gw.HandleOrder(ctx, order)
	}
}

func buildAdapter(venueName string, cfg config.Root) (venue.Adapter, error) {
	creds := cfg.Venues[venueName]
	c := venue.Credentials{APIKey: creds.APIKey, Secret: creds.Secret, Passphrase: creds.Passphrase}

	switch venueName {
	case "okx":
		return venue.NewOKX(c), nil
	case "binance":
		return venue.NewBinance(c, creds.Testnet), nil
	default:
		return nil, fmt.Errorf("unknown venue %q", venueName)
	}
}

func toRiskConfig(c config.RiskConfig) risk.Config {
	return risk.Config{
		PositionLimits:                c.PositionLimits,
		MaxOrdersPerSecond:            c.MaxOrdersPerSecond,
		MaxOrdersPerStrategyPerSecond: c.MaxOrdersPerStrategyPerSecond,
		MaxOrderAgeMs:                 c.MaxOrderAgeMs,
		MinPrice:                      c.MinPrice,
		MaxPrice:                      c.MaxPrice,
	}
}

// seedPositions rehydrates the risk engine's ledger at startup. When a store
// is configured it replays FILLED trades oldest-first — the authoritative
// path, since it reconstructs each symbol's position and average price from
// the fills themselves. The replay covers the earliest 10000 FILLED trades by
// trade_time; later fills are not replayed. Without a store, it falls back to a best-effort
// per-symbol read of the Redis snapshot written by gateway.Ledger.Save, for
// every symbol the risk config knows about; a cold cache (or no Redis
// configured at all) just means the ledger starts empty, as it always did
// before this fallback existed.
func seedPositions(ctx context.Context, riskEngine *risk.Engine, st *store.Postgres, ledger *cache.LedgerSnapshotter, riskCfg config.RiskConfig) {
	if st != nil {
		trades, err := st.LatestFilledTrades(ctx, 10000)
		if err != nil {
			log.Warn().Err(err).Msg("gateway: seed positions from store failed")
			return
		}
		for _, t := range trades {
			riskEngine.UpdatePosition(t.Symbol, t.Side, t.FilledVolume, t.FilledPrice)
		}
		log.Info().Int("trades", len(trades)).Msg("gateway: seeded positions from store")
		return
	}

	seeded := 0
	for symbol := range riskCfg.PositionLimits {
		position, ok := ledger.Load(symbol)
		if !ok {
			continue
		}
		riskEngine.SeedPosition(symbol, position.Quantity, position.AvgPrice)
		seeded++
	}
	log.Info().Int("symbols", seeded).Msg("gateway: seeded positions from redis snapshot")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
