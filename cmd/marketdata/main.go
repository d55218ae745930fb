// Command marketdata runs a single venue's ingest loop: connect, subscribe,
// stream trade prints onto the fanout bus, and batch them into storage.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/nullma/ttquant/internal/batch"
	"github.com/nullma/ttquant/internal/bus"
	"github.com/nullma/ttquant/internal/config"
	"github.com/nullma/ttquant/internal/marketdata"
	"github.com/nullma/ttquant/internal/metrics"
	"github.com/nullma/ttquant/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "marketdata",
	Short: "Stream venue trade prints onto the market-data bus",
	RunE:  runMarketData,
}

func init() {
	rootCmd.Flags().String("exchange", envOr("EXCHANGE", "binance"), "venue to stream from (binance, okx)")
	rootCmd.Flags().String("config", envOr("CONFIG", "config/marketdata.toml"), "path to the TOML config file providing the [market.<exchange>] section; missing file is not an error")
	rootCmd.Flags().String("ws-url", envOr("WS_URL", ""), "venue WebSocket endpoint (overrides the config file's ws_url)")
	rootCmd.Flags().StringSlice("symbols", envOrSlice("SYMBOLS", nil), "symbols to subscribe to (overrides the config file's symbols)")
	rootCmd.Flags().String("pub-endpoint", envOr("ZMQ_PUB_ENDPOINT", ":5555"), "fanout bind address for market data")
	rootCmd.Flags().String("metrics-port", envOr("METRICS_PORT", "9101"), "Prometheus /metrics listen port")
	rootCmd.Flags().String("db-uri", envOr("DB_URI", ""), "Postgres DSN; empty disables persistence")
	rootCmd.Flags().String("socks5-proxy", envOr("SOCKS5_PROXY", ""), "SOCKS5 proxy for the WebSocket dial")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("marketdata: fatal")
	}
}

func runMarketData(cmd *cobra.Command, args []string) error {
	exchange, _ := cmd.Flags().GetString("exchange")
	configPath, _ := cmd.Flags().GetString("config")
	wsURL, _ := cmd.Flags().GetString("ws-url")
	symbols, _ := cmd.Flags().GetStringSlice("symbols")
	pubEndpoint, _ := cmd.Flags().GetString("pub-endpoint")
	metricsPort, _ := cmd.Flags().GetString("metrics-port")
	dbURI, _ := cmd.Flags().GetString("db-uri")
	socks5Proxy, _ := cmd.Flags().GetString("socks5-proxy")

	marketCfg, err := loadMarketConfig(configPath, exchange)
	if err != nil {
		return fmt.Errorf("marketdata: load config: %w", err)
	}

	if !cmd.Flags().Changed("ws-url") && marketCfg.WSURL != "" {
		wsURL = marketCfg.WSURL
	}
	if !cmd.Flags().Changed("symbols") && len(marketCfg.Symbols) > 0 {
		symbols = marketCfg.Symbols
	}
	if len(symbols) == 0 {
		symbols = []string{"BTCUSDT"}
	}
	if wsURL == "" {
		return fmt.Errorf("marketdata: --ws-url (or WS_URL, or the config file's ws_url) is required")
	}

	prom, registry := metrics.NewPrometheus()
	var recorder metrics.Recorder = prom

	var writer batch.Writer
	if dbURI != "" {
		pg, err := store.NewPostgres(store.DefaultConfig(dbURI))
		if err != nil {
			return fmt.Errorf("marketdata: connect store: %w", err)
		}
		defer pg.Close()
		writer = pg
		recorder = metrics.NewStoreRecorder(prom, pg)
	}

	batchSize := marketCfg.BatchSize
	if batchSize <= 0 {
		batchSize = batch.DefaultBatchSize
	}
	flushInterval := time.Duration(marketCfg.FlushIntervalMs) * time.Millisecond
	if flushInterval <= 0 {
		flushInterval = batch.DefaultFlushInterval
	}
	queue := batch.NewQueue(writer, batchSize, flushInterval, "marketdata", recorder)

	publisher, err := bus.NewFanoutPublisher(pubEndpoint)
	if err != nil {
		return fmt.Errorf("marketdata: bind fanout publisher: %w", err)
	}
	defer publisher.Close()

	ingestor := marketdata.NewIngestor(marketdata.Config{
		Exchange:          exchange,
		WSURL:             wsURL,
		Symbols:           symbols,
		HeartbeatInterval: time.Duration(marketCfg.HeartbeatIntervalMs) * time.Millisecond,
		FlushInterval:     flushInterval,
		BatchSize:         batchSize,
		ReconnectBackoff:  backoffDurations(marketCfg.ReconnectBackoffMs),
		SOCKS5Proxy:       socks5Proxy,
	}, publisher, queue, recorder)

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
		log.Info().Str("addr", server.Addr).Msg("marketdata: metrics server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	ingestErr := make(chan error, 1)
	go func() {
		ingestErr <- ingestor.Run(ctx)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Info().Msg("marketdata: shutdown signal received")
		cancel()
		<-ingestErr
	case err := <-serverErr:
		cancel()
		<-ingestErr
		return fmt.Errorf("marketdata: metrics server error: %w", err)
	case err := <-ingestErr:
		cancel()
		if err != nil && err != context.Canceled {
			return fmt.Errorf("marketdata: ingest loop exited: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("marketdata: metrics server shutdown error")
	}

	log.Info().Msg("marketdata: shutdown complete")
	return nil
}

// loadMarketConfig reads the [market.<exchange>] section of the TOML config
// file at path. A missing file is not an error — the process falls back to
// flag/env values entirely, matching the --ws-url-only invocation the
// marketdata binary has always supported.
func loadMarketConfig(path, exchange string) (config.MarketConfig, error) {
	if path == "" {
		return config.MarketConfig{}, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config.MarketConfig{}, nil
	}
	root, err := config.Load(path)
	if err != nil {
		return config.MarketConfig{}, err
	}
	return root.Market[exchange], nil
}

func backoffDurations(ms []int64) []time.Duration {
	if len(ms) == 0 {
		return nil
	}
	out := make([]time.Duration, len(ms))
	for i, v := range ms {
		out[i] = time.Duration(v) * time.Millisecond
	}
	return out
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrSlice(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
