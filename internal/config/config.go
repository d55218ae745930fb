// Package config defines the TOML-loaded configuration types for the
// market-data ingestor and order gateway, and a thin loader built on
// github.com/pelletier/go-toml/v2.
package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// RiskConfig mirrors internal/risk.Config's TOML shape; duplicated here so
// the config package has no dependency on internal/risk and callers convert
// explicitly at wiring time.
type RiskConfig struct {
	PositionLimits                map[string]int32 `toml:"position_limits"`
	MaxOrdersPerSecond            int              `toml:"max_orders_per_second"`
	MaxOrdersPerStrategyPerSecond int              `toml:"max_orders_per_strategy_per_second"`
	MaxOrderAgeMs                 int64            `toml:"max_order_age_ms"`
	MinPrice                      float64          `toml:"min_price"`
	MaxPrice                      float64          `toml:"max_price"`
}

// MarketConfig is the per-venue ingestor configuration: WS endpoint, symbol
// list, heartbeat cadence, and reconnect backoff schedule.
type MarketConfig struct {
	Exchange            string  `toml:"exchange"`
	WSURL                string  `toml:"ws_url"`
	Symbols              []string `toml:"symbols"`
	HeartbeatIntervalMs  int64   `toml:"heartbeat_interval_ms"`
	FlushIntervalMs      int64   `toml:"flush_interval_ms"`
	BatchSize            int     `toml:"batch_size"`
	ReconnectBackoffMs   []int64 `toml:"reconnect_backoff_ms"`
}

// VenueCredentials is the TOML shape for a single venue's API triple.
type VenueCredentials struct {
	APIKey     string `toml:"api_key"`
	Secret     string `toml:"secret"`
	Passphrase string `toml:"passphrase"`
	Testnet    bool   `toml:"testnet"`
}

// Root is the top-level TOML document: risk config, one market config per
// configured venue, and per-venue credentials.
type Root struct {
	Risk    RiskConfig                  `toml:"risk"`
	Market  map[string]MarketConfig     `toml:"market"`
	Venues  map[string]VenueCredentials `toml:"venue"`
}

// Load reads and parses a TOML config file from path.
func Load(path string) (Root, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Root{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	var root Root
	if err := toml.Unmarshal(data, &root); err != nil {
		return Root{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return root, nil
}

// DefaultReconnectBackoffMs is the reconnect schedule, in milliseconds, for a
// MarketConfig that doesn't specify one. The ingest loop reads the same
// values from its own copy, marketdata.defaultReconnectBackoff.
var DefaultReconnectBackoffMs = []int64{1000, 2000, 5000, 5000}
