package cache

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/nullma/ttquant/internal/model"
)

const ledgerSnapshotTTL = 24 * time.Hour

// LedgerSnapshotter persists risk.Engine's position ledger, keyed by symbol
// (the ledger's own dimension — risk.Engine tracks one net position per
// symbol across every strategy, not per strategy). Rehydration at startup
// prefers the trades-table replay (store package) when a store is
// configured; this snapshot is the fallback fast-restart read when it
// isn't, per the position-ledger-durability resolution.
type LedgerSnapshotter struct {
	cache Cache
}

// NewLedgerSnapshotter wraps a Cache for position snapshot persistence.
func NewLedgerSnapshotter(c Cache) *LedgerSnapshotter {
	return &LedgerSnapshotter{cache: c}
}

func ledgerKey(symbol string) string {
	return fmt.Sprintf("position:%s", symbol)
}

// Save writes a position snapshot. Failures are logged and swallowed; a
// snapshot that is not written leaves a later store-less startup seeding
// from an older snapshot, or from none.
func (s *LedgerSnapshotter) Save(position model.Position) {
	encoded, err := model.EncodePosition(position)
	if err != nil {
		log.Warn().Err(err).Msg("cache: encode position snapshot failed")
		return
	}
	s.cache.Set(ledgerKey(position.Symbol), encoded, ledgerSnapshotTTL)
}

// Load returns a previously saved snapshot for symbol, if present. Called at
// gateway startup only when no trades store is configured to replay from.
func (s *LedgerSnapshotter) Load(symbol string) (model.Position, bool) {
	raw, ok := s.cache.Get(ledgerKey(symbol))
	if !ok {
		return model.Position{}, false
	}
	position, err := model.DecodePosition(raw)
	if err != nil {
		log.Warn().Err(err).Msg("cache: decode position snapshot failed")
		return model.Position{}, false
	}
	return position, true
}
