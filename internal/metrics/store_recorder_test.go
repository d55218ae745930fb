package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMetricStore struct {
	component  []string
	metricName []string
	value      []float64
	err        error
}

func (s *fakeMetricStore) InsertMetric(ctx context.Context, component, metricName string, value float64) error {
	s.component = append(s.component, component)
	s.metricName = append(s.metricName, metricName)
	s.value = append(s.value, value)
	return s.err
}

func TestStoreRecorderPersistsOrderOutcome(t *testing.T) {
	store := &fakeMetricStore{}
	r := NewStoreRecorder(NoopRecorder{}, store)

	r.OrderOutcome("strat-1", "BTCUSDT", "FILLED", 0)

	require.Len(t, store.component, 1)
	assert.Equal(t, "gateway", store.component[0])
	assert.Equal(t, "strat-1.BTCUSDT.FILLED", store.metricName[0])
}

func TestStoreRecorderPersistsVenueLatency(t *testing.T) {
	store := &fakeMetricStore{}
	r := NewStoreRecorder(NoopRecorder{}, store)

	r.VenueLatency("binance", 42*time.Millisecond)

	require.Len(t, store.component, 1)
	assert.Equal(t, "venue", store.component[0])
	assert.InDelta(t, 42, store.value[0], 0.001)
}

func TestStoreRecorderSkipsFlushSizeOnError(t *testing.T) {
	store := &fakeMetricStore{}
	r := NewStoreRecorder(NoopRecorder{}, store)

	r.BatchFlush("marketdata", 10, errors.New("db down"))

	assert.Empty(t, store.component)
}

func TestStoreRecorderDoesNotPersistTicks(t *testing.T) {
	store := &fakeMetricStore{}
	r := NewStoreRecorder(NoopRecorder{}, store)

	r.TickReceived("binance", "BTCUSDT")
	r.OrderReceived("strat-1", "BTCUSDT")

	assert.Empty(t, store.component)
}

func TestStoreRecorderSwallowsWriteFailure(t *testing.T) {
	store := &fakeMetricStore{err: errors.New("db down")}
	r := NewStoreRecorder(NoopRecorder{}, store)

	assert.NotPanics(t, func() {
		r.OrderOutcome("strat-1", "BTCUSDT", "REJECTED", 1001)
	})
}
