// Package batch implements the bounded, time-and-size-bounded buffer that
// sits between the market-data ingest loop and durable storage.
package batch

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/nullma/ttquant/internal/metrics"
	"github.com/nullma/ttquant/internal/model"
)

// Writer performs the durable bulk write. Implemented by store.Store.
type Writer interface {
	InsertTicks(ctx context.Context, ticks []model.Tick) error
}

const (
	DefaultBatchSize     = 100
	DefaultFlushInterval = time.Second
)

// Queue buffers ticks in insertion order and flushes them transactionally
// once either bound is crossed. On flush failure the buffer is retained
// unchanged so the caller can retry on the next Add.
type Queue struct {
	writer        Writer
	batchSize     int
	flushInterval time.Duration
	component     string
	recorder      metrics.Recorder

	buf       []model.Tick
	lastFlush time.Time
}

// NewQueue constructs a Queue. A nil writer makes Add a no-op buffer with no
// flush — used when persistence is not configured for this process.
// component labels the flush metrics (e.g. "marketdata"); recorder may be
// metrics.NoopRecorder{}.
func NewQueue(writer Writer, batchSize int, flushInterval time.Duration, component string, recorder metrics.Recorder) *Queue {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if flushInterval <= 0 {
		flushInterval = DefaultFlushInterval
	}
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	return &Queue{
		writer:        writer,
		batchSize:     batchSize,
		flushInterval: flushInterval,
		component:     component,
		recorder:      recorder,
		lastFlush:     time.Now(),
	}
}

// Add appends tick to the buffer and flushes if either bound is crossed. No
// tick is acknowledged to the caller as persisted until the resulting flush,
// if any, returns nil.
func (q *Queue) Add(ctx context.Context, tick model.Tick) error {
	q.buf = append(q.buf, tick)
	if len(q.buf) >= q.batchSize || time.Since(q.lastFlush) >= q.flushInterval {
		return q.Flush(ctx)
	}
	return nil
}

// Flush attempts a single bulk write of everything buffered. On success the
// buffer is cleared and the flush clock reset; on failure the buffer is left
// untouched so the next Add/Flush retries the same records.
func (q *Queue) Flush(ctx context.Context) error {
	if len(q.buf) == 0 {
		q.lastFlush = time.Now()
		return nil
	}
	if q.writer == nil {
		q.buf = q.buf[:0]
		q.lastFlush = time.Now()
		return nil
	}
	size := len(q.buf)
	if err := q.writer.InsertTicks(ctx, q.buf); err != nil {
		log.Error().Err(err).Int("buffered", size).Msg("batch: flush failed, retaining buffer")
		q.recorder.BatchFlush(q.component, size, err)
		return err
	}
	log.Debug().Int("count", size).Msg("batch: flushed market data")
	q.recorder.BatchFlush(q.component, size, nil)
	q.buf = q.buf[:0]
	q.lastFlush = time.Now()
	return nil
}

// Len reports how many ticks are currently buffered.
func (q *Queue) Len() int { return len(q.buf) }
