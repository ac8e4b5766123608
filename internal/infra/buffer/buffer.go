package buffer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"transcript-relay/internal/domain/entities"
	"transcript-relay/internal/infra/logger"
	"transcript-relay/internal/infra/metrics"
	"transcript-relay/internal/infra/sink"
)

// WriteBuffer accumulates assembled chunks and flushes them to the storage
// sink in batches, on a size threshold or on a timer. Delivery to storage
// is at-least-once up to the sink call: a failed batch is logged and
// dropped, never retried, so the ingestion path is never blocked on
// storage health.
type WriteBuffer struct {
	mu       sync.Mutex
	queue    []entities.TranscriptChunk
	flushing bool

	batchSize int
	interval  time.Duration

	sink    sink.Sink
	log     *logger.Logger
	metrics *metrics.RelayMetrics
}

func NewWriteBuffer(s sink.Sink, batchSize int, interval time.Duration, log *logger.Logger, m *metrics.RelayMetrics) *WriteBuffer {
	return &WriteBuffer{
		batchSize: batchSize,
		interval:  interval,
		sink:      s,
		log:       log,
		metrics:   m,
	}
}

// Enqueue appends a chunk to the pending batch. Reaching the size
// threshold triggers an immediate flush without waiting for the timer;
// the flush runs off the caller's goroutine so ingestion never waits on
// the network.
func (b *WriteBuffer) Enqueue(chunk entities.TranscriptChunk) {
	b.mu.Lock()
	b.queue = append(b.queue, chunk)
	depth := len(b.queue)
	b.mu.Unlock()

	b.metrics.QueueDepth.Set(float64(depth))

	if depth >= b.batchSize {
		go b.Flush(context.Background())
	}
}

// Flush takes the currently queued chunks and issues one bulk write. The
// queue is swapped out under the lock before the network call starts, so
// chunks enqueued during the write land in the next batch. Only one bulk
// write is ever in flight; a concurrent call while one is running (or with
// nothing queued) is a no-op.
func (b *WriteBuffer) Flush(ctx context.Context) {
	b.mu.Lock()
	if b.flushing || len(b.queue) == 0 {
		b.mu.Unlock()
		return
	}
	batch := b.queue
	b.queue = nil
	b.flushing = true
	b.mu.Unlock()

	b.metrics.QueueDepth.Set(0)
	b.writeBatch(ctx, batch)

	b.mu.Lock()
	b.flushing = false
	b.mu.Unlock()
}

func (b *WriteBuffer) writeBatch(ctx context.Context, batch []entities.TranscriptChunk) {
	result, err := b.sink.BulkIndex(ctx, batch)
	if err != nil {
		// Total failure: the whole batch is dropped, visibly.
		b.metrics.BulkFlushesTotal.WithLabelValues("error").Inc()
		b.metrics.BulkDocsFailedTotal.Add(float64(len(batch)))
		b.log.Error(fmt.Sprintf("Bulk write failed, dropping %d chunks: %v", len(batch), err))
		return
	}

	b.metrics.BulkDocsTotal.Add(float64(len(batch)))
	if len(result.Failed) == 0 {
		b.metrics.BulkFlushesTotal.WithLabelValues("ok").Inc()
		b.log.Debug(fmt.Sprintf("Bulk write persisted %d chunks", result.Indexed))
		return
	}

	// Partial failure: surface every rejected document, drop them all.
	b.metrics.BulkFlushesTotal.WithLabelValues("partial").Inc()
	b.metrics.BulkDocsFailedTotal.Add(float64(len(result.Failed)))
	for _, failed := range result.Failed {
		b.log.Error(fmt.Sprintf("Bulk write rejected chunk %d of meeting %s: %s",
			failed.ChunkIndex, failed.MeetingID, failed.Reason))
	}
}

// Run flushes on the configured interval until the context is cancelled,
// bounding worst-case staleness of persisted data to one interval.
func (b *WriteBuffer) Run(ctx context.Context) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.Flush(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Drain performs a best-effort final flush bounded by the context: it
// flushes what is queued and waits for the in-flight write, giving up when
// the context expires.
func (b *WriteBuffer) Drain(ctx context.Context) {
	b.Flush(ctx)

	for {
		b.mu.Lock()
		idle := !b.flushing && len(b.queue) == 0
		b.mu.Unlock()
		if idle {
			return
		}

		select {
		case <-ctx.Done():
			b.log.Warn("Buffer drain timed out with chunks still pending")
			return
		case <-time.After(20 * time.Millisecond):
			b.Flush(ctx)
		}
	}
}

// Depth reports the number of chunks currently queued.
func (b *WriteBuffer) Depth() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}
