package buffer

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"transcript-relay/internal/domain/entities"
	"transcript-relay/internal/infra/logger"
	"transcript-relay/internal/infra/metrics"
	"transcript-relay/internal/infra/sink"
)

// recordingSink captures every batch it receives.
type recordingSink struct {
	mu      sync.Mutex
	batches [][]entities.TranscriptChunk
	result  sink.BulkResult
	err     error
	block   chan struct{}
}

func (s *recordingSink) BulkIndex(_ context.Context, chunks []entities.TranscriptChunk) (sink.BulkResult, error) {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	batch := make([]entities.TranscriptChunk, len(chunks))
	copy(batch, chunks)
	s.batches = append(s.batches, batch)
	if s.err != nil {
		return sink.BulkResult{}, s.err
	}
	if s.result.Indexed == 0 && len(s.result.Failed) == 0 {
		return sink.BulkResult{Indexed: len(chunks)}, nil
	}
	return s.result, nil
}

func (s *recordingSink) PutSession(context.Context, entities.Session) error { return nil }
func (s *recordingSink) Enabled() bool                                      { return true }

func (s *recordingSink) batchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batches)
}

func (s *recordingSink) allChunks() []entities.TranscriptChunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []entities.TranscriptChunk
	for _, batch := range s.batches {
		all = append(all, batch...)
	}
	return all
}

func newTestBuffer(t *testing.T, s sink.Sink, batchSize int, interval time.Duration) *WriteBuffer {
	t.Helper()
	log := logger.NewLogger(context.Background(), "error", false)
	return NewWriteBuffer(s, batchSize, interval, log, metrics.NewTestMetrics())
}

func chunk(meetingID string, index int) entities.TranscriptChunk {
	return entities.TranscriptChunk{
		MeetingID:  meetingID,
		ChunkIndex: index,
		Text:       fmt.Sprintf("chunk %d", index),
		SpeakerID:  "prof",
		ReceivedAt: time.Now().UTC(),
		Source:     entities.ChunkSource,
	}
}

func TestWriteBuffer_SizeTrigger(t *testing.T) {
	s := &recordingSink{}
	b := newTestBuffer(t, s, 2, time.Hour)

	b.Enqueue(chunk("m1", 0))
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 0, s.batchCount(), "one chunk below batch size must not flush")

	b.Enqueue(chunk("m1", 1))
	require.Eventually(t, func() bool { return s.batchCount() == 1 }, time.Second, 10*time.Millisecond)
	require.Len(t, s.allChunks(), 2)
	require.Equal(t, 0, b.Depth())
}

func TestWriteBuffer_TimerFlush(t *testing.T) {
	s := &recordingSink{}
	b := newTestBuffer(t, s, 50, 30*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	b.Enqueue(chunk("m1", 0))
	require.Eventually(t, func() bool { return s.batchCount() == 1 }, time.Second, 10*time.Millisecond)
}

func TestWriteBuffer_FlushEmptyIsNoop(t *testing.T) {
	s := &recordingSink{}
	b := newTestBuffer(t, s, 50, time.Hour)

	b.Flush(context.Background())
	b.Flush(context.Background())
	require.Equal(t, 0, s.batchCount())
}

func TestWriteBuffer_ConcurrentFlushSingleWrite(t *testing.T) {
	s := &recordingSink{block: make(chan struct{})}
	b := newTestBuffer(t, s, 50, time.Hour)

	b.Enqueue(chunk("m1", 0))
	b.Enqueue(chunk("m1", 1))

	// First flush parks inside the sink call.
	go b.Flush(context.Background())
	time.Sleep(30 * time.Millisecond)

	// A chunk arriving mid-write lands in the next batch, and a second
	// flush while one is in flight is a no-op.
	b.Enqueue(chunk("m1", 2))
	b.Flush(context.Background())
	require.Equal(t, 0, s.batchCount())

	close(s.block)
	require.Eventually(t, func() bool { return s.batchCount() == 1 }, time.Second, 10*time.Millisecond)
	require.Len(t, s.batches[0], 2)

	s.block = nil
	b.Flush(context.Background())
	require.Eventually(t, func() bool { return s.batchCount() == 2 }, time.Second, 10*time.Millisecond)
	require.Equal(t, 2, s.batches[1][0].ChunkIndex)
}

func TestWriteBuffer_EveryChunkInExactlyOneBatch(t *testing.T) {
	s := &recordingSink{}
	b := newTestBuffer(t, s, 10, time.Hour)

	const n = 100
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b.Enqueue(chunk("m1", i))
		}(i)
	}
	wg.Wait()

	drainCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	b.Drain(drainCtx)

	all := s.allChunks()
	require.Len(t, all, n)
	seen := make(map[int]bool, n)
	for _, c := range all {
		require.False(t, seen[c.ChunkIndex], "chunk %d flushed twice", c.ChunkIndex)
		seen[c.ChunkIndex] = true
	}
}

func TestWriteBuffer_FailedBatchDroppedNotRequeued(t *testing.T) {
	s := &recordingSink{err: fmt.Errorf("sink is down")}
	b := newTestBuffer(t, s, 50, time.Hour)

	b.Enqueue(chunk("m1", 0))
	b.Flush(context.Background())

	require.Equal(t, 1, s.batchCount())
	require.Equal(t, 0, b.Depth(), "failed batch must not be re-enqueued")

	// Next flush has nothing to send.
	b.Flush(context.Background())
	require.Equal(t, 1, s.batchCount())
}

func TestWriteBuffer_PartialFailureDropped(t *testing.T) {
	s := &recordingSink{result: sink.BulkResult{
		Indexed: 1,
		Failed:  []sink.FailedDoc{{MeetingID: "m1", ChunkIndex: 1, Reason: "mapping conflict"}},
	}}
	b := newTestBuffer(t, s, 50, time.Hour)

	b.Enqueue(chunk("m1", 0))
	b.Enqueue(chunk("m1", 1))
	b.Flush(context.Background())

	require.Equal(t, 1, s.batchCount())
	require.Equal(t, 0, b.Depth())
}
