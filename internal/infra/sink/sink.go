package sink

import (
	"context"

	"transcript-relay/internal/domain/entities"
)

// FailedDoc identifies one document rejected inside an otherwise accepted
// bulk write, surfaced for operator visibility. Rejected documents are
// dropped, never retried.
type FailedDoc struct {
	MeetingID  string
	ChunkIndex int
	Reason     string
}

// BulkResult reports the outcome of one bulk write.
type BulkResult struct {
	Indexed int
	Failed  []FailedDoc
}

// Sink is the append-only document store the relay persists into. Bulk
// writes carry no document ids so the store generates them; session
// documents are keyed by meeting id so stop can mark them ended.
type Sink interface {
	BulkIndex(ctx context.Context, chunks []entities.TranscriptChunk) (BulkResult, error)
	PutSession(ctx context.Context, session entities.Session) error
	Enabled() bool
}

// Disabled is the sink used when storage credentials are absent:
// ingestion and fan-out keep running, persistence is off for the
// process lifetime.
type Disabled struct{}

func (Disabled) BulkIndex(_ context.Context, chunks []entities.TranscriptChunk) (BulkResult, error) {
	return BulkResult{Indexed: len(chunks)}, nil
}

func (Disabled) PutSession(context.Context, entities.Session) error { return nil }

func (Disabled) Enabled() bool { return false }
