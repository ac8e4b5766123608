package assembler

import (
	"time"

	"transcript-relay/internal/domain/dto"
	"transcript-relay/internal/domain/entities"
	"transcript-relay/internal/infra/metrics"
	"transcript-relay/internal/infra/registry"
)

// ChunkAssembler turns one raw fragment into one canonical transcript
// chunk. Assembly is purely structural: sequence number from the registry,
// metadata enrichment, arrival timestamp. It never validates content and
// never fails.
type ChunkAssembler struct {
	registry *registry.SessionRegistry
	metrics  *metrics.RelayMetrics
}

func NewChunkAssembler(registry *registry.SessionRegistry, metrics *metrics.RelayMetrics) *ChunkAssembler {
	return &ChunkAssembler{registry: registry, metrics: metrics}
}

// Assemble builds the chunk for a fragment. The registry's NextIndex call
// is the atomic step that keeps chunk indexes unique per meeting under
// concurrent fragment arrivals.
func (a *ChunkAssembler) Assemble(meetingID string, fragment dto.Fragment) entities.TranscriptChunk {
	speaker := fragment.Speaker
	if speaker == "" {
		speaker = entities.DefaultSpeaker
	}

	chunk := entities.TranscriptChunk{
		MeetingID:  meetingID,
		ChunkIndex: a.registry.NextIndex(meetingID),
		Text:       fragment.Text,
		StartTime:  fragment.StartTime,
		EndTime:    fragment.EndTime,
		SpeakerID:  speaker,
		ReceivedAt: time.Now().UTC(),
		Source:     entities.ChunkSource,
	}

	if session, ok := a.registry.Metadata(meetingID); ok {
		start := session.StartTime
		chunk.MeetingStartTime = &start
	}

	a.metrics.ChunksAssembledTotal.Inc()
	return chunk
}
