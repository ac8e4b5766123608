package entities

import "time"

// ChunkSource tags every chunk with the ingestion path that produced it.
const ChunkSource = "rtms"

// DefaultSpeaker is used when the transport does not identify the speaker.
const DefaultSpeaker = "unknown"

// Session tracks one meeting under observation. MeetingID is immutable for
// the meeting's lifetime; StreamID may change across reconnects.
type Session struct {
	MeetingID string     `json:"meeting_id"`
	StreamID  string     `json:"stream_id"`
	StartTime time.Time  `json:"start_time"`
	Topic     string     `json:"topic,omitempty"`
	HostID    string     `json:"host_id,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// TranscriptChunk is the canonical persisted unit of speech. Chunks are
// append-only: once assembled they are never updated or deleted.
type TranscriptChunk struct {
	MeetingID        string     `json:"meeting_id"`
	ChunkIndex       int        `json:"chunk_index"`
	Text             string     `json:"text"`
	StartTime        *float64   `json:"start_time,omitempty"`
	EndTime          *float64   `json:"end_time,omitempty"`
	SpeakerID        string     `json:"speaker_id"`
	MeetingStartTime *time.Time `json:"meeting_start_time"`
	ReceivedAt       time.Time  `json:"received_at"`
	Source           string     `json:"source"`
}
