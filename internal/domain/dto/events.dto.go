package dto

import (
	"encoding/json"
	"transcript-relay/internal/domain/entities"
)

// Observer event types pushed over the fan-out channel.
const (
	EventTypeConnected      = "connected"
	EventTypeMeetingStarted = "meeting_started"
	EventTypeMeetingStopped = "meeting_stopped"
	EventTypeTranscript     = "transcript"
	EventTypeHelpRequest    = "help_request"
)

// EventFrame is the JSON frame exchanged with dashboard observers. Type
// discriminates; the remaining fields are set per event type. Data carries
// the opaque body of observer-originated frames such as help requests.
type EventFrame struct {
	Type      string                    `json:"type"`
	MeetingID string                    `json:"meeting_id,omitempty"`
	Topic     string                    `json:"topic,omitempty"`
	Chunk     *entities.TranscriptChunk `json:"chunk,omitempty"`
	Data      json.RawMessage           `json:"data,omitempty"`
}

func ConnectedFrame() EventFrame {
	return EventFrame{Type: EventTypeConnected}
}

func MeetingStartedFrame(meetingID, topic string) EventFrame {
	return EventFrame{Type: EventTypeMeetingStarted, MeetingID: meetingID, Topic: topic}
}

func MeetingStoppedFrame(meetingID string) EventFrame {
	return EventFrame{Type: EventTypeMeetingStopped, MeetingID: meetingID}
}

func TranscriptFrame(chunk entities.TranscriptChunk) EventFrame {
	return EventFrame{Type: EventTypeTranscript, MeetingID: chunk.MeetingID, Chunk: &chunk}
}
