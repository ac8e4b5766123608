package dto

import (
	"encoding/json"
	"fmt"
)

const (
	EventRTMSStarted = "meeting.rtms_started"
	EventRTMSStopped = "meeting.rtms_stopped"
)

// WebhookEvent is the envelope of every inbound vendor webhook.
type WebhookEvent struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// RTMSStarted is the canonical shape of a started notification after
// ingress normalization. The vendor spells the same fields several ways;
// nothing past this boundary ever sees the raw payload.
type RTMSStarted struct {
	MeetingUUID  string
	StreamID     string
	SignalingURL string
	Topic        string
	HostID       string
}

// RTMSStopped is the canonical shape of a stopped notification.
type RTMSStopped struct {
	MeetingUUID string
}

type rawRTMSPayload struct {
	MeetingUUID    string          `json:"meeting_uuid"`
	MeetingUUIDAlt string          `json:"meetingUUID"`
	RTMSStreamID   string          `json:"rtms_stream_id"`
	ServerURLs     json.RawMessage `json:"server_urls"`
	Topic          string          `json:"topic"`
	HostID         string          `json:"host_id"`
	Operator       string          `json:"operator_id"`
	Object         *rawRTMSObject  `json:"object"`
}

type rawRTMSObject struct {
	MeetingUUID  string          `json:"meeting_uuid"`
	RTMSStreamID string          `json:"rtms_stream_id"`
	ServerURLs   json.RawMessage `json:"server_urls"`
	Topic        string          `json:"topic"`
	HostID       string          `json:"host_id"`
}

type serverURLObject struct {
	Signaling string `json:"signaling"`
	All       string `json:"all"`
}

// NormalizeRTMSStarted folds the accepted payload spellings into one
// canonical notification. Missing required fields are an error; the
// webhook handler logs and drops, it never propagates to the sender.
func NormalizeRTMSStarted(payload json.RawMessage) (RTMSStarted, error) {
	var raw rawRTMSPayload
	if err := json.Unmarshal(payload, &raw); err != nil {
		return RTMSStarted{}, fmt.Errorf("malformed rtms_started payload: %w", err)
	}
	raw.hoistObject()

	n := RTMSStarted{
		MeetingUUID: firstNonEmpty(raw.MeetingUUID, raw.MeetingUUIDAlt),
		StreamID:    raw.RTMSStreamID,
		Topic:       raw.Topic,
		HostID:      firstNonEmpty(raw.HostID, raw.Operator),
	}
	if n.MeetingUUID == "" {
		return RTMSStarted{}, fmt.Errorf("rtms_started payload missing meeting_uuid")
	}
	if n.StreamID == "" {
		return RTMSStarted{}, fmt.Errorf("rtms_started payload missing rtms_stream_id")
	}

	url, err := signalingURL(raw.ServerURLs)
	if err != nil {
		return RTMSStarted{}, err
	}
	n.SignalingURL = url
	return n, nil
}

// NormalizeRTMSStopped extracts the meeting identity from a stopped payload.
func NormalizeRTMSStopped(payload json.RawMessage) (RTMSStopped, error) {
	var raw rawRTMSPayload
	if err := json.Unmarshal(payload, &raw); err != nil {
		return RTMSStopped{}, fmt.Errorf("malformed rtms_stopped payload: %w", err)
	}
	raw.hoistObject()

	uuid := firstNonEmpty(raw.MeetingUUID, raw.MeetingUUIDAlt)
	if uuid == "" {
		return RTMSStopped{}, fmt.Errorf("rtms_stopped payload missing meeting_uuid")
	}
	return RTMSStopped{MeetingUUID: uuid}, nil
}

// hoistObject lifts fields nested under payload.object to the top level
// when the flat spelling is absent.
func (r *rawRTMSPayload) hoistObject() {
	if r.Object == nil {
		return
	}
	if r.MeetingUUID == "" {
		r.MeetingUUID = r.Object.MeetingUUID
	}
	if r.RTMSStreamID == "" {
		r.RTMSStreamID = r.Object.RTMSStreamID
	}
	if len(r.ServerURLs) == 0 {
		r.ServerURLs = r.Object.ServerURLs
	}
	if r.Topic == "" {
		r.Topic = r.Object.Topic
	}
	if r.HostID == "" {
		r.HostID = r.Object.HostID
	}
}

// signalingURL accepts server_urls either as a plain string or as an
// object carrying a signaling (or all) key.
func signalingURL(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", fmt.Errorf("rtms_started payload missing server_urls")
	}

	var direct string
	if err := json.Unmarshal(raw, &direct); err == nil {
		if direct == "" {
			return "", fmt.Errorf("rtms_started payload has empty server_urls")
		}
		return direct, nil
	}

	var obj serverURLObject
	if err := json.Unmarshal(raw, &obj); err != nil {
		return "", fmt.Errorf("unrecognized server_urls shape: %w", err)
	}
	url := firstNonEmpty(obj.Signaling, obj.All)
	if url == "" {
		return "", fmt.Errorf("server_urls object has no signaling url")
	}
	return url, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
