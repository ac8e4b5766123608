package dto

import "encoding/json"

// RTMS wire protocol message types.
const (
	MsgTypeSignalingHandshakeReq  = 1
	MsgTypeSignalingHandshakeResp = 2
	MsgTypeDataHandshakeReq       = 3
	MsgTypeDataHandshakeResp      = 4
	MsgTypeClientReadyAck         = 7
	MsgTypeKeepAliveReq           = 12
	MsgTypeKeepAliveResp          = 13
	MsgTypeMediaDataTranscript    = 17
)

// RTMSStatusOK is the success status code in handshake responses.
const RTMSStatusOK = 0

// RTMSMediaTypeTranscript requests transcript-only media on the data handshake.
const RTMSMediaTypeTranscript = 8

// RTMSProtocolVersion pins the protocol revision sent on every handshake.
const RTMSProtocolVersion = 1

// RTMSMessage is the inbound envelope for both signaling and media sockets.
// Only MsgType is decoded up front; the remaining fields are populated
// per message type.
type RTMSMessage struct {
	MsgType     int             `json:"msg_type"`
	StatusCode  int             `json:"status_code"`
	Reason      string          `json:"reason"`
	Timestamp   int64           `json:"timestamp"`
	MediaServer *RTMSMedia      `json:"media_server"`
	Content     json.RawMessage `json:"content"`
}

type RTMSMedia struct {
	ServerURLs RTMSMediaURLs `json:"server_urls"`
}

type RTMSMediaURLs struct {
	Transcript string `json:"transcript"`
	All        string `json:"all"`
}

// SignalingHandshakeReq opens the control-plane session.
type SignalingHandshakeReq struct {
	MsgType         int    `json:"msg_type"`
	ProtocolVersion int    `json:"protocol_version"`
	MeetingUUID     string `json:"meeting_uuid"`
	RTMSStreamID    string `json:"rtms_stream_id"`
	Sequence        int    `json:"sequence"`
	Signature       string `json:"signature"`
}

// DataHandshakeReq opens the media session, transcript media only.
type DataHandshakeReq struct {
	MsgType           int    `json:"msg_type"`
	ProtocolVersion   int    `json:"protocol_version"`
	MeetingUUID       string `json:"meeting_uuid"`
	RTMSStreamID      string `json:"rtms_stream_id"`
	Signature         string `json:"signature"`
	MediaType         int    `json:"media_type"`
	PayloadEncryption bool   `json:"payload_encryption"`
}

// ClientReadyAck tells the remote the media path is up and fragments
// may start flowing.
type ClientReadyAck struct {
	MsgType      int    `json:"msg_type"`
	RTMSStreamID string `json:"rtms_stream_id"`
}

// KeepAliveResp echoes the timestamp of the keep-alive request it answers.
type KeepAliveResp struct {
	MsgType   int   `json:"msg_type"`
	Timestamp int64 `json:"timestamp"`
}

// TranscriptContent is the payload of a MEDIA_DATA_TRANSCRIPT message.
type TranscriptContent struct {
	UserID    int64    `json:"user_id"`
	UserName  string   `json:"user_name"`
	Data      string   `json:"data"`
	StartTime *float64 `json:"start_time"`
	EndTime   *float64 `json:"end_time"`
}

// Fragment is one raw transcript payload as handed to the assembler,
// before sequencing and enrichment. Empty text is forwarded as-is;
// downstream decides whether to discard.
type Fragment struct {
	Speaker   string
	Text      string
	StartTime *float64
	EndTime   *float64
}
