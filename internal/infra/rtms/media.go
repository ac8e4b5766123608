package rtms

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"transcript-relay/internal/domain/dto"
	"transcript-relay/internal/infra/logger"
)

// MediaClient receives the transcript payloads for one stream. It is
// created only by a successful signaling handshake and does not self-heal:
// when the connection drops, a new signaling handshake is the only path
// that brings a media client back.
type MediaClient struct {
	meetingUUID      string
	streamID         string
	signature        string
	handshakeTimeout time.Duration
	onFragment       FragmentHandler
	onReady          func()
	log              *logger.Logger

	writeMu sync.Mutex
	conn    *websocket.Conn

	mu     sync.Mutex
	closed bool
}

func NewMediaClient(meetingUUID, streamID, signature string, handshakeTimeout time.Duration, onFragment FragmentHandler, onReady func(), log *logger.Logger) *MediaClient {
	return &MediaClient{
		meetingUUID:      meetingUUID,
		streamID:         streamID,
		signature:        signature,
		handshakeTimeout: handshakeTimeout,
		onFragment:       onFragment,
		onReady:          onReady,
		log:              log,
	}
}

// Connect dials the negotiated media endpoint and sends the data
// handshake, identifying itself as a transcript-only consumer.
func (c *MediaClient) Connect(mediaURL string) error {
	dialer := websocket.Dialer{HandshakeTimeout: c.handshakeTimeout}
	conn, _, err := dialer.Dial(mediaURL, nil)
	if err != nil {
		return fmt.Errorf("media dial failed for meeting %s: %w", c.meetingUUID, err)
	}

	// Close may have run while the dial was in flight; do not revive a
	// stopped stream with the fresh connection.
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return fmt.Errorf("media client for meeting %s already closed", c.meetingUUID)
	}
	c.conn = conn
	c.mu.Unlock()

	req := dto.DataHandshakeReq{
		MsgType:           dto.MsgTypeDataHandshakeReq,
		ProtocolVersion:   dto.RTMSProtocolVersion,
		MeetingUUID:       c.meetingUUID,
		RTMSStreamID:      c.streamID,
		Signature:         c.signature,
		MediaType:         dto.RTMSMediaTypeTranscript,
		PayloadEncryption: false,
	}
	if err := c.writeJSON(req); err != nil {
		conn.Close()
		return fmt.Errorf("data handshake send failed: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(c.handshakeTimeout))
	go c.readLoop()
	return nil
}

func (c *MediaClient) readLoop() {
	for {
		var msg dto.RTMSMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if !c.isClosed() {
				c.log.Warn(fmt.Sprintf("Media connection lost for meeting %s: %v", c.meetingUUID, err))
			}
			c.Close()
			return
		}

		switch msg.MsgType {
		case dto.MsgTypeDataHandshakeResp:
			c.handleHandshakeResp(msg)
		case dto.MsgTypeKeepAliveReq:
			c.replyKeepAlive(msg.Timestamp)
		case dto.MsgTypeMediaDataTranscript:
			c.handleTranscript(msg.Content)
		default:
			c.log.Debug(fmt.Sprintf("Ignoring media message type %d", msg.MsgType))
		}
	}
}

func (c *MediaClient) handleHandshakeResp(msg dto.RTMSMessage) {
	if msg.StatusCode != dto.RTMSStatusOK {
		c.log.Error(fmt.Sprintf("Data handshake rejected for meeting %s: status %d %s",
			c.meetingUUID, msg.StatusCode, msg.Reason))
		c.Close()
		return
	}

	c.conn.SetReadDeadline(time.Time{})
	c.log.Info(fmt.Sprintf("Media stream ready for meeting %s", c.meetingUUID))
	c.onReady()
}

// handleTranscript decodes one fragment and hands it to the fragment
// handler. Malformed payloads are logged and dropped; a panicking handler
// loses that one fragment, never the loop.
func (c *MediaClient) handleTranscript(content json.RawMessage) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error(fmt.Sprintf("Recovered from panic in fragment handler: %v", r))
		}
	}()

	var parsed dto.TranscriptContent
	if err := json.Unmarshal(content, &parsed); err != nil {
		c.log.Warn(fmt.Sprintf("Dropping malformed transcript payload for meeting %s: %v", c.meetingUUID, err))
		return
	}

	// Empty text is forwarded as-is; downstream decides what to keep.
	c.onFragment(c.meetingUUID, dto.Fragment{
		Speaker:   parsed.UserName,
		Text:      parsed.Data,
		StartTime: parsed.StartTime,
		EndTime:   parsed.EndTime,
	})
}

func (c *MediaClient) replyKeepAlive(timestamp int64) {
	resp := dto.KeepAliveResp{MsgType: dto.MsgTypeKeepAliveResp, Timestamp: timestamp}
	if err := c.writeJSON(resp); err != nil {
		c.log.Warn(fmt.Sprintf("Failed to answer media keep-alive for meeting %s: %v", c.meetingUUID, err))
	}
}

func (c *MediaClient) writeJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(v)
}

func (c *MediaClient) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close shuts the media connection. Safe to call more than once.
func (c *MediaClient) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}
