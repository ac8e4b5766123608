package rtms

import (
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"transcript-relay/internal/domain/dto"
	"transcript-relay/internal/infra/logger"
)

// FragmentHandler receives each raw transcript fragment as it arrives on
// the media socket.
type FragmentHandler func(meetingUUID string, fragment dto.Fragment)

// SignalingClient owns the control-plane connection of one media session:
// it performs the signed handshake, negotiates the media endpoint, answers
// keep-alives, and hands off to a MediaClient. It never reconnects on its
// own; a fresh started notification is the only retry path.
type SignalingClient struct {
	clientID         string
	clientSecret     string
	handshakeTimeout time.Duration
	onFragment       FragmentHandler
	log              *logger.Logger

	meetingUUID string
	streamID    string

	writeMu sync.Mutex
	conn    *websocket.Conn

	mu     sync.Mutex
	media  *MediaClient
	closed bool
}

func NewSignalingClient(clientID, clientSecret string, handshakeTimeout time.Duration, onFragment FragmentHandler, log *logger.Logger) *SignalingClient {
	return &SignalingClient{
		clientID:         clientID,
		clientSecret:     clientSecret,
		handshakeTimeout: handshakeTimeout,
		onFragment:       onFragment,
		log:              log,
	}
}

// Connect dials the signaling endpoint and sends the handshake request.
// The handshake response is awaited by the read loop under a bounded
// deadline; an unreachable endpoint or expired deadline leaves the
// session uninitialized.
func (c *SignalingClient) Connect(meetingUUID, streamID, signalingURL string) error {
	c.meetingUUID = meetingUUID
	c.streamID = streamID

	dialer := websocket.Dialer{HandshakeTimeout: c.handshakeTimeout}
	conn, _, err := dialer.Dial(signalingURL, nil)
	if err != nil {
		return fmt.Errorf("signaling dial failed for meeting %s: %w", meetingUUID, err)
	}

	// Close may have run while the dial was in flight; a stopped session
	// must not come back to life with a fresh connection.
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return fmt.Errorf("signaling client for meeting %s already closed", meetingUUID)
	}
	c.conn = conn
	c.mu.Unlock()

	req := dto.SignalingHandshakeReq{
		MsgType:         dto.MsgTypeSignalingHandshakeReq,
		ProtocolVersion: dto.RTMSProtocolVersion,
		MeetingUUID:     meetingUUID,
		RTMSStreamID:    streamID,
		Signature:       Signature(c.clientID, c.clientSecret, meetingUUID, streamID),
	}
	if err := c.writeJSON(req); err != nil {
		conn.Close()
		return fmt.Errorf("signaling handshake send failed: %w", err)
	}

	// A handshake that never completes is bounded by this deadline; the
	// read loop clears it once the response arrives.
	conn.SetReadDeadline(time.Now().Add(c.handshakeTimeout))
	go c.readLoop()
	return nil
}

func (c *SignalingClient) readLoop() {
	for {
		var msg dto.RTMSMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if !c.isClosed() {
				c.log.Warn(fmt.Sprintf("Signaling connection lost for meeting %s: %v", c.meetingUUID, err))
			}
			c.Close()
			return
		}

		switch msg.MsgType {
		case dto.MsgTypeSignalingHandshakeResp:
			c.handleHandshakeResp(msg)
		case dto.MsgTypeKeepAliveReq:
			// Answered in the same message-handling turn; the remote
			// drops the connection if the echo is late.
			c.replyKeepAlive(msg.Timestamp)
		default:
			c.log.Debug(fmt.Sprintf("Ignoring signaling message type %d", msg.MsgType))
		}
	}
}

func (c *SignalingClient) handleHandshakeResp(msg dto.RTMSMessage) {
	if msg.StatusCode != dto.RTMSStatusOK {
		c.log.Error(fmt.Sprintf("Signaling handshake rejected for meeting %s: status %d %s",
			c.meetingUUID, msg.StatusCode, msg.Reason))
		c.Close()
		return
	}

	c.conn.SetReadDeadline(time.Time{})

	mediaURL := ""
	if msg.MediaServer != nil {
		if msg.MediaServer.ServerURLs.Transcript != "" {
			mediaURL = msg.MediaServer.ServerURLs.Transcript
		} else {
			mediaURL = msg.MediaServer.ServerURLs.All
		}
	}
	if mediaURL == "" {
		c.log.Error(fmt.Sprintf("Signaling handshake for meeting %s carried no media url", c.meetingUUID))
		return
	}

	media := NewMediaClient(
		c.meetingUUID,
		c.streamID,
		Signature(c.clientID, c.clientSecret, c.meetingUUID, c.streamID),
		c.handshakeTimeout,
		c.onFragment,
		c.sendClientReady,
		c.log,
	)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.media = media
	c.mu.Unlock()

	go func() {
		defer func() {
			if r := recover(); r != nil {
				c.log.Error(fmt.Sprintf("Recovered from panic in media connect: %v", r))
			}
		}()
		if err := media.Connect(mediaURL); err != nil {
			c.log.Error(fmt.Sprintf("Media connect failed for meeting %s: %v", c.meetingUUID, err))
		}
	}()
}

// sendClientReady notifies the remote, over the signaling channel, that
// the media path is handshaken and fragments may flow.
func (c *SignalingClient) sendClientReady() {
	ack := dto.ClientReadyAck{
		MsgType:      dto.MsgTypeClientReadyAck,
		RTMSStreamID: c.streamID,
	}
	if err := c.writeJSON(ack); err != nil {
		c.log.Error(fmt.Sprintf("Failed to send client ready ack for meeting %s: %v", c.meetingUUID, err))
	}
}

func (c *SignalingClient) replyKeepAlive(timestamp int64) {
	resp := dto.KeepAliveResp{MsgType: dto.MsgTypeKeepAliveResp, Timestamp: timestamp}
	if err := c.writeJSON(resp); err != nil {
		c.log.Warn(fmt.Sprintf("Failed to answer signaling keep-alive for meeting %s: %v", c.meetingUUID, err))
	}
}

func (c *SignalingClient) writeJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(v)
}

func (c *SignalingClient) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close tears down the signaling connection and the media client it
// spawned. Safe to call more than once.
func (c *SignalingClient) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	media := c.media
	conn := c.conn
	c.mu.Unlock()

	if media != nil {
		media.Close()
	}
	if conn != nil {
		conn.Close()
	}
}
