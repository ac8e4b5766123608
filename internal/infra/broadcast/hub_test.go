package broadcast

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"transcript-relay/internal/domain/dto"
	"transcript-relay/internal/domain/entities"
	"transcript-relay/internal/infra/logger"
	"transcript-relay/internal/infra/metrics"
)

func newTestHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	log := logger.NewLogger(context.Background(), "error", false)
	hub := NewHub(log, metrics.NewTestMetrics())
	server := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	t.Cleanup(server.Close)
	return hub, server
}

func dialObserver(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	// First frame is always `connected`.
	var frame dto.EventFrame
	require.NoError(t, conn.ReadJSON(&frame))
	require.Equal(t, dto.EventTypeConnected, frame.Type)
	return conn
}

func TestHub_PublishReachesAllObservers(t *testing.T) {
	hub, server := newTestHub(t)

	a := dialObserver(t, server)
	b := dialObserver(t, server)
	require.Eventually(t, func() bool { return hub.Len() == 2 }, time.Second, 10*time.Millisecond)

	chunk := entities.TranscriptChunk{MeetingID: "m1", ChunkIndex: 0, Text: "hello"}
	hub.Publish(dto.TranscriptFrame(chunk))

	for _, conn := range []*websocket.Conn{a, b} {
		var frame dto.EventFrame
		require.NoError(t, conn.ReadJSON(&frame))
		require.Equal(t, dto.EventTypeTranscript, frame.Type)
		require.NotNil(t, frame.Chunk)
		require.Equal(t, "hello", frame.Chunk.Text)
	}
}

func TestHub_FailingObserverIsIsolated(t *testing.T) {
	hub, server := newTestHub(t)

	a := dialObserver(t, server)
	b := dialObserver(t, server)
	c := dialObserver(t, server)
	require.Eventually(t, func() bool { return hub.Len() == 3 }, time.Second, 10*time.Millisecond)

	// One observer goes away without a closing handshake.
	c.Close()
	require.Eventually(t, func() bool { return hub.Len() == 2 }, time.Second, 10*time.Millisecond)

	hub.Publish(dto.MeetingStartedFrame("m1", "DB"))

	for _, conn := range []*websocket.Conn{a, b} {
		var frame dto.EventFrame
		require.NoError(t, conn.ReadJSON(&frame))
		require.Equal(t, dto.EventTypeMeetingStarted, frame.Type)
		require.Equal(t, "m1", frame.MeetingID)
	}
}

func TestHub_HelpRequestRelayedToOthers(t *testing.T) {
	hub, server := newTestHub(t)

	sender := dialObserver(t, server)
	receiver := dialObserver(t, server)
	require.Eventually(t, func() bool { return hub.Len() == 2 }, time.Second, 10*time.Millisecond)

	require.NoError(t, sender.WriteJSON(dto.EventFrame{
		Type:      dto.EventTypeHelpRequest,
		MeetingID: "m1",
	}))

	var frame dto.EventFrame
	require.NoError(t, receiver.ReadJSON(&frame))
	require.Equal(t, dto.EventTypeHelpRequest, frame.Type)
	require.Equal(t, "m1", frame.MeetingID)

	// The sender must not hear its own signal back.
	sender.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	var echo dto.EventFrame
	err := sender.ReadJSON(&echo)
	require.Error(t, err)
}

func TestHub_CloseAll(t *testing.T) {
	hub, server := newTestHub(t)

	dialObserver(t, server)
	dialObserver(t, server)
	require.Eventually(t, func() bool { return hub.Len() == 2 }, time.Second, 10*time.Millisecond)

	hub.CloseAll()
	require.Equal(t, 0, hub.Len())
}
