package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"transcript-relay/internal/domain/dto"
	"transcript-relay/internal/infra/logger"
)

type fakeRelayService struct {
	mu      sync.Mutex
	started []dto.RTMSStarted
	stopped []dto.RTMSStopped
}

func (f *fakeRelayService) HandleMeetingStarted(n dto.RTMSStarted) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, n)
}

func (f *fakeRelayService) HandleMeetingStopped(n dto.RTMSStopped) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = append(f.stopped, n)
}

func (f *fakeRelayService) Shutdown(context.Context) {}

func (f *fakeRelayService) startedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.started)
}

func (f *fakeRelayService) stoppedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.stopped)
}

func newTestHandlers(t *testing.T) (*RelayHandlers, *fakeRelayService) {
	t.Helper()
	log := logger.NewLogger(context.Background(), "error", false)
	svc := &fakeRelayService{}
	return NewRelayHandlers(log, svc), svc
}

func postWebhook(t *testing.T, h *RelayHandlers, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Webhook(rec, req)
	return rec
}

func TestWebhook_StartedDispatched(t *testing.T) {
	h, svc := newTestHandlers(t)

	rec := postWebhook(t, h, `{
		"event": "meeting.rtms_started",
		"payload": {
			"meeting_uuid": "m1",
			"rtms_stream_id": "s1",
			"server_urls": "wss://rtms.example.com/signaling",
			"object": {"topic": "DB"}
		}
	}`)
	require.Equal(t, http.StatusOK, rec.Code)

	require.Eventually(t, func() bool { return svc.startedCount() == 1 }, time.Second, 10*time.Millisecond)
	svc.mu.Lock()
	defer svc.mu.Unlock()
	require.Equal(t, "m1", svc.started[0].MeetingUUID)
	require.Equal(t, "s1", svc.started[0].StreamID)
	require.Equal(t, "wss://rtms.example.com/signaling", svc.started[0].SignalingURL)
	require.Equal(t, "DB", svc.started[0].Topic)
}

func TestWebhook_StoppedDispatched(t *testing.T) {
	h, svc := newTestHandlers(t)

	rec := postWebhook(t, h, `{
		"event": "meeting.rtms_stopped",
		"payload": {"meetingUUID": "m1"}
	}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Eventually(t, func() bool { return svc.stoppedCount() == 1 }, time.Second, 10*time.Millisecond)
}

func TestWebhook_MissingFieldsDroppedWith200(t *testing.T) {
	h, svc := newTestHandlers(t)

	// No stream id and no server urls: logged and dropped, still acked.
	rec := postWebhook(t, h, `{
		"event": "meeting.rtms_started",
		"payload": {"meeting_uuid": "m1"}
	}`)
	require.Equal(t, http.StatusOK, rec.Code)

	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 0, svc.startedCount())
}

func TestWebhook_UnknownEventAcked(t *testing.T) {
	h, svc := newTestHandlers(t)

	rec := postWebhook(t, h, `{"event": "meeting.ended", "payload": {}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 0, svc.startedCount())
	require.Equal(t, 0, svc.stoppedCount())
}

func TestWebhook_MalformedBodyAckedAndDropped(t *testing.T) {
	h, svc := newTestHandlers(t)

	// A body that does not parse is still acked so the sender never
	// redelivers it; nothing is dispatched.
	rec := postWebhook(t, h, `{not json`)
	require.Equal(t, http.StatusOK, rec.Code)

	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 0, svc.startedCount())
	require.Equal(t, 0, svc.stoppedCount())
}

func TestWebhook_MethodNotAllowed(t *testing.T) {
	h, _ := newTestHandlers(t)

	req := httptest.NewRequest(http.MethodGet, "/webhook", nil)
	rec := httptest.NewRecorder()
	h.Webhook(rec, req)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
