package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"transcript-relay/internal/config"
	"transcript-relay/internal/domain/dto"
	"transcript-relay/internal/domain/entities"
	"transcript-relay/internal/infra/assembler"
	"transcript-relay/internal/infra/broadcast"
	"transcript-relay/internal/infra/buffer"
	"transcript-relay/internal/infra/logger"
	"transcript-relay/internal/infra/registry"
	"transcript-relay/internal/infra/rtms"
	"transcript-relay/internal/infra/sink"
)

const sessionWriteTimeout = 5 * time.Second

// streamConnector abstracts the signaling client so webhook-path tests can
// run without a live RTMS endpoint.
type streamConnector interface {
	Connect(meetingUUID, streamID, signalingURL string) error
	Close()
}

// RelayService drives the per-meeting lifecycle: on a started notification
// it registers the session and brings up the RTMS clients; every fragment
// is assembled into a chunk, queued for bulk persistence, and fanned out
// live; a stopped notification tears the clients down, forces a flush, and
// schedules registry cleanup.
type RelayService struct {
	Logger    *logger.Logger
	Registry  *registry.SessionRegistry
	Assembler *assembler.ChunkAssembler
	Buffer    *buffer.WriteBuffer
	Hub       *broadcast.Hub
	Sink      sink.Sink
	newClient func() streamConnector

	mu     sync.Mutex
	active map[string]streamConnector
}

func NewRelayService(
	cfg config.Config,
	log *logger.Logger,
	reg *registry.SessionRegistry,
	asm *assembler.ChunkAssembler,
	buf *buffer.WriteBuffer,
	hub *broadcast.Hub,
	s sink.Sink,
) *RelayService {
	svc := &RelayService{
		Logger:    log,
		Registry:  reg,
		Assembler: asm,
		Buffer:    buf,
		Hub:       hub,
		Sink:      s,
		active:    make(map[string]streamConnector),
	}
	svc.newClient = func() streamConnector {
		return rtms.NewSignalingClient(
			cfg.RTMSClientID,
			cfg.RTMSClientSecret,
			cfg.HandshakeTimeout,
			svc.HandleFragment,
			log,
		)
	}
	return svc
}

// HandleMeetingStarted registers the session, records it in the session
// index, announces it to observers, and connects the signaling client. A
// failed connect leaves the session uninitialized; only a fresh started
// notification retries.
func (s *RelayService) HandleMeetingStarted(n dto.RTMSStarted) {
	session := entities.Session{
		MeetingID: n.MeetingUUID,
		StreamID:  n.StreamID,
		StartTime: time.Now().UTC(),
		Topic:     n.Topic,
		HostID:    n.HostID,
	}
	s.Registry.Start(session)
	s.putSession(session)
	s.Hub.Publish(dto.MeetingStartedFrame(n.MeetingUUID, n.Topic))

	client := s.newClient()

	s.mu.Lock()
	if previous, ok := s.active[n.MeetingUUID]; ok {
		// A restarted stream replaces the old clients outright.
		previous.Close()
	}
	s.active[n.MeetingUUID] = client
	s.mu.Unlock()

	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.Logger.Error(fmt.Sprintf("Recovered from panic in signaling connect: %v", r))
			}
		}()
		if err := client.Connect(n.MeetingUUID, n.StreamID, n.SignalingURL); err != nil {
			s.Logger.Error(fmt.Sprintf("Failed to connect signaling for meeting %s: %v", n.MeetingUUID, err))
		}
	}()
}

// HandleFragment is the media clients' fragment callback: assemble, queue
// for persistence, fan out. Assembly draws the sequence number, so arrival
// order here is chunk order.
func (s *RelayService) HandleFragment(meetingUUID string, fragment dto.Fragment) {
	chunk := s.Assembler.Assemble(meetingUUID, fragment)
	s.Buffer.Enqueue(chunk)
	s.Hub.Publish(dto.TranscriptFrame(chunk))
}

// HandleMeetingStopped tears down the stream clients, forces a buffer
// flush, schedules registry cleanup after the grace delay, and marks the
// session document ended.
func (s *RelayService) HandleMeetingStopped(n dto.RTMSStopped) {
	s.mu.Lock()
	client, ok := s.active[n.MeetingUUID]
	delete(s.active, n.MeetingUUID)
	s.mu.Unlock()
	if ok {
		client.Close()
	}

	s.Buffer.Flush(context.Background())
	s.Registry.Stop(n.MeetingUUID)

	if session, found := s.Registry.Metadata(n.MeetingUUID); found {
		ended := time.Now().UTC()
		session.EndedAt = &ended
		s.putSession(session)
	}

	s.Hub.Publish(dto.MeetingStoppedFrame(n.MeetingUUID))
	s.Logger.Info(fmt.Sprintf("Meeting %s stopped", n.MeetingUUID))
}

// Shutdown closes every active stream and drains the buffer, bounded by
// the caller's context.
func (s *RelayService) Shutdown(ctx context.Context) {
	s.mu.Lock()
	clients := make([]streamConnector, 0, len(s.active))
	for _, client := range s.active {
		clients = append(clients, client)
	}
	s.active = make(map[string]streamConnector)
	s.mu.Unlock()

	for _, client := range clients {
		client.Close()
	}
	s.Buffer.Drain(ctx)
}

func (s *RelayService) putSession(session entities.Session) {
	if !s.Sink.Enabled() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), sessionWriteTimeout)
	defer cancel()
	if err := s.Sink.PutSession(ctx, session); err != nil {
		s.Logger.Error(fmt.Sprintf("Failed to write session document for meeting %s: %v", session.MeetingID, err))
	}
}
