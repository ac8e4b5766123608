package registry

import (
	"fmt"
	"sync"
	"time"

	"transcript-relay/internal/domain/entities"
	"transcript-relay/internal/infra/logger"
)

// SessionRegistry is the authoritative per-meeting state of the relay:
// session metadata and sequence counters. All access is serialized by one
// mutex; NextIndex is a single critical section so no two concurrent
// fragments for the same meeting can ever draw the same index.
type SessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]entities.Session
	counters map[string]int
	cleanups map[string]*time.Timer

	grace time.Duration
	log   *logger.Logger
}

func NewSessionRegistry(grace time.Duration, log *logger.Logger) *SessionRegistry {
	return &SessionRegistry{
		sessions: make(map[string]entities.Session),
		counters: make(map[string]int),
		cleanups: make(map[string]*time.Timer),
		grace:    grace,
		log:      log,
	}
}

// Start records (or overwrites) session metadata. The sequence counter is
// initialized at 0 only when the meeting has no counter yet: a stream
// reconnect within the same meeting keeps counting where it left off, so
// chunk indexes never repeat across reconnects. A pending grace-delay
// cleanup for the same meeting is cancelled, so a quick restart keeps the
// registry entry alive.
func (r *SessionRegistry) Start(session entities.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if timer, ok := r.cleanups[session.MeetingID]; ok {
		timer.Stop()
		delete(r.cleanups, session.MeetingID)
	}

	r.sessions[session.MeetingID] = session
	if _, exists := r.counters[session.MeetingID]; !exists {
		r.counters[session.MeetingID] = 0
	}
	r.log.Info(fmt.Sprintf("Session registered for meeting %s", session.MeetingID))
}

// NextIndex atomically returns the next chunk index for a meeting,
// starting at 0. Unknown meetings are tolerated: the counter simply
// starts counting from zero without metadata.
func (r *SessionRegistry) NextIndex(meetingID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := r.counters[meetingID]
	r.counters[meetingID] = n + 1
	return n
}

// Metadata returns the session for a meeting. Unknown meetings are not an
// error; callers enrich with zero values instead.
func (r *SessionRegistry) Metadata(meetingID string) (entities.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[meetingID]
	return session, ok
}

// Stop schedules deletion of the meeting's metadata and counter after the
// grace delay, so fragments already in flight when the stop notification
// arrives are still attributed correctly.
func (r *SessionRegistry) Stop(meetingID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if timer, ok := r.cleanups[meetingID]; ok {
		timer.Stop()
	}

	r.cleanups[meetingID] = time.AfterFunc(r.grace, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.sessions, meetingID)
		delete(r.counters, meetingID)
		delete(r.cleanups, meetingID)
		r.log.Info(fmt.Sprintf("Session state cleaned up for meeting %s", meetingID))
	})
}
