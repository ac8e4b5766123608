package broadcast

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"transcript-relay/internal/domain/dto"
	"transcript-relay/internal/infra/logger"
	"transcript-relay/internal/infra/metrics"
)

const observerSendBuffer = 64

// Hub pushes relay events to every connected dashboard observer,
// independent of the write buffer's batching cadence. A single observer
// failing or falling behind is removed without disturbing delivery to the
// rest.
type Hub struct {
	mu        sync.Mutex
	observers map[string]*observer

	upgrader websocket.Upgrader
	log      *logger.Logger
	metrics  *metrics.RelayMetrics
}

type observer struct {
	id   string
	conn *websocket.Conn
	send chan dto.EventFrame
	done chan struct{}
}

func NewHub(log *logger.Logger, m *metrics.RelayMetrics) *Hub {
	return &Hub{
		observers: make(map[string]*observer),
		upgrader: websocket.Upgrader{
			// Dashboards connect cross-origin; the relay carries no
			// credentials on this channel.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		log:     log,
		metrics: m,
	}
}

// ServeWS upgrades the request and registers the connection as an
// observer. The first frame every observer receives is `connected`.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error(fmt.Sprintf("Observer upgrade failed: %v", err))
		return
	}

	obs := &observer{
		id:   uuid.New().String(),
		conn: conn,
		send: make(chan dto.EventFrame, observerSendBuffer),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	h.observers[obs.id] = obs
	count := len(h.observers)
	h.mu.Unlock()
	h.metrics.ObserversConnected.Set(float64(count))
	h.log.Info(fmt.Sprintf("Observer %s connected (%d total)", obs.id, count))

	obs.send <- dto.ConnectedFrame()

	go h.writeLoop(obs)
	go h.readLoop(obs)
}

// Publish queues the event for every currently-connected observer. An
// observer whose buffer is full is dropped on the spot; delivery to the
// remaining observers is unaffected.
func (h *Hub) Publish(frame dto.EventFrame) {
	h.publishExcept("", frame)
}

func (h *Hub) publishExcept(skipID string, frame dto.EventFrame) {
	h.mu.Lock()
	targets := make([]*observer, 0, len(h.observers))
	for _, obs := range h.observers {
		if obs.id != skipID {
			targets = append(targets, obs)
		}
	}
	h.mu.Unlock()

	h.metrics.EventsPublishedTotal.WithLabelValues(frame.Type).Inc()

	for _, obs := range targets {
		select {
		case obs.send <- frame:
		default:
			h.log.Warn(fmt.Sprintf("Observer %s is not draining, removing", obs.id))
			h.remove(obs)
		}
	}
}

// Len reports the number of connected observers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.observers)
}

func (h *Hub) writeLoop(obs *observer) {
	for {
		select {
		case <-obs.done:
			return
		case frame := <-obs.send:
			if err := obs.conn.WriteJSON(frame); err != nil {
				h.log.Warn(fmt.Sprintf("Observer %s send failed: %v", obs.id, err))
				h.metrics.ObserversDroppedTotal.Inc()
				h.remove(obs)
				return
			}
		}
	}
}

// readLoop consumes inbound frames. Observers may raise help/confusion
// signals; those are relayed to every other observer, nothing else is
// accepted. A read error means the connection is gone.
func (h *Hub) readLoop(obs *observer) {
	for {
		var frame dto.EventFrame
		if err := obs.conn.ReadJSON(&frame); err != nil {
			h.remove(obs)
			return
		}

		if frame.Type == dto.EventTypeHelpRequest {
			h.publishExcept(obs.id, frame)
		}
	}
}

// remove unregisters the observer and closes its connection. Safe to call
// more than once for the same observer.
func (h *Hub) remove(obs *observer) {
	h.mu.Lock()
	_, present := h.observers[obs.id]
	if present {
		delete(h.observers, obs.id)
		close(obs.done)
	}
	count := len(h.observers)
	h.mu.Unlock()

	if !present {
		return
	}
	obs.conn.Close()
	h.metrics.ObserversConnected.Set(float64(count))
	h.log.Info(fmt.Sprintf("Observer %s disconnected (%d total)", obs.id, count))
}

// CloseAll disconnects every observer, used on shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	observers := make([]*observer, 0, len(h.observers))
	for _, obs := range h.observers {
		observers = append(observers, obs)
	}
	h.mu.Unlock()

	for _, obs := range observers {
		h.remove(obs)
	}
}
