package session

import (
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	sendBufferSize = 32
)

// subscriber is one connected dashboard. Writes go through a buffered
// channel drained by a single writer goroutine; a subscriber that cannot
// keep up is dropped rather than blocking the broadcast.
type subscriber struct {
	conn *websocket.Conn

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

// sendEvent queues a frame for this subscriber only. The dispatcher may
// still hold this subscriber inside a queued command after the dashboard
// disconnects, so a reply to a departed subscriber is dropped, never
// sent on the closed channel.
func (s *subscriber) sendEvent(event string, data any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		log.Printf("Dropping %s event for departed dashboard subscriber", event)
		return
	}
	select {
	case s.send <- marshalEnvelope(event, data):
	default:
		log.Printf("Dropping %s event for slow dashboard subscriber", event)
	}
}

// close shuts the send channel exactly once.
func (s *subscriber) close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.send)
	}
	s.mu.Unlock()
}

// writePump drains the send channel onto the wire.
func (s *subscriber) writePump() {
	for frame := range s.send {
		s.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			return
		}
	}
	s.conn.WriteMessage(websocket.CloseMessage, nil)
}

// hub fans events out to every connected dashboard. Fire-and-forget: no
// acknowledgement, no per-subscriber filtering.
type hub struct {
	mu   sync.RWMutex
	subs map[*subscriber]struct{}
}

func newHub() *hub {
	return &hub{subs: make(map[*subscriber]struct{})}
}

func (h *hub) add(s *subscriber) {
	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()
}

func (h *hub) remove(s *subscriber) {
	h.mu.Lock()
	if _, ok := h.subs[s]; ok {
		delete(h.subs, s)
		s.close()
	}
	h.mu.Unlock()
}

// broadcast queues a frame for every subscriber.
func (h *hub) broadcast(event string, data any) {
	frame := marshalEnvelope(event, data)
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subs {
		select {
		case s.send <- frame:
		default:
			log.Printf("Dropping %s broadcast for slow dashboard subscriber", event)
		}
	}
}

func (h *hub) count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
