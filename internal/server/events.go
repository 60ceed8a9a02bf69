package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/p-n-ai/pai-course/internal/course"
)

const (
	subscriberBuffer = 32
	writeTimeout     = 5 * time.Second
)

// Hub fans player events out to websocket subscribers of each session. It
// implements course.EventSink.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[chan course.Event]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[chan course.Event]struct{})}
}

// Subscribe returns a channel of events for a session and a function that
// ends the subscription.
func (h *Hub) Subscribe(sessionID string) (<-chan course.Event, func()) {
	ch := make(chan course.Event, subscriberBuffer)

	h.mu.Lock()
	if h.subs[sessionID] == nil {
		h.subs[sessionID] = make(map[chan course.Event]struct{})
	}
	h.subs[sessionID][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs[sessionID], ch)
			if len(h.subs[sessionID]) == 0 {
				delete(h.subs, sessionID)
			}
			close(ch)
		})
	}
}

// Subscribers returns the number of subscribers of a session.
func (h *Hub) Subscribers(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[sessionID])
}

// LogEvent delivers event to every subscriber of its session. Slow
// subscribers miss events rather than block the player.
func (h *Hub) LogEvent(event course.Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subs[event.SessionID] {
		select {
		case ch <- event:
		default:
			slog.Debug("dropping event for slow subscriber", "session_id", event.SessionID, "type", event.Type)
		}
	}
	return nil
}

type eventMessage struct {
	Event    *course.Event   `json:"event,omitempty"`
	Snapshot course.Snapshot `json:"snapshot"`
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	c, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("websocket accept failed", "session_id", sess.ID, "error", err)
		return
	}
	defer c.CloseNow()

	events, unsubscribe := s.hub.Subscribe(sess.ID)
	defer unsubscribe()

	ctx := c.CloseRead(r.Context())
	if err := writeMessage(ctx, c, eventMessage{Snapshot: sess.Player.Snapshot()}); err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			if err := writeMessage(ctx, c, eventMessage{Event: &e, Snapshot: sess.Player.Snapshot()}); err != nil {
				slog.Debug("websocket write failed", "session_id", sess.ID, "error", err)
				return
			}
		}
	}
}

func writeMessage(ctx context.Context, c *websocket.Conn, msg eventMessage) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, c, msg)
}
