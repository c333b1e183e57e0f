package relay

import (
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// TranscriptEvent mirrors a persisted entry for live watchers.
type TranscriptEvent struct {
	ChatID   int64     `json:"chat_id"`
	ReportID int64     `json:"report_id"`
	Role     string    `json:"role"`
	Message  string    `json:"message"`
	At       time.Time `json:"at"`
}

// hub fans persisted transcript entries out to connected watchers. Slow
// watchers drop events rather than stalling the request path.
type hub struct {
	mu   sync.Mutex
	subs map[chan TranscriptEvent]struct{}
}

func newHub() *hub {
	return &hub{subs: make(map[chan TranscriptEvent]struct{})}
}

func (h *hub) subscribe() (<-chan TranscriptEvent, func()) {
	ch := make(chan TranscriptEvent, 64)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		delete(h.subs, ch)
		h.mu.Unlock()
	}
	return ch, cancel
}

func (h *hub) broadcast(ev TranscriptEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (s *Server) handleTranscriptWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s.metrics.WSWatchers.Inc()
	defer s.metrics.WSWatchers.Dec()

	events, cancel := s.hub.subscribe()
	defer cancel()

	// Reads only serve to notice the peer going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(1 << 10)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-closed:
			return
		case ev := <-events:
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		}
	}
}

func (s *Server) checkOrigin(r *http.Request) bool {
	// Only allow browser websocket connections from the same origin unless
	// explicitly opened up; non-browser clients omitting Origin are allowed.
	if s.allowAnyOrigin {
		return true
	}
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}
