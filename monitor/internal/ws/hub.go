// Package ws streams the alert inbox to dashboard clients over WebSocket.
//
// Every frame carries the whole inbox view, so a client that falls behind
// only ever needs the newest frame. Sessions therefore hold a single pending
// frame that later pushes overwrite, and bursts of new alerts collapse into
// one push.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/prisminsights/prism/monitor/internal/api"
	"github.com/prisminsights/prism/monitor/internal/inbox"
	"github.com/prisminsights/prism/pkg/types"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = pongWait * 9 / 10 // must stay below pongWait
	maxInbound   = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 8192,
	// Origins are enforced at the reverse proxy.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Message is the JSON envelope of every frame.
type Message struct {
	Event string            `json:"event"`
	Data  api.InboxResponse `json:"data"`
}

// Hub pushes the inbox to connected dashboards: on connect, after new
// alerts, and on a fixed refresh interval.
type Hub struct {
	inbox    *inbox.Store
	interval time.Duration
	wake     chan struct{}

	mu       sync.Mutex
	sessions map[*session]struct{}
}

// New returns a Hub over st. interval is the periodic refresh; it keeps
// read flags and evictions current on screens that saw no new alert.
func New(st *inbox.Store, interval time.Duration) *Hub {
	return &Hub{
		inbox:    st,
		interval: interval,
		wake:     make(chan struct{}, 1),
		sessions: make(map[*session]struct{}),
	}
}

// Run serves pushes until ctx is cancelled, then ends every session.
func (h *Hub) Run(ctx context.Context) {
	refresh := time.NewTicker(h.interval)
	defer refresh.Stop()

	for {
		select {
		case <-ctx.Done():
			h.endAll()
			return
		case <-h.wake:
			h.push()
		case <-refresh.C:
			h.push()
		}
	}
}

// Notify requests a push after a new alert. It never blocks; alerts that
// arrive before Run gets to the request share a single push. It matches
// inbox.Listener.
func (h *Hub) Notify(types.Alert) {
	select {
	case h.wake <- struct{}{}:
	default:
	}
}

// Count returns the number of open sessions.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// ServeHTTP upgrades the request and serves one dashboard session until the
// peer goes away. ?unread=true limits the session to unread alerts.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return // Upgrade has replied
	}

	s := &session{
		conn:       conn,
		unreadOnly: r.URL.Query().Get("unread") == "true",
		pending:    make(chan []byte, 1),
		quit:       make(chan struct{}),
	}
	h.mu.Lock()
	h.sessions[s] = struct{}{}
	h.mu.Unlock()
	defer h.end(s)

	if frame, err := h.frame(s.unreadOnly); err == nil {
		s.offer(frame)
	}

	go s.writeLoop()
	s.readLoop()
}

func (h *Hub) push() {
	h.mu.Lock()
	targets := make([]*session, 0, len(h.sessions))
	for s := range h.sessions {
		targets = append(targets, s)
	}
	h.mu.Unlock()
	if len(targets) == 0 {
		return
	}

	// At most two encodings per push: full and unread-only.
	frames := make(map[bool][]byte, 2)
	for _, s := range targets {
		frame, ok := frames[s.unreadOnly]
		if !ok {
			var err error
			if frame, err = h.frame(s.unreadOnly); err != nil {
				slog.Error("ws: encode inbox", "err", err)
				return
			}
			frames[s.unreadOnly] = frame
		}
		s.offer(frame)
	}
}

func (h *Hub) frame(unreadOnly bool) ([]byte, error) {
	return json.Marshal(Message{Event: "alerts", Data: api.BuildInbox(h.inbox, unreadOnly)})
}

func (h *Hub) end(s *session) {
	h.mu.Lock()
	delete(h.sessions, s)
	h.mu.Unlock()
	s.stop()
}

func (h *Hub) endAll() {
	h.mu.Lock()
	ended := h.sessions
	h.sessions = make(map[*session]struct{})
	h.mu.Unlock()
	for s := range ended {
		s.stop()
	}
}

// session is one connected dashboard.
type session struct {
	conn       *websocket.Conn
	unreadOnly bool

	// pending holds at most one frame; offer replaces a frame the writer
	// has not picked up yet.
	pending  chan []byte
	quit     chan struct{}
	quitOnce sync.Once
}

func (s *session) offer(frame []byte) {
	for {
		select {
		case s.pending <- frame:
			return
		default:
		}
		select {
		case <-s.pending:
		default:
		}
	}
}

func (s *session) stop() { s.quitOnce.Do(func() { close(s.quit) }) }

func (s *session) writeLoop() {
	ping := time.NewTicker(pingInterval)
	defer func() {
		ping.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case <-s.quit:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			s.conn.WriteMessage(websocket.CloseMessage, //nolint:errcheck
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
			return
		case frame := <-s.pending:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				slog.Debug("ws: write failed, ending session", "err", err)
				return
			}
		case <-ping.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readLoop discards inbound data; it exists to service pongs and notice the
// peer closing. It returns when the connection fails.
func (s *session) readLoop() {
	defer s.conn.Close()
	s.conn.SetReadLimit(maxInbound)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}
