package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/couchcryptid/wordloc/internal/locate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 256
)

// Frame types pushed to stream clients.
const (
	FrameSnapshot = "snapshot"
	FrameMarker   = "marker"
	FrameTitle    = "title"
	FrameViewport = "viewport"
	FrameURL      = "url"
	FrameFix      = "fix"
	FrameError    = "error"
)

// Frame is one JSON message on a session stream.
type Frame struct {
	Type     string           `json:"type"`
	Snapshot *locate.Snapshot `json:"snapshot,omitempty"`
	Marker   *locate.Marker   `json:"marker,omitempty"`
	Title    string           `json:"title,omitempty"`
	Viewport *locate.Viewport `json:"viewport,omitempty"`
	URL      string           `json:"url,omitempty"`
	History  string           `json:"history,omitempty"`
	Fix      *locate.Fix      `json:"fix,omitempty"`
	Error    string           `json:"error,omitempty"`
}

type client struct {
	sessionID string
	conn      *websocket.Conn
	send      chan []byte
}

// Hub fans session View output out to websocket subscribers.
type Hub struct {
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu   sync.Mutex
	subs map[string]map[*client]struct{}
}

// NewHub creates a hub. Browser origins are checked against origins; an
// empty list or "*" accepts any origin.
func NewHub(origins []string, logger *slog.Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(origins),
		},
		logger: logger,
		subs:   make(map[string]map[*client]struct{}),
	}
}

func checkOrigin(origins []string) func(*http.Request) bool {
	if len(origins) == 0 || slices.Contains(origins, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(origins, origin)
	}
}

// View returns the locate.View that pushes frames to sessionID's subscribers.
func (h *Hub) View(sessionID string) locate.View {
	return sessionView{hub: h, id: sessionID}
}

// Subscribers returns how many clients are streaming sessionID.
func (h *Hub) Subscribers(sessionID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[sessionID])
}

// CloseSession disconnects every subscriber of sessionID.
func (h *Hub) CloseSession(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.subs[sessionID] {
		close(c.send)
	}
	delete(h.subs, sessionID)
}

// Serve upgrades the request and streams s to the client until either side
// closes. The first frame is a snapshot. live reports whether s is still
// registered; a session removed before the client subscribes gets a close
// frame instead of a stream. Inbound messages are passed to handle; a non-nil
// reply goes back to this client only.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, s *locate.Session, live func() bool, handle func(ctx context.Context, msg []byte) *Frame) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "session", s.ID(), "error", err)
		return
	}

	c := &client{sessionID: s.ID(), conn: conn, send: make(chan []byte, sendBuffer)}
	var subscribed bool
	s.Attach(func(snap locate.Snapshot) {
		subscribed = h.subscribe(c, live, Frame{Type: FrameSnapshot, Snapshot: &snap})
	})
	if !subscribed {
		h.logger.Debug("stream refused, session gone", "session", c.sessionID)
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "session expired")
		conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)) //nolint:errcheck // peer may already be gone
		conn.Close()
		return
	}
	h.logger.Debug("stream client connected", "session", c.sessionID)

	go h.writePump(c)
	h.readPump(r.Context(), c, handle)
}

// subscribe registers c and queues its first frame. It checks live under mu,
// so a concurrent CloseSession either sees c or c is never added.
func (h *Hub) subscribe(c *client, live func() bool, first Frame) bool {
	data, err := json.Marshal(first)
	if err != nil {
		h.logger.Error("encode frame", "type", first.Type, "error", err)
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if live != nil && !live() {
		return false
	}
	set, ok := h.subs[c.sessionID]
	if !ok {
		set = make(map[*client]struct{})
		h.subs[c.sessionID] = set
	}
	set[c] = struct{}{}
	c.send <- data
	return true
}

func (h *Hub) unsubscribe(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.subs[c.sessionID]
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	close(c.send)
	if len(set) == 0 {
		delete(h.subs, c.sessionID)
	}
}

// broadcast never blocks: a client whose buffer is full misses the frame.
func (h *Hub) broadcast(sessionID string, f Frame) {
	data, err := json.Marshal(f)
	if err != nil {
		h.logger.Error("encode frame", "type", f.Type, "error", err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.subs[sessionID] {
		h.trySend(c, data)
	}
}

func (h *Hub) reply(c *client, f Frame) {
	data, err := json.Marshal(f)
	if err != nil {
		h.logger.Error("encode frame", "type", f.Type, "error", err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[c.sessionID][c]; ok {
		h.trySend(c, data)
	}
}

// trySend must be called with mu held.
func (h *Hub) trySend(c *client, data []byte) {
	select {
	case c.send <- data:
	default:
		h.logger.Warn("stream client too slow, frame dropped", "session", c.sessionID)
	}
}

func (h *Hub) readPump(ctx context.Context, c *client, handle func(context.Context, []byte) *Frame) {
	defer func() {
		h.unsubscribe(c)
		c.conn.Close()
		h.logger.Debug("stream client disconnected", "session", c.sessionID)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait)) //nolint:errcheck // a failed deadline surfaces on the next read
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("stream read failed", "session", c.sessionID, "error", err)
			}
			return
		}
		if handle == nil {
			continue
		}
		if f := handle(ctx, msg); f != nil {
			h.reply(c, *f)
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck // a failed deadline surfaces on the write
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{}) //nolint:errcheck // peer may already be gone
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck // a failed deadline surfaces on the write
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

type sessionView struct {
	hub *Hub
	id  string
}

func (v sessionView) ShowMarker(m locate.Marker) {
	v.hub.broadcast(v.id, Frame{Type: FrameMarker, Marker: &m})
}

func (v sessionView) SetTitle(title string) {
	v.hub.broadcast(v.id, Frame{Type: FrameTitle, Title: title})
}

func (v sessionView) SetViewport(vp locate.Viewport) {
	v.hub.broadcast(v.id, Frame{Type: FrameViewport, Viewport: &vp})
}

func (v sessionView) WriteURL(rawURL string) {
	v.hub.broadcast(v.id, Frame{Type: FrameURL, URL: rawURL, History: "push"})
}

func (v sessionView) ShowFix(f locate.Fix) {
	v.hub.broadcast(v.id, Frame{Type: FrameFix, Fix: &f})
}
