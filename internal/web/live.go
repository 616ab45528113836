package web

import (
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sflip/radiopi/internal/logging"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     sameOrigin,
}

// sameOrigin accepts requests without an Origin header (non-browser
// clients) and browser requests whose Origin host matches the Host header.
func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

// Hub tracks live status connections.
type Hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[*websocket.Conn]struct{})}
}

func (h *Hub) register(conn *websocket.Conn) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[conn] = struct{}{}
	return len(h.clients)
}

func (h *Hub) unregister(conn *websocket.Conn) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, conn)
	return len(h.clients)
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// CloseAll sends a close frame to every client and drops them.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	for conn := range h.clients {
		conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		conn.Close()
		delete(h.clients, conn)
	}
}

// handleLive upgrades to a WebSocket and pushes a freshly queried status
// document every live interval until the client goes away.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.SecurityEvent("websocket_upgrade_rejected", "web", "error", err.Error(), "origin", r.Header.Get("Origin"))
		return
	}
	logging.WebSocketEvent("client_connected", s.hub.register(conn))

	done := make(chan struct{})
	go s.readPump(conn, done)
	s.writePump(r, conn, done)

	logging.WebSocketEvent("client_disconnected", s.hub.unregister(conn))
}

// readPump discards client messages and handles pongs. It closes done when
// the connection fails or the client closes it.
func (s *Server) readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logging.Warn("websocket unexpected close", "error", err)
			}
			return
		}
	}
}

// writePump sends the status document on connect and on every tick.
func (s *Server) writePump(r *http.Request, conn *websocket.Conn, done <-chan struct{}) {
	push := time.NewTicker(s.liveInterval)
	ping := time.NewTicker(pingPeriod)
	defer func() {
		push.Stop()
		ping.Stop()
		conn.Close()
	}()

	send := func() bool {
		doc := s.statusDocument(r)
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(doc) == nil
	}

	if !send() {
		return
	}
	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case <-push.C:
			if !send() {
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
