package api

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// Event is broadcast to every connected client on dose completion,
// dose failure, and emergency stop.
type Event struct {
	Type     string  `json:"type"`
	Head     int     `json:"head,omitempty"`
	VolumeML float64 `json:"volumeMl,omitempty"`
	Error    string  `json:"error,omitempty"`
}

// Hub tracks connected WebSocket clients and fans out Events to all
// of them. A slow or dead client never blocks the others: each
// connection has its own buffered outbox, and an event that does not
// fit in a full outbox is dropped for that connection only.
type Hub struct {
	upgrader websocket.Upgrader
	mu       sync.Mutex
	clients  map[*client]struct{}
}

type client struct {
	conn   *websocket.Conn
	outbox chan Event
}

func newHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

func (h *Hub) Broadcast(evt Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.outbox <- evt:
		default:
			// client can't keep up; drop the event rather than block
			// the broadcaster for every other connection.
		}
	}
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.hub.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	c := &client{conn: conn, outbox: make(chan Event, 16)}

	s.hub.mu.Lock()
	s.hub.clients[c] = struct{}{}
	s.hub.mu.Unlock()

	go s.writeLoop(c)
	go s.readLoop(c)
}

func (s *Server) writeLoop(c *client) {
	defer c.conn.Close()
	for evt := range c.outbox {
		if err := c.conn.WriteJSON(evt); err != nil {
			s.removeClient(c)
			return
		}
	}
}

// readLoop drains (and discards) inbound frames purely to detect
// client disconnects; this feed is server-to-client only.
func (s *Server) readLoop(c *client) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			s.removeClient(c)
			return
		}
	}
}

func (s *Server) removeClient(c *client) {
	s.hub.mu.Lock()
	if _, ok := s.hub.clients[c]; ok {
		delete(s.hub.clients, c)
		close(c.outbox)
	}
	s.hub.mu.Unlock()
}
