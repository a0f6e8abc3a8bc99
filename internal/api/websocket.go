package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nerrad567/brickd/internal/infrastructure/config"
	"github.com/nerrad567/brickd/internal/infrastructure/logging"
)

const (
	// wsSendBufferSize is the per-client outbound message buffer size.
	wsSendBufferSize = 256

	defaultPingInterval = 30 * time.Second
	defaultPongTimeout  = 10 * time.Second
)

var (
	// ErrUnknownConnection is returned when a message targets a connection
	// that is not (or no longer) registered.
	ErrUnknownConnection = errors.New("api: unknown connection")

	// ErrClientBackedUp is returned when a client's send buffer is full.
	ErrClientBackedUp = errors.New("api: client send buffer full")

	// ErrHubClosed is returned when registering on a stopped hub.
	ErrHubClosed = errors.New("api: websocket hub closed")
)

// Processor receives inbound action messages. *action.Dispatcher
// satisfies it.
type Processor interface {
	ProcessMessage(connID uuid.UUID, raw string)
}

// Hub tracks websocket connections by id and implements action.Transport.
type Hub struct {
	cfg     config.WebSocketConfig
	logger  *logging.Logger
	proc    Processor
	clients map[uuid.UUID]*WSClient
	closed  bool
	mu      sync.RWMutex
}

// WSClient is one connected browser.
type WSClient struct {
	id      uuid.UUID
	subject string
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
}

// ID returns the connection id used as the action caller.
func (c *WSClient) ID() uuid.UUID { return c.id }

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin checking is handled by CORS middleware
		return true
	},
}

// NewHub creates a hub that hands inbound frames to proc.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger, proc Processor) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		proc:    proc,
		clients: make(map[uuid.UUID]*WSClient),
	}
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Register adds a client to the hub.
func (h *Hub) Register(client *WSClient) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrHubClosed
	}
	h.clients[client.id] = client
	count := len(h.clients)
	h.mu.Unlock()

	h.logger.Info("websocket client connected",
		"connection", client.id.String(), "subject", client.subject, "clients", count)
	return nil
}

// Unregister removes a client. Only the goroutine that removes the client
// from the map closes its send channel.
func (h *Hub) Unregister(client *WSClient) {
	h.mu.Lock()
	_, existed := h.clients[client.id]
	delete(h.clients, client.id)
	count := len(h.clients)
	h.mu.Unlock()

	if existed {
		close(client.send)
		h.logger.Info("websocket client disconnected", "connection", client.id.String(), "clients", count)
	}
}

// Owns reports whether id is a connection of this hub.
func (h *Hub) Owns(id uuid.UUID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[id]
	return ok
}

// SendMessage implements action.Transport. uuid.Nil broadcasts to every
// client; a broadcast reports ErrClientBackedUp if any client was skipped.
func (h *Hub) SendMessage(content string, target uuid.UUID) error {
	data := []byte(content)

	if target != uuid.Nil {
		h.mu.RLock()
		client, ok := h.clients[target]
		h.mu.RUnlock()
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownConnection, target)
		}
		if !client.trySend(data) {
			return fmt.Errorf("%w: %s", ErrClientBackedUp, target)
		}
		return nil
	}

	h.mu.RLock()
	clients := make([]*WSClient, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	skipped := 0
	for _, client := range clients {
		if !client.trySend(data) {
			skipped++
		}
	}
	if skipped > 0 {
		return fmt.Errorf("%w: broadcast skipped %d of %d clients", ErrClientBackedUp, skipped, len(clients))
	}
	return nil
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for id, client := range h.clients {
		close(client.send)
		if client.conn != nil {
			client.conn.Close()
		}
		delete(h.clients, id)
	}
}

func (h *Hub) pingInterval() time.Duration {
	if h.cfg.PingInterval <= 0 {
		return defaultPingInterval
	}
	return time.Duration(h.cfg.PingInterval) * time.Second
}

func (h *Hub) pongWait() time.Duration {
	if h.cfg.PongTimeout <= 0 {
		return defaultPongTimeout
	}
	return time.Duration(h.cfg.PongTimeout) * time.Second
}

// handleWebSocket authenticates the request when a token secret is set,
// then upgrades it and starts the client pumps.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	subject := "anonymous"
	if s.secCfg.JWT.Secret != "" {
		token := r.URL.Query().Get("token")
		if token == "" {
			writeUnauthorized(w, "token query parameter is required")
			return
		}
		claims, err := parseToken(token, s.secCfg.JWT.Secret)
		if err != nil {
			writeUnauthorized(w, "invalid or expired token")
			return
		}
		subject = claims.Subject
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := &WSClient{
		id:      uuid.New(),
		subject: subject,
		hub:     s.hub,
		conn:    conn,
		send:    make(chan []byte, wsSendBufferSize),
	}
	if err := s.hub.Register(client); err != nil {
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// readPump hands every text frame to the hub's processor.
func (c *WSClient) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	if c.hub.cfg.MaxMessageSize > 0 {
		c.conn.SetReadLimit(int64(c.hub.cfg.MaxMessageSize))
	}
	deadline := c.hub.pingInterval() + c.hub.pongWait()
	//nolint:errcheck // Best-effort deadline on connection setup
	c.conn.SetReadDeadline(time.Now().Add(deadline))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(deadline))
	})

	for {
		msgType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "connection", c.id.String(), "error", err)
			}
			return
		}
		//nolint:errcheck // Best-effort deadline reset
		c.conn.SetReadDeadline(time.Now().Add(deadline))
		if msgType != websocket.TextMessage {
			continue
		}
		if c.hub.proc != nil {
			c.hub.proc.ProcessMessage(c.id, string(message))
		}
	}
}

// writePump writes queued messages and keeps the connection alive with pings.
func (c *WSClient) writePump() {
	ticker := time.NewTicker(c.hub.pingInterval())
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	pongWait := c.hub.pongWait()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				//nolint:errcheck // Best-effort close message
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			//nolint:errcheck // Best-effort deadline; write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// trySend queues data without blocking. It reports false when the buffer
// is full or the client has already been closed.
func (c *WSClient) trySend(data []byte) (sent bool) {
	defer func() {
		if recover() != nil {
			sent = false
		}
	}()

	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}
