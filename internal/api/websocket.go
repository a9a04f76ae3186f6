package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nerrad567/snooz-gateway/internal/fleet"
	"github.com/nerrad567/snooz-gateway/internal/infrastructure/config"
	"github.com/nerrad567/snooz-gateway/internal/infrastructure/logging"
)

// wsSendBufferSize is the per-client outbound message buffer size.
const wsSendBufferSize = 256

// upgrader configures the WebSocket upgrader.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// The gateway serves programmatic clients on a trusted network;
		// authentication happens via bearer token, not origin.
		return true
	},
}

// Hub tracks connected WebSocket clients and fans events out to them.
type Hub struct {
	cfg     config.WebSocketConfig
	logger  *logging.Logger
	clients map[*Client]struct{}
	mu      sync.RWMutex
}

// NewHub creates a new WebSocket hub.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*Client]struct{}),
	}
}

// Run starts the hub's main loop. It blocks until the context is cancelled.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// register adds a client to the hub.
func (h *Hub) register(client *Client) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("websocket client connected",
		"connection_id", client.id,
		"clients", h.ClientCount(),
	)
}

// unregister removes a client from the hub.
// Only the goroutine that successfully removes the client from the map
// closes the send channel, preventing double-close panics during shutdown.
func (h *Hub) unregister(client *Client) {
	h.mu.Lock()
	_, existed := h.clients[client]
	delete(h.clients, client)
	h.mu.Unlock()

	if existed {
		close(client.send)
	}
	h.logger.Debug("websocket client disconnected",
		"connection_id", client.id,
		"clients", h.ClientCount(),
	)
}

// BroadcastEvent sends a device_state event to every connected client.
// Lock ordering: the client list is snapshotted under the hub lock, which is
// released before any per-client send.
func (h *Hub) BroadcastEvent(evt fleet.Event) {
	data, err := marshalEvent(evt)
	if err != nil {
		h.logger.Error("failed to marshal device_state event", "error", err)
		return
	}

	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		client.trySend(data)
	}
	if len(clients) > 0 {
		h.logger.Debug("device_state broadcast",
			"device", evt.DeviceName,
			"recipients", len(clients),
		)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// closeAll disconnects all clients with a going-away frame and closes their
// send channels so writePump goroutines can exit cleanly.
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	closeFrame := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	for client := range h.clients {
		close(client.send)
		if client.conn != nil {
			//nolint:errcheck // Best-effort close notification
			client.conn.WriteControl(websocket.CloseMessage, closeFrame, time.Now().Add(time.Second))
			client.conn.Close()
		}
		client.cancel()
		delete(h.clients, client)
	}
}

// Client represents one connected WebSocket client.
type Client struct {
	id     string
	hub    *Hub
	server *Server
	conn   *websocket.Conn
	send   chan []byte

	// ctx is connection-scoped: cancelled on disconnect so in-flight command
	// handlers waiting on the operation gate abort instead of leaking.
	ctx    context.Context
	cancel context.CancelFunc
}

// handleWebSocket authenticates and upgrades the HTTP connection.
//
// Authentication happens before the upgrade: a missing credential yields 401
// with a challenge header, a wrong one 403. With no token configured the
// gateway accepts unauthenticated connections.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.cfg.AuthToken != "" {
		token, ok := bearerToken(r)
		if !ok {
			writeUnauthorized(w, "authorization required")
			return
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.AuthToken)) != 1 {
			writeForbidden(w, "invalid token")
			return
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	client := &Client{
		id:     uuid.NewString(),
		hub:    s.hub,
		server: s,
		conn:   conn,
		send:   make(chan []byte, wsSendBufferSize),
		ctx:    ctx,
		cancel: cancel,
	}

	s.hub.register(client)

	go client.writePump(s.cfg)
	go client.readPump(s.cfg)
}

// bearerToken extracts the credential from the Authorization header.
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if header == "" || !strings.HasPrefix(header, prefix) {
		return "", false
	}
	return strings.TrimPrefix(header, prefix), true
}

// readPump reads messages from the WebSocket connection.
func (c *Client) readPump(cfg config.WebSocketConfig) {
	defer func() {
		c.cancel()
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	pingInterval := time.Duration(cfg.PingInterval) * time.Second
	pongWait := time.Duration(cfg.PongTimeout) * time.Second
	//nolint:errcheck // Best-effort deadline on connection setup
	c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "connection_id", c.id, "error", err)
			} else {
				c.hub.logger.Debug("websocket closed", "connection_id", c.id, "error", err)
			}
			return
		}
		// Any client message resets the read deadline (keeps the connection
		// alive even if the client doesn't answer protocol-level pings).
		//nolint:errcheck // Best-effort deadline reset
		c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))

		// Command execution can block on the fleet-wide operation gate, so
		// each message is handled off the read loop. The connection context
		// aborts in-flight handlers on disconnect.
		go c.handleMessage(message)
	}
}

// writePump writes messages to the WebSocket connection.
func (c *Client) writePump(cfg config.WebSocketConfig) {
	pingInterval := time.Duration(cfg.PingInterval) * time.Second
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	pongWait := time.Duration(cfg.PongTimeout) * time.Second

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				// Hub closed the channel
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

// trySend attempts to send data to the client's send channel.
// It silently handles closed channels (client disconnected during broadcast)
// and full buffers (slow client).
func (c *Client) trySend(data []byte) {
	defer func() {
		recover() //nolint:errcheck // Absorb send-on-closed-channel panic
	}()

	select {
	case c.send <- data:
	default:
		// Client buffer full, skip
	}
}
