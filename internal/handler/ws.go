package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"geografica/internal/model"
	"geografica/internal/service"
)

var (
	upgrader = websocket.Upgrader{
		// the dashboard is served locally
		CheckOrigin:     func(r *http.Request) bool { return true },
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}

	pingInterval = 30 * time.Second
	pongWait     = 60 * time.Second
	writeTimeout = 10 * time.Second
)

// Browser message types
const (
	TypeLocation   = "location"
	TypeStatus     = "status"
	TypePanic      = "panic"
	TypeZone       = "zone"
	TypeConnection = "connection"
)

// WSMessage is a message from a browser
type WSMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type outbound struct {
	// childID is empty for messages every client gets
	childID string
	// to restricts delivery to a single client
	to   *Client
	data []byte
}

// Client is one browser connection
type Client struct {
	ID   string
	Conn *websocket.Conn
	Send chan []byte
	Hub  *WSHub

	mu      sync.RWMutex
	childID string
}

func (c *Client) filter() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.childID
}

func (c *Client) setFilter(childID string) {
	c.mu.Lock()
	c.childID = childID
	c.mu.Unlock()
}

// WSHub fans live events out to browser connections
type WSHub struct {
	clients    map[*Client]bool
	broadcast  chan outbound
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	stopOnce   sync.Once
	logger     *zap.Logger
	mu         sync.RWMutex
}

// NewWSHub creates a new WebSocket hub
func NewWSHub(logger *zap.Logger) *WSHub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WSHub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan outbound, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Attach forwards the live and zone streams to browsers until ctx ends
func (h *WSHub) Attach(ctx context.Context, src service.LiveSource, zones *service.ZoneWatcher) {
	service.Forward(ctx, src.Locations(), func(u model.LocationUpdate) { h.Publish(TypeLocation, u.ChildID.String(), u) })
	service.Forward(ctx, src.Statuses(), func(s model.StatusChange) { h.Publish(TypeStatus, s.ChildID.String(), s) })
	service.Forward(ctx, src.PanicAlerts(), func(a model.PanicAlert) { h.Publish(TypePanic, a.ChildID.String(), a) })
	service.Forward(ctx, src.ConnectionStatus(), func(alive bool) {
		h.Publish(TypeConnection, "", gin.H{"connected": alive})
	})
	if zones != nil {
		service.Forward(ctx, zones.Events(), func(e model.ZoneEvent) { h.Publish(TypeZone, e.ChildID.String(), e) })
	}
}

// Run starts the hub's event loop
func (h *WSHub) Run() {
	h.logger.Info("WebSocket hub started")
	for {
		select {
		case <-h.done:
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("Browser connected", zap.String("client_id", client.ID), zap.Int("clients", total))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("Browser disconnected", zap.String("client_id", client.ID), zap.Int("clients", total))

		case msg := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				if msg.to != nil && msg.to != client {
					continue
				}
				if msg.childID != "" {
					if f := client.filter(); f != "" && f != msg.childID {
						continue
					}
				}
				select {
				case client.Send <- msg.data:
				default:
					// slow browser, drop it
					delete(h.clients, client)
					close(client.Send)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Stop closes every browser connection and ends Run
func (h *WSHub) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.mu.Lock()
		for client := range h.clients {
			close(client.Send)
			client.Conn.Close()
			delete(h.clients, client)
		}
		h.mu.Unlock()
	})
}

// GetClientCount returns the number of connected browsers
func (h *WSHub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish queues a {type, data} message. It never blocks; messages are
// dropped when the hub is saturated.
func (h *WSHub) Publish(msgType, childID string, data any) {
	payload, err := json.Marshal(gin.H{"type": msgType, "data": data})
	if err != nil {
		h.logger.Error("Failed to marshal broadcast message", zap.Error(err))
		return
	}

	select {
	case h.broadcast <- outbound{childID: childID, data: payload}:
	default:
		h.logger.Warn("Broadcast queue full, message dropped", zap.String("type", msgType))
	}
}

// ReadPump handles incoming messages from the browser
func (c *Client) ReadPump() {
	defer func() {
		select {
		case c.Hub.unregister <- c:
		case <-c.Hub.done:
		}
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(64 * 1024)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.logger.Warn("Browser read error", zap.String("client_id", c.ID), zap.Error(err))
			}
			return
		}

		var msg WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}

		switch msg.Type {
		case "subscribe":
			var data struct {
				ChildID string `json:"child_id"`
			}
			if err := json.Unmarshal(msg.Data, &data); err == nil {
				c.setFilter(data.ChildID)
				c.Hub.logger.Debug("Browser filter changed", zap.String("client_id", c.ID), zap.String("child_id", data.ChildID))
			}
		case "ping":
			select {
			case c.Hub.broadcast <- outbound{to: c, data: []byte(`{"type":"pong"}`)}:
			default:
			}
		}
	}
}

// WritePump handles outgoing messages to the browser
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// WSHandler handles browser WebSocket connections
type WSHandler struct {
	hub *WSHub
}

// NewWSHandler creates a new WebSocket handler
func NewWSHandler(hub *WSHub) *WSHandler {
	return &WSHandler{hub: hub}
}

// HandleLive upgrades a browser connection to the live event stream.
// An optional child_id query parameter filters per-child events.
func (h *WSHandler) HandleLive(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.hub.logger.Warn("Failed to upgrade connection", zap.Error(err))
		return
	}

	client := &Client{
		ID:      uuid.NewString(),
		Conn:    conn,
		Send:    make(chan []byte, 256),
		Hub:     h.hub,
		childID: c.Query("child_id"),
	}

	welcome, _ := json.Marshal(gin.H{"type": "connected", "client_id": client.ID})
	client.Send <- welcome

	select {
	case h.hub.register <- client:
	case <-h.hub.done:
		conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()
}

// GetStats returns WebSocket hub statistics
func (h *WSHandler) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"connected_clients": h.hub.GetClientCount()})
}
