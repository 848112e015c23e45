package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"geografica/internal/model"
	"geografica/internal/pubsub"
)

// Events exchanged with the live channel server
const (
	EventJoinChildRoom      = "joinChildRoom"
	EventLeaveChildRoom     = "leaveChildRoom"
	EventRequestLocation    = "requestLocation"
	EventJoined             = "joined"
	EventError              = "error"
	EventLocationUpdated    = "locationUpdated"
	EventChildStatusChanged = "childStatusChanged"
	EventPanicAlert         = "panicAlert"
)

var (
	// ErrNoToken is returned by Connect when no session token is available
	ErrNoToken = errors.New("no session token available")
	// ErrNotConnected is returned when a message cannot be sent
	ErrNotConnected = errors.New("live channel not connected")

	writeTimeout     = 10 * time.Second
	handshakeTimeout = 10 * time.Second
	maxMessageSize   = int64(512 * 1024)
)

// TokenSource supplies the bearer token used in the handshake
type TokenSource interface {
	Token() string
}

// Envelope is the wire format of every message on the channel
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// roomRequest carries the child ID as a string, also for numeric IDs
type roomRequest struct {
	ChildID string `json:"childId"`
}

type serverError struct {
	Message string `json:"message"`
}

// Channel is the client of the push channel. It keeps the set of child
// rooms the guardian follows and re-joins all of them on every connect.
type Channel struct {
	url    string
	tokens TokenSource
	dialer *websocket.Dialer
	logger *zap.Logger

	// connectMu serializes Connect and Disconnect
	connectMu sync.Mutex

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	gen       uint64
	rooms     map[string]struct{}

	writeMu sync.Mutex

	locations *pubsub.Broadcaster[model.LocationUpdate]
	statuses  *pubsub.Broadcaster[model.StatusChange]
	panics    *pubsub.Broadcaster[model.PanicAlert]
	connState *pubsub.Broadcaster[bool]
}

// NewChannel creates a disconnected channel for the given websocket URL
func NewChannel(wsURL string, tokens TokenSource, logger *zap.Logger) *Channel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Channel{
		url:    wsURL,
		tokens: tokens,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
		},
		logger:    logger,
		rooms:     make(map[string]struct{}),
		locations: pubsub.NewBroadcaster[model.LocationUpdate]("locations", logger),
		statuses:  pubsub.NewBroadcaster[model.StatusChange]("statuses", logger),
		panics:    pubsub.NewBroadcaster[model.PanicAlert]("panic_alerts", logger),
		connState: pubsub.NewBehavior("connection_status", false, logger),
	}
}

// Locations streams locationUpdated events
func (c *Channel) Locations() *pubsub.Broadcaster[model.LocationUpdate] { return c.locations }

// Statuses streams childStatusChanged events
func (c *Channel) Statuses() *pubsub.Broadcaster[model.StatusChange] { return c.statuses }

// PanicAlerts streams panicAlert events
func (c *Channel) PanicAlerts() *pubsub.Broadcaster[model.PanicAlert] { return c.panics }

// ConnectionStatus streams connection changes, starting with the current state
func (c *Channel) ConnectionStatus() *pubsub.Broadcaster[bool] { return c.connState }

// Connect opens the channel with the current session token. An existing
// connection is closed first; the joined rooms are kept and re-joined.
func (c *Channel) Connect(ctx context.Context) error {
	c.connectMu.Lock()
	defer c.connectMu.Unlock()

	token := ""
	if c.tokens != nil {
		token = c.tokens.Token()
	}
	if token == "" {
		c.logger.Error("Cannot connect live channel without a session token")
		return ErrNoToken
	}

	if c.teardown() {
		c.connState.Publish(false)
	}

	target, err := url.Parse(c.url)
	if err != nil {
		return fmt.Errorf("invalid realtime url: %w", err)
	}
	q := target.Query()
	q.Set("token", token)
	target.RawQuery = q.Encode()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, resp, err := c.dialer.DialContext(ctx, target.String(), header)
	if err != nil {
		if resp != nil {
			err = fmt.Errorf("%w (status %d)", err, resp.StatusCode)
		}
		c.logger.Error("Live channel connection failed", zap.Error(err))
		return fmt.Errorf("failed to connect live channel: %w", err)
	}
	conn.SetReadLimit(maxMessageSize)

	c.mu.Lock()
	c.gen++
	gen := c.gen
	c.conn = conn
	c.connected = true
	rooms := c.sortedRoomsLocked()
	c.mu.Unlock()

	go c.readLoop(conn, gen)

	c.logger.Info("Live channel connected", zap.Int("rooms", len(rooms)))
	c.connState.Publish(true)

	for _, room := range rooms {
		if err := c.send(EventJoinChildRoom, roomRequest{ChildID: room}); err != nil {
			c.logger.Warn("Failed to rejoin child room", zap.String("child_id", room), zap.Error(err))
		}
	}
	return nil
}

// Disconnect closes the channel, forgets every joined room and emits a
// false connection status, also when the channel was already down.
func (c *Channel) Disconnect() {
	c.connectMu.Lock()
	defer c.connectMu.Unlock()

	c.teardown()

	c.mu.Lock()
	c.rooms = make(map[string]struct{})
	c.mu.Unlock()

	c.connState.Publish(false)
	c.logger.Info("Live channel disconnected")
}

// teardown closes the active connection, if any, and reports whether the
// channel was connected. The read loop of a torn down connection does not
// report its failure.
func (c *Channel) teardown() bool {
	c.mu.Lock()
	conn := c.conn
	wasConnected := c.connected
	c.conn = nil
	c.connected = false
	c.gen++
	c.mu.Unlock()

	if conn == nil {
		return wasConnected
	}

	c.writeMu.Lock()
	_ = conn.SetWriteDeadline(time.Now().Add(time.Second))
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	conn.Close()
	return wasConnected
}

// JoinChildRoom follows a child. The room is remembered and sent right
// away when connected, otherwise on the next connect.
func (c *Channel) JoinChildRoom(childID string) error {
	c.mu.Lock()
	c.rooms[childID] = struct{}{}
	connected := c.connected
	c.mu.Unlock()

	if !connected {
		return nil
	}
	return c.send(EventJoinChildRoom, roomRequest{ChildID: childID})
}

// LeaveChildRoom stops following a child
func (c *Channel) LeaveChildRoom(childID string) error {
	c.mu.Lock()
	delete(c.rooms, childID)
	connected := c.connected
	c.mu.Unlock()

	if !connected {
		return nil
	}
	return c.send(EventLeaveChildRoom, roomRequest{ChildID: childID})
}

// RequestLocation asks the child's device for a fresh position. It does
// nothing while disconnected.
func (c *Channel) RequestLocation(childID string) error {
	if !c.IsConnected() {
		c.logger.Debug("Location request skipped, channel not connected", zap.String("child_id", childID))
		return nil
	}
	return c.send(EventRequestLocation, roomRequest{ChildID: childID})
}

// IsConnected reports whether the channel is up
func (c *Channel) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// JoinedRooms returns the followed child IDs in ascending order
func (c *Channel) JoinedRooms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sortedRoomsLocked()
}

// Close disconnects and ends every stream
func (c *Channel) Close() {
	c.Disconnect()
	c.locations.Close()
	c.statuses.Close()
	c.panics.Close()
	c.connState.Close()
}

func (c *Channel) sortedRoomsLocked() []string {
	rooms := make([]string, 0, len(c.rooms))
	for room := range c.rooms {
		rooms = append(rooms, room)
	}
	sort.Slice(rooms, func(i, j int) bool {
		a, errA := strconv.ParseInt(rooms[i], 10, 64)
		b, errB := strconv.ParseInt(rooms[j], 10, 64)
		if errA == nil && errB == nil {
			return a < b
		}
		return rooms[i] < rooms[j]
	})
	return rooms
}

func (c *Channel) send(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", event, err)
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(Envelope{Event: event, Data: data}); err != nil {
		return fmt.Errorf("failed to send %s: %w", event, err)
	}
	return nil
}

func (c *Channel) readLoop(conn *websocket.Conn, gen uint64) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			c.connectionLost(gen, err)
			return
		}
		c.dispatch(message)
	}
}

func (c *Channel) connectionLost(gen uint64, err error) {
	c.mu.Lock()
	if c.gen != gen || c.conn == nil {
		c.mu.Unlock()
		return
	}
	conn := c.conn
	c.conn = nil
	c.connected = false
	c.mu.Unlock()

	conn.Close()
	c.logger.Warn("Live channel connection lost", zap.Error(err))
	c.connState.Publish(false)
}

func (c *Channel) dispatch(message []byte) {
	var env Envelope
	if err := json.Unmarshal(message, &env); err != nil {
		c.logger.Warn("Malformed live channel message", zap.Error(err))
		return
	}

	switch env.Event {
	case EventLocationUpdated:
		var update model.LocationUpdate
		if err := json.Unmarshal(env.Data, &update); err != nil {
			c.logger.Warn("Invalid location update", zap.Error(err))
			return
		}
		c.locations.Publish(update)

	case EventChildStatusChanged:
		var status model.StatusChange
		if err := json.Unmarshal(env.Data, &status); err != nil {
			c.logger.Warn("Invalid status change", zap.Error(err))
			return
		}
		c.statuses.Publish(status)

	case EventPanicAlert:
		var alert model.PanicAlert
		if err := json.Unmarshal(env.Data, &alert); err != nil {
			c.logger.Warn("Invalid panic alert", zap.Error(err))
			return
		}
		c.panics.Publish(alert)

	case EventJoined:
		c.logger.Info("Joined child room", zap.ByteString("data", env.Data))

	case EventError:
		var serr serverError
		_ = json.Unmarshal(env.Data, &serr)
		c.logger.Error("Live channel server error", zap.String("message", serr.Message))

	default:
		c.logger.Debug("Ignoring live channel event", zap.String("event", env.Event))
	}
}
