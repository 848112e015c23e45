package handler

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"geografica/internal/model"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func setupHub(t *testing.T) (*WSHub, string) {
	t.Helper()

	hub := NewWSHub(zap.NewNop())
	go hub.Run()
	t.Cleanup(hub.Stop)

	router := gin.New()
	h := NewWSHandler(hub)
	router.GET("/ws/live", h.HandleLive)
	router.GET("/ws/stats", h.GetStats)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/live"
}

func dialHub(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	msg := readMessage(t, conn)
	require.Equal(t, "connected", msg["type"])
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg map[string]any
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

// roundTrip waits until the hub has processed every message sent before it
func roundTrip(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "ping"}))
	assert.Equal(t, "pong", readMessage(t, conn)["type"])
}

func TestWSHubDeliversEvents(t *testing.T) {
	hub, url := setupHub(t)
	conn := dialHub(t, url)
	assert.Equal(t, 1, hub.GetClientCount())

	hub.Publish(TypeLocation, "5", model.LocationUpdate{ChildID: "5", Lat: -17.78, Lng: -63.18, Status: "online"})

	msg := readMessage(t, conn)
	assert.Equal(t, TypeLocation, msg["type"])
	data := msg["data"].(map[string]any)
	assert.Equal(t, "5", data["childId"])
	assert.Equal(t, -17.78, data["lat"])
}

func TestWSHubChildFilter(t *testing.T) {
	hub, url := setupHub(t)
	filtered := dialHub(t, url+"?child_id=9")
	all := dialHub(t, url)

	hub.Publish(TypeStatus, "5", model.StatusChange{ChildID: "5", Online: true})
	hub.Publish(TypeConnection, "", gin.H{"connected": false})

	assert.Equal(t, TypeStatus, readMessage(t, all)["type"])
	assert.Equal(t, TypeConnection, readMessage(t, all)["type"])
	// the status of child 5 is skipped
	assert.Equal(t, TypeConnection, readMessage(t, filtered)["type"])

	require.NoError(t, filtered.WriteJSON(map[string]any{"type": "subscribe", "data": map[string]any{"child_id": "5"}}))
	roundTrip(t, filtered)

	hub.Publish(TypePanic, "5", model.PanicAlert{ChildID: "5"})
	msg := readMessage(t, filtered)
	assert.Equal(t, TypePanic, msg["type"])
}

func TestWSHubUnregistersClosedClients(t *testing.T) {
	hub, url := setupHub(t)
	conn := dialHub(t, url)
	require.Equal(t, 1, hub.GetClientCount())

	conn.Close()
	assert.Eventually(t, func() bool { return hub.GetClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestWSHubPublishAfterStopDoesNotBlock(t *testing.T) {
	hub := NewWSHub(zap.NewNop())
	hub.Stop()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 300; i++ {
			hub.Publish(TypeConnection, "", gin.H{"connected": true})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked")
	}
}
