package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"geografica/internal/apiclient"
	"geografica/internal/model"
	"geografica/internal/realtime"
	"geografica/internal/service"
)

// LiveHandler drives the live channel and exposes the live state
type LiveHandler struct {
	channel  *realtime.Channel
	tracker  *service.LiveTracker
	children *apiclient.ChildClient
	zones    *service.ZoneWatcher
	logger   *zap.Logger
}

// NewLiveHandler creates a new live handler
func NewLiveHandler(channel *realtime.Channel, tracker *service.LiveTracker, children *apiclient.ChildClient, zones *service.ZoneWatcher, logger *zap.Logger) *LiveHandler {
	return &LiveHandler{channel: channel, tracker: tracker, children: children, zones: zones, logger: logger}
}

// LiveState is the live view of the dashboard
type LiveState struct {
	Connected bool              `json:"connected"`
	Rooms     []string          `json:"rooms"`
	Children  []model.LiveChild `json:"children"`
}

func (h *LiveHandler) state() LiveState {
	return LiveState{
		Connected: h.channel.IsConnected(),
		Rooms:     h.channel.JoinedRooms(),
		Children:  h.tracker.Snapshot(),
	}
}

// State returns the connection flag, joined rooms and last known positions
// @Summary Live state
// @Tags Live
// @Produce json
// @Success 200 {object} LiveState
// @Router /live [get]
func (h *LiveHandler) State(c *gin.Context) {
	c.JSON(http.StatusOK, h.state())
}

// Connect opens the live channel and follows every child of the guardian
// @Summary Connect live channel
// @Tags Live
// @Produce json
// @Success 200 {object} LiveState
// @Failure 401 {object} map[string]string
// @Failure 502 {object} map[string]string
// @Router /live/connect [post]
func (h *LiveHandler) Connect(c *gin.Context) {
	ctx := c.Request.Context()

	children, err := h.children.List(ctx)
	if err != nil {
		respondError(c, h.logger, err, errorMessages{Fallback: "Error al cargar hijos. Intenta de nuevo."})
		return
	}
	h.tracker.Seed(children)
	for _, child := range children {
		// recorded only; sent by Connect
		_ = h.channel.JoinChildRoom(strconv.FormatInt(child.ID, 10))
	}
	h.refreshZones(ctx)

	if err := h.channel.Connect(ctx); err != nil {
		if errors.Is(err, realtime.ErrNoToken) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": msgNotLoggedIn})
			return
		}
		h.logger.Warn("Live channel connect failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "No se pudo conectar al canal en tiempo real"})
		return
	}

	c.JSON(http.StatusOK, h.state())
}

func (h *LiveHandler) refreshZones(ctx context.Context) {
	if err := h.zones.Refresh(ctx); err != nil {
		h.logger.Warn("Failed to load safe zones for live view", zap.Error(err))
	}
}

// Disconnect closes the live channel and forgets the joined rooms
// @Summary Disconnect live channel
// @Tags Live
// @Produce json
// @Success 200 {object} LiveState
// @Router /live/disconnect [post]
func (h *LiveHandler) Disconnect(c *gin.Context) {
	h.channel.Disconnect()
	c.JSON(http.StatusOK, h.state())
}

// Watch joins the room of a child
// @Summary Follow child
// @Tags Live
// @Produce json
// @Param id path int true "Child ID"
// @Success 200 {object} LiveState
// @Router /children/{id}/watch [post]
func (h *LiveHandler) Watch(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	if err := h.channel.JoinChildRoom(strconv.FormatInt(id, 10)); err != nil {
		h.logger.Warn("Failed to join child room", zap.Int64("child_id", id), zap.Error(err))
	}
	c.JSON(http.StatusOK, h.state())
}

// Unwatch leaves the room of a child
// @Summary Unfollow child
// @Tags Live
// @Produce json
// @Param id path int true "Child ID"
// @Success 200 {object} LiveState
// @Router /children/{id}/watch [delete]
func (h *LiveHandler) Unwatch(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	if err := h.channel.LeaveChildRoom(strconv.FormatInt(id, 10)); err != nil {
		h.logger.Warn("Failed to leave child room", zap.Int64("child_id", id), zap.Error(err))
	}
	c.JSON(http.StatusOK, h.state())
}

// Locate asks a child's device for a fresh position
// @Summary Request location
// @Tags Live
// @Produce json
// @Param id path int true "Child ID"
// @Success 202 {object} map[string]interface{}
// @Failure 409 {object} map[string]string
// @Router /children/{id}/locate [post]
func (h *LiveHandler) Locate(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	if !h.channel.IsConnected() {
		c.JSON(http.StatusConflict, gin.H{"error": "El canal en tiempo real no está conectado"})
		return
	}
	if err := h.channel.RequestLocation(strconv.FormatInt(id, 10)); err != nil {
		h.logger.Warn("Location request failed", zap.Int64("child_id", id), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "Error al obtener ubicación."})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"requested": true})
}
