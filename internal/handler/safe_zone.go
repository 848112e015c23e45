package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"geografica/internal/apiclient"
	"geografica/internal/model"
	"geografica/internal/service"
)

// SafeZoneHandler handles the guardian's safe zones
type SafeZoneHandler struct {
	zones   *apiclient.SafeZoneClient
	watcher *service.ZoneWatcher
	logger  *zap.Logger
}

// NewSafeZoneHandler creates a new safe zone handler
func NewSafeZoneHandler(zones *apiclient.SafeZoneClient, watcher *service.ZoneWatcher, logger *zap.Logger) *SafeZoneHandler {
	return &SafeZoneHandler{zones: zones, watcher: watcher, logger: logger}
}

// SafeZoneBody is a create request. The area is given either as a GeoJSON
// polygon or as the points drawn on the map, which are closed automatically.
type SafeZoneBody struct {
	Name        string                `json:"nombre" binding:"required"`
	Description string                `json:"descripcion"`
	Polygon     *model.GeoJSONPolygon `json:"poligono"`
	Points      []model.Coordinate    `json:"puntos"`
	ChildIDs    []int64               `json:"hijosIds"`
}

func (b *SafeZoneBody) toRequest() model.CreateSafeZoneRequest {
	req := model.CreateSafeZoneRequest{
		Name:        b.Name,
		Description: b.Description,
		ChildIDs:    b.ChildIDs,
	}
	if b.Polygon != nil {
		req.Polygon = *b.Polygon
	} else {
		req.Polygon = model.PolygonFromCoordinates(b.Points)
	}
	return req
}

// refresh reloads the zones used for enter/exit detection
func (h *SafeZoneHandler) refresh(ctx context.Context) {
	if err := h.watcher.Refresh(ctx); err != nil {
		h.logger.Warn("Failed to refresh zone watcher", zap.Error(err))
	}
}

// Create adds a safe zone
// @Summary Create safe zone
// @Tags SafeZones
// @Accept json
// @Produce json
// @Param zone body SafeZoneBody true "Safe zone"
// @Success 201 {object} model.SafeZone
// @Failure 400 {object} map[string]string
// @Router /safe-zones [post]
func (h *SafeZoneHandler) Create(c *gin.Context) {
	var body SafeZoneBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err.Error())
		return
	}

	req := body.toRequest()
	if err := req.Validate(); err != nil {
		badRequest(c, err.Error())
		return
	}

	zone, err := h.zones.Create(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, err, errorMessages{Fallback: "Error al crear la zona segura"})
		return
	}

	h.refresh(c.Request.Context())
	c.JSON(http.StatusCreated, zone)
}

// List returns the safe zones
// @Summary List safe zones
// @Tags SafeZones
// @Produce json
// @Success 200 {array} model.SafeZone
// @Router /safe-zones [get]
func (h *SafeZoneHandler) List(c *gin.Context) {
	zones, err := h.zones.List(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err, errorMessages{Fallback: "Error al cargar las zonas seguras"})
		return
	}

	h.watcher.SetZones(zones)
	c.JSON(http.StatusOK, zones)
}

// Get returns one safe zone
// @Summary Get safe zone
// @Tags SafeZones
// @Produce json
// @Param id path int true "Safe zone ID"
// @Success 200 {object} model.SafeZone
// @Failure 404 {object} map[string]string
// @Router /safe-zones/{id} [get]
func (h *SafeZoneHandler) Get(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	zone, err := h.zones.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err, errorMessages{Fallback: "Error al cargar la zona segura"})
		return
	}
	c.JSON(http.StatusOK, zone)
}

// Update partially updates a safe zone
// @Summary Update safe zone
// @Tags SafeZones
// @Accept json
// @Produce json
// @Param id path int true "Safe zone ID"
// @Param zone body model.UpdateSafeZoneRequest true "Changed fields"
// @Success 200 {object} model.SafeZone
// @Failure 400 {object} map[string]string
// @Router /safe-zones/{id} [patch]
func (h *SafeZoneHandler) Update(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req model.UpdateSafeZoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		badRequest(c, err.Error())
		return
	}

	zone, err := h.zones.Update(c.Request.Context(), id, req)
	if err != nil {
		respondError(c, h.logger, err, errorMessages{Fallback: "Error al actualizar la zona segura"})
		return
	}

	h.refresh(c.Request.Context())
	c.JSON(http.StatusOK, zone)
}

// Delete removes a safe zone
// @Summary Delete safe zone
// @Tags SafeZones
// @Produce json
// @Param id path int true "Safe zone ID"
// @Success 200 {object} model.MessageResponse
// @Router /safe-zones/{id} [delete]
func (h *SafeZoneHandler) Delete(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	resp, err := h.zones.Delete(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err, errorMessages{Fallback: "Error al eliminar la zona segura"})
		return
	}

	h.refresh(c.Request.Context())
	c.JSON(http.StatusOK, resp)
}
