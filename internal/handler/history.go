package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"geografica/internal/model"
	"geografica/internal/service"
)

// HistoryHandler handles location history queries and uploads
type HistoryHandler struct {
	history *service.HistoryService
	outbox  *service.Outbox
	logger  *zap.Logger
}

// NewHistoryHandler creates a new history handler
func NewHistoryHandler(history *service.HistoryService, outbox *service.Outbox, logger *zap.Logger) *HistoryHandler {
	return &HistoryHandler{history: history, outbox: outbox, logger: logger}
}

// parseBound accepts RFC 3339 timestamps or plain dates in local time
func parseBound(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02", value, time.Local); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("fecha inválida: %s", value)
}

// Get returns the records of a child for a period with their statistics
// @Summary Location history
// @Tags History
// @Produce json
// @Param id path int true "Child ID"
// @Param range query string false "today, yesterday, week, month or custom" default(today)
// @Param start query string false "Custom range start (RFC 3339 or YYYY-MM-DD)"
// @Param end query string false "Custom range end (RFC 3339 or YYYY-MM-DD)"
// @Success 200 {object} service.HistoryResult
// @Failure 400 {object} map[string]string
// @Router /children/{id}/history [get]
func (h *HistoryHandler) Get(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	preset, err := service.ParseRangePreset(c.Query("range"))
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	var custom model.HistoryFilter
	if preset == service.RangeCustom {
		if custom.Start, err = parseBound(c.Query("start")); err != nil {
			badRequest(c, err.Error())
			return
		}
		if custom.End, err = parseBound(c.Query("end")); err != nil {
			badRequest(c, err.Error())
			return
		}
	}

	result, err := h.history.Fetch(c.Request.Context(), id, preset, custom)
	if err != nil {
		respondError(c, h.logger, err, errorMessages{Fallback: "No se pudo cargar el historial de ubicaciones"})
		return
	}
	c.JSON(http.StatusOK, result)
}

// Record stores a location record, queueing it when the API is unreachable
// @Summary Record location
// @Tags History
// @Accept json
// @Produce json
// @Param id path int true "Child ID"
// @Param record body model.CreateLocationRecordRequest true "Record"
// @Success 201 {object} model.LocationRecord
// @Success 202 {object} map[string]interface{}
// @Failure 400 {object} map[string]string
// @Router /children/{id}/history [post]
func (h *HistoryHandler) Record(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req model.CreateLocationRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		badRequest(c, err.Error())
		return
	}

	record, queued, err := h.outbox.Record(c.Request.Context(), id, req)
	if err != nil {
		respondError(c, h.logger, err, errorMessages{Fallback: "No se pudo guardar la ubicación"})
		return
	}
	if queued {
		c.JSON(http.StatusAccepted, gin.H{"queued": true})
		return
	}
	c.JSON(http.StatusCreated, record)
}

// Flush uploads the queued records now
// @Summary Flush offline records
// @Tags History
// @Produce json
// @Success 200 {object} service.FlushResult
// @Router /outbox/flush [post]
func (h *HistoryHandler) Flush(c *gin.Context) {
	result, err := h.outbox.Flush(c.Request.Context())
	if err != nil {
		h.logger.Error("Outbox flush failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": msgGeneric})
		return
	}

	pending, err := h.outbox.Pending(c.Request.Context())
	if err != nil {
		h.logger.Warn("Failed to count pending records", zap.Error(err))
	}
	c.JSON(http.StatusOK, gin.H{"result": result, "pending": pending})
}
