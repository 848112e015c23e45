package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"geografica/internal/apiclient"
	"geografica/internal/model"
	"geografica/internal/service"
)

// ChildHandler handles the guardian's children
type ChildHandler struct {
	children *apiclient.ChildClient
	tracker  *service.LiveTracker
	logger   *zap.Logger
}

// NewChildHandler creates a new child handler
func NewChildHandler(children *apiclient.ChildClient, tracker *service.LiveTracker, logger *zap.Logger) *ChildHandler {
	return &ChildHandler{children: children, tracker: tracker, logger: logger}
}

// List returns the children of the guardian
// @Summary List children
// @Tags Children
// @Produce json
// @Success 200 {array} model.Child
// @Failure 401 {object} map[string]string
// @Failure 502 {object} map[string]string
// @Router /children [get]
func (h *ChildHandler) List(c *gin.Context) {
	children, err := h.children.List(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err, errorMessages{Fallback: "Error al cargar hijos. Intenta de nuevo."})
		return
	}

	h.tracker.Seed(children)
	c.JSON(http.StatusOK, children)
}

// Register creates a child
// @Summary Register child
// @Tags Children
// @Accept json
// @Produce json
// @Param child body model.RegisterChildRequest true "Child"
// @Success 201 {object} model.Child
// @Failure 400 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /children [post]
func (h *ChildHandler) Register(c *gin.Context) {
	var req model.RegisterChildRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	child, err := h.children.Register(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, err, errorMessages{
			Conflict: func(*apiclient.APIError) string { return msgEmailTaken },
			Fallback: "Error al registrar hijo. Intenta de nuevo.",
		})
		return
	}

	h.tracker.Seed([]model.Child{*child})
	c.JSON(http.StatusCreated, child)
}

// Update partially updates a child
// @Summary Update child
// @Tags Children
// @Accept json
// @Produce json
// @Param id path int true "Child ID"
// @Param child body model.UpdateChildRequest true "Changed fields"
// @Success 200 {object} model.Child
// @Failure 400 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /children/{id} [patch]
func (h *ChildHandler) Update(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req model.UpdateChildRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if req.Name == nil && req.Surname == nil && req.Phone == nil && req.Email == nil && req.Password == nil {
		badRequest(c, "No se detectaron cambios para guardar")
		return
	}

	child, err := h.children.Update(c.Request.Context(), id, req)
	if err != nil {
		respondError(c, h.logger, err, errorMessages{
			Conflict: func(apiErr *apiclient.APIError) string {
				switch {
				case apiErr.Mentions("vinculado"):
					return "No se puede cambiar el email de un hijo ya vinculado"
				case apiErr.Mentions("email"):
					return msgEmailTaken
				}
				return ""
			},
			Fallback: "Error al actualizar los datos",
		})
		return
	}

	c.JSON(http.StatusOK, child)
}

// RegenerateCode issues a new linking code for a child
// @Summary Regenerate linking code
// @Description The previous code stops working and the child must link again
// @Tags Children
// @Produce json
// @Param id path int true "Child ID"
// @Success 200 {object} model.Child
// @Failure 409 {object} map[string]string
// @Router /children/{id}/code [post]
func (h *ChildHandler) RegenerateCode(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	resp, err := h.children.RegenerateCode(ctx, id)
	if err != nil {
		respondError(c, h.logger, err, errorMessages{
			Conflict: func(*apiclient.APIError) string { return "Este hijo ya está vinculado" },
			Fallback: "Error al regenerar código",
		})
		return
	}

	child := model.Child{ID: id}
	if children, err := h.children.List(ctx); err != nil {
		h.logger.Warn("Reload children after code regeneration", zap.Int64("child_id", id), zap.Error(err))
	} else {
		for _, ch := range children {
			if ch.ID == id {
				child = ch
				break
			}
		}
	}
	child.ApplyNewCode(resp.LinkCode)

	c.JSON(http.StatusOK, child)
}
