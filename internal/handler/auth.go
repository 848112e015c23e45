package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"geografica/internal/apiclient"
	"geografica/internal/model"
	"geografica/internal/realtime"
	"geografica/internal/service"
)

const defaultTutorType = "padre"

// AuthHandler handles login, registration and logout of the guardian
type AuthHandler struct {
	auth    *apiclient.AuthClient
	channel *realtime.Channel
	tracker *service.LiveTracker
	zones   *service.ZoneWatcher
	logger  *zap.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(auth *apiclient.AuthClient, channel *realtime.Channel, tracker *service.LiveTracker, zones *service.ZoneWatcher, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{auth: auth, channel: channel, tracker: tracker, zones: zones, logger: logger}
}

// SessionResponse describes the logged in guardian
type SessionResponse struct {
	User      *model.User `json:"user"`
	ExpiresAt *time.Time  `json:"expires_at,omitempty"`
}

func (h *AuthHandler) sessionResponse() SessionResponse {
	resp := SessionResponse{User: h.auth.CurrentUser()}
	if exp, err := h.auth.TokenExpiry(); err == nil {
		resp.ExpiresAt = &exp
	}
	return resp
}

// Login authenticates the guardian
// @Summary Login
// @Description Authenticate against the remote API and keep the session
// @Tags Auth
// @Accept json
// @Produce json
// @Param credentials body model.LoginRequest true "Credentials"
// @Success 200 {object} SessionResponse
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Failure 429 {object} map[string]string
// @Failure 502 {object} map[string]string
// @Router /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req model.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	if _, err := h.auth.Login(c.Request.Context(), req); err != nil {
		respondError(c, h.logger, err, errorMessages{Unauthorized: "Email o contraseña incorrectos"})
		return
	}

	c.JSON(http.StatusOK, h.sessionResponse())
}

// Register creates a guardian account and logs it in
// @Summary Register
// @Description Create a guardian account, then log in with the same credentials
// @Tags Auth
// @Accept json
// @Produce json
// @Param account body model.RegisterTutorRequest true "Account"
// @Success 201 {object} SessionResponse
// @Failure 400 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Failure 502 {object} map[string]string
// @Router /auth/register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req model.RegisterTutorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if req.Type == "" {
		req.Type = defaultTutorType
	}

	conflict := func(*apiclient.APIError) string { return msgEmailTakenAlt }
	if _, err := h.auth.Register(c.Request.Context(), req); err != nil {
		respondError(c, h.logger, err, errorMessages{Conflict: conflict, Fallback: "Error al registrarse. Intenta nuevamente."})
		return
	}

	if _, err := h.auth.Login(c.Request.Context(), model.LoginRequest{Email: req.Email, Password: req.Password}); err != nil {
		respondError(c, h.logger, err, errorMessages{Fallback: "Cuenta creada, pero no se pudo iniciar sesión."})
		return
	}

	c.JSON(http.StatusCreated, h.sessionResponse())
}

// Logout ends the session and closes the live channel
// @Summary Logout
// @Tags Auth
// @Produce json
// @Success 200 {object} map[string]string
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	h.channel.Disconnect()
	h.tracker.Reset()
	h.zones.Reset()

	if err := h.auth.Logout(c.Request.Context()); err != nil {
		h.logger.Error("Failed to clear session", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": msgGeneric})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Sesión cerrada"})
}

// Me returns the logged in guardian
// @Summary Current user
// @Tags Auth
// @Produce json
// @Success 200 {object} SessionResponse
// @Failure 401 {object} map[string]string
// @Router /me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	c.JSON(http.StatusOK, h.sessionResponse())
}
