package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"geografica/internal/apiclient"
)

const (
	msgUnreachable   = "No se pudo conectar con el servidor. Intenta nuevamente."
	msgGeneric       = "Ocurrió un error. Intenta nuevamente."
	msgNotLoggedIn   = "Sesión no iniciada o expirada"
	msgInvalidID     = "ID inválido"
	msgEmailTaken    = "El email ya está registrado"
	msgEmailTakenAlt = "Este email ya está registrado"
)

// errorMessages customizes the text shown for an operation
type errorMessages struct {
	// Unauthorized replaces the server text of a 401
	Unauthorized string
	// Conflict picks the text of a 409; nil keeps the server text
	Conflict func(apiErr *apiclient.APIError) string
	// Fallback is used when the server gave no usable text
	Fallback string
}

// respondError writes the user-facing error of a failed API operation.
// The remote status is kept except for transport failures, which map to 502.
func respondError(c *gin.Context, logger *zap.Logger, err error, msgs errorMessages) {
	fallback := msgs.Fallback
	if fallback == "" {
		fallback = msgGeneric
	}

	if errors.Is(err, apiclient.ErrNotAuthenticated) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": msgNotLoggedIn})
		return
	}

	if apiclient.IsTransport(err) {
		logger.Warn("Remote API unreachable", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": msgUnreachable})
		return
	}

	var apiErr *apiclient.APIError
	if !errors.As(err, &apiErr) {
		logger.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
		return
	}

	message := fallback
	switch {
	case apiErr.StatusCode == http.StatusUnauthorized && msgs.Unauthorized != "":
		message = msgs.Unauthorized
	case apiErr.StatusCode == http.StatusConflict && msgs.Conflict != nil:
		if m := msgs.Conflict(apiErr); m != "" {
			message = m
		} else {
			message = serverMessage(apiErr, fallback)
		}
	default:
		if list, ok := apiclient.ValidationMessages(err); ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": strings.Join(list, "\n"), "messages": list})
			return
		}
		message = serverMessage(apiErr, fallback)
	}

	c.JSON(apiErr.StatusCode, gin.H{"error": message})
}

// serverMessage returns the server text unless it is only the status text
func serverMessage(apiErr *apiclient.APIError, fallback string) string {
	msg := apiErr.Message()
	if msg == "" || msg == http.StatusText(apiErr.StatusCode) {
		return fallback
	}
	return msg
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": message})
}

func parseID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, msgInvalidID)
		return 0, false
	}
	return id, true
}
