package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"geografica/internal/model"
)

// Context keys set by RequireSession
const (
	ContextUserID = "user_id"
	ContextUser   = "user"
)

// SessionChecker exposes the guardian session
type SessionChecker interface {
	IsAuthenticated() bool
	CurrentUser() *model.User
}

// RequireSession rejects requests while no guardian is logged in
func RequireSession(sessions SessionChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !sessions.IsAuthenticated() {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Sesión no iniciada o expirada"})
			return
		}

		user := sessions.CurrentUser()
		if user == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Sesión no iniciada o expirada"})
			return
		}

		c.Set(ContextUserID, user.ID)
		c.Set(ContextUser, user)
		c.Next()
	}
}
