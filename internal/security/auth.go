package security

import (
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"

	"github.com/recallhq/recall-service/internal/config"
)

const (
	// ContextKeyUserID is the gin context key for the authenticated user ID.
	ContextKeyUserID = "userID"
	// ContextKeyClientID is the gin context key for the calling client ID.
	ContextKeyClientID = "clientID"
)

// AuthMiddleware authenticates the calling client by API key and resolves
// the end user from the bearer token. The service trusts its clients (the
// chat hosts) to assert user identity; the API key is what gates access.
//
// When no API keys are configured the middleware only requires a bearer
// token, which suits single-tenant local deployments.
func AuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if len(cfg.APIKeys) > 0 {
			apiKey := strings.TrimSpace(c.GetHeader("X-API-Key"))
			clientID, ok := cfg.APIKeys[apiKey]
			if !ok {
				log.Info("Auth rejected: unknown API key", "method", c.Request.Method, "path", c.Request.URL.Path)
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid API key"})
				return
			}
			c.Set(ContextKeyClientID, clientID)
		}

		auth := c.GetHeader("Authorization")
		if auth == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing Authorization header"})
			return
		}
		token, found := strings.CutPrefix(auth, "Bearer ")
		if !found || strings.TrimSpace(token) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid Authorization header; expected Bearer token"})
			return
		}
		c.Set(ContextKeyUserID, strings.TrimSpace(token))
		c.Next()
	}
}

// UserID returns the authenticated user ID from the gin context.
func UserID(c *gin.Context) string {
	return c.GetString(ContextKeyUserID)
}
