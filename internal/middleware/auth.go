package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// Context keys for the authenticated caller identity.
const (
	CtxUserID    = "auth_user_id"
	CtxUserEmail = "auth_user_email"
)

// APIKeyAuth rejects requests without the configured API key. Identity
// resolution itself lives in an upstream auth service; this layer only
// checks the shared key and carries the forwarded identity headers into
// the request context.
func APIKeyAuth(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiKey != "" && c.GetHeader("X-Api-Key") != apiKey {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid api key"})
			c.Abort()
			return
		}

		if email := c.GetHeader("X-User-Email"); email != "" {
			c.Set(CtxUserEmail, email)
		}
		if idStr := c.GetHeader("X-User-Id"); idStr != "" {
			if id, err := strconv.Atoi(idStr); err == nil {
				c.Set(CtxUserID, id)
			}
		}

		c.Next()
	}
}
