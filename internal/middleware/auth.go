package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// RequireAPIKey guards mutating ops endpoints with a shared key carried in
// X-API-Key. An empty configured key disables the check, for local use.
func RequireAPIKey(opsKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if opsKey == "" {
			c.Next()
			return
		}

		provided := c.GetHeader("X-API-Key")
		if subtle.ConstantTimeCompare([]byte(provided), []byte(opsKey)) != 1 {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid api key"})
			c.Abort()
			return
		}
		c.Next()
	}
}
