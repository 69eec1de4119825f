package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// securityHeaders returns middleware that sets standard security response headers.
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
		c.Next()
	}
}

// requireAPIKey guards the /api routes. The api_key header must equal the
// configured token; a missing key and a wrong key are distinct failures.
func requireAPIKey(validate func(string) bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader("api_key")
		if key == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, errAPIKeyMissing)
			return
		}
		if !validate(key) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errAPIKeyInvalid)
			return
		}
		c.Next()
	}
}
