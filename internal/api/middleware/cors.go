package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const defaultAllowHeaders = "Origin, Content-Type, Accept, Authorization"

// OriginAllowed reports whether origin appears in allowedOrigins, a
// comma-separated list or "*".
func OriginAllowed(allowedOrigins, origin string) bool {
	if strings.TrimSpace(allowedOrigins) == "*" {
		return true
	}
	if origin == "" {
		return false
	}
	for _, o := range strings.Split(allowedOrigins, ",") {
		if strings.TrimSpace(o) == origin {
			return true
		}
	}
	return false
}

// CORSMiddleware returns a Gin middleware that handles CORS preflight and headers.
// allowedOrigins is a comma-separated list of allowed origins, or "*" for all.
// Listed origins are echoed back with credentials allowed; the wildcard never
// allows credentials. Requests from other origins get no CORS headers.
func CORSMiddleware(allowedOrigins string) gin.HandlerFunc {
	wildcard := strings.TrimSpace(allowedOrigins) == "*"

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		allowed := false
		switch {
		case wildcard:
			c.Header("Access-Control-Allow-Origin", "*")
			allowed = true
		case OriginAllowed(allowedOrigins, origin):
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Vary", "Origin")
			allowed = true
		}

		if allowed {
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			if requested := c.Request.Header.Get("Access-Control-Request-Headers"); requested != "" {
				c.Header("Access-Control-Allow-Headers", requested)
			} else {
				c.Header("Access-Control-Allow-Headers", defaultAllowHeaders)
			}
			c.Header("Access-Control-Max-Age", "86400")
		}

		if c.Request.Method == http.MethodOptions && origin != "" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
