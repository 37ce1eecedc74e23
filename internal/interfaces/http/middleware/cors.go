// internal/interfaces/http/middleware/cors.go
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/your-org/milkcart-backend/internal/config"
)

// CORS returns a middleware handling cross-origin requests from the
// storefront and console frontends. In development any localhost origin
// is accepted so frontend dev servers work without config changes.
func CORS(cfg *config.Config) gin.HandlerFunc {
	allowAnyLocal := cfg.IsDevelopment()

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		if originAllowed(origin, cfg.Security.CORSAllowedOrigins, allowAnyLocal) {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
		}

		c.Header("Access-Control-Allow-Methods", strings.Join(cfg.Security.CORSAllowedMethods, ", "))
		c.Header("Access-Control-Allow-Headers", strings.Join(cfg.Security.CORSAllowedHeaders, ", "))
		c.Header("Access-Control-Allow-Credentials", "true")
		// Invoice downloads set the filename through Content-Disposition
		c.Header("Access-Control-Expose-Headers", "Content-Disposition")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func originAllowed(origin string, allowed []string, allowAnyLocal bool) bool {
	if origin == "" {
		return false
	}
	if allowAnyLocal && isLocalOrigin(origin) {
		return true
	}
	for _, entry := range allowed {
		switch {
		case entry == "*" || entry == origin:
			return true
		case strings.HasPrefix(entry, "*."):
			// Wildcard entries match any subdomain
			if strings.HasSuffix(origin, strings.TrimPrefix(entry, "*")) {
				return true
			}
		}
	}
	return false
}

func isLocalOrigin(origin string) bool {
	trimmed := strings.TrimPrefix(strings.TrimPrefix(origin, "https://"), "http://")
	host := trimmed
	if idx := strings.IndexByte(trimmed, ':'); idx >= 0 {
		host = trimmed[:idx]
	}
	return host == "localhost" || host == "127.0.0.1"
}
