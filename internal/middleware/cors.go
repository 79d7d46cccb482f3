package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// CORSConfig holds configuration for the CORS middleware.
type CORSConfig struct {
	// AllowedOrigins lists origins permitted to call the API, e.g. the
	// player app and the operator dashboard. "*" allows any origin.
	AllowedOrigins []string

	// AllowCredentials lets browsers send credentials cross-origin. Access
	// keys travel in the Authorization header, so this is rarely needed.
	AllowCredentials bool
}

var (
	corsMethods = strings.Join([]string{
		http.MethodGet,
		http.MethodPost,
		http.MethodPut,
		http.MethodDelete,
		http.MethodOptions,
	}, ", ")

	corsHeaders = strings.Join([]string{
		echo.HeaderContentType,
		echo.HeaderAuthorization,
		echo.HeaderXRequestID,
	}, ", ")

	corsExposed = strings.Join([]string{
		echo.HeaderXRequestID,
		"X-RateLimit-Limit",
		"X-RateLimit-Remaining",
		"Retry-After",
	}, ", ")
)

// CORS handles cross-origin requests from the player and operator clients.
// Requests from unlisted origins proceed without CORS headers and are
// blocked by the browser.
func CORS(cfg CORSConfig) echo.MiddlewareFunc {
	allowAll := false
	originSet := make(map[string]bool, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		if o == "*" {
			allowAll = true
		}
		originSet[o] = true
	}

	if allowAll && cfg.AllowCredentials {
		slog.Warn("CORS misconfiguration: wildcard origin with credentials; credentials disabled")
		cfg.AllowCredentials = false
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			res := c.Response()
			origin := req.Header.Get(echo.HeaderOrigin)

			if origin == "" || !(allowAll || originSet[origin]) {
				return next(c)
			}

			res.Header().Set(echo.HeaderAccessControlAllowOrigin, origin)
			res.Header().Add(echo.HeaderVary, echo.HeaderOrigin)
			if cfg.AllowCredentials {
				res.Header().Set(echo.HeaderAccessControlAllowCredentials, "true")
			}

			if req.Method == http.MethodOptions {
				res.Header().Set(echo.HeaderAccessControlAllowMethods, corsMethods)
				res.Header().Set(echo.HeaderAccessControlAllowHeaders, corsHeaders)
				res.Header().Set(echo.HeaderAccessControlMaxAge, "3600")
				return c.NoContent(http.StatusNoContent)
			}

			res.Header().Set(echo.HeaderAccessControlExposeHeaders, corsExposed)
			return next(c)
		}
	}
}
