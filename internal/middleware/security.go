package middleware

import (
	"github.com/labstack/echo/v4"
)

// SecurityHeaders sets defensive response headers. The server only serves
// JSON, a websocket stream and a bare error page, so the CSP allows no
// scripts at all.
func SecurityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()

			h.Set("Content-Security-Policy",
				"default-src 'none'; "+
					"style-src 'self' 'unsafe-inline'; "+
					"img-src 'self' data:; "+
					"connect-src 'self'; "+
					"frame-ancestors 'none'; "+
					"base-uri 'none'; "+
					"form-action 'none'",
			)
			// TLS terminates at the reverse proxy.
			h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "no-referrer")
			// The QR scanner runs in the client app, not on pages served here.
			h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=(), payment=()")

			return next(c)
		}
	}
}
