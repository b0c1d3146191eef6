package middleware

import (
	"github.com/labstack/echo/v4"
)

// SecurityHeaders returns middleware that sets security response headers on
// every request. Responses carry patient medical data, so caching is also
// disabled.
func SecurityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()

			// No MIME sniffing, no framing.
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")

			// Strict CSP for a JSON API: deny all resource loading and
			// frame embedding.
			h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")

			// Do not send Referer to downstream services.
			h.Set("Referrer-Policy", "no-referrer")

			// Responses may contain medical details; keep them out of
			// shared caches.
			h.Set("Cache-Control", "no-store")

			return next(c)
		}
	}
}
