// Package middleware provides the HTTP middleware chain for the API server:
// request IDs, structured request logging, panic recovery, rate limiting,
// body size limits, security headers, and request timeouts.
package middleware

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// RequestIDHeader is the header used to propagate request IDs.
const RequestIDHeader = "X-Request-ID"

// RequestID returns middleware that tags every request with an ID. An
// inbound X-Request-ID is preserved so callers can correlate across
// services; otherwise a new UUID is generated. The ID is stored on the
// echo context under "request_id" and echoed in the response header.
func RequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			rid := c.Request().Header.Get(RequestIDHeader)
			if rid == "" {
				rid = uuid.NewString()
			}
			c.Set("request_id", rid)
			c.Response().Header().Set(RequestIDHeader, rid)
			return next(c)
		}
	}
}
