package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// RequestTimeout returns middleware that sets a context deadline on each
// request. Handlers that run past the deadline produce a 504; the deadline
// also propagates through services to repository calls and the draft
// assistant client.
func RequestTimeout(timeout time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
			defer cancel()

			c.SetRequest(c.Request().WithContext(ctx))

			done := make(chan error, 1)
			go func() {
				done <- next(c)
			}()

			select {
			case err := <-done:
				return err
			case <-ctx.Done():
				if ctx.Err() == context.DeadlineExceeded {
					// A handler mid-write has already committed the response.
					if c.Response().Committed {
						return nil
					}
					return echo.NewHTTPError(http.StatusGatewayTimeout, "request processing exceeded the allowed time limit")
				}
				return ctx.Err()
			}
		}
	}
}
