package middleware

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

// BodyLimit returns middleware that caps the request body size. Patient
// query submissions carry free-text descriptions, so the cap keeps a single
// client from posting unbounded payloads.
//
// The limit is a human-readable string: "1M", "512K", "2G". A bare number
// is bytes. Requests over the limit get HTTP 413.
func BodyLimit(limit string) echo.MiddlewareFunc {
	maxBytes := parseLimit(limit)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.Body == nil || req.Body == http.NoBody {
				return next(c)
			}

			// Content-Length allows early rejection; the limiting reader
			// still enforces the cap when the header is absent or lying.
			if req.ContentLength > maxBytes {
				return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "request body too large")
			}

			req.Body = &limitedReadCloser{
				ReadCloser: req.Body,
				remaining:  maxBytes,
			}
			return next(c)
		}
	}
}

// limitedReadCloser wraps an io.ReadCloser and fails reads once the limit
// is exceeded.
type limitedReadCloser struct {
	io.ReadCloser
	remaining int64
	exceeded  bool
}

func (r *limitedReadCloser) Read(p []byte) (n int, err error) {
	if r.exceeded {
		return 0, echo.NewHTTPError(http.StatusRequestEntityTooLarge, "request body too large")
	}

	// Read one byte past the remaining budget to detect overflow.
	toRead := int64(len(p))
	if toRead > r.remaining+1 {
		toRead = r.remaining + 1
	}

	n, err = r.ReadCloser.Read(p[:toRead])
	r.remaining -= int64(n)

	if r.remaining < 0 {
		r.exceeded = true
		return 0, echo.NewHTTPError(http.StatusRequestEntityTooLarge, "request body too large")
	}
	return n, err
}

// parseLimit converts a size string ("1M", "512K", "2G", "1024") to bytes,
// defaulting to 1 MB on empty or unparseable input.
func parseLimit(s string) int64 {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return 1 << 20
	}

	var multiplier int64 = 1
	for _, suffix := range []struct {
		text string
		mult int64
	}{
		{"GB", 1 << 30}, {"G", 1 << 30},
		{"MB", 1 << 20}, {"M", 1 << 20},
		{"KB", 1 << 10}, {"K", 1 << 10},
	} {
		if strings.HasSuffix(s, suffix.text) {
			multiplier = suffix.mult
			s = strings.TrimSuffix(s, suffix.text)
			break
		}
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 1 << 20
	}
	return n * multiplier
}
