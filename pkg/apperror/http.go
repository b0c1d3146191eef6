package apperror

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// ToHTTP converts an application error into an echo HTTP error using the
// code-to-status mapping. Errors without a code become a generic 500 so
// internal details never reach the client.
func ToHTTP(err error) error {
	if code, ok := CodeOf(err); ok {
		return echo.NewHTTPError(HTTPStatus(code), err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
}
