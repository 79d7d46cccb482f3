package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/larp/internal/apperror"
)

// Recovery turns a panicking handler into a 500 handled by the app's error
// handler. http.ErrAbortHandler is re-raised so net/http can drop the
// connection quietly, as it does for streaming handlers.
func Recovery() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (returnErr error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				if r == http.ErrAbortHandler {
					panic(r)
				}
				slog.Error("panic recovered",
					slog.Any("panic", r),
					slog.String("request_id", GetRequestID(c)),
					slog.String("method", c.Request().Method),
					slog.String("route", c.Path()),
					slog.String("stack", string(debug.Stack())),
				)
				returnErr = apperror.NewInternal(fmt.Errorf("panic in %s %s: %v", c.Request().Method, c.Path(), r))
			}()

			return next(c)
		}
	}
}
