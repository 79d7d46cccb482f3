package middleware

import (
	"strings"

	"github.com/a-h/templ"
	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/larp/internal/templates/pages"
)

// Render writes a templ component with the given status code. The request
// ID is made available to the component's context.
func Render(c echo.Context, statusCode int, component templ.Component) error {
	ctx := pages.WithRequestID(c.Request().Context(), GetRequestID(c))

	c.Response().Header().Set(echo.HeaderContentType, echo.MIMETextHTMLCharsetUTF8)
	c.Response().WriteHeader(statusCode)
	return component.Render(ctx, c.Response().Writer)
}

// IsAPI reports whether the request targets the JSON API, which gets JSON
// errors instead of HTML pages.
func IsAPI(c echo.Context) bool {
	return strings.HasPrefix(c.Request().URL.Path, "/api")
}
