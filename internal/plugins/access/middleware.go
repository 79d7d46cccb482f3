package access

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/larp/internal/apperror"
)

const keyContextKey = "access_key"

// GetKey returns the authenticated key, or nil outside RequireKey.
func GetKey(c echo.Context) *Key {
	key, _ := c.Get(keyContextKey).(*Key)
	return key
}

// SetKey stores the authenticated key for later handlers.
func SetKey(c echo.Context, key *Key) {
	c.Set(keyContextKey, key)
}

// bearerToken reads "Authorization: Bearer <key>". Browsers cannot set
// headers on websocket upgrades, so the stream may pass access_token in
// the query string instead.
func bearerToken(c echo.Context) string {
	if h := c.Request().Header.Get(echo.HeaderAuthorization); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if c.IsWebSocket() {
		return c.QueryParam("access_token")
	}
	return ""
}

// RequireKey authenticates the request's access key.
func RequireKey(service KeyService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := bearerToken(c)
			if token == "" {
				return apperror.NewUnauthorized("access key required, use: Authorization: Bearer <key>")
			}
			key, err := service.Authenticate(c.Request().Context(), token)
			if err != nil {
				return err
			}
			SetKey(c, key)
			return next(c)
		}
	}
}

// RequireScope rejects keys below the given scope.
func RequireScope(required Scope) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := GetKey(c)
			if key == nil {
				return apperror.NewMissingContext()
			}
			if !key.Scope.Includes(required) {
				return apperror.NewForbidden("this key cannot perform that operation")
			}
			return next(c)
		}
	}
}

// RequireGameMatch rejects keys bound to a different game than :gameID.
func RequireGameMatch() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := GetKey(c)
			if key == nil {
				return apperror.NewMissingContext()
			}
			if !key.AllowsGame(c.Param("gameID")) {
				return apperror.NewForbidden("this key is not valid for this game")
			}
			return next(c)
		}
	}
}

// RequireRoleStateMatch lets player keys reach only their own
// :roleStateID.
func RequireRoleStateMatch() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := GetKey(c)
			if key == nil {
				return apperror.NewMissingContext()
			}
			if !key.AllowsRoleState(c.Param("roleStateID")) {
				return apperror.NewForbidden("players may only act for their own role")
			}
			return next(c)
		}
	}
}

// ActingRoleStateID returns the role state a player key is bound to, or ""
// for operator and admin keys.
func ActingRoleStateID(c echo.Context) string {
	key := GetKey(c)
	if key == nil || key.Scope != ScopePlayer || key.RoleStateID == nil {
		return ""
	}
	return *key.RoleStateID
}
