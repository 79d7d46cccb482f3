package access

import "github.com/labstack/echo/v4"

// RegisterRoutes adds key routes. api is the authenticated /api/v1 group
// and game its /games/:gameID subgroup, which already enforces the game
// match.
func RegisterRoutes(api, game *echo.Group, h *Handler) {
	api.GET("/keys/me", h.WhoAmI)

	game.GET("/keys", h.ListKeys, RequireScope(ScopeOperator))
	game.POST("/keys", h.CreateKey, RequireScope(ScopeOperator))
	game.DELETE("/keys/:keyID", h.RevokeKey, RequireScope(ScopeOperator))
}
