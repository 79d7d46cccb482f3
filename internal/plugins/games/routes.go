package games

import (
	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/larp/internal/plugins/access"
)

// RegisterRoutes adds game routes. admin is the admin-only /api/v1 group;
// game is the /api/v1/games/:gameID group, which already checks that the
// key belongs to the game.
func RegisterRoutes(admin, game *echo.Group, h *Handler) {
	admin.POST("/games", h.CreateGame)
	admin.GET("/games", h.ListGames)

	operator := access.RequireScope(access.ScopeOperator)

	game.GET("", h.GetGame)
	game.POST("/start", h.StartGame, operator)
	game.POST("/finish", h.FinishGame, operator)
	game.GET("/roles", h.ListRoleStates, operator)
	game.POST("/roles", h.AssignRole, operator)
	game.GET("/roles/:roleStateID", h.GetRoleState, access.RequireRoleStateMatch())
	game.PUT("/roles/:roleStateID/tags", h.ReplaceTags, operator)
}
