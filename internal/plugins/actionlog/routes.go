package actionlog

import (
	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/larp/internal/plugins/access"
)

// RegisterRoutes adds the log routes to the /api/v1/games/:gameID group.
func RegisterRoutes(game *echo.Group, h *Handler) {
	operator := access.RequireScope(access.ScopeOperator)

	game.GET("/log", h.AdminFeed, operator)
	game.GET("/log/:entryID", h.GetEntry, operator)
	game.GET("/roles/:roleStateID/log", h.PlayerHistory, access.RequireRoleStateMatch())
}
