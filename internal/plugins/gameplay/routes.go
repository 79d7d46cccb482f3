package gameplay

import (
	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/larp/internal/plugins/access"
)

// RegisterRoutes adds gameplay routes to the /api/v1/games/:gameID group.
func RegisterRoutes(game *echo.Group, h *Handler) {
	own := access.RequireRoleStateMatch()

	game.GET("/roles/:roleStateID/actions", h.ListActions, own)
	game.GET("/roles/:roleStateID/items/by-code/:code", h.ScanItem, own)
	game.POST("/roles/:roleStateID/actions/:actionID/preview", h.Preview, own)
	game.POST("/actions", h.Perform)
}
