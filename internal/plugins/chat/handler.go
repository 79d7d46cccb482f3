package chat

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/larp/internal/apperror"
	"github.com/keyxmakerx/larp/internal/plugins/access"
)

// Handler serves the game chat.
type Handler struct {
	service ChatService
}

// NewHandler creates a new chat handler.
func NewHandler(service ChatService) *Handler {
	return &Handler{service: service}
}

// Post handles POST /api/v1/games/:gameID/chat. The author is the calling
// key's name.
func (h *Handler) Post(c echo.Context) error {
	key := access.GetKey(c)
	if key == nil {
		return apperror.NewMissingContext()
	}
	var input PostInput
	if err := c.Bind(&input); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}
	msg, err := h.service.Post(c.Request().Context(), c.Param("gameID"), access.ActingRoleStateID(c), key.Name, input)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, msg)
}

// History handles GET /api/v1/games/:gameID/chat?before=&limit=.
func (h *Handler) History(c echo.Context) error {
	var before time.Time
	if raw := c.QueryParam("before"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return apperror.NewBadRequest("before must be an RFC 3339 timestamp")
		}
		before = t.UTC()
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	out, err := h.service.History(c.Request().Context(), c.Param("gameID"), before, limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{
		"data":  out,
		"total": len(out),
	})
}

// RegisterRoutes adds chat routes to the /api/v1/games/:gameID group.
func RegisterRoutes(game *echo.Group, h *Handler) {
	game.GET("/chat", h.History)
	game.POST("/chat", h.Post)
}
