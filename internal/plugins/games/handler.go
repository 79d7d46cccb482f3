package games

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/larp/internal/apperror"
)

// Handler serves game and role state endpoints.
type Handler struct {
	service GameService
}

// NewHandler creates a new game handler.
func NewHandler(service GameService) *Handler {
	return &Handler{service: service}
}

// CreateGame handles POST /api/v1/games.
func (h *Handler) CreateGame(c echo.Context) error {
	var input CreateGameInput
	if err := c.Bind(&input); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}
	g, err := h.service.CreateGame(c.Request().Context(), input)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, g)
}

// ListGames handles GET /api/v1/games.
func (h *Handler) ListGames(c echo.Context) error {
	out, err := h.service.ListGames(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{
		"data":  out,
		"total": len(out),
	})
}

// GetGame handles GET /api/v1/games/:gameID.
func (h *Handler) GetGame(c echo.Context) error {
	g, err := h.service.GetGame(c.Request().Context(), c.Param("gameID"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, g)
}

// StartGame handles POST /api/v1/games/:gameID/start.
func (h *Handler) StartGame(c echo.Context) error {
	g, err := h.service.StartGame(c.Request().Context(), c.Param("gameID"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, g)
}

// FinishGame handles POST /api/v1/games/:gameID/finish.
func (h *Handler) FinishGame(c echo.Context) error {
	g, err := h.service.FinishGame(c.Request().Context(), c.Param("gameID"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, g)
}

// AssignRole handles POST /api/v1/games/:gameID/roles.
func (h *Handler) AssignRole(c echo.Context) error {
	var input AssignRoleInput
	if err := c.Bind(&input); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}
	result, err := h.service.AssignRole(c.Request().Context(), c.Param("gameID"), input)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, result)
}

// ListRoleStates handles GET /api/v1/games/:gameID/roles. An email query
// parameter narrows the list to that player's role.
func (h *Handler) ListRoleStates(c echo.Context) error {
	ctx := c.Request().Context()
	gameID := c.Param("gameID")

	if email := c.QueryParam("email"); email != "" {
		rs, err := h.service.FindRoleStateForPlayer(ctx, gameID, email)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, map[string]any{
			"data":  []any{rs},
			"total": 1,
		})
	}

	out, err := h.service.ListRoleStates(ctx, gameID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{
		"data":  out,
		"total": len(out),
	})
}

// GetRoleState handles GET /api/v1/games/:gameID/roles/:roleStateID.
func (h *Handler) GetRoleState(c echo.Context) error {
	rs, err := h.service.GetRoleState(c.Request().Context(), c.Param("gameID"), c.Param("roleStateID"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rs)
}

// ReplaceTags handles PUT /api/v1/games/:gameID/roles/:roleStateID/tags.
func (h *Handler) ReplaceTags(c echo.Context) error {
	var input ReplaceTagsInput
	if err := c.Bind(&input); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}
	rs, err := h.service.ReplaceAppliedTags(c.Request().Context(), c.Param("gameID"), c.Param("roleStateID"), input)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rs)
}
