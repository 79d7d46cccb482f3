package access

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/larp/internal/apperror"
)

// HolderChecker confirms a role state belongs to a game. The games plugin
// implements it; player keys must not point into another game.
type HolderChecker interface {
	CheckHolder(ctx context.Context, gameID, roleStateID string) error
}

// Handler serves key management for operators.
type Handler struct {
	service KeyService
	holders HolderChecker
}

// NewHandler creates a new access key handler.
func NewHandler(service KeyService, holders HolderChecker) *Handler {
	return &Handler{service: service, holders: holders}
}

// ListKeys returns the game's keys (GET /api/v1/games/:gameID/keys).
func (h *Handler) ListKeys(c echo.Context) error {
	keys, err := h.service.ListByGame(c.Request().Context(), c.Param("gameID"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{
		"data":  keys,
		"total": len(keys),
	})
}

// CreateKey issues an operator or player key for the game
// (POST /api/v1/games/:gameID/keys). The raw key is in the response only.
func (h *Handler) CreateKey(c echo.Context) error {
	caller := GetKey(c)
	if caller == nil {
		return apperror.NewMissingContext()
	}

	var input CreateKeyInput
	if err := c.Bind(&input); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}
	input.GameID = c.Param("gameID")

	if input.Scope == ScopeAdmin || !caller.Scope.Includes(input.Scope) {
		return apperror.NewForbidden("this key cannot issue keys of that scope")
	}

	ctx := c.Request().Context()
	if input.Scope == ScopePlayer && input.RoleStateID != "" {
		if err := h.holders.CheckHolder(ctx, input.GameID, input.RoleStateID); err != nil {
			return err
		}
	}

	result, err := h.service.CreateKey(ctx, input)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, result)
}

// RevokeKey deactivates a key of this game
// (DELETE /api/v1/games/:gameID/keys/:keyID).
func (h *Handler) RevokeKey(c echo.Context) error {
	ctx := c.Request().Context()
	key, err := h.service.GetKey(ctx, c.Param("keyID"))
	if err != nil {
		return err
	}
	if key.GameID == nil || *key.GameID != c.Param("gameID") {
		return apperror.NewNotFound("access key not found")
	}
	if caller := GetKey(c); caller != nil && caller.ID == key.ID {
		return apperror.NewBadRequest("a key cannot revoke itself")
	}

	if err := h.service.Revoke(ctx, key.ID); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// WhoAmI describes the calling key (GET /api/v1/keys/me). Clients use it
// to find their game and role state after pasting a key.
func (h *Handler) WhoAmI(c echo.Context) error {
	key := GetKey(c)
	if key == nil {
		return apperror.NewMissingContext()
	}
	return c.JSON(http.StatusOK, key)
}
