package gameplay

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/larp/internal/apperror"
	"github.com/keyxmakerx/larp/internal/plugins/access"
	"github.com/keyxmakerx/larp/internal/plugins/scenarios"
	"github.com/keyxmakerx/larp/internal/sanitize"
)

// Handler serves the player-facing gameplay API.
type Handler struct {
	service GameplayService
}

// NewHandler creates a new gameplay handler.
func NewHandler(service GameplayService) *Handler {
	return &Handler{service: service}
}

// hideSecrets reports whether the caller is a player, who never sees
// GM-only passages.
func hideSecrets(c echo.Context) bool {
	return access.ActingRoleStateID(c) != ""
}

// forViewer strips GM-only passages from every player-facing text of the
// actions when the caller is a player.
func forViewer(c echo.Context, actions []scenarios.Action) []scenarios.Action {
	if !hideSecrets(c) {
		return actions
	}
	out := make([]scenarios.Action, len(actions))
	for i, a := range actions {
		a.Description = sanitize.StripSecretsHTML(a.Description)
		a.MessageOnSuccess = sanitize.StripSecretsHTML(a.MessageOnSuccess)
		a.MessageOnFailure = sanitize.StripSecretsHTML(a.MessageOnFailure)
		out[i] = a
	}
	return out
}

// ListActions handles GET /api/v1/games/:gameID/roles/:roleStateID/actions?item=.
func (h *Handler) ListActions(c echo.Context) error {
	actions, err := h.service.AvailableActions(c.Request().Context(),
		c.Param("gameID"), c.Param("roleStateID"), c.QueryParam("item"))
	if err != nil {
		return err
	}
	actions = forViewer(c, actions)
	return c.JSON(http.StatusOK, map[string]any{
		"data":  actions,
		"total": len(actions),
	})
}

// ScanItem handles GET /api/v1/games/:gameID/roles/:roleStateID/items/by-code/:code.
func (h *Handler) ScanItem(c echo.Context) error {
	result, err := h.service.ScanItem(c.Request().Context(),
		c.Param("gameID"), c.Param("roleStateID"), c.Param("code"))
	if err != nil {
		return err
	}
	result.Actions = forViewer(c, result.Actions)
	if hideSecrets(c) {
		item := *result.Item
		item.Description = sanitize.StripSecretsHTML(item.Description)
		result.Item = &item
	}
	return c.JSON(http.StatusOK, result)
}

// Preview handles POST /api/v1/games/:gameID/roles/:roleStateID/actions/:actionID/preview.
func (h *Handler) Preview(c echo.Context) error {
	result, err := h.service.Preview(c.Request().Context(),
		c.Param("gameID"), c.Param("roleStateID"), c.Param("actionID"))
	if err != nil {
		return err
	}
	if hideSecrets(c) {
		result.Outcome.Message = sanitize.StripSecretsHTML(result.Outcome.Message)
	}
	return c.JSON(http.StatusOK, result)
}

// Perform handles POST /api/v1/games/:gameID/actions. Player keys act for
// their own role state; operators name the performer.
func (h *Handler) Perform(c echo.Context) error {
	var req SubmitRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}
	req.GameID = c.Param("gameID")

	if own := access.ActingRoleStateID(c); own != "" {
		if req.PerformerRoleStateID == "" {
			req.PerformerRoleStateID = own
		}
		if req.PerformerRoleStateID != own {
			return apperror.NewForbidden("players may only act for their own role")
		}
	}
	if req.PerformerRoleStateID == "" {
		return apperror.NewBadRequest("performer_role_state_id is required")
	}
	if req.ActionID == "" {
		return apperror.NewBadRequest("action_id is required")
	}

	entry, err := h.service.Perform(c.Request().Context(), req)
	if err != nil {
		return err
	}
	if hideSecrets(c) {
		visible := *entry
		visible.Message = sanitize.StripSecretsHTML(visible.Message)
		entry = &visible
	}
	return c.JSON(http.StatusCreated, entry)
}
