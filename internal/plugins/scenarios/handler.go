package scenarios

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/larp/internal/apperror"
)

// Handler serves the admin catalog API.
type Handler struct {
	service ScenarioService
}

// NewHandler creates a new scenario handler.
func NewHandler(service ScenarioService) *Handler {
	return &Handler{service: service}
}

func list[T any](c echo.Context, items []T) error {
	return c.JSON(http.StatusOK, map[string]any{
		"data":  items,
		"total": len(items),
	})
}

// requireScenario loads :scenarioID so that children of unknown
// scenarios 404 instead of failing a foreign key.
func (h *Handler) requireScenario(c echo.Context) (*Scenario, error) {
	return h.service.GetScenario(c.Request().Context(), c.Param("scenarioID"))
}

// CreateScenario handles POST /api/v1/scenarios.
func (h *Handler) CreateScenario(c echo.Context) error {
	var input CreateScenarioInput
	if err := c.Bind(&input); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}
	s, err := h.service.CreateScenario(c.Request().Context(), input)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, s)
}

// ListScenarios handles GET /api/v1/scenarios.
func (h *Handler) ListScenarios(c echo.Context) error {
	out, err := h.service.ListScenarios(c.Request().Context())
	if err != nil {
		return err
	}
	return list(c, out)
}

// GetScenario handles GET /api/v1/scenarios/:scenarioID.
func (h *Handler) GetScenario(c echo.Context) error {
	s, err := h.requireScenario(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s)
}

// CreateTag handles POST /api/v1/scenarios/:scenarioID/tags.
func (h *Handler) CreateTag(c echo.Context) error {
	s, err := h.requireScenario(c)
	if err != nil {
		return err
	}
	var input CreateTagInput
	if err := c.Bind(&input); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}
	tag, err := h.service.CreateTag(c.Request().Context(), s.ID, input)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, tag)
}

// ListTags handles GET /api/v1/scenarios/:scenarioID/tags.
func (h *Handler) ListTags(c echo.Context) error {
	out, err := h.service.ListTags(c.Request().Context(), c.Param("scenarioID"))
	if err != nil {
		return err
	}
	return list(c, out)
}

// CreateRole handles POST /api/v1/scenarios/:scenarioID/roles.
func (h *Handler) CreateRole(c echo.Context) error {
	s, err := h.requireScenario(c)
	if err != nil {
		return err
	}
	var input CreateRoleInput
	if err := c.Bind(&input); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}
	role, err := h.service.CreateRole(c.Request().Context(), s.ID, input)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, role)
}

// ListRoles handles GET /api/v1/scenarios/:scenarioID/roles.
func (h *Handler) ListRoles(c echo.Context) error {
	out, err := h.service.ListRoles(c.Request().Context(), c.Param("scenarioID"))
	if err != nil {
		return err
	}
	return list(c, out)
}

// CreateItem handles POST /api/v1/scenarios/:scenarioID/items.
func (h *Handler) CreateItem(c echo.Context) error {
	s, err := h.requireScenario(c)
	if err != nil {
		return err
	}
	var input CreateItemInput
	if err := c.Bind(&input); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}
	item, err := h.service.CreateItem(c.Request().Context(), s.ID, input)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, item)
}

// ListItems handles GET /api/v1/scenarios/:scenarioID/items.
func (h *Handler) ListItems(c echo.Context) error {
	out, err := h.service.ListItems(c.Request().Context(), c.Param("scenarioID"))
	if err != nil {
		return err
	}
	return list(c, out)
}

// CreateAction handles POST /api/v1/scenarios/:scenarioID/actions.
func (h *Handler) CreateAction(c echo.Context) error {
	s, err := h.requireScenario(c)
	if err != nil {
		return err
	}
	var input CreateActionInput
	if err := c.Bind(&input); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}
	action, err := h.service.CreateAction(c.Request().Context(), s.ID, input)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, action)
}

// ListActions handles GET /api/v1/scenarios/:scenarioID/actions.
func (h *Handler) ListActions(c echo.Context) error {
	out, err := h.service.ListActions(c.Request().Context(), c.Param("scenarioID"))
	if err != nil {
		return err
	}
	return list(c, out)
}

// GetAction handles GET /api/v1/scenarios/:scenarioID/actions/:actionID.
func (h *Handler) GetAction(c echo.Context) error {
	action, err := h.service.GetAction(c.Request().Context(), c.Param("actionID"))
	if err != nil {
		return err
	}
	if action.ScenarioID != c.Param("scenarioID") {
		return apperror.NewNotFound("action not found")
	}
	return c.JSON(http.StatusOK, action)
}
