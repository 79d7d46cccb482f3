package actionlog

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/larp/internal/apperror"
	"github.com/keyxmakerx/larp/internal/plugins/access"
	"github.com/keyxmakerx/larp/internal/sanitize"
)

// Handler serves the action log dashboards.
type Handler struct {
	service LogService
}

// NewHandler creates a new action log handler.
func NewHandler(service LogService) *Handler {
	return &Handler{service: service}
}

func pageParam(c echo.Context) int {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	return page
}

func timeParam(c echo.Context, name string) (time.Time, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, apperror.NewBadRequest(name + " must be an RFC 3339 timestamp")
	}
	return t.UTC(), nil
}

// AdminFeed handles GET /api/v1/games/:gameID/log. Optional query
// parameters: performer, item, succeeded, since, until, page.
func (h *Handler) AdminFeed(c echo.Context) error {
	filter := Filter{
		GameID:               c.Param("gameID"),
		PerformerRoleStateID: c.QueryParam("performer"),
		TargetItemID:         c.QueryParam("item"),
	}
	if raw := c.QueryParam("succeeded"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return apperror.NewBadRequest("succeeded must be true or false")
		}
		filter.Succeeded = &v
	}
	var err error
	if filter.Since, err = timeParam(c, "since"); err != nil {
		return err
	}
	if filter.Until, err = timeParam(c, "until"); err != nil {
		return err
	}

	page, err := h.service.AdminFeed(c.Request().Context(), filter, pageParam(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, page)
}

// GetEntry handles GET /api/v1/games/:gameID/log/:entryID.
func (h *Handler) GetEntry(c echo.Context) error {
	e, err := h.service.Get(c.Request().Context(), c.Param("gameID"), c.Param("entryID"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, e)
}

// PlayerHistory handles GET /api/v1/games/:gameID/roles/:roleStateID/log.
// Players get messages without GM-only passages.
func (h *Handler) PlayerHistory(c echo.Context) error {
	page, err := h.service.PlayerHistory(c.Request().Context(), c.Param("gameID"), c.Param("roleStateID"), pageParam(c))
	if err != nil {
		return err
	}
	if access.ActingRoleStateID(c) != "" {
		for i := range page.Entries {
			page.Entries[i].Message = sanitize.StripSecretsHTML(page.Entries[i].Message)
		}
	}
	return c.JSON(http.StatusOK, page)
}
