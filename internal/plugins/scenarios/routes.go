package scenarios

import "github.com/labstack/echo/v4"

// RegisterRoutes adds the catalog routes to an admin-only group.
func RegisterRoutes(admin *echo.Group, h *Handler) {
	admin.POST("/scenarios", h.CreateScenario)
	admin.GET("/scenarios", h.ListScenarios)
	admin.GET("/scenarios/:scenarioID", h.GetScenario)

	admin.POST("/scenarios/:scenarioID/tags", h.CreateTag)
	admin.GET("/scenarios/:scenarioID/tags", h.ListTags)
	admin.POST("/scenarios/:scenarioID/roles", h.CreateRole)
	admin.GET("/scenarios/:scenarioID/roles", h.ListRoles)
	admin.POST("/scenarios/:scenarioID/items", h.CreateItem)
	admin.GET("/scenarios/:scenarioID/items", h.ListItems)
	admin.POST("/scenarios/:scenarioID/actions", h.CreateAction)
	admin.GET("/scenarios/:scenarioID/actions", h.ListActions)
	admin.GET("/scenarios/:scenarioID/actions/:actionID", h.GetAction)
}
