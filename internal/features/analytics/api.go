package analytics

import (
	"pipeline-crm/internal/common/api"

	"github.com/gofiber/fiber/v2"
)

type AnalyticsApi struct {
	controller *AnalyticsController
}

func NewAnalyticsApi(controller *AnalyticsController) api.Route {
	return &AnalyticsApi{
		controller: controller,
	}
}

// Setup registers all analytics routes
func (h *AnalyticsApi) Setup(app *fiber.App) {
	app.Get("/api/kpis", h.controller.GetKPIs)

	analyticsGroup := app.Group("/api/analytics")
	analyticsGroup.Get("/sectors", h.controller.GetSectors)
	analyticsGroup.Get("/deadlines", h.controller.GetDeadlines)
}
