package sync

import (
	"pipeline-crm/internal/common/api"

	"github.com/gofiber/fiber/v2"
)

type SyncApi struct {
	controller *SyncController
}

func NewSyncApi(controller *SyncController) api.Route {
	return &SyncApi{
		controller: controller,
	}
}

// Setup registers all sync routes
func (h *SyncApi) Setup(app *fiber.App) {
	syncGroup := app.Group("/api/sync")

	syncGroup.Get("/connectors/config", h.controller.ListConfigs)
	syncGroup.Put("/connectors/config/:provider", h.controller.SaveConfig)
	syncGroup.Post("/connectors/test/:provider", h.controller.TestConnection)
	syncGroup.Post("/:provider/import", h.controller.Import)
	syncGroup.Post("/:provider/export", h.controller.Export)
	syncGroup.Get("/logs", h.controller.ListLogs)
}
