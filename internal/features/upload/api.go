package upload

import (
	"pipeline-crm/internal/common/api"

	"github.com/gofiber/fiber/v2"
)

type UploadApi struct {
	controller *UploadController
}

func NewUploadApi(controller *UploadController) api.Route {
	return &UploadApi{
		controller: controller,
	}
}

// Setup registers the upload route
func (h *UploadApi) Setup(app *fiber.App) {
	app.Post("/api/upload/csv", h.controller.ImportFile)
}
