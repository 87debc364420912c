package deal

import (
	"pipeline-crm/internal/common/api"

	"github.com/gofiber/fiber/v2"
)

type DealApi struct {
	controller *DealController
}

func NewDealApi(controller *DealController) api.Route {
	return &DealApi{
		controller: controller,
	}
}

// Setup registers all deal routes
func (h *DealApi) Setup(app *fiber.App) {
	dealGroup := app.Group("/api/deals")

	dealGroup.Get("/", h.controller.ListDeals)
	dealGroup.Post("/", h.controller.CreateDeal)
	dealGroup.Put("/:id", h.controller.UpdateDeal)
	dealGroup.Delete("/:id", h.controller.DeleteDeal)
	dealGroup.Delete("/", h.controller.ClearDeals)
}
