package deal

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

type DealController struct {
	Service DealService
}

func NewDealController(service DealService) *DealController {
	return &DealController{
		Service: service,
	}
}

func filtersFromQuery(c *fiber.Ctx) Filters {
	var f Filters
	if v := c.Query("status"); v != "" {
		f.Statuses = queryList(c, "status")
	}
	if v := c.Query("sector"); v != "" {
		f.Sectors = queryList(c, "sector")
	}
	if v := c.Query("assignee"); v != "" {
		f.Assignees = queryList(c, "assignee")
	}
	f.DateFrom = c.Query("date_from")
	f.DateTo = c.Query("date_to")
	f.Search = c.Query("search")
	return f
}

func queryList(c *fiber.Ctx, key string) []string {
	var values []string
	c.Context().QueryArgs().VisitAll(func(k, v []byte) {
		if string(k) == key && len(v) > 0 {
			values = append(values, string(v))
		}
	})
	return values
}

// ListDeals godoc
func (ctrl *DealController) ListDeals(c *fiber.Ctx) error {
	deals, err := ctrl.Service.ListDeals(c.Context(), filtersFromQuery(c))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false, "error": err.Error(),
		})
	}
	if deals == nil {
		deals = []Deal{}
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    deals,
	})
}

// CreateDeal godoc
func (ctrl *DealController) CreateDeal(c *fiber.Ctx) error {
	var input DealInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false, "error": "Invalid request body",
		})
	}

	created, err := ctrl.Service.CreateDeal(c.Context(), input)
	if err != nil {
		return errorResponse(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data":    created,
	})
}

// UpdateDeal godoc
func (ctrl *DealController) UpdateDeal(c *fiber.Ctx) error {
	id := c.Params("id")

	var input DealInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false, "error": "Invalid request body",
		})
	}

	updated, err := ctrl.Service.UpdateDeal(c.Context(), id, input)
	if err != nil {
		return errorResponse(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    updated,
	})
}

// DeleteDeal godoc
func (ctrl *DealController) DeleteDeal(c *fiber.Ctx) error {
	if err := ctrl.Service.DeleteDeal(c.Context(), c.Params("id")); err != nil {
		return errorResponse(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    fiber.Map{"message": "Deal deleted"},
	})
}

// ClearDeals godoc
func (ctrl *DealController) ClearDeals(c *fiber.Ctx) error {
	if err := ctrl.Service.ClearDeals(c.Context()); err != nil {
		return errorResponse(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    fiber.Map{"message": "All deals deleted"},
	})
}

func errorResponse(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false, "error": err.Error(),
		})
	case errors.Is(err, ErrValidation):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false, "error": err.Error(),
		})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false, "error": err.Error(),
		})
	}
}
