package analytics

import (
	"pipeline-crm/internal/features/deal"

	"github.com/gofiber/fiber/v2"
)

type AnalyticsController struct {
	Service AnalyticsService
}

func NewAnalyticsController(service AnalyticsService) *AnalyticsController {
	return &AnalyticsController{
		Service: service,
	}
}

func filtersFromQuery(c *fiber.Ctx) deal.Filters {
	var f deal.Filters
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

// GetKPIs godoc
func (ctrl *AnalyticsController) GetKPIs(c *fiber.Ctx) error {
	kpis, err := ctrl.Service.KPIs(c.Context(), filtersFromQuery(c))
	if err != nil {
		return internalError(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    kpis,
	})
}

// GetSectors godoc
func (ctrl *AnalyticsController) GetSectors(c *fiber.Ctx) error {
	breakdown, err := ctrl.Service.Sectors(c.Context(), filtersFromQuery(c))
	if err != nil {
		return internalError(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    breakdown,
	})
}

// GetDeadlines godoc
func (ctrl *AnalyticsController) GetDeadlines(c *fiber.Ctx) error {
	deadlines, err := ctrl.Service.Deadlines(c.Context(), filtersFromQuery(c))
	if err != nil {
		return internalError(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    deadlines,
	})
}

func internalError(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"success": false, "error": err.Error(),
	})
}
