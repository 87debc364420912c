package sync

import (
	"errors"
	"strconv"

	"pipeline-crm/internal/connectors"

	"github.com/gofiber/fiber/v2"
)

type SyncController struct {
	Service SyncService
}

func NewSyncController(service SyncService) *SyncController {
	return &SyncController{
		Service: service,
	}
}

// Import godoc
func (ctrl *SyncController) Import(c *fiber.Ctx) error {
	result, err := ctrl.Service.Import(c.Context(), c.Params("provider"))
	if err != nil {
		return syncErrorResponse(c, err)
	}
	return c.JSON(resultEnvelope(result))
}

// Export godoc
func (ctrl *SyncController) Export(c *fiber.Ctx) error {
	result, err := ctrl.Service.Export(c.Context(), c.Params("provider"))
	if err != nil {
		return syncErrorResponse(c, err)
	}
	return c.JSON(resultEnvelope(result))
}

// TestConnection godoc
func (ctrl *SyncController) TestConnection(c *fiber.Ctx) error {
	result, err := ctrl.Service.TestConnection(c.Context(), c.Params("provider"))
	if err != nil {
		return syncErrorResponse(c, err)
	}
	return c.JSON(fiber.Map{
		"success": result.Success,
		"data":    result,
	})
}

// ListConfigs godoc
func (ctrl *SyncController) ListConfigs(c *fiber.Ctx) error {
	settings, err := ctrl.Service.ListConfigs(c.Context())
	if err != nil {
		return syncErrorResponse(c, err)
	}
	if settings == nil {
		settings = []ConnectorSetting{}
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    settings,
	})
}

// SaveConfig godoc
func (ctrl *SyncController) SaveConfig(c *fiber.Ctx) error {
	var update SettingUpdate
	if err := c.BodyParser(&update); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false, "error": "Invalid request body",
		})
	}

	setting, err := ctrl.Service.SaveConfig(c.Context(), c.Params("provider"), update)
	if err != nil {
		return syncErrorResponse(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    setting,
	})
}

// ListLogs godoc
func (ctrl *SyncController) ListLogs(c *fiber.Ctx) error {
	limit, _ := strconv.ParseInt(c.Query("limit"), 10, 64)

	logs, err := ctrl.Service.ListLogs(c.Context(), c.Query("provider"), limit)
	if err != nil {
		return syncErrorResponse(c, err)
	}
	if logs == nil {
		logs = []SyncLog{}
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    logs,
	})
}

func resultEnvelope(result *SyncResult) fiber.Map {
	m := fiber.Map{
		"success":          true,
		"status":           result.Status,
		"recordsProcessed": result.RecordsProcessed,
		"recordsCreated":   result.RecordsCreated,
		"recordsUpdated":   result.RecordsUpdated,
		"errors":           result.Errors,
	}
	if len(result.UnknownStatuses) > 0 {
		m["unknownStatuses"] = result.UnknownStatuses
	}
	return m
}

func syncErrorResponse(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, connectors.ErrUnknownProvider), errors.Is(err, ErrNotConfigured):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false, "error": err.Error(),
		})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false, "error": err.Error(),
		})
	}
}
