package upload

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

type UploadController struct {
	Service UploadService
}

func NewUploadController(service UploadService) *UploadController {
	return &UploadController{
		Service: service,
	}
}

// ImportFile godoc
func (ctrl *UploadController) ImportFile(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false, "error": "missing multipart field 'file'",
		})
	}

	file, err := fileHeader.Open()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false, "error": "could not open uploaded file",
		})
	}
	defer file.Close()

	result, err := ctrl.Service.ImportFile(c.Context(), fileHeader.Filename, file)
	if err != nil {
		status := fiber.StatusInternalServerError
		if errors.Is(err, ErrInvalidFile) {
			status = fiber.StatusBadRequest
		}
		return c.Status(status).JSON(fiber.Map{
			"success": false, "error": err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    result,
	})
}
