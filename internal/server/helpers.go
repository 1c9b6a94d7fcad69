package server

import (
	"io"
	"mime/multipart"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"feedhub/internal/middleware"
	"feedhub/internal/models"
	"feedhub/internal/service"
)

// parseID extracts a route parameter as a uint. Malformed ids become 0,
// which matches no post, so the service decides between 401, 404 and 403.
func parseID(c *fiber.Ctx, param string) uint {
	id, err := strconv.ParseUint(c.Params(param), 10, 64)
	if err != nil {
		return 0
	}
	return uint(id)
}

// parsePage reads ?page=, defaulting to 1.
func parsePage(c *fiber.Ctx) int {
	raw := c.Query("page")
	if raw == "" {
		return 1
	}
	page, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return page
}

func formatID(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}

// readUpload loads the multipart file in field. It returns nil, nil when the
// request carries no such file.
func readUpload(c *fiber.Ctx, field string) (*service.UploadInput, error) {
	file, err := c.FormFile(field)
	if err != nil {
		return nil, nil
	}
	return openUpload(file)
}

func openUpload(file *multipart.FileHeader) (*service.UploadInput, error) {
	src, err := file.Open()
	if err != nil {
		return nil, models.NewValidationError("Unable to read uploaded file")
	}
	defer func() { _ = src.Close() }()

	content, err := io.ReadAll(src)
	if err != nil {
		return nil, models.NewValidationError("Unable to read uploaded file")
	}
	return &service.UploadInput{
		Filename:    file.Filename,
		ContentType: file.Header.Get("Content-Type"),
		Content:     content,
	}, nil
}

// respond writes err in the error envelope and logs internal failures.
func respond(c *fiber.Ctx, err error) error {
	if appErr := models.AsAppError(err); appErr.Status >= fiber.StatusInternalServerError {
		middleware.Logger.ErrorContext(c.UserContext(), "request failed",
			"path", c.Path(),
			"error", err.Error(),
		)
	}
	return models.RespondWithError(c, err)
}
