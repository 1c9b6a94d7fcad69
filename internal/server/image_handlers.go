package server

import (
	"github.com/gofiber/fiber/v2"

	"feedhub/internal/middleware"
	"feedhub/internal/models"
)

// StoreImage handles PUT /post-image. The stored path is later passed as
// imageUrl to the GraphQL createPost and updatePost mutations.
// @Summary Upload post image
// @Tags feed
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param image formData file true "png or jpeg image"
// @Success 201 {object} object{message=string,filePath=string}
// @Success 200 {object} object{message=string}
// @Failure 401 {object} models.ErrorResponse
// @Router /post-image [put]
func (s *Server) StoreImage(c *fiber.Ctx) error {
	if !middleware.AuthFrom(c).Authenticated {
		return respond(c, models.NewUnauthorizedError("Not authenticated!"))
	}

	upload, err := readUpload(c, "image")
	if err != nil {
		return respond(c, err)
	}
	if upload == nil {
		return c.JSON(fiber.Map{"message": "No file provided!"})
	}

	handle, err := s.attachments.Store(c.UserContext(), upload)
	if err != nil {
		return respond(c, err)
	}
	if handle == "" {
		return c.JSON(fiber.Map{"message": "No file provided!"})
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":  "File stored.",
		"filePath": handle,
	})
}
