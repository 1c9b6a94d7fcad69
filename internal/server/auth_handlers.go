package server

import (
	"github.com/gofiber/fiber/v2"

	"feedhub/internal/middleware"
	"feedhub/internal/models"
	"feedhub/internal/service"
)

// Signup handles PUT /auth/signup
// @Summary User signup
// @Description Register a new user account
// @Tags auth
// @Accept json
// @Produce json
// @Param request body object{email=string,name=string,password=string} true "Signup request"
// @Success 201 {object} object{message=string,userId=string}
// @Failure 409 {object} models.ErrorResponse
// @Failure 422 {object} models.ErrorResponse
// @Router /auth/signup [put]
func (s *Server) Signup(c *fiber.Ctx) error {
	var req service.RegisterInput
	if err := c.BodyParser(&req); err != nil {
		return respond(c, models.NewValidationError("Invalid request body"))
	}

	user, err := s.authService.Register(c.UserContext(), req)
	if err != nil {
		return respond(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "User created!",
		"userId":  formatID(user.ID),
	})
}

// Login handles POST /auth/login
// @Summary User login
// @Description Authenticate user and return JWT token
// @Tags auth
// @Accept json
// @Produce json
// @Param request body object{email=string,password=string} true "Login credentials"
// @Success 200 {object} service.AuthResult
// @Failure 401 {object} models.ErrorResponse
// @Router /auth/login [post]
func (s *Server) Login(c *fiber.Ctx) error {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&req); err != nil {
		return respond(c, models.NewValidationError("Invalid request body"))
	}

	res, err := s.authService.Authenticate(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(res)
}

// GetStatus handles GET /auth/status
// @Summary Get status
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{status=string}
// @Failure 401 {object} models.ErrorResponse
// @Router /auth/status [get]
func (s *Server) GetStatus(c *fiber.Ctx) error {
	status, err := s.userService.GetStatus(c.UserContext(), middleware.AuthFrom(c))
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(fiber.Map{"status": status})
}

// UpdateStatus handles PATCH /auth/status
// @Summary Update status
// @Tags auth
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{status=string} true "New status"
// @Success 200 {object} object{message=string}
// @Failure 401 {object} models.ErrorResponse
// @Failure 422 {object} models.ErrorResponse
// @Router /auth/status [patch]
func (s *Server) UpdateStatus(c *fiber.Ctx) error {
	ac := middleware.AuthFrom(c)
	var req struct {
		Status string `json:"status"`
	}
	if err := c.BodyParser(&req); err != nil && ac.Authenticated {
		return respond(c, models.NewValidationError("Invalid request body"))
	}

	if _, err := s.userService.UpdateStatus(c.UserContext(), ac, req.Status); err != nil {
		return respond(c, err)
	}
	return c.JSON(fiber.Map{"message": "User updated."})
}
