package server

import (
	"github.com/gofiber/fiber/v2"

	"feedhub/internal/middleware"
	"feedhub/internal/models"
	"feedhub/internal/service"
)

// GetPosts handles GET /feed/posts?page=
// @Summary List feed
// @Description One page of posts, newest first
// @Tags feed
// @Produce json
// @Security BearerAuth
// @Param page query int false "1-based page"
// @Success 200 {object} object{message=string,posts=[]models.Post,totalItems=int}
// @Failure 401 {object} models.ErrorResponse
// @Router /feed/posts [get]
func (s *Server) GetPosts(c *fiber.Ctx) error {
	page, err := s.feedService.List(c.UserContext(), middleware.AuthFrom(c), parsePage(c))
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(fiber.Map{
		"message":    "Fetched posts successfully.",
		"posts":      page.Posts,
		"totalItems": page.TotalItems,
	})
}

// CreatePost handles POST /feed/post
// @Summary Create post
// @Tags feed
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param title formData string true "Title"
// @Param content formData string true "Content"
// @Param image formData file true "png or jpeg image"
// @Success 201 {object} object{message=string,post=models.Post,creator=models.PostCreator}
// @Failure 401 {object} models.ErrorResponse
// @Failure 422 {object} models.ErrorResponse
// @Router /feed/post [post]
func (s *Server) CreatePost(c *fiber.Ctx) error {
	in, err := postInputFromForm(c)
	if err != nil {
		return respond(c, err)
	}

	post, err := s.postService.Create(c.UserContext(), middleware.AuthFrom(c), in)
	if err != nil {
		return respond(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Post created successfully!",
		"post":    post,
		"creator": post.Creator,
	})
}

// GetPost handles GET /feed/post/:postId
// @Summary Get post
// @Tags feed
// @Produce json
// @Security BearerAuth
// @Param postId path int true "Post ID"
// @Success 200 {object} object{message=string,post=models.Post}
// @Failure 404 {object} models.ErrorResponse
// @Router /feed/post/{postId} [get]
func (s *Server) GetPost(c *fiber.Ctx) error {
	post, err := s.postService.Get(c.UserContext(), middleware.AuthFrom(c), parseID(c, "postId"))
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(fiber.Map{"message": "Post fetched.", "post": post})
}

// UpdatePost handles PUT /feed/post/:postId
// @Summary Update post
// @Description Replaces title and content. The image is replaced by a new file or a stored path, otherwise kept.
// @Tags feed
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param postId path int true "Post ID"
// @Param title formData string true "Title"
// @Param content formData string true "Content"
// @Param image formData file false "Replacement image, or a stored image path"
// @Success 200 {object} object{message=string,post=models.Post}
// @Failure 404 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Failure 422 {object} models.ErrorResponse
// @Router /feed/post/{postId} [put]
func (s *Server) UpdatePost(c *fiber.Ctx) error {
	in, err := postInputFromForm(c)
	if err != nil {
		return respond(c, err)
	}

	post, err := s.postService.Update(c.UserContext(), middleware.AuthFrom(c), parseID(c, "postId"), in)
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(fiber.Map{"message": "Post updated!", "post": post})
}

// DeletePost handles DELETE /feed/post/:postId
// @Summary Delete post
// @Tags feed
// @Produce json
// @Security BearerAuth
// @Param postId path int true "Post ID"
// @Success 200 {object} object{message=string}
// @Failure 401 {object} models.ErrorResponse
// @Router /feed/post/{postId} [delete]
func (s *Server) DeletePost(c *fiber.Ctx) error {
	if err := s.postService.Delete(c.UserContext(), middleware.AuthFrom(c), parseID(c, "postId")); err != nil {
		return respond(c, err)
	}
	return c.JSON(fiber.Map{"message": "Deleted post."})
}

// postInputFromForm reads title, content and image from a multipart or
// urlencoded body. image may be a file or a stored image path. Anonymous
// callers are turned away before the body is parsed.
func postInputFromForm(c *fiber.Ctx) (service.PostInput, error) {
	if !middleware.AuthFrom(c).Authenticated {
		return service.PostInput{}, models.NewUnauthorizedError("Not authenticated!")
	}
	in := service.PostInput{
		Title:   c.FormValue("title"),
		Content: c.FormValue("content"),
	}
	upload, err := readUpload(c, "image")
	if err != nil {
		return in, err
	}
	in.Image.Upload = upload
	if upload == nil {
		in.Image.Path = c.FormValue("image")
	}
	return in, nil
}
