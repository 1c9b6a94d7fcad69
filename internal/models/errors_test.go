package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppErrorStatuses(t *testing.T) {
	tests := []struct {
		name   string
		err    *AppError
		status int
		code   string
	}{
		{"validation", NewValidationError("bad"), http.StatusUnprocessableEntity, CodeValidation},
		{"unauthorized", NewUnauthorizedError("no"), http.StatusUnauthorized, CodeUnauthorized},
		{"conflict", NewConflictError("dup"), http.StatusConflict, CodeConflict},
		{"not found", NewNotFoundError("missing"), http.StatusNotFound, CodeNotFound},
		{"internal", NewInternalError(errors.New("boom")), http.StatusInternalServerError, CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, tt.err.Status)
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.status, tt.err.Extensions()["status"])
		})
	}
}

func TestAsAppError(t *testing.T) {
	wrapped := fmt.Errorf("service: %w", NewNotFoundError("Could not find post."))
	assert.Equal(t, CodeNotFound, AsAppError(wrapped).Code)
	assert.True(t, IsCode(wrapped, CodeNotFound))

	plain := AsAppError(errors.New("db down"))
	assert.Equal(t, CodeInternal, plain.Code)
	assert.EqualError(t, errors.Unwrap(plain), "db down")
}

func TestRespondWithError(t *testing.T) {
	app := fiber.New()
	app.Get("/validation", func(c *fiber.Ctx) error {
		return RespondWithError(c, NewValidationError("Invalid input.", ValidationDetail{Field: "title", Message: "too short"}))
	})
	app.Get("/internal", func(c *fiber.Ctx) error {
		return RespondWithError(c, errors.New("password=hunter2 leaked"))
	})

	t.Run("validation carries data", func(t *testing.T) {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/validation", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

		var body ErrorResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "Invalid input.", body.Message)
		assert.Equal(t, 422, body.Status)
		require.Len(t, body.Data, 1)
		assert.Equal(t, "title", body.Data[0].Field)
	})

	t.Run("internal hides cause", func(t *testing.T) {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/internal", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		raw, _ := io.ReadAll(resp.Body)
		assert.NotContains(t, string(raw), "hunter2")
	})
}

func TestUserPostList(t *testing.T) {
	u := &User{}
	assert.True(t, u.AddPost(3))
	assert.False(t, u.AddPost(3))
	assert.True(t, u.AddPost(7))
	assert.Equal(t, []uint{3, 7}, u.PostIDs)
	assert.True(t, u.RemovePost(3))
	assert.False(t, u.RemovePost(3))
	assert.Equal(t, []uint{7}, u.PostIDs)
}
