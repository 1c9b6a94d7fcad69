package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feedhub/internal/config"
	"feedhub/internal/database"
	"feedhub/internal/models"
	"feedhub/internal/testutil"
)

type testEnv struct {
	srv *Server
	app *fiber.App
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		Env:                   "test",
		DBDriver:              "sqlite",
		SQLitePath:            filepath.Join(dir, "feed.db"),
		UploadDir:             filepath.Join(dir, "images"),
		ImageURLPrefix:        "images",
		ImageMaxUploadSizeMB:  1,
		JWTSecret:             "test-secret-key-12345678901234567890",
		JWTTTLMinutes:         60,
		JWTIssuer:             "feedhub-api",
		JWTAudience:           "feedhub-client",
		BcryptCost:            4,
		FeedPageSize:          2,
		AuthRateLimit:         10,
		AuthRateWindowSeconds: 60,
	}
	db, err := database.Connect(cfg)
	require.NoError(t, err)

	srv, err := NewServerWithDeps(cfg, db, nil)
	require.NoError(t, err)
	require.NoError(t, srv.StartEvents(context.Background()))
	app := srv.NewApp()
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return &testEnv{srv: srv, app: app}
}

func (e *testEnv) do(t *testing.T, req *http.Request, token string) (int, map[string]json.RawMessage) {
	t.Helper()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]json.RawMessage{}
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func (e *testEnv) doJSON(t *testing.T, method, path, token string, body interface{}) (int, map[string]json.RawMessage) {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	return e.do(t, req, token)
}

type formFile struct {
	name        string
	contentType string
	content     []byte
}

func (e *testEnv) doForm(t *testing.T, method, path, token string, fields map[string]string, file *formFile) (int, map[string]json.RawMessage) {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, writer.WriteField(k, v))
	}
	if file != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, file.name))
		h.Set("Content-Type", file.contentType)
		part, err := writer.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(file.content)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return e.do(t, req, token)
}

func (e *testEnv) signup(t *testing.T, email, name string) (token, userID string) {
	t.Helper()
	status, body := e.doJSON(t, http.MethodPut, "/auth/signup", "", map[string]string{
		"email": email, "name": name, "password": "secret1",
	})
	require.Equal(t, http.StatusCreated, status)
	assert.JSONEq(t, `"User created!"`, string(body["message"]))

	status, body = e.doJSON(t, http.MethodPost, "/auth/login", "", map[string]string{
		"email": email, "password": "secret1",
	})
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(body["token"], &token))
	require.NoError(t, json.Unmarshal(body["userId"], &userID))
	require.NotEmpty(t, token)
	return token, userID
}

func pngFile(t *testing.T, name string) *formFile {
	return &formFile{name: name, contentType: "image/png", content: testutil.TinyPNG(t, 4, 4)}
}

func decodePost(t *testing.T, raw json.RawMessage) models.Post {
	t.Helper()
	var p models.Post
	require.NoError(t, json.Unmarshal(raw, &p))
	return p
}

func decodeError(t *testing.T, body map[string]json.RawMessage) (message, code string) {
	t.Helper()
	require.NoError(t, json.Unmarshal(body["message"], &message))
	require.NoError(t, json.Unmarshal(body["code"], &code))
	return message, code
}

func TestPostLifecycleOverREST(t *testing.T) {
	e := newTestEnv(t)
	aliceToken, aliceID := e.signup(t, "alice@example.com", "Alice")
	bobToken, _ := e.signup(t, "bob@example.com", "Bob")

	var created []models.Post
	for _, title := range []string{"First post", "Second post", "Third post"} {
		status, body := e.doForm(t, http.MethodPost, "/feed/post", aliceToken,
			map[string]string{"title": title, "content": "Some content"}, pngFile(t, "photo.png"))
		require.Equal(t, http.StatusCreated, status)
		post := decodePost(t, body["post"])
		assert.Equal(t, title, post.Title)
		assert.Equal(t, "Alice", post.Creator.Name)
		assert.Equal(t, aliceID, formatID(post.Creator.UserID))
		assert.True(t, strings.HasPrefix(post.ImageURL, "images/"), post.ImageURL)
		assert.True(t, e.srv.attachments.Exists(post.ImageURL))
		created = append(created, post)
	}

	t.Run("feed pages newest first", func(t *testing.T) {
		status, body := e.doJSON(t, http.MethodGet, "/feed/posts?page=1", aliceToken, nil)
		require.Equal(t, http.StatusOK, status)
		var posts []models.Post
		require.NoError(t, json.Unmarshal(body["posts"], &posts))
		require.Len(t, posts, 2)
		assert.Equal(t, created[2].ID, posts[0].ID)
		assert.Equal(t, created[1].ID, posts[1].ID)
		assert.JSONEq(t, `3`, string(body["totalItems"]))

		status, body = e.doJSON(t, http.MethodGet, "/feed/posts?page=2", bobToken, nil)
		require.Equal(t, http.StatusOK, status)
		require.NoError(t, json.Unmarshal(body["posts"], &posts))
		require.Len(t, posts, 1)
		assert.Equal(t, created[0].ID, posts[0].ID)

		status, body = e.doJSON(t, http.MethodGet, "/feed/posts?page=9", bobToken, nil)
		require.Equal(t, http.StatusOK, status)
		require.NoError(t, json.Unmarshal(body["posts"], &posts))
		assert.Empty(t, posts)
		assert.JSONEq(t, `3`, string(body["totalItems"]))
	})

	t.Run("get post", func(t *testing.T) {
		status, body := e.doJSON(t, http.MethodGet, "/feed/post/"+formatID(created[0].ID), bobToken, nil)
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, created[0].Title, decodePost(t, body["post"]).Title)

		status, body = e.doJSON(t, http.MethodGet, "/feed/post/999", bobToken, nil)
		require.Equal(t, http.StatusNotFound, status)
		_, code := decodeError(t, body)
		assert.Equal(t, models.CodeNotFound, code)
	})

	t.Run("update replaces image and removes the old file", func(t *testing.T) {
		target := created[1]
		status, body := e.doForm(t, http.MethodPut, "/feed/post/"+formatID(target.ID), aliceToken,
			map[string]string{"title": "Second post edited", "content": "New content"}, pngFile(t, "new.png"))
		require.Equal(t, http.StatusOK, status)
		updated := decodePost(t, body["post"])
		assert.Equal(t, "Second post edited", updated.Title)
		assert.NotEqual(t, target.ImageURL, updated.ImageURL)
		assert.True(t, e.srv.attachments.Exists(updated.ImageURL))
		assert.False(t, e.srv.attachments.Exists(target.ImageURL))
		created[1] = updated
	})

	t.Run("update keeps image when none is sent", func(t *testing.T) {
		target := created[2]
		status, body := e.doForm(t, http.MethodPut, "/feed/post/"+formatID(target.ID), aliceToken,
			map[string]string{"title": "Third post edited", "content": "Still here"}, nil)
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, target.ImageURL, decodePost(t, body["post"]).ImageURL)
		assert.True(t, e.srv.attachments.Exists(target.ImageURL))
	})

	t.Run("non-owner update is not found", func(t *testing.T) {
		status, body := e.doForm(t, http.MethodPut, "/feed/post/"+formatID(created[0].ID), bobToken,
			map[string]string{"title": "Hijacked post", "content": "Hijacked"}, nil)
		require.Equal(t, http.StatusNotFound, status)
		_, code := decodeError(t, body)
		assert.Equal(t, models.CodeNotFound, code)
	})

	t.Run("non-owner delete is not authorized", func(t *testing.T) {
		status, body := e.doJSON(t, http.MethodDelete, "/feed/post/"+formatID(created[0].ID), bobToken, nil)
		require.Equal(t, http.StatusUnauthorized, status)
		message, code := decodeError(t, body)
		assert.Equal(t, "Not authorized!", message)
		assert.Equal(t, models.CodeUnauthorized, code)
		assert.True(t, e.srv.attachments.Exists(created[0].ImageURL))
	})

	t.Run("owner delete removes post and image", func(t *testing.T) {
		status, body := e.doJSON(t, http.MethodDelete, "/feed/post/"+formatID(created[0].ID), aliceToken, nil)
		require.Equal(t, http.StatusOK, status)
		assert.JSONEq(t, `"Deleted post."`, string(body["message"]))
		e.srv.tasks.Wait()
		assert.False(t, e.srv.attachments.Exists(created[0].ImageURL))

		status, _ = e.doJSON(t, http.MethodGet, "/feed/post/"+formatID(created[0].ID), aliceToken, nil)
		assert.Equal(t, http.StatusNotFound, status)

		status, body = e.doJSON(t, http.MethodGet, "/feed/posts", aliceToken, nil)
		require.Equal(t, http.StatusOK, status)
		assert.JSONEq(t, `2`, string(body["totalItems"]))
	})
}

func TestCreatePostValidation(t *testing.T) {
	e := newTestEnv(t)
	token, _ := e.signup(t, "carol@example.com", "Carol")

	t.Run("short title", func(t *testing.T) {
		status, body := e.doForm(t, http.MethodPost, "/feed/post", token,
			map[string]string{"title": "abc", "content": "Some content"}, pngFile(t, "a.png"))
		require.Equal(t, http.StatusUnprocessableEntity, status)
		_, code := decodeError(t, body)
		assert.Equal(t, models.CodeValidation, code)
		assert.NotEmpty(t, body["data"])
	})

	t.Run("disallowed image type is dropped", func(t *testing.T) {
		status, body := e.doForm(t, http.MethodPost, "/feed/post", token,
			map[string]string{"title": "Valid title", "content": "Some content"},
			&formFile{name: "doc.gif", contentType: "image/gif", content: []byte("GIF89a")})
		require.Equal(t, http.StatusUnprocessableEntity, status)
		message, _ := decodeError(t, body)
		assert.Equal(t, "No image provided.", message)
	})

	t.Run("unknown image path", func(t *testing.T) {
		status, body := e.doForm(t, http.MethodPost, "/feed/post", token,
			map[string]string{"title": "Valid title", "content": "Some content", "image": "images/missing.png"}, nil)
		require.Equal(t, http.StatusUnprocessableEntity, status)
		message, _ := decodeError(t, body)
		assert.Equal(t, "Invalid image path.", message)
	})
}

func TestRoutesRequireAuthentication(t *testing.T) {
	e := newTestEnv(t)

	cases := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/feed/posts"},
		{http.MethodGet, "/feed/post/1"},
		{http.MethodDelete, "/feed/post/1"},
		{http.MethodGet, "/auth/status"},
		{http.MethodPatch, "/auth/status"},
	}
	for _, tc := range cases {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			status, body := e.doJSON(t, tc.method, tc.path, "", nil)
			require.Equal(t, http.StatusUnauthorized, status)
			message, code := decodeError(t, body)
			assert.Equal(t, "Not authenticated!", message)
			assert.Equal(t, models.CodeUnauthorized, code)
		})
	}

	t.Run("multipart routes", func(t *testing.T) {
		for _, tc := range []struct{ method, path string }{
			{http.MethodPost, "/feed/post"},
			{http.MethodPut, "/feed/post/1"},
			{http.MethodPut, "/post-image"},
		} {
			status, body := e.doForm(t, tc.method, tc.path, "",
				map[string]string{"title": "Valid title", "content": "Some content"}, pngFile(t, "a.png"))
			assert.Equal(t, http.StatusUnauthorized, status, tc.path)
			message, code := decodeError(t, body)
			assert.Equal(t, "Not authenticated!", message, tc.path)
			assert.Equal(t, models.CodeUnauthorized, code, tc.path)
		}
	})

	t.Run("form is not parsed for anonymous callers", func(t *testing.T) {
		app := fiber.New()
		app.Put("/", func(c *fiber.Ctx) error {
			_, err := postInputFromForm(c)
			return respond(c, err)
		})
		req := httptest.NewRequest(http.MethodPut, "/", strings.NewReader("--broken\r\n"))
		req.Header.Set("Content-Type", "multipart/form-data; boundary=broken")
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("invalid token is anonymous", func(t *testing.T) {
		status, _ := e.doJSON(t, http.MethodGet, "/feed/posts", "not-a-jwt", nil)
		assert.Equal(t, http.StatusUnauthorized, status)
	})
}

func TestAuthRoutes(t *testing.T) {
	e := newTestEnv(t)
	token, _ := e.signup(t, "dave@example.com", "Dave")

	status, body := e.doJSON(t, http.MethodPut, "/auth/signup", "", map[string]string{
		"email": "DAVE@example.com", "name": "Dave", "password": "secret1",
	})
	require.Equal(t, http.StatusConflict, status)
	_, code := decodeError(t, body)
	assert.Equal(t, models.CodeConflict, code)

	status, body = e.doJSON(t, http.MethodPut, "/auth/signup", "", map[string]string{
		"email": "not-an-email", "name": "", "password": "123",
	})
	require.Equal(t, http.StatusUnprocessableEntity, status)
	assert.NotEmpty(t, body["data"])

	status, body = e.doJSON(t, http.MethodPost, "/auth/login", "", map[string]string{
		"email": "dave@example.com", "password": "wrong-pass",
	})
	require.Equal(t, http.StatusUnauthorized, status)
	message, _ := decodeError(t, body)
	assert.Equal(t, "Wrong email or password!", message)

	status, body = e.doJSON(t, http.MethodGet, "/auth/status", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `"I am new!"`, string(body["status"]))

	status, _ = e.doJSON(t, http.MethodPatch, "/auth/status", token, map[string]string{"status": "Busy coding"})
	require.Equal(t, http.StatusOK, status)

	_, body = e.doJSON(t, http.MethodGet, "/auth/status", token, nil)
	assert.JSONEq(t, `"Busy coding"`, string(body["status"]))

	status, _ = e.doJSON(t, http.MethodPatch, "/auth/status", token, map[string]string{"status": "  "})
	assert.Equal(t, http.StatusUnprocessableEntity, status)
}

func TestStoreImage(t *testing.T) {
	e := newTestEnv(t)
	token, _ := e.signup(t, "erin@example.com", "Erin")

	status, body := e.doForm(t, http.MethodPut, "/post-image", token, nil, pngFile(t, "upload.png"))
	require.Equal(t, http.StatusCreated, status)
	var handle string
	require.NoError(t, json.Unmarshal(body["filePath"], &handle))
	assert.True(t, e.srv.attachments.Exists(handle))

	// The stored path can be served and reused as a post image.
	resp, err := e.app.Test(httptest.NewRequest(http.MethodGet, "/"+handle, nil), -1)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	status, body = e.doForm(t, http.MethodPost, "/feed/post", token,
		map[string]string{"title": "From path", "content": "Some content", "image": handle}, nil)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, handle, decodePost(t, body["post"]).ImageURL)

	status, body = e.doForm(t, http.MethodPut, "/post-image", token, nil, nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `"No file provided!"`, string(body["message"]))
}

func TestHealthAndErrors(t *testing.T) {
	e := newTestEnv(t)

	resp, err := e.app.Test(httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.NoError(t, err)
	raw, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, "pong", string(raw))

	status, body := e.doJSON(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `"healthy"`, string(body["status"]))

	status, body = e.doJSON(t, http.MethodGet, "/nope", "", nil)
	require.Equal(t, http.StatusNotFound, status)
	_, code := decodeError(t, body)
	assert.Equal(t, models.CodeNotFound, code)

	status, _ = e.doJSON(t, http.MethodGet, "/ws", "", nil)
	assert.Equal(t, http.StatusUpgradeRequired, status)
}
