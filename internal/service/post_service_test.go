package service

import (
	"context"
	"errors"
	"os"
	"path"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feedhub/internal/async"
	"feedhub/internal/auth"
	"feedhub/internal/models"
	"feedhub/internal/notifications"
	"feedhub/internal/testutil"
)

type postFixture struct {
	svc         *PostService
	posts       *memPostRepo
	users       *memUserRepo
	attachments *AttachmentService
	tasks       *async.Runner
	events      *eventRecorder
	owner       auth.Context
	other       auth.Context
}

func newPostFixture(t *testing.T) *postFixture {
	t.Helper()
	attachments, tasks := newTestAttachments(t)
	users := newMemUserRepo()
	posts := newMemPostRepo()
	events := &eventRecorder{}

	owner := users.seed("Owner", "owner@example.com")
	other := users.seed("Other", "other@example.com")

	return &postFixture{
		svc:         NewPostService(posts, users, attachments, events),
		posts:       posts,
		users:       users,
		attachments: attachments,
		tasks:       tasks,
		events:      events,
		owner:       auth.Context{UserID: owner.ID, Email: owner.Email, Authenticated: true},
		other:       auth.Context{UserID: other.ID, Email: other.Email, Authenticated: true},
	}
}

func pngUpload(t *testing.T, name string) *UploadInput {
	return &UploadInput{Filename: name, ContentType: "image/png", Content: testutil.TinyPNG(t, 3, 3)}
}

func (f *postFixture) create(t *testing.T, title string) *models.Post {
	t.Helper()
	post, err := f.svc.Create(context.Background(), f.owner, PostInput{
		Title:   title,
		Content: "Some content",
		Image:   ImageSource{Upload: pngUpload(t, title+".png")},
	})
	require.NoError(t, err)
	return post
}

func requireCode(t *testing.T, err error, code string) *models.AppError {
	t.Helper()
	require.Error(t, err)
	appErr := models.AsAppError(err)
	require.Equal(t, code, appErr.Code, "error: %v", err)
	return appErr
}

func TestPostServiceCreate(t *testing.T) {
	f := newPostFixture(t)
	ctx := context.Background()

	post, err := f.svc.Create(ctx, f.owner, PostInput{
		Title:   "  First post ",
		Content: "Hello there",
		Image:   ImageSource{Upload: pngUpload(t, "a.png")},
	})
	require.NoError(t, err)
	assert.Equal(t, "First post", post.Title)
	assert.Equal(t, f.owner.UserID, post.Creator.UserID)
	assert.Equal(t, "Owner", post.Creator.Name)
	assert.True(t, f.attachments.Exists(post.ImageURL))

	user, err := f.users.GetByID(ctx, f.owner.UserID)
	require.NoError(t, err)
	assert.Equal(t, []uint{post.ID}, user.PostIDs)

	require.Len(t, f.events.events, 1)
	ev := f.events.events[0]
	assert.Equal(t, notifications.ActionCreate, ev.Action)
	assert.Equal(t, post.ID, ev.Post.ID)
}

func TestPostServiceCreateChecksAuthFirst(t *testing.T) {
	f := newPostFixture(t)

	_, err := f.svc.Create(context.Background(), auth.Anonymous(), PostInput{Title: "x"})
	appErr := requireCode(t, err, models.CodeUnauthorized)
	assert.Equal(t, "Not authenticated!", appErr.Message)
}

func TestPostServiceCreateValidation(t *testing.T) {
	f := newPostFixture(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		in      PostInput
		message string
	}{
		{
			name:    "short title",
			in:      PostInput{Title: "Hey", Content: "Long enough", Image: ImageSource{Upload: pngUpload(t, "a.png")}},
			message: "Invalid input.",
		},
		{
			name:    "padded short content",
			in:      PostInput{Title: "Long enough", Content: "   abc   ", Image: ImageSource{Upload: pngUpload(t, "a.png")}},
			message: "Invalid input.",
		},
		{
			name:    "no image",
			in:      PostInput{Title: "Long enough", Content: "Long enough"},
			message: "No image provided.",
		},
		{
			name: "filtered upload",
			in: PostInput{Title: "Long enough", Content: "Long enough", Image: ImageSource{
				Upload: &UploadInput{Filename: "a.gif", ContentType: "image/gif", Content: []byte("GIF89a")},
			}},
			message: "No image provided.",
		},
		{
			name:    "unknown handle",
			in:      PostInput{Title: "Long enough", Content: "Long enough", Image: ImageSource{Path: "images/missing.png"}},
			message: "Invalid image path.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, f.owner, tt.in)
			appErr := requireCode(t, err, models.CodeValidation)
			assert.Equal(t, tt.message, appErr.Message)
		})
	}

	count, _ := f.posts.Count(ctx)
	assert.Zero(t, count)
	assert.Empty(t, f.events.events)
}

func TestPostServiceCreateFromStoredHandle(t *testing.T) {
	f := newPostFixture(t)
	ctx := context.Background()

	handle, err := f.attachments.Store(ctx, pngUpload(t, "pre.png"))
	require.NoError(t, err)

	post, err := f.svc.Create(ctx, f.owner, PostInput{Title: "From handle", Content: "Some content", Image: ImageSource{Path: "/" + handle}})
	require.NoError(t, err)
	assert.Equal(t, handle, post.ImageURL)

	_, err = f.svc.Create(ctx, f.owner, PostInput{Title: "Same image", Content: "Some content", Image: ImageSource{Path: handle}})
	requireCode(t, err, models.CodeConflict)
	assert.True(t, f.attachments.Exists(handle))
}

func TestPostServiceCreateUnknownCreator(t *testing.T) {
	f := newPostFixture(t)

	ghost := auth.Context{UserID: 999, Authenticated: true}
	_, err := f.svc.Create(context.Background(), ghost, PostInput{
		Title: "Long enough", Content: "Long enough", Image: ImageSource{Upload: pngUpload(t, "a.png")},
	})
	requireCode(t, err, models.CodeUnauthorized)
}

func TestPostServiceCreateCompensates(t *testing.T) {
	t.Run("post save fails", func(t *testing.T) {
		f := newPostFixture(t)
		f.posts.createFn = func(context.Context, *models.Post) error {
			return models.NewInternalError(errors.New("db down"))
		}
		_, err := f.svc.Create(context.Background(), f.owner, PostInput{
			Title: "Long enough", Content: "Long enough", Image: ImageSource{Upload: pngUpload(t, "a.png")},
		})
		requireCode(t, err, models.CodeInternal)
		assert.False(t, f.attachments.Exists("images/1700000000123-a.png"))
		assert.Empty(t, f.events.events)
	})

	t.Run("user update fails", func(t *testing.T) {
		f := newPostFixture(t)
		f.users.appendFn = func(context.Context, uint, uint) error {
			return models.NewInternalError(errors.New("db down"))
		}
		_, err := f.svc.Create(context.Background(), f.owner, PostInput{
			Title: "Long enough", Content: "Long enough", Image: ImageSource{Upload: pngUpload(t, "a.png")},
		})
		requireCode(t, err, models.CodeInternal)

		count, _ := f.posts.Count(context.Background())
		assert.Zero(t, count)
		assert.False(t, f.attachments.Exists("images/1700000000123-a.png"))
		assert.Empty(t, f.events.events)
	})
}

func TestPostServiceGet(t *testing.T) {
	f := newPostFixture(t)
	post := f.create(t, "Readable")

	got, err := f.svc.Get(context.Background(), f.other, post.ID)
	require.NoError(t, err)
	assert.Equal(t, "Readable", got.Title)

	_, err = f.svc.Get(context.Background(), f.other, 12345)
	appErr := requireCode(t, err, models.CodeNotFound)
	assert.Equal(t, "Could not find post.", appErr.Message)

	_, err = f.svc.Get(context.Background(), auth.Anonymous(), post.ID)
	requireCode(t, err, models.CodeUnauthorized)
}

func TestPostServiceUpdateReplacesImage(t *testing.T) {
	f := newPostFixture(t)
	ctx := context.Background()
	post := f.create(t, "Original")
	oldHandle := post.ImageURL

	f.attachments.now = laterNow
	updated, err := f.svc.Update(ctx, f.owner, post.ID, PostInput{
		Title:   "Changed title",
		Content: "Changed content",
		Image:   ImageSource{Upload: pngUpload(t, "b.png")},
	})
	require.NoError(t, err)
	assert.Equal(t, "Changed title", updated.Title)
	assert.NotEqual(t, oldHandle, updated.ImageURL)
	assert.True(t, f.attachments.Exists(updated.ImageURL))
	assert.False(t, f.attachments.Exists(oldHandle))

	assert.Equal(t, []string{notifications.ActionCreate, notifications.ActionUpdate}, f.events.actions())
}

func TestPostServiceUpdateKeepsImage(t *testing.T) {
	f := newPostFixture(t)
	post := f.create(t, "Original")

	for _, src := range []ImageSource{
		{},
		{Path: post.ImageURL},
		{Upload: &UploadInput{Filename: "x.gif", ContentType: "image/gif", Content: []byte("GIF89a")}},
	} {
		updated, err := f.svc.Update(context.Background(), f.owner, post.ID, PostInput{
			Title: "New title", Content: "New content", Image: src,
		})
		require.NoError(t, err)
		assert.Equal(t, post.ImageURL, updated.ImageURL)
		assert.True(t, f.attachments.Exists(post.ImageURL))
	}
}

func TestPostServiceUpdateNotOwner(t *testing.T) {
	f := newPostFixture(t)
	post := f.create(t, "Original")

	_, err := f.svc.Update(context.Background(), f.other, post.ID, PostInput{Title: "Hijacked", Content: "Hijacked"})
	requireCode(t, err, models.CodeNotFound)

	got, err := f.posts.GetByID(context.Background(), post.ID)
	require.NoError(t, err)
	assert.Equal(t, "Original", got.Title)
}

func TestPostServiceUpdateSaveFailureKeepsOldImage(t *testing.T) {
	f := newPostFixture(t)
	post := f.create(t, "Original")
	f.posts.updateFn = func(context.Context, *models.Post) error {
		return models.NewInternalError(errors.New("db down"))
	}

	f.attachments.now = laterNow
	_, err := f.svc.Update(context.Background(), f.owner, post.ID, PostInput{
		Title: "New title", Content: "New content", Image: ImageSource{Upload: pngUpload(t, "b.png")},
	})
	requireCode(t, err, models.CodeInternal)
	assert.True(t, f.attachments.Exists(post.ImageURL))
	assert.False(t, f.attachments.Exists("images/1700000999000-b.png"))
}

// loadBarrierRepo holds every GetOwned until n callers have loaded.
type loadBarrierRepo struct {
	*memPostRepo
	loaded sync.WaitGroup
}

func (r *loadBarrierRepo) GetOwned(ctx context.Context, id, creatorID uint) (*models.Post, error) {
	p, err := r.memPostRepo.GetOwned(ctx, id, creatorID)
	r.loaded.Done()
	r.loaded.Wait()
	return p, err
}

func TestPostServiceConcurrentImageReplaceLeavesNoOrphan(t *testing.T) {
	f := newPostFixture(t)
	post := f.create(t, "Original")

	repo := &loadBarrierRepo{memPostRepo: f.posts}
	repo.loaded.Add(2)
	svc := NewPostService(repo, f.users, f.attachments, f.events)

	type result struct {
		post *models.Post
		err  error
	}
	results := make(chan result, 2)
	for _, upload := range []*UploadInput{pngUpload(t, "b.png"), pngUpload(t, "c.png")} {
		go func(upload *UploadInput) {
			p, err := svc.Update(context.Background(), f.owner, post.ID, PostInput{
				Title: "Replaced", Content: "Replaced", Image: ImageSource{Upload: upload},
			})
			results <- result{p, err}
		}(upload)
	}

	var won, lost int
	for i := 0; i < 2; i++ {
		r := <-results
		if r.err != nil {
			requireCode(t, r.err, models.CodeConflict)
			lost++
			continue
		}
		won++
	}
	assert.Equal(t, 1, won)
	assert.Equal(t, 1, lost)

	got, err := f.posts.GetByID(context.Background(), post.ID)
	require.NoError(t, err)
	assert.True(t, f.attachments.Exists(got.ImageURL))
	assert.False(t, f.attachments.Exists(post.ImageURL))

	entries, err := os.ReadDir(f.attachments.uploadDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, path.Base(got.ImageURL), entries[0].Name())
}

func TestPostServiceDelete(t *testing.T) {
	f := newPostFixture(t)
	ctx := context.Background()
	post := f.create(t, "Doomed")

	err := f.svc.Delete(ctx, f.other, post.ID)
	appErr := requireCode(t, err, models.CodeUnauthorized)
	assert.Equal(t, "Not authorized!", appErr.Message)

	require.NoError(t, f.svc.Delete(ctx, f.owner, post.ID))
	f.tasks.Wait()

	_, err = f.posts.GetByID(ctx, post.ID)
	requireCode(t, err, models.CodeNotFound)
	assert.False(t, f.attachments.Exists(post.ImageURL))

	user, err := f.users.GetByID(ctx, f.owner.UserID)
	require.NoError(t, err)
	assert.Empty(t, user.PostIDs)

	last := f.events.events[len(f.events.events)-1]
	assert.Equal(t, notifications.ActionDelete, last.Action)
	assert.Nil(t, last.Post)

	err = f.svc.Delete(ctx, f.owner, post.ID)
	requireCode(t, err, models.CodeUnauthorized)
}

func TestPostServiceDeleteSucceedsWhenUnlinkFails(t *testing.T) {
	f := newPostFixture(t)
	post := f.create(t, "Doomed")
	f.users.removeFn = func(context.Context, uint, uint) error {
		return models.NewInternalError(errors.New("db down"))
	}

	require.NoError(t, f.svc.Delete(context.Background(), f.owner, post.ID))
	f.tasks.Wait()
	assert.False(t, f.attachments.Exists(post.ImageURL))
}
