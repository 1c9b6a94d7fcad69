package service

import (
	"context"
	"log/slog"
	"path"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"feedhub/internal/auth"
	"feedhub/internal/models"
	"feedhub/internal/notifications"
	"feedhub/internal/observability"
	"feedhub/internal/repository"
	"feedhub/internal/validation"
)

// EventBroadcaster receives committed post mutations.
type EventBroadcaster interface {
	Broadcast(ctx context.Context, ev notifications.MutationEvent)
}

// ImageSource is either a fresh upload or a handle returned by an earlier upload.
type ImageSource struct {
	Upload *UploadInput
	Path   string
}

func (s ImageSource) empty() bool {
	return (s.Upload == nil || !isAllowedImageMIME(s.Upload.ContentType)) && strings.TrimSpace(s.Path) == ""
}

// replaces reports whether s names an image other than current.
func (s ImageSource) replaces(current string) bool {
	if s.Upload != nil && isAllowedImageMIME(s.Upload.ContentType) {
		return true
	}
	return strings.TrimSpace(s.Path) != "" && normalizeHandle(s.Path) != current
}

// PostInput carries the editable fields of a post.
type PostInput struct {
	Title   string      `json:"title" validate:"min=5"`
	Content string      `json:"content" validate:"min=5"`
	Image   ImageSource `json:"-" validate:"-"`
}

// PostService owns the post lifecycle: create, read, update and delete.
type PostService struct {
	posts       repository.PostRepository
	users       repository.UserRepository
	attachments *AttachmentService
	events      EventBroadcaster
}

// NewPostService creates a PostService.
func NewPostService(posts repository.PostRepository, users repository.UserRepository, attachments *AttachmentService, events EventBroadcaster) *PostService {
	return &PostService{posts: posts, users: users, attachments: attachments, events: events}
}

func (in *PostInput) normalize() error {
	in.Title = strings.TrimSpace(in.Title)
	in.Content = strings.TrimSpace(in.Content)
	return validation.Check(in, "Invalid input.")
}

// normalizeHandle accepts handles with a leading slash or backslashes.
func normalizeHandle(handle string) string {
	handle = strings.ReplaceAll(strings.TrimSpace(handle), "\\", "/")
	return path.Clean(strings.TrimPrefix(handle, "/"))
}

// resolveImage stores or verifies src. fresh is true when a new file was written.
func (s *PostService) resolveImage(ctx context.Context, src ImageSource) (handle string, fresh bool, err error) {
	if src.Upload != nil && isAllowedImageMIME(src.Upload.ContentType) {
		handle, err = s.attachments.Store(ctx, src.Upload)
		if err != nil {
			return "", false, err
		}
		if handle == "" {
			return "", false, models.NewValidationError("No image provided.")
		}
		return handle, true, nil
	}
	if strings.TrimSpace(src.Path) == "" {
		return "", false, models.NewValidationError("No image provided.")
	}
	handle = normalizeHandle(src.Path)
	if !s.attachments.Exists(handle) {
		return "", false, models.NewValidationError("Invalid image path.",
			models.ValidationDetail{Field: "imageUrl", Message: "imageUrl does not reference a stored image."})
	}
	return handle, false, nil
}

// Create stores the image, saves the post and links it to its creator.
func (s *PostService) Create(ctx context.Context, ac auth.Context, in PostInput) (*models.Post, error) {
	if err := requireAuth(ac); err != nil {
		return nil, err
	}
	span, ctx := observability.StartServiceSpan(ctx, "PostService", "Create")
	defer span.End()
	span.AddAttributes(attribute.Int64("user.id", int64(ac.UserID)))

	if err := in.normalize(); err != nil {
		return nil, err
	}
	if in.Image.empty() {
		return nil, models.NewValidationError("No image provided.")
	}

	user, err := s.users.GetByID(ctx, ac.UserID)
	if err != nil {
		if models.IsCode(err, models.CodeNotFound) {
			return nil, models.NewUnauthorizedError("Invalid user.")
		}
		span.SetError(err)
		return nil, err
	}

	handle, fresh, err := s.resolveImage(ctx, in.Image)
	if err != nil {
		return nil, err
	}

	post := &models.Post{
		Title:    in.Title,
		Content:  in.Content,
		ImageURL: handle,
		Creator:  models.PostCreator{UserID: user.ID, Name: user.Name},
	}
	if err := s.posts.Create(ctx, post); err != nil {
		span.SetError(err)
		if fresh {
			s.attachments.Discard(ctx, handle)
		}
		return nil, err
	}

	if err := s.users.AppendPost(ctx, user.ID, post.ID); err != nil {
		span.SetError(err)
		if delErr := s.posts.Delete(ctx, post.ID); delErr != nil {
			observability.L().ErrorContext(ctx, "failed to roll back post after user update failed",
				slog.Uint64("post_id", uint64(post.ID)),
				slog.String("error", delErr.Error()),
			)
		}
		if fresh {
			s.attachments.Discard(ctx, handle)
		}
		return nil, err
	}

	observability.PostMutations.WithLabelValues(notifications.ActionCreate).Inc()
	s.events.Broadcast(ctx, notifications.NewMutationEvent(notifications.ActionCreate, post.ID, post))
	return post, nil
}

// Get returns a single post.
func (s *PostService) Get(ctx context.Context, ac auth.Context, id uint) (*models.Post, error) {
	if err := requireAuth(ac); err != nil {
		return nil, err
	}
	return s.posts.GetByID(ctx, id)
}

// Update edits a post owned by the caller. A replaced image file is removed
// after the new state is saved.
func (s *PostService) Update(ctx context.Context, ac auth.Context, id uint, in PostInput) (*models.Post, error) {
	if err := requireAuth(ac); err != nil {
		return nil, err
	}
	span, ctx := observability.StartServiceSpan(ctx, "PostService", "Update")
	defer span.End()
	span.AddAttributes(attribute.Int64("user.id", int64(ac.UserID)), attribute.Int64("post.id", int64(id)))

	if err := in.normalize(); err != nil {
		return nil, err
	}

	post, err := s.posts.GetOwned(ctx, id, ac.UserID)
	if err != nil {
		return nil, err
	}

	oldHandle := post.ImageURL
	newHandle, fresh := oldHandle, false
	if in.Image.replaces(oldHandle) {
		newHandle, fresh, err = s.resolveImage(ctx, in.Image)
		if err != nil {
			return nil, err
		}
	}

	post.Title = in.Title
	post.Content = in.Content
	post.ImageURL = newHandle
	if err := s.posts.Update(ctx, post, oldHandle); err != nil {
		span.SetError(err)
		if fresh {
			s.attachments.Discard(ctx, newHandle)
		}
		return nil, err
	}

	if newHandle != oldHandle {
		s.attachments.Discard(ctx, oldHandle)
	}

	observability.PostMutations.WithLabelValues(notifications.ActionUpdate).Inc()
	s.events.Broadcast(ctx, notifications.NewMutationEvent(notifications.ActionUpdate, post.ID, post))
	return post, nil
}

// Delete removes a post owned by the caller in a single conditional statement.
func (s *PostService) Delete(ctx context.Context, ac auth.Context, id uint) error {
	if err := requireAuth(ac); err != nil {
		return err
	}
	span, ctx := observability.StartServiceSpan(ctx, "PostService", "Delete")
	defer span.End()
	span.AddAttributes(attribute.Int64("user.id", int64(ac.UserID)), attribute.Int64("post.id", int64(id)))

	deleted, err := s.posts.DeleteOwned(ctx, id, ac.UserID)
	if err != nil {
		span.SetError(err)
		return err
	}
	if deleted == nil {
		return models.NewUnauthorizedError(msgNotAuthorized)
	}

	if err := s.users.RemovePost(ctx, ac.UserID, id); err != nil {
		observability.L().ErrorContext(ctx, "failed to unlink deleted post from user",
			slog.Uint64("user_id", uint64(ac.UserID)),
			slog.Uint64("post_id", uint64(id)),
			slog.String("error", err.Error()),
		)
	}
	s.attachments.Delete(ctx, deleted.ImageURL)

	observability.PostMutations.WithLabelValues(notifications.ActionDelete).Inc()
	s.events.Broadcast(ctx, notifications.NewMutationEvent(notifications.ActionDelete, id, nil))
	return nil
}
