package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"feedhub/internal/cache"
	"feedhub/internal/models"
	"feedhub/internal/observability"
)

const msgPostChanged = "Post was changed by another request."

// PostRepository defines persistence operations for posts.
type PostRepository interface {
	Create(ctx context.Context, post *models.Post) error
	GetByID(ctx context.Context, id uint) (*models.Post, error)
	// GetOwned loads a post only if creatorID created it.
	GetOwned(ctx context.Context, id, creatorID uint) (*models.Post, error)
	// Update saves post only if its stored image is still prevImage. A post
	// whose image changed underneath gives ConflictError.
	Update(ctx context.Context, post *models.Post, prevImage string) error
	// DeleteOwned deletes a post only if creatorID created it and returns the
	// deleted row. It returns nil, nil when nothing matched.
	DeleteOwned(ctx context.Context, id, creatorID uint) (*models.Post, error)
	// Delete removes a post unconditionally; used to undo a failed create.
	Delete(ctx context.Context, id uint) error
	List(ctx context.Context, offset, limit int) ([]models.Post, error)
	Count(ctx context.Context) (int64, error)
	ListByIDs(ctx context.Context, ids []uint) ([]models.Post, error)
}

type postRepository struct {
	db    *gorm.DB
	cache *cache.Store
	log   *observability.RepoLogger
}

// NewPostRepository returns a new PostRepository implementation. store may be nil.
func NewPostRepository(db *gorm.DB, store *cache.Store) PostRepository {
	return &postRepository{db: db, cache: store, log: observability.NewRepoLogger("posts")}
}

func (r *postRepository) Create(ctx context.Context, post *models.Post) error {
	if err := r.db.WithContext(ctx).Create(post).Error; err != nil {
		if isUniqueConstraintError(err) {
			return models.NewConflictError("Image is already attached to another post.")
		}
		r.log.LogError(ctx, err, "create")
		return models.NewInternalError(err)
	}
	r.log.LogCreate(ctx, map[string]interface{}{"post_id": post.ID, "creator_id": post.Creator.UserID})
	return nil
}

func (r *postRepository) GetByID(ctx context.Context, id uint) (*models.Post, error) {
	var post models.Post
	err := r.cache.Aside(ctx, cache.PostKey(id), &post, cache.PostTTL, func() error {
		if err := r.db.WithContext(ctx).First(&post, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return models.NewNotFoundError("Could not find post.")
			}
			return models.NewInternalError(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &post, nil
}

func (r *postRepository) GetOwned(ctx context.Context, id, creatorID uint) (*models.Post, error) {
	var post models.Post
	err := r.db.WithContext(ctx).Where("id = ? AND creator_id = ?", id, creatorID).First(&post).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Could not find post.")
		}
		return nil, models.NewInternalError(err)
	}
	return &post, nil
}

func (r *postRepository) Update(ctx context.Context, post *models.Post, prevImage string) error {
	res := r.db.WithContext(ctx).Model(post).
		Where("creator_id = ? AND image_url = ?", post.Creator.UserID, prevImage).
		Select("Title", "Content", "ImageURL", "UpdatedAt").
		Updates(post)
	if res.Error != nil {
		if isUniqueConstraintError(res.Error) {
			return models.NewConflictError("Image is already attached to another post.")
		}
		r.log.LogError(ctx, res.Error, "update")
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		var n int64
		if err := r.db.WithContext(ctx).Model(&models.Post{}).
			Where("id = ? AND creator_id = ?", post.ID, post.Creator.UserID).
			Count(&n).Error; err != nil {
			r.log.LogError(ctx, err, "update")
			return models.NewInternalError(err)
		}
		if n > 0 {
			return models.NewConflictError(msgPostChanged)
		}
		return models.NewNotFoundError("Could not find post.")
	}
	r.cache.Invalidate(ctx, cache.PostKey(post.ID))
	return nil
}

// DeleteOwned removes the post only when creatorID owns it, in one
// DELETE ... RETURNING statement. It returns nil, nil when nothing matched.
func (r *postRepository) DeleteOwned(ctx context.Context, id, creatorID uint) (*models.Post, error) {
	var deleted []models.Post
	err := r.db.WithContext(ctx).
		Clauses(clause.Returning{}).
		Where("id = ? AND creator_id = ?", id, creatorID).
		Delete(&deleted).Error
	if err != nil {
		r.log.LogError(ctx, err, "delete")
		return nil, models.NewInternalError(err)
	}
	if len(deleted) == 0 {
		return nil, nil
	}
	r.cache.Invalidate(ctx, cache.PostKey(id))
	r.log.LogDelete(ctx, map[string]interface{}{"post_id": id, "creator_id": creatorID})
	return &deleted[0], nil
}

func (r *postRepository) Delete(ctx context.Context, id uint) error {
	if err := r.db.WithContext(ctx).Delete(&models.Post{}, id).Error; err != nil {
		return models.NewInternalError(err)
	}
	r.cache.Invalidate(ctx, cache.PostKey(id))
	return nil
}

func (r *postRepository) List(ctx context.Context, offset, limit int) ([]models.Post, error) {
	var posts []models.Post
	if err := r.db.WithContext(ctx).
		Order("created_at DESC").Order("id DESC").
		Offset(offset).Limit(limit).
		Find(&posts).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return posts, nil
}

func (r *postRepository) Count(ctx context.Context) (int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&models.Post{}).Count(&total).Error; err != nil {
		return 0, models.NewInternalError(err)
	}
	return total, nil
}

// ListByIDs returns the posts in the order of ids, skipping ids that no longer exist.
func (r *postRepository) ListByIDs(ctx context.Context, ids []uint) ([]models.Post, error) {
	if len(ids) == 0 {
		return []models.Post{}, nil
	}
	var found []models.Post
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&found).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	byID := make(map[uint]models.Post, len(found))
	for _, p := range found {
		byID[p.ID] = p
	}
	out := make([]models.Post, 0, len(found))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}
