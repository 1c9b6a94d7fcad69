package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"feedhub/internal/cache"
	"feedhub/internal/models"
	"feedhub/internal/observability"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id uint) (*models.User, error)
	// GetByEmail returns nil, nil when no user has the address.
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	UpdateStatus(ctx context.Context, id uint, status string) error
	AppendPost(ctx context.Context, userID, postID uint) error
	RemovePost(ctx context.Context, userID, postID uint) error
}

type userRepository struct {
	db    *gorm.DB
	cache *cache.Store
	log   *observability.RepoLogger
}

// NewUserRepository returns a new UserRepository implementation. store may be nil.
func NewUserRepository(db *gorm.DB, store *cache.Store) UserRepository {
	return &userRepository{db: db, cache: store, log: observability.NewRepoLogger("users")}
}

func (r *userRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	err := r.cache.Aside(ctx, cache.UserKey(id), &user, cache.UserTTL, func() error {
		if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return models.NewNotFoundError("User not found.")
			}
			return models.NewInternalError(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if user.PostIDs == nil {
		user.PostIDs = []uint{}
	}
	return &user, nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, models.NewInternalError(err)
	}
	return &user, nil
}

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	if user.PostIDs == nil {
		user.PostIDs = []uint{}
	}
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		if isUniqueConstraintError(err) {
			return models.NewConflictError("E-Mail address already exists!")
		}
		r.log.LogError(ctx, err, "create")
		return models.NewInternalError(err)
	}
	r.log.LogCreate(ctx, map[string]interface{}{"user_id": user.ID})
	return nil
}

func (r *userRepository) UpdateStatus(ctx context.Context, id uint, status string) error {
	res := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update("status", status)
	if res.Error != nil {
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("User not found.")
	}
	r.cache.Invalidate(ctx, cache.UserKey(id))
	return nil
}

func (r *userRepository) AppendPost(ctx context.Context, userID, postID uint) error {
	return r.mutatePosts(ctx, userID, func(u *models.User) bool { return u.AddPost(postID) })
}

func (r *userRepository) RemovePost(ctx context.Context, userID, postID uint) error {
	return r.mutatePosts(ctx, userID, func(u *models.User) bool { return u.RemovePost(postID) })
}

// mutatePosts applies fn to the user's post list inside one transaction and
// writes only the list back.
func (r *userRepository) mutatePosts(ctx context.Context, userID uint, fn func(*models.User) bool) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := forUpdate(tx).First(&user, userID).Error; err != nil {
			return err
		}
		if !fn(&user) {
			return nil
		}
		return tx.Model(&user).Select("PostIDs", "UpdatedAt").Updates(&user).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.NewNotFoundError("User not found.")
		}
		r.log.LogError(ctx, err, "update_posts")
		return models.NewInternalError(err)
	}
	r.cache.Invalidate(ctx, cache.UserKey(userID))
	return nil
}
