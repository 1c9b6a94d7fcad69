package service

import (
	"context"
	"strings"

	"feedhub/internal/auth"
	"feedhub/internal/models"
	"feedhub/internal/repository"
)

// Profile is a user together with the posts they created.
type Profile struct {
	User  *models.User
	Posts []models.Post
}

type UserService struct {
	users repository.UserRepository
	posts repository.PostRepository
}

func NewUserService(users repository.UserRepository, posts repository.PostRepository) *UserService {
	return &UserService{users: users, posts: posts}
}

// Find loads any user by id. Callers are trusted adapters resolving references.
func (s *UserService) Find(ctx context.Context, id uint) (*models.User, error) {
	return s.users.GetByID(ctx, id)
}

// PostsOf returns the posts listed on user, in list order.
func (s *UserService) PostsOf(ctx context.Context, user *models.User) ([]models.Post, error) {
	return s.posts.ListByIDs(ctx, user.PostIDs)
}

// GetUser returns the caller's profile.
func (s *UserService) GetUser(ctx context.Context, ac auth.Context) (*Profile, error) {
	if err := requireAuth(ac); err != nil {
		return nil, err
	}
	user, err := s.users.GetByID(ctx, ac.UserID)
	if err != nil {
		return nil, err
	}
	posts, err := s.PostsOf(ctx, user)
	if err != nil {
		return nil, err
	}
	return &Profile{User: user, Posts: posts}, nil
}

func (s *UserService) GetStatus(ctx context.Context, ac auth.Context) (string, error) {
	if err := requireAuth(ac); err != nil {
		return "", err
	}
	user, err := s.users.GetByID(ctx, ac.UserID)
	if err != nil {
		return "", err
	}
	return user.Status, nil
}

// UpdateStatus sets the caller's status line.
func (s *UserService) UpdateStatus(ctx context.Context, ac auth.Context, status string) (*models.User, error) {
	if err := requireAuth(ac); err != nil {
		return nil, err
	}
	status = strings.TrimSpace(status)
	if status == "" {
		return nil, models.NewValidationError("Invalid input.",
			models.ValidationDetail{Field: "status", Message: "status is required."})
	}

	if err := s.users.UpdateStatus(ctx, ac.UserID, status); err != nil {
		return nil, err
	}
	return s.users.GetByID(ctx, ac.UserID)
}
