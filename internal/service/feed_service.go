package service

import (
	"context"

	"feedhub/internal/auth"
	"feedhub/internal/models"
	"feedhub/internal/repository"
)

// DefaultFeedPageSize is the number of posts per feed page.
const DefaultFeedPageSize = 2

// FeedPage is one page of the feed plus the total number of posts.
type FeedPage struct {
	Posts      []models.Post `json:"posts"`
	TotalItems int64         `json:"totalItems"`
}

// FeedService pages through all posts, newest first.
type FeedService struct {
	posts    repository.PostRepository
	pageSize int
}

// NewFeedService creates a FeedService. A non-positive pageSize uses the default.
func NewFeedService(posts repository.PostRepository, pageSize int) *FeedService {
	if pageSize <= 0 {
		pageSize = DefaultFeedPageSize
	}
	return &FeedService{posts: posts, pageSize: pageSize}
}

// PageSize returns the configured page size.
func (s *FeedService) PageSize() int {
	return s.pageSize
}

// List returns 1-based page of the feed. Pages outside the feed are empty.
func (s *FeedService) List(ctx context.Context, ac auth.Context, page int) (*FeedPage, error) {
	if err := requireAuth(ac); err != nil {
		return nil, err
	}

	total, err := s.posts.Count(ctx)
	if err != nil {
		return nil, err
	}
	out := &FeedPage{Posts: []models.Post{}, TotalItems: total}
	if page <= 0 || int64(page-1)*int64(s.pageSize) >= total {
		return out, nil
	}

	posts, err := s.posts.List(ctx, (page-1)*s.pageSize, s.pageSize)
	if err != nil {
		return nil, err
	}
	if posts != nil {
		out.Posts = posts
	}
	return out, nil
}
