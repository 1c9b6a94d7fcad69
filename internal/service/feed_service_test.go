package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feedhub/internal/auth"
	"feedhub/internal/models"
)

func TestFeedServiceList(t *testing.T) {
	posts := newMemPostRepo()
	ctx := context.Background()
	for _, title := range []string{"one", "two", "three"} {
		require.NoError(t, posts.Create(ctx, &models.Post{Title: title, ImageURL: "images/" + title + ".png"}))
	}
	svc := NewFeedService(posts, 0)
	ac := auth.Context{UserID: 1, Authenticated: true}

	tests := []struct {
		page   int
		titles []string
	}{
		{page: 1, titles: []string{"three", "two"}},
		{page: 2, titles: []string{"one"}},
		{page: 3, titles: []string{}},
		{page: 0, titles: []string{}},
		{page: -4, titles: []string{}},
	}

	for _, tt := range tests {
		res, err := svc.List(ctx, ac, tt.page)
		require.NoError(t, err)
		assert.EqualValues(t, 3, res.TotalItems, "page %d", tt.page)
		require.NotNil(t, res.Posts)

		titles := []string{}
		for _, p := range res.Posts {
			titles = append(titles, p.Title)
		}
		assert.Equal(t, tt.titles, titles, "page %d", tt.page)
	}
}

func TestFeedServiceRequiresAuth(t *testing.T) {
	svc := NewFeedService(newMemPostRepo(), 2)

	_, err := svc.List(context.Background(), auth.Anonymous(), 1)
	assert.True(t, models.IsCode(err, models.CodeUnauthorized))
}

func TestFeedServiceEmpty(t *testing.T) {
	svc := NewFeedService(newMemPostRepo(), 5)
	assert.Equal(t, 5, svc.PageSize())

	res, err := svc.List(context.Background(), auth.Context{UserID: 1, Authenticated: true}, 1)
	require.NoError(t, err)
	assert.Zero(t, res.TotalItems)
	assert.Empty(t, res.Posts)
}
