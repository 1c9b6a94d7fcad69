package graphql

import (
	"context"
	"strconv"
	"time"

	graphqlgo "github.com/graph-gophers/graphql-go"

	"feedhub/internal/models"
	"feedhub/internal/service"
)

const isoMillis = "2006-01-02T15:04:05.000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(isoMillis)
}

func toID(id uint) graphqlgo.ID {
	return graphqlgo.ID(strconv.FormatUint(uint64(id), 10))
}

type postResolver struct {
	post  *models.Post
	users *service.UserService
}

func (r *postResolver) ID() graphqlgo.ID  { return toID(r.post.ID) }
func (r *postResolver) Title() string     { return r.post.Title }
func (r *postResolver) Content() string   { return r.post.Content }
func (r *postResolver) ImageURL() string  { return r.post.ImageURL }
func (r *postResolver) CreatedAt() string { return formatTime(r.post.CreatedAt) }
func (r *postResolver) UpdatedAt() string { return formatTime(r.post.UpdatedAt) }

func (r *postResolver) Creator(ctx context.Context) (*userResolver, error) {
	user, err := r.users.Find(ctx, r.post.Creator.UserID)
	if err != nil {
		return nil, err
	}
	return &userResolver{user: user, users: r.users}, nil
}

func newPostResolvers(posts []models.Post, users *service.UserService) []*postResolver {
	out := make([]*postResolver, 0, len(posts))
	for i := range posts {
		out = append(out, &postResolver{post: &posts[i], users: users})
	}
	return out
}

type userResolver struct {
	user  *models.User
	posts []models.Post
	users *service.UserService
}

func (r *userResolver) ID() graphqlgo.ID { return toID(r.user.ID) }
func (r *userResolver) Name() string     { return r.user.Name }
func (r *userResolver) Email() string    { return r.user.Email }
func (r *userResolver) Status() string   { return r.user.Status }

func (r *userResolver) Posts(ctx context.Context) ([]*postResolver, error) {
	if r.posts == nil {
		posts, err := r.users.PostsOf(ctx, r.user)
		if err != nil {
			return nil, err
		}
		r.posts = posts
	}
	return newPostResolvers(r.posts, r.users), nil
}

type authDataResolver struct {
	res *service.AuthResult
}

func (r *authDataResolver) Token() string  { return r.res.Token }
func (r *authDataResolver) UserID() string { return r.res.UserID }

type postDataResolver struct {
	page  *service.FeedPage
	users *service.UserService
}

func (r *postDataResolver) Posts() []*postResolver {
	return newPostResolvers(r.page.Posts, r.users)
}

func (r *postDataResolver) TotalItems() int32 {
	return int32(r.page.TotalItems)
}
