package graphql

import (
	"context"
	"strconv"

	graphqlgo "github.com/graph-gophers/graphql-go"

	"feedhub/internal/auth"
	"feedhub/internal/models"
	"feedhub/internal/service"
)

// Resolver is the root resolver. Every field delegates to a service with the
// caller's auth.Context taken from ctx.
type Resolver struct {
	auth  *service.AuthService
	posts *service.PostService
	feed  *service.FeedService
	users *service.UserService
}

// NewResolver creates the root resolver.
func NewResolver(authSvc *service.AuthService, posts *service.PostService, feed *service.FeedService, users *service.UserService) *Resolver {
	return &Resolver{auth: authSvc, posts: posts, feed: feed, users: users}
}

type userInputData struct {
	Email    string
	Name     string
	Password string
}

type postInputData struct {
	Title    string
	Content  string
	ImageURL *string
}

func (in postInputData) toService() service.PostInput {
	out := service.PostInput{Title: in.Title, Content: in.Content}
	if in.ImageURL != nil {
		out.Image.Path = *in.ImageURL
	}
	return out
}

// postID parses id. Malformed ids become 0, which matches no post.
func postID(id graphqlgo.ID) uint {
	n, err := strconv.ParseUint(string(id), 10, 64)
	if err != nil {
		return 0
	}
	return uint(n)
}

func (r *Resolver) Login(ctx context.Context, args struct{ Email, Password string }) (*authDataResolver, error) {
	res, err := r.auth.Authenticate(ctx, args.Email, args.Password)
	if err != nil {
		return nil, err
	}
	return &authDataResolver{res: res}, nil
}

func (r *Resolver) CreateUser(ctx context.Context, args struct{ UserInput userInputData }) (*userResolver, error) {
	user, err := r.auth.Register(ctx, service.RegisterInput{
		Email:    args.UserInput.Email,
		Name:     args.UserInput.Name,
		Password: args.UserInput.Password,
	})
	if err != nil {
		return nil, err
	}
	return &userResolver{user: user, posts: []models.Post{}, users: r.users}, nil
}

func (r *Resolver) GetPosts(ctx context.Context, args struct{ Page *int32 }) (*postDataResolver, error) {
	page := 1
	if args.Page != nil {
		page = int(*args.Page)
	}
	res, err := r.feed.List(ctx, auth.FromContext(ctx), page)
	if err != nil {
		return nil, err
	}
	return &postDataResolver{page: res, users: r.users}, nil
}

func (r *Resolver) GetPost(ctx context.Context, args struct{ PostID graphqlgo.ID }) (*postResolver, error) {
	post, err := r.posts.Get(ctx, auth.FromContext(ctx), postID(args.PostID))
	if err != nil {
		return nil, err
	}
	return &postResolver{post: post, users: r.users}, nil
}

func (r *Resolver) User(ctx context.Context) (*userResolver, error) {
	profile, err := r.users.GetUser(ctx, auth.FromContext(ctx))
	if err != nil {
		return nil, err
	}
	return &userResolver{user: profile.User, posts: profile.Posts, users: r.users}, nil
}

func (r *Resolver) CreatePost(ctx context.Context, args struct{ PostInput postInputData }) (*postResolver, error) {
	post, err := r.posts.Create(ctx, auth.FromContext(ctx), args.PostInput.toService())
	if err != nil {
		return nil, err
	}
	return &postResolver{post: post, users: r.users}, nil
}

func (r *Resolver) UpdatePost(ctx context.Context, args struct {
	PostID    graphqlgo.ID
	PostInput postInputData
}) (*postResolver, error) {
	post, err := r.posts.Update(ctx, auth.FromContext(ctx), postID(args.PostID), args.PostInput.toService())
	if err != nil {
		return nil, err
	}
	return &postResolver{post: post, users: r.users}, nil
}

func (r *Resolver) DeletePost(ctx context.Context, args struct{ PostID graphqlgo.ID }) (bool, error) {
	if err := r.posts.Delete(ctx, auth.FromContext(ctx), postID(args.PostID)); err != nil {
		return false, err
	}
	return true, nil
}

func (r *Resolver) UpdateStatus(ctx context.Context, args struct{ Status string }) (*userResolver, error) {
	user, err := r.users.UpdateStatus(ctx, auth.FromContext(ctx), args.Status)
	if err != nil {
		return nil, err
	}
	return &userResolver{user: user, users: r.users}, nil
}
