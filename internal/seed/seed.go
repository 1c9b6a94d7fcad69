// Package seed fills a development database with fake users and posts.
// Everything goes through the services so post lists, image files and
// events stay consistent with what the API would produce.
package seed

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"os"
	"strings"

	"github.com/brianvoe/gofakeit/v6"
	"gorm.io/gorm"

	"feedhub/internal/auth"
	"feedhub/internal/models"
	"feedhub/internal/observability"
	"feedhub/internal/service"
)

// DefaultPassword is the password given to every seeded account.
const DefaultPassword = "password"

// Options configuration for the seeder
type Options struct {
	NumUsers     int
	PostsPerUser int
	ShouldClean  bool
	Password     string
	// FakerSeed makes runs reproducible when non-zero.
	FakerSeed int64
}

// Result reports what a run created.
type Result struct {
	Users []*models.User
	Posts []*models.Post
}

// Seeder creates accounts and posts through the services.
type Seeder struct {
	db          *gorm.DB
	auth        *service.AuthService
	posts       *service.PostService
	attachments *service.AttachmentService
}

// NewSeeder returns a Seeder. db is used only by ClearAll.
func NewSeeder(db *gorm.DB, authSvc *service.AuthService, posts *service.PostService, attachments *service.AttachmentService) *Seeder {
	return &Seeder{db: db, auth: authSvc, posts: posts, attachments: attachments}
}

// ClearAll removes every post, its image file and every user.
func (s *Seeder) ClearAll(ctx context.Context) error {
	var handles []string
	if err := s.db.WithContext(ctx).Model(&models.Post{}).Pluck("image_url", &handles).Error; err != nil {
		return fmt.Errorf("list post images: %w", err)
	}
	for _, h := range handles {
		if err := s.attachments.Remove(h); err != nil && !os.IsNotExist(err) {
			observability.L().WarnContext(ctx, "seed: failed to remove image",
				slog.String("image_url", h), slog.String("error", err.Error()))
		}
	}
	if err := s.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.Post{}).Error; err != nil {
		return fmt.Errorf("clear posts: %w", err)
	}
	if err := s.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.User{}).Error; err != nil {
		return fmt.Errorf("clear users: %w", err)
	}
	return nil
}

// Run seeds opts.NumUsers accounts with opts.PostsPerUser posts each.
func (s *Seeder) Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.ShouldClean {
		if err := s.ClearAll(ctx); err != nil {
			return nil, err
		}
	}
	password := opts.Password
	if password == "" {
		password = DefaultPassword
	}
	faker := gofakeit.New(opts.FakerSeed)

	res := &Result{}
	for i := 0; i < opts.NumUsers; i++ {
		user, err := s.auth.Register(ctx, service.RegisterInput{
			Email:    fmt.Sprintf("%s.%d@example.com", strings.ToLower(faker.Username()), i+1),
			Name:     faker.Name(),
			Password: password,
		})
		if err != nil {
			return res, fmt.Errorf("register user %d: %w", i+1, err)
		}
		res.Users = append(res.Users, user)

		ac := auth.Context{UserID: user.ID, Email: user.Email, Authenticated: true}
		for j := 0; j < opts.PostsPerUser; j++ {
			img, err := fakeImage(faker)
			if err != nil {
				return res, err
			}
			post, err := s.posts.Create(ctx, ac, service.PostInput{
				Title:   faker.Sentence(4),
				Content: faker.Paragraph(1, 3, 12, " "),
				Image: service.ImageSource{Upload: &service.UploadInput{
					Filename:    fmt.Sprintf("seed-%d-%d.png", user.ID, j+1),
					ContentType: "image/png",
					Content:     img,
				}},
			})
			if err != nil {
				return res, fmt.Errorf("create post for user %d: %w", user.ID, err)
			}
			res.Posts = append(res.Posts, post)
		}
	}

	observability.L().InfoContext(ctx, "seed complete",
		slog.Int("users", len(res.Users)),
		slog.Int("posts", len(res.Posts)),
	)
	return res, nil
}

// fakeImage renders a small two-tone PNG.
func fakeImage(faker *gofakeit.Faker) ([]byte, error) {
	const size = 64
	top := color.RGBA{R: faker.Uint8(), G: faker.Uint8(), B: faker.Uint8(), A: 255}
	bottom := color.RGBA{R: faker.Uint8(), G: faker.Uint8(), B: faker.Uint8(), A: 255}

	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		c := top
		if y >= size/2 {
			c = bottom
		}
		for x := 0; x < size; x++ {
			img.Set(x, y, c)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode seed image: %w", err)
	}
	return buf.Bytes(), nil
}
