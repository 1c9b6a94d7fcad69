// Command seed fills the configured database with fake users and posts.
package main

import (
	"context"
	"flag"
	"log"

	"feedhub/internal/async"
	"feedhub/internal/auth"
	"feedhub/internal/cache"
	"feedhub/internal/config"
	"feedhub/internal/database"
	"feedhub/internal/notifications"
	"feedhub/internal/repository"
	"feedhub/internal/seed"
	"feedhub/internal/service"
)

func main() {
	numUsers := flag.Int("users", 5, "Number of users to create")
	postsPerUser := flag.Int("posts", 4, "Posts per user")
	shouldClean := flag.Bool("clean", true, "Clean database before seeding")
	fakerSeed := flag.Int64("seed", 0, "Faker seed (0 = random)")
	flag.Parse()

	log.Printf("Target: %d users, %d posts each, clean=%v", *numUsers, *postsPerUser, *shouldClean)

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	ctx := context.Background()
	rdb := cache.Connect(cfg.RedisURL)
	store := cache.NewStore(rdb)
	users := repository.NewUserRepository(db, store)
	posts := repository.NewPostRepository(db, store)
	tasks := async.NewRunner()
	attachments := service.NewAttachmentService(cfg, tasks)

	// Running API instances pick the new posts up through redis.
	bus := notifications.NewEventBus(notifications.NewHub(), notifications.NewNotifier(rdb), tasks)
	if err := bus.Start(ctx); err != nil {
		log.Fatalf("Failed to start event bus: %v", err)
	}

	tokens := auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTTTL(), cfg.JWTIssuer, cfg.JWTAudience)
	s := seed.NewSeeder(db,
		service.NewAuthService(users, tokens, cfg.BcryptCost),
		service.NewPostService(posts, users, attachments, bus),
		attachments,
	)

	res, err := s.Run(ctx, seed.Options{
		NumUsers:     *numUsers,
		PostsPerUser: *postsPerUser,
		ShouldClean:  *shouldClean,
		FakerSeed:    *fakerSeed,
	})
	if err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}

	tasks.Wait()
	_ = bus.Shutdown(ctx)
	log.Printf("Seeded %d users and %d posts (password %q)", len(res.Users), len(res.Posts), seed.DefaultPassword)
}
