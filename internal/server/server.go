// Package server contains the HTTP, GraphQL and WebSocket surfaces of the feed.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/swagger"
	graphqlgo "github.com/graph-gophers/graphql-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	_ "feedhub/docs" // swagger docs
	"feedhub/internal/async"
	"feedhub/internal/auth"
	"feedhub/internal/cache"
	"feedhub/internal/config"
	"feedhub/internal/database"
	"feedhub/internal/graphql"
	"feedhub/internal/middleware"
	"feedhub/internal/models"
	"feedhub/internal/notifications"
	"feedhub/internal/repository"
	"feedhub/internal/service"
)

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	tokens         *auth.TokenIssuer
	tasks          *async.Runner
	hub            *notifications.Hub
	events         *notifications.EventBus
	attachments    *service.AttachmentService
	authService    *service.AuthService
	postService    *service.PostService
	feedService    *service.FeedService
	userService    *service.UserService
	gqlSchema      *graphqlgo.Schema
}

// NewServer creates a new server instance with all dependencies
func NewServer(cfg *config.Config) (*Server, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	return NewServerWithDeps(cfg, db, cache.Connect(cfg.RedisURL))
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// redisClient may be nil; caching, rate limiting and cross-process events
// are then disabled.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client) (*Server, error) {
	if db == nil {
		return nil, errors.New("database is required")
	}

	store := cache.NewStore(redisClient)
	userRepo := repository.NewUserRepository(db, store)
	postRepo := repository.NewPostRepository(db, store)

	tasks := async.NewRunner()
	hub := notifications.NewHub()
	events := notifications.NewEventBus(hub, notifications.NewNotifier(redisClient), tasks)
	tokens := auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTTTL(), cfg.JWTIssuer, cfg.JWTAudience)
	attachments := service.NewAttachmentService(cfg, tasks)

	s := &Server{
		config:         cfg,
		db:             db,
		redis:          redisClient,
		promMiddleware: middleware.InitMetrics("feedhub-api"),
		tokens:         tokens,
		tasks:          tasks,
		hub:            hub,
		events:         events,
		attachments:    attachments,
		authService:    service.NewAuthService(userRepo, tokens, cfg.BcryptCost),
		postService:    service.NewPostService(postRepo, userRepo, attachments, events),
		feedService:    service.NewFeedService(postRepo, cfg.FeedPageSize),
		userService:    service.NewUserService(userRepo, postRepo),
	}

	schema, err := graphql.NewSchema(graphql.NewResolver(s.authService, s.postService, s.feedService, s.userService))
	if err != nil {
		return nil, fmt.Errorf("graphql schema: %w", err)
	}
	s.gqlSchema = schema
	return s, nil
}

// StartEvents initializes the event bus. It must run before the first mutation.
func (s *Server) StartEvents(ctx context.Context) error {
	return s.events.Start(ctx)
}

// NewApp builds the Fiber app with middleware and routes.
func (s *Server) NewApp() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "Feed API",
		BodyLimit:    int(s.config.MaxUploadBytes()) + 1024*1024,
		ErrorHandler: errorHandler,
	})
	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	s.app = app
	return app
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	// Panic recovery
	app.Use(recover.New())

	// Request ID for tracing
	app.Use(requestid.New())

	app.Use(middleware.TracingMiddleware())

	// Identity never rejects; handlers decide.
	app.Use(middleware.AuthContext(s.tokens))

	// Context Middleware to propagate Request ID and User ID
	app.Use(middleware.ContextMiddleware())

	// Prometheus Metrics
	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	// Images are embedded by clients on other origins.
	app.Use(helmet.New(helmet.Config{
		CrossOriginResourcePolicy: "cross-origin",
	}))

	// Structured Logging middleware (after requestid and context middleware)
	app.Use(middleware.StructuredLogger())

	// CORS runs before the limiter so rejected requests still carry CORS headers.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:3000,http://localhost:5173"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowMethods: "GET,POST,PUT,PATCH,DELETE,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version",
		MaxAge:       86400,
	}))

	// Global rate limiting (100 requests per minute per IP)
	app.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions || s.config.Env == "test"
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(models.ErrorResponse{
				Message: "Too many requests, please try again later.",
				Code:    "RATE_LIMITED",
				Status:  fiber.StatusTooManyRequests,
			})
		},
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health", s.ReadinessCheck)
	app.Get("/ping", s.Ping)

	// Metrics endpoint for Prometheus
	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}
	app.Get("/metrics/dashboard", monitor.New(monitor.Config{
		Title: "Feed API Metrics Dashboard",
	}))

	// Swagger documentation
	app.Get("/swagger/*", swagger.HandlerDefault)

	app.Static("/"+strings.Trim(s.attachments.URLPrefix(), "/"), s.attachments.UploadDir(), fiber.Static{
		MaxAge: 3600,
	})

	authLimiter := middleware.NewAuthLimiter(s.redis, s.config.AuthRateLimit, s.config.AuthRateWindow(), s.throttleAuth())
	authGroup := app.Group("/auth")
	authGroup.Put("/signup", authLimiter.Handler("signup"), s.Signup)
	authGroup.Post("/login", authLimiter.Handler("login"), s.Login)
	authGroup.Get("/status", s.GetStatus)
	authGroup.Patch("/status", s.UpdateStatus)

	feed := app.Group("/feed")
	feed.Get("/posts", s.GetPosts)
	feed.Post("/post", s.CreatePost)
	feed.Get("/post/:postId", s.GetPost)
	feed.Put("/post/:postId", s.UpdatePost)
	feed.Delete("/post/:postId", s.DeletePost)

	app.Put("/post-image", s.StoreImage)

	app.Post("/graphql", graphql.Handler(s.gqlSchema))

	app.Use("/ws", s.upgradeRequired)
	app.Get("/ws", s.WebsocketHandler())
}

// throttleAuth reports whether credential endpoints are rate limited.
func (s *Server) throttleAuth() bool {
	switch s.config.Env {
	case "", "test", "development":
		return false
	}
	return true
}

// errorHandler renders errors that escaped a handler in the error envelope.
func errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(models.ErrorResponse{
			Message: fe.Message,
			Code:    codeForStatus(fe.Code),
			Status:  fe.Code,
		})
	}
	middleware.Logger.ErrorContext(c.UserContext(), "unhandled error",
		slog.String("path", c.Path()),
		slog.String("error", err.Error()),
	)
	return models.RespondWithError(c, err)
}

func codeForStatus(status int) string {
	switch status {
	case fiber.StatusNotFound:
		return models.CodeNotFound
	case fiber.StatusUnauthorized:
		return models.CodeUnauthorized
	case fiber.StatusUnprocessableEntity, fiber.StatusBadRequest, fiber.StatusRequestEntityTooLarge:
		return models.CodeValidation
	case fiber.StatusConflict:
		return models.CodeConflict
	default:
		if status >= fiber.StatusInternalServerError {
			return models.CodeInternal
		}
		return "HTTP_ERROR"
	}
}

// Start starts the event bus and listens on the configured port.
func (s *Server) Start() error {
	if err := s.StartEvents(context.Background()); err != nil {
		return err
	}
	app := s.NewApp()
	middleware.Logger.Info("Server starting", slog.String("port", s.config.Port))
	return app.Listen(":" + s.config.Port)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			middleware.Logger.Error("error shutting down HTTP server", slog.String("error", err.Error()))
		}
	}

	if err := s.events.Shutdown(ctx); err != nil {
		middleware.Logger.Error("error shutting down event bus", slog.String("error", err.Error()))
	}

	if err := s.tasks.Shutdown(ctx); err != nil {
		middleware.Logger.Warn("background tasks still running at shutdown", slog.String("error", err.Error()))
	}

	if sqlDB, err := s.db.DB(); err == nil {
		if cerr := sqlDB.Close(); cerr != nil {
			middleware.Logger.Error("error closing sql DB", slog.String("error", cerr.Error()))
		}
	}

	if s.redis != nil {
		if rerr := s.redis.Close(); rerr != nil {
			middleware.Logger.Error("error closing redis", slog.String("error", rerr.Error()))
		}
	}

	middleware.Logger.Info("Server shutdown complete")
	return nil
}
