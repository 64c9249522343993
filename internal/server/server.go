// Package server contains HTTP and WebSocket handlers for the application's API endpoints.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"shutter/internal/config"
	"shutter/internal/database"
	"shutter/internal/middleware"
	"shutter/internal/models"
	"shutter/internal/notifications"
	"shutter/internal/observability"
	"shutter/internal/service"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// bodyLimit covers the largest accepted upload plus multipart overhead.
const bodyLimit = 16 << 20

// Deps are the already-initialized collaborators the server routes to.
type Deps struct {
	Config *config.Config
	DB     *gorm.DB
	Redis  *redis.Client

	Auth          *service.AuthService
	Users         *service.UserService
	Posts         *service.PostService
	Comments      *service.CommentService
	Notifications *service.NotificationService
	Search        *service.SearchService

	Hub      *notifications.Hub
	Notifier *notifications.Notifier

	// UploadDir is served under /uploads when blobs are stored locally.
	UploadDir string
}

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	limiter        *middleware.RateLimiter
	validate       *validator.Validate
	shutdownCtx    context.Context
	shutdownFn     context.CancelFunc

	auth                *service.AuthService
	userService         *service.UserService
	postService         *service.PostService
	commentService      *service.CommentService
	notificationService *service.NotificationService
	searchService       *service.SearchService

	hub       *notifications.Hub
	notifier  *notifications.Notifier
	uploadDir string
}

// New builds the server and its fiber app with middleware and routes in place.
func New(d Deps) *Server {
	rateLimited := d.Config.Env != "development" && d.Config.Env != "test"
	s := &Server{
		config:              d.Config,
		db:                  d.DB,
		redis:               d.Redis,
		promMiddleware:      middleware.InitMetrics("shutter-api"),
		limiter:             middleware.NewRateLimiter(d.Redis, rateLimited),
		validate:            validator.New(validator.WithRequiredStructEnabled()),
		auth:                d.Auth,
		userService:         d.Users,
		postService:         d.Posts,
		commentService:      d.Comments,
		notificationService: d.Notifications,
		searchService:       d.Search,
		hub:                 d.Hub,
		notifier:            d.Notifier,
		uploadDir:           d.UploadDir,
	}
	s.shutdownCtx, s.shutdownFn = context.WithCancel(context.Background())

	s.app = fiber.New(fiber.Config{
		AppName:      "Shutter API",
		BodyLimit:    bodyLimit,
		ErrorHandler: s.errorHandler,
	})
	s.SetupMiddleware(s.app)
	s.SetupRoutes(s.app)
	return s
}

// App exposes the fiber app, mainly for app.Test in tests.
func (s *Server) App() *fiber.App { return s.app }

func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(models.ErrorResponse{Error: fe.Message})
	}
	return s.respondError(c, err)
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.TracingMiddleware())
	app.Use(middleware.ContextMiddleware())
	app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	app.Use(helmet.New(helmet.Config{CrossOriginResourcePolicy: "cross-origin"}))
	app.Use(middleware.StructuredLogger())

	// CORS runs before anything that can short-circuit so error responses
	// still carry the headers.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowCredentials: origins != "*",
		MaxAge:           86400,
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	s.promMiddleware.RegisterAt(app, "/metrics")

	if s.uploadDir != "" {
		app.Static("/uploads", s.uploadDir, fiber.Static{MaxAge: 86400})
	}

	api := app.Group("/api")
	optional := middleware.AuthOptional(s.auth)
	required := middleware.AuthRequired(s.auth)
	perMinute := s.config.RateLimitPerMinute

	auth := api.Group("/auth")
	auth.Post("/register", s.limiter.Handler("register", 5, 10*time.Minute), s.Register)
	auth.Post("/login", s.limiter.Handler("login", 10, 5*time.Minute), s.Login)

	// Define specific /:id/:resource routes BEFORE generic /:id route
	posts := api.Group("/posts")
	posts.Get("/", optional, s.ListPosts)
	posts.Get("/explore", optional, s.Explore)
	posts.Post("/", required, s.limiter.Handler("create_post", perMinute, time.Minute), s.CreatePost)
	posts.Get("/:id/comments", optional, s.ListComments)
	posts.Post("/:id/comments", required, s.limiter.Handler("create_comment", perMinute, time.Minute), s.CreateComment)
	posts.Get("/:id/likes", optional, s.ListLikes)
	posts.Post("/:id/like", required, s.limiter.Handler("like", perMinute, time.Minute), s.ToggleLike)
	posts.Get("/:id", optional, s.GetPost)
	posts.Put("/:id", required, s.UpdatePost)
	posts.Delete("/:id", required, s.DeletePost)

	api.Get("/feed", required, s.Feed)
	api.Delete("/comments/:id", required, s.DeleteComment)

	users := api.Group("/users")
	users.Post("/me/avatar", required, s.limiter.Handler("avatar", 10, 10*time.Minute), s.UploadAvatar)
	users.Get("/:id/posts", optional, s.ListUserPosts)
	users.Get("/:id/followers", s.ListFollowers)
	users.Get("/:id/following", s.ListFollowing)
	users.Post("/:id/follow", required, s.limiter.Handler("follow", perMinute, time.Minute), s.ToggleFollow)
	users.Get("/:id", optional, s.GetProfile)

	notes := api.Group("/notifications", required)
	notes.Get("/", s.ListNotifications)
	notes.Get("/unread-count", s.UnreadNotificationCount)
	notes.Put("/read-all", s.MarkAllNotificationsRead)
	notes.Put("/:id/read", s.MarkNotificationRead)

	search := api.Group("/search", optional)
	search.Get("/", s.limiter.Handler("search", perMinute, time.Minute), s.Search)
	search.Get("/autocomplete", s.Autocomplete)

	api.Get("/ws/notifications", middleware.WebSocketAuthRequired(s.auth), s.requireUpgrade, s.NotificationsWebSocket())
}

// LivenessCheck reports that the process is up.
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck reports 503 unless both the primary store and Redis answer.
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	if err := database.Ping(ctx, s.db); err != nil {
		dbStatus = "unhealthy"
	}

	redisStatus := "healthy"
	if s.redis == nil {
		redisStatus = "unavailable"
	} else if err := s.redis.Ping(ctx).Err(); err != nil {
		redisStatus = "unhealthy"
	}

	status := fiber.StatusOK
	overall := "healthy"
	if dbStatus != "healthy" || redisStatus != "healthy" {
		status = fiber.StatusServiceUnavailable
		overall = "unhealthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overall,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
		"time": time.Now(),
	})
}

// Start wires the notification hub to Redis and blocks serving HTTP.
func (s *Server) Start() error {
	s.wireNotifications()
	observability.Logger.Info("Server starting", slog.String("port", s.config.Port))
	return s.app.Listen(":" + s.config.Port)
}

// Serve is Start on an existing listener.
func (s *Server) Serve(ln net.Listener) error {
	s.wireNotifications()
	observability.Logger.Info("Server starting", slog.String("addr", ln.Addr().String()))
	return s.app.Listener(ln)
}

func (s *Server) wireNotifications() {
	if s.notifier == nil || s.hub == nil {
		return
	}
	go func() {
		if err := s.hub.StartWiring(s.shutdownCtx, s.notifier); err != nil && !errors.Is(err, context.Canceled) {
			observability.Logger.Error("notification wiring stopped", slog.String("error", err.Error()))
		}
	}()
}

// Shutdown stops accepting requests and closes every websocket. Closing the
// database and Redis is left to whoever opened them.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdownFn()

	var errs []error
	if err := s.app.ShutdownWithContext(ctx); err != nil {
		errs = append(errs, err)
	}
	if s.hub != nil {
		if err := s.hub.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	observability.Logger.Info("Server shutdown complete")
	return errors.Join(errs...)
}
