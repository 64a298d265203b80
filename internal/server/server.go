// Package server contains HTTP and WebSocket handlers for the application's API endpoints.
package server

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	_ "github.com/bearkuang/oristagram/docs" // swagger docs
	"github.com/bearkuang/oristagram/internal/config"
	"github.com/bearkuang/oristagram/internal/featureflags"
	"github.com/bearkuang/oristagram/internal/middleware"
	"github.com/bearkuang/oristagram/internal/models"
	"github.com/bearkuang/oristagram/internal/notifications"
	"github.com/bearkuang/oristagram/internal/repository"
	"github.com/bearkuang/oristagram/internal/service"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/swagger"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	limiter        *middleware.Limiter
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	shutdownCtx    context.Context
	shutdownFn     context.CancelFunc
	notifier       *notifications.Notifier
	chatHub        *notifications.ChatHub
	featureFlags   *featureflags.Manager
	tempTokens     service.TempTokenVerifier
	prober         service.VideoProber
	tokens         *service.TokenService
	authService    *service.AuthService
	userService    *service.UserService
	postService    *service.PostService
	reelService    *service.ReelService
	commentService *service.CommentService
	followService  *service.FollowService
	feedService    *service.FeedService
	chatService    *service.ChatService
	mediaService   *service.MediaService
}

// Option customizes a Server built by NewServerWithDeps.
type Option func(*Server)

// WithTempTokenVerifier replaces the verifier guarding reactivate and
// account deletion. The default is the server's TokenService.
func WithTempTokenVerifier(v service.TempTokenVerifier) Option {
	return func(s *Server) { s.tempTokens = v }
}

// WithVideoProber replaces the ffprobe-backed duration probe.
func WithVideoProber(p service.VideoProber) Option {
	return func(s *Server) { s.prober = p }
}

var (
	promOnce      sync.Once
	promCollector *fiberprometheus.FiberPrometheus
)

// metricsCollector registers the HTTP collector once per process; a second
// registration would panic.
func metricsCollector() *fiberprometheus.FiberPrometheus {
	promOnce.Do(func() {
		promCollector = middleware.InitMetrics("oristagram-api")
	})
	return promCollector
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// Use this in tests or when a bootstrap layer establishes DB/Redis.
// redisClient may be nil: chat then stays on this instance and the
// blacklist and ws tickets are unavailable.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client, opts ...Option) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if db == nil {
		return nil, errors.New("database is required")
	}

	server := &Server{
		config:         cfg,
		db:             db,
		redis:          redisClient,
		limiter:        middleware.NewLimiter(redisClient, cfg.Env),
		promMiddleware: metricsCollector(),
		featureFlags:   featureflags.NewManager(cfg.FeatureFlags),
	}
	if cfg.FFProbeEnabled {
		server.prober = service.FFProbe{}
	}
	for _, opt := range opts {
		opt(server)
	}
	if unknown := server.featureFlags.Unknown(); len(unknown) > 0 {
		middleware.Logger.Warn("FEATURE_FLAGS names unknown flags", slog.Any("flags", unknown))
	}
	if server.prober == nil {
		middleware.Logger.Warn("video prober disabled, the 60s feed and 90s reel length limits are not enforced",
			slog.Bool("ffprobe_enabled", cfg.FFProbeEnabled))
	}

	// Initialize repositories
	userRepo := repository.NewUserRepository(db)
	postRepo := repository.NewPostRepository(db)
	reelRepo := repository.NewReelRepository(db)
	engagementRepo := repository.NewEngagementRepository(db)
	commentRepo := repository.NewCommentRepository(db)
	followRepo := repository.NewFollowRepository(db)
	tagRepo := repository.NewTagRepository(db)
	chatRepo := repository.NewChatRepository(db)

	// Chat fan-out goes through Redis only when the flag allows it
	var notifier *notifications.Notifier
	if redisClient != nil && server.featureFlags.Enabled(featureflags.ChatPubSub, 0) {
		notifier = notifications.NewNotifier(redisClient)
	}
	server.notifier = notifier
	server.chatHub = notifications.NewChatHub(notifier)

	server.tokens = service.NewTokenService(service.TokenConfigFrom(cfg), redisClient)
	if server.tempTokens == nil {
		server.tempTokens = server.tokens
	}
	server.mediaService = service.NewMediaService(cfg, server.prober)
	server.authService = service.NewAuthService(userRepo, server.tokens, server.mediaService, redisClient)
	server.userService = service.NewUserService(userRepo, followRepo, postRepo, reelRepo, server.mediaService)
	server.commentService = service.NewCommentService(commentRepo)
	server.postService = service.NewPostService(postRepo, engagementRepo, server.commentService, userRepo, server.mediaService)
	server.reelService = service.NewReelService(reelRepo, engagementRepo, server.commentService, userRepo, server.mediaService)
	server.followService = service.NewFollowService(followRepo, userRepo)
	server.feedService = service.NewFeedService(postRepo, reelRepo, tagRepo, server.featureFlags, cfg.FeedPopularLimit)
	server.chatService = service.NewChatService(chatRepo, userRepo, server.chatHub)

	return server, nil
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	// Panic recovery
	app.Use(recover.New())

	// Request ID for tracing
	app.Use(requestid.New())

	if s.config.OTelEnabled {
		app.Use(middleware.TracingMiddleware())
	}

	// Context Middleware to propagate Request ID and User ID
	app.Use(middleware.ContextMiddleware())

	// Prometheus Metrics
	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	// Security headers; media is embedded cross-origin by the web client
	app.Use(helmet.New(helmet.Config{
		CrossOriginResourcePolicy: "cross-origin",
	}))

	// Structured Logging middleware (after requestid and context middleware)
	app.Use(middleware.StructuredLogger())

	// CORS middleware should run before middlewares that can short-circuit (e.g. limiter)
	// so browser clients still receive CORS headers on error responses.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000,http://127.0.0.1:5173"
	}

	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	// Global rate limiting (100 requests per minute per IP)
	app.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
		// Never rate-limit preflight requests; they should be handled by CORS.
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions || !middleware.RateLimitsEnabled(s.config.Env)
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests, please try again later.",
			})
		},
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	// Health checks
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	app.Get("/health", s.ReadinessCheck)

	// Metrics endpoint for Prometheus
	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}

	// Uploaded media
	app.Static("/media", s.mediaService.UploadDir(), fiber.Static{
		ByteRange: true,
		MaxAge:    3600,
	})

	api := app.Group("/api")
	api.Get("/metrics/dashboard", monitor.New(monitor.Config{
		Title: "Oristagram Backend Metrics Dashboard",
	}))

	// Swagger documentation
	api.Get("/swagger/*", swagger.HandlerDefault)

	authLimit := s.limiter.Handler(middleware.AuthQuota)

	// Auth routes
	auth := api.Group("/auth")
	auth.Post("/register", authLimit, s.Register)
	auth.Post("/login", authLimit, s.Login)
	auth.Post("/refresh", authLimit, s.Refresh)
	auth.Post("/logout", s.AuthRequired(), s.Logout)
	auth.Get("/me", s.AuthRequired(), s.Me)
	auth.Post("/reactivate", authLimit, s.TempTokenRequired(), s.Reactivate)
	auth.Delete("/account", s.TempTokenRequired(), s.DeleteAccount)

	// Public; registered before the protected group's middleware
	api.Get("/feature-flags", s.GetFeatureFlags)

	// Protected routes
	protected := api.Group("", s.AuthRequired())

	protected.Post("/ws/ticket", s.IssueWSTicket)

	// User routes; fixed paths before /:id
	users := protected.Group("/users")
	users.Get("/profile", s.GetMyProfile)
	users.Get("/profile/:id", s.GetUserProfile)
	users.Get("/following", s.GetMyFollowing)
	users.Post("/me/avatar", s.UploadAvatar)
	users.Post("/me/deactivate", s.Deactivate)
	users.Get("/:id/followers", s.GetFollowers)
	users.Get("/:id/following", s.GetFollowing)
	users.Get("/:id", s.GetUser)
	users.Put("/:id", s.UpdateUser)
	users.Patch("/:id", s.UpdateUser)

	// Search
	search := protected.Group("/search")
	search.Get("/usernames", s.SearchUsernames)
	search.Get("/tags", s.SearchTags)
	search.Get("/tagged", s.GetTagged)

	commentLimit := s.limiter.Handler(middleware.CommentQuota)

	// Posts
	posts := newContentHandlers(s.postService, repository.OrderNewest)
	postRoutes := protected.Group("/posts")
	postRoutes.Get("/", posts.List)
	postRoutes.Post("/", posts.Create)
	postRoutes.Get("/user/:user_id", posts.ListByUser)
	postRoutes.Post("/:id/like", posts.Like)
	postRoutes.Post("/:id/unlike", posts.Unlike)
	postRoutes.Post("/:id/mark", posts.Mark)
	postRoutes.Post("/:id/unmark", posts.Unmark)
	postRoutes.Post("/:id/comment", commentLimit, posts.Comment)
	postRoutes.Get("/:id/comments", posts.Comments)
	postRoutes.Get("/:id", posts.Get)
	postRoutes.Put("/:id", posts.Update)
	postRoutes.Patch("/:id", posts.Update)
	postRoutes.Delete("/:id", posts.Delete)

	// Reels
	reels := newContentHandlers(s.reelService, repository.OrderEngagement)
	reelRoutes := protected.Group("/reels")
	reelRoutes.Get("/", reels.List)
	reelRoutes.Post("/", reels.Create)
	reelRoutes.Get("/feed", reels.Followed)
	reelRoutes.Get("/top_reels", s.GetTopReels)
	reelRoutes.Get("/user/:user_id", reels.ListByUser)
	reelRoutes.Post("/:id/like", reels.Like)
	reelRoutes.Post("/:id/unlike", reels.Unlike)
	reelRoutes.Post("/:id/mark", reels.Mark)
	reelRoutes.Post("/:id/unmark", reels.Unmark)
	reelRoutes.Post("/:id/comment", commentLimit, reels.Comment)
	reelRoutes.Get("/:id/comments", reels.Comments)
	reelRoutes.Get("/:id", reels.Get)
	reelRoutes.Put("/:id", reels.Update)
	reelRoutes.Patch("/:id", reels.Update)
	reelRoutes.Delete("/:id", reels.Delete)

	// Comments
	comments := protected.Group("/comments")
	comments.Get("/", s.GetComments)
	comments.Get("/:id/replies", s.GetReplies)
	comments.Post("/:id/replies", commentLimit, s.CreateReply)
	comments.Get("/:id", s.GetComment)
	comments.Delete("/:id", s.DeleteComment)

	// Follows
	follows := protected.Group("/follows")
	follows.Post("/:id/follow", s.Follow)
	follows.Post("/:id/unfollows", s.Unfollow)
	follows.Post("/:id/unfollow", s.Unfollow)

	// Feed and explore
	protected.Get("/feed", s.GetFeed)
	protected.Get("/explore", s.GetExplore)

	// Chat
	chatrooms := protected.Group("/chatrooms")
	chatrooms.Get("/", s.GetMyChatRooms)
	chatrooms.Post("/", s.CreateChatRoom)
	chatrooms.Get("/:id/messages", s.GetMessages)
	chatrooms.Post("/:id/messages", s.limiter.Handler(middleware.ChatMessageQuota), s.SendMessage)

	// Websocket endpoint; auth by ticket or bearer token
	app.Get("/ws/chat/:chatroom_id", s.WebSocketUpgrade, s.AuthRequired(), s.ChatRoomMember, s.WebSocketChatHandler())
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck handles readiness probe requests
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	sqlDB, err := s.db.DB()
	if err != nil {
		dbStatus = "unhealthy"
	} else if err := sqlDB.PingContext(ctx); err != nil {
		dbStatus = "unhealthy"
	}

	redisStatus := "healthy"
	if s.redis != nil {
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	} else {
		redisStatus = "unavailable"
	}

	status := fiber.StatusOK
	overallStatus := "healthy"
	if dbStatus == "unhealthy" || redisStatus != "healthy" {
		status = fiber.StatusServiceUnavailable
		overallStatus = "unhealthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"version": "1.0.0",
		"status":  overallStatus,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
		"time": time.Now(),
	})
}

// AuthRequired returns the authentication middleware. Websocket paths also
// accept a single-use ticket in ?ticket=.
func (s *Server) AuthRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()

		if strings.HasPrefix(c.Path(), "/ws/") {
			if ticket := c.Query("ticket"); ticket != "" {
				userID, err := s.authService.RedeemWSTicket(ctx, ticket)
				if err != nil {
					return models.RespondWithError(c, mapServiceError(err), err)
				}
				setCurrentUser(c, userID, nil)
				return c.Next()
			}
		}

		tokenString, err := middleware.BearerToken(c)
		if err != nil {
			return middleware.Unauthorized(c, err)
		}

		claims, err := s.authService.Authenticate(ctx, tokenString)
		if err != nil {
			return models.RespondWithError(c, mapServiceError(err), err)
		}

		setCurrentUser(c, claims.UserID, claims)
		return c.Next()
	}
}

// TempTokenRequired admits only the short-lived token handed out when a
// deactivated account logs in, and only while the account stays deactivated.
func (s *Server) TempTokenRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()
		tokenString, err := middleware.BearerToken(c)
		if err != nil {
			return middleware.Unauthorized(c, err)
		}
		claims, err := s.tempTokens.VerifyTemp(ctx, tokenString)
		if err != nil {
			return models.RespondWithError(c, mapServiceError(err), err)
		}
		if err := s.authService.RequireDeactivated(ctx, claims.UserID); err != nil {
			return models.RespondWithError(c, mapServiceError(err), err)
		}
		setCurrentUser(c, claims.UserID, claims)
		return c.Next()
	}
}

func setCurrentUser(c *fiber.Ctx, userID uint, claims *service.TokenClaims) {
	c.Locals("userID", userID)
	if claims != nil {
		c.Locals("claims", claims)
	}
	// Sync to UserContext for logging and downstream services
	c.SetUserContext(middleware.WithUserID(c.UserContext(), userID))
}

// App builds the Fiber app with middleware and routes. Start serves it.
func (s *Server) App() *fiber.App {
	if s.app != nil {
		return s.app
	}
	limitMB := s.config.MediaMaxUploadSizeMB
	if limitMB <= 0 {
		limitMB = service.DefaultMediaMaxUploadSizeMB
	}
	app := fiber.New(fiber.Config{
		AppName:   "Oristagram API",
		BodyLimit: (limitMB + 1) * 1024 * 1024,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			var fe *fiber.Error
			if errors.As(err, &fe) {
				return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message})
			}
			middleware.Logger.ErrorContext(c.UserContext(), "unhandled error", slog.String("error", err.Error()))
			return models.RespondWithError(c, fiber.StatusInternalServerError,
				models.NewInternalError(err))
		},
	})
	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	s.app = app
	return app
}

// StartHubs wires the chat hub to Redis. Start calls it; tests driving the
// app directly call it themselves.
func (s *Server) StartHubs(ctx context.Context) {
	if s.shutdownFn == nil {
		s.shutdownCtx, s.shutdownFn = context.WithCancel(ctx)
	}
	if err := s.chatHub.StartWiring(s.shutdownCtx); err != nil {
		middleware.Logger.Error("failed to start chat hub wiring",
			slog.String("hub", s.chatHub.Name()),
			slog.String("error", err.Error()),
		)
	}
}

// Start starts the server
func (s *Server) Start() error {
	app := s.App()
	s.StartHubs(context.Background())

	middleware.Logger.Info("server starting", slog.String("port", s.config.Port))
	return app.Listen(":" + s.config.Port)
}

// Shutdown stops the HTTP server, then the hub, then closes DB and Redis.
func (s *Server) Shutdown(ctx context.Context) error {
	// Cancel the server-scoped context to stop the room subscriber
	if s.shutdownFn != nil {
		s.shutdownFn()
	}

	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			middleware.Logger.Error("error shutting down HTTP server", slog.String("error", err.Error()))
		}
	}

	if err := s.chatHub.Shutdown(ctx); err != nil {
		middleware.Logger.Error("error shutting down hub",
			slog.String("hub", s.chatHub.Name()),
			slog.String("error", err.Error()),
		)
	}

	return nil
}

// Close releases the database and Redis connections. It runs after Shutdown
// and after the tracer has been flushed.
func (s *Server) Close() {
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

	middleware.Logger.Info("server shutdown complete")
}
