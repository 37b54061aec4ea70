// Package server contains HTTP and WebSocket handlers for the application's API endpoints.
package server

import (
	"context"
	"errors"
	"time"

	"trashtalk/internal/config"
	"trashtalk/internal/middleware"
	"trashtalk/internal/models"
	"trashtalk/internal/notifications"
	"trashtalk/internal/observability"
	"trashtalk/internal/policy"
	"trashtalk/internal/repository"
	"trashtalk/internal/service"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	verifier       *middleware.TokenVerifier
	limiter        *middleware.RateLimiter
	wsLog          *observability.WSLogger

	userRepo   repository.UserRepository
	followRepo repository.FollowRepository

	registry      *notifications.Registry
	policy        *policy.Engine
	follows       *service.FollowService
	notifications *service.NotificationService
	dispatcher    *service.Dispatcher
	streams       *service.StreamManager
	reactions     *service.ReactionService
}

// NewServer creates a Server using already-initialized dependencies.
// redisClient may be nil; presence is then process-local and rate limiting is skipped.
func NewServer(cfg *config.Config, db *gorm.DB, redisClient *redis.Client) (*Server, error) {
	if cfg == nil || db == nil {
		return nil, errors.New("server: config and database are required")
	}

	userRepo := repository.NewUserRepository(db)
	followRepo := repository.NewFollowRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	streamRepo := repository.NewStreamRepository(db)
	reactionRepo := repository.NewReactionRepository(db)

	registry := notifications.NewRegistry(notifications.Config{
		MaxConnsPerUser:     cfg.WSMaxConnsPerUser,
		MaxTotalConns:       cfg.WSMaxTotalConns,
		SignalRatePerSecond: cfg.WSSignalRatePerSecond,
		SignalBurst:         cfg.WSSignalBurst,
	}, redisClient)

	engine := policy.NewEngine(userRepo, followRepo)
	notificationService := service.NewNotificationService(notificationRepo, cfg.NotificationPublishAttempts)
	dispatcher := service.NewDispatcher(notificationService, followRepo, userRepo, registry)
	follows := service.NewFollowService(followRepo, userRepo, engine)
	streams := service.NewStreamManager(streamRepo, followRepo, userRepo, engine, registry, dispatcher)

	follows.Subscribe(dispatcher)
	follows.Subscribe(streams)
	registry.OnClose(streams.HandleClose)

	return &Server{
		config:         cfg,
		db:             db,
		redis:          redisClient,
		promMiddleware: middleware.InitMetrics("trashtalk-api"),
		verifier:       middleware.NewTokenVerifier(cfg.JWTSecret),
		limiter:        middleware.NewRateLimiter(redisClient, cfg.Env),
		wsLog:          observability.NewWSLogger("realtime"),
		userRepo:       userRepo,
		followRepo:     followRepo,
		registry:       registry,
		policy:         engine,
		follows:        follows,
		notifications:  notificationService,
		dispatcher:     dispatcher,
		streams:        streams,
		reactions:      service.NewReactionService(reactionRepo, repository.NewOwnershipRepository(db), engine, dispatcher),
	}, nil
}

// Recover ends streams a previous process left live.
func (s *Server) Recover(ctx context.Context) error {
	_, err := s.streams.Recover(ctx)
	return err
}

// App builds the Fiber application on first use.
func (s *Server) App() *fiber.App {
	if s.app != nil {
		return s.app
	}
	app := fiber.New(fiber.Config{
		AppName:      "trashtalk",
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			var fe *fiber.Error
			if errors.As(err, &fe) {
				return c.Status(fe.Code).JSON(models.ErrorResponse{Error: fe.Message})
			}
			return models.RespondWithError(c, err)
		},
	})
	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	s.app = app
	return app
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.TracingMiddleware())
	app.Use(middleware.ContextMiddleware())
	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}
	app.Use(helmet.New())
	app.Use(middleware.StructuredLogger())

	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowCredentials: true,
		MaxAge:           86400,
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}

	app.Get("/ws", s.UpgradeRequired(), s.WebsocketHandler())

	api := app.Group("/api", middleware.AuthRequired(s.verifier), middleware.ContextMiddleware())

	follows := api.Group("/follows")
	// specific routes before /:userId
	follows.Get("/pending", s.ListPendingFollows)
	follows.Post("/:userId/accept", s.AcceptFollow)
	follows.Post("/:userId/reject", s.RejectFollow)
	follows.Post("/:userId", s.limiter.Limit("follow_request", 20, 5*time.Minute), s.RequestFollow)
	follows.Delete("/:userId", s.Unfollow)
	api.Delete("/followers/:userId", s.RemoveFollower)

	users := api.Group("/users")
	users.Get("/:id/followers", s.ListFollowers)
	users.Get("/:id/following", s.ListFollowing)
	users.Get("/:id/online", s.GetOnlineStatus)

	notes := api.Group("/notifications")
	notes.Get("/", s.ListNotifications)
	notes.Post("/:id/read", s.MarkNotificationRead)
	notes.Patch("/:id", s.EditNotification)
	notes.Delete("/:id", s.DeleteNotification)

	admin := api.Group("/admin", s.AdminRequired())
	admin.Post("/notifications", s.limiter.Limit("admin_broadcast", 10, time.Minute), s.BroadcastNotification)
	admin.Post("/advertisements", s.PublishAdvertisement)

	streams := api.Group("/streams")
	streams.Get("/", s.ListStreams)
	streams.Post("/:id/end", s.EndStream)
	streams.Get("/:id", s.GetStream)

	api.Post("/posts/:id/like", s.limiter.Limit("like", 60, time.Minute), s.LikePost)
	api.Post("/challenges/:id/vote", s.limiter.Limit("vote", 30, time.Minute), s.VoteChallenge)
}

// AdminRequired rejects non-admin users with 403. It must run after AuthRequired.
func (s *Server) AdminRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := s.userRepo.GetByID(c.UserContext(), userIDFrom(c))
		if err != nil {
			return models.RespondWithError(c, err)
		}
		if !user.IsAdmin {
			return models.RespondWithError(c, models.NewForbiddenError("Admin access required"))
		}
		return c.Next()
	}
}

// Shutdown ends live streams, closes every socket and stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error
	if err := s.streams.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := s.registry.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
