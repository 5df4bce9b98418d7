package server

import (
	"context"
	"errors"
	"log/slog"

	"backend-trailtracker/internal/auth"
	"backend-trailtracker/internal/config"
	"backend-trailtracker/internal/db"
	"backend-trailtracker/internal/profile"
	"backend-trailtracker/internal/stream"
	"backend-trailtracker/internal/trail"

	sentryfiber "github.com/getsentry/sentry-go/fiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
)

type Server struct {
	App    *fiber.App
	Cfg    config.Config
	DB     db.Pool
	Redis  *redis.Client
	Stream *stream.Hub
}

func NewServer(cfg config.Config, pool db.Pool, redisClient *redis.Client) *Server {
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
	})
	if cfg.SentryDSN != "" {
		app.Use(sentryfiber.New(sentryfiber.Options{
			Repanic:         true,
			WaitForDelivery: false,
		}))
	}
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(logger.New(logger.Config{
		Format: "${time} | ${status} | ${latency} | ${locals:requestid} | ${method} | ${path}\n",
	}))

	s := &Server{
		App:    app,
		Cfg:    cfg,
		DB:     pool,
		Redis:  redisClient,
		Stream: stream.NewHub(redisClient),
	}

	registerRoutes(s)
	return s
}

// Close stops change delivery. The pool and redis client belong to the caller.
func (s *Server) Close() error {
	return s.Stream.Close()
}

func registerRoutes(s *Server) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	jwtMiddleware := auth.JWTMiddleware(s.Cfg.JWTSecret)

	trails := trail.NewService(s.DB, s.Stream)
	profiles := profile.NewService(s.DB, trails, s.Stream)
	authSvc := auth.NewService(s.Cfg.JWTSecret, s.DB)
	authSvc.OnLogin(func(ctx context.Context, userID string) error {
		_, err := profiles.Ensure(ctx, userID)
		return err
	})

	auth.RegisterRoutes(s.App.Group("/auth"), authSvc, jwtMiddleware)

	trailsGroup := s.App.Group("/trails")
	trail.RegisterRoutes(trailsGroup, trails, jwtMiddleware)
	profile.RegisterTagRoutes(trailsGroup, profiles, trails, jwtMiddleware)
	profile.RegisterRoutes(s.App.Group("/profile"), profiles, jwtMiddleware)

	streamGroup := s.App.Group("/stream")
	trail.RegisterStreamRoutes(streamGroup, trails, s.Stream, jwtMiddleware)
	stream.RegisterRoutes(streamGroup, s.Stream, jwtMiddleware, ownTopics)
}

// ownTopics lets a caller listen on the public topic and on topics scoped
// to their own user id.
func ownTopics(c *fiber.Ctx, topic string) bool {
	if topic == stream.TopicPublicTrails {
		return true
	}
	sess, ok := auth.SessionFrom(c)
	if !ok {
		return false
	}
	return topic == stream.CreatorTopic(sess.UserID) || topic == stream.ProfileTopic(sess.UserID)
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}

	if code >= fiber.StatusInternalServerError {
		slog.Error("request failed",
			"method", c.Method(),
			"path", c.Path(),
			"status", code,
			"request_id", c.Locals("requestid"),
			"error", err.Error(),
		)
		if hub := sentryfiber.GetHubFromContext(c); hub != nil {
			hub.CaptureException(err)
		}
	}

	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": err.Error(),
	})
}
