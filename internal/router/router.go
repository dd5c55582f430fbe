package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-chat-api/internal/config"
	"github.com/noah-isme/gema-chat-api/internal/handler"
	"github.com/noah-isme/gema-chat-api/internal/middleware"
	"github.com/noah-isme/gema-chat-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	UserHandler    *handler.UserHandler
	RoomHandler    *handler.RoomHandler
	MessageHandler *handler.MessageHandler
	TypingHandler  *handler.TypingHandler
	FeedHandler    *handler.FeedHandler
	UploadHandler  *handler.UploadHandler
	AdminHandler   *handler.AdminHandler
	// UploadDir is served under /uploads when files are stored locally.
	UploadDir string
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler())
	if deps.UploadDir != "" {
		app.Static("/uploads", deps.UploadDir)
	}

	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))
	api.Get("/metrics", observability.MetricsHandler())

	if deps.UserHandler != nil {
		deps.UserHandler.Register(api.Group("/users"))
	}

	rooms := api.Group("/rooms")
	if deps.RoomHandler != nil {
		deps.RoomHandler.Register(rooms)
		deps.RoomHandler.RegisterDMs(api.Group("/dms"))
	}
	if deps.MessageHandler != nil {
		limiter := middleware.RateLimit("messages", cfg.RateLimitMessages, cfg.RateLimitWindow)
		deps.MessageHandler.RegisterRoomRoutes(rooms, limiter)
		deps.MessageHandler.Register(api.Group("/messages"))
	}
	if deps.TypingHandler != nil {
		deps.TypingHandler.Register(rooms)
	}
	if deps.FeedHandler != nil {
		deps.FeedHandler.Register(rooms)
	}

	if deps.UploadHandler != nil {
		deps.UploadHandler.Register(api.Group("/uploads"))
	}
	if deps.AdminHandler != nil {
		deps.AdminHandler.Register(api.Group("/admin"))
	}
}
