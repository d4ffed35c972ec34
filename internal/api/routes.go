package api

import (
	"github.com/bilgisen/kafkaesque/internal/config"
	"github.com/bilgisen/kafkaesque/internal/middleware"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewApp creates the fiber app with every route registered
func NewApp(cfg *config.Config, handlers *Handlers) *fiber.App {
	app := fiber.New(fiber.Config{
		ReadTimeout:           cfg.HTTPTimeout,
		WriteTimeout:          cfg.HTTPTimeout,
		ErrorHandler:          middleware.ErrorHandler,
		DisableStartupMessage: true,
	})
	SetupRoutes(app, handlers, cfg)
	return app
}

// SetupRoutes configures all the routes for the application
func SetupRoutes(app *fiber.App, handlers *Handlers, cfg *config.Config) {
	// Middleware
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.RequestLogger())

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api")

	api.Get("/health", handlers.HealthCheck)

	// Posts endpoints
	posts := api.Group("/posts")
	{
		posts.Get("", middleware.ValidateQuery[listQuery](handlers.validator), handlers.ListPosts)
		posts.Get("/:slug", handlers.GetPost)
	}

	api.Get("/search", handlers.Search)
	api.Post("/signup", handlers.Signup)

	api.Get("/image-proxy", handlers.ImageProxy)
	api.Get("/image", handlers.ImageProxy)

	// Admin endpoints, absent unless ADMIN_API_KEY is set
	admin := api.Group("/admin", middleware.AdminOnly(cfg.AdminAPIKey))
	{
		admin.Post("/search/invalidate", handlers.InvalidateSearch)
	}

	// 404 Handler
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Endpoint not found",
		})
	})
}
