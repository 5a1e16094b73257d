package server

import (
	"errors"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"
	"github.com/talecraft/api/internal/handler"
	"github.com/talecraft/api/internal/middleware"
	"github.com/talecraft/api/pkg/response"
)

// Options carries everything the HTTP surface is built from
type Options struct {
	Log               zerolog.Logger
	Fairytales        *handler.FairytaleHandler
	Auth              *handler.AuthHandler
	Health            *handler.HealthHandler
	APIAuth           fiber.Handler
	RateLimiter       *middleware.RateLimiter
	FairytalesPerHour int
	AdminSecret       string
	Metrics           http.Handler
	// AudioDir is served under /audio when artifacts live on local disk
	AudioDir string
}

// New builds the fiber app with all routes registered
func New(opts Options) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler:          errorHandler,
		BodyLimit:             1024 * 1024,
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	app.Use(middleware.RequestLogger(opts.Log))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"timestamp": time.Now().Unix()})
	})
	app.Get("/health", opts.Health.Health)
	if opts.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(opts.Metrics))
	}
	if opts.AudioDir != "" {
		app.Static("/audio", filepath.Join(opts.AudioDir, "audio"), fiber.Static{ByteRange: true})
	}

	// ForwardAuth verification endpoint, called by the gateway
	app.Get("/auth/verify", opts.Auth.Verify)

	app.Post("/api/admin/reclaim", middleware.AdminToken(opts.AdminSecret), opts.Fairytales.Reclaim)

	api := app.Group("/api", opts.APIAuth)

	limit := opts.RateLimiter.FairytaleLimit(opts.FairytalesPerHour)
	fairytales := api.Group("/fairytales")
	fairytales.Post("/", limit, opts.Fairytales.Create)
	fairytales.Get("/", opts.Fairytales.List)
	fairytales.Get("/:id", opts.Fairytales.Get)
	fairytales.Delete("/:id", opts.Fairytales.Delete)
	fairytales.Post("/:id/regenerate-audio", limit, opts.Fairytales.RegenerateAudio)

	return app
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
		message = e.Message
	}

	errCode := response.CodeServiceError
	if code == fiber.StatusNotFound {
		errCode = response.CodeNotFound
	}
	return response.Error(c, code, errCode, message, nil)
}
