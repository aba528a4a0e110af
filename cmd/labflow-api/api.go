// Package main provides the labflow API server.
package main

import (
	"log/slog"
	"strconv"

	"github.com/dukex/labflow/pkg/cmd"
	"github.com/dukex/labflow/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

type API struct {
	logger   *slog.Logger
	stack    *cmd.Stack
	validate *validator.Validate
}

func NewAPI(logger *slog.Logger, stack *cmd.Stack) *API {
	return &API{
		logger:   logger,
		stack:    stack,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(a.stack.WebServices(), a.validate, a.logger)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("labflow API")
	})

	handlers.RegisterRoutes(app)

	return app
}

func (a *API) Start(port int) error {
	return a.App().Listen(":" + strconv.Itoa(port))
}
