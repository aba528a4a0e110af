package web

import (
	"errors"
	"log/slog"

	"github.com/dukex/labflow/pkg/persistence"
	"github.com/dukex/labflow/pkg/services"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func forbidden(c fiber.Ctx) error {
	problem := problems.NewStatusProblem(403).
		WithInstance(c.Path()).
		WithType("forbidden").
		WithDetail(services.ErrForbidden.Error())

	return c.Status(fiber.StatusForbidden).JSON(problem)
}

// internalError never echoes err to the client.
func internalError(c fiber.Ctx, logger *slog.Logger, err error) error {
	logger.ErrorContext(c.Context(), "request failed",
		"method", c.Method(),
		"path", c.Path(),
		"error", err,
	)

	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithDetail("internal error")

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleServiceError provides typed error handling for service layer errors.
func handleServiceError(c fiber.Ctx, logger *slog.Logger, err error) error {
	code := ""

	var serviceErr *services.ServiceError
	if errors.As(err, &serviceErr) {
		code = serviceErr.Code
	}

	switch {
	case services.IsConstructionError(err):
		problem := problems.NewStatusProblem(400).
			WithInstance(c.Path()).
			WithType("construction_error").
			WithDetail(err.Error())

		return c.Status(fiber.StatusBadRequest).JSON(problem)

	case services.IsValidationError(err):
		problem := problems.NewStatusProblem(400).
			WithInstance(c.Path()).
			WithType(typeOr(code, "validation_error")).
			WithDetail(err.Error())

		return c.Status(fiber.StatusBadRequest).JSON(problem)

	case services.IsAuthorizationError(err):
		return forbidden(c)

	case services.IsNotFoundError(err):
		problem := problems.NewStatusProblem(404).
			WithInstance(c.Path()).
			WithType(typeOr(code, "not_found")).
			WithDetail(err.Error())

		return c.Status(fiber.StatusNotFound).JSON(problem)

	case persistence.IsDuplicate(err):
		problem := problems.NewStatusProblem(409).
			WithInstance(c.Path()).
			WithType("conflict").
			WithDetail("the resource was modified concurrently, retry the request")

		return c.Status(fiber.StatusConflict).JSON(problem)

	default:
		return internalError(c, logger, err)
	}
}

func typeOr(code, fallback string) string {
	if code == "" {
		return fallback
	}

	return code
}
