// Package web provides HTTP handlers and REST API endpoints for lab service ordering.
package web

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/dukex/labflow/pkg/auth"
	"github.com/dukex/labflow/pkg/catalog"
	"github.com/dukex/labflow/pkg/models"
	"github.com/dukex/labflow/pkg/services"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

type APIHandlers struct {
	workflows  *services.Workflow
	jobs       *services.Job
	sows       *services.SOW
	bundles    *services.Bundle
	catalog    *catalog.Catalog
	authorizer auth.Authorizer
	validator  *validator.Validate
	logger     *slog.Logger
}

// Services groups the collaborators the handlers delegate to.
type Services struct {
	Workflows  *services.Workflow
	Jobs       *services.Job
	SOWs       *services.SOW
	Bundles    *services.Bundle
	Catalog    *catalog.Catalog
	Authorizer auth.Authorizer
}

func NewAPIHandlers(svc Services, validator *validator.Validate, logger *slog.Logger) *APIHandlers {
	return &APIHandlers{
		workflows:  svc.Workflows,
		jobs:       svc.Jobs,
		sows:       svc.SOWs,
		bundles:    svc.Bundles,
		catalog:    svc.Catalog,
		authorizer: svc.Authorizer,
		validator:  validator,
		logger:     logger,
	}
}

// RegisterRoutes mounts every endpoint on router.
func (h *APIHandlers) RegisterRoutes(router fiber.Router) {
	router.Get("/health", h.HealthCheck)

	w := router.Group("/workflows", Principal())
	w.Post("/", h.CreateWorkflow)
	w.Get("/:id", h.GetWorkflow)
	w.Patch("/:id/state", h.ChangeWorkflowState)

	j := router.Group("/jobs", Principal())
	j.Get("/", h.GetJobs)
	j.Post("/", h.CreateJob)
	j.Get("/:id", h.GetJob)
	j.Patch("/:id/state", h.ChangeJobState)
	j.Get("/:id/sow", h.GetSOW)
	j.Put("/:id/sow", h.UpsertSOW)

	router.Patch("/nodes/:id/state", Principal(), h.ChangeNodeState)

	s := router.Group("/sows", Principal())
	s.Post("/:id/signatures", h.SubmitSignature)
	s.Patch("/:id/status", h.ChangeSOWStatus)

	router.Post("/pricing/quote", h.Quote)

	router.Get("/services", h.GetServices)
	router.Get("/services/:id", h.GetService)
	router.Get("/categories", h.GetCategories)

	router.Get("/bundles", h.GetBundles)
	router.Get("/bundles/:id", h.GetBundle)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, repOk := h.workflows.HealthCheck(c.Context())

	status := "unhealthy"
	message := "labflow API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if repOk {
		status = "healthy"
		message = "labflow API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) CreateWorkflow(c fiber.Ctx) error {
	var req CreateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.workflows.Create(c.Context(), principalFrom(c), req.input())
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	principal := principalFrom(c)
	if !h.authorizer.IsPermitted(principal, auth.RoleClient) {
		return forbidden(c)
	}

	workflow, err := h.workflows.FetchByID(c.Context(), principal, models.StorageID(c.Params("id")))
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) ChangeWorkflowState(c fiber.Ctx) error {
	var req ChangeNodeStateRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	workflow, err := h.workflows.UpdateState(c.Context(), principalFrom(c), models.StorageID(c.Params("id")), req.State)
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) ChangeNodeState(c fiber.Ctx) error {
	var req ChangeNodeStateRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	node, err := h.workflows.UpdateNodeState(c.Context(), principalFrom(c), models.StorageID(c.Params("id")), req.State)
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}

	return c.JSON(node)
}

func (h *APIHandlers) GetJobs(c fiber.Ctx) error {
	jobs, err := h.jobs.List(c.Context(), principalFrom(c))
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}

	return c.JSON(fiber.Map{
		"jobs":        jobs,
		"total_count": len(jobs),
	})
}

func (h *APIHandlers) CreateJob(c fiber.Ctx) error {
	var req CreateJobRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	job, err := h.jobs.Create(c.Context(), principalFrom(c), req.input())
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}

	return c.Status(fiber.StatusCreated).JSON(job)
}

func (h *APIHandlers) GetJob(c fiber.Ctx) error {
	job, err := h.jobs.FetchByID(c.Context(), principalFrom(c), models.StorageID(c.Params("id")))
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}

	return c.JSON(job)
}

func (h *APIHandlers) ChangeJobState(c fiber.Ctx) error {
	var req ChangeJobStateRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	job, err := h.jobs.ChangeState(c.Context(), principalFrom(c), models.StorageID(c.Params("id")), req.State)
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}

	return c.JSON(job)
}

func (h *APIHandlers) GetSOW(c fiber.Ctx) error {
	sow, err := h.sows.FetchByJob(c.Context(), principalFrom(c), models.StorageID(c.Params("id")))
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}

	return c.JSON(sow)
}

func (h *APIHandlers) UpsertSOW(c fiber.Ctx) error {
	var req UpsertSOWRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	sow, err := h.sows.Upsert(c.Context(), principalFrom(c), models.StorageID(c.Params("id")), req.input())
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}

	return c.JSON(sow)
}

func (h *APIHandlers) SubmitSignature(c fiber.Ctx) error {
	var req SubmitSignatureRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	sow, err := h.sows.SubmitSignature(c.Context(), principalFrom(c), models.StorageID(c.Params("id")), req.input())
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}

	return c.JSON(sow)
}

func (h *APIHandlers) ChangeSOWStatus(c fiber.Ctx) error {
	var req ChangeSOWStatusRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	sow, err := h.sows.ChangeStatus(c.Context(), principalFrom(c), models.StorageID(c.Params("id")), req.Status)
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}

	return c.JSON(sow)
}

func (h *APIHandlers) Quote(c fiber.Ctx) error {
	var req QuoteRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	cost, err := h.catalog.Quote(c.Context(), req.ServiceID, req.FormData)
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}

	return c.JSON(QuoteResponse{ServiceID: req.ServiceID, Cost: cost})
}

func (h *APIHandlers) GetServices(c fiber.Ctx) error {
	list, err := h.catalog.ListServices(c.Context(), models.StorageID(c.Query("category")))
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}

	return c.JSON(fiber.Map{
		"services":    list,
		"total_count": len(list),
	})
}

func (h *APIHandlers) GetService(c fiber.Ctx) error {
	service, err := h.catalog.ResolveService(c.Context(), models.StorageID(c.Params("id")))
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}

	return c.JSON(service)
}

func (h *APIHandlers) GetCategories(c fiber.Ctx) error {
	categories, err := h.catalog.ListCategories(c.Context())
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}

	return c.JSON(fiber.Map{"categories": categories})
}

func (h *APIHandlers) GetBundles(c fiber.Ctx) error {
	bundles, err := h.bundles.List(c.Context())
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}

	return c.JSON(fiber.Map{
		"bundles":     bundles,
		"total_count": len(bundles),
	})
}

func (h *APIHandlers) GetBundle(c fiber.Ctx) error {
	bundle, err := h.bundles.FetchByID(c.Context(), models.StorageID(c.Params("id")))
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}

	return c.JSON(bundle)
}
