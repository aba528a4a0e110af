package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/labflow/pkg/auth"
	"github.com/dukex/labflow/pkg/eventbus"
	"github.com/dukex/labflow/pkg/events"
	"github.com/dukex/labflow/pkg/models"
	"github.com/dukex/labflow/pkg/otelhelper"
	"github.com/dukex/labflow/pkg/persistence"
	"go.opentelemetry.io/otel/attribute"
)

// Job manages job submission and lifecycle.
type Job struct {
	persistence persistence.Persistence
	builder     *GraphBuilder
	workflows   *Workflow
	authorizer  auth.Authorizer
	emitter     emitter
	logger      *slog.Logger
}

// NewJob creates a new job service.
func NewJob(
	p persistence.Persistence,
	builder *GraphBuilder,
	workflows *Workflow,
	authorizer auth.Authorizer,
	publisher eventbus.EventPublisher,
	logger *slog.Logger,
) *Job {
	return &Job{
		persistence: p,
		builder:     builder,
		workflows:   workflows,
		authorizer:  authorizer,
		emitter:     emitter{publisher: publisher, logger: logger},
		logger:      logger,
	}
}

// CreateJobInput is a job submission with its workflow graphs.
type CreateJobInput struct {
	Name      string                `json:"name"      validate:"required,max=255"`
	Institute string                `json:"institute" validate:"required,max=255"`
	Notes     string                `json:"notes"`
	Workflows []CreateWorkflowInput `json:"workflows" validate:"required,min=1,dive"`
}

// Create builds every workflow graph first and inserts the job last, directly in
// SUBMITTED. Any failed build fails the whole job.
func (j *Job) Create(ctx context.Context, principal auth.Principal, input CreateJobInput) (*models.Job, error) {
	const op = "Job.Create"

	if !j.authorizer.IsPermitted(principal, auth.RoleClient) {
		return nil, NewAuthorizationError(op)
	}

	if err := validateInput(op, input); err != nil {
		return nil, err
	}

	ctx, span := otelhelper.StartSpan(ctx, otelhelper.Tracer(), "job.create",
		attribute.Int(otelhelper.JobWorkflowsKey, len(input.Workflows)),
	)
	defer span.End()

	var job *models.Job

	err := j.builder.Run(ctx, func(ctx context.Context, u *Unit) error {
		workflowIDs := make([]models.StorageID, 0, len(input.Workflows))

		for _, workflowInput := range input.Workflows {
			workflow, err := j.workflows.createIn(ctx, u, principal.Identity, workflowInput)
			if err != nil {
				return err
			}

			workflowIDs = append(workflowIDs, workflow.ID)
		}

		now := time.Now().UTC()
		job = &models.Job{
			Name:        input.Name,
			Notes:       input.Notes,
			Institute:   input.Institute,
			SubmittedBy: principal.Identity,
			WorkflowIDs: workflowIDs,
			Submitted:   now,
			UpdatedAt:   now,
			State:       models.JobStateSubmitted,
		}

		if err := u.Store().Jobs().Insert(ctx, job); err != nil {
			return fmt.Errorf("failed to create job: %w", err)
		}

		u.Track(persistence.CollectionJobs, job.ID)
		u.Emit(string(job.ID), events.JobCreated{
			BaseEvent:   events.NewBaseEvent(events.JobCreatedEvent, principal.Email),
			JobID:       job.ID,
			Institute:   job.Institute,
			WorkflowIDs: workflowIDs,
		})

		return nil
	})
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	span.SetAttributes(attribute.String(otelhelper.JobIDKey, string(job.ID)))
	j.logger.InfoContext(ctx, "job submitted", "job_id", job.ID, "workflows", len(job.WorkflowIDs))

	return job, nil
}

// FetchByID returns a job visible to the principal: its owner or staff.
func (j *Job) FetchByID(ctx context.Context, principal auth.Principal, id models.StorageID) (*models.Job, error) {
	const op = "Job.FetchByID"

	job, err := j.persistence.Jobs().FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, op, "job", string(id))
	}

	if !j.canView(principal, job) {
		return nil, NewAuthorizationError(op)
	}

	return job, nil
}

// List returns every job for staff and the principal's own jobs otherwise.
func (j *Job) List(ctx context.Context, principal auth.Principal) ([]*models.Job, error) {
	if !j.authorizer.IsPermitted(principal, auth.RoleClient) {
		return nil, NewAuthorizationError("Job.List")
	}

	jobs, err := j.persistence.Jobs().FindByFilter(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	visible := make([]*models.Job, 0, len(jobs))

	for _, job := range jobs {
		if j.canView(principal, job) {
			visible = append(visible, job)
		}
	}

	return visible, nil
}

// ChangeState moves a job to any known state. Staff only; transitions are not
// checked against the lifecycle.
func (j *Job) ChangeState(ctx context.Context, principal auth.Principal, id models.StorageID, state models.JobState) (*models.Job, error) {
	const op = "Job.ChangeState"

	if !j.authorizer.IsPermitted(principal, auth.RoleStaff) {
		return nil, NewAuthorizationError(op)
	}

	if !state.Valid() || state == models.JobStateCreating {
		return nil, NewValidationError(op, "invalid_state", fmt.Sprintf("unknown job state %q", state), nil)
	}

	var previous models.JobState

	job, err := j.persistence.Jobs().UpdateByID(ctx, id, func(job *models.Job) error {
		previous = job.State
		job.State = state
		job.UpdatedAt = time.Now().UTC()

		return nil
	})
	if err != nil {
		return nil, notFoundOr(err, op, "job", string(id))
	}

	j.logger.InfoContext(ctx, "job state changed", "job_id", id, "from", previous, "to", state)

	j.emitter.emit(ctx, string(job.ID), events.JobStateChanged{
		BaseEvent: events.NewBaseEvent(events.JobStateChangedEvent, principal.Email),
		JobID:     job.ID,
		From:      previous,
		To:        state,
	})

	return job, nil
}

func (j *Job) canView(principal auth.Principal, job *models.Job) bool {
	return job.OwnedBy(principal.Identity) || j.authorizer.IsPermitted(principal, auth.RoleStaff)
}
