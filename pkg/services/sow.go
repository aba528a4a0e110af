package services

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/dukex/labflow/pkg/auth"
	"github.com/dukex/labflow/pkg/eventbus"
	"github.com/dukex/labflow/pkg/events"
	"github.com/dukex/labflow/pkg/models"
	"github.com/dukex/labflow/pkg/otelhelper"
	"github.com/dukex/labflow/pkg/persistence"
	"go.opentelemetry.io/otel/attribute"
)

// MaxSignatureImageBytes caps the encoded signature image.
const MaxSignatureImageBytes = 500 * 1024

// sowTransitions lists the status changes staff may request directly. SIGNED is only
// reached through signatures.
var sowTransitions = map[models.SOWStatus][]models.SOWStatus{
	models.SOWStatusDraft:     {models.SOWStatusFinal, models.SOWStatusCancelled},
	models.SOWStatusFinal:     {models.SOWStatusDraft, models.SOWStatusSent, models.SOWStatusCancelled},
	models.SOWStatusSent:      {models.SOWStatusCancelled},
	models.SOWStatusSigned:    {models.SOWStatusCancelled},
	models.SOWStatusCancelled: {},
}

// SOW manages statements of work and their dual signature protocol.
type SOW struct {
	persistence persistence.Persistence
	authorizer  auth.Authorizer
	emitter     emitter
	logger      *slog.Logger
}

// NewSOW creates a new SOW service.
func NewSOW(p persistence.Persistence, authorizer auth.Authorizer, publisher eventbus.EventPublisher, logger *slog.Logger) *SOW {
	return &SOW{
		persistence: p,
		authorizer:  authorizer,
		emitter:     emitter{publisher: publisher, logger: logger},
		logger:      logger,
	}
}

// UpsertSOWInput is the staff-authored content of a SOW. Without line items, one item
// per priced node of the job is derived.
type UpsertSOWInput struct {
	SOWNumber  int               `json:"sowNumber"  validate:"gte=1"`
	LineItems  []models.LineItem `json:"lineItems"  validate:"dive"`
	Discount   float64           `json:"discount"   validate:"gte=0"`
	IssuedAt   time.Time         `json:"issuedAt"`
	ValidUntil *time.Time        `json:"validUntil"`
}

// Upsert creates the SOW of a job or replaces its content. Replacing content clears
// signatures and returns the SOW to DRAFT; a signed SOW cannot be replaced.
func (s *SOW) Upsert(ctx context.Context, principal auth.Principal, jobID models.StorageID, input UpsertSOWInput) (*models.SOW, error) {
	const op = "SOW.Upsert"

	if !s.authorizer.IsPermitted(principal, auth.RoleStaff) {
		return nil, NewAuthorizationError(op)
	}

	if err := validateInput(op, input); err != nil {
		return nil, err
	}

	if input.IssuedAt.IsZero() {
		input.IssuedAt = time.Now().UTC()
	}

	if input.ValidUntil != nil && !input.ValidUntil.After(input.IssuedAt) {
		return nil, NewValidationError(op, "invalid_dates", "validUntil must be after issuedAt", nil)
	}

	job, err := s.persistence.Jobs().FindByID(ctx, jobID)
	if err != nil {
		return nil, notFoundOr(err, op, "job", string(jobID))
	}

	lineItems := input.LineItems
	if len(lineItems) == 0 {
		lineItems, err = s.deriveLineItems(ctx, job)
		if err != nil {
			return nil, err
		}
	}

	pricing := models.SOWPricing{LineItems: lineItems, Discount: input.Discount}
	for _, item := range lineItems {
		pricing.Subtotal += item.Amount
	}

	if pricing.Discount > pricing.Subtotal {
		return nil, NewValidationError(op, "invalid_discount", "discount exceeds subtotal", nil)
	}

	pricing.Total = pricing.Subtotal - pricing.Discount

	sow, err := s.write(ctx, job.ID, input, pricing)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "sow upserted", "sow_id", sow.ID, "job_id", job.ID, "total", pricing.Total)

	s.emitter.emit(ctx, string(sow.ID), events.SOWUpserted{
		BaseEvent: events.NewBaseEvent(events.SOWUpsertedEvent, principal.Email),
		SOWID:     sow.ID,
		JobID:     sow.JobID,
		Status:    sow.Status,
		Total:     pricing.Total,
	})

	return sow, nil
}

// write inserts the SOW or replaces the existing one. A concurrent insert for the
// same job surfaces as a duplicate and is retried as a replacement.
func (s *SOW) write(ctx context.Context, jobID models.StorageID, input UpsertSOWInput, pricing models.SOWPricing) (*models.SOW, error) {
	const op = "SOW.Upsert"

	for attempt := 0; ; attempt++ {
		existing, err := s.findByJob(ctx, jobID)
		if err != nil && !IsNotFoundError(err) {
			return nil, err
		}

		now := time.Now().UTC()

		if existing == nil {
			sow := &models.SOW{
				JobID:      jobID,
				SOWNumber:  input.SOWNumber,
				Pricing:    pricing,
				IssuedAt:   input.IssuedAt,
				ValidUntil: input.ValidUntil,
				Status:     models.SOWStatusDraft,
				CreatedAt:  now,
				UpdatedAt:  now,
			}

			err := s.persistence.SOWs().Insert(ctx, sow)
			if err == nil {
				return sow, nil
			}

			if persistence.IsDuplicate(err) && attempt == 0 {
				continue
			}

			return nil, fmt.Errorf("failed to create sow: %w", err)
		}

		sow, err := s.persistence.SOWs().UpdateByID(ctx, existing.ID, func(sow *models.SOW) error {
			if sow.Status == models.SOWStatusSigned {
				return NewValidationError(op, "sow_signed", "a signed SOW cannot be replaced", nil)
			}

			sow.SOWNumber = input.SOWNumber
			sow.Pricing = pricing
			sow.IssuedAt = input.IssuedAt
			sow.ValidUntil = input.ValidUntil
			sow.ClientSignature = nil
			sow.TechnicianSignature = nil
			sow.Status = models.SOWStatusDraft
			sow.UpdatedAt = now

			return nil
		})
		if err != nil {
			return nil, notFoundOr(err, op, "sow", string(existing.ID))
		}

		return sow, nil
	}
}

func (s *SOW) deriveLineItems(ctx context.Context, job *models.Job) ([]models.LineItem, error) {
	workflows, err := s.persistence.Workflows().FindByIDs(ctx, job.WorkflowIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load job workflows: %w", err)
	}

	items := []models.LineItem{}

	for _, workflow := range inOrder(job.WorkflowIDs, workflows) {
		nodes, err := s.persistence.Nodes().FindByIDs(ctx, workflow.NodeIDs)
		if err != nil {
			return nil, fmt.Errorf("failed to load workflow nodes: %w", err)
		}

		for _, node := range inOrder(workflow.NodeIDs, nodes) {
			if node.Price == nil {
				continue
			}

			description := node.Label
			if description == "" {
				description = "Service " + string(node.ServiceID)
			}

			items = append(items, models.LineItem{NodeID: node.ID, Description: description, Amount: *node.Price})
		}
	}

	return items, nil
}

// SubmitSignatureInput is one party's signature.
type SubmitSignatureInput struct {
	Role           models.SignatureRole `json:"role"           validate:"required,oneof=CLIENT TECHNICIAN"`
	Name           string               `json:"name"           validate:"required,max=255"`
	Title          string               `json:"title"          validate:"max=255"`
	SignedAt       time.Time            `json:"signedAt"       validate:"required"`
	SignatureImage string               `json:"signatureImage"`
}

// SubmitSignature records the signature for a role, replacing any earlier one for the
// same role. CLIENT signatures must come from the job owner and TECHNICIAN signatures
// from staff. The write and the SIGNED transition are one atomic update, so the
// transition happens exactly once.
func (s *SOW) SubmitSignature(ctx context.Context, principal auth.Principal, id models.StorageID, input SubmitSignatureInput) (*models.SOW, error) {
	const op = "SOW.SubmitSignature"

	if err := validateInput(op, input); err != nil {
		return nil, err
	}

	if len(input.SignatureImage) > MaxSignatureImageBytes {
		return nil, NewValidationError(op, "signature_too_large",
			fmt.Sprintf("signature image exceeds %d bytes", MaxSignatureImageBytes), nil)
	}

	ctx, span := otelhelper.StartSpan(ctx, otelhelper.Tracer(), "sow.submit_signature",
		attribute.String(otelhelper.SOWIDKey, string(id)),
		attribute.String(otelhelper.SignatureRoleKey, string(input.Role)),
	)
	defer span.End()

	current, err := s.persistence.SOWs().FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, op, "sow", string(id))
	}

	if !s.canSign(ctx, principal, current.JobID, input.Role) {
		return nil, NewAuthorizationError(op)
	}

	signature := &models.Signature{
		Name:           input.Name,
		Title:          input.Title,
		SignedAt:       input.SignedAt.UTC(),
		SignatureImage: input.SignatureImage,
		SubmittedBy:    principal.Identity,
	}

	var signedNow bool

	sow, err := s.persistence.SOWs().UpdateByID(ctx, id, func(sow *models.SOW) error {
		signedNow = false

		if sow.Status == models.SOWStatusCancelled {
			return NewValidationError(op, "sow_cancelled", "a cancelled SOW cannot be signed", nil)
		}

		switch input.Role {
		case models.SignatureRoleClient:
			sow.ClientSignature = signature
		case models.SignatureRoleTechnician:
			sow.TechnicianSignature = signature
		}

		if sow.FullySigned() && sow.Status != models.SOWStatusSigned {
			sow.Status = models.SOWStatusSigned
			signedNow = true
		}

		sow.UpdatedAt = time.Now().UTC()

		return nil
	})
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, notFoundOr(err, op, "sow", string(id))
	}

	s.logger.InfoContext(ctx, "sow signature submitted", "sow_id", id, "role", input.Role, "signed", signedNow)

	s.emitter.emit(ctx, string(sow.ID), events.SOWSignatureSubmitted{
		BaseEvent: events.NewBaseEvent(events.SOWSignatureSubmittedEvent, principal.Email),
		SOWID:     sow.ID,
		JobID:     sow.JobID,
		Role:      input.Role,
	})

	if signedNow {
		s.emitter.emit(ctx, string(sow.ID), events.SOWSigned{
			BaseEvent: events.NewBaseEvent(events.SOWSignedEvent, principal.Email),
			SOWID:     sow.ID,
			JobID:     sow.JobID,
		})
	}

	return sow, nil
}

func (s *SOW) canSign(ctx context.Context, principal auth.Principal, jobID models.StorageID, role models.SignatureRole) bool {
	switch role {
	case models.SignatureRoleTechnician:
		return s.authorizer.IsPermitted(principal, auth.RoleStaff)
	case models.SignatureRoleClient:
		job, err := s.persistence.Jobs().FindByID(ctx, jobID)
		if err != nil {
			s.logger.ErrorContext(ctx, "failed to load job for signature check", "job_id", jobID, "error", err)

			return false
		}

		return job.OwnedBy(principal.Identity)
	default:
		return false
	}
}

// ChangeStatus applies a staff-requested status change. Setting the current status
// again is a no-op.
func (s *SOW) ChangeStatus(ctx context.Context, principal auth.Principal, id models.StorageID, status models.SOWStatus) (*models.SOW, error) {
	const op = "SOW.ChangeStatus"

	if !s.authorizer.IsPermitted(principal, auth.RoleStaff) {
		return nil, NewAuthorizationError(op)
	}

	if !status.Valid() {
		return nil, NewValidationError(op, "invalid_status", fmt.Sprintf("unknown SOW status %q", status), nil)
	}

	var previous models.SOWStatus

	sow, err := s.persistence.SOWs().UpdateByID(ctx, id, func(sow *models.SOW) error {
		previous = sow.Status

		if sow.Status == status {
			return nil
		}

		if !slices.Contains(sowTransitions[sow.Status], status) {
			return NewValidationError(op, "invalid_transition",
				fmt.Sprintf("cannot change SOW status from %s to %s", sow.Status, status), nil)
		}

		sow.Status = status
		sow.UpdatedAt = time.Now().UTC()

		return nil
	})
	if err != nil {
		return nil, notFoundOr(err, op, "sow", string(id))
	}

	if previous != status {
		s.logger.InfoContext(ctx, "sow status changed", "sow_id", id, "from", previous, "to", status)
	}

	return sow, nil
}

// FetchByJob returns the SOW of a job visible to the principal.
func (s *SOW) FetchByJob(ctx context.Context, principal auth.Principal, jobID models.StorageID) (*models.SOW, error) {
	const op = "SOW.FetchByJob"

	job, err := s.persistence.Jobs().FindByID(ctx, jobID)
	if err != nil {
		return nil, notFoundOr(err, op, "job", string(jobID))
	}

	if !job.OwnedBy(principal.Identity) && !s.authorizer.IsPermitted(principal, auth.RoleStaff) {
		return nil, NewAuthorizationError(op)
	}

	return s.findByJob(ctx, jobID)
}

func (s *SOW) findByJob(ctx context.Context, jobID models.StorageID) (*models.SOW, error) {
	sows, err := s.persistence.SOWs().FindByFilter(ctx, persistence.Filter{"jobId": jobID})
	if err != nil {
		return nil, fmt.Errorf("failed to find sow for job %s: %w", jobID, err)
	}

	if len(sows) == 0 {
		return nil, NewNotFoundError("SOW.FetchByJob", "sow", "for job "+string(jobID))
	}

	return sows[0], nil
}
