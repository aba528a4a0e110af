package web

import (
	"time"

	"github.com/dukex/labflow/pkg/models"
	"github.com/dukex/labflow/pkg/services"
)

// CreateWorkflowRequest represents the request body for submitting a workflow graph.
type CreateWorkflowRequest struct {
	Label string                  `json:"label" validate:"max=255"`
	Nodes []models.SubmissionNode `json:"nodes" validate:"required,min=1,dive"`
	Edges []models.SubmissionEdge `json:"edges" validate:"dive"`
}

func (r CreateWorkflowRequest) input() services.CreateWorkflowInput {
	return services.CreateWorkflowInput{Label: r.Label, Nodes: r.Nodes, Edges: r.Edges}
}

// CreateJobRequest represents the request body for submitting a job.
type CreateJobRequest struct {
	Name      string                  `json:"name"      validate:"required,max=255"`
	Institute string                  `json:"institute" validate:"required,max=255"`
	Notes     string                  `json:"notes"`
	Workflows []CreateWorkflowRequest `json:"workflows" validate:"required,min=1,dive"`
}

func (r CreateJobRequest) input() services.CreateJobInput {
	workflows := make([]services.CreateWorkflowInput, len(r.Workflows))
	for i, workflow := range r.Workflows {
		workflows[i] = workflow.input()
	}

	return services.CreateJobInput{Name: r.Name, Institute: r.Institute, Notes: r.Notes, Workflows: workflows}
}

// ChangeJobStateRequest represents the request body for moving a job.
type ChangeJobStateRequest struct {
	State models.JobState `json:"state" validate:"required"`
}

// ChangeNodeStateRequest represents the request body for moving a node or workflow.
type ChangeNodeStateRequest struct {
	State models.NodeState `json:"state" validate:"required,oneof=QUEUED IN_PROGRESS COMPLETE"`
}

// UpsertSOWRequest represents the request body for writing a job's SOW.
type UpsertSOWRequest struct {
	SOWNumber  int               `json:"sowNumber"  validate:"required,gte=1"`
	LineItems  []models.LineItem `json:"lineItems"  validate:"dive"`
	Discount   float64           `json:"discount"   validate:"gte=0"`
	IssuedAt   time.Time         `json:"issuedAt"`
	ValidUntil *time.Time        `json:"validUntil"`
}

func (r UpsertSOWRequest) input() services.UpsertSOWInput {
	return services.UpsertSOWInput{
		SOWNumber:  r.SOWNumber,
		LineItems:  r.LineItems,
		Discount:   r.Discount,
		IssuedAt:   r.IssuedAt,
		ValidUntil: r.ValidUntil,
	}
}

// SubmitSignatureRequest represents the request body for signing a SOW.
type SubmitSignatureRequest struct {
	Role           models.SignatureRole `json:"role"           validate:"required,oneof=CLIENT TECHNICIAN"`
	Name           string               `json:"name"           validate:"required,max=255"`
	Title          string               `json:"title"          validate:"max=255"`
	SignedAt       time.Time            `json:"signedAt"       validate:"required"`
	SignatureImage string               `json:"signatureImage"`
}

func (r SubmitSignatureRequest) input() services.SubmitSignatureInput {
	return services.SubmitSignatureInput{
		Role:           r.Role,
		Name:           r.Name,
		Title:          r.Title,
		SignedAt:       r.SignedAt,
		SignatureImage: r.SignatureImage,
	}
}

// ChangeSOWStatusRequest represents the request body for a staff status change.
type ChangeSOWStatusRequest struct {
	Status models.SOWStatus `json:"status" validate:"required"`
}

// QuoteRequest represents the request body for pricing a submission.
type QuoteRequest struct {
	ServiceID models.StorageID `json:"serviceId" validate:"required"`
	FormData  any              `json:"formData"`
}

// QuoteResponse is the computed cost of a submission.
type QuoteResponse struct {
	ServiceID models.StorageID `json:"serviceId"`
	Cost      float64          `json:"cost"`
}
