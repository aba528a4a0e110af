package models

import "time"

// SOWStatus is the lifecycle state of a statement of work.
type SOWStatus string

const (
	SOWStatusDraft     SOWStatus = "DRAFT"
	SOWStatusFinal     SOWStatus = "FINAL"
	SOWStatusSent      SOWStatus = "SENT"
	SOWStatusSigned    SOWStatus = "SIGNED"
	SOWStatusCancelled SOWStatus = "CANCELLED"
)

// Valid reports whether s is a known SOW status.
func (s SOWStatus) Valid() bool {
	switch s {
	case SOWStatusDraft, SOWStatusFinal, SOWStatusSent, SOWStatusSigned, SOWStatusCancelled:
		return true
	default:
		return false
	}
}

// SignatureRole is the party a signature is submitted for.
type SignatureRole string

const (
	SignatureRoleClient     SignatureRole = "CLIENT"
	SignatureRoleTechnician SignatureRole = "TECHNICIAN"
)

// LineItem is one priced entry of a SOW.
type LineItem struct {
	NodeID      StorageID `json:"nodeId,omitempty"`
	Description string    `json:"description" validate:"required"`
	Amount      float64   `json:"amount"      validate:"gte=0"`
}

// SOWPricing is the pricing snapshot of a SOW.
type SOWPricing struct {
	LineItems []LineItem `json:"lineItems"`
	Subtotal  float64    `json:"subtotal"`
	Discount  float64    `json:"discount"`
	Total     float64    `json:"total"`
}

// Signature is one party's sign-off.
type Signature struct {
	Name           string    `json:"name"`
	Title          string    `json:"title,omitempty"`
	SignedAt       time.Time `json:"signedAt"`
	SignatureImage string    `json:"signatureImage,omitempty"`
	SubmittedBy    Identity  `json:"submittedBy"`
}

// SOW is the statement of work of a job. There is at most one per job.
type SOW struct {
	ID                  StorageID  `json:"id"`
	JobID               StorageID  `json:"jobId"`
	SOWNumber           int        `json:"sowNumber"`
	Pricing             SOWPricing `json:"pricing"`
	IssuedAt            time.Time  `json:"issuedAt"`
	ValidUntil          *time.Time `json:"validUntil,omitempty"`
	ClientSignature     *Signature `json:"clientSignature,omitempty"`
	TechnicianSignature *Signature `json:"technicianSignature,omitempty"`
	Status              SOWStatus  `json:"status"`
	CreatedAt           time.Time  `json:"createdAt"`
	UpdatedAt           time.Time  `json:"updatedAt"`
}

func (s *SOW) DocumentID() StorageID      { return s.ID }
func (s *SOW) SetDocumentID(id StorageID) { s.ID = id }

// FullySigned reports whether both parties have signed.
func (s *SOW) FullySigned() bool {
	return s.ClientSignature != nil && s.TechnicianSignature != nil
}
