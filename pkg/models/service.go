package models

// PricingMode selects how the cost of a service is computed.
type PricingMode string

const (
	PricingModeService   PricingMode = "SERVICE"   // Flat price
	PricingModeParameter PricingMode = "PARAMETER" // Computed from submitted parameter values
)

// Service is a catalog entry a node can be bound to.
type Service struct {
	ID                 StorageID   `json:"id"`
	Name               string      `json:"name"                         validate:"required"`
	Description        string      `json:"description,omitempty"`
	Price              any         `json:"price,omitempty"`
	PricingMode        PricingMode `json:"pricingMode,omitempty"        validate:"omitempty,oneof=SERVICE PARAMETER"`
	Parameters         []Parameter `json:"parameters,omitempty"`
	AllowedConnections []StorageID `json:"allowedConnections,omitempty"`
	Categories         []StorageID `json:"categories,omitempty"`
}

func (s *Service) DocumentID() StorageID      { return s.ID }
func (s *Service) SetDocumentID(id StorageID) { s.ID = id }

// EffectivePricingMode returns the pricing mode, defaulting to SERVICE when unset.
func (s *Service) EffectivePricingMode() PricingMode {
	if s.PricingMode == PricingModeParameter {
		return PricingModeParameter
	}

	return PricingModeService
}

// CanConnectTo reports whether target is whitelisted as a downstream service.
func (s *Service) CanConnectTo(target StorageID) bool {
	for _, id := range s.AllowedConnections {
		if id == target {
			return true
		}
	}

	return false
}

// Category groups services in the catalog.
type Category struct {
	ID          StorageID `json:"id"`
	Name        string    `json:"name"                  validate:"required"`
	Description string    `json:"description,omitempty"`
}

func (c *Category) DocumentID() StorageID      { return c.ID }
func (c *Category) SetDocumentID(id StorageID) { c.ID = id }
