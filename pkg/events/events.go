// Package events defines the domain events emitted by the ordering core.
package events

import (
	"time"

	"github.com/dukex/labflow/pkg/models"
	"github.com/google/uuid"
)

type EventType string

// Topic carries every domain event.
const Topic = "labflow.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Graph events.
	WorkflowCreatedEvent  EventType = "workflow.created"
	BundleCreatedEvent    EventType = "bundle.created"
	NodeStateChangedEvent EventType = "node.state_changed"

	// Job lifecycle events.
	JobCreatedEvent      EventType = "job.created"
	JobStateChangedEvent EventType = "job.state_changed"

	// Statement of work events.
	SOWUpsertedEvent           EventType = "sow.upserted"
	SOWSignatureSubmittedEvent EventType = "sow.signature_submitted"
	SOWSignedEvent             EventType = "sow.signed"

	// Catalog events.
	CatalogReloadedEvent EventType = "catalog.reloaded"
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Actor     string         `json:"actor,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// EventID returns the unique id of the event occurrence.
func (e BaseEvent) EventID() string {
	return e.ID
}

// NewBaseEvent stamps a new event of the given type.
func NewBaseEvent(eventType EventType, actor string) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Actor:     actor,
		Metadata:  make(map[string]any),
	}
}

type WorkflowCreated struct {
	BaseEvent

	WorkflowID models.StorageID `json:"workflow_id"`
	NodeCount  int              `json:"node_count"`
	EdgeCount  int              `json:"edge_count"`
}

func (e WorkflowCreated) GetType() EventType {
	return WorkflowCreatedEvent
}

type BundleCreated struct {
	BaseEvent

	BundleID models.StorageID `json:"bundle_id"`
	Name     string           `json:"name"`
}

func (e BundleCreated) GetType() EventType {
	return BundleCreatedEvent
}

type NodeStateChanged struct {
	BaseEvent

	NodeID models.StorageID `json:"node_id"`
	From   models.NodeState `json:"from"`
	To     models.NodeState `json:"to"`
}

func (e NodeStateChanged) GetType() EventType {
	return NodeStateChangedEvent
}

type JobCreated struct {
	BaseEvent

	JobID       models.StorageID   `json:"job_id"`
	Institute   string             `json:"institute"`
	WorkflowIDs []models.StorageID `json:"workflow_ids"`
}

func (e JobCreated) GetType() EventType {
	return JobCreatedEvent
}

type JobStateChanged struct {
	BaseEvent

	JobID models.StorageID `json:"job_id"`
	From  models.JobState  `json:"from"`
	To    models.JobState  `json:"to"`
}

func (e JobStateChanged) GetType() EventType {
	return JobStateChangedEvent
}

type SOWUpserted struct {
	BaseEvent

	SOWID  models.StorageID `json:"sow_id"`
	JobID  models.StorageID `json:"job_id"`
	Status models.SOWStatus `json:"status"`
	Total  float64          `json:"total"`
}

func (e SOWUpserted) GetType() EventType {
	return SOWUpsertedEvent
}

type SOWSignatureSubmitted struct {
	BaseEvent

	SOWID models.StorageID     `json:"sow_id"`
	JobID models.StorageID     `json:"job_id"`
	Role  models.SignatureRole `json:"role"`
}

func (e SOWSignatureSubmitted) GetType() EventType {
	return SOWSignatureSubmittedEvent
}

type SOWSigned struct {
	BaseEvent

	SOWID models.StorageID `json:"sow_id"`
	JobID models.StorageID `json:"job_id"`
}

func (e SOWSigned) GetType() EventType {
	return SOWSignedEvent
}

type CatalogReloaded struct {
	BaseEvent

	Services   int `json:"services"`
	Categories int `json:"categories"`
	Bundles    int `json:"bundles"`
}

func (e CatalogReloaded) GetType() EventType {
	return CatalogReloadedEvent
}

// Types lists every domain event type.
var Types = []EventType{
	WorkflowCreatedEvent,
	BundleCreatedEvent,
	NodeStateChangedEvent,
	JobCreatedEvent,
	JobStateChangedEvent,
	SOWUpsertedEvent,
	SOWSignatureSubmittedEvent,
	SOWSignedEvent,
	CatalogReloadedEvent,
}

// New returns an empty event value for eventType, ready for decoding.
func New(eventType EventType) (any, bool) {
	switch eventType {
	case WorkflowCreatedEvent:
		return &WorkflowCreated{}, true
	case BundleCreatedEvent:
		return &BundleCreated{}, true
	case NodeStateChangedEvent:
		return &NodeStateChanged{}, true
	case JobCreatedEvent:
		return &JobCreated{}, true
	case JobStateChangedEvent:
		return &JobStateChanged{}, true
	case SOWUpsertedEvent:
		return &SOWUpserted{}, true
	case SOWSignatureSubmittedEvent:
		return &SOWSignatureSubmitted{}, true
	case SOWSignedEvent:
		return &SOWSigned{}, true
	case CatalogReloadedEvent:
		return &CatalogReloaded{}, true
	default:
		return nil, false
	}
}
