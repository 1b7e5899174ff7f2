package events

import (
	"time"

	"github.com/spec-kit/workflow-service/internal/domain"
)

// EventType enumerates supported event identifiers. The value doubles as the AMQP
// routing key.
type EventType string

const (
	EventWorkItemCreated  EventType = "work_item.created"
	EventStageChanged     EventType = "work_item.stage_changed"
	EventAssigned         EventType = "work_item.assigned"
	EventReleased         EventType = "work_item.released"
	EventNoteAdded        EventType = "work_item.note_added"
	EventPriorityChanged  EventType = "work_item.priority_changed"
	EventAgingTierChanged EventType = "work_item.aging_changed"
)

// AllEventTypes lists every event the engine and the sweep emit.
func AllEventTypes() []EventType {
	return []EventType{
		EventWorkItemCreated,
		EventStageChanged,
		EventAssigned,
		EventReleased,
		EventNoteAdded,
		EventPriorityChanged,
		EventAgingTierChanged,
	}
}

// Event represents a committed workflow change.
type Event struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	WorkItemID string    `json:"work_item_id"`
	ActorID    string    `json:"actor_id"`
	Timestamp  time.Time `json:"timestamp"`
	Payload    any       `json:"payload"`
}

// WorkItemCreatedPayload payload.
type WorkItemCreatedPayload struct {
	DisplayNumber string          `json:"display_number"`
	Kind          domain.Kind     `json:"kind"`
	Stage         domain.Stage    `json:"stage"`
	Priority      domain.Priority `json:"priority"`
	QueueID       *string         `json:"queue_id,omitempty"`
	LocationID    string          `json:"location_id"`
}

// StageChangedPayload payload.
type StageChangedPayload struct {
	Kind       domain.Kind  `json:"kind"`
	FromStage  domain.Stage `json:"from_stage"`
	ToStage    domain.Stage `json:"to_stage"`
	QueueID    *string      `json:"queue_id,omitempty"`
	AssigneeID *string      `json:"assignee_id,omitempty"`
	Reason     string       `json:"reason,omitempty"`
}

// AssignedPayload payload.
type AssignedPayload struct {
	FromAssigneeID *string `json:"from_assignee_id,omitempty"`
	ToAssigneeID   string  `json:"to_assignee_id"`
	FromQueueID    *string `json:"from_queue_id,omitempty"`
}

// ReleasedPayload payload.
type ReleasedPayload struct {
	FromAssigneeID string `json:"from_assignee_id"`
	QueueID        string `json:"queue_id"`
}

// NoteAddedPayload payload.
type NoteAddedPayload struct {
	NoteID      int64           `json:"note_id"`
	NoteType    domain.NoteType `json:"note_type"`
	Internal    bool            `json:"internal"`
	BodyPreview string          `json:"body_preview"`
}

// PriorityChangedPayload payload.
type PriorityChangedPayload struct {
	OldPriority domain.Priority `json:"old_priority"`
	NewPriority domain.Priority `json:"new_priority"`
	DueAt       *time.Time      `json:"due_at,omitempty"`
}

// AgingTierChangedPayload payload.
type AgingTierChangedPayload struct {
	FromTier domain.AgingTier `json:"from_tier"`
	ToTier   domain.AgingTier `json:"to_tier"`
	DueAt    *time.Time       `json:"due_at,omitempty"`
}
