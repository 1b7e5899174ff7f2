package dto

import (
	"time"

	"github.com/spec-kit/workflow-service/internal/domain"
)

// CreateWorkItemRequest payload.
type CreateWorkItemRequest struct {
	Kind        domain.Kind     `json:"kind"`
	Priority    domain.Priority `json:"priority"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	LocationID  string          `json:"location_id"`
	DueAt       *time.Time      `json:"due_at"`
}

// TransitionRequest payload.
type TransitionRequest struct {
	ToStage    domain.Stage `json:"to_stage"`
	Reason     string       `json:"reason"`
	AssigneeID *string      `json:"assignee_id"`
	DueAt      *time.Time   `json:"due_at"`
}

// AssignRequest payload.
type AssignRequest struct {
	AssigneeID string `json:"assignee_id"`
	Reason     string `json:"reason"`
}

// ReleaseRequest payload. The body is optional.
type ReleaseRequest struct {
	Reason string `json:"reason"`
}

// ChangePriorityRequest payload.
type ChangePriorityRequest struct {
	Priority domain.Priority `json:"priority"`
	Reason   string          `json:"reason"`
}

// CreateNoteRequest payload.
type CreateNoteRequest struct {
	Type              domain.NoteType `json:"type"`
	Text              string          `json:"text"`
	Internal          bool            `json:"internal"`
	ExternallyVisible bool            `json:"externally_visible"`
}

// WorkItemResponse is the API view of a work item.
type WorkItemResponse struct {
	ID            string           `json:"id"`
	DisplayNumber string           `json:"display_number"`
	Kind          domain.Kind      `json:"kind"`
	Stage         domain.Stage     `json:"stage"`
	Priority      domain.Priority  `json:"priority"`
	Title         string           `json:"title"`
	Description   string           `json:"description"`
	QueueID       *string          `json:"queue_id"`
	AssigneeID    *string          `json:"assignee_id"`
	DueAt         *time.Time       `json:"due_at"`
	AgingTier     domain.AgingTier `json:"aging_tier"`
	SLABreached   bool             `json:"sla_breached"`
	LocationID    string           `json:"location_id"`
	CreatedBy     string           `json:"created_by"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
	CompletedAt   *time.Time       `json:"completed_at"`
	Version       int64            `json:"version"`
}

// NewWorkItemResponse maps a domain item.
func NewWorkItemResponse(item *domain.WorkItem) WorkItemResponse {
	return WorkItemResponse{
		ID:            item.ID,
		DisplayNumber: item.DisplayNumber,
		Kind:          item.Kind,
		Stage:         item.Stage,
		Priority:      item.Priority,
		Title:         item.Title,
		Description:   item.Description,
		QueueID:       item.QueueID,
		AssigneeID:    item.AssigneeID,
		DueAt:         item.DueAt,
		AgingTier:     item.AgingTier,
		SLABreached:   item.SLABreached,
		LocationID:    item.LocationID,
		CreatedBy:     item.CreatedBy,
		CreatedAt:     item.CreatedAt,
		UpdatedAt:     item.UpdatedAt,
		CompletedAt:   item.CompletedAt,
		Version:       item.Version,
	}
}

// TransitionEventResponse is one history row. Ids are strings so that JavaScript
// clients keep full precision.
type TransitionEventResponse struct {
	ID                      int64         `json:"id,string"`
	FromStage               *domain.Stage `json:"from_stage"`
	ToStage                 domain.Stage  `json:"to_stage"`
	FromQueueID             *string       `json:"from_queue_id"`
	ToQueueID               *string       `json:"to_queue_id"`
	FromAssigneeID          *string       `json:"from_assignee_id"`
	ToAssigneeID            *string       `json:"to_assignee_id"`
	Reason                  string        `json:"reason"`
	DurationInPreviousStage float64       `json:"duration_in_previous_stage_hours"`
	ChangedBy               string        `json:"changed_by"`
	CreatedAt               time.Time     `json:"created_at"`
}

// NewTransitionEventResponse maps a history row.
func NewTransitionEventResponse(event *domain.TransitionEvent) TransitionEventResponse {
	return TransitionEventResponse{
		ID:                      event.ID,
		FromStage:               event.FromStage,
		ToStage:                 event.ToStage,
		FromQueueID:             event.FromQueueID,
		ToQueueID:               event.ToQueueID,
		FromAssigneeID:          event.FromAssigneeID,
		ToAssigneeID:            event.ToAssigneeID,
		Reason:                  event.Reason,
		DurationInPreviousStage: event.DurationInPreviousStage,
		ChangedBy:               event.ChangedBy,
		CreatedAt:               event.CreatedAt,
	}
}

// NoteResponse is the API view of a note.
type NoteResponse struct {
	ID                int64           `json:"id,string"`
	Type              domain.NoteType `json:"type"`
	Text              string          `json:"text"`
	Internal          bool            `json:"internal"`
	ExternallyVisible bool            `json:"externally_visible"`
	CreatedBy         string          `json:"created_by"`
	CreatedAt         time.Time       `json:"created_at"`
}

// NewNoteResponse maps a note.
func NewNoteResponse(note *domain.Note) NoteResponse {
	return NoteResponse{
		ID:                note.ID,
		Type:              note.Type,
		Text:              note.Text,
		Internal:          note.Internal,
		ExternallyVisible: note.ExternallyVisible,
		CreatedBy:         note.CreatedBy,
		CreatedAt:         note.CreatedAt,
	}
}

// QueueResponse is the API view of a queue.
type QueueResponse struct {
	ID           string       `json:"id"`
	Code         string       `json:"code"`
	Name         string       `json:"name"`
	Kind         domain.Kind  `json:"kind"`
	Stage        domain.Stage `json:"stage"`
	LocationID   string       `json:"location_id"`
	AllowedRoles []string     `json:"allowed_roles"`
	SLAHours     int          `json:"sla_hours"`
}

// NewQueueResponse maps a queue.
func NewQueueResponse(queue *domain.Queue) QueueResponse {
	return QueueResponse{
		ID:           queue.ID,
		Code:         queue.Code,
		Name:         queue.Name,
		Kind:         queue.Kind,
		Stage:        queue.Stage,
		LocationID:   queue.LocationID,
		AllowedRoles: queue.AllowedRoles,
		SLAHours:     queue.SLAHours,
	}
}

// AgingSummaryResponse counts open items per tier.
type AgingSummaryResponse struct {
	OnTime   int `json:"on_time"`
	AtRisk   int `json:"at_risk"`
	Breached int `json:"breached"`
	Total    int `json:"total"`
}

// NewAgingSummaryResponse maps a summary.
func NewAgingSummaryResponse(summary domain.AgingSummary) AgingSummaryResponse {
	return AgingSummaryResponse{
		OnTime:   summary.OnTime,
		AtRisk:   summary.AtRisk,
		Breached: summary.Breached,
		Total:    summary.OnTime + summary.AtRisk + summary.Breached,
	}
}
