package domain

import "time"

// TransitionEvent is an immutable record of one stage or assignment change.
type TransitionEvent struct {
	ID                      int64
	WorkItemID              string
	FromStage               *Stage
	ToStage                 Stage
	FromQueueID             *string
	ToQueueID               *string
	FromAssigneeID          *string
	ToAssigneeID            *string
	Reason                  string
	DurationInPreviousStage float64
	ChangedBy               string
	CreatedAt               time.Time
}

// IsCreation reports whether the event records the item's creation.
func (e *TransitionEvent) IsCreation() bool {
	return e.FromStage == nil
}
