package service

import (
	"context"
	"time"

	"github.com/spec-kit/workflow-service/internal/domain"
	"github.com/spec-kit/workflow-service/internal/repository"
)

// IDGenerator hands out time-ordered ids for history rows.
type IDGenerator interface {
	Next() int64
}

// HistoryRecorder appends transition events and notes. It has no update or delete
// path; stored rows are never revisited.
type HistoryRecorder struct {
	ids IDGenerator
}

// NewHistoryRecorder builds a recorder.
func NewHistoryRecorder(ids IDGenerator) *HistoryRecorder {
	return &HistoryRecorder{ids: ids}
}

// RecordTransition stamps event and appends it through store. The time spent in the
// previous stage is measured from the item's latest event, or from its creation when
// it has none, and frozen into the row. A clock that moved backwards never yields a
// negative duration or an event older than its predecessor.
func (h *HistoryRecorder) RecordTransition(ctx context.Context, store repository.Store, item *domain.WorkItem, event *domain.TransitionEvent, now time.Time) error {
	previous, ok, err := store.Events().LastEventAt(ctx, item.ID)
	if err != nil {
		return err
	}
	if !ok {
		previous = item.CreatedAt
	}
	at := now
	if at.Before(previous) {
		at = previous
	}

	event.ID = h.ids.Next()
	event.WorkItemID = item.ID
	event.CreatedAt = at
	event.DurationInPreviousStage = at.Sub(previous).Hours()
	return store.Events().Append(ctx, event)
}

// RecordNote stamps note and appends it through store.
func (h *HistoryRecorder) RecordNote(ctx context.Context, store repository.Store, note *domain.Note, now time.Time) error {
	note.ID = h.ids.Next()
	note.CreatedAt = now
	return store.Notes().Append(ctx, note)
}
