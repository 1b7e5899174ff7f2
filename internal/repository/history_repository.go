package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/workflow-service/internal/domain"
)

type transitionEventRepository struct {
	db DBTX
}

// NewTransitionEventRepository builds repository.
func NewTransitionEventRepository(db DBTX) TransitionEventRepository {
	return &transitionEventRepository{db: db}
}

func (r *transitionEventRepository) Append(ctx context.Context, event *domain.TransitionEvent) error {
	const query = `
        INSERT INTO transition_events (id, work_item_id, from_stage, to_stage, from_queue_id, to_queue_id,
            from_assignee_id, to_assignee_id, reason, duration_in_previous_stage, changed_by, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`
	var fromStage *string
	if event.FromStage != nil {
		s := string(*event.FromStage)
		fromStage = &s
	}
	_, err := r.db.Exec(ctx, query,
		event.ID,
		event.WorkItemID,
		fromStage,
		string(event.ToStage),
		event.FromQueueID,
		event.ToQueueID,
		event.FromAssigneeID,
		event.ToAssigneeID,
		event.Reason,
		event.DurationInPreviousStage,
		event.ChangedBy,
		event.CreatedAt,
	)
	return err
}

func (r *transitionEventRepository) ListByWorkItem(ctx context.Context, workItemID string) ([]domain.TransitionEvent, error) {
	const query = `
        SELECT id, work_item_id, from_stage, to_stage, from_queue_id, to_queue_id, from_assignee_id, to_assignee_id,
               reason, duration_in_previous_stage, changed_by, created_at
        FROM transition_events WHERE work_item_id=$1 ORDER BY created_at ASC, id ASC`
	rows, err := r.db.Query(ctx, query, workItemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []domain.TransitionEvent{}
	for rows.Next() {
		var (
			event     domain.TransitionEvent
			fromStage *string
			toStage   string
		)
		if err := rows.Scan(
			&event.ID,
			&event.WorkItemID,
			&fromStage,
			&toStage,
			&event.FromQueueID,
			&event.ToQueueID,
			&event.FromAssigneeID,
			&event.ToAssigneeID,
			&event.Reason,
			&event.DurationInPreviousStage,
			&event.ChangedBy,
			&event.CreatedAt,
		); err != nil {
			return nil, err
		}
		if fromStage != nil {
			s := domain.Stage(*fromStage)
			event.FromStage = &s
		}
		event.ToStage = domain.Stage(toStage)
		result = append(result, event)
	}
	return result, rows.Err()
}

func (r *transitionEventRepository) LastEventAt(ctx context.Context, workItemID string) (time.Time, bool, error) {
	const query = `
        SELECT created_at FROM transition_events WHERE work_item_id=$1
        ORDER BY created_at DESC, id DESC LIMIT 1`
	var last time.Time
	if err := r.db.QueryRow(ctx, query, workItemID).Scan(&last); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, err
	}
	return last, true, nil
}

type noteRepository struct {
	db DBTX
}

// NewNoteRepository builds repository.
func NewNoteRepository(db DBTX) NoteRepository {
	return &noteRepository{db: db}
}

func (r *noteRepository) Append(ctx context.Context, note *domain.Note) error {
	const query = `
        INSERT INTO notes (id, work_item_id, note_type, body, internal, externally_visible, created_by, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`
	_, err := r.db.Exec(ctx, query,
		note.ID,
		note.WorkItemID,
		string(note.Type),
		note.Text,
		note.Internal,
		note.ExternallyVisible,
		note.CreatedBy,
		note.CreatedAt,
	)
	return err
}

func (r *noteRepository) ListByWorkItem(ctx context.Context, workItemID string, includeInternal bool) ([]domain.Note, error) {
	const query = `
        SELECT id, work_item_id, note_type, body, internal, externally_visible, created_by, created_at
        FROM notes WHERE work_item_id=$1 AND ($2 OR NOT internal)
        ORDER BY created_at ASC, id ASC`
	rows, err := r.db.Query(ctx, query, workItemID, includeInternal)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []domain.Note{}
	for rows.Next() {
		var (
			note     domain.Note
			noteType string
		)
		if err := rows.Scan(
			&note.ID,
			&note.WorkItemID,
			&noteType,
			&note.Text,
			&note.Internal,
			&note.ExternallyVisible,
			&note.CreatedBy,
			&note.CreatedAt,
		); err != nil {
			return nil, err
		}
		note.Type = domain.NoteType(noteType)
		result = append(result, note)
	}
	return result, rows.Err()
}
