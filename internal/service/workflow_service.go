package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/workflow-service/internal/domain"
	"github.com/spec-kit/workflow-service/internal/events"
	"github.com/spec-kit/workflow-service/internal/idgen"
	"github.com/spec-kit/workflow-service/internal/observability"
	"github.com/spec-kit/workflow-service/internal/repository"
	"github.com/spec-kit/workflow-service/internal/workflow"
	apperrors "github.com/spec-kit/workflow-service/pkg/util/errorutil"
)

const notePreviewLength = 140

// WorkflowService drives work items through their stages. Every mutation loads the
// item under a row lock, writes the item and its history in one unit of work, and
// notifies after commit.
type WorkflowService struct {
	store      repository.UnitOfWork
	table      *workflow.TransitionTable
	router     *workflow.QueueRouter
	classifier workflow.AgingClassifier
	policy     workflow.DuePolicy
	history    *HistoryRecorder
	notifier   events.Notifier
	logger     *zap.Logger
	metrics    *observability.Metrics
	now        func() time.Time
	newID      func() string
}

// WorkflowDependencies bundles collaborators for the workflow and query services.
type WorkflowDependencies struct {
	Store      repository.UnitOfWork
	Table      *workflow.TransitionTable
	Router     *workflow.QueueRouter
	Classifier workflow.AgingClassifier
	DuePolicy  workflow.DuePolicy
	History    *HistoryRecorder
	Notifier   events.Notifier
	Logger     *zap.Logger
	Metrics    *observability.Metrics
	Clock      func() time.Time
	NewID      func() string
}

func (d WorkflowDependencies) withDefaults() WorkflowDependencies {
	if d.Table == nil {
		d.Table = workflow.DefaultTransitionTable()
	}
	if d.Router == nil {
		d.Router = workflow.NewQueueRouter(d.Table, nil)
	}
	if d.DuePolicy.Hours == nil {
		d.DuePolicy = workflow.DefaultDuePolicy()
	}
	if d.History == nil {
		gen, _ := idgen.New(0)
		d.History = NewHistoryRecorder(gen)
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Clock == nil {
		d.Clock = time.Now
	}
	if d.NewID == nil {
		d.NewID = uuid.NewString
	}
	return d
}

// NewWorkflowService constructs the engine.
func NewWorkflowService(deps WorkflowDependencies) *WorkflowService {
	deps = deps.withDefaults()
	return &WorkflowService{
		store:      deps.Store,
		table:      deps.Table,
		router:     deps.Router,
		classifier: deps.Classifier,
		policy:     deps.DuePolicy,
		history:    deps.History,
		notifier:   deps.Notifier,
		logger:     deps.Logger,
		metrics:    deps.Metrics,
		now:        deps.Clock,
		newID:      deps.NewID,
	}
}

// CreateInput describes a new work item.
type CreateInput struct {
	Kind        domain.Kind
	Priority    domain.Priority
	Title       string
	Description string
	LocationID  string
	// DueAt overrides the priority based due date.
	DueAt *time.Time
}

// TransitionOptions carries the optional parts of a stage change.
type TransitionOptions struct {
	Reason string
	// AssigneeID hands the item to someone as it enters a stage that has no queue.
	AssigneeID *string
	DueAt      *time.Time
}

// NoteInput describes a note appended by a user.
type NoteInput struct {
	Type              domain.NoteType
	Text              string
	Internal          bool
	ExternallyVisible bool
}

// Create opens a work item in its kind's initial stage.
func (s *WorkflowService) Create(ctx context.Context, input CreateInput, actor domain.Actor) (*domain.WorkItem, error) {
	if err := s.validateCreate(&input); err != nil {
		return nil, s.fail("create", err)
	}

	stage, _ := s.table.InitialStage(input.Kind)
	now := s.now().UTC()
	due := s.policy.DueAt(input.Priority, now)
	if input.DueAt != nil {
		due = input.DueAt.UTC()
	}

	item := &domain.WorkItem{
		ID:          s.newID(),
		Kind:        input.Kind,
		Stage:       stage,
		Priority:    input.Priority,
		Title:       input.Title,
		Description: input.Description,
		DueAt:       &due,
		CreatedBy:   actor.ID,
		LocationID:  input.LocationID,
		CreatedAt:   now,
		UpdatedAt:   now,
		Version:     1,
	}
	if queue, ok := s.router.QueueFor(item.Kind, stage, item.LocationID); ok {
		item.QueueID = &queue.ID
	}
	s.classifier.Apply(item, now)

	err := s.store.Atomically(ctx, func(tx repository.Store) error {
		seq, err := tx.Sequences().Next(ctx, item.LocationID, now.Year())
		if err != nil {
			if errors.Is(err, repository.ErrSequenceExhausted) {
				return apperrors.NewSequenceExhausted(fmt.Sprintf("%s/%d", item.LocationID, now.Year()))
			}
			return err
		}
		item.DisplayNumber = workflow.FormatDisplayNumber(item.LocationID, now.Year(), seq)

		if err := tx.WorkItems().Create(ctx, item); err != nil {
			return err
		}
		event := &domain.TransitionEvent{
			ToStage:   stage,
			ToQueueID: item.QueueID,
			Reason:    "created",
			ChangedBy: actor.ID,
		}
		if err := s.history.RecordTransition(ctx, tx, item, event, now); err != nil {
			return err
		}
		return s.history.RecordNote(ctx, tx, &domain.Note{
			WorkItemID:        item.ID,
			Type:              domain.NoteTypeSystem,
			Text:              fmt.Sprintf("%s %s created in stage %s", item.Kind, item.DisplayNumber, stage),
			ExternallyVisible: true,
			CreatedBy:         actor.ID,
		}, now)
	})
	if err != nil {
		return nil, s.fail("create", s.storeError(err, item.ID))
	}

	s.logger.Info("work item created",
		zap.String("work_item_id", item.ID),
		zap.String("display_number", item.DisplayNumber),
		zap.String("kind", string(item.Kind)),
		zap.String("stage", string(item.Stage)))
	s.notify(ctx, item.ID, events.EventWorkItemCreated, actor, events.WorkItemCreatedPayload{
		DisplayNumber: item.DisplayNumber,
		Kind:          item.Kind,
		Stage:         item.Stage,
		Priority:      item.Priority,
		QueueID:       item.QueueID,
		LocationID:    item.LocationID,
	})
	return item, nil
}

// Transition moves a work item along an edge of its kind's transition table.
//
// Entering a stage served by a queue parks the item there, clears the assignee and,
// when the queue carries an SLA, restarts the due date. Entering a closing stage
// completes the item and clears queue and assignee. Leaving a closing stage reopens
// it with a fresh due date.
func (s *WorkflowService) Transition(ctx context.Context, id string, to domain.Stage, actor domain.Actor, opts TransitionOptions) (*domain.WorkItem, error) {
	if opts.AssigneeID != nil && strings.TrimSpace(*opts.AssigneeID) == "" {
		opts.AssigneeID = nil
	}

	var before, after *domain.WorkItem
	err := s.store.Atomically(ctx, func(tx repository.Store) error {
		item, err := tx.WorkItems().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := s.table.Validate(item.Kind, item.Stage, to); err != nil {
			return err
		}

		now := s.now().UTC()
		before = item.Clone()
		if err := s.enterStage(item, to, opts, now); err != nil {
			return err
		}
		if msg := item.CheckInvariants(); msg != "" {
			return apperrors.NewInvariantViolation(msg, map[string]any{"work_item_id": item.ID})
		}
		item.UpdatedAt = now
		item.Version++
		if err := tx.WorkItems().Update(ctx, item); err != nil {
			return err
		}

		from := before.Stage
		event := &domain.TransitionEvent{
			FromStage:      &from,
			ToStage:        to,
			FromQueueID:    before.QueueID,
			ToQueueID:      item.QueueID,
			FromAssigneeID: before.AssigneeID,
			ToAssigneeID:   item.AssigneeID,
			Reason:         opts.Reason,
			ChangedBy:      actor.ID,
		}
		if err := s.history.RecordTransition(ctx, tx, item, event, now); err != nil {
			return err
		}
		if err := s.history.RecordNote(ctx, tx, &domain.Note{
			WorkItemID:        item.ID,
			Type:              domain.NoteTypeStatusChange,
			Text:              withReason(fmt.Sprintf("Stage changed from %s to %s", from, to), opts.Reason),
			ExternallyVisible: true,
			CreatedBy:         actor.ID,
		}, now); err != nil {
			return err
		}
		after = item
		return nil
	})
	if err != nil {
		return nil, s.fail("transition", s.storeError(err, id))
	}

	s.metrics.RecordTransition(string(after.Kind), string(before.Stage), string(after.Stage))
	s.logger.Info("work item transitioned",
		zap.String("work_item_id", after.ID),
		zap.String("from_stage", string(before.Stage)),
		zap.String("to_stage", string(after.Stage)),
		zap.String("actor_id", actor.ID))
	s.notify(ctx, after.ID, events.EventStageChanged, actor, events.StageChangedPayload{
		Kind:       after.Kind,
		FromStage:  before.Stage,
		ToStage:    after.Stage,
		QueueID:    after.QueueID,
		AssigneeID: after.AssigneeID,
		Reason:     opts.Reason,
	})
	return after, nil
}

func (s *WorkflowService) enterStage(item *domain.WorkItem, to domain.Stage, opts TransitionOptions, now time.Time) error {
	reopening := !item.Open()
	item.Stage = to

	if s.table.IsClosing(item.Kind, to) {
		if opts.AssigneeID != nil {
			return apperrors.NewInvariantViolation("a closing stage cannot be assigned",
				map[string]any{"work_item_id": item.ID, "stage": string(to)})
		}
		item.QueueID = nil
		item.AssigneeID = nil
		completed := now
		item.CompletedAt = &completed
		s.classifier.Apply(item, now)
		return nil
	}

	item.CompletedAt = nil
	queue, queued := s.router.QueueFor(item.Kind, to, item.LocationID)
	restarted := false
	if queued {
		if opts.AssigneeID != nil {
			return apperrors.NewInvariantViolation("stage is served by a queue; assign after the transition",
				map[string]any{"work_item_id": item.ID, "stage": string(to), "queue_id": queue.ID})
		}
		item.QueueID = &queue.ID
		item.AssigneeID = nil
		if queue.SLAHours > 0 {
			due := now.Add(time.Duration(queue.SLAHours) * time.Hour)
			item.DueAt = &due
			restarted = true
		}
	} else {
		item.QueueID = nil
		if opts.AssigneeID != nil {
			assignee := strings.TrimSpace(*opts.AssigneeID)
			item.AssigneeID = &assignee
		}
	}
	if reopening && !restarted {
		due := s.policy.DueAt(item.Priority, now)
		item.DueAt = &due
	}
	if opts.DueAt != nil {
		due := opts.DueAt.UTC()
		item.DueAt = &due
	}
	s.classifier.Apply(item, now)
	return nil
}

// Assign hands an open work item to assigneeID, taking it out of its queue.
// Assigning to the current assignee changes nothing.
func (s *WorkflowService) Assign(ctx context.Context, id, assigneeID string, actor domain.Actor, reason string) (*domain.WorkItem, error) {
	assigneeID = strings.TrimSpace(assigneeID)
	if assigneeID == "" {
		return nil, s.fail("assign", apperrors.NewValidationError("assignee_id is required", nil))
	}

	var before, after *domain.WorkItem
	changed := false
	err := s.store.Atomically(ctx, func(tx repository.Store) error {
		item, err := tx.WorkItems().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !item.Open() {
			return apperrors.NewInvariantViolation("a completed work item cannot be assigned",
				map[string]any{"work_item_id": item.ID, "stage": string(item.Stage)})
		}
		now := s.now().UTC()
		if item.AssigneeID != nil && *item.AssigneeID == assigneeID {
			s.classifier.Apply(item, now)
			after = item
			return nil
		}

		before = item.Clone()
		item.QueueID = nil
		item.AssigneeID = &assigneeID
		item.UpdatedAt = now
		item.Version++
		s.classifier.Apply(item, now)
		if err := tx.WorkItems().Update(ctx, item); err != nil {
			return err
		}
		if err := s.recordOwnerChange(ctx, tx, before, item, actor, reason, now,
			fmt.Sprintf("Assigned to %s", assigneeID)); err != nil {
			return err
		}
		after = item
		changed = true
		return nil
	})
	if err != nil {
		return nil, s.fail("assign", s.storeError(err, id))
	}
	if !changed {
		return after, nil
	}

	s.logger.Info("work item assigned",
		zap.String("work_item_id", after.ID),
		zap.String("assignee_id", assigneeID),
		zap.String("actor_id", actor.ID))
	s.notify(ctx, after.ID, events.EventAssigned, actor, events.AssignedPayload{
		FromAssigneeID: before.AssigneeID,
		ToAssigneeID:   assigneeID,
		FromQueueID:    before.QueueID,
	})
	return after, nil
}

// Release takes an assigned work item off its assignee and returns it to the queue
// that serves its current stage.
func (s *WorkflowService) Release(ctx context.Context, id string, actor domain.Actor, reason string) (*domain.WorkItem, error) {
	var before, after *domain.WorkItem
	err := s.store.Atomically(ctx, func(tx repository.Store) error {
		item, err := tx.WorkItems().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		details := map[string]any{"work_item_id": item.ID, "stage": string(item.Stage)}
		if !item.Open() {
			return apperrors.NewInvariantViolation("a completed work item cannot be released", details)
		}
		if item.AssigneeID == nil {
			return apperrors.NewInvariantViolation("work item is not assigned", details)
		}
		queue, ok := s.router.QueueFor(item.Kind, item.Stage, item.LocationID)
		if !ok {
			return apperrors.NewInvariantViolation("stage has no queue to release into", details)
		}

		now := s.now().UTC()
		before = item.Clone()
		item.AssigneeID = nil
		item.QueueID = &queue.ID
		item.UpdatedAt = now
		item.Version++
		s.classifier.Apply(item, now)
		if err := tx.WorkItems().Update(ctx, item); err != nil {
			return err
		}
		if err := s.recordOwnerChange(ctx, tx, before, item, actor, reason, now,
			fmt.Sprintf("Released to queue %s", queue.Code)); err != nil {
			return err
		}
		after = item
		return nil
	})
	if err != nil {
		return nil, s.fail("release", s.storeError(err, id))
	}

	s.logger.Info("work item released",
		zap.String("work_item_id", after.ID),
		zap.String("queue_id", *after.QueueID),
		zap.String("actor_id", actor.ID))
	s.notify(ctx, after.ID, events.EventReleased, actor, events.ReleasedPayload{
		FromAssigneeID: *before.AssigneeID,
		QueueID:        *after.QueueID,
	})
	return after, nil
}

// recordOwnerChange appends the event and internal note for an assignment change
// that leaves the stage untouched.
func (s *WorkflowService) recordOwnerChange(ctx context.Context, tx repository.Store, before, item *domain.WorkItem, actor domain.Actor, reason string, now time.Time, text string) error {
	from := before.Stage
	event := &domain.TransitionEvent{
		FromStage:      &from,
		ToStage:        item.Stage,
		FromQueueID:    before.QueueID,
		ToQueueID:      item.QueueID,
		FromAssigneeID: before.AssigneeID,
		ToAssigneeID:   item.AssigneeID,
		Reason:         reason,
		ChangedBy:      actor.ID,
	}
	if err := s.history.RecordTransition(ctx, tx, item, event, now); err != nil {
		return err
	}
	return s.history.RecordNote(ctx, tx, &domain.Note{
		WorkItemID: item.ID,
		Type:       domain.NoteTypeAssignment,
		Text:       withReason(text, reason),
		Internal:   true,
		CreatedBy:  actor.ID,
	}, now)
}

// ChangePriority sets a new priority on an open work item and restarts its due
// date from the priority policy.
func (s *WorkflowService) ChangePriority(ctx context.Context, id string, priority domain.Priority, actor domain.Actor, reason string) (*domain.WorkItem, error) {
	if !priority.Valid() {
		return nil, s.fail("change_priority", apperrors.NewValidationError("invalid priority",
			map[string]any{"priority": string(priority)}))
	}

	var old domain.Priority
	var after *domain.WorkItem
	changed := false
	err := s.store.Atomically(ctx, func(tx repository.Store) error {
		item, err := tx.WorkItems().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !item.Open() {
			return apperrors.NewInvariantViolation("a completed work item cannot be re-prioritised",
				map[string]any{"work_item_id": item.ID, "stage": string(item.Stage)})
		}
		now := s.now().UTC()
		old = item.Priority
		if old == priority {
			s.classifier.Apply(item, now)
			after = item
			return nil
		}

		due := s.policy.DueAt(priority, now)
		item.Priority = priority
		item.DueAt = &due
		item.UpdatedAt = now
		item.Version++
		s.classifier.Apply(item, now)
		if err := tx.WorkItems().Update(ctx, item); err != nil {
			return err
		}
		if err := s.history.RecordNote(ctx, tx, &domain.Note{
			WorkItemID:        item.ID,
			Type:              domain.NoteTypePriorityChange,
			Text:              withReason(fmt.Sprintf("Priority changed from %s to %s", old, priority), reason),
			ExternallyVisible: true,
			CreatedBy:         actor.ID,
		}, now); err != nil {
			return err
		}
		after = item
		changed = true
		return nil
	})
	if err != nil {
		return nil, s.fail("change_priority", s.storeError(err, id))
	}
	if !changed {
		return after, nil
	}

	s.notify(ctx, after.ID, events.EventPriorityChanged, actor, events.PriorityChangedPayload{
		OldPriority: old,
		NewPriority: priority,
		DueAt:       after.DueAt,
	})
	return after, nil
}

// AddNote appends a note. The work item only has its update marker and aging tier
// refreshed.
func (s *WorkflowService) AddNote(ctx context.Context, id string, input NoteInput, actor domain.Actor) (*domain.Note, error) {
	input.Text = strings.TrimSpace(input.Text)
	if input.Type == "" {
		input.Type = domain.NoteTypeGeneral
	}
	switch {
	case input.Text == "":
		return nil, s.fail("add_note", apperrors.NewValidationError("note text is required", nil))
	case !input.Type.Valid():
		return nil, s.fail("add_note", apperrors.NewValidationError("invalid note type",
			map[string]any{"type": string(input.Type)}))
	case input.Internal && input.ExternallyVisible:
		return nil, s.fail("add_note", apperrors.NewValidationError("an internal note cannot be externally visible", nil))
	}

	note := &domain.Note{
		WorkItemID:        id,
		Type:              input.Type,
		Text:              input.Text,
		Internal:          input.Internal,
		ExternallyVisible: input.ExternallyVisible,
		CreatedBy:         actor.ID,
	}
	err := s.store.Atomically(ctx, func(tx repository.Store) error {
		item, err := tx.WorkItems().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		item.UpdatedAt = now
		item.Version++
		s.classifier.Apply(item, now)
		if err := tx.WorkItems().Update(ctx, item); err != nil {
			return err
		}
		return s.history.RecordNote(ctx, tx, note, now)
	})
	if err != nil {
		return nil, s.fail("add_note", s.storeError(err, id))
	}

	s.notify(ctx, id, events.EventNoteAdded, actor, events.NoteAddedPayload{
		NoteID:      note.ID,
		NoteType:    note.Type,
		Internal:    note.Internal,
		BodyPreview: preview(note.Text),
	})
	return note, nil
}

// notify is best effort: the change is already committed, so a failing sink is
// logged and counted and never reaches the caller.
func (s *WorkflowService) notify(ctx context.Context, workItemID string, eventType events.EventType, actor domain.Actor, payload any) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Dispatch(context.WithoutCancel(ctx), workItemID, eventType, actor, payload); err != nil {
		s.metrics.RecordNotificationFailure(string(eventType))
		s.logger.Warn("notification dispatch failed",
			zap.String("work_item_id", workItemID),
			zap.String("event_type", string(eventType)),
			zap.Error(err))
	}
}

func (s *WorkflowService) fail(operation string, err error) error {
	s.metrics.RecordRejected(operation, apperrors.ToDomainError(err).Code)
	return err
}

// storeError maps unit of work failures onto the domain taxonomy. Domain errors
// raised inside the unit pass through untouched.
func (s *WorkflowService) storeError(err error, id string) error {
	return mapStoreError(err, id, s.logger)
}

func mapStoreError(err error, id string, logger *zap.Logger) error {
	var domainErr *apperrors.DomainError
	switch {
	case errors.As(err, &domainErr):
		return err
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NewNotFound("work item", map[string]any{"id": id})
	default:
		logger.Error("store failure", zap.String("work_item_id", id), zap.Error(err))
		return apperrors.NewPersistenceError(err)
	}
}

func (s *WorkflowService) validateCreate(input *CreateInput) error {
	input.Title = strings.TrimSpace(input.Title)
	input.LocationID = strings.ToUpper(strings.TrimSpace(input.LocationID))
	if input.Priority == "" {
		input.Priority = domain.PriorityMedium
	}

	details := map[string]any{}
	if !input.Kind.Valid() {
		details["kind"] = "must be case or ticket"
	}
	if !input.Priority.Valid() {
		details["priority"] = "must be low, medium, high or critical"
	}
	if input.Title == "" {
		details["title"] = "required"
	}
	if input.LocationID == "" {
		details["location_id"] = "required"
	}
	if len(details) > 0 {
		return apperrors.NewValidationError("invalid work item", details)
	}
	return nil
}

func withReason(text, reason string) string {
	if reason = strings.TrimSpace(reason); reason != "" {
		return text + ": " + reason
	}
	return text
}

func preview(body string) string {
	runes := []rune(body)
	if len(runes) <= notePreviewLength {
		return body
	}
	return string(runes[:notePreviewLength]) + "..."
}
