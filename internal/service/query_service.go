package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/workflow-service/internal/domain"
	"github.com/spec-kit/workflow-service/internal/repository"
	"github.com/spec-kit/workflow-service/internal/workflow"
	apperrors "github.com/spec-kit/workflow-service/pkg/util/errorutil"
)

const maxPageSize = 100

// QueryService serves the read side. Returned items carry an aging tier computed
// at read time, so they never lag behind the sweep.
type QueryService struct {
	store      repository.Store
	table      *workflow.TransitionTable
	router     *workflow.QueueRouter
	classifier workflow.AgingClassifier
	logger     *zap.Logger
	now        func() time.Time
}

// NewQueryService shares the engine's dependencies.
func NewQueryService(deps WorkflowDependencies) *QueryService {
	deps = deps.withDefaults()
	return &QueryService{
		store:      deps.Store,
		table:      deps.Table,
		router:     deps.Router,
		classifier: deps.Classifier,
		logger:     deps.Logger,
		now:        deps.Clock,
	}
}

// Page bounds a list query.
type Page struct {
	Limit  int
	Offset int
}

// Normalize applies the default and maximum page size.
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = 20
	}
	if p.Limit > maxPageSize {
		p.Limit = maxPageSize
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// GetByID returns one work item.
func (q *QueryService) GetByID(ctx context.Context, id string) (*domain.WorkItem, error) {
	item, err := q.store.WorkItems().GetByID(ctx, id)
	if err != nil {
		return nil, mapStoreError(err, id, q.logger)
	}
	q.classifier.Apply(item, q.now().UTC())
	return item, nil
}

// List returns work items matching filter.
func (q *QueryService) List(ctx context.Context, filter repository.WorkItemFilter, page Page) ([]domain.WorkItem, error) {
	page = page.Normalize()
	filter.Limit = page.Limit
	filter.Offset = page.Offset
	if filter.LocationID != nil {
		location := strings.ToUpper(strings.TrimSpace(*filter.LocationID))
		filter.LocationID = &location
	}

	items, err := q.store.WorkItems().List(ctx, filter)
	if err != nil {
		return nil, mapStoreError(err, "", q.logger)
	}
	q.classifyAll(items)
	return items, nil
}

// QueueItems lists the open items parked in a queue, most urgent first.
func (q *QueryService) QueueItems(ctx context.Context, queueID string, page Page) ([]domain.WorkItem, error) {
	if _, ok := q.router.Queue(queueID); !ok {
		return nil, apperrors.NewNotFound("queue", map[string]any{"id": queueID})
	}
	page = page.Normalize()
	items, err := q.store.WorkItems().List(ctx, repository.WorkItemFilter{
		QueueID:  &queueID,
		OpenOnly: true,
		Order:    repository.OrderDueAsc,
		Limit:    page.Limit,
		Offset:   page.Offset,
	})
	if err != nil {
		return nil, mapStoreError(err, "", q.logger)
	}
	q.classifyAll(items)
	return items, nil
}

// Queue returns one configured queue.
func (q *QueryService) Queue(id string) (*domain.Queue, error) {
	queue, ok := q.router.Queue(id)
	if !ok {
		return nil, apperrors.NewNotFound("queue", map[string]any{"id": id})
	}
	return queue, nil
}

// Queues lists configured queues, optionally for one location.
func (q *QueryService) Queues(location string) []domain.Queue {
	return q.router.Queues(strings.ToUpper(strings.TrimSpace(location)))
}

// AgingSummary counts open items per aging tier, optionally for one location.
func (q *QueryService) AgingSummary(ctx context.Context, location *string) (domain.AgingSummary, error) {
	if location != nil {
		loc := strings.ToUpper(strings.TrimSpace(*location))
		location = &loc
	}
	summary, err := q.store.WorkItems().SummarizeAging(ctx, location, q.now().UTC(), q.classifier.Window())
	if err != nil {
		return domain.AgingSummary{}, mapStoreError(err, "", q.logger)
	}
	return summary, nil
}

// History returns the item's transition events in the order they were applied.
func (q *QueryService) History(ctx context.Context, id string) ([]domain.TransitionEvent, error) {
	if _, err := q.store.WorkItems().GetByID(ctx, id); err != nil {
		return nil, mapStoreError(err, id, q.logger)
	}
	events, err := q.store.Events().ListByWorkItem(ctx, id)
	if err != nil {
		return nil, mapStoreError(err, id, q.logger)
	}
	return events, nil
}

// Notes returns the item's notes in creation order. Internal notes are left out
// unless includeInternal is set.
func (q *QueryService) Notes(ctx context.Context, id string, includeInternal bool) ([]domain.Note, error) {
	if _, err := q.store.WorkItems().GetByID(ctx, id); err != nil {
		return nil, mapStoreError(err, id, q.logger)
	}
	notes, err := q.store.Notes().ListByWorkItem(ctx, id, includeInternal)
	if err != nil {
		return nil, mapStoreError(err, id, q.logger)
	}
	return notes, nil
}

// AvailableTransitions lists the stages the item may move to next.
func (q *QueryService) AvailableTransitions(ctx context.Context, id string) ([]domain.Stage, error) {
	item, err := q.store.WorkItems().GetByID(ctx, id)
	if err != nil {
		return nil, mapStoreError(err, id, q.logger)
	}
	return q.table.Targets(item.Kind, item.Stage), nil
}

func (q *QueryService) classifyAll(items []domain.WorkItem) {
	now := q.now().UTC()
	for i := range items {
		q.classifier.Apply(&items[i], now)
	}
}
