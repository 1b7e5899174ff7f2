package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/workflow-service/internal/domain"
)

// ErrNotFound is returned by every store when a row does not exist.
var ErrNotFound = pgx.ErrNoRows

// ErrSequenceExhausted is returned when a display number counter passes its ceiling.
var ErrSequenceExhausted = errors.New("sequence exhausted")

// WorkItemOrder selects the sort applied to list queries.
type WorkItemOrder int

const (
	// OrderUpdatedDesc lists recently touched items first.
	OrderUpdatedDesc WorkItemOrder = iota
	// OrderDueAsc lists the most urgent items first, items without a due date last.
	OrderDueAsc
)

// WorkItemFilter captures list parameters.
type WorkItemFilter struct {
	Kind        *domain.Kind
	LocationID  *string
	QueueID     *string
	AssigneeID  *string
	Stages      []domain.Stage
	Priorities  []domain.Priority
	AgingTiers  []domain.AgingTier
	OpenOnly    bool
	SearchTerm  *string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Order       WorkItemOrder
	Limit       int
	Offset      int
}

// WorkItemRepository persists work items.
type WorkItemRepository interface {
	Create(ctx context.Context, item *domain.WorkItem) error
	Update(ctx context.Context, item *domain.WorkItem) error
	GetByID(ctx context.Context, id string) (*domain.WorkItem, error)
	// GetForUpdate loads the item and holds it against concurrent writers until the
	// surrounding unit of work ends.
	GetForUpdate(ctx context.Context, id string) (*domain.WorkItem, error)
	List(ctx context.Context, filter WorkItemFilter) ([]domain.WorkItem, error)
	// ListOpen pages through open items ordered by id, starting after afterID.
	ListOpen(ctx context.Context, afterID string, limit int) ([]domain.WorkItem, error)
	// UpdateAging writes a new tier only if the item is still at version. It reports
	// whether the row was written.
	UpdateAging(ctx context.Context, id string, version int64, tier domain.AgingTier) (bool, error)
	SummarizeAging(ctx context.Context, location *string, now time.Time, atRiskWindow time.Duration) (domain.AgingSummary, error)
}

// TransitionEventRepository is the append-only stage and assignment history.
type TransitionEventRepository interface {
	Append(ctx context.Context, event *domain.TransitionEvent) error
	ListByWorkItem(ctx context.Context, workItemID string) ([]domain.TransitionEvent, error)
	LastEventAt(ctx context.Context, workItemID string) (time.Time, bool, error)
}

// NoteRepository is the append-only note log.
type NoteRepository interface {
	Append(ctx context.Context, note *domain.Note) error
	ListByWorkItem(ctx context.Context, workItemID string, includeInternal bool) ([]domain.Note, error)
}

// SequenceRepository allocates display number counters.
type SequenceRepository interface {
	Next(ctx context.Context, location string, year int) (int64, error)
}

// QueueRepository reads and seeds the queue configuration table.
type QueueRepository interface {
	List(ctx context.Context) ([]domain.Queue, error)
	Upsert(ctx context.Context, queue domain.Queue) error
}

// Store exposes the repositories bound to one connection or transaction.
type Store interface {
	WorkItems() WorkItemRepository
	Events() TransitionEventRepository
	Notes() NoteRepository
	Sequences() SequenceRepository
}

// UnitOfWork runs fn against a transactional Store. Writes made through the Store
// passed to fn are committed together when fn returns nil and discarded otherwise.
type UnitOfWork interface {
	Store
	Atomically(ctx context.Context, fn func(Store) error) error
}
