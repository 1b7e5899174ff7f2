package workflow

import (
	"sort"

	"github.com/spec-kit/workflow-service/internal/domain"
)

type routeKey struct {
	kind     domain.Kind
	stage    domain.Stage
	location string
}

// QueueRouter resolves the queue that holds unassigned items of a stage at a location.
// It is a read-only snapshot of the queue configuration; lookups return copies.
type QueueRouter struct {
	table  *TransitionTable
	routes map[routeKey]*domain.Queue
	byID   map[string]*domain.Queue
}

// NewQueueRouter indexes queues by (kind, stage, location).
func NewQueueRouter(table *TransitionTable, queues []domain.Queue) *QueueRouter {
	r := &QueueRouter{
		table:  table,
		routes: make(map[routeKey]*domain.Queue, len(queues)),
		byID:   make(map[string]*domain.Queue, len(queues)),
	}
	for i := range queues {
		q := queues[i].Clone()
		r.routes[routeKey{kind: q.Kind, stage: q.Stage, location: q.LocationID}] = q
		r.byID[q.ID] = q
	}
	return r
}

// QueueFor returns the queue for stage at location. Closing stages and stages
// without a configured queue return false.
func (r *QueueRouter) QueueFor(kind domain.Kind, stage domain.Stage, location string) (*domain.Queue, bool) {
	if r.table != nil && r.table.IsClosing(kind, stage) {
		return nil, false
	}
	q, ok := r.routes[routeKey{kind: kind, stage: stage, location: location}]
	if !ok {
		return nil, false
	}
	return q.Clone(), true
}

// Queue looks up a queue by id.
func (r *QueueRouter) Queue(id string) (*domain.Queue, bool) {
	q, ok := r.byID[id]
	if !ok {
		return nil, false
	}
	return q.Clone(), true
}

// Queues lists configured queues, optionally restricted to one location.
func (r *QueueRouter) Queues(location string) []domain.Queue {
	out := make([]domain.Queue, 0, len(r.byID))
	for _, q := range r.byID {
		if location != "" && q.LocationID != location {
			continue
		}
		out = append(out, *q.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LocationID != out[j].LocationID {
			return out[i].LocationID < out[j].LocationID
		}
		return out[i].Code < out[j].Code
	})
	return out
}
