package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/spec-kit/workflow-service/internal/domain"
	"github.com/spec-kit/workflow-service/internal/repository"
	"github.com/spec-kit/workflow-service/internal/workflow"
)

type events struct {
	view
}

func (r *events) Append(_ context.Context, event *domain.TransitionEvent) error {
	return r.write("events.append", func(st *state) error {
		if _, ok := st.items[event.WorkItemID]; !ok {
			return fmt.Errorf("append event: %w", repository.ErrNotFound)
		}
		st.events[event.WorkItemID] = append(st.events[event.WorkItemID], *event)
		return nil
	})
}

func (r *events) ListByWorkItem(_ context.Context, workItemID string) ([]domain.TransitionEvent, error) {
	var out []domain.TransitionEvent
	err := r.read(func(st *state) error {
		out = append([]domain.TransitionEvent{}, st.events[workItemID]...)
		return nil
	})
	return out, err
}

func (r *events) LastEventAt(_ context.Context, workItemID string) (time.Time, bool, error) {
	var (
		last  time.Time
		found bool
	)
	err := r.read(func(st *state) error {
		list := st.events[workItemID]
		if len(list) == 0 {
			return nil
		}
		last = list[len(list)-1].CreatedAt
		found = true
		return nil
	})
	return last, found, err
}

type notes struct {
	view
}

func (r *notes) Append(_ context.Context, note *domain.Note) error {
	return r.write("notes.append", func(st *state) error {
		if _, ok := st.items[note.WorkItemID]; !ok {
			return fmt.Errorf("append note: %w", repository.ErrNotFound)
		}
		st.notes[note.WorkItemID] = append(st.notes[note.WorkItemID], *note)
		return nil
	})
}

func (r *notes) ListByWorkItem(_ context.Context, workItemID string, includeInternal bool) ([]domain.Note, error) {
	out := []domain.Note{}
	err := r.read(func(st *state) error {
		for _, note := range st.notes[workItemID] {
			if note.Internal && !includeInternal {
				continue
			}
			out = append(out, note)
		}
		return nil
	})
	return out, err
}

type sequences struct {
	view
}

func (r *sequences) Next(_ context.Context, location string, year int) (int64, error) {
	var next int64
	err := r.write("sequences.next", func(st *state) error {
		key := seqKey{location: location, year: year}
		candidate := st.counters[key] + 1
		ceiling := r.store.ceiling
		if ceiling <= 0 || ceiling > workflow.MaxSequence {
			ceiling = workflow.MaxSequence
		}
		if candidate > ceiling {
			return repository.ErrSequenceExhausted
		}
		st.counters[key] = candidate
		next = candidate
		return nil
	})
	return next, err
}
