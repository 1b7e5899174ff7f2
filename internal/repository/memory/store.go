package memory

import (
	"context"
	"sync"

	"github.com/spec-kit/workflow-service/internal/domain"
	"github.com/spec-kit/workflow-service/internal/repository"
	"github.com/spec-kit/workflow-service/internal/workflow"
)

type seqKey struct {
	location string
	year     int
}

type state struct {
	items    map[string]*domain.WorkItem
	events   map[string][]domain.TransitionEvent
	notes    map[string][]domain.Note
	counters map[seqKey]int64
}

func newState() *state {
	return &state{
		items:    map[string]*domain.WorkItem{},
		events:   map[string][]domain.TransitionEvent{},
		notes:    map[string][]domain.Note{},
		counters: map[seqKey]int64{},
	}
}

func (s *state) clone() *state {
	cp := newState()
	for id, item := range s.items {
		cp.items[id] = item.Clone()
	}
	for id, events := range s.events {
		cp.events[id] = append([]domain.TransitionEvent(nil), events...)
	}
	for id, notes := range s.notes {
		cp.notes[id] = append([]domain.Note(nil), notes...)
	}
	for k, v := range s.counters {
		cp.counters[k] = v
	}
	return cp
}

// Store is an in-memory repository.UnitOfWork. Units of work run one at a time
// against a private copy of the data that replaces the committed state on success.
type Store struct {
	writer sync.Mutex
	dataMu sync.RWMutex
	state  *state

	ceiling int64

	hookMu sync.RWMutex
	hook   func(op string) error
}

// Option configures a Store.
type Option func(*Store)

// WithSequenceCeiling lowers the display number ceiling.
func WithSequenceCeiling(ceiling int64) Option {
	return func(s *Store) {
		s.ceiling = ceiling
	}
}

// NewStore returns an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{state: newState(), ceiling: workflow.MaxSequence}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetFailureHook installs fn, which is consulted before every write with the
// operation name (e.g. "events.append"). A non-nil return fails that write.
func (s *Store) SetFailureHook(fn func(op string) error) {
	s.hookMu.Lock()
	defer s.hookMu.Unlock()
	s.hook = fn
}

func (s *Store) fail(op string) error {
	s.hookMu.RLock()
	defer s.hookMu.RUnlock()
	if s.hook == nil {
		return nil
	}
	return s.hook(op)
}

// Atomically runs fn on a private copy of the data and publishes it when fn succeeds.
// Calls must not be nested.
func (s *Store) Atomically(ctx context.Context, fn func(repository.Store) error) error {
	s.writer.Lock()
	defer s.writer.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	s.dataMu.RLock()
	snapshot := s.state.clone()
	s.dataMu.RUnlock()

	if err := fn(&view{store: s, tx: snapshot}); err != nil {
		return err
	}

	s.dataMu.Lock()
	s.state = snapshot
	s.dataMu.Unlock()
	return nil
}

func (s *Store) WorkItems() repository.WorkItemRepository {
	return &workItems{view{store: s}}
}

func (s *Store) Events() repository.TransitionEventRepository {
	return &events{view{store: s}}
}

func (s *Store) Notes() repository.NoteRepository {
	return &notes{view{store: s}}
}

func (s *Store) Sequences() repository.SequenceRepository {
	return &sequences{view{store: s}}
}

// view binds repositories either to a unit of work snapshot or to committed state.
type view struct {
	store *Store
	tx    *state
}

func (v *view) WorkItems() repository.WorkItemRepository { return &workItems{*v} }
func (v *view) Events() repository.TransitionEventRepository { return &events{*v} }
func (v *view) Notes() repository.NoteRepository { return &notes{*v} }
func (v *view) Sequences() repository.SequenceRepository { return &sequences{*v} }

func (v view) read(fn func(*state) error) error {
	if v.tx != nil {
		return fn(v.tx)
	}
	v.store.dataMu.RLock()
	defer v.store.dataMu.RUnlock()
	return fn(v.store.state)
}

func (v view) write(op string, fn func(*state) error) error {
	if err := v.store.fail(op); err != nil {
		return err
	}
	if v.tx != nil {
		return fn(v.tx)
	}
	v.store.writer.Lock()
	defer v.store.writer.Unlock()
	v.store.dataMu.Lock()
	defer v.store.dataMu.Unlock()
	return fn(v.store.state)
}
