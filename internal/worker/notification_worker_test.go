package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/workflow-service/internal/domain"
	"github.com/spec-kit/workflow-service/internal/events"
	"github.com/spec-kit/workflow-service/internal/service"
)

type collectingSink struct {
	mu       sync.Mutex
	received []events.Event
}

func (s *collectingSink) Name() string { return "collect" }

func (s *collectingSink) Deliver(_ context.Context, event events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.received = append(s.received, event)
	return nil
}

func (s *collectingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.received)
}

func TestNotificationWorker_DeliversOffTheDispatchPath(t *testing.T) {
	sink := &collectingSink{}
	worker := NewNotificationWorker(service.NewNotificationService(nil, sink), nil, nil, 8)
	dispatcher := events.NewInMemoryDispatcher()
	worker.Register(dispatcher)

	go worker.Run(context.Background())
	for i := 0; i < 3; i++ {
		require.NoError(t, dispatcher.Dispatch(context.Background(), "wi-1", events.EventNoteAdded, domain.SystemActor, nil))
	}

	require.Eventually(t, func() bool { return sink.count() == 3 }, time.Second, 5*time.Millisecond)
	worker.Stop()
}

func TestNotificationWorker_BacklogIsReported(t *testing.T) {
	sink := &collectingSink{}
	worker := NewNotificationWorker(service.NewNotificationService(nil, sink), nil, nil, 1)

	require.NoError(t, worker.Enqueue(context.Background(), events.Event{ID: "1"}))
	err := worker.Enqueue(context.Background(), events.Event{ID: "2"})
	assert.ErrorIs(t, err, ErrNotificationBacklog)
}

func TestNotificationWorker_StopDrainsBuffer(t *testing.T) {
	sink := &collectingSink{}
	worker := NewNotificationWorker(service.NewNotificationService(nil, sink), nil, nil, 4)
	for i := 0; i < 4; i++ {
		require.NoError(t, worker.Enqueue(context.Background(), events.Event{Type: events.EventAssigned}))
	}

	done := make(chan struct{})
	go func() {
		worker.Run(context.Background())
		close(done)
	}()
	worker.Stop()
	<-done
	assert.Equal(t, 4, sink.count())
}
