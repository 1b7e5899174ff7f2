package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/workflow-service/internal/domain"
)

func TestDispatch_BuildsEvent(t *testing.T) {
	d := NewInMemoryDispatcher()
	var got []Event
	d.Subscribe(EventStageChanged, func(_ context.Context, e Event) error {
		got = append(got, e)
		return nil
	})

	payload := StageChangedPayload{FromStage: domain.StageEnquiry, ToStage: domain.StageEstimation}
	err := d.Dispatch(context.Background(), "item-1", EventStageChanged, domain.Actor{ID: "u1"}, payload)
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.Equal(t, "item-1", got[0].WorkItemID)
	assert.Equal(t, "u1", got[0].ActorID)
	assert.NotEmpty(t, got[0].ID)
	assert.False(t, got[0].Timestamp.IsZero())
	assert.Equal(t, payload, got[0].Payload)
}

func TestPublish_RunsEveryHandlerAndJoinsErrors(t *testing.T) {
	d := NewInMemoryDispatcher()
	first := errors.New("first")
	calls := 0
	d.Subscribe(EventAssigned, func(context.Context, Event) error {
		calls++
		return first
	})
	d.Subscribe(EventAssigned, func(context.Context, Event) error {
		calls++
		return nil
	})

	err := d.Publish(context.Background(), Event{Type: EventAssigned})
	assert.Equal(t, 2, calls)
	assert.ErrorIs(t, err, first)
}

func TestSubscribeAll(t *testing.T) {
	d := NewInMemoryDispatcher()
	seen := map[EventType]int{}
	d.SubscribeAll(func(_ context.Context, e Event) error {
		seen[e.Type]++
		return nil
	})

	for _, eventType := range AllEventTypes() {
		require.NoError(t, d.Publish(context.Background(), Event{Type: eventType}))
	}
	assert.Len(t, seen, len(AllEventTypes()))

	assert.NoError(t, d.Publish(context.Background(), Event{Type: "unknown"}), "events without listeners are dropped")
}
