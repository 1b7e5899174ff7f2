package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/workflow-service/internal/events"
)

// NotificationSink delivers workflow events to one external system.
type NotificationSink interface {
	Name() string
	Deliver(ctx context.Context, event events.Event) error
}

// NotificationService fans committed workflow events out to the configured sinks.
type NotificationService struct {
	sinks  []NotificationSink
	logger *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(logger *zap.Logger, sinks ...NotificationSink) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{sinks: sinks, logger: logger}
}

// RegisterHandlers subscribes synchronous delivery to every workflow event.
func (n *NotificationService) RegisterHandlers(dispatcher events.Dispatcher) {
	if dispatcher == nil {
		return
	}
	dispatcher.SubscribeAll(n.Deliver)
}

// Deliver hands event to every sink. A failing sink does not stop the others.
func (n *NotificationService) Deliver(ctx context.Context, event events.Event) error {
	var errs []error
	for _, sink := range n.sinks {
		if err := sink.Deliver(ctx, event); err != nil {
			n.logger.Warn("notification sink failed",
				zap.String("sink", sink.Name()),
				zap.String("event_type", string(event.Type)),
				zap.String("work_item_id", event.WorkItemID),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// LogSink writes events to the service log.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink builds a LogSink.
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Deliver(_ context.Context, event events.Event) error {
	s.logger.Info("workflow event",
		zap.String("event_id", event.ID),
		zap.String("event_type", string(event.Type)),
		zap.String("work_item_id", event.WorkItemID),
		zap.String("actor_id", event.ActorID),
		zap.Any("payload", event.Payload))
	return nil
}
