package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/workflow-service/internal/events"
	"github.com/spec-kit/workflow-service/internal/observability"
	"github.com/spec-kit/workflow-service/internal/service"
)

// ErrNotificationBacklog is returned when the delivery buffer is full and the event
// was dropped.
var ErrNotificationBacklog = errors.New("notification backlog full")

const deliveryTimeout = 10 * time.Second

// NotificationWorker moves sink delivery off the request path. Dispatched events
// are buffered and handed to the NotificationService by a single goroutine.
type NotificationWorker struct {
	notifications *service.NotificationService
	logger        *zap.Logger
	metrics       *observability.Metrics
	queue         chan events.Event

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

// NewNotificationWorker creates a worker buffering up to size events.
func NewNotificationWorker(notifications *service.NotificationService, logger *zap.Logger, metrics *observability.Metrics, size int) *NotificationWorker {
	if size <= 0 {
		size = 1024
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationWorker{
		notifications: notifications,
		logger:        logger,
		metrics:       metrics,
		queue:         make(chan events.Event, size),
		stopCh:        make(chan struct{}),
		stoppedCh:     make(chan struct{}),
	}
}

// Register subscribes the worker's buffer to every workflow event.
func (w *NotificationWorker) Register(dispatcher events.Dispatcher) {
	dispatcher.SubscribeAll(w.Enqueue)
}

// Enqueue buffers event without blocking.
func (w *NotificationWorker) Enqueue(_ context.Context, event events.Event) error {
	select {
	case w.queue <- event:
		return nil
	default:
		return ErrNotificationBacklog
	}
}

// Run delivers buffered events until Stop is called or ctx ends. On Stop the
// remaining buffer is drained first.
func (w *NotificationWorker) Run(ctx context.Context) {
	defer close(w.stoppedCh)
	w.logger.Info("notification worker started", zap.Int("buffer", cap(w.queue)))

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			w.drain(ctx)
			w.logger.Info("notification worker stopped")
			return
		case event := <-w.queue:
			w.deliver(ctx, event)
		}
	}
}

// Stop signals the worker to drain and stop, and waits for it.
func (w *NotificationWorker) Stop() {
	close(w.stopCh)
	<-w.stoppedCh
}

func (w *NotificationWorker) drain(ctx context.Context) {
	for {
		select {
		case event := <-w.queue:
			w.deliver(ctx, event)
		default:
			return
		}
	}
}

func (w *NotificationWorker) deliver(ctx context.Context, event events.Event) {
	ctx, cancel := context.WithTimeout(ctx, deliveryTimeout)
	defer cancel()
	if err := w.notifications.Deliver(ctx, event); err != nil {
		w.metrics.RecordNotificationFailure(string(event.Type))
	}
}
