package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"go.uber.org/zap"

	"github.com/spec-kit/workflow-service/internal/config"
	"github.com/spec-kit/workflow-service/internal/domain"
	"github.com/spec-kit/workflow-service/internal/events"
	"github.com/spec-kit/workflow-service/internal/idgen"
	"github.com/spec-kit/workflow-service/internal/observability"
	"github.com/spec-kit/workflow-service/internal/persistence"
	"github.com/spec-kit/workflow-service/internal/repository"
	"github.com/spec-kit/workflow-service/internal/repository/memory"
	"github.com/spec-kit/workflow-service/internal/service"
	"github.com/spec-kit/workflow-service/internal/worker"
	"github.com/spec-kit/workflow-service/internal/workflow"
)

// runtime holds the process wide collaborators shared by the commands.
type runtime struct {
	cfg           *config.Config
	logger        *zap.Logger
	metrics       *observability.Metrics
	postgres      *persistence.Postgres
	redis         *persistence.Redis
	store         repository.UnitOfWork
	table         *workflow.TransitionTable
	router        *workflow.QueueRouter
	ids           *idgen.Generator
	dispatcher    events.Dispatcher
	notifications *worker.NotificationWorker
	closers       []func()
}

func openRuntime(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*runtime, error) {
	rt := &runtime{
		cfg:        cfg,
		logger:     logger,
		metrics:    observability.NewMetrics(),
		table:      workflow.DefaultTransitionTable(),
		dispatcher: events.NewInMemoryDispatcher(),
	}

	ids, err := idgen.New(cfg.Workflow.NodeID)
	if err != nil {
		return nil, err
	}
	rt.ids = ids

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	rt.postgres = pg
	rt.closers = append(rt.closers, pg.Close)
	if pg.Enabled() {
		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pg.Pool, logger); err != nil {
				rt.Close()
				return nil, fmt.Errorf("run migrations: %w", err)
			}
		}
		rt.store = pg.Store()
	} else {
		rt.store = memory.NewStore()
	}

	rt.redis = persistence.NewRedis(ctx, cfg.Redis, logger)
	rt.closers = append(rt.closers, rt.redis.Close)

	queues, err := loadQueues(ctx, cfg.Workflow.QueueFile, rt.table, pg, logger)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.router = workflow.NewQueueRouter(rt.table, queues)
	logger.Info("queue directory loaded", zap.Int("queues", len(queues)))

	sinks, err := rt.notificationSinks()
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.notifications = worker.NewNotificationWorker(service.NewNotificationService(logger, sinks...), logger, rt.metrics, 0)
	rt.notifications.Register(rt.dispatcher)
	return rt, nil
}

// Close releases connections in reverse order of opening.
func (r *runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
}

func (r *runtime) workflowDependencies() service.WorkflowDependencies {
	return service.WorkflowDependencies{
		Store:      r.store,
		Table:      r.table,
		Router:     r.router,
		Classifier: workflow.NewAgingClassifier(r.cfg.Workflow.AtRiskWindow()),
		DuePolicy:  duePolicy(r.cfg.Workflow),
		History:    service.NewHistoryRecorder(r.ids),
		Notifier:   r.dispatcher,
		Logger:     r.logger,
		Metrics:    r.metrics,
	}
}

func (r *runtime) agingSweep() *worker.AgingSweep {
	var locker worker.Locker = worker.LocalLocker{}
	if r.redis.Enabled() {
		locker = worker.NewRedisLocker(r.redis.Client)
	}
	return worker.NewAgingSweep(worker.AgingSweepConfig{
		Interval:  r.cfg.Workflow.SweepInterval(),
		BatchSize: r.cfg.Workflow.SweepBatchSize,
	}, worker.AgingSweepDependencies{
		Items:      r.store.WorkItems(),
		Classifier: workflow.NewAgingClassifier(r.cfg.Workflow.AtRiskWindow()),
		Notifier:   r.dispatcher,
		Locker:     locker,
		Logger:     r.logger.Named("aging_sweep"),
		Metrics:    r.metrics,
	})
}

func (r *runtime) notificationSinks() ([]service.NotificationSink, error) {
	switch r.cfg.Notification.Sink {
	case config.SinkRedis:
		if !r.redis.Enabled() {
			return nil, errors.New("redis notification sink requires a reachable REDIS_ADDR")
		}
		return []service.NotificationSink{service.NewRedisStreamSink(r.redis.Client, r.cfg.Notification.RedisStream)}, nil
	case config.SinkAMQP:
		sink, err := service.NewAMQPSink(r.cfg.Notification.AMQPURL, r.cfg.Notification.AMQPExchange, r.logger)
		if err != nil {
			return nil, fmt.Errorf("connect amqp: %w", err)
		}
		r.closers = append(r.closers, func() { _ = sink.Close() })
		return []service.NotificationSink{sink}, nil
	default:
		return []service.NotificationSink{service.NewLogSink(r.logger.Named("events"))}, nil
	}
}

// loadQueues reads the queue file and, with Postgres enabled, seeds it into the
// queues table and serves the table's contents instead.
func loadQueues(ctx context.Context, path string, table *workflow.TransitionTable, pg *persistence.Postgres, logger *zap.Logger) ([]domain.Queue, error) {
	var fromFile []domain.Queue
	if path != "" {
		queues, err := workflow.LoadQueueFile(path, table)
		switch {
		case err == nil:
			fromFile = queues
		case errors.Is(err, fs.ErrNotExist):
			logger.Warn("queue file not found", zap.String("path", path))
		default:
			return nil, err
		}
	}
	if !pg.Enabled() {
		return fromFile, nil
	}

	repo := pg.Queues()
	for _, q := range fromFile {
		if err := repo.Upsert(ctx, q); err != nil {
			return nil, fmt.Errorf("seed queue %s: %w", q.ID, err)
		}
	}
	stored, err := repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list queues: %w", err)
	}
	valid := stored[:0]
	for _, q := range stored {
		if !table.HasStage(q.Kind, q.Stage) || table.IsClosing(q.Kind, q.Stage) {
			logger.Warn("ignoring queue with unusable stage",
				zap.String("queue_id", q.ID), zap.String("kind", string(q.Kind)), zap.String("stage", string(q.Stage)))
			continue
		}
		valid = append(valid, q)
	}
	return valid, nil
}

func duePolicy(cfg config.WorkflowConfig) workflow.DuePolicy {
	hours := make(map[domain.Priority]int, len(cfg.SLAHours))
	for priority, h := range cfg.SLAHours {
		hours[domain.Priority(priority)] = h
	}
	return workflow.DuePolicy{Hours: hours}
}
