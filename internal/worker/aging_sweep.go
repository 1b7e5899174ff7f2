package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/workflow-service/internal/domain"
	"github.com/spec-kit/workflow-service/internal/events"
	"github.com/spec-kit/workflow-service/internal/observability"
	"github.com/spec-kit/workflow-service/internal/repository"
	"github.com/spec-kit/workflow-service/internal/workflow"
)

const (
	defaultSweepBatch = 500
	sweepLockKey      = "workflow:aging-sweep:lock"
)

// Locker grants a lease so that only one replica sweeps at a time.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

// LocalLocker always grants the lease. It serves single-instance deployments.
type LocalLocker struct{}

func (LocalLocker) TryLock(context.Context, string, time.Duration) (func(), bool, error) {
	return func() {}, true, nil
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisLocker takes the lease with SET NX and releases it only if it still owns it.
type RedisLocker struct {
	client *redis.Client
}

// NewRedisLocker builds a RedisLocker.
func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client}
}

func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}
	release := func() {
		_ = releaseScript.Run(context.Background(), l.client, []string{key}, token).Err()
	}
	return release, true, nil
}

// AgingSweepConfig tunes the sweep loop.
type AgingSweepConfig struct {
	Interval  time.Duration
	BatchSize int
}

// AgingSweepDependencies bundles collaborators for the sweep.
type AgingSweepDependencies struct {
	Items      repository.WorkItemRepository
	Classifier workflow.AgingClassifier
	Notifier   events.Notifier
	Locker     Locker
	Logger     *zap.Logger
	Metrics    *observability.Metrics
	Clock      func() time.Time
}

// SweepResult summarises one pass.
type SweepResult struct {
	Skipped   bool
	Scanned   int
	Changed   int
	Conflicts int
}

// AgingSweep periodically re-classifies every open work item and persists tiers
// that drifted since the last write. Each record is written with a version guard,
// so a concurrent transition always wins and the sweep never holds long locks.
type AgingSweep struct {
	deps AgingSweepDependencies
	cfg  AgingSweepConfig

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

// NewAgingSweep creates a sweep.
func NewAgingSweep(cfg AgingSweepConfig, deps AgingSweepDependencies) *AgingSweep {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultSweepBatch
	}
	if deps.Locker == nil {
		deps.Locker = LocalLocker{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	return &AgingSweep{
		deps:      deps,
		cfg:       cfg,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Run sweeps once immediately and then on every tick. Blocks until Stop is called
// or ctx ends.
func (s *AgingSweep) Run(ctx context.Context) {
	defer close(s.stoppedCh)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.deps.Logger.Info("aging sweep started",
		zap.Duration("interval", s.cfg.Interval),
		zap.Int("batch_size", s.cfg.BatchSize))

	s.runOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			s.deps.Logger.Info("aging sweep stopping")
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

// Stop signals the loop to stop and waits for the current pass to finish.
func (s *AgingSweep) Stop() {
	close(s.stopCh)
	<-s.stoppedCh
}

func (s *AgingSweep) runOnce(ctx context.Context) {
	started := time.Now()
	result, err := s.SweepOnce(ctx)
	switch {
	case err != nil:
		s.deps.Metrics.RecordSweep("error", time.Since(started))
		s.deps.Logger.Error("aging sweep failed", zap.Error(err))
	case result.Skipped:
		s.deps.Metrics.RecordSweep("skipped", time.Since(started))
	default:
		s.deps.Metrics.RecordSweep("ok", time.Since(started))
		s.deps.Logger.Info("aging sweep finished",
			zap.Int("scanned", result.Scanned),
			zap.Int("changed", result.Changed),
			zap.Int("conflicts", result.Conflicts),
			zap.Duration("took", time.Since(started)))
	}
}

// SweepOnce performs a single pass over all open items.
func (s *AgingSweep) SweepOnce(ctx context.Context) (SweepResult, error) {
	var result SweepResult

	release, ok, err := s.deps.Locker.TryLock(ctx, sweepLockKey, s.lockTTL())
	if err != nil {
		return result, err
	}
	if !ok {
		result.Skipped = true
		return result, nil
	}
	defer release()

	now := s.deps.Clock().UTC()
	after := ""
	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		batch, err := s.deps.Items.ListOpen(ctx, after, s.cfg.BatchSize)
		if err != nil {
			return result, fmt.Errorf("list open work items: %w", err)
		}
		for i := range batch {
			if err := s.reclassify(ctx, &batch[i], now, &result); err != nil {
				return result, err
			}
		}
		if len(batch) < s.cfg.BatchSize {
			return result, nil
		}
		after = batch[len(batch)-1].ID
	}
}

func (s *AgingSweep) reclassify(ctx context.Context, item *domain.WorkItem, now time.Time, result *SweepResult) error {
	result.Scanned++
	tier := s.deps.Classifier.Classify(item.DueAt, now)
	if tier == item.AgingTier && item.SLABreached == (tier == domain.AgingBreached) {
		return nil
	}

	written, err := s.deps.Items.UpdateAging(ctx, item.ID, item.Version, tier)
	if err != nil {
		return fmt.Errorf("update aging for %s: %w", item.ID, err)
	}
	if !written {
		result.Conflicts++
		s.deps.Metrics.RecordSweepConflict()
		return nil
	}

	result.Changed++
	s.deps.Metrics.RecordTierChange(string(tier))
	if s.deps.Notifier != nil {
		payload := events.AgingTierChangedPayload{FromTier: item.AgingTier, ToTier: tier, DueAt: item.DueAt}
		if err := s.deps.Notifier.Dispatch(ctx, item.ID, events.EventAgingTierChanged, domain.SystemActor, payload); err != nil {
			s.deps.Metrics.RecordNotificationFailure(string(events.EventAgingTierChanged))
			s.deps.Logger.Warn("aging notification failed", zap.String("work_item_id", item.ID), zap.Error(err))
		}
	}
	return nil
}

// lockTTL expires before the next tick.
func (s *AgingSweep) lockTTL() time.Duration {
	ttl := s.cfg.Interval - time.Second
	if ttl <= 0 {
		ttl = s.cfg.Interval
	}
	return ttl
}
