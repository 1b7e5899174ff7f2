package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/workflow-service/internal/domain"
	"github.com/spec-kit/workflow-service/internal/repository"
)

func newItem(id string, created time.Time) *domain.WorkItem {
	return &domain.WorkItem{
		ID:            id,
		DisplayNumber: "MNG-2025-" + id,
		Kind:          domain.KindCase,
		Stage:         domain.StageEnquiry,
		Priority:      domain.PriorityMedium,
		Title:         "item " + id,
		LocationID:    "MNG",
		CreatedBy:     "u1",
		CreatedAt:     created,
		UpdatedAt:     created,
		AgingTier:     domain.AgingOnTime,
	}
}

func TestSequences_ConcurrentNextIsDenseAndUnique(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	const callers = 100
	results := make([]int64, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			n, err := store.Sequences().Next(ctx, "MNG", 2025)
			assert.NoError(t, err)
			results[i] = n
		}(i)
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i] < results[j] })
	for i, n := range results {
		assert.Equal(t, int64(i+1), n)
	}

	other, err := store.Sequences().Next(ctx, "MNG", 2026)
	require.NoError(t, err)
	assert.Equal(t, int64(1), other, "each (location, year) has its own counter")
}

func TestSequences_Ceiling(t *testing.T) {
	store := NewStore(WithSequenceCeiling(2))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := store.Sequences().Next(ctx, "MNG", 2025)
		require.NoError(t, err)
	}
	_, err := store.Sequences().Next(ctx, "MNG", 2025)
	assert.ErrorIs(t, err, repository.ErrSequenceExhausted)
}

func TestAtomically_RollsBackEveryWrite(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	boom := errors.New("boom")
	err := store.Atomically(ctx, func(tx repository.Store) error {
		if _, err := tx.Sequences().Next(ctx, "MNG", 2025); err != nil {
			return err
		}
		if err := tx.WorkItems().Create(ctx, newItem("a", now)); err != nil {
			return err
		}
		if err := tx.Events().Append(ctx, &domain.TransitionEvent{ID: 1, WorkItemID: "a", ToStage: domain.StageEnquiry, CreatedAt: now}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = store.WorkItems().GetByID(ctx, "a")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	events, err := store.Events().ListByWorkItem(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, events)

	n, err := store.Sequences().Next(ctx, "MNG", 2025)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "rolled back allocation must not leave a gap")
}

func TestAtomically_CommitIsVisible(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	err := store.Atomically(ctx, func(tx repository.Store) error {
		if err := tx.WorkItems().Create(ctx, newItem("a", now)); err != nil {
			return err
		}
		_, err := store.WorkItems().GetByID(ctx, "a")
		assert.ErrorIs(t, err, repository.ErrNotFound, "uncommitted writes stay private")
		return nil
	})
	require.NoError(t, err)

	got, err := store.WorkItems().GetByID(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Version)
}

func TestAtomically_HonoursCancelledContext(t *testing.T) {
	store := NewStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := store.Atomically(ctx, func(repository.Store) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestFailureHook(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	injected := errors.New("disk full")
	store.SetFailureHook(func(op string) error {
		if op == "work_items.create" {
			return injected
		}
		return nil
	})

	err := store.WorkItems().Create(ctx, newItem("a", time.Now()))
	assert.ErrorIs(t, err, injected)

	store.SetFailureHook(nil)
	assert.NoError(t, store.WorkItems().Create(ctx, newItem("a", time.Now())))
}

func TestWorkItems_ReturnsCopies(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	require.NoError(t, store.WorkItems().Create(ctx, newItem("a", time.Now())))

	got, err := store.WorkItems().GetByID(ctx, "a")
	require.NoError(t, err)
	got.Stage = domain.StageClosure

	again, err := store.WorkItems().GetByID(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, domain.StageEnquiry, again.Stage)
}

func TestWorkItems_UpdateAgingIsConditional(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	require.NoError(t, store.WorkItems().Create(ctx, newItem("a", time.Now())))

	written, err := store.WorkItems().UpdateAging(ctx, "a", 7, domain.AgingBreached)
	require.NoError(t, err)
	assert.False(t, written, "stale version must not be written")

	written, err = store.WorkItems().UpdateAging(ctx, "a", 1, domain.AgingBreached)
	require.NoError(t, err)
	assert.True(t, written)

	got, err := store.WorkItems().GetByID(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, domain.AgingBreached, got.AgingTier)
	assert.True(t, got.SLABreached)
	assert.Equal(t, int64(2), got.Version)
}

func TestWorkItems_ListFiltersAndOrders(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	queue := "mng-enq"

	for i, id := range []string{"a", "b", "c", "d"} {
		item := newItem(id, base.Add(time.Duration(i)*time.Hour))
		due := base.Add(time.Duration(10-i) * time.Hour)
		item.DueAt = &due
		if id != "d" {
			item.QueueID = &queue
		}
		if id == "c" {
			completed := base
			item.CompletedAt = &completed
		}
		require.NoError(t, store.WorkItems().Create(ctx, item))
	}

	queued, err := store.WorkItems().List(ctx, repository.WorkItemFilter{QueueID: &queue, OpenOnly: true, Order: repository.OrderDueAsc})
	require.NoError(t, err)
	require.Len(t, queued, 2)
	assert.Equal(t, "b", queued[0].ID)
	assert.Equal(t, "a", queued[1].ID)

	recent, err := store.WorkItems().List(ctx, repository.WorkItemFilter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "d", recent[0].ID)
	assert.Equal(t, "c", recent[1].ID)

	paged, err := store.WorkItems().List(ctx, repository.WorkItemFilter{Limit: 2, Offset: 3})
	require.NoError(t, err)
	require.Len(t, paged, 1)
	assert.Equal(t, "a", paged[0].ID)

	term := "ITEM B"
	searched, err := store.WorkItems().List(ctx, repository.WorkItemFilter{SearchTerm: &term})
	require.NoError(t, err)
	require.Len(t, searched, 1)
	assert.Equal(t, "b", searched[0].ID)

	open, err := store.WorkItems().ListOpen(ctx, "a", 10)
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, "b", open[0].ID)
	assert.Equal(t, "d", open[1].ID)
}

func TestWorkItems_SummarizeAging(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	now := time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)

	dues := map[string]time.Duration{
		"late":   -time.Hour,
		"soon":   2 * time.Hour,
		"later":  48 * time.Hour,
		"closed": -48 * time.Hour,
	}
	for id, offset := range dues {
		item := newItem(id, now.Add(-72*time.Hour))
		due := now.Add(offset)
		item.DueAt = &due
		if id == "closed" {
			item.CompletedAt = &now
		}
		require.NoError(t, store.WorkItems().Create(ctx, item))
	}
	other := newItem("blr", now)
	other.LocationID = "BLR"
	require.NoError(t, store.WorkItems().Create(ctx, other))

	summary, err := store.WorkItems().SummarizeAging(ctx, nil, now, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, domain.AgingSummary{OnTime: 2, AtRisk: 1, Breached: 1}, summary)

	mng := "MNG"
	summary, err = store.WorkItems().SummarizeAging(ctx, &mng, now, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, domain.AgingSummary{OnTime: 1, AtRisk: 1, Breached: 1}, summary)
}

func TestNotes_InternalFiltering(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	require.NoError(t, store.WorkItems().Create(ctx, newItem("a", time.Now())))
	require.NoError(t, store.Notes().Append(ctx, &domain.Note{ID: 1, WorkItemID: "a", Text: "public", ExternallyVisible: true}))
	require.NoError(t, store.Notes().Append(ctx, &domain.Note{ID: 2, WorkItemID: "a", Text: "private", Internal: true}))

	all, err := store.Notes().ListByWorkItem(ctx, "a", true)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	public, err := store.Notes().ListByWorkItem(ctx, "a", false)
	require.NoError(t, err)
	require.Len(t, public, 1)
	assert.Equal(t, "public", public[0].Text)

	err = store.Notes().Append(ctx, &domain.Note{ID: 3, WorkItemID: "missing"})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
