package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spec-kit/workflow-service/internal/domain"
	"github.com/spec-kit/workflow-service/internal/repository"
)

type workItems struct {
	view
}

func (r *workItems) Create(_ context.Context, item *domain.WorkItem) error {
	return r.write("work_items.create", func(st *state) error {
		if _, exists := st.items[item.ID]; exists {
			return fmt.Errorf("work item %s already exists", item.ID)
		}
		for _, existing := range st.items {
			if existing.DisplayNumber == item.DisplayNumber {
				return fmt.Errorf("display number %s already used", item.DisplayNumber)
			}
		}
		if item.Version == 0 {
			item.Version = 1
		}
		st.items[item.ID] = item.Clone()
		return nil
	})
}

func (r *workItems) Update(_ context.Context, item *domain.WorkItem) error {
	return r.write("work_items.update", func(st *state) error {
		if _, ok := st.items[item.ID]; !ok {
			return repository.ErrNotFound
		}
		st.items[item.ID] = item.Clone()
		return nil
	})
}

func (r *workItems) GetByID(_ context.Context, id string) (*domain.WorkItem, error) {
	var out *domain.WorkItem
	err := r.read(func(st *state) error {
		item, ok := st.items[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = item.Clone()
		return nil
	})
	return out, err
}

// GetForUpdate needs no row lock: units of work already run one at a time.
func (r *workItems) GetForUpdate(ctx context.Context, id string) (*domain.WorkItem, error) {
	return r.GetByID(ctx, id)
}

func (r *workItems) List(_ context.Context, filter repository.WorkItemFilter) ([]domain.WorkItem, error) {
	var matched []domain.WorkItem
	_ = r.read(func(st *state) error {
		for _, item := range st.items {
			if matches(item, filter) {
				matched = append(matched, *item.Clone())
			}
		}
		return nil
	})

	switch filter.Order {
	case repository.OrderDueAsc:
		sort.Slice(matched, func(i, j int) bool {
			a, b := matched[i], matched[j]
			switch {
			case a.DueAt == nil && b.DueAt == nil:
			case a.DueAt == nil:
				return false
			case b.DueAt == nil:
				return true
			case !a.DueAt.Equal(*b.DueAt):
				return a.DueAt.Before(*b.DueAt)
			}
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.Before(b.CreatedAt)
			}
			return a.ID < b.ID
		})
	default:
		sort.Slice(matched, func(i, j int) bool {
			if !matched[i].UpdatedAt.Equal(matched[j].UpdatedAt) {
				return matched[i].UpdatedAt.After(matched[j].UpdatedAt)
			}
			return matched[i].ID < matched[j].ID
		})
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(matched) {
		return []domain.WorkItem{}, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], nil
}

func (r *workItems) ListOpen(_ context.Context, afterID string, limit int) ([]domain.WorkItem, error) {
	var open []domain.WorkItem
	_ = r.read(func(st *state) error {
		for id, item := range st.items {
			if item.Open() && id > afterID {
				open = append(open, *item.Clone())
			}
		}
		return nil
	})
	sort.Slice(open, func(i, j int) bool { return open[i].ID < open[j].ID })
	if limit > 0 && len(open) > limit {
		open = open[:limit]
	}
	return open, nil
}

func (r *workItems) UpdateAging(_ context.Context, id string, version int64, tier domain.AgingTier) (bool, error) {
	written := false
	err := r.write("work_items.update_aging", func(st *state) error {
		item, ok := st.items[id]
		if !ok || item.Version != version || item.CompletedAt != nil {
			return nil
		}
		item.SetAging(tier)
		item.Version++
		written = true
		return nil
	})
	return written, err
}

func (r *workItems) SummarizeAging(_ context.Context, location *string, now time.Time, atRiskWindow time.Duration) (domain.AgingSummary, error) {
	var summary domain.AgingSummary
	err := r.read(func(st *state) error {
		for _, item := range st.items {
			if !item.Open() {
				continue
			}
			if location != nil && item.LocationID != *location {
				continue
			}
			switch {
			case item.DueAt == nil:
				summary.OnTime++
			case item.DueAt.Before(now):
				summary.Breached++
			case item.DueAt.Sub(now) < atRiskWindow:
				summary.AtRisk++
			default:
				summary.OnTime++
			}
		}
		return nil
	})
	return summary, err
}

func matches(item *domain.WorkItem, f repository.WorkItemFilter) bool {
	if f.OpenOnly && !item.Open() {
		return false
	}
	if f.Kind != nil && item.Kind != *f.Kind {
		return false
	}
	if f.LocationID != nil && item.LocationID != *f.LocationID {
		return false
	}
	if f.QueueID != nil && (item.QueueID == nil || *item.QueueID != *f.QueueID) {
		return false
	}
	if f.AssigneeID != nil && (item.AssigneeID == nil || *item.AssigneeID != *f.AssigneeID) {
		return false
	}
	if len(f.Stages) > 0 && !contains(f.Stages, item.Stage) {
		return false
	}
	if len(f.Priorities) > 0 && !contains(f.Priorities, item.Priority) {
		return false
	}
	if len(f.AgingTiers) > 0 && !contains(f.AgingTiers, item.AgingTier) {
		return false
	}
	if f.CreatedFrom != nil && item.CreatedAt.Before(*f.CreatedFrom) {
		return false
	}
	if f.CreatedTo != nil && item.CreatedAt.After(*f.CreatedTo) {
		return false
	}
	if f.SearchTerm != nil && strings.TrimSpace(*f.SearchTerm) != "" {
		term := strings.ToLower(strings.TrimSpace(*f.SearchTerm))
		haystack := strings.ToLower(item.Title + " " + item.Description + " " + item.DisplayNumber)
		if !strings.Contains(haystack, term) {
			return false
		}
	}
	return true
}

func contains[T comparable](values []T, v T) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
