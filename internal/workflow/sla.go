package workflow

import (
	"time"

	"github.com/spec-kit/workflow-service/internal/domain"
)

// DuePolicy maps a priority to the time allowed before an item is due.
type DuePolicy struct {
	Hours map[domain.Priority]int
}

// DefaultDuePolicy returns critical=4h, high=24h, medium=72h, low=168h.
func DefaultDuePolicy() DuePolicy {
	return DuePolicy{Hours: map[domain.Priority]int{
		domain.PriorityCritical: 4,
		domain.PriorityHigh:     24,
		domain.PriorityMedium:   72,
		domain.PriorityLow:      168,
	}}
}

// Duration returns the SLA for priority, falling back to the default mapping.
func (p DuePolicy) Duration(priority domain.Priority) time.Duration {
	if hours, ok := p.Hours[priority]; ok && hours > 0 {
		return time.Duration(hours) * time.Hour
	}
	if hours, ok := DefaultDuePolicy().Hours[priority]; ok {
		return time.Duration(hours) * time.Hour
	}
	return time.Duration(DefaultDuePolicy().Hours[domain.PriorityMedium]) * time.Hour
}

// DueAt returns from plus the SLA for priority.
func (p DuePolicy) DueAt(priority domain.Priority, from time.Time) time.Time {
	return from.Add(p.Duration(priority))
}
