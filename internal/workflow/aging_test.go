package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/spec-kit/workflow-service/internal/domain"
)

func TestAgingClassifier_Classify(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	at := func(d time.Duration) *time.Time {
		v := now.Add(d)
		return &v
	}

	tests := []struct {
		name  string
		dueAt *time.Time
		want  domain.AgingTier
	}{
		{"no due date", nil, domain.AgingOnTime},
		{"one second overdue", at(-time.Second), domain.AgingBreached},
		{"due exactly now", at(0), domain.AgingAtRisk},
		{"due in 23h59m", at(23*time.Hour + 59*time.Minute), domain.AgingAtRisk},
		{"due in exactly 24h", at(24 * time.Hour), domain.AgingOnTime},
		{"due in 24h1s", at(24*time.Hour + time.Second), domain.AgingOnTime},
		{"due next week", at(7 * 24 * time.Hour), domain.AgingOnTime},
	}

	classifier := NewAgingClassifier(0)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classifier.Classify(tt.dueAt, now))
		})
	}
}

func TestAgingClassifier_CustomWindow(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	due := now.Add(36 * time.Hour)

	assert.Equal(t, domain.AgingOnTime, NewAgingClassifier(24*time.Hour).Classify(&due, now))
	assert.Equal(t, domain.AgingAtRisk, NewAgingClassifier(48*time.Hour).Classify(&due, now))
}

func TestAgingClassifier_ZeroValueUsesDefault(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	due := now.Add(time.Hour)

	var classifier AgingClassifier
	assert.Equal(t, domain.AgingAtRisk, classifier.Classify(&due, now))
}

func TestAgingClassifier_ApplySetsBreachFlag(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	due := now.Add(-time.Minute)
	item := &domain.WorkItem{DueAt: &due}

	NewAgingClassifier(0).Apply(item, now)
	assert.Equal(t, domain.AgingBreached, item.AgingTier)
	assert.True(t, item.SLABreached)

	later := now.Add(72 * time.Hour)
	item.DueAt = &later
	NewAgingClassifier(0).Apply(item, now)
	assert.Equal(t, domain.AgingOnTime, item.AgingTier)
	assert.False(t, item.SLABreached)
}

func TestDuePolicy(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	policy := DefaultDuePolicy()

	assert.Equal(t, now.Add(4*time.Hour), policy.DueAt(domain.PriorityCritical, now))
	assert.Equal(t, now.Add(24*time.Hour), policy.DueAt(domain.PriorityHigh, now))
	assert.Equal(t, now.Add(72*time.Hour), policy.DueAt(domain.PriorityMedium, now))
	assert.Equal(t, now.Add(168*time.Hour), policy.DueAt(domain.PriorityLow, now))

	custom := DuePolicy{Hours: map[domain.Priority]int{domain.PriorityHigh: 8}}
	assert.Equal(t, 8*time.Hour, custom.Duration(domain.PriorityHigh))
	assert.Equal(t, 4*time.Hour, custom.Duration(domain.PriorityCritical), "missing entries fall back to defaults")
	assert.Equal(t, 72*time.Hour, custom.Duration(domain.Priority("bogus")))
}

func TestFormatDisplayNumber(t *testing.T) {
	assert.Equal(t, "MNG-2025-0001", FormatDisplayNumber("mng", 2025, 1))
	assert.Equal(t, "MNG-2025-0420", FormatDisplayNumber("MNG", 2025, 420))
	assert.Equal(t, "BLR-2026-12345", FormatDisplayNumber("BLR", 2026, 12345))
}
