package workflow

import (
	"time"

	"github.com/spec-kit/workflow-service/internal/domain"
)

// DefaultAtRiskWindow is how close to the due date an item becomes at risk.
const DefaultAtRiskWindow = 24 * time.Hour

// AgingClassifier maps a due date to an urgency tier.
type AgingClassifier struct {
	AtRiskWindow time.Duration
}

// NewAgingClassifier returns a classifier; a non-positive window falls back to the default.
func NewAgingClassifier(window time.Duration) AgingClassifier {
	if window <= 0 {
		window = DefaultAtRiskWindow
	}
	return AgingClassifier{AtRiskWindow: window}
}

// Classify returns breached when the due date has passed, at_risk when it falls
// inside the window, and on_time otherwise. Items without a due date are on time.
func (c AgingClassifier) Classify(dueAt *time.Time, now time.Time) domain.AgingTier {
	if dueAt == nil {
		return domain.AgingOnTime
	}
	if dueAt.Before(now) {
		return domain.AgingBreached
	}
	if dueAt.Sub(now) < c.Window() {
		return domain.AgingAtRisk
	}
	return domain.AgingOnTime
}

// Apply classifies item in place.
func (c AgingClassifier) Apply(item *domain.WorkItem, now time.Time) {
	item.SetAging(c.Classify(item.DueAt, now))
}

// Window is the effective at-risk window.
func (c AgingClassifier) Window() time.Duration {
	if c.AtRiskWindow <= 0 {
		return DefaultAtRiskWindow
	}
	return c.AtRiskWindow
}
