package domain

import (
	"time"
)

// Kind distinguishes the workflows driven by the engine.
type Kind string

const (
	KindCase   Kind = "case"
	KindTicket Kind = "ticket"
)

// Valid reports whether k is a known work item kind.
func (k Kind) Valid() bool {
	return k == KindCase || k == KindTicket
}

// Stage is a discrete point in a work item's lifecycle.
type Stage string

// Case stages.
const (
	StageEnquiry        Stage = "enquiry"
	StageEstimation     Stage = "estimation"
	StageQuotation      Stage = "quotation"
	StageOrderConfirmed Stage = "order_confirmed"
	StageManufacturing  Stage = "manufacturing"
	StageQualityCheck   Stage = "quality_check"
	StageDispatch       Stage = "dispatch"
	StageClosure        Stage = "closure"
	StageRejected       Stage = "rejected"
)

// Ticket stages.
const (
	StageOpen             Stage = "open"
	StageTriage           Stage = "triage"
	StageInProgress       Stage = "in_progress"
	StageAwaitingCustomer Stage = "awaiting_customer"
	StageResolved         Stage = "resolved"
	StageClosed           Stage = "closed"
	StageCancelled        Stage = "cancelled"
)

// StageOnHold is shared by every kind.
const StageOnHold Stage = "on_hold"

// Priority enumerates SLA urgency.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// AgingTier is the derived urgency of a work item relative to its due date.
type AgingTier string

const (
	AgingOnTime   AgingTier = "on_time"
	AgingAtRisk   AgingTier = "at_risk"
	AgingBreached AgingTier = "breached"
)

// WorkItem is the aggregate for cases and tickets.
type WorkItem struct {
	ID            string
	DisplayNumber string
	Kind          Kind
	Stage         Stage
	Priority      Priority
	Title         string
	Description   string
	QueueID       *string
	AssigneeID    *string
	DueAt         *time.Time
	AgingTier     AgingTier
	SLABreached   bool
	CreatedBy     string
	LocationID    string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	CompletedAt   *time.Time
	Version       int64
}

// Open reports whether the item still flows through the workflow.
func (w *WorkItem) Open() bool {
	return w.CompletedAt == nil
}

// CheckInvariants returns a non-empty reason when the item is in an illegal shape.
func (w *WorkItem) CheckInvariants() string {
	if w.QueueID != nil && w.AssigneeID != nil {
		return "work item cannot be both queued and assigned"
	}
	return ""
}

// SetAging stores the tier and the breach flag derived from it.
func (w *WorkItem) SetAging(tier AgingTier) {
	w.AgingTier = tier
	w.SLABreached = tier == AgingBreached
}

// Clone returns a deep copy so callers cannot mutate stored state.
func (w *WorkItem) Clone() *WorkItem {
	if w == nil {
		return nil
	}
	cp := *w
	cp.QueueID = cloneString(w.QueueID)
	cp.AssigneeID = cloneString(w.AssigneeID)
	cp.DueAt = cloneTime(w.DueAt)
	cp.CompletedAt = cloneTime(w.CompletedAt)
	return &cp
}

func cloneString(v *string) *string {
	if v == nil {
		return nil
	}
	s := *v
	return &s
}

func cloneTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	t := *v
	return &t
}

// AgingSummary counts open work items per tier.
type AgingSummary struct {
	OnTime   int
	AtRisk   int
	Breached int
}
