package auth

import (
	"github.com/spec-kit/workflow-service/internal/domain"
)

// Operation names an action checked by the PermissionChecker.
type Operation string

const (
	OpRead           Operation = "read"
	OpReadInternal   Operation = "read_internal"
	OpCreate         Operation = "create"
	OpTransition     Operation = "transition"
	OpAssign         Operation = "assign"
	OpRelease        Operation = "release"
	OpChangePriority Operation = "change_priority"
	OpAddNote        Operation = "add_note"
)

// QueueLookup resolves queue ids.
type QueueLookup interface {
	Queue(id string) (*domain.Queue, bool)
}

// PermissionChecker decides who may act on a work item.
//
// Admins may do anything and customers may only read, create and comment. Any
// other caller may act on an item that is assigned to them, that sits in a queue
// open to one of their roles, or that is neither queued nor assigned and the caller
// is an agent.
type PermissionChecker struct {
	queues QueueLookup
}

// NewPermissionChecker builds a checker backed by queues.
func NewPermissionChecker(queues QueueLookup) *PermissionChecker {
	return &PermissionChecker{queues: queues}
}

// Allowed reports whether actor may perform operation on item. item may be nil for
// operations that are not scoped to an existing work item.
func (p *PermissionChecker) Allowed(actor domain.Actor, operation Operation, item *domain.WorkItem) bool {
	if actor.ID == "" {
		return false
	}
	if actor.HasRole(domain.RoleAdmin) {
		return true
	}
	customer := actor.HasRole(domain.RoleCustomer)

	switch operation {
	case OpRead, OpCreate:
		return true
	case OpAddNote:
		return customer || item == nil || p.owns(actor, item)
	case OpReadInternal:
		return !customer && len(actor.Roles) > 0
	}
	if customer || item == nil {
		return false
	}
	return p.owns(actor, item)
}

// AllowedInQueue reports whether actor may pick work from queue.
func (p *PermissionChecker) AllowedInQueue(actor domain.Actor, queue *domain.Queue) bool {
	if actor.HasRole(domain.RoleAdmin) {
		return true
	}
	for _, role := range actor.Roles {
		if queue.AllowsRole(role) {
			return true
		}
	}
	return false
}

func (p *PermissionChecker) owns(actor domain.Actor, item *domain.WorkItem) bool {
	switch {
	case item.AssigneeID != nil:
		if *item.AssigneeID == actor.ID {
			return true
		}
		return actor.HasRole(domain.RoleSupervisor)
	case item.QueueID != nil:
		if p.queues == nil {
			return false
		}
		queue, ok := p.queues.Queue(*item.QueueID)
		return ok && p.AllowedInQueue(actor, queue)
	default:
		return actor.HasRole(domain.RoleAgent) || actor.HasRole(domain.RoleSupervisor)
	}
}
