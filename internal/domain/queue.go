package domain

// Queue holds unassigned work items of one stage at one location.
type Queue struct {
	ID           string
	Code         string
	Name         string
	Kind         Kind
	Stage        Stage
	LocationID   string
	AllowedRoles []string
	SLAHours     int
}

// AllowsRole reports whether members of role may pick items from the queue.
func (q *Queue) AllowsRole(role string) bool {
	for _, allowed := range q.AllowedRoles {
		if allowed == role {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of q.
func (q *Queue) Clone() *Queue {
	if q == nil {
		return nil
	}
	cp := *q
	cp.AllowedRoles = append([]string(nil), q.AllowedRoles...)
	return &cp
}
