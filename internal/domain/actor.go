package domain

// Role names understood by the permission checker.
const (
	RoleAdmin      = "admin"
	RoleSupervisor = "supervisor"
	RoleAgent      = "agent"
	RoleCustomer   = "customer"
)

// Actor identifies who performed an operation.
type Actor struct {
	ID    string
	Roles []string
}

// SystemActor is used for changes made without a human caller.
var SystemActor = Actor{ID: "system"}

// HasRole reports whether the actor carries role.
func (a Actor) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}
