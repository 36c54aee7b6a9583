package model

// Role is the actor role carried by the authenticated session. The sync core
// only uses it to scope the status workflow; it grants nothing else.
type Role string

const (
	// RoleAdmin has broad authority over the status workflow, including
	// reopening resolved, rejected and closed complaints.
	RoleAdmin Role = "admin"
	// RoleStaff works the queue: forward-only transitions, closed is terminal.
	RoleStaff Role = "staff"
	// RoleReporter files complaints and observes status. No transition rights.
	RoleReporter Role = "reporter"
)

// AllRoles lists every role the workflow matrix must cover.
var AllRoles = []Role{RoleAdmin, RoleStaff, RoleReporter}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleStaff, RoleReporter:
		return true
	}
	return false
}
