// Package policy holds the authorization rules for file records. Decisions
// are pure functions of the actor and the record so they can be tested
// without touching storage.
package policy

type Role string
type Action string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

const (
	ActionView   Action = "view"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Actor is the authenticated user performing an operation.
type Actor struct {
	ID   string
	Role Role
}

// File is the slice of a file record the policy needs: who created it and
// who it is routed to.
type File struct {
	UploadedBy string
	AssignedTo string
}

// CanAct reports whether the actor may perform action on the file.
// View and update are open to the admin, the uploader, and the assignee.
// Delete is narrower: the assignee alone may not delete.
func CanAct(actor Actor, action Action, file File) bool {
	if actor.Role == RoleAdmin {
		return true
	}
	switch action {
	case ActionView, ActionUpdate:
		return actor.ID == file.UploadedBy || actor.ID == file.AssignedTo
	case ActionDelete:
		return actor.ID == file.UploadedBy
	default:
		return false
	}
}

// CanListAll reports whether the actor may list every file unfiltered.
func CanListAll(actor Actor) bool {
	return actor.Role == RoleAdmin
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleUser, RoleAdmin:
		return Role(role)
	default:
		return RoleUser
	}
}
