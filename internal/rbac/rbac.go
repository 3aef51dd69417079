// Package rbac holds the pure authorization decision tables for
// project-scoped roles. It never touches storage: callers resolve the
// caller's role and ownership flags first, then ask for a verdict.
package rbac

type Role string
type Action string

const (
	RoleManager Role = "manager"
	RoleMember  Role = "member"
	RoleViewer  Role = "viewer"
	// RoleNone means the user has no membership row in the project.
	RoleNone Role = ""
)

const (
	ActionView   Action = "view"
	ActionCreate Action = "create"
	ActionEdit   Action = "edit"
	ActionDelete Action = "delete"
)

// Context carries the ownership flags that widen issue permissions beyond
// the plain role table.
type Context struct {
	IsProjectOwner bool
	IsAssignee     bool
	IsReporter     bool
}

// CanSprint decides sprint actions. Mutations are manager-only (the legacy
// project owner field counts as manager); any membership may view.
func CanSprint(action Action, role Role, ctx Context) bool {
	if ctx.IsProjectOwner {
		return true
	}
	switch action {
	case ActionView:
		return role == RoleManager || role == RoleMember || role == RoleViewer
	case ActionCreate, ActionEdit, ActionDelete:
		return role == RoleManager
	default:
		return false
	}
}

// CanIssue decides issue actions. Edit is wider than the sprint table: the
// issue's assignee and reporter may edit regardless of role, but a viewer
// who is neither stays read-only. Delete is owner/manager only.
func CanIssue(action Action, role Role, ctx Context) bool {
	if ctx.IsProjectOwner {
		return true
	}
	switch action {
	case ActionView:
		return role == RoleManager || role == RoleMember || role == RoleViewer
	case ActionCreate:
		return role == RoleManager || role == RoleMember
	case ActionEdit:
		if role == RoleManager || role == RoleMember {
			return true
		}
		return ctx.IsAssignee || ctx.IsReporter
	case ActionDelete:
		return role == RoleManager
	default:
		return false
	}
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleManager, RoleMember, RoleViewer:
		return Role(role)
	default:
		return RoleNone
	}
}
