// Package rbac holds the closed set of team roles and what each may do.
package rbac

type Role string
type Action string

const (
	RoleOwner  Role = "OWNER"
	RoleAdmin  Role = "ADMIN"
	RoleMember Role = "MEMBER"
)

const (
	// ActionRead covers viewing projects, issues, and comments.
	ActionRead Action = "read"
	// ActionWrite covers creating and editing issues, comments, subtasks, and projects.
	ActionWrite Action = "write"
	// ActionInvite covers invitations and project settings.
	ActionInvite Action = "invite"
	// ActionManageMembers covers role changes and removals.
	ActionManageMembers Action = "manage_members"
	// ActionDeleteTeam is owner only.
	ActionDeleteTeam Action = "delete_team"
)

func rank(role Role) int {
	switch role {
	case RoleOwner:
		return 3
	case RoleAdmin:
		return 2
	case RoleMember:
		return 1
	default:
		return 0
	}
}

func Can(role Role, action Action) bool {
	switch action {
	case ActionRead, ActionWrite:
		return rank(role) >= 1
	case ActionInvite, ActionManageMembers:
		return rank(role) >= 2
	case ActionDeleteTeam:
		return role == RoleOwner
	default:
		return false
	}
}

// CanManage reports whether actor may change or remove target. Owners manage
// everyone else; admins manage members only; nobody manages the owner.
func CanManage(actor, target Role) bool {
	if target == RoleOwner || !Can(actor, ActionManageMembers) {
		return false
	}
	return rank(actor) > rank(target)
}

// Parse returns the role and whether it is one of the known roles.
func Parse(role string) (Role, bool) {
	switch Role(role) {
	case RoleOwner, RoleAdmin, RoleMember:
		return Role(role), true
	default:
		return "", false
	}
}
