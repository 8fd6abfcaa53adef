package rbac

type Role string
type Action string

const (
	RoleCollaborator Role = "collaborator"
	RoleOwner        Role = "owner"
)

const (
	ActionRead          Action = "read"
	ActionRequestChange Action = "request-change"
	ActionWrite         Action = "write"
	ActionApprove       Action = "approve"
	ActionShare         Action = "share"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleOwner:
		return true
	case RoleCollaborator:
		return action == ActionRead || action == ActionRequestChange
	default:
		return false
	}
}

// Normalize maps an untrusted role string onto a known role. Unknown
// values degrade to collaborator, never owner.
func Normalize(role string) Role {
	switch Role(role) {
	case RoleCollaborator, RoleOwner:
		return Role(role)
	default:
		return RoleCollaborator
	}
}
