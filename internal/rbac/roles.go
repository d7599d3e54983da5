package rbac

// Role names carried in access tokens.
const (
	RoleAdmin      = "admin"
	RoleAgent      = "agent"
	RoleViewer     = "viewer"
	RoleSuperAdmin = "super_admin"
)

func IsSuperAdmin(role string) bool { return role == RoleSuperAdmin }

// IsAdmin reports whether role may act on behalf of other users in its project.
func IsAdmin(role string) bool { return role == RoleAdmin || role == RoleSuperAdmin }

// CanDial reports whether role may place calls and mint realtime credentials.
func CanDial(role string) bool {
	switch role {
	case RoleAgent, RoleAdmin, RoleSuperAdmin:
		return true
	}
	return false
}
