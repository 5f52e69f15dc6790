package auth

// Role names carried in access tokens
const (
	RoleAdmin   = "admin"
	RoleAnalyst = "analyst"
	RoleUser    = "user"
)

// Permission names an operation on the security surface
type Permission string

const (
	PermissionReadAccounts   Permission = "security:accounts:read"
	PermissionUnlockAccounts Permission = "security:accounts:unlock"
	PermissionScan           Permission = "security:scan"
)

var rolePermissions = map[string][]Permission{
	RoleAdmin:   {PermissionReadAccounts, PermissionUnlockAccounts, PermissionScan},
	RoleAnalyst: {PermissionReadAccounts, PermissionScan},
	RoleUser:    {PermissionScan},
}

// HasPermission reports whether role grants permission. Unknown roles grant nothing.
func HasPermission(role string, permission Permission) bool {
	for _, p := range rolePermissions[role] {
		if p == permission {
			return true
		}
	}
	return false
}

// ValidRole reports whether role is one of the known roles
func ValidRole(role string) bool {
	_, ok := rolePermissions[role]
	return ok
}
