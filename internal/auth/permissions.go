package auth

// Permission represents a named capability in the admin API.
type Permission string

// Permission constants.
const (
	PermBridgeRead       Permission = "bridge:read"
	PermDeviceRead       Permission = "device:read"
	PermDeviceOperate    Permission = "device:operate"
	PermAutomationRead   Permission = "automation:read"
	PermAutomationManage Permission = "automation:manage"
	PermSystemAdmin      Permission = "system:admin"
)

// rolePermissions maps each role to its granted permissions.
// This is the single source of truth for the authorisation model.
var rolePermissions = map[Role][]Permission{
	RoleViewer: {
		PermBridgeRead,
		PermDeviceRead,
		PermAutomationRead,
	},
	RoleOperator: {
		PermBridgeRead,
		PermDeviceRead,
		PermDeviceOperate,
		PermAutomationRead,
	},
	RoleAdmin: {
		PermBridgeRead,
		PermDeviceRead,
		PermDeviceOperate,
		PermAutomationRead,
		PermAutomationManage,
		PermSystemAdmin,
	},
}

// HasPermission returns true if the given role has the specified permission.
func HasPermission(role Role, perm Permission) bool {
	perms, ok := rolePermissions[role]
	if !ok {
		return false
	}
	for _, p := range perms {
		if p == perm {
			return true
		}
	}
	return false
}

// PermissionsForRole returns all permissions granted to a role.
// Returns nil for unknown roles.
func PermissionsForRole(role Role) []Permission {
	perms := rolePermissions[role]
	if perms == nil {
		return nil
	}
	result := make([]Permission, len(perms))
	copy(result, perms)
	return result
}
