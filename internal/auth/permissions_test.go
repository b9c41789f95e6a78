package auth

import "testing"

func TestHasPermission(t *testing.T) {
	tests := []struct {
		role   Role
		should []Permission
		not    []Permission
	}{
		{
			role:   RoleViewer,
			should: []Permission{PermBridgeRead, PermDeviceRead, PermAutomationRead},
			not:    []Permission{PermDeviceOperate, PermAutomationManage, PermSystemAdmin},
		},
		{
			role:   RoleOperator,
			should: []Permission{PermBridgeRead, PermDeviceRead, PermDeviceOperate, PermAutomationRead},
			not:    []Permission{PermAutomationManage, PermSystemAdmin},
		},
		{
			role: RoleAdmin,
			should: []Permission{
				PermBridgeRead, PermDeviceRead, PermDeviceOperate,
				PermAutomationRead, PermAutomationManage, PermSystemAdmin,
			},
		},
	}

	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			for _, perm := range tt.should {
				if !HasPermission(tt.role, perm) {
					t.Errorf("%s should have %s", tt.role, perm)
				}
			}
			for _, perm := range tt.not {
				if HasPermission(tt.role, perm) {
					t.Errorf("%s should NOT have %s", tt.role, perm)
				}
			}
		})
	}
}

func TestHasPermission_UnknownRole(t *testing.T) {
	if HasPermission(Role("owner"), PermDeviceRead) {
		t.Error("unknown role should have no permissions")
	}
	if PermissionsForRole(Role("owner")) != nil {
		t.Error("PermissionsForRole(unknown) should be nil")
	}
}

func TestPermissionsForRole_ReturnsCopy(t *testing.T) {
	perms := PermissionsForRole(RoleViewer)
	perms[0] = PermSystemAdmin

	if HasPermission(RoleViewer, PermSystemAdmin) {
		t.Error("mutating the returned slice changed the role table")
	}
}

func TestIsValidRoleAndSubject(t *testing.T) {
	for _, r := range ValidRoles {
		if !IsValidRole(r) {
			t.Errorf("IsValidRole(%q) = false", r)
		}
	}
	if IsValidRole("root") {
		t.Error("IsValidRole(root) = true")
	}

	subjects := map[string]bool{
		"admin":           true,
		"ops@example.com": true,
		"node-red_1":      true,
		"":                false,
		"has space":       false,
		"semi;colon":      false,
	}
	for s, want := range subjects {
		if got := IsValidSubject(s); got != want {
			t.Errorf("IsValidSubject(%q) = %v, want %v", s, got, want)
		}
	}
}
