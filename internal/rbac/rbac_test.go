package rbac

import "testing"

func TestCan(t *testing.T) {
	cases := []struct {
		name   string
		role   Role
		action Action
		allow  bool
	}{
		{name: "member read", role: RoleMember, action: ActionRead, allow: true},
		{name: "member write", role: RoleMember, action: ActionWrite, allow: true},
		{name: "member invite", role: RoleMember, action: ActionInvite, allow: false},
		{name: "admin invite", role: RoleAdmin, action: ActionInvite, allow: true},
		{name: "admin delete team", role: RoleAdmin, action: ActionDeleteTeam, allow: false},
		{name: "owner delete team", role: RoleOwner, action: ActionDeleteTeam, allow: true},
		{name: "unknown read", role: Role("GUEST"), action: ActionRead, allow: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Can(tc.role, tc.action); got != tc.allow {
				t.Fatalf("Can(%q, %q) = %v, want %v", tc.role, tc.action, got, tc.allow)
			}
		})
	}
}

func TestCanManage(t *testing.T) {
	cases := []struct {
		actor, target Role
		allow         bool
	}{
		{RoleOwner, RoleAdmin, true},
		{RoleOwner, RoleMember, true},
		{RoleAdmin, RoleMember, true},
		{RoleAdmin, RoleAdmin, false},
		{RoleAdmin, RoleOwner, false},
		{RoleMember, RoleMember, false},
		{RoleOwner, RoleOwner, false},
	}
	for _, tc := range cases {
		if got := CanManage(tc.actor, tc.target); got != tc.allow {
			t.Fatalf("CanManage(%q, %q) = %v, want %v", tc.actor, tc.target, got, tc.allow)
		}
	}
}

func TestParse(t *testing.T) {
	if r, ok := Parse("ADMIN"); !ok || r != RoleAdmin {
		t.Fatalf("expected ADMIN, got %q %v", r, ok)
	}
	if _, ok := Parse("admin"); ok {
		t.Fatal("roles are case sensitive")
	}
}
