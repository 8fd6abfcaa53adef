package rbac

import "testing"

func TestCan(t *testing.T) {
	cases := []struct {
		name   string
		role   Role
		action Action
		allow  bool
	}{
		{name: "collaborator read", role: RoleCollaborator, action: ActionRead, allow: true},
		{name: "collaborator request", role: RoleCollaborator, action: ActionRequestChange, allow: true},
		{name: "collaborator write", role: RoleCollaborator, action: ActionWrite, allow: false},
		{name: "collaborator approve", role: RoleCollaborator, action: ActionApprove, allow: false},
		{name: "collaborator share", role: RoleCollaborator, action: ActionShare, allow: false},
		{name: "owner approve", role: RoleOwner, action: ActionApprove, allow: true},
		{name: "owner write", role: RoleOwner, action: ActionWrite, allow: true},
		{name: "owner share", role: RoleOwner, action: ActionShare, allow: true},
		{name: "unknown role read", role: Role("bogus"), action: ActionRead, allow: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Can(tc.role, tc.action); got != tc.allow {
				t.Fatalf("Can(%q, %q) = %v, want %v", tc.role, tc.action, got, tc.allow)
			}
		})
	}
}

func TestNormalizeNeverEscalates(t *testing.T) {
	if Normalize("admin") != RoleCollaborator {
		t.Fatal("unknown role must normalize to collaborator")
	}
	if Normalize("owner") != RoleOwner {
		t.Fatal("owner must normalize to owner")
	}
}
