// AngelaMos | 2026
// identity_test.go

package identity

import (
	"context"
	"testing"
)

func TestParseRole(t *testing.T) {
	tests := []struct {
		in      string
		want    Role
		wantErr bool
	}{
		{in: "buyer", want: RoleBuyer},
		{in: "msme-owner", want: RoleMSMEOwner},
		{in: "super-admin", want: RoleSuperAdmin},
		{in: "Admin", wantErr: true},
		{in: "", wantErr: true},
		{in: "root", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRole(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseRole(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseRole(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseRolesDropsUnknownAndDuplicates(t *testing.T) {
	got := ParseRoles([]string{"seller", "wizard", "seller", "admin"})

	if len(got) != 2 || got[0] != RoleSeller || got[1] != RoleAdmin {
		t.Errorf("ParseRoles() = %v, want [seller admin]", got)
	}
}

func TestAllRolesIsACopy(t *testing.T) {
	roles := AllRoles()
	roles[0] = "mutated"

	if AllRoles()[0] != RoleBuyer {
		t.Error("AllRoles() exposed the backing slice")
	}
}

func TestSessionUserRoleChecks(t *testing.T) {
	u := &SessionUser{ID: "u1", Roles: []Role{RoleSeller, RoleAgent}}

	if !u.HasRole(RoleSeller) {
		t.Error("HasRole(seller) = false")
	}
	if u.HasRole(RoleAdmin) {
		t.Error("HasRole(admin) = true")
	}
	if !u.HasAnyRole(RoleAdmin, RoleAgent) {
		t.Error("HasAnyRole(admin, agent) = false")
	}

	admin := &SessionUser{ID: "u2", Roles: []Role{RoleAdmin}}
	if admin.HasRole(RoleSuperAdmin) {
		t.Error("admin must not imply super-admin")
	}

	empty := &SessionUser{ID: "svc"}
	if empty.HasAnyRole(AllRoles()...) {
		t.Error("empty role set satisfied a role check")
	}

	var nilUser *SessionUser
	if nilUser.Authenticated() || nilUser.HasRole(RoleBuyer) {
		t.Error("nil user reported as authenticated or holding a role")
	}
}

func TestContextRoundTrip(t *testing.T) {
	if FromContext(context.Background()) != nil {
		t.Fatal("empty context returned a user")
	}

	u := &SessionUser{ID: "u1"}
	ctx := WithUser(context.Background(), u)

	if got := FromContext(ctx); got != u {
		t.Errorf("FromContext() = %v, want %v", got, u)
	}
}

func TestRoleIsStaff(t *testing.T) {
	for _, r := range AllRoles() {
		want := r == RoleAdmin || r == RoleSuperAdmin
		if got := r.IsStaff(); got != want {
			t.Errorf("%s.IsStaff() = %v, want %v", r, got, want)
		}
	}
}
