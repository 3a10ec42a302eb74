// AngelaMos | 2026
// identity.go

package identity

import (
	"context"
	"fmt"
	"slices"
	"time"
)

type Role string

const (
	RoleBuyer      Role = "buyer"
	RoleSeller     Role = "seller"
	RoleInvestor   Role = "investor"
	RoleAgent      Role = "agent"
	RoleMSMEOwner  Role = "msme-owner"
	RoleFounder    Role = "founder"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super-admin"
)

var allRoles = []Role{
	RoleBuyer,
	RoleSeller,
	RoleInvestor,
	RoleAgent,
	RoleMSMEOwner,
	RoleFounder,
	RoleAdmin,
	RoleSuperAdmin,
}

// AllRoles returns the closed role enumeration in declaration order.
func AllRoles() []Role {
	return slices.Clone(allRoles)
}

func (r Role) Valid() bool {
	return slices.Contains(allRoles, r)
}

// IsStaff reports whether r is an operator role. Staff roles are never
// self-assigned.
func (r Role) IsStaff() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

func (r Role) String() string {
	return string(r)
}

func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// ParseRoles keeps known, distinct roles in input order. Unknown tags are dropped.
func ParseRoles(tags []string) []Role {
	roles := make([]Role, 0, len(tags))
	for _, tag := range tags {
		r := Role(tag)
		if r.Valid() && !slices.Contains(roles, r) {
			roles = append(roles, r)
		}
	}
	return roles
}

func RoleStrings(roles []Role) []string {
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		out = append(out, string(r))
	}
	return out
}

// SessionUser is the verified, request-scoped snapshot of the caller.
type SessionUser struct {
	ID             string     `json:"id"`
	Email          string     `json:"email"`
	Name           string     `json:"name"`
	Roles          []Role     `json:"roles"`
	IsPro          bool       `json:"isPro"`
	OnboardedProAt *time.Time `json:"onboardedProAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

func (u *SessionUser) Authenticated() bool {
	return u != nil && u.ID != ""
}

func (u *SessionUser) HasRole(role Role) bool {
	if u == nil {
		return false
	}
	return slices.Contains(u.Roles, role)
}

func (u *SessionUser) HasAnyRole(roles ...Role) bool {
	if u == nil {
		return false
	}
	for _, r := range roles {
		if slices.Contains(u.Roles, r) {
			return true
		}
	}
	return false
}

type contextKey string

const userKey contextKey = "session_user"

func WithUser(ctx context.Context, u *SessionUser) context.Context {
	return context.WithValue(ctx, userKey, u)
}

func FromContext(ctx context.Context) *SessionUser {
	if u, ok := ctx.Value(userKey).(*SessionUser); ok {
		return u
	}
	return nil
}
