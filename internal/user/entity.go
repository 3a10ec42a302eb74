// AngelaMos | 2026
// entity.go

package user

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"

	"github.com/carterperez-dev/marketplace-access/internal/identity"
)

type User struct {
	ID             string     `db:"id"`
	Email          string     `db:"email"`
	PasswordHash   string     `db:"password_hash"`
	Name           string     `db:"name"`
	Roles          RoleList   `db:"roles"`
	IsPro          bool       `db:"is_pro"`
	OnboardedProAt *time.Time `db:"onboarded_pro_at"`
	CreatedAt      time.Time  `db:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at"`
	DeletedAt      *time.Time `db:"deleted_at"`
}

func (u *User) IsDeleted() bool {
	return u.DeletedAt != nil
}

func (u *User) IsStaff() bool {
	return u.Roles.Contains(identity.RoleAdmin) || u.Roles.Contains(identity.RoleSuperAdmin)
}

// RoleList is stored as a comma separated column. Unknown tags are dropped
// on scan.
type RoleList []identity.Role

func (l RoleList) Contains(role identity.Role) bool {
	for _, r := range l {
		if r == role {
			return true
		}
	}
	return false
}

func (l RoleList) Value() (driver.Value, error) {
	return strings.Join(identity.RoleStrings(l), ","), nil
}

func (l *RoleList) Scan(src any) error {
	var raw string
	switch v := src.(type) {
	case nil:
		*l = nil
		return nil
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return fmt.Errorf("scan roles: unsupported type %T", src)
	}

	if raw == "" {
		*l = nil
		return nil
	}

	parts := strings.Split(raw, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	*l = identity.ParseRoles(parts)
	return nil
}
