package auth

import "context"

// Roles. EMPLOYEE accounts additionally carry a subrole.
const (
	RoleSuperAdmin = "SUPERADMIN"
	RoleAdmin      = "ADMIN"
	RoleCompany    = "COMPANY"
	RoleEmployee   = "EMPLOYEE"
)

// Employee subroles.
const (
	SubroleGuard    = "GUARD"
	SubroleOperator = "OPERATOR"
	SubroleDriver   = "DRIVER"
)

// ValidRole reports whether role is one of the known roles.
func ValidRole(role string) bool {
	switch role {
	case RoleSuperAdmin, RoleAdmin, RoleCompany, RoleEmployee:
		return true
	}
	return false
}

// ValidSubrole reports whether subrole is one of the known employee subroles.
func ValidSubrole(subrole string) bool {
	switch subrole {
	case SubroleGuard, SubroleOperator, SubroleDriver:
		return true
	}
	return false
}

// Identity is the resolved caller of an authenticated request.
type Identity struct {
	ID        string
	Name      string
	Email     string
	Role      string
	Subrole   string // only set for EMPLOYEE
	CompanyID string // owning company for EMPLOYEE and COMPANY identities
}

// IsSuperAdmin reports whether the identity holds the SUPERADMIN role.
func (id *Identity) IsSuperAdmin() bool { return id.Role == RoleSuperAdmin }

// IsAdmin reports whether the identity holds the ADMIN role.
func (id *Identity) IsAdmin() bool { return id.Role == RoleAdmin }

// IsCompany reports whether the identity holds the COMPANY role.
func (id *Identity) IsCompany() bool { return id.Role == RoleCompany }

// IsEmployee reports whether the identity holds the EMPLOYEE role.
func (id *Identity) IsEmployee() bool { return id.Role == RoleEmployee }

// HasRole reports whether the identity's role is in the given allow-list.
func (id *Identity) HasRole(roles ...string) bool {
	for _, r := range roles {
		if id.Role == r {
			return true
		}
	}
	return false
}

// SessionLookup resolves an opaque session token to the caller's identity.
type SessionLookup interface {
	LookupSession(ctx context.Context, token string) (*Identity, error)
}
