package user

import (
	"errors"
	"fmt"
	"strings"

	"github.com/cbums/cbums/internal/auth"
)

var (
	// ErrDuplicateEmail is returned when the email unique constraint is hit.
	ErrDuplicateEmail = errors.New("email already in use")
)

// ValidateCreate checks the structural invariants of a new account before it
// reaches the database: EMPLOYEE requires a subrole and an owning company,
// non-EMPLOYEE accounts must not carry a subrole, and only EMPLOYEE/COMPANY
// accounts may belong to a company.
func ValidateCreate(in CreateUserInput) error {
	if strings.TrimSpace(in.Email) == "" {
		return fmt.Errorf("email is required")
	}
	if in.Password == "" {
		return fmt.Errorf("password is required")
	}
	if !auth.ValidRole(in.Role) {
		return fmt.Errorf("unknown role %q", in.Role)
	}

	switch in.Role {
	case auth.RoleEmployee:
		if in.Subrole == "" {
			return fmt.Errorf("employee requires a subrole")
		}
		if !auth.ValidSubrole(in.Subrole) {
			return fmt.Errorf("unknown subrole %q", in.Subrole)
		}
		if in.CompanyID == "" {
			return fmt.Errorf("employee requires a company")
		}
	case auth.RoleCompany:
		if in.Subrole != "" {
			return fmt.Errorf("subrole is only valid for employees")
		}
	default:
		if in.Subrole != "" {
			return fmt.Errorf("subrole is only valid for employees")
		}
		if in.CompanyID != "" {
			return fmt.Errorf("%s accounts cannot belong to a company", in.Role)
		}
	}

	if in.Coins < 0 {
		return fmt.Errorf("coins must not be negative")
	}
	return nil
}
