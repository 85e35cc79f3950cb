package user

import "time"

// User represents an account in any of the four roles. COMPANY accounts are
// the login credential linked to a companies row; EMPLOYEE accounts carry a
// subrole and an owning company.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	Subrole      string    `json:"subrole,omitempty"`
	CompanyID    string    `json:"company_id,omitempty"`
	CreatedByID  string    `json:"created_by_id,omitempty"`
	Coins        int64     `json:"coins"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// CreateUserInput holds the fields required to create a new user.
type CreateUserInput struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	Role        string `json:"role"`
	Subrole     string `json:"subrole"`
	CompanyID   string `json:"company_id"`
	CreatedByID string `json:"-"`
	Coins       int64  `json:"coins"`
}

// UpdateUserInput holds optional fields for a partial user update. Role and
// company are intentionally not updatable; accounts are re-provisioned instead.
type UpdateUserInput struct {
	Name     *string `json:"name,omitempty"`
	Email    *string `json:"email,omitempty"`
	Password *string `json:"password,omitempty"`
	Subrole  *string `json:"subrole,omitempty"`
}

// OperatorPermissions gates trip mutations for EMPLOYEE/OPERATOR accounts.
type OperatorPermissions struct {
	UserID    string `json:"user_id"`
	CanCreate bool   `json:"can_create"`
	CanModify bool   `json:"can_modify"`
	CanDelete bool   `json:"can_delete"`
}

// Session represents an active login session.
type Session struct {
	TokenHash string    `json:"-"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ListParams controls cursor pagination for user listings.
type ListParams struct {
	Limit  int
	Cursor string
}
