package company

import "time"

// Company is the single canonical tenant record. The optional LoginUserID
// points at a users row with role COMPANY that holds the tenant's login
// credentials; there is no second copy of the company data on that row.
type Company struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	CreatedByID string    `json:"created_by_id,omitempty"`
	LoginUserID string    `json:"login_user_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CreateCompanyInput holds the fields required to provision a company. When
// Password is set a linked COMPANY login user is created in the same
// transaction.
type CreateCompanyInput struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	CreatedByID string `json:"-"`
}

// UpdateCompanyInput holds optional fields for a partial company update.
type UpdateCompanyInput struct {
	Name  *string `json:"name,omitempty"`
	Email *string `json:"email,omitempty"`
}

// ListParams controls cursor pagination for company listings.
type ListParams struct {
	Limit  int
	Cursor string
}
