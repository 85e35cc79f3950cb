package user

import (
	"context"

	"github.com/cbums/cbums/internal/auth"
)

// AuthAdapter adapts user.Store to the auth.SessionLookup interface.
type AuthAdapter struct {
	store *Store
}

// NewAuthAdapter creates a new AuthAdapter wrapping the given user store.
func NewAuthAdapter(store *Store) *AuthAdapter {
	return &AuthAdapter{store: store}
}

// LookupSession looks up a session token and returns the caller's identity.
func (a *AuthAdapter) LookupSession(ctx context.Context, token string) (*auth.Identity, error) {
	u, err := a.store.GetSessionUser(ctx, token)
	if err != nil {
		return nil, err
	}
	return &auth.Identity{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Role:      u.Role,
		Subrole:   u.Subrole,
		CompanyID: u.CompanyID,
	}, nil
}
