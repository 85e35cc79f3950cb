package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// --- mock session store ---

type mockSessionLookup struct {
	sessions map[string]*Identity
}

func (m *mockSessionLookup) LookupSession(ctx context.Context, token string) (*Identity, error) {
	id, ok := m.sessions[token]
	if !ok {
		return nil, errors.New("not found")
	}
	return id, nil
}

// --- role helpers ---

func TestValidRole(t *testing.T) {
	for _, r := range []string{RoleSuperAdmin, RoleAdmin, RoleCompany, RoleEmployee} {
		if !ValidRole(r) {
			t.Errorf("expected %q to be a valid role", r)
		}
	}
	for _, r := range []string{"", "superadmin", "MANAGER"} {
		if ValidRole(r) {
			t.Errorf("expected %q to be invalid", r)
		}
	}
}

func TestValidSubrole(t *testing.T) {
	for _, s := range []string{SubroleGuard, SubroleOperator, SubroleDriver} {
		if !ValidSubrole(s) {
			t.Errorf("expected %q to be a valid subrole", s)
		}
	}
	if ValidSubrole("PILOT") {
		t.Error("expected PILOT to be invalid")
	}
}

func TestIdentityHasRole(t *testing.T) {
	id := &Identity{ID: "u1", Role: RoleCompany}
	if !id.HasRole(RoleSuperAdmin, RoleCompany) {
		t.Error("expected COMPANY to match allow-list containing COMPANY")
	}
	if id.HasRole(RoleSuperAdmin, RoleAdmin) {
		t.Error("COMPANY should not match an admin-only allow-list")
	}
}

// --- context helpers ---

func TestIdentityContext_RoundTrip(t *testing.T) {
	id := &Identity{ID: "u1", Role: RoleAdmin, Email: "a@example.com"}
	ctx := ContextWithIdentity(context.Background(), id)
	got := IdentityFromContext(ctx)
	if got == nil {
		t.Fatal("expected identity from context, got nil")
	}
	if got.ID != id.ID {
		t.Errorf("expected ID %q, got %q", id.ID, got.ID)
	}
}

func TestIdentityFromContext_Empty(t *testing.T) {
	got := IdentityFromContext(context.Background())
	if got != nil {
		t.Errorf("expected nil from empty context, got %+v", got)
	}
}

// --- Middleware tests ---

func TestMiddleware(t *testing.T) {
	store := &mockSessionLookup{
		sessions: map[string]*Identity{
			"good-token": {ID: "u1", Role: RoleAdmin, Email: "admin@example.com"},
		},
	}

	okHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if IdentityFromContext(r.Context()) == nil {
			t.Error("expected identity in context inside handler")
		}
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name       string
		authHeader string
		wantStatus int
		wantError  bool
	}{
		{
			name:       "valid token",
			authHeader: "Bearer good-token",
			wantStatus: http.StatusOK,
			wantError:  false,
		},
		{
			name:       "invalid token",
			authHeader: "Bearer bad-token",
			wantStatus: http.StatusUnauthorized,
			wantError:  true,
		},
		{
			name:       "missing header",
			authHeader: "",
			wantStatus: http.StatusUnauthorized,
			wantError:  true,
		},
		{
			name:       "malformed header no bearer",
			authHeader: "Token good-token",
			wantStatus: http.StatusUnauthorized,
			wantError:  true,
		},
		{
			name:       "bearer only no token",
			authHeader: "Bearer",
			wantStatus: http.StatusUnauthorized,
			wantError:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			rr := httptest.NewRecorder()

			handler := Middleware(store)(okHandler)
			handler.ServeHTTP(rr, req)

			if rr.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, rr.Code)
			}

			if tt.wantError {
				assertJSONError(t, rr, "unauthorized")
			}
		})
	}
}

// --- RequireRoles tests ---

func TestRequireRoles(t *testing.T) {
	okHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name       string
		identity   *Identity
		allowed    []string
		wantStatus int
		wantCode   string
	}{
		{
			name:       "role in allow-list",
			identity:   &Identity{ID: "u1", Role: RoleCompany},
			allowed:    []string{RoleSuperAdmin, RoleAdmin, RoleCompany},
			wantStatus: http.StatusOK,
		},
		{
			name:       "role not in allow-list",
			identity:   &Identity{ID: "u2", Role: RoleEmployee, Subrole: SubroleGuard},
			allowed:    []string{RoleSuperAdmin, RoleAdmin},
			wantStatus: http.StatusForbidden,
			wantCode:   "forbidden",
		},
		{
			name:       "no identity",
			identity:   nil,
			allowed:    []string{RoleSuperAdmin},
			wantStatus: http.StatusUnauthorized,
			wantCode:   "unauthorized",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.identity != nil {
				req = req.WithContext(ContextWithIdentity(req.Context(), tt.identity))
			}
			rr := httptest.NewRecorder()

			handler := RequireRoles(tt.allowed...)(okHandler)
			handler.ServeHTTP(rr, req)

			if rr.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, rr.Code)
			}
			if tt.wantCode != "" {
				assertJSONError(t, rr, tt.wantCode)
			}
		})
	}
}

// assertJSONError checks that the response body contains the expected error JSON structure.
func assertJSONError(t *testing.T, rr *httptest.ResponseRecorder, wantCode string) {
	t.Helper()

	ct := rr.Header().Get("Content-Type")
	if !strings.Contains(ct, "application/json") {
		t.Errorf("expected Content-Type application/json, got %q", ct)
	}

	var resp errorResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}

	if resp.Error.Code != wantCode {
		t.Errorf("expected error code %q, got %q", wantCode, resp.Error.Code)
	}
	if resp.Error.Message == "" {
		t.Error("expected non-empty error message")
	}
}
