package company

import (
	"strings"
	"testing"
	"time"

	"github.com/cbums/cbums/internal/auth"
)

func TestVisibleWhere(t *testing.T) {
	tests := []struct {
		name      string
		actor     *auth.Identity
		wantEmpty bool
		wantCond  string
	}{
		{
			name:      "superadmin unrestricted",
			actor:     &auth.Identity{ID: "sa", Role: auth.RoleSuperAdmin},
			wantEmpty: true,
		},
		{
			name:     "admin sees own companies",
			actor:    &auth.Identity{ID: "adm", Role: auth.RoleAdmin},
			wantCond: "created_by_id = $1",
		},
		{
			name:     "company sees itself",
			actor:    &auth.Identity{ID: "u1", Role: auth.RoleCompany, CompanyID: "c1"},
			wantCond: "id = $1",
		},
		{
			name:     "employee scoped to own company",
			actor:    &auth.Identity{ID: "e1", Role: auth.RoleEmployee, CompanyID: "c1"},
			wantCond: "id = $1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cond, args := visibleWhere(tt.actor, 0)
			if tt.wantEmpty {
				if cond != "" || len(args) != 0 {
					t.Fatalf("expected empty condition, got %q", cond)
				}
				return
			}
			if !strings.Contains(cond, tt.wantCond) {
				t.Errorf("condition %q missing %q", cond, tt.wantCond)
			}
			if len(args) == 0 {
				t.Error("expected at least one argument")
			}
		})
	}
}

func TestEncodeDecodeCursor(t *testing.T) {
	ts := time.Date(2025, 1, 20, 18, 4, 5, 0, time.UTC)
	id := "2NqQ0y1xWbYJ3rT0cKbWn9zLsQa"

	cursor := encodeCursor(ts, id)
	gotTime, gotID, err := decodeCursor(cursor)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !gotTime.Equal(ts) {
		t.Errorf("time mismatch: got %v, want %v", gotTime, ts)
	}
	if gotID != id {
		t.Errorf("id mismatch: got %q, want %q", gotID, id)
	}
}

func TestDecodeCursorMalformed(t *testing.T) {
	if _, _, err := decodeCursor("!!not base64!!"); err == nil {
		t.Error("expected error for invalid base64")
	}
}
