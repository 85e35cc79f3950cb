package trip

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/cbums/cbums/internal/auth"
)

func TestValidTransition(t *testing.T) {
	tests := []struct {
		from, to string
		want     bool
	}{
		{StatusPending, StatusInProgress, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusCompleted, false},
		{StatusPending, StatusPending, false},
		{StatusInProgress, StatusCompleted, true},
		{StatusInProgress, StatusCancelled, true},
		{StatusInProgress, StatusPending, false},
		{StatusCompleted, StatusInProgress, false},
		{StatusCompleted, StatusCancelled, false},
		{StatusCancelled, StatusPending, false},
		{StatusCancelled, StatusInProgress, false},
		{"BOGUS", StatusInProgress, false},
	}

	for _, tt := range tests {
		if got := ValidTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("ValidTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestValidStatus(t *testing.T) {
	for _, s := range []string{StatusPending, StatusInProgress, StatusCompleted, StatusCancelled} {
		if !ValidStatus(s) {
			t.Errorf("ValidStatus(%s) = false, want true", s)
		}
	}
	for _, s := range []string{"", "pending", "DONE"} {
		if ValidStatus(s) {
			t.Errorf("ValidStatus(%q) = true, want false", s)
		}
	}
}

func TestVisibleWhere(t *testing.T) {
	tests := []struct {
		name         string
		actor        *auth.Identity
		wantEmpty    bool
		wantContains string
	}{
		{
			name:      "superadmin unrestricted",
			actor:     &auth.Identity{ID: "sa", Role: auth.RoleSuperAdmin},
			wantEmpty: true,
		},
		{
			name:         "admin scoped to managed companies",
			actor:        &auth.Identity{ID: "adm", Role: auth.RoleAdmin},
			wantContains: "company_id IN",
		},
		{
			name:         "company scoped to itself",
			actor:        &auth.Identity{ID: "cl", Role: auth.RoleCompany, CompanyID: "c1"},
			wantContains: "company_id = $1",
		},
		{
			name:         "guard scoped to own company",
			actor:        &auth.Identity{ID: "g1", Role: auth.RoleEmployee, Subrole: auth.SubroleGuard, CompanyID: "c1"},
			wantContains: "company_id = $1",
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
			if !strings.Contains(cond, tt.wantContains) {
				t.Errorf("condition %q missing %q", cond, tt.wantContains)
			}
			if len(args) != 1 {
				t.Errorf("expected 1 arg, got %d", len(args))
			}
		})
	}
}

func TestDefaultStatus(t *testing.T) {
	guard := &auth.Identity{Role: auth.RoleEmployee, Subrole: auth.SubroleGuard}
	if got := defaultStatus(guard); got != StatusInProgress {
		t.Errorf("guard default = %q, want %q", got, StatusInProgress)
	}

	for _, actor := range []*auth.Identity{
		{Role: auth.RoleSuperAdmin},
		{Role: auth.RoleAdmin},
		{Role: auth.RoleCompany},
		{Role: auth.RoleEmployee, Subrole: auth.SubroleOperator},
		{Role: auth.RoleEmployee, Subrole: auth.SubroleDriver},
	} {
		if got := defaultStatus(actor); got != "" {
			t.Errorf("defaultStatus(%s/%s) = %q, want empty", actor.Role, actor.Subrole, got)
		}
	}
}

func TestSealImmutableOnceVerified(t *testing.T) {
	fresh := &Seal{ID: "s1", TripID: "t1", Barcode: "BC-100"}
	if err := fresh.EnsureMutable(); err != nil {
		t.Errorf("unverified seal should be mutable, got %v", err)
	}

	verifiedAt := time.Date(2025, 6, 2, 11, 30, 0, 0, time.UTC)
	done := &Seal{ID: "s2", TripID: "t2", Barcode: "BC-200", Verified: true, VerifiedByID: "g1", VerifiedAt: &verifiedAt}
	if err := done.EnsureMutable(); !errors.Is(err, ErrSealVerified) {
		t.Errorf("verified seal mutability = %v, want ErrSealVerified", err)
	}
}

func TestEncodeDecodeCursor(t *testing.T) {
	ts := time.Date(2025, 6, 2, 11, 30, 0, 120000000, time.UTC)
	id := "2PqR1z2yXcZK4sU1dLcXo0aMtRb"

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
