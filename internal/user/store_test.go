package user

import (
	"strings"
	"testing"
	"time"

	"github.com/cbums/cbums/internal/auth"
)

func TestValidateCreate(t *testing.T) {
	valid := CreateUserInput{
		Name:      "Guard One",
		Email:     "guard@example.com",
		Password:  "secret",
		Role:      auth.RoleEmployee,
		Subrole:   auth.SubroleGuard,
		CompanyID: "comp-1",
	}

	tests := []struct {
		name    string
		modify  func(*CreateUserInput)
		wantErr bool
	}{
		{"valid employee", func(in *CreateUserInput) {}, false},
		{"missing email", func(in *CreateUserInput) { in.Email = " " }, true},
		{"missing password", func(in *CreateUserInput) { in.Password = "" }, true},
		{"unknown role", func(in *CreateUserInput) { in.Role = "MANAGER" }, true},
		{"employee without subrole", func(in *CreateUserInput) { in.Subrole = "" }, true},
		{"employee with bad subrole", func(in *CreateUserInput) { in.Subrole = "PILOT" }, true},
		{"employee without company", func(in *CreateUserInput) { in.CompanyID = "" }, true},
		{"negative coins", func(in *CreateUserInput) { in.Coins = -1 }, true},
		{"admin with company", func(in *CreateUserInput) {
			in.Role = auth.RoleAdmin
			in.Subrole = ""
			in.CompanyID = "comp-1"
		}, true},
		{"admin with subrole", func(in *CreateUserInput) {
			in.Role = auth.RoleAdmin
			in.CompanyID = ""
		}, true},
		{"valid admin", func(in *CreateUserInput) {
			in.Role = auth.RoleAdmin
			in.Subrole = ""
			in.CompanyID = ""
		}, false},
		{"valid company login", func(in *CreateUserInput) {
			in.Role = auth.RoleCompany
			in.Subrole = ""
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid
			tt.modify(&in)
			err := ValidateCreate(in)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateCreate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestVisibleWhere(t *testing.T) {
	tests := []struct {
		name         string
		actor        *auth.Identity
		wantEmpty    bool
		wantContains []string
		wantArgs     int
	}{
		{
			name:      "superadmin unrestricted",
			actor:     &auth.Identity{ID: "sa", Role: auth.RoleSuperAdmin},
			wantEmpty: true,
		},
		{
			name:         "admin sees direct and transitive",
			actor:        &auth.Identity{ID: "adm", Role: auth.RoleAdmin},
			wantContains: []string{"created_by_id = $1", "company_id IN"},
			wantArgs:     1,
		},
		{
			name:         "company sees own guards and operators",
			actor:        &auth.Identity{ID: "cl", Role: auth.RoleCompany, CompanyID: "c1", Email: "c@example.com"},
			wantContains: []string{"company_id = $1", "'GUARD'", "'OPERATOR'", "email <> $3"},
			wantArgs:     3,
		},
		{
			name:         "employee sees self only",
			actor:        &auth.Identity{ID: "e1", Role: auth.RoleEmployee, Subrole: auth.SubroleGuard, CompanyID: "c1"},
			wantContains: []string{"id = $1"},
			wantArgs:     1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cond, args := visibleWhere(tt.actor, 0)
			if tt.wantEmpty {
				if cond != "" || len(args) != 0 {
					t.Fatalf("expected empty condition, got %q with %d args", cond, len(args))
				}
				return
			}
			for _, want := range tt.wantContains {
				if !strings.Contains(cond, want) {
					t.Errorf("condition %q missing %q", cond, want)
				}
			}
			if len(args) != tt.wantArgs {
				t.Errorf("expected %d args, got %d", tt.wantArgs, len(args))
			}
		})
	}
}

func TestVisibleWhereArgOffset(t *testing.T) {
	cond, _ := visibleWhere(&auth.Identity{ID: "adm", Role: auth.RoleAdmin}, 1)
	if !strings.Contains(cond, "$2") {
		t.Errorf("expected placeholders to start at $2, got %q", cond)
	}
	if strings.Contains(cond, "$1") {
		t.Errorf("offset condition should not reference $1: %q", cond)
	}
}

func TestCheckPassword(t *testing.T) {
	u := &User{PasswordHash: "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"}
	if CheckPassword(u, "definitely-wrong") {
		t.Error("expected mismatching password to fail")
	}
	if CheckPassword(&User{PasswordHash: "not-a-hash"}, "anything") {
		t.Error("expected malformed hash to fail")
	}
}

func TestEncodeDecodeCursor(t *testing.T) {
	ts := time.Date(2025, 3, 14, 9, 26, 53, 589000000, time.UTC)
	id := "2NqPmXq4FdYJ3rT0cKbWn9zLsQa"

	cursor := encodeCursor(ts, id)
	gotTime, gotID, err := decodeCursor(cursor)
	if err != nil {
		t.Fatalf("unexpected error decoding cursor: %v", err)
	}
	if !gotTime.Equal(ts) {
		t.Errorf("time mismatch: got %v, want %v", gotTime, ts)
	}
	if gotID != id {
		t.Errorf("id mismatch: got %q, want %q", gotID, id)
	}
}

func TestDecodeCursorInvalid(t *testing.T) {
	if _, _, err := decodeCursor("not-valid-base64!!!"); err == nil {
		t.Error("expected error for invalid base64")
	}
	if _, _, err := decodeCursor("bm9waXBl"); err == nil { // "nopipe"
		t.Error("expected error for missing separator")
	}
}

func TestPrefixedUserColumns(t *testing.T) {
	got := prefixedUserColumns("u")
	if !strings.HasPrefix(got, "u.id, u.name") {
		t.Errorf("unexpected prefix result: %q", got)
	}
	if strings.Contains(got, ", id,") {
		t.Errorf("found unprefixed column in %q", got)
	}
}
