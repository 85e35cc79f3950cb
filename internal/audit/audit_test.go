package audit

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cbums/cbums/internal/auth"
)

func TestDetailsUnmarshalPreservesLargeNumbers(t *testing.T) {
	var d Details
	if err := json.Unmarshal([]byte(`{"amount": 9007199254740993, "note": "big"}`), &d); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	amount, ok := d.Int("amount")
	if !ok {
		t.Fatal("expected amount to be readable as int")
	}
	if amount != 9007199254740993 {
		t.Errorf("amount = %d, want 9007199254740993", amount)
	}
}

func TestDetailsIntAcceptsStrings(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		want   int64
		wantOk bool
	}{
		{"json number", `{"amount": 500}`, 500, true},
		{"string number", `{"amount": "500"}`, 500, true},
		{"non-numeric string", `{"amount": "lots"}`, 0, false},
		{"missing key", `{"other": 1}`, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d Details
			if err := json.Unmarshal([]byte(tt.raw), &d); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			got, ok := d.Int("amount")
			if ok != tt.wantOk {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOk)
			}
			if got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestDetailsString(t *testing.T) {
	var d Details
	if err := json.Unmarshal([]byte(`{"reason": "fuel", "count": 3}`), &d); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if s, ok := d.String("reason"); !ok || s != "fuel" {
		t.Errorf(`String("reason") = %q, %v`, s, ok)
	}
	if s, ok := d.String("count"); !ok || s != "3" {
		t.Errorf(`String("count") = %q, %v`, s, ok)
	}
	if _, ok := d.String("absent"); ok {
		t.Error("expected absent key to report ok=false")
	}
}

func TestScopeWhere(t *testing.T) {
	tests := []struct {
		name         string
		actor        *auth.Identity
		wantEmpty    bool
		wantContains []string
	}{
		{
			name:      "superadmin unrestricted",
			actor:     &auth.Identity{ID: "sa", Role: auth.RoleSuperAdmin},
			wantEmpty: true,
		},
		{
			name:         "admin sees managed users",
			actor:        &auth.Identity{ID: "adm", Role: auth.RoleAdmin},
			wantContains: []string{"user_id = $1", "created_by_id = $1"},
		},
		{
			name:         "company sees its employees",
			actor:        &auth.Identity{ID: "cl", Role: auth.RoleCompany, CompanyID: "c1"},
			wantContains: []string{"user_id = $1", "company_id = $2"},
		},
		{
			name:         "employee sees own entries",
			actor:        &auth.Identity{ID: "e1", Role: auth.RoleEmployee, CompanyID: "c1"},
			wantContains: []string{"user_id = $1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cond, args := scopeWhere(tt.actor, 0)
			if tt.wantEmpty {
				if cond != "" || len(args) != 0 {
					t.Fatalf("expected empty condition, got %q", cond)
				}
				return
			}
			for _, want := range tt.wantContains {
				if !strings.Contains(cond, want) {
					t.Errorf("condition %q missing %q", cond, want)
				}
			}
		})
	}
}

func TestBuildQueryWhere(t *testing.T) {
	actor := &auth.Identity{ID: "e1", Role: auth.RoleEmployee}
	q := Query{
		Action:       ActionTransfer,
		ResourceType: "coin",
		From:         time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
	}

	where, args := buildQueryWhere(actor, q)
	for _, want := range []string{"user_id = $1", "action = $2", "resource_type = $3", "created_at >= $4"} {
		if !strings.Contains(where, want) {
			t.Errorf("where %q missing %q", where, want)
		}
	}
	if len(args) != 4 {
		t.Errorf("expected 4 args, got %d", len(args))
	}
}

// fakeInserter captures batches for Recorder tests.
type fakeInserter struct {
	mu      sync.Mutex
	batches [][]Entry
	err     error
}

func (f *fakeInserter) BatchInsert(ctx context.Context, entries []Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	batch := make([]Entry, len(entries))
	copy(batch, entries)
	f.batches = append(f.batches, batch)
	return nil
}

func (f *fakeInserter) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, b := range f.batches {
		n += len(b)
	}
	return n
}

func TestRecorderFlushesOnBatchSize(t *testing.T) {
	store := &fakeInserter{}
	r := NewRecorder(store, 3, time.Hour)

	r.Record(Entry{Action: ActionLogin, ResourceType: "auth"})
	r.Record(Entry{Action: ActionCreate, ResourceType: "user"})
	if store.total() != 0 {
		t.Fatal("should not flush before batch size is reached")
	}

	r.Record(Entry{Action: ActionTransfer, ResourceType: "coin"})
	if store.total() != 3 {
		t.Fatalf("expected 3 entries flushed, got %d", store.total())
	}
}

func TestRecorderFlushesOnStop(t *testing.T) {
	store := &fakeInserter{}
	r := NewRecorder(store, 100, time.Hour)

	done := make(chan struct{})
	go func() {
		r.Start(context.Background())
		close(done)
	}()

	r.Record(Entry{Action: ActionLogout, ResourceType: "auth"})
	r.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after Stop")
	}

	if store.total() != 1 {
		t.Fatalf("expected 1 entry flushed on stop, got %d", store.total())
	}
}

func TestRecorderFlushErrorCallback(t *testing.T) {
	store := &fakeInserter{err: context.DeadlineExceeded}
	r := NewRecorder(store, 1, time.Hour)

	var calls int
	r.OnFlushError(func() { calls++ })

	r.Record(Entry{Action: ActionLogin, ResourceType: "auth"})
	if calls != 1 {
		t.Fatalf("expected 1 flush error callback, got %d", calls)
	}
}
