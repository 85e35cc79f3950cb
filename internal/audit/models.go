package audit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Actions recorded in the activity log.
const (
	ActionLogin         = "LOGIN"
	ActionLogout        = "LOGOUT"
	ActionCreate        = "CREATE"
	ActionUpdate        = "UPDATE"
	ActionDelete        = "DELETE"
	ActionAllocate      = "ALLOCATE"
	ActionTransfer      = "TRANSFER"
	ActionVerify        = "VERIFY"
	ActionUpload        = "UPLOAD"
	ActionViewUsers     = "VIEW_USERS"
	ActionViewCompanies = "VIEW_COMPANIES"
	ActionViewTrips     = "VIEW_TRIPS"
	ActionViewActivity  = "VIEW_ACTIVITY"
)

// Details is the free-form JSON payload attached to an activity entry.
type Details map[string]any

// UnmarshalJSON decodes with json.Number so large coin amounts survive the
// round trip without float truncation.
func (d *Details) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	m := map[string]any{}
	if err := dec.Decode(&m); err != nil {
		return err
	}
	*d = m
	return nil
}

// Int reads an integer detail value. Historic writers stored amounts both as
// JSON numbers and as strings, so both forms are accepted.
func (d Details) Int(key string) (int64, bool) {
	v, ok := d[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return i, true
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			return 0, false
		}
		return i, true
	case float64:
		return int64(n), true
	case int64:
		return n, true
	default:
		return 0, false
	}
}

// String reads a string detail value, formatting scalars when needed.
func (d Details) String(key string) (string, bool) {
	v, ok := d[key]
	if !ok {
		return "", false
	}
	switch s := v.(type) {
	case string:
		return s, true
	case json.Number:
		return s.String(), true
	default:
		return fmt.Sprintf("%v", s), true
	}
}

// Entry is one append-only activity log row. IP and UserAgent are stored
// encrypted when a cipher is configured.
type Entry struct {
	ID           int64     `json:"id"`
	UserID       string    `json:"user_id,omitempty"`
	Action       string    `json:"action"`
	ResourceType string    `json:"resource_type"`
	ResourceID   string    `json:"resource_id,omitempty"`
	Details      Details   `json:"details,omitempty"`
	IP           string    `json:"ip,omitempty"`
	UserAgent    string    `json:"user_agent,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Query filters an activity log read.
type Query struct {
	Action       string
	ResourceType string
	UserID       string
	From         time.Time
	To           time.Time
	Page         int
	Limit        int
}

// Facets are the distinct filter values present in the actor's visible slice
// of the log, used by clients to build filter dropdowns.
type Facets struct {
	Actions       []string `json:"actions"`
	ResourceTypes []string `json:"resource_types"`
}
