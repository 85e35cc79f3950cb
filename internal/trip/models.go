package trip

import (
	"errors"
	"time"
)

// Trip statuses. Transitions only move forward; CANCELLED is terminal and
// reachable from any non-terminal status.
const (
	StatusPending    = "PENDING"
	StatusInProgress = "IN_PROGRESS"
	StatusCompleted  = "COMPLETED"
	StatusCancelled  = "CANCELLED"
)

var (
	// ErrInvalidTransition is returned for a backward or unknown status change.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrSealExists is returned when attaching a second seal to a trip.
	ErrSealExists = errors.New("trip already has a seal")
	// ErrSealVerified is returned when editing the barcode of a verified seal.
	ErrSealVerified = errors.New("seal is verified and immutable")
	// ErrNoSeal is returned when verifying a trip that has no seal.
	ErrNoSeal = errors.New("trip has no seal")
)

// Trip is a logistics record (the original product calls it a "session").
type Trip struct {
	ID          string         `json:"id"`
	Source      string         `json:"source"`
	Destination string         `json:"destination"`
	Status      string         `json:"status"`
	CompanyID   string         `json:"company_id"`
	CreatedByID string         `json:"created_by_id,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
	Seal        *Seal          `json:"seal,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Seal is the physical-security barcode attached to a trip. Once verified the
// barcode can never change.
type Seal struct {
	ID           string     `json:"id"`
	TripID       string     `json:"trip_id"`
	Barcode      string     `json:"barcode"`
	Verified     bool       `json:"verified"`
	VerifiedByID string     `json:"verified_by_id,omitempty"`
	VerifiedAt   *time.Time `json:"verified_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// EnsureMutable returns ErrSealVerified once the seal has been verified.
// Verified seals never change, not even their barcode.
func (s *Seal) EnsureMutable() error {
	if s.Verified {
		return ErrSealVerified
	}
	return nil
}

// CreateTripInput holds the fields required to create a trip.
type CreateTripInput struct {
	Source      string         `json:"source"`
	Destination string         `json:"destination"`
	CompanyID   string         `json:"company_id"`
	CreatedByID string         `json:"-"`
	Details     map[string]any `json:"details"`
}

// ListParams controls filtering and cursor pagination for trip listings.
type ListParams struct {
	Status string
	Limit  int
	Cursor string
}

// ValidStatus reports whether status is one of the known trip statuses.
func ValidStatus(status string) bool {
	switch status {
	case StatusPending, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// ValidTransition reports whether a trip may move from one status to another.
func ValidTransition(from, to string) bool {
	switch from {
	case StatusPending:
		return to == StatusInProgress || to == StatusCancelled
	case StatusInProgress:
		return to == StatusCompleted || to == StatusCancelled
	default:
		return false
	}
}
