package coin

import (
	"errors"
	"time"
)

var (
	// ErrInsufficientFunds is returned when the sender's balance cannot cover
	// the transfer.
	ErrInsufficientFunds = errors.New("insufficient coin balance")
	// ErrSelfTransfer is returned when sender and recipient are the same user.
	ErrSelfTransfer = errors.New("cannot transfer coins to yourself")
)

// Transaction is one row of the append-only coin ledger.
type Transaction struct {
	ID         string    `json:"id"`
	FromUserID string    `json:"from_user_id"`
	ToUserID   string    `json:"to_user_id"`
	Amount     int64     `json:"amount"`
	Reason     string    `json:"reason,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// TransferInput describes a coin movement between two users.
type TransferInput struct {
	FromUserID string `json:"-"`
	ToUserID   string `json:"to_user_id"`
	Amount     int64  `json:"amount"`
	Reason     string `json:"reason"`
}

// ListParams controls cursor pagination for ledger listings.
type ListParams struct {
	Limit  int
	Cursor string
}

// ValidateTransfer checks a transfer before any database work happens.
func ValidateTransfer(in TransferInput) error {
	if in.FromUserID == "" {
		return errors.New("sender is required")
	}
	if in.ToUserID == "" {
		return errors.New("recipient is required")
	}
	if in.FromUserID == in.ToUserID {
		return ErrSelfTransfer
	}
	if in.Amount <= 0 {
		return errors.New("amount must be positive")
	}
	return nil
}
