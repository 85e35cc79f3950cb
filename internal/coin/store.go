package coin

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/segmentio/ksuid"
)

const transactionColumns = `id, from_user_id, to_user_id, amount, reason, created_at`

// Store provides database operations for the coin ledger.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new coin store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func scanTransaction(scan func(dest ...any) error) (*Transaction, error) {
	txn := &Transaction{}
	var reason *string
	err := scan(&txn.ID, &txn.FromUserID, &txn.ToUserID, &txn.Amount, &reason, &txn.CreatedAt)
	if err != nil {
		return nil, err
	}
	if reason != nil {
		txn.Reason = *reason
	}
	return txn, nil
}

// Transfer moves coins between two users and records the ledger row, all in
// one transaction. The debit is conditional on the sender's balance, so two
// concurrent transfers can never push a balance below zero.
func (s *Store) Transfer(ctx context.Context, in TransferInput) (*Transaction, error) {
	if err := ValidateTransfer(in); err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE users SET coins = coins - $1, updated_at = now()
		 WHERE id = $2 AND coins >= $1`,
		in.Amount, in.FromUserID,
	)
	if err != nil {
		return nil, fmt.Errorf("debiting sender: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrInsufficientFunds
	}

	tag, err = tx.Exec(ctx,
		`UPDATE users SET coins = coins + $1, updated_at = now() WHERE id = $2`,
		in.Amount, in.ToUserID,
	)
	if err != nil {
		return nil, fmt.Errorf("crediting recipient: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, fmt.Errorf("crediting recipient: no such user %s", in.ToUserID)
	}

	txn, err := scanTransaction(func(dest ...any) error {
		return tx.QueryRow(ctx,
			`INSERT INTO coin_transactions (id, from_user_id, to_user_id, amount, reason)
			 VALUES ($1, $2, $3, $4, $5)
			 RETURNING `+transactionColumns,
			ksuid.New().String(), in.FromUserID, in.ToUserID, in.Amount, nullable(in.Reason),
		).Scan(dest...)
	})
	if err != nil {
		return nil, fmt.Errorf("recording transfer: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing transfer: %w", err)
	}
	return txn, nil
}

// Balance returns a user's current coin balance.
func (s *Store) Balance(ctx context.Context, userID string) (int64, error) {
	var coins int64
	err := s.pool.QueryRow(ctx, `SELECT coins FROM users WHERE id = $1`, userID).Scan(&coins)
	if err != nil {
		return 0, fmt.Errorf("getting coin balance: %w", err)
	}
	return coins, nil
}

// ListForUser returns a page of ledger rows where the user is the sender or
// the recipient, newest first.
func (s *Store) ListForUser(ctx context.Context, userID string, params ListParams) ([]*Transaction, string, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = 20
	}

	clauses := []string{"(from_user_id = $1 OR to_user_id = $1)"}
	args := []any{userID}

	if params.Cursor != "" {
		cursorTime, cursorID, err := decodeCursor(params.Cursor)
		if err != nil {
			return nil, "", fmt.Errorf("invalid cursor: %w", err)
		}
		clauses = append(clauses, fmt.Sprintf("(created_at, id) < ($%d, $%d)", len(args)+1, len(args)+2))
		args = append(args, cursorTime, cursorID)
	}

	query := `SELECT ` + transactionColumns + ` FROM coin_transactions WHERE ` +
		strings.Join(clauses, " AND ") +
		fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", len(args)+1)
	args = append(args, limit+1)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, "", fmt.Errorf("listing coin transactions: %w", err)
	}
	defer rows.Close()

	var txns []*Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows.Scan)
		if err != nil {
			return nil, "", fmt.Errorf("scanning transaction row: %w", err)
		}
		txns = append(txns, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("iterating transaction rows: %w", err)
	}

	var nextCursor string
	if len(txns) > limit {
		last := txns[limit-1]
		nextCursor = encodeCursor(last.CreatedAt, last.ID)
		txns = txns[:limit]
	}

	return txns, nextCursor, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func encodeCursor(createdAt time.Time, id string) string {
	raw := createdAt.Format(time.RFC3339Nano) + "|" + id
	return base64.StdEncoding.EncodeToString([]byte(raw))
}

func decodeCursor(cursor string) (time.Time, string, error) {
	data, err := base64.StdEncoding.DecodeString(cursor)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("decoding cursor base64: %w", err)
	}

	parts := strings.SplitN(string(data), "|", 2)
	if len(parts) != 2 {
		return time.Time{}, "", fmt.Errorf("invalid cursor format")
	}

	t, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return time.Time{}, "", fmt.Errorf("parsing cursor time: %w", err)
	}

	return t, parts[1], nil
}
