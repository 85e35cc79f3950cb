package trip

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cbums/cbums/internal/auth"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/segmentio/ksuid"
)

const tripColumns = `id, source, destination, status, company_id, created_by_id, details, created_at, updated_at`

// Store provides database operations for trips and their seals.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new trip store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func scanTrip(scan func(dest ...any) error) (*Trip, error) {
	t := &Trip{}
	var createdByID *string
	var details []byte
	err := scan(&t.ID, &t.Source, &t.Destination, &t.Status, &t.CompanyID, &createdByID, &details, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if createdByID != nil {
		t.CreatedByID = *createdByID
	}
	if len(details) > 0 {
		if err := json.Unmarshal(details, &t.Details); err != nil {
			return nil, fmt.Errorf("decoding trip details: %w", err)
		}
	}
	return t, nil
}

// Create inserts a new trip in PENDING status.
func (s *Store) Create(ctx context.Context, in CreateTripInput) (*Trip, error) {
	if strings.TrimSpace(in.Source) == "" {
		return nil, fmt.Errorf("source is required")
	}
	if strings.TrimSpace(in.Destination) == "" {
		return nil, fmt.Errorf("destination is required")
	}
	if strings.TrimSpace(in.CompanyID) == "" {
		return nil, fmt.Errorf("company_id is required")
	}

	details := []byte("{}")
	if in.Details != nil {
		var err error
		details, err = json.Marshal(in.Details)
		if err != nil {
			return nil, fmt.Errorf("encoding trip details: %w", err)
		}
	}

	t, err := scanTrip(func(dest ...any) error {
		return s.pool.QueryRow(ctx,
			`INSERT INTO trips (id, source, destination, status, company_id, created_by_id, details)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 RETURNING `+tripColumns,
			ksuid.New().String(), in.Source, in.Destination, StatusPending,
			in.CompanyID, nullable(in.CreatedByID), details,
		).Scan(dest...)
	})
	if err != nil {
		return nil, fmt.Errorf("creating trip: %w", err)
	}
	return t, nil
}

// visibleWhere builds the role-scoped visibility condition for trips.
func visibleWhere(actor *auth.Identity, argOffset int) (string, []any) {
	n := func(i int) string { return fmt.Sprintf("$%d", argOffset+i) }
	switch actor.Role {
	case auth.RoleSuperAdmin:
		return "", nil
	case auth.RoleAdmin:
		return fmt.Sprintf(
			"(company_id IN (SELECT id FROM companies WHERE created_by_id = %s))", n(1),
		), []any{actor.ID}
	default:
		// COMPANY logins and employees both see their own company's trips.
		return fmt.Sprintf("(company_id = %s)", n(1)), []any{actor.CompanyID}
	}
}

// defaultStatus returns the status filter applied when the caller supplies
// none. Guards work the verification queue, so they default to IN_PROGRESS.
func defaultStatus(actor *auth.Identity) string {
	if actor.Role == auth.RoleEmployee && actor.Subrole == auth.SubroleGuard {
		return StatusInProgress
	}
	return ""
}

// ListVisible returns a page of trips the actor may see, newest first, with
// their seals attached.
func (s *Store) ListVisible(ctx context.Context, actor *auth.Identity, params ListParams) ([]*Trip, string, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = 20
	}

	status := params.Status
	if status == "" {
		status = defaultStatus(actor)
	}
	if status != "" && !ValidStatus(status) {
		return nil, "", fmt.Errorf("unknown status %q", status)
	}

	cond, args := visibleWhere(actor, 0)
	var clauses []string
	if cond != "" {
		clauses = append(clauses, cond)
	}
	if status != "" {
		clauses = append(clauses, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, status)
	}
	if params.Cursor != "" {
		cursorTime, cursorID, err := decodeCursor(params.Cursor)
		if err != nil {
			return nil, "", fmt.Errorf("invalid cursor: %w", err)
		}
		clauses = append(clauses, fmt.Sprintf("(created_at, id) < ($%d, $%d)", len(args)+1, len(args)+2))
		args = append(args, cursorTime, cursorID)
	}

	query := `SELECT ` + tripColumns + ` FROM trips`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", len(args)+1)
	args = append(args, limit+1)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, "", fmt.Errorf("listing trips: %w", err)
	}
	defer rows.Close()

	var trips []*Trip
	for rows.Next() {
		t, err := scanTrip(rows.Scan)
		if err != nil {
			return nil, "", fmt.Errorf("scanning trip row: %w", err)
		}
		trips = append(trips, t)
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("iterating trip rows: %w", err)
	}

	var nextCursor string
	if len(trips) > limit {
		last := trips[limit-1]
		nextCursor = encodeCursor(last.CreatedAt, last.ID)
		trips = trips[:limit]
	}

	if err := s.attachSeals(ctx, trips); err != nil {
		return nil, "", err
	}
	return trips, nextCursor, nil
}

// attachSeals loads seals for the given trips in one query.
func (s *Store) attachSeals(ctx context.Context, trips []*Trip) error {
	if len(trips) == 0 {
		return nil
	}
	ids := make([]string, len(trips))
	byID := make(map[string]*Trip, len(trips))
	for i, t := range trips {
		ids[i] = t.ID
		byID[t.ID] = t
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, trip_id, barcode, verified, verified_by_id, verified_at, created_at
		 FROM seals WHERE trip_id = ANY($1)`, ids)
	if err != nil {
		return fmt.Errorf("loading seals: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		seal, err := scanSeal(rows.Scan)
		if err != nil {
			return fmt.Errorf("scanning seal row: %w", err)
		}
		if t, ok := byID[seal.TripID]; ok {
			t.Seal = seal
		}
	}
	return rows.Err()
}

func scanSeal(scan func(dest ...any) error) (*Seal, error) {
	seal := &Seal{}
	var verifiedByID *string
	err := scan(&seal.ID, &seal.TripID, &seal.Barcode, &seal.Verified, &verifiedByID, &seal.VerifiedAt, &seal.CreatedAt)
	if err != nil {
		return nil, err
	}
	if verifiedByID != nil {
		seal.VerifiedByID = *verifiedByID
	}
	return seal, nil
}

// GetVisibleByID retrieves a trip (with its seal) within the actor's scope.
// Out-of-scope ids yield pgx.ErrNoRows, the same as absent ones.
func (s *Store) GetVisibleByID(ctx context.Context, actor *auth.Identity, id string) (*Trip, error) {
	cond, args := visibleWhere(actor, 1)
	query := `SELECT ` + tripColumns + ` FROM trips WHERE id = $1`
	if cond != "" {
		query += " AND " + cond
	}
	args = append([]any{id}, args...)

	t, err := scanTrip(func(dest ...any) error {
		return s.pool.QueryRow(ctx, query, args...).Scan(dest...)
	})
	if err != nil {
		return nil, fmt.Errorf("getting trip in scope: %w", err)
	}

	if err := s.attachSeals(ctx, []*Trip{t}); err != nil {
		return nil, err
	}
	return t, nil
}

// UpdateStatus moves a trip to a new status, enforcing the lifecycle. The
// current status is read and the update applied in one transaction so a
// concurrent transition cannot skip a step.
func (s *Store) UpdateStatus(ctx context.Context, actor *auth.Identity, id, to string) (*Trip, error) {
	if !ValidStatus(to) {
		return nil, fmt.Errorf("unknown status %q: %w", to, ErrInvalidTransition)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	cond, scopeArgs := visibleWhere(actor, 1)
	query := `SELECT status FROM trips WHERE id = $1`
	if cond != "" {
		query += " AND " + cond
	}
	query += " FOR UPDATE"

	var current string
	if err := tx.QueryRow(ctx, query, append([]any{id}, scopeArgs...)...).Scan(&current); err != nil {
		return nil, fmt.Errorf("locking trip for status update: %w", err)
	}
	if !ValidTransition(current, to) {
		return nil, fmt.Errorf("%s -> %s: %w", current, to, ErrInvalidTransition)
	}

	t, err := scanTrip(func(dest ...any) error {
		return tx.QueryRow(ctx,
			`UPDATE trips SET status = $1, updated_at = now() WHERE id = $2 RETURNING `+tripColumns,
			to, id,
		).Scan(dest...)
	})
	if err != nil {
		return nil, fmt.Errorf("updating trip status: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing status update: %w", err)
	}

	if err := s.attachSeals(ctx, []*Trip{t}); err != nil {
		return nil, err
	}
	return t, nil
}

// Delete removes a trip and its seal.
func (s *Store) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM trips WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting trip: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("deleting trip: %w", pgx.ErrNoRows)
	}
	return nil
}

// AttachSeal creates the seal for a trip. A trip carries at most one seal;
// the unique index on seals.trip_id enforces that under concurrency.
func (s *Store) AttachSeal(ctx context.Context, tripID, barcode string) (*Seal, error) {
	if strings.TrimSpace(barcode) == "" {
		return nil, fmt.Errorf("barcode is required")
	}

	seal, err := scanSeal(func(dest ...any) error {
		return s.pool.QueryRow(ctx,
			`INSERT INTO seals (id, trip_id, barcode)
			 VALUES ($1, $2, $3)
			 RETURNING id, trip_id, barcode, verified, verified_by_id, verified_at, created_at`,
			ksuid.New().String(), tripID, barcode,
		).Scan(dest...)
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrSealExists
		}
		return nil, fmt.Errorf("attaching seal: %w", err)
	}
	return seal, nil
}

// UpdateSealBarcode replaces the barcode of an unverified seal.
func (s *Store) UpdateSealBarcode(ctx context.Context, tripID, barcode string) (*Seal, error) {
	if strings.TrimSpace(barcode) == "" {
		return nil, fmt.Errorf("barcode is required")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	locked, err := scanSeal(func(dest ...any) error {
		return tx.QueryRow(ctx,
			`SELECT id, trip_id, barcode, verified, verified_by_id, verified_at, created_at
			 FROM seals WHERE trip_id = $1 FOR UPDATE`, tripID,
		).Scan(dest...)
	})
	if err != nil {
		return nil, fmt.Errorf("locking seal for update: %w", err)
	}
	if err := locked.EnsureMutable(); err != nil {
		return nil, err
	}

	seal, err := scanSeal(func(dest ...any) error {
		return tx.QueryRow(ctx,
			`UPDATE seals SET barcode = $1 WHERE trip_id = $2
			 RETURNING id, trip_id, barcode, verified, verified_by_id, verified_at, created_at`,
			barcode, tripID,
		).Scan(dest...)
	})
	if err != nil {
		return nil, fmt.Errorf("updating seal barcode: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing seal update: %w", err)
	}
	return seal, nil
}

// VerifySeal checks a scanned barcode against the trip's seal. On a match the
// seal is marked verified and the trip completes in the same transaction.
// A mismatched barcode leaves both untouched.
func (s *Store) VerifySeal(ctx context.Context, tripID, barcode, verifierID string) (*Seal, bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	seal, err := scanSeal(func(dest ...any) error {
		return tx.QueryRow(ctx,
			`SELECT id, trip_id, barcode, verified, verified_by_id, verified_at, created_at
			 FROM seals WHERE trip_id = $1 FOR UPDATE`, tripID,
		).Scan(dest...)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, ErrNoSeal
	}
	if err != nil {
		return nil, false, fmt.Errorf("locking seal for verification: %w", err)
	}
	if err := seal.EnsureMutable(); err != nil {
		return nil, false, err
	}

	if seal.Barcode != barcode {
		return seal, false, nil
	}

	var tripStatus string
	if err := tx.QueryRow(ctx, `SELECT status FROM trips WHERE id = $1 FOR UPDATE`, tripID).Scan(&tripStatus); err != nil {
		return nil, false, fmt.Errorf("locking trip for verification: %w", err)
	}
	if !ValidTransition(tripStatus, StatusCompleted) {
		return nil, false, fmt.Errorf("%s -> %s: %w", tripStatus, StatusCompleted, ErrInvalidTransition)
	}

	seal, err = scanSeal(func(dest ...any) error {
		return tx.QueryRow(ctx,
			`UPDATE seals SET verified = true, verified_by_id = $1, verified_at = now()
			 WHERE trip_id = $2
			 RETURNING id, trip_id, barcode, verified, verified_by_id, verified_at, created_at`,
			verifierID, tripID,
		).Scan(dest...)
	})
	if err != nil {
		return nil, false, fmt.Errorf("marking seal verified: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE trips SET status = $1, updated_at = now() WHERE id = $2`,
		StatusCompleted, tripID,
	)
	if err != nil {
		return nil, false, fmt.Errorf("completing trip: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("committing seal verification: %w", err)
	}
	return seal, true, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// encodeCursor produces a base64 string from a created_at timestamp and id.
func encodeCursor(createdAt time.Time, id string) string {
	raw := createdAt.Format(time.RFC3339Nano) + "|" + id
	return base64.StdEncoding.EncodeToString([]byte(raw))
}

// decodeCursor parses a base64 cursor back into its created_at and id parts.
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
