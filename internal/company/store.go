package company

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cbums/cbums/internal/auth"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/segmentio/ksuid"
	"golang.org/x/crypto/bcrypt"
)

// ErrDuplicateEmail is returned when the company or login email is taken.
var ErrDuplicateEmail = errors.New("email already in use")

const companyColumns = `id, name, email, created_by_id, login_user_id, created_at, updated_at`

// Store provides database operations for companies.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new company store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func scanCompany(scan func(dest ...any) error) (*Company, error) {
	c := &Company{}
	var createdByID, loginUserID *string
	err := scan(&c.ID, &c.Name, &c.Email, &createdByID, &loginUserID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if createdByID != nil {
		c.CreatedByID = *createdByID
	}
	if loginUserID != nil {
		c.LoginUserID = *loginUserID
	}
	return c, nil
}

// Create provisions a company and, when a password is supplied, its linked
// COMPANY login user. Both rows are written in one transaction so a company
// can never exist with a half-created credential.
func (s *Store) Create(ctx context.Context, in CreateCompanyInput) (*Company, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, fmt.Errorf("name is required")
	}
	if strings.TrimSpace(in.Email) == "" {
		return nil, fmt.Errorf("email is required")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	companyID := ksuid.New().String()

	c, err := scanCompany(func(dest ...any) error {
		return tx.QueryRow(ctx,
			`INSERT INTO companies (id, name, email, created_by_id)
			 VALUES ($1, $2, $3, $4)
			 RETURNING `+companyColumns,
			companyID, in.Name, in.Email, nullable(in.CreatedByID),
		).Scan(dest...)
	})
	if err != nil {
		return nil, mapUniqueViolation(err, "creating company")
	}

	if in.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hashing password: %w", err)
		}

		loginUserID := ksuid.New().String()
		_, err = tx.Exec(ctx,
			`INSERT INTO users (id, name, email, password_hash, role, company_id, created_by_id)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			loginUserID, in.Name, in.Email, string(hash), auth.RoleCompany, companyID, nullable(in.CreatedByID),
		)
		if err != nil {
			return nil, mapUniqueViolation(err, "creating company login user")
		}

		c, err = scanCompany(func(dest ...any) error {
			return tx.QueryRow(ctx,
				`UPDATE companies SET login_user_id = $1 WHERE id = $2 RETURNING `+companyColumns,
				loginUserID, companyID,
			).Scan(dest...)
		})
		if err != nil {
			return nil, fmt.Errorf("linking company login user: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing company creation: %w", err)
	}
	return c, nil
}

// GetByID retrieves a company by primary key.
func (s *Store) GetByID(ctx context.Context, id string) (*Company, error) {
	c, err := scanCompany(func(dest ...any) error {
		return s.pool.QueryRow(ctx,
			`SELECT `+companyColumns+` FROM companies WHERE id = $1`, id,
		).Scan(dest...)
	})
	if err != nil {
		return nil, fmt.Errorf("getting company by id: %w", err)
	}
	return c, nil
}

// visibleWhere builds the role-scoped visibility condition for companies.
func visibleWhere(actor *auth.Identity, argOffset int) (string, []any) {
	n := func(i int) string { return fmt.Sprintf("$%d", argOffset+i) }
	switch actor.Role {
	case auth.RoleSuperAdmin:
		return "", nil
	case auth.RoleAdmin:
		return fmt.Sprintf("(created_by_id = %s)", n(1)), []any{actor.ID}
	case auth.RoleCompany:
		return fmt.Sprintf("(id = %s)", n(1)), []any{actor.CompanyID}
	default:
		return fmt.Sprintf("(id = %s)", n(1)), []any{actor.CompanyID}
	}
}

// ListVisible returns a page of companies the actor may see, ordered by
// created_at DESC, id DESC with cursor pagination.
func (s *Store) ListVisible(ctx context.Context, actor *auth.Identity, params ListParams) ([]*Company, string, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = 20
	}

	cond, args := visibleWhere(actor, 0)
	var clauses []string
	if cond != "" {
		clauses = append(clauses, cond)
	}

	if params.Cursor != "" {
		cursorTime, cursorID, err := decodeCursor(params.Cursor)
		if err != nil {
			return nil, "", fmt.Errorf("invalid cursor: %w", err)
		}
		clauses = append(clauses, fmt.Sprintf("(created_at, id) < ($%d, $%d)", len(args)+1, len(args)+2))
		args = append(args, cursorTime, cursorID)
	}

	query := `SELECT ` + companyColumns + ` FROM companies`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", len(args)+1)
	args = append(args, limit+1)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, "", fmt.Errorf("listing companies: %w", err)
	}
	defer rows.Close()

	var companies []*Company
	for rows.Next() {
		c, err := scanCompany(rows.Scan)
		if err != nil {
			return nil, "", fmt.Errorf("scanning company row: %w", err)
		}
		companies = append(companies, c)
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("iterating company rows: %w", err)
	}

	var nextCursor string
	if len(companies) > limit {
		last := companies[limit-1]
		nextCursor = encodeCursor(last.CreatedAt, last.ID)
		companies = companies[:limit]
	}

	return companies, nextCursor, nil
}

// GetVisibleByID retrieves a company by id within the actor's scope.
// Out-of-scope ids yield pgx.ErrNoRows, the same as absent ones.
func (s *Store) GetVisibleByID(ctx context.Context, actor *auth.Identity, id string) (*Company, error) {
	cond, args := visibleWhere(actor, 1)
	query := `SELECT ` + companyColumns + ` FROM companies WHERE id = $1`
	if cond != "" {
		query += " AND " + cond
	}
	args = append([]any{id}, args...)

	c, err := scanCompany(func(dest ...any) error {
		return s.pool.QueryRow(ctx, query, args...).Scan(dest...)
	})
	if err != nil {
		return nil, fmt.Errorf("getting company in scope: %w", err)
	}
	return c, nil
}

// Update performs a partial update on the company with the given id. Email
// changes are mirrored onto the linked login user so the credential record
// never drifts from the company it belongs to.
func (s *Store) Update(ctx context.Context, id string, in UpdateCompanyInput) (*Company, error) {
	var setClauses []string
	var args []any
	argIdx := 1

	if in.Name != nil {
		setClauses = append(setClauses, fmt.Sprintf("name = $%d", argIdx))
		args = append(args, *in.Name)
		argIdx++
	}
	if in.Email != nil {
		setClauses = append(setClauses, fmt.Sprintf("email = $%d", argIdx))
		args = append(args, *in.Email)
		argIdx++
	}

	if len(setClauses) == 0 {
		return s.GetByID(ctx, id)
	}
	setClauses = append(setClauses, "updated_at = now()")

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	args = append(args, id)
	query := fmt.Sprintf(
		`UPDATE companies SET %s WHERE id = $%d RETURNING `+companyColumns,
		strings.Join(setClauses, ", "), argIdx,
	)

	c, err := scanCompany(func(dest ...any) error {
		return tx.QueryRow(ctx, query, args...).Scan(dest...)
	})
	if err != nil {
		return nil, mapUniqueViolation(err, "updating company")
	}

	if in.Email != nil && c.LoginUserID != "" {
		_, err = tx.Exec(ctx,
			`UPDATE users SET email = $1, updated_at = now() WHERE id = $2`,
			*in.Email, c.LoginUserID,
		)
		if err != nil {
			return nil, mapUniqueViolation(err, "updating company login user")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing company update: %w", err)
	}
	return c, nil
}

// Delete removes a company and its linked login user.
func (s *Store) Delete(ctx context.Context, id string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var loginUserID *string
	err = tx.QueryRow(ctx, `SELECT login_user_id FROM companies WHERE id = $1`, id).Scan(&loginUserID)
	if err != nil {
		return fmt.Errorf("getting company for delete: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM companies WHERE id = $1`, id); err != nil {
		return fmt.Errorf("deleting company: %w", err)
	}
	if loginUserID != nil {
		if _, err := tx.Exec(ctx, `DELETE FROM users WHERE id = $1`, *loginUserID); err != nil {
			return fmt.Errorf("deleting company login user: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing company delete: %w", err)
	}
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func mapUniqueViolation(err error, op string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicateEmail
	}
	return fmt.Errorf("%s: %w", op, err)
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
