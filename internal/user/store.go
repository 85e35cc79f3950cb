package user

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cbums/cbums/internal/auth"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/segmentio/ksuid"
	"golang.org/x/crypto/bcrypt"
)

const userColumns = `id, name, email, password_hash, role, subrole, company_id, created_by_id, coins, created_at, updated_at`

// Store provides database operations for users, operator permissions and
// login sessions.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new user store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// scanUser scans a user row, mapping nullable columns to empty strings.
func scanUser(scan func(dest ...any) error) (*User, error) {
	u := &User{}
	var subrole, companyID, createdByID *string
	err := scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role,
		&subrole, &companyID, &createdByID, &u.Coins, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if subrole != nil {
		u.Subrole = *subrole
	}
	if companyID != nil {
		u.CompanyID = *companyID
	}
	if createdByID != nil {
		u.CreatedByID = *createdByID
	}
	return u, nil
}

// nullable converts "" to a NULL-able argument.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Create inserts a new user with a bcrypt-hashed password.
func (s *Store) Create(ctx context.Context, in CreateUserInput) (*User, error) {
	if err := ValidateCreate(in); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	u, err := scanUser(func(dest ...any) error {
		return s.pool.QueryRow(ctx,
			`INSERT INTO users (id, name, email, password_hash, role, subrole, company_id, created_by_id, coins)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			 RETURNING `+userColumns,
			ksuid.New().String(), in.Name, in.Email, string(hash), in.Role,
			nullable(in.Subrole), nullable(in.CompanyID), nullable(in.CreatedByID), in.Coins,
		).Scan(dest...)
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("creating user: %w", err)
	}
	return u, nil
}

// GetByID retrieves a user by primary key.
func (s *Store) GetByID(ctx context.Context, id string) (*User, error) {
	u, err := scanUser(func(dest ...any) error {
		return s.pool.QueryRow(ctx,
			`SELECT `+userColumns+` FROM users WHERE id = $1`, id,
		).Scan(dest...)
	})
	if err != nil {
		return nil, fmt.Errorf("getting user by id: %w", err)
	}
	return u, nil
}

// GetByEmail retrieves a user by email address.
func (s *Store) GetByEmail(ctx context.Context, email string) (*User, error) {
	u, err := scanUser(func(dest ...any) error {
		return s.pool.QueryRow(ctx,
			`SELECT `+userColumns+` FROM users WHERE email = $1`, email,
		).Scan(dest...)
	})
	if err != nil {
		return nil, fmt.Errorf("getting user by email: %w", err)
	}
	return u, nil
}

// visibleWhere builds the role-scoped visibility condition for the actor.
// Positional placeholders start at argOffset+1. An empty condition means
// unrestricted access. A single-table scan keyed on the primary key cannot
// produce duplicate rows, so OR-ed relationship paths stay deduplicated.
func visibleWhere(actor *auth.Identity, argOffset int) (string, []any) {
	n := func(i int) string { return fmt.Sprintf("$%d", argOffset+i) }
	switch actor.Role {
	case auth.RoleSuperAdmin:
		return "", nil
	case auth.RoleAdmin:
		return fmt.Sprintf(
			"(created_by_id = %s OR company_id IN (SELECT id FROM companies WHERE created_by_id = %s))",
			n(1), n(1)), []any{actor.ID}
	case auth.RoleCompany:
		return fmt.Sprintf(
			"(company_id = %s AND subrole IN ('GUARD', 'OPERATOR') AND id <> %s AND email <> %s)",
			n(1), n(2), n(3)), []any{actor.CompanyID, actor.ID, actor.Email}
	default:
		return fmt.Sprintf("(id = %s)", n(1)), []any{actor.ID}
	}
}

// ListVisible returns a page of users the actor is allowed to see, ordered by
// created_at DESC, id DESC with cursor pagination.
func (s *Store) ListVisible(ctx context.Context, actor *auth.Identity, params ListParams) ([]*User, string, error) {
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

	query := `SELECT ` + userColumns + ` FROM users`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", len(args)+1)
	args = append(args, limit+1)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, "", fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		u, err := scanUser(rows.Scan)
		if err != nil {
			return nil, "", fmt.Errorf("scanning user row: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("iterating user rows: %w", err)
	}

	var nextCursor string
	if len(users) > limit {
		last := users[limit-1]
		nextCursor = encodeCursor(last.CreatedAt, last.ID)
		users = users[:limit]
	}

	return users, nextCursor, nil
}

// GetVisibleByID retrieves a user by id within the actor's scope. An existing
// but out-of-scope id yields pgx.ErrNoRows so handlers answer 404 uniformly
// and cross-tenant ids are indistinguishable from absent ones.
func (s *Store) GetVisibleByID(ctx context.Context, actor *auth.Identity, id string) (*User, error) {
	cond, args := visibleWhere(actor, 1)
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	if cond != "" {
		query += " AND " + cond
	}
	args = append([]any{id}, args...)

	u, err := scanUser(func(dest ...any) error {
		return s.pool.QueryRow(ctx, query, args...).Scan(dest...)
	})
	if err != nil {
		return nil, fmt.Errorf("getting user in scope: %w", err)
	}
	return u, nil
}

// Update performs a partial update on the user with the given id.
func (s *Store) Update(ctx context.Context, id string, in UpdateUserInput) (*User, error) {
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
	if in.Password != nil {
		hash, err := bcrypt.GenerateFromPassword([]byte(*in.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hashing password: %w", err)
		}
		setClauses = append(setClauses, fmt.Sprintf("password_hash = $%d", argIdx))
		args = append(args, string(hash))
		argIdx++
	}
	if in.Subrole != nil {
		if !auth.ValidSubrole(*in.Subrole) {
			return nil, fmt.Errorf("unknown subrole %q", *in.Subrole)
		}
		setClauses = append(setClauses, fmt.Sprintf("subrole = $%d", argIdx))
		args = append(args, *in.Subrole)
		argIdx++
	}

	if len(setClauses) == 0 {
		return s.GetByID(ctx, id)
	}
	setClauses = append(setClauses, "updated_at = now()")

	args = append(args, id)
	query := fmt.Sprintf(
		`UPDATE users SET %s WHERE id = $%d RETURNING `+userColumns,
		strings.Join(setClauses, ", "), argIdx,
	)

	u, err := scanUser(func(dest ...any) error {
		return s.pool.QueryRow(ctx, query, args...).Scan(dest...)
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("updating user: %w", err)
	}
	return u, nil
}

// Delete removes a user by id. Returns pgx.ErrNoRows when nothing matched.
func (s *Store) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("deleting user: %w", pgx.ErrNoRows)
	}
	return nil
}

// CheckPassword verifies a plaintext password against the user's stored hash.
func CheckPassword(u *User, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil
}

// GetPermissions returns the operator permission flags for the given user.
// A missing row means all flags denied.
func (s *Store) GetPermissions(ctx context.Context, userID string) (*OperatorPermissions, error) {
	p := &OperatorPermissions{UserID: userID}
	err := s.pool.QueryRow(ctx,
		`SELECT can_create, can_modify, can_delete FROM operator_permissions WHERE user_id = $1`,
		userID,
	).Scan(&p.CanCreate, &p.CanModify, &p.CanDelete)
	if errors.Is(err, pgx.ErrNoRows) {
		return p, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting operator permissions: %w", err)
	}
	return p, nil
}

// SetPermissions upserts the operator permission flags for the given user.
func (s *Store) SetPermissions(ctx context.Context, p OperatorPermissions) (*OperatorPermissions, error) {
	out := &OperatorPermissions{UserID: p.UserID}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO operator_permissions (user_id, can_create, can_modify, can_delete)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id)
		 DO UPDATE SET can_create = EXCLUDED.can_create, can_modify = EXCLUDED.can_modify, can_delete = EXCLUDED.can_delete
		 RETURNING can_create, can_modify, can_delete`,
		p.UserID, p.CanCreate, p.CanModify, p.CanDelete,
	).Scan(&out.CanCreate, &out.CanModify, &out.CanDelete)
	if err != nil {
		return nil, fmt.Errorf("upserting operator permissions: %w", err)
	}
	return out, nil
}
