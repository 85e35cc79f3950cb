package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/cbums/cbums/internal/auth"
	"github.com/cbums/cbums/internal/crypto"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Store provides database operations for the activity log. When cipher is
// non-nil, IP and user-agent columns are encrypted at rest.
type Store struct {
	pool   *pgxpool.Pool
	cipher *crypto.Cipher
}

// NewStore creates a new audit store. cipher may be nil to store PII columns
// in the clear.
func NewStore(pool *pgxpool.Pool, cipher *crypto.Cipher) *Store {
	return &Store{pool: pool, cipher: cipher}
}

// BatchInsert writes a slice of entries in a single multi-row INSERT.
// It is a no-op when entries is empty.
func (s *Store) BatchInsert(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	const cols = 7 // columns per row (id and created_at are server-generated)
	args := make([]any, 0, len(entries)*cols)
	rows := make([]string, 0, len(entries))

	for i, e := range entries {
		base := i * cols
		rows = append(rows, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7,
		))

		details := []byte("{}")
		if e.Details != nil {
			var err error
			details, err = json.Marshal(e.Details)
			if err != nil {
				return fmt.Errorf("encoding entry details: %w", err)
			}
		}

		ip, err := s.cipher.Encrypt(e.IP)
		if err != nil {
			return fmt.Errorf("encrypting entry ip: %w", err)
		}
		userAgent, err := s.cipher.Encrypt(e.UserAgent)
		if err != nil {
			return fmt.Errorf("encrypting entry user agent: %w", err)
		}

		args = append(args,
			nullable(e.UserID),
			e.Action,
			e.ResourceType,
			nullable(e.ResourceID),
			details,
			ip,
			userAgent,
		)
	}

	query := `INSERT INTO activity_logs
		(user_id, action, resource_type, resource_id, details, ip, user_agent)
		VALUES ` + strings.Join(rows, ", ")

	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("batch inserting activity entries: %w", err)
	}
	return nil
}

// scopeWhere builds the role-scoped visibility condition for activity reads.
// The log is append-only; scoping is the only thing that varies per actor.
func scopeWhere(actor *auth.Identity, argOffset int) (string, []any) {
	n := func(i int) string { return fmt.Sprintf("$%d", argOffset+i) }
	switch actor.Role {
	case auth.RoleSuperAdmin:
		return "", nil
	case auth.RoleAdmin:
		return fmt.Sprintf(
			`(user_id = %s OR user_id IN (
				SELECT id FROM users
				WHERE created_by_id = %s
				   OR company_id IN (SELECT id FROM companies WHERE created_by_id = %s)
			))`, n(1), n(1), n(1),
		), []any{actor.ID}
	case auth.RoleCompany:
		return fmt.Sprintf(
			"(user_id = %s OR user_id IN (SELECT id FROM users WHERE company_id = %s))",
			n(1), n(2),
		), []any{actor.ID, actor.CompanyID}
	default:
		return fmt.Sprintf("(user_id = %s)", n(1)), []any{actor.ID}
	}
}

func buildQueryWhere(actor *auth.Identity, q Query) (string, []any) {
	cond, args := scopeWhere(actor, 0)
	var conditions []string
	if cond != "" {
		conditions = append(conditions, cond)
	}

	if q.Action != "" {
		args = append(args, q.Action)
		conditions = append(conditions, fmt.Sprintf("action = $%d", len(args)))
	}
	if q.ResourceType != "" {
		args = append(args, q.ResourceType)
		conditions = append(conditions, fmt.Sprintf("resource_type = $%d", len(args)))
	}
	if q.UserID != "" {
		args = append(args, q.UserID)
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if !q.From.IsZero() {
		args = append(args, q.From)
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if !q.To.IsZero() {
		args = append(args, q.To)
		conditions = append(conditions, fmt.Sprintf("created_at <= $%d", len(args)))
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

// List returns a page of activity entries visible to the actor, newest first,
// with the total count of matching rows for page navigation.
func (s *Store) List(ctx context.Context, actor *auth.Identity, q Query) ([]*Entry, int64, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	page := q.Page
	if page < 1 {
		page = 1
	}

	where, args := buildQueryWhere(actor, q)

	var total int64
	countQuery := `SELECT COUNT(*) FROM activity_logs` + where
	if err := s.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting activity entries: %w", err)
	}

	query := `SELECT id, user_id, action, resource_type, resource_id, details, ip, user_agent, created_at
		FROM activity_logs` + where +
		` ORDER BY created_at DESC, id DESC LIMIT $` + strconv.Itoa(len(args)+1) +
		` OFFSET $` + strconv.Itoa(len(args)+2)
	args = append(args, limit, (page-1)*limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing activity entries: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		e := &Entry{}
		var userID, resourceID *string
		var details []byte
		var ip, userAgent string
		err := rows.Scan(&e.ID, &userID, &e.Action, &e.ResourceType, &resourceID, &details, &ip, &userAgent, &e.CreatedAt)
		if err != nil {
			return nil, 0, fmt.Errorf("scanning activity row: %w", err)
		}
		if userID != nil {
			e.UserID = *userID
		}
		if resourceID != nil {
			e.ResourceID = *resourceID
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				return nil, 0, fmt.Errorf("decoding activity details: %w", err)
			}
		}
		if e.IP, err = s.cipher.Decrypt(ip); err != nil {
			return nil, 0, fmt.Errorf("decrypting activity ip: %w", err)
		}
		if e.UserAgent, err = s.cipher.Decrypt(userAgent); err != nil {
			return nil, 0, fmt.Errorf("decrypting activity user agent: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating activity rows: %w", err)
	}

	return entries, total, nil
}

// GetFacets returns the distinct actions and resource types present in the
// actor's visible slice of the log.
func (s *Store) GetFacets(ctx context.Context, actor *auth.Identity) (*Facets, error) {
	cond, args := scopeWhere(actor, 0)
	where := ""
	if cond != "" {
		where = " WHERE " + cond
	}

	facets := &Facets{}

	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT action FROM activity_logs`+where+` ORDER BY action`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying activity actions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var action string
		if err := rows.Scan(&action); err != nil {
			return nil, fmt.Errorf("scanning action facet: %w", err)
		}
		facets.Actions = append(facets.Actions, action)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating action facets: %w", err)
	}

	rows, err = s.pool.Query(ctx,
		`SELECT DISTINCT resource_type FROM activity_logs`+where+` ORDER BY resource_type`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying activity resource types: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var rt string
		if err := rows.Scan(&rt); err != nil {
			return nil, fmt.Errorf("scanning resource type facet: %w", err)
		}
		facets.ResourceTypes = append(facets.ResourceTypes, rt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating resource type facets: %w", err)
	}

	return facets, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
