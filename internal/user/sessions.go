package user

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

const sessionDuration = 7 * 24 * time.Hour

// CreateSession creates a new login session for the given user. It returns
// the opaque plaintext token (to be sent to the client) and the stored
// session. Only the SHA-256 hash of the token is persisted.
func (s *Store) CreateSession(ctx context.Context, userID string) (string, *Session, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", nil, fmt.Errorf("generating session token: %w", err)
	}
	plaintext := hex.EncodeToString(b)
	tokenHash := hashToken(plaintext)

	now := time.Now()
	expiresAt := now.Add(sessionDuration)

	sess := &Session{}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO auth_sessions (token_hash, user_id, created_at, expires_at)
		 VALUES ($1, $2, $3, $4)
		 RETURNING token_hash, user_id, created_at, expires_at`,
		tokenHash, userID, now, expiresAt,
	).Scan(&sess.TokenHash, &sess.UserID, &sess.CreatedAt, &sess.ExpiresAt)
	if err != nil {
		return "", nil, fmt.Errorf("creating session: %w", err)
	}

	return plaintext, sess, nil
}

// GetSessionUser looks up a session by its plaintext token and returns the
// associated user. Expired or unknown tokens yield an error.
func (s *Store) GetSessionUser(ctx context.Context, plaintext string) (*User, error) {
	tokenHash := hashToken(plaintext)

	u, err := scanUser(func(dest ...any) error {
		return s.pool.QueryRow(ctx,
			`SELECT `+prefixedUserColumns("u")+`
			 FROM auth_sessions s JOIN users u ON s.user_id = u.id
			 WHERE s.token_hash = $1 AND s.expires_at > now()`,
			tokenHash,
		).Scan(dest...)
	})
	if err != nil {
		return nil, fmt.Errorf("getting session user: %w", err)
	}
	return u, nil
}

// DeleteSession removes a session by its plaintext token.
func (s *Store) DeleteSession(ctx context.Context, plaintext string) error {
	tokenHash := hashToken(plaintext)
	_, err := s.pool.Exec(ctx, `DELETE FROM auth_sessions WHERE token_hash = $1`, tokenHash)
	if err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// CleanExpiredSessions deletes all sessions that have expired.
func (s *Store) CleanExpiredSessions(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM auth_sessions WHERE expires_at < now()`)
	if err != nil {
		return 0, fmt.Errorf("cleaning expired sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

func prefixedUserColumns(alias string) string {
	cols := strings.Split(userColumns, ", ")
	for i, c := range cols {
		cols[i] = alias + "." + c
	}
	return strings.Join(cols, ", ")
}

func hashToken(plaintext string) string {
	h := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(h[:])
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
