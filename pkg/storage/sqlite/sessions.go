package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/resalt-dev/resalt/pkg/models"
	"github.com/resalt-dev/resalt/pkg/storage"
)

// CreateSession implements storage.SessionStore.
func (s *Store) CreateSession(ctx context.Context, session models.SessionToken) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, user_id, issued_at, salt_token)
		VALUES (?, ?, ?, ?)`,
		session.ID,
		session.UserID,
		timeText(session.IssuedAt),
		strPtr(session.SaltTokenBlob),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("inserting session: %w", err)
	}
	return nil
}

// GetSession implements storage.SessionStore.
func (s *Store) GetSession(ctx context.Context, id string) (*models.SessionToken, error) {
	var (
		sess      models.SessionToken
		issuedAt  string
		saltToken sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, issued_at, salt_token FROM sessions WHERE id = ?`, id,
	).Scan(&sess.ID, &sess.UserID, &issuedAt, &saltToken)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("scanning session row: %w", err)
	}
	if sess.IssuedAt, err = parseTimeText(issuedAt); err != nil {
		return nil, err
	}
	sess.SaltTokenBlob = nullString(saltToken)
	return &sess, nil
}

// SetSessionSaltToken implements storage.SessionStore.
func (s *Store) SetSessionSaltToken(ctx context.Context, id string, blob *string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET salt_token = ? WHERE id = ?`, strPtr(blob), id)
	if err != nil {
		return fmt.Errorf("updating session token: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// DeleteSession implements storage.SessionStore. Deleting an absent
// session is a no-op.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// DeleteExpiredSessions implements storage.SessionStore.
func (s *Store) DeleteExpiredSessions(ctx context.Context, issuedBefore time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE issued_at < ?`, timeText(models.NewTime(issuedBefore)))
	if err != nil {
		return 0, fmt.Errorf("deleting expired sessions: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return affected, nil
}
