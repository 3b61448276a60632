package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/resalt-dev/resalt/pkg/models"
	"github.com/resalt-dev/resalt/pkg/storage"
)

// userColumns is the SELECT column list shared by user queries.
const userColumns = `id, username, password, perms, last_login, email, directory_ref`

// CreateUser implements storage.UserStore.
func (s *Store) CreateUser(ctx context.Context, user models.User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, password, perms, last_login, email, directory_ref)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Username,
		strPtr(user.Password),
		user.Perms,
		timeTextPtr(user.LastLogin),
		strPtr(user.Email),
		strPtr(user.DirectoryRef),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("inserting user: %w", err)
	}
	return nil
}

// GetUser implements storage.UserStore.
func (s *Store) GetUser(ctx context.Context, id string) (*models.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

// GetUserByUsername implements storage.UserStore.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = ?`, username)
	return scanUser(row)
}

// ListUsers implements storage.UserStore.
func (s *Store) ListUsers(ctx context.Context, limit, offset int) ([]models.User, error) {
	query, args := limitClause(
		`SELECT `+userColumns+` FROM users ORDER BY username`, nil, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	users := []models.User{}
	for rows.Next() {
		u, scanErr := scanUser(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating user rows: %w", err)
	}
	return users, nil
}

// UpdateUser implements storage.UserStore.
func (s *Store) UpdateUser(ctx context.Context, user models.User) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET
			username = ?, password = ?, perms = ?, last_login = ?, email = ?, directory_ref = ?
		WHERE id = ?`,
		user.Username,
		strPtr(user.Password),
		user.Perms,
		timeTextPtr(user.LastLogin),
		strPtr(user.Email),
		strPtr(user.DirectoryRef),
		user.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("updating user: %w", err)
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

// DeleteUser implements storage.UserStore. Sessions and memberships are
// removed by ON DELETE CASCADE.
func (s *Store) DeleteUser(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
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

// scanUser scans one user row.
func scanUser(sc scanner) (*models.User, error) {
	var (
		u            models.User
		password     sql.NullString
		lastLogin    sql.NullString
		email        sql.NullString
		directoryRef sql.NullString
	)
	err := sc.Scan(&u.ID, &u.Username, &password, &u.Perms, &lastLogin, &email, &directoryRef)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("scanning user row: %w", err)
	}
	u.Password = nullString(password)
	u.Email = nullString(email)
	u.DirectoryRef = nullString(directoryRef)
	if u.LastLogin, err = nullTime(lastLogin); err != nil {
		return nil, err
	}
	return &u, nil
}
