package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/resalt-dev/resalt/pkg/models"
	"github.com/resalt-dev/resalt/pkg/storage"
)

// groupColumns is the SELECT column list shared by group queries.
const groupColumns = `id, name, perms, directory_ref`

// CreateGroup implements storage.GroupStore.
func (s *Store) CreateGroup(ctx context.Context, group models.PermissionGroup) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO permission_groups (id, name, perms, directory_ref)
		VALUES (?, ?, ?, ?)`,
		group.ID, group.Name, group.Perms, strPtr(group.DirectoryRef))
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("inserting group: %w", err)
	}
	return nil
}

// GetGroup implements storage.GroupStore.
func (s *Store) GetGroup(ctx context.Context, id string) (*models.PermissionGroup, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+groupColumns+` FROM permission_groups WHERE id = ?`, id)
	return scanGroup(row)
}

// ListGroups implements storage.GroupStore.
func (s *Store) ListGroups(ctx context.Context, limit, offset int) ([]models.PermissionGroup, error) {
	query, args := limitClause(
		`SELECT `+groupColumns+` FROM permission_groups ORDER BY name COLLATE NOCASE`,
		nil, limit, offset)
	return s.queryGroups(ctx, query, args...)
}

// UpdateGroup implements storage.GroupStore.
func (s *Store) UpdateGroup(ctx context.Context, group models.PermissionGroup) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE permission_groups SET name = ?, perms = ?, directory_ref = ?
		WHERE id = ?`,
		group.Name, group.Perms, strPtr(group.DirectoryRef), group.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("updating group: %w", err)
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

// DeleteGroup implements storage.GroupStore. Memberships are removed by
// ON DELETE CASCADE.
func (s *Store) DeleteGroup(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM permission_groups WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting group: %w", err)
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

// AddUserToGroup implements storage.GroupStore. Foreign key failures
// surface as ErrNotFound since they mean the user or group is gone.
func (s *Store) AddUserToGroup(ctx context.Context, userID, groupID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO memberships (user_id, group_id) VALUES (?, ?)`, userID, groupID)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		if isForeignKeyViolation(err) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("inserting membership: %w", err)
	}
	return nil
}

// RemoveUserFromGroup implements storage.GroupStore. Removing an absent
// membership is a no-op.
func (s *Store) RemoveUserFromGroup(ctx context.Context, userID, groupID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM memberships WHERE user_id = ? AND group_id = ?`, userID, groupID)
	if err != nil {
		return fmt.Errorf("deleting membership: %w", err)
	}
	return nil
}

// IsUserInGroup implements storage.GroupStore.
func (s *Store) IsUserInGroup(ctx context.Context, userID, groupID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM memberships WHERE user_id = ? AND group_id = ?`, userID, groupID,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking membership: %w", err)
	}
	return true, nil
}

// ListGroupsForUser implements storage.GroupStore.
func (s *Store) ListGroupsForUser(ctx context.Context, userID string) ([]models.PermissionGroup, error) {
	return s.queryGroups(ctx, `
		SELECT g.id, g.name, g.perms, g.directory_ref
		FROM permission_groups g
		JOIN memberships m ON m.group_id = g.id
		WHERE m.user_id = ?
		ORDER BY g.name COLLATE NOCASE`, userID)
}

// ListUsersForGroup implements storage.GroupStore.
func (s *Store) ListUsersForGroup(ctx context.Context, groupID string) ([]models.User, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM permission_groups WHERE id = ?`, groupID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("checking group: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT u.id, u.username, u.password, u.perms, u.last_login, u.email, u.directory_ref
		FROM users u
		JOIN memberships m ON m.user_id = u.id
		WHERE m.group_id = ?
		ORDER BY u.username`, groupID)
	if err != nil {
		return nil, fmt.Errorf("querying group members: %w", err)
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
		return nil, fmt.Errorf("iterating member rows: %w", err)
	}
	return users, nil
}

// queryGroups runs a group query and scans every row.
func (s *Store) queryGroups(ctx context.Context, query string, args ...any) ([]models.PermissionGroup, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying groups: %w", err)
	}
	defer func() { _ = rows.Close() }()

	groups := []models.PermissionGroup{}
	for rows.Next() {
		g, scanErr := scanGroup(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		groups = append(groups, *g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating group rows: %w", err)
	}
	return groups, nil
}

// scanGroup scans one group row.
func scanGroup(sc scanner) (*models.PermissionGroup, error) {
	var (
		g            models.PermissionGroup
		directoryRef sql.NullString
	)
	err := sc.Scan(&g.ID, &g.Name, &g.Perms, &directoryRef)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("scanning group row: %w", err)
	}
	g.DirectoryRef = nullString(directoryRef)
	return &g, nil
}
