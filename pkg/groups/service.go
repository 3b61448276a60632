// Package groups manages permission groups and memberships, and keeps the
// per-user cached permission blob in sync with them.
package groups

import (
	"context"
	"encoding/json"
	goerrors "errors"

	"github.com/resalt-dev/resalt/pkg/errors"
	"github.com/resalt-dev/resalt/pkg/logger"
	"github.com/resalt-dev/resalt/pkg/models"
	"github.com/resalt-dev/resalt/pkg/storage"
)

// Service implements group CRUD and the permission refresh protocol: every
// mutation that changes a group's perms or its membership recomputes the
// cached perms of the affected users before the mutation returns.
type Service struct {
	store storage.Store
}

// New builds a group Service on the given store.
func New(store storage.Store) *Service {
	return &Service{store: store}
}

// Create adds a group. perms must be a JSON array; an empty string stands
// for no permissions.
func (s *Service) Create(ctx context.Context, name, perms string, directoryRef *string) (*models.PermissionGroup, error) {
	name, perms, err := validateGroup(name, perms)
	if err != nil {
		return nil, err
	}

	group := models.PermissionGroup{
		ID:           models.NewGroupID(),
		Name:         name,
		Perms:        perms,
		DirectoryRef: directoryRef,
	}
	if err := s.store.CreateGroup(ctx, group); err != nil {
		if goerrors.Is(err, storage.ErrAlreadyExists) {
			return nil, errors.NewInvalidRequestError("group name already taken", err)
		}
		return nil, errors.NewStorageError("creating group", err)
	}
	return &group, nil
}

// Get returns one group.
func (s *Service) Get(ctx context.Context, id string) (*models.PermissionGroup, error) {
	group, err := s.store.GetGroup(ctx, id)
	if err != nil {
		if goerrors.Is(err, storage.ErrNotFound) {
			return nil, errors.NewNotFoundError("group not found", err)
		}
		return nil, errors.NewStorageError("loading group", err)
	}
	return group, nil
}

// List returns groups ordered by name.
func (s *Service) List(ctx context.Context, limit, offset int) ([]models.PermissionGroup, error) {
	groups, err := s.store.ListGroups(ctx, limit, offset)
	if err != nil {
		return nil, errors.NewStorageError("listing groups", err)
	}
	return groups, nil
}

// Update replaces a group's name, perms, and directory ref, then refreshes
// the cached perms of every member.
func (s *Service) Update(ctx context.Context, id, name, perms string, directoryRef *string) (*models.PermissionGroup, error) {
	name, perms, err := validateGroup(name, perms)
	if err != nil {
		return nil, err
	}

	group := models.PermissionGroup{ID: id, Name: name, Perms: perms, DirectoryRef: directoryRef}
	if err := s.store.UpdateGroup(ctx, group); err != nil {
		switch {
		case goerrors.Is(err, storage.ErrNotFound):
			return nil, errors.NewNotFoundError("group not found", err)
		case goerrors.Is(err, storage.ErrAlreadyExists):
			return nil, errors.NewInvalidRequestError("group name already taken", err)
		}
		return nil, errors.NewStorageError("updating group", err)
	}

	if err := s.refreshGroupMembers(ctx, id); err != nil {
		return nil, err
	}
	return &group, nil
}

// Delete removes a group and its memberships, then refreshes the cached
// perms of the former members.
func (s *Service) Delete(ctx context.Context, id string) error {
	members, err := s.store.ListUsersForGroup(ctx, id)
	if err != nil {
		if goerrors.Is(err, storage.ErrNotFound) {
			return errors.NewNotFoundError("group not found", err)
		}
		return errors.NewStorageError("listing group members", err)
	}

	if err := s.store.DeleteGroup(ctx, id); err != nil {
		if goerrors.Is(err, storage.ErrNotFound) {
			return errors.NewNotFoundError("group not found", err)
		}
		return errors.NewStorageError("deleting group", err)
	}

	for _, member := range members {
		if _, err := s.RefreshUserPerms(ctx, member.ID); err != nil {
			return err
		}
	}
	return nil
}

// AddUser inserts a membership and refreshes the user's cached perms.
// Adding an existing member is a no-op.
func (s *Service) AddUser(ctx context.Context, groupID, userID string) error {
	if err := s.store.AddUserToGroup(ctx, userID, groupID); err != nil {
		switch {
		case goerrors.Is(err, storage.ErrAlreadyExists):
			return nil
		case goerrors.Is(err, storage.ErrNotFound):
			return errors.NewNotFoundError("user or group not found", err)
		}
		return errors.NewStorageError("adding group member", err)
	}

	_, err := s.RefreshUserPerms(ctx, userID)
	return err
}

// RemoveUser deletes a membership and refreshes the user's cached perms.
// Removing a non-member is a no-op.
func (s *Service) RemoveUser(ctx context.Context, groupID, userID string) error {
	if err := s.store.RemoveUserFromGroup(ctx, userID, groupID); err != nil {
		return errors.NewStorageError("removing group member", err)
	}

	_, err := s.RefreshUserPerms(ctx, userID)
	return err
}

// UsersFor lists the members of a group.
func (s *Service) UsersFor(ctx context.Context, groupID string) ([]models.User, error) {
	users, err := s.store.ListUsersForGroup(ctx, groupID)
	if err != nil {
		if goerrors.Is(err, storage.ErrNotFound) {
			return nil, errors.NewNotFoundError("group not found", err)
		}
		return nil, errors.NewStorageError("listing group members", err)
	}
	return users, nil
}

// GroupsFor lists the groups a user belongs to.
func (s *Service) GroupsFor(ctx context.Context, userID string) ([]models.PermissionGroup, error) {
	groups, err := s.store.ListGroupsForUser(ctx, userID)
	if err != nil {
		return nil, errors.NewStorageError("listing user groups", err)
	}
	return groups, nil
}

// RefreshUserPerms recomputes a user's cached permission blob as the
// concatenation of the perms arrays of every group the user belongs to,
// persists it, and returns the new blob. Groups with malformed perms are
// skipped with a warning. A user in no groups ends up with "[]".
func (s *Service) RefreshUserPerms(ctx context.Context, userID string) (string, error) {
	groups, err := s.store.ListGroupsForUser(ctx, userID)
	if err != nil {
		return "", errors.NewStorageError("listing user groups", err)
	}

	// RawMessage entries keep each group's perms byte-for-byte, so two
	// consecutive refreshes produce identical blobs.
	merged := []json.RawMessage{}
	for _, group := range groups {
		var entries []json.RawMessage
		if err := json.Unmarshal([]byte(group.Perms), &entries); err != nil {
			logger.Warnf("Skipping malformed perms on group %s (%s): %v", group.Name, group.ID, err)
			continue
		}
		merged = append(merged, entries...)
	}
	blob, err := json.Marshal(merged)
	if err != nil {
		return "", errors.NewInternalError("serializing merged perms", err)
	}

	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		if goerrors.Is(err, storage.ErrNotFound) {
			return "", errors.NewNotFoundError("user not found", err)
		}
		return "", errors.NewStorageError("loading user", err)
	}
	user.Perms = string(blob)
	if err := s.store.UpdateUser(ctx, *user); err != nil {
		return "", errors.NewStorageError("persisting refreshed perms", err)
	}
	return user.Perms, nil
}

// refreshGroupMembers refreshes every current member of a group.
func (s *Service) refreshGroupMembers(ctx context.Context, groupID string) error {
	members, err := s.store.ListUsersForGroup(ctx, groupID)
	if err != nil {
		return errors.NewStorageError("listing group members", err)
	}
	for _, member := range members {
		if _, err := s.RefreshUserPerms(ctx, member.ID); err != nil {
			return err
		}
	}
	return nil
}

// validateGroup normalizes and checks group fields.
func validateGroup(name, perms string) (string, string, error) {
	if name == "" {
		return "", "", errors.NewInvalidRequestError("group name is required", nil)
	}
	if perms == "" {
		perms = "[]"
	}
	var entries []any
	if err := json.Unmarshal([]byte(perms), &entries); err != nil {
		return "", "", errors.NewInvalidRequestError("perms must be a JSON array", err)
	}
	return name, perms, nil
}
