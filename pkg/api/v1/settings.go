package v1

import (
	"context"
	"encoding/json"
	goerrors "errors"
	"net/http"

	"github.com/resalt-dev/resalt/pkg/groups"
	"github.com/resalt-dev/resalt/pkg/logger"
	"github.com/resalt-dev/resalt/pkg/models"
	"github.com/resalt-dev/resalt/pkg/storage"
)

// settingsRoutes implements bulk export and import of operator-managed
// state: users, permission groups, memberships, and minion presets.
type settingsRoutes struct {
	store  storage.Store
	groups *groups.Service
}

// settingsUser carries the full user row. The public models.User JSON form
// hides the password hash, but export output feeds import, so the hash has
// to round-trip here.
type settingsUser struct {
	ID           string          `json:"id"`
	Username     string          `json:"username"`
	Password     *string         `json:"password"`
	Perms        json.RawMessage `json:"perms"`
	LastLogin    *models.Time    `json:"lastLogin"`
	Email        *string         `json:"email"`
	DirectoryRef *string         `json:"directoryRef"`
}

type settingsGroup struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Perms        json.RawMessage `json:"perms"`
	DirectoryRef *string         `json:"directoryRef"`
}

// settingsDocument is the export/import wire format. Memberships maps
// group id to member user ids.
type settingsDocument struct {
	Users       []settingsUser        `json:"users"`
	Groups      []settingsGroup       `json:"groups"`
	Memberships map[string][]string   `json:"memberships"`
	Presets     []models.MinionPreset `json:"presets"`
}

func exportUser(u models.User) settingsUser {
	return settingsUser{
		ID:           u.ID,
		Username:     u.Username,
		Password:     u.Password,
		Perms:        models.PermsArray(u.Perms),
		LastLogin:    u.LastLogin,
		Email:        u.Email,
		DirectoryRef: u.DirectoryRef,
	}
}

func (u settingsUser) model() models.User {
	return models.User{
		ID:           u.ID,
		Username:     u.Username,
		Password:     u.Password,
		Perms:        string(u.Perms),
		LastLogin:    u.LastLogin,
		Email:        u.Email,
		DirectoryRef: u.DirectoryRef,
	}
}

func (s *settingsRoutes) export(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	users, err := s.store.ListUsers(ctx, 0, 0)
	if err != nil {
		return storeErr(err, "users")
	}
	allGroups, err := s.store.ListGroups(ctx, 0, 0)
	if err != nil {
		return storeErr(err, "groups")
	}
	presets, err := s.store.ListPresets(ctx)
	if err != nil {
		return storeErr(err, "presets")
	}

	doc := settingsDocument{
		Users:       make([]settingsUser, 0, len(users)),
		Groups:      make([]settingsGroup, 0, len(allGroups)),
		Memberships: make(map[string][]string, len(allGroups)),
		Presets:     presets,
	}
	for _, user := range users {
		doc.Users = append(doc.Users, exportUser(user))
	}
	for _, group := range allGroups {
		doc.Groups = append(doc.Groups, settingsGroup{
			ID:           group.ID,
			Name:         group.Name,
			Perms:        models.PermsArray(group.Perms),
			DirectoryRef: group.DirectoryRef,
		})
		members, err := s.store.ListUsersForGroup(ctx, group.ID)
		if err != nil {
			return storeErr(err, "group members")
		}
		ids := make([]string, 0, len(members))
		for _, member := range members {
			ids = append(ids, member.ID)
		}
		doc.Memberships[group.ID] = ids
	}
	return writeJSON(w, http.StatusOK, doc)
}

// importSettings upserts every record in the document by id. It is
// additive: local records absent from the document are left alone. Group
// writes go straight to the store so the permission refresh runs once per
// user at the end instead of after every row.
func (s *settingsRoutes) importSettings(w http.ResponseWriter, r *http.Request) error {
	var doc settingsDocument
	if err := decodeJSON(r, &doc); err != nil {
		return err
	}
	ctx := r.Context()

	for _, entry := range doc.Users {
		if err := s.upsertUser(ctx, entry.model()); err != nil {
			return err
		}
	}
	for _, entry := range doc.Groups {
		group := models.PermissionGroup{
			ID:           entry.ID,
			Name:         entry.Name,
			Perms:        string(entry.Perms),
			DirectoryRef: entry.DirectoryRef,
		}
		if err := s.upsertGroup(ctx, group); err != nil {
			return err
		}
	}
	for groupID, userIDs := range doc.Memberships {
		for _, userID := range userIDs {
			err := s.store.AddUserToGroup(ctx, userID, groupID)
			if err != nil && !goerrors.Is(err, storage.ErrAlreadyExists) {
				return storeErr(err, "membership")
			}
		}
	}
	for _, preset := range doc.Presets {
		if err := s.upsertPreset(ctx, preset); err != nil {
			return err
		}
	}

	for _, entry := range doc.Users {
		if _, err := s.groups.RefreshUserPerms(ctx, entry.ID); err != nil {
			return err
		}
	}
	logger.Infof("Imported %d users, %d groups, %d presets", len(doc.Users), len(doc.Groups), len(doc.Presets))
	return writeJSON(w, http.StatusNoContent, nil)
}

func (s *settingsRoutes) upsertUser(ctx context.Context, user models.User) error {
	_, err := s.store.GetUser(ctx, user.ID)
	switch {
	case err == nil:
		return storeErr(s.store.UpdateUser(ctx, user), "user")
	case goerrors.Is(err, storage.ErrNotFound):
		return storeErr(s.store.CreateUser(ctx, user), "user")
	default:
		return storeErr(err, "user")
	}
}

func (s *settingsRoutes) upsertGroup(ctx context.Context, group models.PermissionGroup) error {
	_, err := s.store.GetGroup(ctx, group.ID)
	switch {
	case err == nil:
		return storeErr(s.store.UpdateGroup(ctx, group), "group")
	case goerrors.Is(err, storage.ErrNotFound):
		return storeErr(s.store.CreateGroup(ctx, group), "group")
	default:
		return storeErr(err, "group")
	}
}

func (s *settingsRoutes) upsertPreset(ctx context.Context, preset models.MinionPreset) error {
	_, err := s.store.GetPreset(ctx, preset.ID)
	switch {
	case err == nil:
		return storeErr(s.store.UpdatePreset(ctx, preset), "preset")
	case goerrors.Is(err, storage.ErrNotFound):
		return storeErr(s.store.CreatePreset(ctx, preset), "preset")
	default:
		return storeErr(err, "preset")
	}
}
