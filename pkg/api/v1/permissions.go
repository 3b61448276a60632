package v1

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/resalt-dev/resalt/pkg/errors"
	"github.com/resalt-dev/resalt/pkg/groups"
	"github.com/resalt-dev/resalt/pkg/models"
)

// permissionRoutes administers permission groups and their memberships. All
// mutations go through the groups service so member permission caches stay
// in step with the stored groups.
type permissionRoutes struct {
	groups *groups.Service
}

type groupRequest struct {
	Name         string          `json:"name"`
	Perms        json.RawMessage `json:"perms"`
	DirectoryRef *string         `json:"directoryRef"`
}

type groupMember struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// groupView is a group plus its resolved members.
type groupView struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Perms        json.RawMessage `json:"perms"`
	DirectoryRef *string         `json:"directoryRef"`
	Users        []groupMember   `json:"users"`
}

func (p *permissionRoutes) view(ctx context.Context, group *models.PermissionGroup) (*groupView, error) {
	members, err := p.groups.UsersFor(ctx, group.ID)
	if err != nil {
		return nil, err
	}
	users := make([]groupMember, 0, len(members))
	for _, member := range members {
		users = append(users, groupMember{ID: member.ID, Username: member.Username})
	}
	return &groupView{
		ID:           group.ID,
		Name:         group.Name,
		Perms:        models.PermsArray(group.Perms),
		DirectoryRef: group.DirectoryRef,
		Users:        users,
	}, nil
}

func (p *permissionRoutes) list(w http.ResponseWriter, r *http.Request) error {
	limit, offset, err := parsePaging(r, 0)
	if err != nil {
		return err
	}
	all, err := p.groups.List(r.Context(), limit, offset)
	if err != nil {
		return err
	}

	views := make([]groupView, 0, len(all))
	for i := range all {
		view, err := p.view(r.Context(), &all[i])
		if err != nil {
			return err
		}
		views = append(views, *view)
	}
	return writeJSON(w, http.StatusOK, views)
}

func (p *permissionRoutes) get(w http.ResponseWriter, r *http.Request) error {
	group, err := p.groups.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		return err
	}
	view, err := p.view(r.Context(), group)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, view)
}

func (p *permissionRoutes) create(w http.ResponseWriter, r *http.Request) error {
	var req groupRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	if req.Name == "" {
		return errors.NewInvalidRequestError("group name is required", nil)
	}

	group, err := p.groups.Create(r.Context(), req.Name, string(req.Perms), req.DirectoryRef)
	if err != nil {
		return err
	}
	view, err := p.view(r.Context(), group)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, view)
}

func (p *permissionRoutes) update(w http.ResponseWriter, r *http.Request) error {
	var req groupRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	if req.Name == "" {
		return errors.NewInvalidRequestError("group name is required", nil)
	}

	group, err := p.groups.Update(r.Context(), chi.URLParam(r, "id"), req.Name, string(req.Perms), req.DirectoryRef)
	if err != nil {
		return err
	}
	view, err := p.view(r.Context(), group)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, view)
}

func (p *permissionRoutes) delete(w http.ResponseWriter, r *http.Request) error {
	if err := p.groups.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		return err
	}
	return writeJSON(w, http.StatusNoContent, nil)
}

func (p *permissionRoutes) addMember(w http.ResponseWriter, r *http.Request) error {
	if err := p.groups.AddUser(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "userid")); err != nil {
		return err
	}
	return writeJSON(w, http.StatusNoContent, nil)
}

func (p *permissionRoutes) removeMember(w http.ResponseWriter, r *http.Request) error {
	if err := p.groups.RemoveUser(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "userid")); err != nil {
		return err
	}
	return writeJSON(w, http.StatusNoContent, nil)
}
