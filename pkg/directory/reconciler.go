package directory

import (
	"context"
	goerrors "errors"

	"github.com/resalt-dev/resalt/pkg/errors"
	"github.com/resalt-dev/resalt/pkg/logger"
	"github.com/resalt-dev/resalt/pkg/models"
	"github.com/resalt-dev/resalt/pkg/storage"
)

// PermsRefresher recomputes and persists a user's cached permission blob.
type PermsRefresher interface {
	RefreshUserPerms(ctx context.Context, userID string) (string, error)
}

// Reconciler keeps local mirrors of directory-managed users and the
// memberships of directory-tracked groups in line with the directory. It
// runs as a whole on a schedule and per-user at login. Groups without a
// directory ref are never touched.
type Reconciler struct {
	store  storage.Store
	client Client
	perms  PermsRefresher
}

// NewReconciler builds a Reconciler.
func NewReconciler(store storage.Store, client Client, perms PermsRefresher) *Reconciler {
	return &Reconciler{store: store, client: client, perms: perms}
}

// Login verifies directory credentials and refreshes the caller's local
// mirror: user record, email, and directory-tracked memberships. A nil
// user with nil error means the directory rejected the credentials.
func (r *Reconciler) Login(ctx context.Context, username, password string) (*models.User, error) {
	dirUser, err := r.client.Authenticate(ctx, username, password)
	if err != nil {
		return nil, err
	}
	if dirUser == nil {
		return nil, nil
	}

	user, err := r.mirror(ctx, dirUser)
	if err != nil {
		return nil, err
	}
	// Membership changes surface through the perms refresh that follows
	// login, so no extra refresh is needed here.
	if _, err := r.syncMemberships(ctx, user.ID, dirUser.GroupRefs); err != nil {
		return nil, err
	}
	return user, nil
}

// Sync reconciles every directory-managed user: email updates, membership
// additions and removals against the directory-reported group refs, and a
// perms refresh for each user whose memberships changed. Users the
// directory no longer knows lose all their directory-tracked memberships.
func (r *Reconciler) Sync(ctx context.Context) error {
	users, err := r.store.ListUsers(ctx, 0, 0)
	if err != nil {
		return errors.NewStorageError("listing users", err)
	}
	var tracked []models.User
	for _, u := range users {
		if u.DirectoryRef != nil {
			tracked = append(tracked, u)
		}
	}
	if len(tracked) == 0 {
		logger.Debugw("directory sync: no directory-managed users")
		return nil
	}

	refs := make([]string, 0, len(tracked))
	for _, u := range tracked {
		refs = append(refs, *u.DirectoryRef)
	}
	dirUsers, err := r.client.LookupByRefs(ctx, refs)
	if err != nil {
		return err
	}
	byRef := make(map[string]*User, len(dirUsers))
	for i := range dirUsers {
		byRef[dirUsers[i].Ref] = &dirUsers[i]
	}

	for _, u := range tracked {
		dirUser := byRef[*u.DirectoryRef]
		var groupRefs []string
		if dirUser == nil {
			logger.Warnf("User %s (%s) vanished from the directory; dropping directory memberships",
				u.Username, *u.DirectoryRef)
		} else {
			groupRefs = dirUser.GroupRefs
			if err := r.updateEmail(ctx, &u, dirUser.Email); err != nil {
				return err
			}
		}

		changed, err := r.syncMemberships(ctx, u.ID, groupRefs)
		if err != nil {
			return err
		}
		if changed {
			if _, err := r.perms.RefreshUserPerms(ctx, u.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

// mirror creates or updates the local user record for a directory user.
func (r *Reconciler) mirror(ctx context.Context, dirUser *User) (*models.User, error) {
	user, err := r.store.GetUserByUsername(ctx, dirUser.Username)
	if err != nil {
		if !goerrors.Is(err, storage.ErrNotFound) {
			return nil, errors.NewStorageError("looking up directory user", err)
		}
		user = &models.User{
			ID:           models.NewUserID(),
			Username:     dirUser.Username,
			Perms:        "[]",
			Email:        emailPtr(dirUser.Email),
			DirectoryRef: &dirUser.Ref,
		}
		if err := r.store.CreateUser(ctx, *user); err != nil {
			return nil, errors.NewStorageError("provisioning directory user", err)
		}
		logger.Infof("Provisioned directory user %s", dirUser.Username)
		return user, nil
	}

	user.Email = emailPtr(dirUser.Email)
	user.DirectoryRef = &dirUser.Ref
	user.Password = nil
	if err := r.store.UpdateUser(ctx, *user); err != nil {
		return nil, errors.NewStorageError("updating directory user", err)
	}
	return user, nil
}

func (r *Reconciler) updateEmail(ctx context.Context, user *models.User, email string) error {
	next := emailPtr(email)
	if equalPtr(user.Email, next) {
		return nil
	}
	user.Email = next
	if err := r.store.UpdateUser(ctx, *user); err != nil {
		return errors.NewStorageError("updating user email", err)
	}
	return nil
}

// syncMemberships applies the symmetric difference between the user's
// directory-tracked memberships and the directory-reported group refs.
// Refs with no matching local group are ignored.
func (r *Reconciler) syncMemberships(ctx context.Context, userID string, groupRefs []string) (bool, error) {
	local, err := r.store.ListGroups(ctx, 0, 0)
	if err != nil {
		return false, errors.NewStorageError("listing groups", err)
	}
	trackedByRef := make(map[string]models.PermissionGroup)
	for _, g := range local {
		if g.DirectoryRef != nil {
			trackedByRef[*g.DirectoryRef] = g
		}
	}

	desired := make(map[string]struct{})
	for _, ref := range groupRefs {
		if g, ok := trackedByRef[ref]; ok {
			desired[g.ID] = struct{}{}
		}
	}

	current, err := r.store.ListGroupsForUser(ctx, userID)
	if err != nil {
		return false, errors.NewStorageError("listing user groups", err)
	}

	changed := false
	for _, g := range current {
		if g.DirectoryRef == nil {
			continue
		}
		if _, keep := desired[g.ID]; keep {
			delete(desired, g.ID)
			continue
		}
		if err := r.store.RemoveUserFromGroup(ctx, userID, g.ID); err != nil {
			return false, errors.NewStorageError("removing directory membership", err)
		}
		logger.Debugw("directory sync removed membership", "user", userID, "group", g.ID)
		changed = true
	}
	for id := range desired {
		if err := r.store.AddUserToGroup(ctx, userID, id); err != nil {
			if goerrors.Is(err, storage.ErrAlreadyExists) {
				continue
			}
			return false, errors.NewStorageError("adding directory membership", err)
		}
		logger.Debugw("directory sync added membership", "user", userID, "group", id)
		changed = true
	}
	return changed, nil
}

func emailPtr(email string) *string {
	if email == "" {
		return nil
	}
	return &email
}

func equalPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
