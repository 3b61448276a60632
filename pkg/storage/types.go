// Package storage defines the persistence surface backing the control
// plane. Implementations live in the sqlite and memory subpackages and
// are selected by the database.driver configuration key.
package storage

import (
	"context"
	"time"

	"github.com/resalt-dev/resalt/pkg/models"
)

// MinionSort names an ordering for minion listings. The zero value is
// treated as MinionSortIDAsc.
type MinionSort string

// Supported minion sort orders.
const (
	MinionSortIDAsc            MinionSort = "id.asc"
	MinionSortIDDesc           MinionSort = "id.desc"
	MinionSortLastSeenAsc      MinionSort = "lastSeen.asc"
	MinionSortLastSeenDesc     MinionSort = "lastSeen.desc"
	MinionSortOSTypeAsc        MinionSort = "osType.asc"
	MinionSortOSTypeDesc       MinionSort = "osType.desc"
	MinionSortConformityAsc    MinionSort = "conformitySuccess.asc"
	MinionSortConformityDesc   MinionSort = "conformitySuccess.desc"
	MinionSortIncorrectAsc     MinionSort = "conformityIncorrect.asc"
	MinionSortIncorrectDesc    MinionSort = "conformityIncorrect.desc"
	MinionSortErrorAsc         MinionSort = "conformityError.asc"
	MinionSortErrorDesc        MinionSort = "conformityError.desc"
)

// ParseMinionSort validates a sort token from a request. Empty input
// yields the default order.
func ParseMinionSort(s string) (MinionSort, bool) {
	switch MinionSort(s) {
	case "":
		return MinionSortIDAsc, true
	case MinionSortIDAsc, MinionSortIDDesc,
		MinionSortLastSeenAsc, MinionSortLastSeenDesc,
		MinionSortOSTypeAsc, MinionSortOSTypeDesc,
		MinionSortConformityAsc, MinionSortConformityDesc,
		MinionSortIncorrectAsc, MinionSortIncorrectDesc,
		MinionSortErrorAsc, MinionSortErrorDesc:
		return MinionSort(s), true
	}
	return "", false
}

// Counts holds the row counters reported by the status endpoint.
type Counts struct {
	Users    int64 `json:"users"`
	Minions  int64 `json:"minions"`
	Events   int64 `json:"events"`
	Jobs     int64 `json:"jobs"`
	Sessions int64 `json:"sessions"`
}

// UserStore manages operator accounts.
type UserStore interface {
	// CreateUser persists a new user. ErrAlreadyExists is returned when
	// the username is taken.
	CreateUser(ctx context.Context, user models.User) error

	// GetUser fetches a user by id.
	GetUser(ctx context.Context, id string) (*models.User, error)

	// GetUserByUsername fetches a user by username.
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)

	// ListUsers returns users ordered by username. A non-positive limit
	// disables pagination.
	ListUsers(ctx context.Context, limit, offset int) ([]models.User, error)

	// UpdateUser replaces all mutable fields of an existing user.
	UpdateUser(ctx context.Context, user models.User) error

	// DeleteUser removes a user and, through cascade, its sessions and
	// group memberships.
	DeleteUser(ctx context.Context, id string) error
}

// SessionStore manages login sessions and their cached master tokens.
type SessionStore interface {
	// CreateSession persists a new session.
	CreateSession(ctx context.Context, session models.SessionToken) error

	// GetSession fetches a session by id.
	GetSession(ctx context.Context, id string) (*models.SessionToken, error)

	// SetSessionSaltToken replaces the cached master token blob of a
	// session. A nil blob clears it.
	SetSessionSaltToken(ctx context.Context, id string, blob *string) error

	// DeleteSession removes a session. Deleting an absent session is not
	// an error.
	DeleteSession(ctx context.Context, id string) error

	// DeleteExpiredSessions removes sessions issued strictly before the
	// cutoff and reports how many were dropped.
	DeleteExpiredSessions(ctx context.Context, issuedBefore time.Time) (int64, error)
}

// MinionStore manages the materialized fleet view.
type MinionStore interface {
	// SaveMinion writes the full minion row, inserting or replacing it.
	SaveMinion(ctx context.Context, minion models.Minion) error

	// GetMinion fetches a minion by id.
	GetMinion(ctx context.Context, id string) (*models.Minion, error)

	// ListMinions returns minions in the given order. A non-positive
	// limit disables pagination.
	ListMinions(ctx context.Context, sort MinionSort, limit, offset int) ([]models.Minion, error)

	// DeleteMinion removes a single minion row.
	DeleteMinion(ctx context.Context, id string) error

	// PruneMinions deletes every minion whose id is not in knownIDs and
	// reports how many rows were dropped. An empty knownIDs clears the
	// table.
	PruneMinions(ctx context.Context, knownIDs []string) (int64, error)
}

// EventStore manages the captured event log.
type EventStore interface {
	// InsertEvent appends an event.
	InsertEvent(ctx context.Context, event models.Event) error

	// GetEvent fetches an event by id.
	GetEvent(ctx context.Context, id string) (*models.Event, error)

	// ListEvents returns events newest first. A non-positive limit
	// disables pagination.
	ListEvents(ctx context.Context, limit, offset int) ([]models.Event, error)
}

// JobStore manages observed jobs and their per-minion returns.
type JobStore interface {
	// InsertJob records a newly observed job.
	InsertJob(ctx context.Context, job models.Job) error

	// GetJobByJID fetches a job by its master-assigned jid.
	GetJobByJID(ctx context.Context, jid string) (*models.Job, error)

	// ListJobs returns jobs newest first. A non-positive limit disables
	// pagination.
	ListJobs(ctx context.Context, limit, offset int) ([]models.Job, error)

	// InsertJobReturn records a single minion's return for a job.
	InsertJobReturn(ctx context.Context, ret models.JobReturn) error

	// ListJobReturns returns all returns recorded for a job.
	ListJobReturns(ctx context.Context, jobID string) ([]models.JobReturn, error)
}

// GroupStore manages permission groups and their memberships.
type GroupStore interface {
	// CreateGroup persists a new permission group.
	CreateGroup(ctx context.Context, group models.PermissionGroup) error

	// GetGroup fetches a group by id.
	GetGroup(ctx context.Context, id string) (*models.PermissionGroup, error)

	// ListGroups returns groups ordered by name. A non-positive limit
	// disables pagination.
	ListGroups(ctx context.Context, limit, offset int) ([]models.PermissionGroup, error)

	// UpdateGroup replaces the mutable fields of an existing group.
	UpdateGroup(ctx context.Context, group models.PermissionGroup) error

	// DeleteGroup removes a group and its memberships.
	DeleteGroup(ctx context.Context, id string) error

	// AddUserToGroup inserts a membership. Adding an existing membership
	// returns ErrAlreadyExists.
	AddUserToGroup(ctx context.Context, userID, groupID string) error

	// RemoveUserFromGroup deletes a membership. Removing an absent
	// membership is not an error.
	RemoveUserFromGroup(ctx context.Context, userID, groupID string) error

	// IsUserInGroup reports whether the membership exists.
	IsUserInGroup(ctx context.Context, userID, groupID string) (bool, error)

	// ListGroupsForUser returns the groups a user belongs to, ordered by
	// name.
	ListGroupsForUser(ctx context.Context, userID string) ([]models.PermissionGroup, error)

	// ListUsersForGroup returns the members of a group, ordered by
	// username.
	ListUsersForGroup(ctx context.Context, groupID string) ([]models.User, error)
}

// PresetStore manages saved minion filter presets.
type PresetStore interface {
	// CreatePreset persists a new preset.
	CreatePreset(ctx context.Context, preset models.MinionPreset) error

	// GetPreset fetches a preset by id.
	GetPreset(ctx context.Context, id string) (*models.MinionPreset, error)

	// ListPresets returns all presets ordered by name.
	ListPresets(ctx context.Context) ([]models.MinionPreset, error)

	// UpdatePreset replaces the mutable fields of an existing preset.
	UpdatePreset(ctx context.Context, preset models.MinionPreset) error

	// DeletePreset removes a preset.
	DeletePreset(ctx context.Context, id string) error
}

// Store is the full persistence surface consumed by the control plane.
type Store interface {
	UserStore
	SessionStore
	MinionStore
	EventStore
	JobStore
	GroupStore
	PresetStore

	// Counts returns the row counters for the status endpoint.
	Counts(ctx context.Context) (Counts, error)

	// Close releases the underlying resources.
	Close() error
}
