// Package memory provides an in-memory Store used by tests and by
// ephemeral deployments that do not need persistence across restarts.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/resalt-dev/resalt/pkg/models"
	"github.com/resalt-dev/resalt/pkg/storage"
)

// Store is a map-backed implementation of storage.Store. All methods
// are safe for concurrent use. Values are copied on the way in and out
// so callers can never mutate shared state.
type Store struct {
	mu sync.RWMutex

	users    map[string]models.User
	sessions map[string]models.SessionToken
	minions  map[string]models.Minion
	groups   map[string]models.PermissionGroup
	members  map[string]map[string]struct{} // group id -> member user ids
	presets  map[string]models.MinionPreset

	events []models.Event
	jobs   []models.Job
	rets   []models.JobReturn
}

var _ storage.Store = (*Store)(nil)

// New returns an empty in-memory store.
func New() *Store {
	return &Store{
		users:    make(map[string]models.User),
		sessions: make(map[string]models.SessionToken),
		minions:  make(map[string]models.Minion),
		groups:   make(map[string]models.PermissionGroup),
		members:  make(map[string]map[string]struct{}),
		presets:  make(map[string]models.MinionPreset),
	}
}

// Close implements storage.Store. It is a no-op for the memory backend.
func (*Store) Close() error {
	return nil
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTimePtr(t *models.Time) *models.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneInt(i *int) *int {
	if i == nil {
		return nil
	}
	v := *i
	return &v
}

func cloneUser(u models.User) models.User {
	u.Password = cloneString(u.Password)
	u.LastLogin = cloneTimePtr(u.LastLogin)
	u.Email = cloneString(u.Email)
	u.DirectoryRef = cloneString(u.DirectoryRef)
	return u
}

func cloneSession(s models.SessionToken) models.SessionToken {
	s.SaltTokenBlob = cloneString(s.SaltTokenBlob)
	return s
}

func cloneMinion(m models.Minion) models.Minion {
	m.Grains = cloneString(m.Grains)
	m.Pillars = cloneString(m.Pillars)
	m.Pkgs = cloneString(m.Pkgs)
	m.LastUpdatedGrains = cloneTimePtr(m.LastUpdatedGrains)
	m.LastUpdatedPillars = cloneTimePtr(m.LastUpdatedPillars)
	m.LastUpdatedPkgs = cloneTimePtr(m.LastUpdatedPkgs)
	m.Conformity = cloneString(m.Conformity)
	m.ConformitySuccess = cloneInt(m.ConformitySuccess)
	m.ConformityIncorrect = cloneInt(m.ConformityIncorrect)
	m.ConformityError = cloneInt(m.ConformityError)
	m.LastUpdatedConformity = cloneTimePtr(m.LastUpdatedConformity)
	m.OSType = cloneString(m.OSType)
	return m
}

func cloneGroup(g models.PermissionGroup) models.PermissionGroup {
	g.DirectoryRef = cloneString(g.DirectoryRef)
	return g
}

func cloneJob(j models.Job) models.Job {
	j.User = cloneString(j.User)
	j.EventID = cloneString(j.EventID)
	return j
}

// paginate applies limit/offset to a slice already in final order.
func paginate[T any](items []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	out := make([]T, len(items))
	copy(out, items)
	return out
}

// CreateUser implements storage.UserStore.
func (s *Store) CreateUser(_ context.Context, user models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.ID]; ok {
		return storage.ErrAlreadyExists
	}
	for _, u := range s.users {
		if u.Username == user.Username {
			return storage.ErrAlreadyExists
		}
	}
	s.users[user.ID] = cloneUser(user)
	return nil
}

// GetUser implements storage.UserStore.
func (s *Store) GetUser(_ context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := cloneUser(u)
	return &out, nil
}

// GetUserByUsername implements storage.UserStore.
func (s *Store) GetUserByUsername(_ context.Context, username string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Username == username {
			out := cloneUser(u)
			return &out, nil
		}
	}
	return nil, storage.ErrNotFound
}

// ListUsers implements storage.UserStore.
func (s *Store) ListUsers(_ context.Context, limit, offset int) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make([]models.User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, cloneUser(u))
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return paginate(users, limit, offset), nil
}

// UpdateUser implements storage.UserStore.
func (s *Store) UpdateUser(_ context.Context, user models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.ID]; !ok {
		return storage.ErrNotFound
	}
	for id, u := range s.users {
		if id != user.ID && u.Username == user.Username {
			return storage.ErrAlreadyExists
		}
	}
	s.users[user.ID] = cloneUser(user)
	return nil
}

// DeleteUser implements storage.UserStore. Sessions and memberships of
// the user are removed with it.
func (s *Store) DeleteUser(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.users, id)
	for sid, sess := range s.sessions {
		if sess.UserID == id {
			delete(s.sessions, sid)
		}
	}
	for _, members := range s.members {
		delete(members, id)
	}
	return nil
}

// CreateSession implements storage.SessionStore.
func (s *Store) CreateSession(_ context.Context, session models.SessionToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[session.ID]; ok {
		return storage.ErrAlreadyExists
	}
	s.sessions[session.ID] = cloneSession(session)
	return nil
}

// GetSession implements storage.SessionStore.
func (s *Store) GetSession(_ context.Context, id string) (*models.SessionToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := cloneSession(sess)
	return &out, nil
}

// SetSessionSaltToken implements storage.SessionStore.
func (s *Store) SetSessionSaltToken(_ context.Context, id string, blob *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return storage.ErrNotFound
	}
	sess.SaltTokenBlob = cloneString(blob)
	s.sessions[id] = sess
	return nil
}

// DeleteSession implements storage.SessionStore.
func (s *Store) DeleteSession(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

// DeleteExpiredSessions implements storage.SessionStore.
func (s *Store) DeleteExpiredSessions(_ context.Context, issuedBefore time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, sess := range s.sessions {
		if sess.IssuedAt.Before(issuedBefore) {
			delete(s.sessions, id)
			n++
		}
	}
	return n, nil
}

// SaveMinion implements storage.MinionStore.
func (s *Store) SaveMinion(_ context.Context, minion models.Minion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.minions[minion.ID] = cloneMinion(minion)
	return nil
}

// GetMinion implements storage.MinionStore.
func (s *Store) GetMinion(_ context.Context, id string) (*models.Minion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.minions[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := cloneMinion(m)
	return &out, nil
}

// ListMinions implements storage.MinionStore.
func (s *Store) ListMinions(_ context.Context, order storage.MinionSort, limit, offset int) ([]models.Minion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	minions := make([]models.Minion, 0, len(s.minions))
	for _, m := range s.minions {
		minions = append(minions, cloneMinion(m))
	}
	sortMinions(minions, order)
	return paginate(minions, limit, offset), nil
}

// sortMinions orders minions in place. Absent optional values sort
// before present ones, matching SQL NULL ordering.
func sortMinions(minions []models.Minion, order storage.MinionSort) {
	strLess := func(a, b *string) bool {
		if a == nil {
			return b != nil
		}
		if b == nil {
			return false
		}
		return *a < *b
	}
	intLess := func(a, b *int) bool {
		if a == nil {
			return b != nil
		}
		if b == nil {
			return false
		}
		return *a < *b
	}
	var less func(a, b models.Minion) bool
	switch order {
	case storage.MinionSortIDDesc:
		less = func(a, b models.Minion) bool { return a.ID > b.ID }
	case storage.MinionSortLastSeenAsc:
		less = func(a, b models.Minion) bool { return a.LastSeen.Before(b.LastSeen.Time) }
	case storage.MinionSortLastSeenDesc:
		less = func(a, b models.Minion) bool { return b.LastSeen.Before(a.LastSeen.Time) }
	case storage.MinionSortOSTypeAsc:
		less = func(a, b models.Minion) bool { return strLess(a.OSType, b.OSType) }
	case storage.MinionSortOSTypeDesc:
		less = func(a, b models.Minion) bool { return strLess(b.OSType, a.OSType) }
	case storage.MinionSortConformityAsc:
		less = func(a, b models.Minion) bool { return intLess(a.ConformitySuccess, b.ConformitySuccess) }
	case storage.MinionSortConformityDesc:
		less = func(a, b models.Minion) bool { return intLess(b.ConformitySuccess, a.ConformitySuccess) }
	case storage.MinionSortIncorrectAsc:
		less = func(a, b models.Minion) bool { return intLess(a.ConformityIncorrect, b.ConformityIncorrect) }
	case storage.MinionSortIncorrectDesc:
		less = func(a, b models.Minion) bool { return intLess(b.ConformityIncorrect, a.ConformityIncorrect) }
	case storage.MinionSortErrorAsc:
		less = func(a, b models.Minion) bool { return intLess(a.ConformityError, b.ConformityError) }
	case storage.MinionSortErrorDesc:
		less = func(a, b models.Minion) bool { return intLess(b.ConformityError, a.ConformityError) }
	default:
		less = func(a, b models.Minion) bool { return a.ID < b.ID }
	}
	sort.SliceStable(minions, func(i, j int) bool { return less(minions[i], minions[j]) })
}

// DeleteMinion implements storage.MinionStore.
func (s *Store) DeleteMinion(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.minions[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.minions, id)
	return nil
}

// PruneMinions implements storage.MinionStore.
func (s *Store) PruneMinions(_ context.Context, knownIDs []string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	known := make(map[string]struct{}, len(knownIDs))
	for _, id := range knownIDs {
		known[id] = struct{}{}
	}
	var n int64
	for id := range s.minions {
		if _, ok := known[id]; !ok {
			delete(s.minions, id)
			n++
		}
	}
	return n, nil
}

// InsertEvent implements storage.EventStore.
func (s *Store) InsertEvent(_ context.Context, event models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// GetEvent implements storage.EventStore.
func (s *Store) GetEvent(_ context.Context, id string) (*models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.events {
		if e.ID == id {
			out := e
			return &out, nil
		}
	}
	return nil, storage.ErrNotFound
}

// ListEvents implements storage.EventStore. Events are returned newest
// first.
func (s *Store) ListEvents(_ context.Context, limit, offset int) ([]models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	events := make([]models.Event, len(s.events))
	for i, e := range s.events {
		events[len(s.events)-1-i] = e
	}
	sort.SliceStable(events, func(i, j int) bool { return events[j].Timestamp.Before(events[i].Timestamp.Time) })
	return paginate(events, limit, offset), nil
}

// InsertJob implements storage.JobStore.
func (s *Store) InsertJob(_ context.Context, job models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs {
		if j.JID == job.JID {
			return storage.ErrAlreadyExists
		}
	}
	s.jobs = append(s.jobs, cloneJob(job))
	return nil
}

// GetJobByJID implements storage.JobStore.
func (s *Store) GetJobByJID(_ context.Context, jid string) (*models.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, j := range s.jobs {
		if j.JID == jid {
			out := cloneJob(j)
			return &out, nil
		}
	}
	return nil, storage.ErrNotFound
}

// ListJobs implements storage.JobStore. Jobs are returned newest first.
func (s *Store) ListJobs(_ context.Context, limit, offset int) ([]models.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	jobs := make([]models.Job, len(s.jobs))
	for i, j := range s.jobs {
		jobs[len(s.jobs)-1-i] = cloneJob(j)
	}
	sort.SliceStable(jobs, func(i, j int) bool { return jobs[j].Timestamp.Before(jobs[i].Timestamp.Time) })
	return paginate(jobs, limit, offset), nil
}

// InsertJobReturn implements storage.JobStore.
func (s *Store) InsertJobReturn(_ context.Context, ret models.JobReturn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rets = append(s.rets, ret)
	return nil
}

// ListJobReturns implements storage.JobStore.
func (s *Store) ListJobReturns(_ context.Context, jobID string) ([]models.JobReturn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []models.JobReturn{}
	for _, r := range s.rets {
		if r.JobID == jobID {
			out = append(out, r)
		}
	}
	return out, nil
}

// CreateGroup implements storage.GroupStore.
func (s *Store) CreateGroup(_ context.Context, group models.PermissionGroup) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[group.ID]; ok {
		return storage.ErrAlreadyExists
	}
	for _, g := range s.groups {
		if g.Name == group.Name {
			return storage.ErrAlreadyExists
		}
	}
	s.groups[group.ID] = cloneGroup(group)
	s.members[group.ID] = make(map[string]struct{})
	return nil
}

// GetGroup implements storage.GroupStore.
func (s *Store) GetGroup(_ context.Context, id string) (*models.PermissionGroup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groups[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := cloneGroup(g)
	return &out, nil
}

// ListGroups implements storage.GroupStore.
func (s *Store) ListGroups(_ context.Context, limit, offset int) ([]models.PermissionGroup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	groups := make([]models.PermissionGroup, 0, len(s.groups))
	for _, g := range s.groups {
		groups = append(groups, cloneGroup(g))
	}
	sort.Slice(groups, func(i, j int) bool {
		return strings.ToLower(groups[i].Name) < strings.ToLower(groups[j].Name)
	})
	return paginate(groups, limit, offset), nil
}

// UpdateGroup implements storage.GroupStore.
func (s *Store) UpdateGroup(_ context.Context, group models.PermissionGroup) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[group.ID]; !ok {
		return storage.ErrNotFound
	}
	for id, g := range s.groups {
		if id != group.ID && g.Name == group.Name {
			return storage.ErrAlreadyExists
		}
	}
	s.groups[group.ID] = cloneGroup(group)
	return nil
}

// DeleteGroup implements storage.GroupStore.
func (s *Store) DeleteGroup(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.groups, id)
	delete(s.members, id)
	return nil
}

// AddUserToGroup implements storage.GroupStore.
func (s *Store) AddUserToGroup(_ context.Context, userID, groupID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[userID]; !ok {
		return storage.ErrNotFound
	}
	members, ok := s.members[groupID]
	if !ok {
		return storage.ErrNotFound
	}
	if _, ok := members[userID]; ok {
		return storage.ErrAlreadyExists
	}
	members[userID] = struct{}{}
	return nil
}

// RemoveUserFromGroup implements storage.GroupStore.
func (s *Store) RemoveUserFromGroup(_ context.Context, userID, groupID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if members, ok := s.members[groupID]; ok {
		delete(members, userID)
	}
	return nil
}

// IsUserInGroup implements storage.GroupStore.
func (s *Store) IsUserInGroup(_ context.Context, userID, groupID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	members, ok := s.members[groupID]
	if !ok {
		return false, nil
	}
	_, ok = members[userID]
	return ok, nil
}

// ListGroupsForUser implements storage.GroupStore.
func (s *Store) ListGroupsForUser(_ context.Context, userID string) ([]models.PermissionGroup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	groups := []models.PermissionGroup{}
	for gid, members := range s.members {
		if _, ok := members[userID]; ok {
			groups = append(groups, cloneGroup(s.groups[gid]))
		}
	}
	sort.Slice(groups, func(i, j int) bool {
		return strings.ToLower(groups[i].Name) < strings.ToLower(groups[j].Name)
	})
	return groups, nil
}

// ListUsersForGroup implements storage.GroupStore.
func (s *Store) ListUsersForGroup(_ context.Context, groupID string) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	members, ok := s.members[groupID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	users := []models.User{}
	for uid := range members {
		if u, ok := s.users[uid]; ok {
			users = append(users, cloneUser(u))
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}

// CreatePreset implements storage.PresetStore.
func (s *Store) CreatePreset(_ context.Context, preset models.MinionPreset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.presets[preset.ID]; ok {
		return storage.ErrAlreadyExists
	}
	s.presets[preset.ID] = preset
	return nil
}

// GetPreset implements storage.PresetStore.
func (s *Store) GetPreset(_ context.Context, id string) (*models.MinionPreset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.presets[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := p
	return &out, nil
}

// ListPresets implements storage.PresetStore.
func (s *Store) ListPresets(_ context.Context) ([]models.MinionPreset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	presets := make([]models.MinionPreset, 0, len(s.presets))
	for _, p := range s.presets {
		presets = append(presets, p)
	}
	sort.Slice(presets, func(i, j int) bool {
		return strings.ToLower(presets[i].Name) < strings.ToLower(presets[j].Name)
	})
	return presets, nil
}

// UpdatePreset implements storage.PresetStore.
func (s *Store) UpdatePreset(_ context.Context, preset models.MinionPreset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.presets[preset.ID]; !ok {
		return storage.ErrNotFound
	}
	s.presets[preset.ID] = preset
	return nil
}

// DeletePreset implements storage.PresetStore.
func (s *Store) DeletePreset(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.presets[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.presets, id)
	return nil
}

// Counts implements storage.Store.
func (s *Store) Counts(_ context.Context) (storage.Counts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return storage.Counts{
		Users:    int64(len(s.users)),
		Minions:  int64(len(s.minions)),
		Events:   int64(len(s.events)),
		Jobs:     int64(len(s.jobs)),
		Sessions: int64(len(s.sessions)),
	}, nil
}
