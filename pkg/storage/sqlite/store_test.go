package sqlite

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resalt-dev/resalt/pkg/models"
	"github.com/resalt-dev/resalt/pkg/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := Open(t.Context(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(db)
}

func strp(s string) *string { return &s }
func intp(n int) *int       { return &n }

func at(hour, minute int) models.Time {
	return models.NewTime(time.Date(2024, 5, 10, hour, minute, 0, 0, time.UTC))
}

func TestUserLifecycle(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := t.Context()

	user := models.User{
		ID:       "usr_1",
		Username: "alice",
		Password: strp("$2a$10$hash"),
		Perms:    `[".*"]`,
	}
	require.NoError(t, s.CreateUser(ctx, user))

	err := s.CreateUser(ctx, models.User{ID: "usr_2", Username: "alice", Perms: "[]"})
	assert.ErrorIs(t, err, storage.ErrAlreadyExists)

	got, err := s.GetUser(ctx, "usr_1")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)
	require.NotNil(t, got.Password)
	assert.Equal(t, "$2a$10$hash", *got.Password)
	assert.Nil(t, got.LastLogin)
	assert.Nil(t, got.DirectoryRef)

	byName, err := s.GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "usr_1", byName.ID)

	login := at(12, 0)
	got.LastLogin = &login
	got.Email = strp("alice@example.com")
	require.NoError(t, s.UpdateUser(ctx, *got))

	updated, err := s.GetUser(ctx, "usr_1")
	require.NoError(t, err)
	require.NotNil(t, updated.LastLogin)
	assert.True(t, updated.LastLogin.Equal(login.Time))
	require.NotNil(t, updated.Email)
	assert.Equal(t, "alice@example.com", *updated.Email)

	require.NoError(t, s.CreateUser(ctx, models.User{ID: "usr_3", Username: "bob", Perms: "[]"}))
	users, err := s.ListUsers(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "alice", users[0].Username)
	assert.Equal(t, "bob", users[1].Username)

	require.NoError(t, s.DeleteUser(ctx, "usr_1"))
	_, err = s.GetUser(ctx, "usr_1")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	err = s.UpdateUser(ctx, models.User{ID: "usr_1", Username: "gone", Perms: "[]"})
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.ErrorIs(t, s.DeleteUser(ctx, "usr_1"), storage.ErrNotFound)
}

func TestSessionLifecycle(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := t.Context()

	require.NoError(t, s.CreateUser(ctx, models.User{ID: "usr_1", Username: "alice", Perms: "[]"}))

	sess := models.SessionToken{ID: "rst_aaaa", UserID: "usr_1", IssuedAt: at(9, 0)}
	require.NoError(t, s.CreateSession(ctx, sess))

	got, err := s.GetSession(ctx, "rst_aaaa")
	require.NoError(t, err)
	assert.Equal(t, "usr_1", got.UserID)
	assert.True(t, got.IssuedAt.Equal(at(9, 0).Time))
	assert.Nil(t, got.SaltTokenBlob)

	require.NoError(t, s.SetSessionSaltToken(ctx, "rst_aaaa", strp(`{"token":"x"}`)))
	got, err = s.GetSession(ctx, "rst_aaaa")
	require.NoError(t, err)
	require.NotNil(t, got.SaltTokenBlob)
	assert.Equal(t, `{"token":"x"}`, *got.SaltTokenBlob)

	require.NoError(t, s.SetSessionSaltToken(ctx, "rst_aaaa", nil))
	got, err = s.GetSession(ctx, "rst_aaaa")
	require.NoError(t, err)
	assert.Nil(t, got.SaltTokenBlob)

	err = s.SetSessionSaltToken(ctx, "rst_missing", nil)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// Deleting a session twice is not an error.
	require.NoError(t, s.DeleteSession(ctx, "rst_aaaa"))
	require.NoError(t, s.DeleteSession(ctx, "rst_aaaa"))
}

func TestDeleteExpiredSessions(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := t.Context()

	require.NoError(t, s.CreateUser(ctx, models.User{ID: "usr_1", Username: "alice", Perms: "[]"}))
	require.NoError(t, s.CreateSession(ctx, models.SessionToken{ID: "rst_old_session_00001", UserID: "usr_1", IssuedAt: at(8, 0)}))
	require.NoError(t, s.CreateSession(ctx, models.SessionToken{ID: "rst_new_session_00001", UserID: "usr_1", IssuedAt: at(11, 0)}))

	n, err := s.DeleteExpiredSessions(ctx, at(10, 0).Time)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = s.GetSession(ctx, "rst_old_session_00001")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = s.GetSession(ctx, "rst_new_session_00001")
	require.NoError(t, err)
}

func TestDeleteUserCascadesSessions(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := t.Context()

	require.NoError(t, s.CreateUser(ctx, models.User{ID: "usr_1", Username: "alice", Perms: "[]"}))
	require.NoError(t, s.CreateSession(ctx, models.SessionToken{ID: "rst_cascade_000000001", UserID: "usr_1", IssuedAt: at(9, 0)}))

	require.NoError(t, s.DeleteUser(ctx, "usr_1"))
	_, err := s.GetSession(ctx, "rst_cascade_000000001")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestMinionSaveAndList(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := t.Context()

	require.NoError(t, s.SaveMinion(ctx, models.Minion{
		ID: "web1", LastSeen: at(10, 0),
		Grains: strp(`{"os":"Debian"}`), OSType: strp("Debian"),
		ConformitySuccess: intp(5),
	}))
	require.NoError(t, s.SaveMinion(ctx, models.Minion{
		ID: "web2", LastSeen: at(11, 0), ConformitySuccess: intp(9),
	}))
	require.NoError(t, s.SaveMinion(ctx, models.Minion{
		ID: "db1", LastSeen: at(9, 0),
	}))

	got, err := s.GetMinion(ctx, "web1")
	require.NoError(t, err)
	require.NotNil(t, got.Grains)
	assert.Equal(t, `{"os":"Debian"}`, *got.Grains)
	assert.Nil(t, got.Conformity)

	// Saving again replaces the full row.
	require.NoError(t, s.SaveMinion(ctx, models.Minion{ID: "web1", LastSeen: at(12, 0)}))
	got, err = s.GetMinion(ctx, "web1")
	require.NoError(t, err)
	assert.Nil(t, got.Grains)
	assert.True(t, got.LastSeen.Equal(at(12, 0).Time))

	ids := func(ms []models.Minion) []string {
		out := make([]string, len(ms))
		for i, m := range ms {
			out[i] = m.ID
		}
		return out
	}

	byID, err := s.ListMinions(ctx, storage.MinionSortIDAsc, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"db1", "web1", "web2"}, ids(byID))

	bySeen, err := s.ListMinions(ctx, storage.MinionSortLastSeenDesc, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"web1", "web2", "db1"}, ids(bySeen))

	// Minions without a conformity score sort after scored ones on DESC.
	byConf, err := s.ListMinions(ctx, storage.MinionSortConformityDesc, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"web2", "db1", "web1"}, ids(byConf))

	page, err := s.ListMinions(ctx, storage.MinionSortIDAsc, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"web1"}, ids(page))
}

func TestPruneMinions(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := t.Context()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.SaveMinion(ctx, models.Minion{ID: id, LastSeen: at(10, 0)}))
	}

	n, err := s.PruneMinions(ctx, []string{"a", "c"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	_, err = s.GetMinion(ctx, "b")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	n, err = s.PruneMinions(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestEventInsertAndList(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := t.Context()

	for i, tag := range []string{"salt/auth", "salt/job/1/new", "salt/job/1/ret/web1"} {
		require.NoError(t, s.InsertEvent(ctx, models.Event{
			ID:        "evt_" + tag,
			Timestamp: at(10, i),
			Tag:       tag,
			Data:      "{}",
		}))
	}

	events, err := s.ListEvents(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "salt/job/1/ret/web1", events[0].Tag)
	assert.Equal(t, "salt/auth", events[2].Tag)

	page, err := s.ListEvents(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "salt/job/1/new", page[0].Tag)

	got, err := s.GetEvent(ctx, "evt_salt/auth")
	require.NoError(t, err)
	assert.Equal(t, "salt/auth", got.Tag)

	_, err = s.GetEvent(ctx, "evt_missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestJobsAndReturns(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := t.Context()

	job := models.Job{
		ID: "job_1", Timestamp: at(10, 0), JID: "20240510100000000000",
		User: strp("alice"), EventID: strp("evt_1"),
	}
	require.NoError(t, s.InsertJob(ctx, job))
	err := s.InsertJob(ctx, models.Job{ID: "job_2", Timestamp: at(10, 1), JID: job.JID})
	assert.ErrorIs(t, err, storage.ErrAlreadyExists)

	got, err := s.GetJobByJID(ctx, job.JID)
	require.NoError(t, err)
	assert.Equal(t, "job_1", got.ID)
	require.NotNil(t, got.User)
	assert.Equal(t, "alice", *got.User)

	_, err = s.GetJobByJID(ctx, "999")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, s.InsertJob(ctx, models.Job{ID: "job_3", Timestamp: at(11, 0), JID: "20240510110000000000"}))
	jobs, err := s.ListJobs(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "job_3", jobs[0].ID)

	require.NoError(t, s.InsertJobReturn(ctx, models.JobReturn{
		ID: "jret_2", Timestamp: at(10, 2), JID: job.JID, JobID: "job_1",
		EventID: "evt_3", MinionID: "web2",
	}))
	require.NoError(t, s.InsertJobReturn(ctx, models.JobReturn{
		ID: "jret_1", Timestamp: at(10, 1), JID: job.JID, JobID: "job_1",
		EventID: "evt_2", MinionID: "web1",
	}))

	rets, err := s.ListJobReturns(ctx, "job_1")
	require.NoError(t, err)
	require.Len(t, rets, 2)
	assert.Equal(t, "web1", rets[0].MinionID)
	assert.Equal(t, "web2", rets[1].MinionID)

	none, err := s.ListJobReturns(ctx, "job_3")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestGroupMembership(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := t.Context()

	require.NoError(t, s.CreateUser(ctx, models.User{ID: "usr_1", Username: "alice", Perms: "[]"}))
	require.NoError(t, s.CreateGroup(ctx, models.PermissionGroup{ID: "grp_1", Name: "admins", Perms: `["admin.superadmin"]`}))

	err := s.CreateGroup(ctx, models.PermissionGroup{ID: "grp_2", Name: "admins"})
	assert.ErrorIs(t, err, storage.ErrAlreadyExists)

	require.NoError(t, s.AddUserToGroup(ctx, "usr_1", "grp_1"))
	assert.ErrorIs(t, s.AddUserToGroup(ctx, "usr_1", "grp_1"), storage.ErrAlreadyExists)
	assert.ErrorIs(t, s.AddUserToGroup(ctx, "usr_ghost", "grp_1"), storage.ErrNotFound)

	in, err := s.IsUserInGroup(ctx, "usr_1", "grp_1")
	require.NoError(t, err)
	assert.True(t, in)

	groups, err := s.ListGroupsForUser(ctx, "usr_1")
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "admins", groups[0].Name)

	members, err := s.ListUsersForGroup(ctx, "grp_1")
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, "alice", members[0].Username)

	_, err = s.ListUsersForGroup(ctx, "grp_missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// Removing an absent membership is a no-op.
	require.NoError(t, s.RemoveUserFromGroup(ctx, "usr_1", "grp_1"))
	require.NoError(t, s.RemoveUserFromGroup(ctx, "usr_1", "grp_1"))
	in, err = s.IsUserInGroup(ctx, "usr_1", "grp_1")
	require.NoError(t, err)
	assert.False(t, in)

	require.NoError(t, s.AddUserToGroup(ctx, "usr_1", "grp_1"))
	require.NoError(t, s.DeleteGroup(ctx, "grp_1"))
	in, err = s.IsUserInGroup(ctx, "usr_1", "grp_1")
	require.NoError(t, err)
	assert.False(t, in)

	_, err = s.GetGroup(ctx, "grp_1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestPresetLifecycle(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := t.Context()

	p := models.MinionPreset{ID: "pst_1", Name: "debian-web", Filter: `[{"fieldType":"grain","field":"os","operand":"e","value":"Debian"}]`}
	require.NoError(t, s.CreatePreset(ctx, p))

	got, err := s.GetPreset(ctx, "pst_1")
	require.NoError(t, err)
	assert.Equal(t, p, *got)

	p.Name = "all-web"
	require.NoError(t, s.UpdatePreset(ctx, p))
	got, err = s.GetPreset(ctx, "pst_1")
	require.NoError(t, err)
	assert.Equal(t, "all-web", got.Name)

	list, err := s.ListPresets(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, s.DeletePreset(ctx, "pst_1"))
	assert.ErrorIs(t, s.DeletePreset(ctx, "pst_1"), storage.ErrNotFound)
	assert.ErrorIs(t, s.UpdatePreset(ctx, p), storage.ErrNotFound)
}

func TestCounts(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := t.Context()

	require.NoError(t, s.CreateUser(ctx, models.User{ID: "usr_1", Username: "alice", Perms: "[]"}))
	require.NoError(t, s.CreateSession(ctx, models.SessionToken{ID: "rst_counts_000000001", UserID: "usr_1", IssuedAt: at(9, 0)}))
	require.NoError(t, s.SaveMinion(ctx, models.Minion{ID: "web1", LastSeen: at(10, 0)}))
	require.NoError(t, s.InsertEvent(ctx, models.Event{ID: "evt_1", Timestamp: at(10, 0), Tag: "salt/auth", Data: "{}"}))

	counts, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, storage.Counts{Users: 1, Minions: 1, Events: 1, Jobs: 0, Sessions: 1}, counts)
}
