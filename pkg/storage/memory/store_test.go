package memory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resalt-dev/resalt/pkg/models"
	"github.com/resalt-dev/resalt/pkg/storage"
)

func strp(s string) *string { return &s }
func intp(n int) *int       { return &n }

func at(hour, minute int) models.Time {
	return models.NewTime(time.Date(2024, 5, 10, hour, minute, 0, 0, time.UTC))
}

func TestUserUniqueness(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := t.Context()

	require.NoError(t, s.CreateUser(ctx, models.User{ID: "usr_1", Username: "alice", Perms: "[]"}))
	assert.ErrorIs(t, s.CreateUser(ctx, models.User{ID: "usr_2", Username: "alice", Perms: "[]"}),
		storage.ErrAlreadyExists)

	require.NoError(t, s.CreateUser(ctx, models.User{ID: "usr_2", Username: "bob", Perms: "[]"}))
	err := s.UpdateUser(ctx, models.User{ID: "usr_2", Username: "alice", Perms: "[]"})
	assert.ErrorIs(t, err, storage.ErrAlreadyExists)
}

func TestDeleteUserCascades(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := t.Context()

	require.NoError(t, s.CreateUser(ctx, models.User{ID: "usr_1", Username: "alice", Perms: "[]"}))
	require.NoError(t, s.CreateGroup(ctx, models.PermissionGroup{ID: "grp_1", Name: "ops"}))
	require.NoError(t, s.AddUserToGroup(ctx, "usr_1", "grp_1"))
	require.NoError(t, s.CreateSession(ctx, models.SessionToken{ID: "rst_x_0000000000000001", UserID: "usr_1", IssuedAt: at(9, 0)}))

	require.NoError(t, s.DeleteUser(ctx, "usr_1"))

	_, err := s.GetSession(ctx, "rst_x_0000000000000001")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	in, err := s.IsUserInGroup(ctx, "usr_1", "grp_1")
	require.NoError(t, err)
	assert.False(t, in)
}

func TestReturnedValuesAreCopies(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := t.Context()

	require.NoError(t, s.SaveMinion(ctx, models.Minion{
		ID: "web1", LastSeen: at(10, 0), Grains: strp(`{"os":"Debian"}`),
	}))

	got, err := s.GetMinion(ctx, "web1")
	require.NoError(t, err)
	*got.Grains = "mutated"

	again, err := s.GetMinion(ctx, "web1")
	require.NoError(t, err)
	assert.Equal(t, `{"os":"Debian"}`, *again.Grains)
}

func TestMinionSortAndPagination(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := t.Context()

	require.NoError(t, s.SaveMinion(ctx, models.Minion{ID: "web1", LastSeen: at(10, 0), ConformitySuccess: intp(5)}))
	require.NoError(t, s.SaveMinion(ctx, models.Minion{ID: "web2", LastSeen: at(11, 0), ConformitySuccess: intp(9)}))
	require.NoError(t, s.SaveMinion(ctx, models.Minion{ID: "db1", LastSeen: at(9, 0)}))

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
	assert.Equal(t, []string{"web2", "web1", "db1"}, ids(bySeen))

	byConf, err := s.ListMinions(ctx, storage.MinionSortConformityDesc, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"web2", "web1", "db1"}, ids(byConf))

	page, err := s.ListMinions(ctx, storage.MinionSortIDAsc, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"web2"}, ids(page))

	past, err := s.ListMinions(ctx, storage.MinionSortIDAsc, 2, 10)
	require.NoError(t, err)
	assert.Empty(t, past)
}

func TestPruneMinions(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := t.Context()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.SaveMinion(ctx, models.Minion{ID: id, LastSeen: at(10, 0)}))
	}

	n, err := s.PruneMinions(ctx, []string{"b"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	left, err := s.ListMinions(ctx, storage.MinionSortIDAsc, 0, 0)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "b", left[0].ID)
}

func TestEventsNewestFirst(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := t.Context()

	for i := 0; i < 3; i++ {
		require.NoError(t, s.InsertEvent(ctx, models.Event{
			ID: models.NewEventID(), Timestamp: at(10, i), Tag: "salt/auth", Data: "{}",
		}))
	}

	events, err := s.ListEvents(ctx, 2, 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.True(t, events[0].Timestamp.After(events[1].Timestamp.Time))
}

func TestJobJIDUnique(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := t.Context()

	require.NoError(t, s.InsertJob(ctx, models.Job{ID: "job_1", Timestamp: at(10, 0), JID: "1"}))
	assert.ErrorIs(t, s.InsertJob(ctx, models.Job{ID: "job_2", Timestamp: at(10, 1), JID: "1"}),
		storage.ErrAlreadyExists)

	require.NoError(t, s.InsertJobReturn(ctx, models.JobReturn{
		ID: "jret_1", Timestamp: at(10, 2), JID: "1", JobID: "job_1", EventID: "evt_1", MinionID: "web1",
	}))
	rets, err := s.ListJobReturns(ctx, "job_1")
	require.NoError(t, err)
	require.Len(t, rets, 1)
	assert.Equal(t, "web1", rets[0].MinionID)
}

func TestExpiredSessionSweep(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := t.Context()

	require.NoError(t, s.CreateSession(ctx, models.SessionToken{ID: "rst_old_000000000001", UserID: "u", IssuedAt: at(8, 0)}))
	require.NoError(t, s.CreateSession(ctx, models.SessionToken{ID: "rst_new_000000000001", UserID: "u", IssuedAt: at(11, 0)}))

	n, err := s.DeleteExpiredSessions(ctx, at(10, 0).Time)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = s.GetSession(ctx, "rst_old_000000000001")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCounts(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := t.Context()

	require.NoError(t, s.CreateUser(ctx, models.User{ID: "usr_1", Username: "alice", Perms: "[]"}))
	require.NoError(t, s.SaveMinion(ctx, models.Minion{ID: "web1", LastSeen: at(10, 0)}))

	counts, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, storage.Counts{Users: 1, Minions: 1}, counts)
}
