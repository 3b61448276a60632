package v1

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/resalt-dev/resalt/pkg/errors"
	"github.com/resalt-dev/resalt/pkg/models"
	"github.com/resalt-dev/resalt/pkg/salt"
	"github.com/resalt-dev/resalt/pkg/storage"
)

func (a *testAPI) seedMinion(t *testing.T, id string) {
	t.Helper()
	require.NoError(t, a.store.SaveMinion(t.Context(), models.Minion{
		ID:       id,
		LastSeen: models.NewTime(time.Now()),
	}))
}

// A master rejection of a matured token triggers exactly one renewal and
// retry; the caller sees the retried result and the session keeps the
// renewed token.
func TestKeyListRenewsMaturedToken(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t)
	api.seedOperator(t, "alice", "p@ss", `["saltkey.*"]`)
	token := api.login(t, "alice", "p@ss", maturedToken(time.Now()))

	api.seedMinion(t, "web-1")
	api.seedMinion(t, "db-1")
	api.seedMinion(t, "gone-1")

	rejected := api.master.EXPECT().
		ListKeys(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, tok *salt.Token) ([]salt.MinionKey, error) {
			assert.Equal(t, "tok-old", tok.Token)
			return nil, errors.NewUnauthorizedError("token expired", nil)
		})
	renewed := api.master.EXPECT().
		Login(gomock.Any(), "alice", token).
		Return(freshToken(time.Now()), nil)
	served := api.master.EXPECT().
		ListKeys(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, tok *salt.Token) ([]salt.MinionKey, error) {
			assert.Equal(t, "tok-fresh", tok.Token)
			return []salt.MinionKey{
				{ID: "web-1", State: salt.KeyStateAccepted, Finger: "aa:bb"},
				{ID: "db-1", State: salt.KeyStatePending, Finger: "cc:dd"},
			}, nil
		})
	gomock.InOrder(rejected, renewed, served)

	rec := api.do(t, http.MethodGet, "/keys", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var keys []salt.MinionKey
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &keys))
	assert.Len(t, keys, 2)

	// The fleet view was pruned against the master's inventory.
	_, err := api.store.GetMinion(t.Context(), "gone-1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = api.store.GetMinion(t.Context(), "web-1")
	assert.NoError(t, err)

	// The renewed token replaced the cached one.
	session, err := api.store.GetSession(t.Context(), token)
	require.NoError(t, err)
	require.NotNil(t, session.SaltTokenBlob)
	cached, err := salt.UnmarshalBlob(*session.SaltTokenBlob)
	require.NoError(t, err)
	assert.Equal(t, "tok-fresh", cached.Token)
}

// A rejection of a token still inside the maturity window is not retried:
// the master refused it for some reason other than age.
func TestKeyListFreshTokenNotRetried(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t)
	api.seedOperator(t, "alice", "p@ss", `["saltkey.*"]`)
	token := api.login(t, "alice", "p@ss", freshToken(time.Now()))

	api.master.EXPECT().
		ListKeys(gomock.Any(), gomock.Any()).
		Return(nil, errors.NewUnauthorizedError("rejected", nil))

	rec := api.do(t, http.MethodGet, "/keys", token, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestKeyAccept(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t)
	api.seedOperator(t, "alice", "p@ss", `["saltkey.*"]`)
	token := api.login(t, "alice", "p@ss", freshToken(time.Now()))

	api.master.EXPECT().
		AcceptKey(gomock.Any(), gomock.Any(), salt.KeyStatePending, "web-1").
		Return(nil)

	rec := api.do(t, http.MethodPut, "/keys/minions_pre/web-1/accept", token, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestKeyMutateRejectsUnknownState(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t)
	api.seedOperator(t, "alice", "p@ss", `["saltkey.*"]`)
	token := api.login(t, "alice", "p@ss", freshToken(time.Now()))

	rec := api.do(t, http.MethodPut, "/keys/bogus/web-1/accept", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
