package v1

import (
	"encoding/json"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resalt-dev/resalt/pkg/models"
)

func (a *testAPI) seedMinionGrains(t *testing.T, id, grains string) {
	t.Helper()
	require.NoError(t, a.store.SaveMinion(t.Context(), models.Minion{
		ID:       id,
		LastSeen: models.NewTime(time.Now()),
		Grains:   &grains,
	}))
}

// Minions are grouped by the value at the queried grains path; minions
// that never reported the grain land in the "" bucket.
func TestGrainExplore(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t)
	api.seedOperator(t, "alice", "p@ss", `["minion.grainexplorer"]`)
	token := api.login(t, "alice", "p@ss", freshToken(time.Now()))

	api.seedMinionGrains(t, "web-1", `{"os": "Debian", "num_cpus": 4}`)
	api.seedMinionGrains(t, "web-2", `{"os": "Debian"}`)
	api.seedMinionGrains(t, "db-1", `{"os": "CentOS"}`)
	api.seedMinion(t, "legacy-1")

	rec := api.do(t, http.MethodGet, "/grains?query=os", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var buckets map[string][]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &buckets))
	assert.Equal(t, map[string][]string{
		"Debian": {"web-1", "web-2"},
		"CentOS": {"db-1"},
		"":       {"legacy-1"},
	}, buckets)
}

// The query is a gjson path, so nested grains are reachable.
func TestGrainExploreNestedPath(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t)
	api.seedOperator(t, "alice", "p@ss", `["minion.grainexplorer"]`)
	token := api.login(t, "alice", "p@ss", freshToken(time.Now()))

	api.seedMinionGrains(t, "web-1", `{"selinux": {"enabled": true}}`)
	api.seedMinionGrains(t, "web-2", `{"selinux": {"enabled": false}}`)

	rec := api.do(t, http.MethodGet, "/grains?query=selinux.enabled", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var buckets map[string][]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &buckets))
	assert.Equal(t, map[string][]string{
		"true":  {"web-1"},
		"false": {"web-2"},
	}, buckets)
}

// A filter narrows the fleet before bucketing.
func TestGrainExploreWithFilter(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t)
	api.seedOperator(t, "alice", "p@ss", `["minion.grainexplorer"]`)
	token := api.login(t, "alice", "p@ss", freshToken(time.Now()))

	api.seedMinionGrains(t, "web-1", `{"os": "Debian"}`)
	api.seedMinionGrains(t, "web-2", `{"os": "Ubuntu"}`)
	api.seedMinionGrains(t, "db-1", `{"os": "CentOS"}`)

	q := url.Values{}
	q.Set("query", "os")
	q.Set("filter", `[{"fieldType":"object","field":"id","operand":"sw","value":"web"}]`)

	rec := api.do(t, http.MethodGet, "/grains?"+q.Encode(), token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var buckets map[string][]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &buckets))
	assert.Equal(t, map[string][]string{
		"Debian": {"web-1"},
		"Ubuntu": {"web-2"},
	}, buckets)
}

func TestGrainExploreRequiresQuery(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t)
	api.seedOperator(t, "alice", "p@ss", `["minion.grainexplorer"]`)
	token := api.login(t, "alice", "p@ss", freshToken(time.Now()))

	rec := api.do(t, http.MethodGet, "/grains", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
