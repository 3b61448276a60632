package v1

import (
	"net/http"

	"github.com/resalt-dev/resalt/pkg/storage"
	"github.com/resalt-dev/resalt/pkg/updates"
	"github.com/resalt-dev/resalt/pkg/versions"
)

// ConnectionReporter reports whether the master event stream is live.
type ConnectionReporter interface {
	Connected() bool
}

// configRoutes serves the deployment descriptor and runtime status.
type configRoutes struct {
	store              storage.Store
	updates            *updates.Cache
	connection         ConnectionReporter
	authForwardEnabled bool
	ldapEnabled        bool
}

type configResponse struct {
	CurrentVersion     string   `json:"currentVersion"`
	AuthForwardEnabled bool     `json:"authForwardEnabled"`
	LDAPEnabled        bool     `json:"ldapEnabled"`
	LatestVersion      *string  `json:"latestVersion"`
	LatestNews         []string `json:"latestNews"`
}

// config describes the deployment to the frontend before login: which auth
// flow to present, the running version, and the advisory banner.
func (c *configRoutes) config(w http.ResponseWriter, _ *http.Request) error {
	resp := configResponse{
		CurrentVersion:     versions.GetVersionInfo().Version,
		AuthForwardEnabled: c.authForwardEnabled,
		LDAPEnabled:        c.ldapEnabled,
		LatestNews:         []string{},
	}
	if info := c.updates.Get(); info != nil {
		resp.LatestVersion = &info.Version
		if info.News != nil {
			resp.LatestNews = info.News
		}
	}
	return writeJSON(w, http.StatusOK, resp)
}

type statusResponse struct {
	SaltConnected bool           `json:"saltConnected"`
	Counts        storage.Counts `json:"counts"`
}

// status reports the event stream liveness flag and storage row counters.
func (c *configRoutes) status(w http.ResponseWriter, r *http.Request) error {
	counts, err := c.store.Counts(r.Context())
	if err != nil {
		return storeErr(err, "status counters")
	}
	return writeJSON(w, http.StatusOK, statusResponse{
		SaltConnected: c.connection.Connected(),
		Counts:        counts,
	})
}
