package v1

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	apierrors "github.com/resalt-dev/resalt/pkg/api/errors"
	"github.com/resalt-dev/resalt/pkg/auth"
	"github.com/resalt-dev/resalt/pkg/groups"
	"github.com/resalt-dev/resalt/pkg/minions"
	"github.com/resalt-dev/resalt/pkg/pipeline"
	"github.com/resalt-dev/resalt/pkg/salt"
	"github.com/resalt-dev/resalt/pkg/sessions"
	"github.com/resalt-dev/resalt/pkg/storage"
	"github.com/resalt-dev/resalt/pkg/telemetry"
	"github.com/resalt-dev/resalt/pkg/updates"
)

// requestTimeout bounds every request except the pipeline stream, which
// stays open for the life of the client.
const requestTimeout = 60 * time.Second

// Deps carries the services the API surface is assembled from.
type Deps struct {
	Store        storage.Store
	Sessions     *sessions.Coordinator
	Master       salt.Client
	Groups       *groups.Service
	Materializer *minions.Materializer
	Broadcaster  *pipeline.Broadcaster
	Updates      *updates.Cache
	Connection   ConnectionReporter

	AuthForwardEnabled bool
	AuthForwardHeader  string
	LDAPEnabled        bool
}

// Router assembles the /api tree: the public login, callback, and
// deployment descriptor endpoints, and the authenticated operator surface
// with per-route permission gates.
func Router(deps Deps) http.Handler {
	authR := &authRoutes{
		sessions:           deps.Sessions,
		store:              deps.Store,
		authForwardEnabled: deps.AuthForwardEnabled,
		authForwardHeader:  deps.AuthForwardHeader,
	}
	configR := &configRoutes{
		store:              deps.Store,
		updates:            deps.Updates,
		connection:         deps.Connection,
		authForwardEnabled: deps.AuthForwardEnabled,
		ldapEnabled:        deps.LDAPEnabled,
	}
	minionR := &minionRoutes{store: deps.Store, sessions: deps.Sessions, master: deps.Master}
	grainR := &grainRoutes{store: deps.Store}
	presetR := &presetRoutes{store: deps.Store}
	jobR := &jobRoutes{store: deps.Store, sessions: deps.Sessions, master: deps.Master}
	eventR := &eventRoutes{store: deps.Store}
	userR := &userRoutes{store: deps.Store}
	keyR := &keyRoutes{sessions: deps.Sessions, master: deps.Master, materializer: deps.Materializer}
	permissionR := &permissionRoutes{groups: deps.Groups}
	settingsR := &settingsRoutes{store: deps.Store, groups: deps.Groups}
	pipelineR := &pipelineRoutes{broadcaster: deps.Broadcaster}

	h := apierrors.ErrorHandler

	r := chi.NewRouter()

	// Public surface: login, the master's external-auth callback, and the
	// descriptors the frontend needs before a session exists.
	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))
		r.Post("/login", h(authR.login))
		r.Post("/token", h(authR.token))
		r.Get("/config", h(configR.config))
		r.Get("/status", h(configR.status))
		r.Handle("/metrics", telemetry.Handler())
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(deps.Sessions))

		// The stream has no request deadline; the broadcaster's ping sweep
		// is what reaps dead clients.
		r.Get("/pipeline", h(pipelineR.stream))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(requestTimeout))

			r.Post("/logout", h(authR.logout))
			r.Get("/myself", h(authR.myself))

			r.Route("/minions", func(r chi.Router) {
				r.With(perm(auth.PermMinionList)).Get("/", h(minionR.list))
				r.With(perm(auth.PermMinionList)).Get("/{id}", h(minionR.get))
				r.With(perm(auth.PermMinionRefresh)).Post("/{id}/refresh", h(minionR.refresh))
			})
			r.With(perm(auth.PermMinionGrainExplore)).Get("/grains", h(grainR.explore))

			r.Route("/presets", func(r chi.Router) {
				r.With(perm(auth.PermMinionPresetList)).Get("/", h(presetR.list))
				r.With(perm(auth.PermMinionPresetList)).Get("/{id}", h(presetR.get))
				r.With(perm(auth.PermMinionPresetManage)).Post("/", h(presetR.create))
				r.With(perm(auth.PermMinionPresetManage)).Put("/{id}", h(presetR.update))
				r.With(perm(auth.PermMinionPresetManage)).Delete("/{id}", h(presetR.delete))
			})

			r.Route("/jobs", func(r chi.Router) {
				r.With(perm(auth.PermJobList)).Get("/", h(jobR.list))
				r.With(perm(auth.PermJobList)).Get("/{jid}", h(jobR.get))
				r.With(perm(auth.PermJobRun)).Post("/", h(jobR.run))
			})
			r.With(perm(auth.PermEventList)).Get("/events", h(eventR.list))

			r.Route("/users", func(r chi.Router) {
				r.With(perm(auth.PermUserList)).Get("/", h(userR.list))
				r.With(perm(auth.PermUserList)).Get("/{id}", h(userR.get))
				r.With(perm(auth.PermAdminUser)).Post("/", h(userR.create))
				r.With(perm(auth.PermAdminUser)).Delete("/{id}", h(userR.delete))
				// Own-password changes are always allowed; the handler gates
				// changes to other accounts.
				r.Post("/{id}/password", h(userR.setPassword))
			})

			r.Route("/keys", func(r chi.Router) {
				r.With(perm(auth.PermKeyList)).Get("/", h(keyR.list))
				r.With(perm(auth.PermKeyAccept)).Put("/{state}/{id}/accept", h(keyR.accept))
				r.With(perm(auth.PermKeyReject)).Put("/{state}/{id}/reject", h(keyR.reject))
				r.With(perm(auth.PermKeyDelete)).Delete("/{state}/{id}", h(keyR.delete))
			})

			r.Route("/permissions", func(r chi.Router) {
				r.Use(perm(auth.PermAdminGroup))
				r.Get("/", h(permissionR.list))
				r.Get("/{id}", h(permissionR.get))
				r.Post("/", h(permissionR.create))
				r.Put("/{id}", h(permissionR.update))
				r.Delete("/{id}", h(permissionR.delete))
				r.Post("/{id}/users/{userid}", h(permissionR.addMember))
				r.Delete("/{id}/users/{userid}", h(permissionR.removeMember))
			})

			r.Route("/settings", func(r chi.Router) {
				r.Use(perm(auth.PermAdminSuperadmin))
				r.Get("/export", h(settingsR.export))
				r.Post("/import", h(settingsR.importSettings))
			})
		})
	})

	return r
}

func perm(id string) func(http.Handler) http.Handler {
	return auth.RequirePermission(id)
}
