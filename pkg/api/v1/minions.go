package v1

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/resalt-dev/resalt/pkg/errors"
	"github.com/resalt-dev/resalt/pkg/minions"
	"github.com/resalt-dev/resalt/pkg/models"
	"github.com/resalt-dev/resalt/pkg/salt"
	"github.com/resalt-dev/resalt/pkg/sessions"
	"github.com/resalt-dev/resalt/pkg/storage"
)

// minionRoutes serves the materialized fleet view.
type minionRoutes struct {
	store    storage.Store
	sessions *sessions.Coordinator
	master   salt.Client
}

// list returns minions, optionally filtered by a JSON filter expression and
// ordered by a sort token.
func (m *minionRoutes) list(w http.ResponseWriter, r *http.Request) error {
	sort, ok := storage.ParseMinionSort(r.URL.Query().Get("sort"))
	if !ok {
		return errors.NewInvalidRequestError(fmt.Sprintf("invalid sort %q", r.URL.Query().Get("sort")), nil)
	}
	limit, offset, err := parsePaging(r, 0)
	if err != nil {
		return err
	}
	filters, err := models.ParseFilters(r.URL.Query().Get("filter"))
	if err != nil {
		return errors.NewInvalidRequestError("invalid filter expression", err)
	}

	var list []models.Minion
	if len(filters) > 0 {
		list, err = minions.Search(r.Context(), m.store, filters, sort, limit, offset)
	} else {
		list, err = m.store.ListMinions(r.Context(), sort, limit, offset)
	}
	if err != nil {
		return storeErr(err, "minions")
	}
	return writeJSON(w, http.StatusOK, list)
}

func (m *minionRoutes) get(w http.ResponseWriter, r *http.Request) error {
	minion, err := m.store.GetMinion(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		return storeErr(err, "minion")
	}
	return writeJSON(w, http.StatusOK, minion)
}

// refresh asks the minion to re-report grains, pillars, and packages. The
// results arrive asynchronously over the event bus.
func (m *minionRoutes) refresh(w http.ResponseWriter, r *http.Request) error {
	status, err := callerStatus(r)
	if err != nil {
		return err
	}
	id := chi.URLParam(r, "id")
	err = sessions.Do(r.Context(), m.sessions, status, func(token *salt.Token) error {
		return m.master.RefreshMinion(r.Context(), token, id)
	})
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusNoContent, nil)
}
