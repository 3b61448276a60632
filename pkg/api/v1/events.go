package v1

import (
	"net/http"

	"github.com/resalt-dev/resalt/pkg/storage"
)

// defaultEventLimit bounds event listings unless the caller pages
// explicitly; the captured log grows without bound.
const defaultEventLimit = 100

// eventRoutes serves the captured event log.
type eventRoutes struct {
	store storage.Store
}

func (e *eventRoutes) list(w http.ResponseWriter, r *http.Request) error {
	limit, offset, err := parsePaging(r, defaultEventLimit)
	if err != nil {
		return err
	}
	events, err := e.store.ListEvents(r.Context(), limit, offset)
	if err != nil {
		return storeErr(err, "events")
	}
	return writeJSON(w, http.StatusOK, events)
}
