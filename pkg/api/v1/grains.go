package v1

import (
	"net/http"

	"github.com/tidwall/gjson"

	"github.com/resalt-dev/resalt/pkg/errors"
	"github.com/resalt-dev/resalt/pkg/minions"
	"github.com/resalt-dev/resalt/pkg/models"
	"github.com/resalt-dev/resalt/pkg/storage"
)

// grainRoutes serves the grain explorer.
type grainRoutes struct {
	store storage.Store
}

// explore groups minion ids by the value found at a grains path. query is
// a dotted JSON path into the grains blob; minions without a value land in
// the "" bucket. An optional filter narrows the fleet first.
func (g *grainRoutes) explore(w http.ResponseWriter, r *http.Request) error {
	query := r.URL.Query().Get("query")
	if query == "" {
		return errors.NewInvalidRequestError("query parameter is required", nil)
	}
	filters, err := models.ParseFilters(r.URL.Query().Get("filter"))
	if err != nil {
		return errors.NewInvalidRequestError("invalid filter expression", err)
	}

	list, err := minions.Search(r.Context(), g.store, filters, storage.MinionSortIDAsc, 0, 0)
	if err != nil {
		return storeErr(err, "minions")
	}

	buckets := map[string][]string{}
	for _, minion := range list {
		key := ""
		if minion.Grains != nil {
			if value := gjson.Get(*minion.Grains, query); value.Exists() {
				key = value.String()
			}
		}
		buckets[key] = append(buckets[key], minion.ID)
	}
	return writeJSON(w, http.StatusOK, buckets)
}
