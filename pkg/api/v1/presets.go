package v1

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/resalt-dev/resalt/pkg/errors"
	"github.com/resalt-dev/resalt/pkg/models"
	"github.com/resalt-dev/resalt/pkg/storage"
)

// presetRoutes manages saved minion filter presets.
type presetRoutes struct {
	store storage.Store
}

type presetRequest struct {
	Name   string `json:"name"`
	Filter string `json:"filter"`
}

func (p *presetRequest) validate() error {
	if p.Name == "" {
		return errors.NewInvalidRequestError("preset name is required", nil)
	}
	if _, err := models.ParseFilters(p.Filter); err != nil {
		return errors.NewInvalidRequestError("invalid filter expression", err)
	}
	return nil
}

func (p *presetRoutes) list(w http.ResponseWriter, r *http.Request) error {
	presets, err := p.store.ListPresets(r.Context())
	if err != nil {
		return storeErr(err, "presets")
	}
	return writeJSON(w, http.StatusOK, presets)
}

func (p *presetRoutes) create(w http.ResponseWriter, r *http.Request) error {
	var req presetRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	if err := req.validate(); err != nil {
		return err
	}

	preset := models.MinionPreset{ID: models.NewPresetID(), Name: req.Name, Filter: req.Filter}
	if err := p.store.CreatePreset(r.Context(), preset); err != nil {
		return storeErr(err, "preset")
	}
	return writeJSON(w, http.StatusCreated, preset)
}

func (p *presetRoutes) get(w http.ResponseWriter, r *http.Request) error {
	preset, err := p.store.GetPreset(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		return storeErr(err, "preset")
	}
	return writeJSON(w, http.StatusOK, preset)
}

func (p *presetRoutes) update(w http.ResponseWriter, r *http.Request) error {
	var req presetRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	if err := req.validate(); err != nil {
		return err
	}

	preset := models.MinionPreset{ID: chi.URLParam(r, "id"), Name: req.Name, Filter: req.Filter}
	if err := p.store.UpdatePreset(r.Context(), preset); err != nil {
		return storeErr(err, "preset")
	}
	return writeJSON(w, http.StatusOK, preset)
}

func (p *presetRoutes) delete(w http.ResponseWriter, r *http.Request) error {
	if err := p.store.DeletePreset(r.Context(), chi.URLParam(r, "id")); err != nil {
		return storeErr(err, "preset")
	}
	return writeJSON(w, http.StatusNoContent, nil)
}
